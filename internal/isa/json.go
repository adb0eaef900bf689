package isa

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/kkrt-labs/cairo-m-sub002/internal/field"
)

// MarshalJSON renders the instruction as an ordered list of hex strings,
// the first element being the opcode (spec §3.2 JSON form).
func (i Instruction) MarshalJSON() ([]byte, error) {
	vec := i.ToM31Vec()
	hexes := make([]string, len(vec))
	for idx, m := range vec {
		hexes[idx] = "0x" + strconv.FormatUint(uint64(m.Uint32()), 16)
	}
	return json.Marshal(hexes)
}

// UnmarshalJSON parses the hex-string-list form produced by MarshalJSON.
func (i *Instruction) UnmarshalJSON(data []byte) error {
	var hexes []string
	if err := json.Unmarshal(data, &hexes); err != nil {
		return errors.Wrap(err, "isa: decoding instruction JSON")
	}
	m31s := make([]field.M31, len(hexes))
	for idx, h := range hexes {
		h = strings.TrimPrefix(h, "0x")
		v, err := strconv.ParseUint(h, 16, 32)
		if err != nil {
			return errors.Wrapf(err, "isa: parsing operand %d %q", idx, hexes[idx])
		}
		m31s[idx] = field.NewM31(uint32(v))
	}
	decoded, err := FromM31Slice(m31s)
	if err != nil {
		return err
	}
	*i = decoded
	return nil
}
