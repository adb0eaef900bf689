package mir

// This file computes the dominator tree and dominance frontiers of a
// Function's CFG (spec §4.4, C4). The dominator computation is the
// engineered iterative algorithm from Cooper, Harvey & Kennedy's "A
// Simple, Fast Dominance Algorithm", adapted from the teacher's
// ssa/pass_cfg.go (passCalculateImmediateDominators/calculateDominators/
// intersect) — that file lives directly inside the SSA package rather
// than a separate analysis package, which this mirrors by keeping
// dominance computation inside package mir instead of splitting it out.

// DominatorTree maps each reachable BasicBlockID to its immediate
// dominator. By convention the entry block maps to itself.
type DominatorTree map[BasicBlockID]BasicBlockID

// ComputeDominatorTree computes the immediate dominator of every block
// reachable from the entry block. Unreachable blocks are omitted.
//
// The relation satisfies: idom(n) strictly dominates n, and no block
// strictly between them dominates n (spec §4.4). The algorithm converges
// on irreducible CFGs because it iterates to a fixed point rather than
// assuming a single structured reduction order.
func ComputeDominatorTree(f *Function) DominatorTree {
	order := reversePostOrder(f)
	if len(order) == 0 {
		return DominatorTree{}
	}

	rpoIndex := make(map[BasicBlockID]int, len(order))
	for i, id := range order {
		rpoIndex[id] = i
	}

	doms := make(map[BasicBlockID]BasicBlockID, len(order))
	entry := order[0]
	doms[entry] = entry

	changed := true
	for changed {
		changed = false
		for _, id := range order[1:] {
			blk := f.Block(id)
			var newIdom BasicBlockID
			hasIdom := false
			for _, pred := range blk.Preds() {
				if _, ok := rpoIndex[pred]; !ok {
					continue // predecessor unreachable (e.g. pruned by a pass)
				}
				if _, ok := doms[pred]; !ok {
					continue // not yet processed this round
				}
				if !hasIdom {
					newIdom = pred
					hasIdom = true
					continue
				}
				newIdom = intersect(doms, rpoIndex, newIdom, pred)
			}
			if !hasIdom {
				continue
			}
			if cur, ok := doms[id]; !ok || cur != newIdom {
				doms[id] = newIdom
				changed = true
			}
		}
	}
	return doms
}

func intersect(doms map[BasicBlockID]BasicBlockID, rpoIndex map[BasicBlockID]int, a, b BasicBlockID) BasicBlockID {
	for a != b {
		for rpoIndex[a] > rpoIndex[b] {
			a = doms[a]
		}
		for rpoIndex[b] > rpoIndex[a] {
			b = doms[b]
		}
	}
	return a
}

// reversePostOrder computes a reverse postorder traversal of the CFG
// reachable from the entry block, using an explicit stack (not
// recursion) so pathologically deep CFGs cannot overflow the call stack.
func reversePostOrder(f *Function) []BasicBlockID {
	if len(f.Blocks) == 0 {
		return nil
	}
	const (
		unseen = iota
		seen
		done
	)
	state := make(map[BasicBlockID]int)
	var postorder []BasicBlockID

	entry := f.EntryBlock().ID
	stack := []BasicBlockID{entry}
	state[entry] = seen

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		switch state[top] {
		case seen:
			state[top] = done
			blk := f.Block(top)
			if blk.Terminator != nil {
				for _, succ := range blk.Terminator.Successors() {
					if state[succ] == unseen {
						state[succ] = seen
						stack = append(stack, succ)
					}
				}
			}
		case done:
			stack = stack[:len(stack)-1]
			postorder = append(postorder, top)
		default:
			// Already fully processed via another path; pop.
			stack = stack[:len(stack)-1]
		}
	}

	// Reverse in place.
	for i, j := 0, len(postorder)-1; i < j; i, j = i+1, j-1 {
		postorder[i], postorder[j] = postorder[j], postorder[i]
	}
	return postorder
}

// DominanceFrontiers maps each BasicBlockID to the set of blocks at
// which its dominance ceases — i.e. its Phi insertion points (spec
// §4.4, Cytron et al.).
type DominanceFrontiers map[BasicBlockID]map[BasicBlockID]struct{}

// ComputeDominanceFrontiers computes the dominance frontier of every
// block reachable from the entry, given its dominator tree.
func ComputeDominanceFrontiers(f *Function, domtree DominatorTree) DominanceFrontiers {
	df := make(DominanceFrontiers)
	for id := range domtree {
		df[id] = make(map[BasicBlockID]struct{})
	}

	for _, b := range f.Blocks {
		preds := b.Preds()
		if len(preds) < 2 {
			continue
		}
		idom, ok := domtree[b.ID]
		if !ok {
			continue
		}
		for _, pred := range preds {
			if _, ok := domtree[pred]; !ok {
				continue
			}
			runner := pred
			for runner != idom {
				if df[runner] == nil {
					df[runner] = make(map[BasicBlockID]struct{})
				}
				df[runner][b.ID] = struct{}{}
				next, ok := domtree[runner]
				if !ok || next == runner {
					break
				}
				runner = next
			}
		}
	}
	return df
}

// IsDominatedBy reports whether n is dominated by d (d == n counts as
// dominating).
func IsDominatedBy(domtree DominatorTree, n, d BasicBlockID) bool {
	for {
		if n == d {
			return true
		}
		parent, ok := domtree[n]
		if !ok || parent == n {
			return n == d
		}
		n = parent
	}
}
