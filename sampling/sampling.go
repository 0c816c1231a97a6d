// Package sampling implements the deterministic block-index planner: given
// a file's line count, it produces a minimal, strictly increasing set of
// sample points such that no adjacent gap exceeds a configured bound.
package sampling

import "sort"

// SamplePlan is the ordered set of sample line indices for one file, plus
// the block ranges derived from them.
type SamplePlan struct {
	Indices []int64
	Blocks  []Block
}

// Block is a contiguous, half-open line range [Start, End) to profile.
type Block struct {
	Start int64
	End   int64
}

// interval is a working range during midpoint insertion.
type interval struct {
	lo, hi int64
}

// Plan produces a deterministic sequence of sample indices over a file of
// totalLines lines. It starts from {0, totalLines-1} and repeatedly
// bisects any interval wider than minGap until none remain, giving
// O(m log m) work where m is the resulting sample count. Each index then
// anchors a block [i, i+blockSize) clipped to the file length; blocks that
// would overlap their neighbor are merged.
func Plan(totalLines int64, minGap int64, blockSize int64) SamplePlan {
	if totalLines <= 0 {
		return SamplePlan{}
	}
	if minGap < 1 {
		minGap = 1
	}
	if blockSize < 1 {
		blockSize = 1
	}

	last := totalLines - 1
	indexSet := map[int64]struct{}{0: {}, last: {}}

	pending := []interval{{0, last}}
	for len(pending) > 0 {
		next := make([]interval, 0, len(pending)*2)
		progressed := false
		for _, iv := range pending {
			if iv.hi-iv.lo > minGap {
				mid := iv.lo + (iv.hi-iv.lo)/2
				if _, ok := indexSet[mid]; !ok {
					indexSet[mid] = struct{}{}
					progressed = true
				}
				next = append(next, interval{iv.lo, mid}, interval{mid, iv.hi})
			}
		}
		pending = next
		if !progressed {
			break
		}
	}

	indices := make([]int64, 0, len(indexSet))
	for idx := range indexSet {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	blocks := make([]Block, 0, len(indices))
	for _, idx := range indices {
		end := idx + blockSize
		if end > totalLines {
			end = totalLines
		}
		if len(blocks) > 0 && blocks[len(blocks)-1].End >= idx {
			prev := &blocks[len(blocks)-1]
			if end > prev.End {
				prev.End = end
			}
			continue
		}
		blocks = append(blocks, Block{Start: idx, End: end})
	}

	return SamplePlan{Indices: indices, Blocks: blocks}
}

// MaxGap returns the widest gap between adjacent indices in the plan, used
// by tests to assert the min-gap invariant holds.
func (p SamplePlan) MaxGap() int64 {
	var max int64
	for i := 1; i < len(p.Indices); i++ {
		if g := p.Indices[i] - p.Indices[i-1]; g > max {
			max = g
		}
	}
	return max
}
