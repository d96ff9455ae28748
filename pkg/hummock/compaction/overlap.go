// SPDX-License-Identifier: AGPL-3.0-only

// Package compaction implements the Level Handler, Overlap Strategy,
// Compaction Picker variants, Level Selector and per-group CompactStatus
// described in SPEC_FULL.md §4.1-4.5. None of it touches the metastore;
// it is pure decision logic run under the manager's "compaction" lock.
package compaction

import "github.com/risingwavelabs/hummock/pkg/hummock/core"

// OverlapStrategy decides whether two SST key ranges overlap.
type OverlapStrategy interface {
	Overlaps(a, b core.KeyRange) bool
	// OverlappingTables returns the subset of candidates overlapping target.
	OverlappingTables(target core.KeyRange, candidates []*core.SstableInfo) []*core.SstableInfo
}

// RangeOverlapStrategy implements range-based overlap only, per §4.2:
// closed intervals, empty intersection means no overlap, and the
// right-exclusive marker is respected.
type RangeOverlapStrategy struct{}

func (RangeOverlapStrategy) Overlaps(a, b core.KeyRange) bool {
	return rangesOverlap(a, b)
}

func rangesOverlap(a, b core.KeyRange) bool {
	// An unbounded (infinite) range overlaps everything.
	if len(a.Left) == 0 && len(a.Right) == 0 {
		return true
	}
	if len(b.Left) == 0 && len(b.Right) == 0 {
		return true
	}
	if compareBytes(a.Left, b.Right) > 0 {
		return false
	}
	if b.RightExclusive && compareBytes(a.Left, b.Right) == 0 {
		return false
	}
	if compareBytes(b.Left, a.Right) > 0 {
		return false
	}
	if a.RightExclusive && compareBytes(b.Left, a.Right) == 0 {
		return false
	}
	return true
}

func compareBytes(x, y []byte) int {
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	for i := 0; i < n; i++ {
		if x[i] != y[i] {
			if x[i] < y[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(x) < len(y):
		return -1
	case len(x) > len(y):
		return 1
	default:
		return 0
	}
}

func (RangeOverlapStrategy) OverlappingTables(target core.KeyRange, candidates []*core.SstableInfo) []*core.SstableInfo {
	var out []*core.SstableInfo
	for _, c := range candidates {
		if rangesOverlap(target, c.KeyRange) {
			out = append(out, c)
		}
	}
	return out
}

// tablesKeyRange returns the bounding key range of a set of SSTs.
func tablesKeyRange(tables []*core.SstableInfo) core.KeyRange {
	if len(tables) == 0 {
		return core.KeyRange{}
	}
	kr := tables[0].KeyRange
	for _, t := range tables[1:] {
		if compareBytes(t.KeyRange.Left, kr.Left) < 0 {
			kr.Left = t.KeyRange.Left
		}
		right, rightExcl := kr.Right, kr.RightExclusive
		if compareBytes(t.KeyRange.Right, right) > 0 || (compareBytes(t.KeyRange.Right, right) == 0 && !t.KeyRange.RightExclusive && rightExcl) {
			kr.Right = t.KeyRange.Right
			kr.RightExclusive = t.KeyRange.RightExclusive
		}
	}
	return kr
}
