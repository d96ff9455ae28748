// SPDX-License-Identifier: AGPL-3.0-only

package core

// HummockVersion is the authoritative, cluster-wide LSM snapshot: a
// monotonic id, per-group Levels, and the two epoch watermarks that gate
// GC and commit visibility.
type HummockVersion struct {
	Id                uint64
	Levels            map[uint64]*Levels // keyed by compaction group id
	MaxCommittedEpoch uint64
	SafeEpoch         uint64
}

// NewHummockVersion returns the id=0 bootstrap version with no groups.
func NewHummockVersion() *HummockVersion {
	return &HummockVersion{Id: 0, Levels: make(map[uint64]*Levels)}
}

// Clone deep-copies a version so deltas can be computed against a
// snapshot without racing the live version the manager continues to
// serve to readers.
func (v *HummockVersion) Clone() *HummockVersion {
	if v == nil {
		return nil
	}
	out := &HummockVersion{
		Id:                v.Id,
		MaxCommittedEpoch: v.MaxCommittedEpoch,
		SafeEpoch:         v.SafeEpoch,
		Levels:            make(map[uint64]*Levels, len(v.Levels)),
	}
	for gid, lv := range v.Levels {
		out.Levels[gid] = lv.Clone()
	}
	return out
}

// TableStats is one row of VersionStats: per-table aggregate sizes.
type TableStats struct {
	TotalKeySize   int64
	TotalValueSize int64
	TotalKeyCount  int64
}

// Add applies a signed stats delta in place.
func (t *TableStats) Add(delta TableStats) {
	t.TotalKeySize += delta.TotalKeySize
	t.TotalValueSize += delta.TotalValueSize
	t.TotalKeyCount += delta.TotalKeyCount
}

// VersionStats is the singleton per-table row-count/size index, replaced
// atomically with each commit (§3).
type VersionStats struct {
	Tables map[uint32]*TableStats
}

// NewVersionStats returns an empty stats table.
func NewVersionStats() *VersionStats {
	return &VersionStats{Tables: make(map[uint32]*TableStats)}
}

// Clone deep-copies the stats table.
func (s *VersionStats) Clone() *VersionStats {
	out := NewVersionStats()
	for id, row := range s.Tables {
		cp := *row
		out.Tables[id] = &cp
	}
	return out
}

// ApplyDelta adds signed per-table deltas and purges any table whose
// resulting row has zero key count, mirroring the original
// add_prost_table_stats_map behavior (SPEC_FULL.md §4).
func (s *VersionStats) ApplyDelta(deltas map[uint32]TableStats) {
	for id, d := range deltas {
		row, ok := s.Tables[id]
		if !ok {
			row = &TableStats{}
			s.Tables[id] = row
		}
		row.Add(d)
		if row.TotalKeyCount <= 0 {
			delete(s.Tables, id)
		}
	}
}

// PurgeVanished removes stats rows for tables no longer present in liveTables.
func (s *VersionStats) PurgeVanished(liveTables map[uint32]struct{}) {
	for id := range s.Tables {
		if _, ok := liveTables[id]; !ok {
			delete(s.Tables, id)
		}
	}
}

// BranchedSSTs tracks, for each SST id that is simultaneously owned by
// more than one compaction group after a split, the divide_version of
// each owning group's copy (§3, §9).
type BranchedSSTs struct {
	bySst map[uint64]map[uint64]uint64 // sst id -> group id -> divide_version
}

// NewBranchedSSTs returns an empty branched-SST index.
func NewBranchedSSTs() *BranchedSSTs {
	return &BranchedSSTs{bySst: make(map[uint64]map[uint64]uint64)}
}

// Insert records that group owns a copy of sst at the given divide
// version. An entry with a single group is never created by Insert
// alone — callers only call Insert when branching to a second group.
func (b *BranchedSSTs) Insert(sstID, groupID, divideVersion uint64) {
	m, ok := b.bySst[sstID]
	if !ok {
		m = make(map[uint64]uint64)
		b.bySst[sstID] = m
	}
	m[groupID] = divideVersion
}

// Remove drops group's ownership of sst. If only one owner remains, the
// entry is dropped entirely (§3: "entry with single group is dropped").
func (b *BranchedSSTs) Remove(sstID, groupID uint64) {
	m, ok := b.bySst[sstID]
	if !ok {
		return
	}
	delete(m, groupID)
	if len(m) <= 1 {
		delete(b.bySst, sstID)
	}
}

// Get returns the divide_version group holds for sst, and whether the
// index has an entry for sst under that group.
func (b *BranchedSSTs) Get(sstID, groupID uint64) (uint64, bool) {
	m, ok := b.bySst[sstID]
	if !ok {
		return 0, false
	}
	v, ok := m[groupID]
	return v, ok
}

// IsBranched reports whether sst has more than one owning group.
func (b *BranchedSSTs) IsBranched(sstID uint64) bool {
	_, ok := b.bySst[sstID]
	return ok
}

// Owners returns the set of group ids currently owning sst.
func (b *BranchedSSTs) Owners(sstID uint64) map[uint64]uint64 {
	return b.bySst[sstID]
}

// Clone deep-copies the branched-SST index.
func (b *BranchedSSTs) Clone() *BranchedSSTs {
	out := NewBranchedSSTs()
	for sst, owners := range b.bySst {
		m := make(map[uint64]uint64, len(owners))
		for g, v := range owners {
			m[g] = v
		}
		out.bySst[sst] = m
	}
	return out
}
