// SPDX-License-Identifier: AGPL-3.0-only

package core

// GroupConstruct describes a GroupConstruct delta entry: a new
// compaction group created either by registration or by a split.
type GroupConstruct struct {
	GroupId    uint64
	Config     CompactionConfig
	ParentId   uint64 // 0 if not created by a split
	TableIds   []uint32
}

// GroupDelta is one compaction group's worth of level mutation carried by
// a VersionDelta: SSTs inserted into / removed from specific levels, plus
// optional group lifecycle markers.
type GroupDelta struct {
	// InsertedL0 maps a sublevel id (the commit epoch, or the target
	// sublevel id chosen by a tier-compaction task) to the SSTs newly
	// placed there.
	InsertedL0 map[uint64][]*SstableInfo
	// InsertedL0Type records the LevelType a brand-new InsertedL0 sublevel
	// should carry: Overlapping for a freshly committed epoch, where
	// concurrently-written SSTs may share key ranges, NonOverlapping for a
	// tier-compaction task's merged, sorted output sublevel (§4.5's
	// is_trivial_move_task reads this to decide whether a later L0->Lbase
	// move can bypass the compactor round trip).
	InsertedL0Type map[uint64]LevelType
	// InsertedLevels maps level index (1-based) to newly placed SSTs.
	InsertedLevels map[int][]*SstableInfo
	// RemovedL0 maps sublevel id to the set of removed SST ids; a
	// sublevel whose Tables becomes empty is dropped from the stack.
	RemovedL0 map[uint64][]uint64
	// RemovedLevels maps level index to removed SST ids.
	RemovedLevels map[int][]uint64

	GroupConstruct *GroupConstruct
	GroupDestroy   bool
}

// NewGroupDelta returns a zero-value GroupDelta with initialized maps.
func NewGroupDelta() *GroupDelta {
	return &GroupDelta{
		InsertedL0:     make(map[uint64][]*SstableInfo),
		InsertedL0Type: make(map[uint64]LevelType),
		InsertedLevels: make(map[int][]*SstableInfo),
		RemovedL0:      make(map[uint64][]uint64),
		RemovedLevels:  make(map[int][]uint64),
	}
}

// VersionDelta is the append-only unit of change: applying it to the
// version identified by PrevId yields the version identified by Id.
type VersionDelta struct {
	PrevId            uint64
	Id                uint64
	MaxCommittedEpoch uint64
	SafeEpoch         uint64
	GroupDeltas       map[uint64]*GroupDelta // group id -> delta
	GcSstIds          []uint64
	TrivialMove       bool
}

// NewVersionDelta returns a delta with an initialized GroupDeltas map.
func NewVersionDelta(prevID, id uint64) *VersionDelta {
	return &VersionDelta{PrevId: prevID, Id: id, GroupDeltas: make(map[uint64]*GroupDelta)}
}

// GroupDeltaFor returns (creating if absent) the GroupDelta for group id.
func (d *VersionDelta) GroupDeltaFor(groupID uint64) *GroupDelta {
	gd, ok := d.GroupDeltas[groupID]
	if !ok {
		gd = NewGroupDelta()
		d.GroupDeltas[groupID] = gd
	}
	return gd
}
