// SPDX-License-Identifier: AGPL-3.0-only

// Package hummockpb holds the wire-shaped message types persisted under
// the metastore namespaces of SPEC_FULL.md §6.1. They follow gogo/protobuf's
// generated-message shape (exported fields, Reset/String/ProtoMessage) so
// that github.com/gogo/protobuf/proto can marshal and unmarshal them; the
// wire codec each message supplies via Marshal/Unmarshal is JSON rather
// than canonical protobuf tag encoding (see DESIGN.md) — gogo/protobuf's
// proto.Marshal and proto.Unmarshal dispatch to these methods exactly as
// they would to compiler-generated ones, since both satisfy the
// library's Marshaler/Unmarshaler interfaces.
package hummockpb

import (
	"encoding/json"
	"fmt"
)

// KeyRange mirrors core.KeyRange.
type KeyRange struct {
	Left           []byte
	Right          []byte
	RightExclusive bool
}

// SstableInfo mirrors core.SstableInfo.
type SstableInfo struct {
	Id            uint64
	KeyRange      KeyRange
	TableIds      []uint32
	FileSize      uint64
	DivideVersion uint64
	MinEpoch      uint64
	MaxEpoch      uint64
}

// SubLevel mirrors core.SubLevel.
type SubLevel struct {
	SubLevelId    uint64
	Overlapping   bool
	Tables        []SstableInfo
	TotalFileSize uint64
}

// Level mirrors core.Level.
type Level struct {
	LevelIdx      int
	Tables        []SstableInfo
	TotalFileSize uint64
}

// Levels mirrors core.Levels for one compaction group.
type Levels struct {
	L0     []SubLevel
	Levels []Level
}

// HummockVersion is the metastore value at hummock_version/{id}.
type HummockVersion struct {
	Id                uint64
	Levels            map[uint64]Levels
	MaxCommittedEpoch uint64
	SafeEpoch         uint64
}

func (m *HummockVersion) Reset()         { *m = HummockVersion{} }
func (m *HummockVersion) String() string { return fmt.Sprintf("%+v", *m) }
func (*HummockVersion) ProtoMessage()    {}
func (m *HummockVersion) Marshal() ([]byte, error) { return json.Marshal(m) }
func (m *HummockVersion) Unmarshal(data []byte) error { return json.Unmarshal(data, m) }

// GroupDelta mirrors core.GroupDelta.
type GroupDelta struct {
	InsertedL0 map[uint64][]SstableInfo
	// InsertedL0Overlapping records, per inserted L0 sub-level id, whether
	// that sub-level is core.LevelTypeOverlapping. Without this a replayed
	// sub-level would always read back as NonOverlapping, wrongly making a
	// raw commit sub-level eligible for trivial-move compaction.
	InsertedL0Overlapping map[uint64]bool
	InsertedLevels        map[int][]SstableInfo
	RemovedL0             map[uint64][]uint64
	RemovedLevels         map[int][]uint64
	GroupConstruct        *GroupConstruct
	GroupDestroy          bool
}

// CompactionConfig mirrors core.CompactionConfig.
type CompactionConfig struct {
	MaxLevel                    int
	BaseLevel                   int
	Level0TierCompactFileNumber int
	Level0MaxCompactFileNumber  int
	TargetFileSizeBase          uint64
	CompressionAlgorithm        []uint32
	MaxBytesForLevelBase        uint64
	MaxSpaceReclaimBytes        uint64
	SubLevelMaxCompactionBytes  uint64
}

// GroupConstruct mirrors core.GroupConstruct.
type GroupConstruct struct {
	GroupId  uint64
	Config   CompactionConfig
	ParentId uint64
	TableIds []uint32
}

// VersionDelta is the metastore value at hummock_version_delta/{id}.
type VersionDelta struct {
	PrevId            uint64
	Id                uint64
	MaxCommittedEpoch uint64
	SafeEpoch         uint64
	GroupDeltas       map[uint64]GroupDelta
	GcSstIds          []uint64
	TrivialMove       bool
}

func (m *VersionDelta) Reset()         { *m = VersionDelta{} }
func (m *VersionDelta) String() string { return fmt.Sprintf("%+v", *m) }
func (*VersionDelta) ProtoMessage()    {}
func (m *VersionDelta) Marshal() ([]byte, error)    { return json.Marshal(m) }
func (m *VersionDelta) Unmarshal(data []byte) error { return json.Unmarshal(data, m) }

// LevelHandlerState is the serializable form of a compaction.LevelHandler.
type LevelHandlerState struct {
	LevelIdx     int
	PendingBySst map[uint64]uint64 // sst id -> task id
	TargetLevel  map[uint64]int    // sst id -> target level
}

// CompactStatus is the metastore value at compact_status/{group_id}.
type CompactStatus struct {
	GroupId  uint64
	Handlers map[int]LevelHandlerState
}

func (m *CompactStatus) Reset()         { *m = CompactStatus{} }
func (m *CompactStatus) String() string { return fmt.Sprintf("%+v", *m) }
func (*CompactStatus) ProtoMessage()    {}
func (m *CompactStatus) Marshal() ([]byte, error)    { return json.Marshal(m) }
func (m *CompactStatus) Unmarshal(data []byte) error { return json.Unmarshal(data, m) }

// InputLevel mirrors core.InputLevel.
type InputLevel struct {
	LevelIdx    int
	SubLevelId  uint64
	Overlapping bool
	Tables      []SstableInfo
	// DivideVersions persists the dispatch-time DivideVersion snapshot
	// (see core.InputLevel) so an in-flight assignment survives a manager
	// restart without losing the baseline isExpired compares against.
	DivideVersions map[uint64]uint64
}

// CompactTask mirrors core.CompactTask.
type CompactTask struct {
	TaskId           uint64
	GroupId          uint64
	Type             int
	Input            []InputLevel
	TargetLevel      int
	TargetSubLevelId uint64
	TargetFileSize   uint64
	Compression      uint32
	Watermark        uint64
	GcDeleteKeys     bool
	Status           int
	Splits           []KeyRange
}

// CompactTaskAssignment is the metastore value at
// compact_task_assignment/{task_id}.
type CompactTaskAssignment struct {
	Task              CompactTask
	ContextId         uint64
	HeartbeatDeadline int64
}

func (m *CompactTaskAssignment) Reset()         { *m = CompactTaskAssignment{} }
func (m *CompactTaskAssignment) String() string { return fmt.Sprintf("%+v", *m) }
func (*CompactTaskAssignment) ProtoMessage()    {}
func (m *CompactTaskAssignment) Marshal() ([]byte, error)    { return json.Marshal(m) }
func (m *CompactTaskAssignment) Unmarshal(data []byte) error { return json.Unmarshal(data, m) }

// PinnedVersion is the metastore value at pinned_version/{ctx}.
type PinnedVersion struct {
	ContextId          uint64
	MinPinnedVersionId uint64
}

func (m *PinnedVersion) Reset()         { *m = PinnedVersion{} }
func (m *PinnedVersion) String() string { return fmt.Sprintf("%+v", *m) }
func (*PinnedVersion) ProtoMessage()    {}
func (m *PinnedVersion) Marshal() ([]byte, error)    { return json.Marshal(m) }
func (m *PinnedVersion) Unmarshal(data []byte) error { return json.Unmarshal(data, m) }

// PinnedSnapshot is the metastore value at pinned_snapshot/{ctx}.
type PinnedSnapshot struct {
	ContextId          uint64
	MinimalPinnedEpoch uint64
}

func (m *PinnedSnapshot) Reset()         { *m = PinnedSnapshot{} }
func (m *PinnedSnapshot) String() string { return fmt.Sprintf("%+v", *m) }
func (*PinnedSnapshot) ProtoMessage()    {}
func (m *PinnedSnapshot) Marshal() ([]byte, error)    { return json.Marshal(m) }
func (m *PinnedSnapshot) Unmarshal(data []byte) error { return json.Unmarshal(data, m) }

// CompactionGroup is the metastore value at compaction_group/{group_id}.
type CompactionGroup struct {
	GroupId  uint64
	Config   CompactionConfig
	TableIds []uint32
}

func (m *CompactionGroup) Reset()         { *m = CompactionGroup{} }
func (m *CompactionGroup) String() string { return fmt.Sprintf("%+v", *m) }
func (*CompactionGroup) ProtoMessage()    {}
func (m *CompactionGroup) Marshal() ([]byte, error)    { return json.Marshal(m) }
func (m *CompactionGroup) Unmarshal(data []byte) error { return json.Unmarshal(data, m) }

// TableStatsRow mirrors core.TableStats.
type TableStatsRow struct {
	TotalKeySize   int64
	TotalValueSize int64
	TotalKeyCount  int64
}

// VersionStats is the singleton metastore value at hummock_version_stats.
type VersionStats struct {
	Tables map[uint32]TableStatsRow
}

func (m *VersionStats) Reset()         { *m = VersionStats{} }
func (m *VersionStats) String() string { return fmt.Sprintf("%+v", *m) }
func (*VersionStats) ProtoMessage()    {}
func (m *VersionStats) Marshal() ([]byte, error)    { return json.Marshal(m) }
func (m *VersionStats) Unmarshal(data []byte) error { return json.Unmarshal(data, m) }

// IdSequence is the metastore value at id_sequence/{category}: a single
// pre-allocated high-watermark, per §6.1 and SPEC_FULL.md §4.
type IdSequence struct {
	Category string
	Next     uint64
}

func (m *IdSequence) Reset()         { *m = IdSequence{} }
func (m *IdSequence) String() string { return fmt.Sprintf("%+v", *m) }
func (*IdSequence) ProtoMessage()    {}
func (m *IdSequence) Marshal() ([]byte, error)    { return json.Marshal(m) }
func (m *IdSequence) Unmarshal(data []byte) error { return json.Unmarshal(data, m) }
