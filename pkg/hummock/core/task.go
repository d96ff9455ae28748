// SPDX-License-Identifier: AGPL-3.0-only

package core

// TaskType selects which picker chain the Level Selector runs (§4.4).
type TaskType int

const (
	TaskTypeDynamic TaskType = iota
	TaskTypeManual
	TaskTypeTtl
	TaskTypeSpaceReclaim
)

func (t TaskType) String() string {
	switch t {
	case TaskTypeDynamic:
		return "dynamic"
	case TaskTypeManual:
		return "manual"
	case TaskTypeTtl:
		return "ttl"
	case TaskTypeSpaceReclaim:
		return "space_reclaim"
	default:
		return "unknown"
	}
}

// TaskStatus is a CompactTask's position in the state machine of §4.8.
type TaskStatus int

const (
	TaskStatusPending TaskStatus = iota
	TaskStatusAssigned
	TaskStatusSuccess
	TaskStatusHeartbeatCanceled
	TaskStatusSendFailCanceled
	TaskStatusAssignFailCanceled
	TaskStatusInvalidGroupCanceled
	TaskStatusManualCanceled
)

// IsTerminal reports whether the status is Success or any Cancel variant.
func (s TaskStatus) IsTerminal() bool {
	return s != TaskStatusPending && s != TaskStatusAssigned
}

// IsCanceled reports whether the status is any of the Cancel variants.
func (s TaskStatus) IsCanceled() bool {
	switch s {
	case TaskStatusHeartbeatCanceled, TaskStatusSendFailCanceled, TaskStatusAssignFailCanceled,
		TaskStatusInvalidGroupCanceled, TaskStatusManualCanceled:
		return true
	default:
		return false
	}
}

func (s TaskStatus) String() string {
	switch s {
	case TaskStatusPending:
		return "pending"
	case TaskStatusAssigned:
		return "assigned"
	case TaskStatusSuccess:
		return "success"
	case TaskStatusHeartbeatCanceled:
		return "heartbeat_canceled"
	case TaskStatusSendFailCanceled:
		return "send_fail_canceled"
	case TaskStatusAssignFailCanceled:
		return "assign_fail_canceled"
	case TaskStatusInvalidGroupCanceled:
		return "invalid_group_canceled"
	case TaskStatusManualCanceled:
		return "manual_canceled"
	default:
		return "unknown"
	}
}

// InputLevel is one source level (or sublevel, for L0) feeding a
// CompactTask, carrying the exact SSTs being consumed so the level
// handler can release precisely those locks on report.
type InputLevel struct {
	LevelIdx   int       // 0 == L0
	SubLevelId uint64    // only meaningful when LevelIdx == 0
	LevelType  LevelType // Overlapping/NonOverlapping of the source level/sublevel at pick time
	Tables     []*SstableInfo
	// DivideVersions snapshots each input SST's DivideVersion as observed
	// at dispatch time, keyed by SST id. A branched SST's DivideVersion is
	// bumped in place on the shared *SstableInfo by group splits that race
	// with an in-flight task, so isExpired must compare against this frozen
	// copy rather than the live, possibly-since-mutated field.
	DivideVersions map[uint64]uint64
}

// CompactTask is the descriptor handed to a compactor worker (§3).
type CompactTask struct {
	TaskId             uint64
	GroupId            uint64
	Type               TaskType
	Input              []InputLevel
	TargetLevel        int
	TargetSubLevelId   uint64 // used only when TargetLevel == 0 (tier picker output)
	TargetFileSize     uint64
	Compression        CompressionAlgorithm
	Watermark          uint64
	GcDeleteKeys       bool
	Status             TaskStatus
	Splits             []KeyRange
}

// InputSstIds returns the ids of every SST the task will consume.
func (t *CompactTask) InputSstIds() []uint64 {
	var ids []uint64
	for _, lvl := range t.Input {
		for _, sst := range lvl.Tables {
			ids = append(ids, sst.Id)
		}
	}
	return ids
}

// PinnedVersion records a live worker's hold against version GC.
type PinnedVersion struct {
	ContextId        uint64
	MinPinnedVersionId uint64
}

// PinnedSnapshot records a live worker's hold against epoch GC.
type PinnedSnapshot struct {
	ContextId             uint64
	MinimalPinnedEpoch uint64
}

// TaskAssignment binds a pending task to its assignee, plus the
// heartbeat deadline the manager's liveness loop checks against.
type TaskAssignment struct {
	Task              *CompactTask
	ContextId         uint64
	HeartbeatDeadline int64 // unix nanos
}

// HummockSnapshot is the pair of epochs handed back by pin/get-epoch
// calls (§4.8).
type HummockSnapshot struct {
	CommittedEpoch uint64
	CurrentEpoch   uint64
}
