// SPDX-License-Identifier: AGPL-3.0-only

package compaction

import "github.com/risingwavelabs/hummock/pkg/hummock/core"

// CompactStatus is the per-group aggregate of level handlers plus the
// picker chain's bookkeeping; it is the unit the manager persists to the
// metastore's compact_status/{group_id} namespace (§4.5, §6.1).
type CompactStatus struct {
	GroupId  uint64
	Handlers map[int]*LevelHandler // keyed by level index, 0 == L0
}

// NewCompactStatus returns an empty status with handlers for L0..maxLevel.
func NewCompactStatus(groupID uint64, maxLevel int) *CompactStatus {
	cs := &CompactStatus{GroupId: groupID, Handlers: make(map[int]*LevelHandler, maxLevel+1)}
	for i := 0; i <= maxLevel; i++ {
		cs.Handlers[i] = NewLevelHandler(i)
	}
	return cs
}

// GetCompactTask runs selector against levels, and on success locks the
// affected level handlers before returning the filled-in descriptor
// (§4.5). watermark is the caller-supplied oldest pinned snapshot.
func (cs *CompactStatus) GetCompactTask(
	levels *core.Levels,
	taskID uint64,
	watermark uint64,
	cfg core.CompactionConfig,
	selector LevelSelector,
	stats *LocalPickerStatistic,
) (*core.CompactTask, bool) {
	input, taskType, ok := selector.PickCompaction(cs.GroupId, levels, cs.Handlers, cfg, stats)
	if !ok {
		return nil, false
	}

	for _, lvl := range input.InputLevels {
		h, ok := cs.Handlers[lvl.LevelIdx]
		if !ok {
			h = NewLevelHandler(lvl.LevelIdx)
			cs.Handlers[lvl.LevelIdx] = h
		}
		ids := make([]uint64, len(lvl.Tables))
		for i, t := range lvl.Tables {
			ids[i] = t.Id
		}
		h.AddPendingTask(taskID, input.TargetLevel, ids)
	}

	task := &core.CompactTask{
		TaskId:           taskID,
		GroupId:          cs.GroupId,
		Type:             taskType,
		Input:            input.InputLevels,
		TargetLevel:      input.TargetLevel,
		TargetSubLevelId: input.TargetSubLevelId,
		TargetFileSize:   TargetFileSize(cfg, input.TargetLevel),
		Compression:      CompressionFor(cfg, input.TargetLevel),
		Watermark:        watermark,
		GcDeleteKeys:     input.TargetLevel == cfg.MaxLevel,
		Status:           core.TaskStatusPending,
		Splits:           []core.KeyRange{core.InfiniteKeyRange()},
	}
	return task, true
}

// ReportCompactTask removes the locks held by task's input levels
// regardless of outcome (§4.5).
func (cs *CompactStatus) ReportCompactTask(task *core.CompactTask) {
	for _, lvl := range task.Input {
		if h, ok := cs.Handlers[lvl.LevelIdx]; ok {
			h.RemoveTask(task.TaskId)
		}
	}
}

// CancelCompactionTasksIf atomically removes pending task locks for
// every task id across all level handlers for which predicate returns
// true, and returns the count of tasks canceled.
func (cs *CompactStatus) CancelCompactionTasksIf(predicate func(taskID uint64) bool) int {
	canceled := make(map[uint64]struct{})
	for _, h := range cs.Handlers {
		for _, taskID := range h.PendingTaskIds() {
			if predicate(taskID) {
				canceled[taskID] = struct{}{}
			}
		}
	}
	for taskID := range canceled {
		for _, h := range cs.Handlers {
			h.RemoveTask(taskID)
		}
	}
	return len(canceled)
}

// IsTrivialMoveTask reports whether task is eligible for local, bypassed
// execution (§4.5): a single, non-overlapping source level or sublevel
// moving to an adjacent target level that has no overlapping tables of
// its own. The non-overlapping requirement applies to L0 sublevels too —
// a raw-commit sublevel is Overlapping and never qualifies, but a
// tier-compaction output sublevel is NonOverlapping and can trivially
// move into an empty base level.
//
// Target emptiness is not re-checked here: every Picker in this package
// only appends a second InputLevel when it actually finds overlapping
// target-level tables, so len(task.Input) == 1 already means the target
// contributed nothing.
func IsTrivialMoveTask(task *core.CompactTask) bool {
	if len(task.Input) != 1 {
		return false
	}
	src := task.Input[0]
	if src.LevelType != core.LevelTypeNonOverlapping {
		return false
	}
	if task.TargetLevel != src.LevelIdx+1 && task.TargetLevel != src.LevelIdx-1 {
		return false
	}
	return len(src.Tables) > 0
}
