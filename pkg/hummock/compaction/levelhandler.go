// SPDX-License-Identifier: AGPL-3.0-only

package compaction

// LevelHandler tracks, for a single level, which SSTs are currently
// locked by pending compaction tasks (§4.1). It is exclusively owned by
// its CompactStatus and must only be mutated while the manager holds the
// "compaction" write lock.
type LevelHandler struct {
	LevelIdx int

	// pendingBySst maps a locked sst id to the task id that locked it and
	// the level it will land on.
	pendingBySst map[uint64]pendingEntry
	// taskToSsts is the reverse index used by RemoveTask and
	// PendingTaskIds to sweep an entire task's locks in one pass.
	taskToSsts map[uint64][]uint64
}

type pendingEntry struct {
	taskID      uint64
	targetLevel int
}

// NewLevelHandler returns an empty handler for levelIdx.
func NewLevelHandler(levelIdx int) *LevelHandler {
	return &LevelHandler{
		LevelIdx:     levelIdx,
		pendingBySst: make(map[uint64]pendingEntry),
		taskToSsts:   make(map[uint64][]uint64),
	}
}

// AddPendingTask records that taskID locks ssts, destined for targetLevel.
// An sst id already locked by another task is a caller bug (§4.1
// invariant); it is overwritten defensively rather than panicking, since
// the picker that produced the candidate set is responsible for
// deduplication against already-locked ids.
func (h *LevelHandler) AddPendingTask(taskID uint64, targetLevel int, ssts []uint64) {
	h.taskToSsts[taskID] = append(h.taskToSsts[taskID], ssts...)
	for _, id := range ssts {
		h.pendingBySst[id] = pendingEntry{taskID: taskID, targetLevel: targetLevel}
	}
}

// RemoveTask drops every sst locked by taskID. Idempotent on an unknown
// task id.
func (h *LevelHandler) RemoveTask(taskID uint64) {
	ssts, ok := h.taskToSsts[taskID]
	if !ok {
		return
	}
	for _, id := range ssts {
		if e, ok := h.pendingBySst[id]; ok && e.taskID == taskID {
			delete(h.pendingBySst, id)
		}
	}
	delete(h.taskToSsts, taskID)
}

// PendingTaskIDBySst returns the task id (if any) currently locking sstID.
func (h *LevelHandler) PendingTaskIDBySst(sstID uint64) (uint64, bool) {
	e, ok := h.pendingBySst[sstID]
	if !ok {
		return 0, false
	}
	return e.taskID, true
}

// IsPending reports whether sstID is currently locked by any pending task.
func (h *LevelHandler) IsPending(sstID uint64) bool {
	_, ok := h.pendingBySst[sstID]
	return ok
}

// PendingTaskIds returns every task id with an outstanding lock on this
// level, used by cancellation sweeps (e.g. on group split, §4.7).
func (h *LevelHandler) PendingTaskIds() []uint64 {
	ids := make([]uint64, 0, len(h.taskToSsts))
	for id := range h.taskToSsts {
		ids = append(ids, id)
	}
	return ids
}

// PendingFileCount returns the number of sst locks outstanding at this level.
func (h *LevelHandler) PendingFileCount() int {
	return len(h.pendingBySst)
}

// PendingEntry is a serializable snapshot of one locked sst (§6.1
// CompactStatus persistence).
type PendingEntry struct {
	SstId       uint64
	TaskId      uint64
	TargetLevel int
}

// Snapshot returns every currently locked sst, for persistence.
func (h *LevelHandler) Snapshot() []PendingEntry {
	out := make([]PendingEntry, 0, len(h.pendingBySst))
	for sst, e := range h.pendingBySst {
		out = append(out, PendingEntry{SstId: sst, TaskId: e.taskID, TargetLevel: e.targetLevel})
	}
	return out
}

// Restore rebuilds a handler's locks from a persisted snapshot (§6.1
// startup replay).
func (h *LevelHandler) Restore(entries []PendingEntry) {
	for _, e := range entries {
		h.taskToSsts[e.TaskId] = append(h.taskToSsts[e.TaskId], e.SstId)
		h.pendingBySst[e.SstId] = pendingEntry{taskID: e.TaskId, targetLevel: e.TargetLevel}
	}
}
