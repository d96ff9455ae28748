// SPDX-License-Identifier: AGPL-3.0-only

package manager

import (
	"context"
	"time"

	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/risingwavelabs/hummock/pkg/hummock/compaction"
	"github.com/risingwavelabs/hummock/pkg/hummock/core"
	"github.com/risingwavelabs/hummock/pkg/hummock/hummockpb"
	"github.com/risingwavelabs/hummock/pkg/hummock/metastore"
	"github.com/risingwavelabs/hummock/pkg/hummock/notify"
)

func (m *Manager) statusFor(groupID uint64, maxLevel int) *compaction.CompactStatus {
	cs, ok := m.statuses[groupID]
	if !ok {
		cs = compaction.NewCompactStatus(groupID, maxLevel)
		m.statuses[groupID] = cs
	}
	return cs
}

// GetCompactTask implements §4.8 get_compact_task. On a trivial-move
// result it applies the move directly and returns (nil, false, nil); on
// an ordinary pick it returns the Pending task descriptor for dispatch;
// when the selector finds nothing it returns (nil, false, nil) too.
func (m *Manager) GetCompactTask(ctx context.Context, groupID uint64, selector compaction.LevelSelector) (*core.CompactTask, bool, error) {
	m.compactionMu.Lock()
	defer m.compactionMu.Unlock()

	g := m.groups.Group(groupID)
	if g == nil {
		return nil, false, errors.Wrapf(ErrUnknownGroup, "group %d", groupID)
	}
	levels := m.groups.Levels(groupID)
	stats := &compaction.LocalPickerStatistic{}

	m.versioningMu.RLock()
	watermark := m.versioning.minPinnedSnapshotEpoch()
	m.versioningMu.RUnlock()

	taskID, err := m.taskSeq.Next(ctx, "compact_task")
	if err != nil {
		return nil, false, err
	}

	status := m.statusFor(groupID, g.Config.MaxLevel)
	task, ok := status.GetCompactTask(levels, taskID, watermark, g.Config, selector, stats)
	if !ok {
		return nil, false, nil
	}

	if compaction.IsTrivialMoveTask(task) {
		if err := m.applyTrivialMove(ctx, status, task); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}

	if err := m.persistCompactStatus(ctx, status); err != nil {
		status.ReportCompactTask(task)
		return nil, false, err
	}
	return task, true, nil
}

// applyTrivialMove bypasses the compactor round trip (§4.5, §4.8): marks
// the task Success immediately, persists the resulting delta, and
// applies it to the in-memory version.
func (m *Manager) applyTrivialMove(ctx context.Context, status *compaction.CompactStatus, task *core.CompactTask) error {
	task.Status = core.TaskStatusSuccess
	delta, gcSstIds := m.buildSuccessDelta(task)
	delta.TrivialMove = true
	delta.GcSstIds = gcSstIds

	m.versioningMu.Lock()
	defer m.versioningMu.Unlock()

	deltaPB := hummockpb.VersionDeltaToPB(delta)
	raw, err := hummockpb.Marshal(deltaPB)
	if err != nil {
		status.ReportCompactTask(task)
		return err
	}
	if err := m.store.Txn(ctx, metastore.Put(metastore.NamespaceDeltas, key(delta.Id), raw)); err != nil {
		status.ReportCompactTask(task)
		return errors.Wrap(err, "hummock: trivial move metastore txn")
	}
	status.ReportCompactTask(task)
	if err := m.versioning.applyDelta(delta); err != nil {
		level.Error(m.logger).Log("msg", "trivial move delta failed to apply after persisting", "err", err)
		return err
	}
	m.metrics.currentVersionId.Set(float64(m.versioning.current.Id))
	m.notify.Publish(notify.Event{Kind: notify.EventVersionDelta, VersionID: delta.Id, Payload: delta})
	return nil
}

// buildSuccessDelta folds a terminal-Success task's input removals and
// target-level insertion into a VersionDelta, and returns the gc_sst_ids:
// every input sst that was not branched, plus every branched one whose
// branched-index entry this removal just dropped.
func (m *Manager) buildSuccessDelta(task *core.CompactTask) (*core.VersionDelta, []uint64) {
	m.versioningMu.RLock()
	prevID := m.versioning.current.Id
	m.versioningMu.RUnlock()

	delta := core.NewVersionDelta(prevID, prevID+1)
	delta.SafeEpoch = task.Watermark
	gd := delta.GroupDeltaFor(task.GroupId)

	var gcSstIds []uint64
	branched := m.groups.Branched()
	for _, lvl := range task.Input {
		ids := make([]uint64, 0, len(lvl.Tables))
		for _, t := range lvl.Tables {
			ids = append(ids, t.Id)
		}
		if lvl.LevelIdx == 0 {
			gd.RemovedL0[lvl.SubLevelId] = append(gd.RemovedL0[lvl.SubLevelId], ids...)
		} else {
			gd.RemovedLevels[lvl.LevelIdx] = append(gd.RemovedLevels[lvl.LevelIdx], ids...)
		}
		for _, id := range ids {
			wasBranched := branched.IsBranched(id)
			branched.Remove(id, task.GroupId)
			if wasBranched && !branched.IsBranched(id) {
				gcSstIds = append(gcSstIds, id)
			} else if !wasBranched {
				gcSstIds = append(gcSstIds, id)
			}
		}
	}

	for _, lvl := range task.Input {
		if task.TargetLevel == 0 {
			gd.InsertedL0[task.TargetSubLevelId] = append(gd.InsertedL0[task.TargetSubLevelId], lvl.Tables...)
			// Tier-compaction output is a freshly merged, key-sorted run:
			// unlike a raw commit's sublevel, it never overlaps itself.
			gd.InsertedL0Type[task.TargetSubLevelId] = core.LevelTypeNonOverlapping
		} else {
			gd.InsertedLevels[task.TargetLevel] = append(gd.InsertedLevels[task.TargetLevel], lvl.Tables...)
		}
	}
	return delta, gcSstIds
}

func (m *Manager) persistCompactStatus(ctx context.Context, status *compaction.CompactStatus) error {
	pb := compactStatusToPB(status)
	raw, err := hummockpb.Marshal(pb)
	if err != nil {
		return err
	}
	return m.store.Txn(ctx, metastore.Put(metastore.NamespaceCompactStatus, key(status.GroupId), raw))
}

func compactStatusToPB(cs *compaction.CompactStatus) *hummockpb.CompactStatus {
	out := &hummockpb.CompactStatus{GroupId: cs.GroupId, Handlers: make(map[int]hummockpb.LevelHandlerState, len(cs.Handlers))}
	for idx, h := range cs.Handlers {
		state := hummockpb.LevelHandlerState{LevelIdx: idx, PendingBySst: map[uint64]uint64{}, TargetLevel: map[uint64]int{}}
		for _, e := range h.Snapshot() {
			state.PendingBySst[e.SstId] = e.TaskId
			state.TargetLevel[e.SstId] = e.TargetLevel
		}
		out.Handlers[idx] = state
	}
	return out
}

// AssignCompactionTask implements §4.8 assign_compaction_task: records
// the assignment (failing if one already exists), marks the task
// Assigned, and starts its heartbeat deadline.
func (m *Manager) AssignCompactionTask(ctx context.Context, task *core.CompactTask, contextID uint64) error {
	m.compactionMu.Lock()
	defer m.compactionMu.Unlock()

	if _, exists := m.assignments[task.TaskId]; exists {
		return ErrCompactionTaskAlreadyAssigned
	}
	task.Status = core.TaskStatusAssigned
	assignment := &core.TaskAssignment{
		Task: task, ContextId: contextID,
		HeartbeatDeadline: nowFunc().Add(m.cfg.HeartbeatTTL).UnixNano(),
	}

	pb := hummockpb.TaskAssignmentToPB(assignment)
	raw, err := hummockpb.Marshal(pb)
	if err != nil {
		return err
	}
	if err := m.store.Txn(ctx, metastore.Put(metastore.NamespaceAssignments, key(task.TaskId), raw)); err != nil {
		return errors.Wrap(err, "hummock: assign_compaction_task metastore txn")
	}
	m.assignments[task.TaskId] = assignment
	m.metrics.tasksAssigned.Inc()
	return nil
}

// ReportCompactTask implements §4.8 report_compact_task.
func (m *Manager) ReportCompactTask(ctx context.Context, contextID uint64, taskID uint64, status core.TaskStatus, input []core.InputLevel, targetLevel int, targetSubLevelID uint64) (assigned bool, err error) {
	m.compactionMu.Lock()
	defer m.compactionMu.Unlock()

	assignment, ok := m.assignments[taskID]
	if !ok {
		return false, nil
	}
	if contextID != 0 && assignment.ContextId != contextID {
		return false, nil
	}
	if assignment.Task.Status == core.TaskStatusPending {
		return false, errors.Errorf("hummock: task %d report received while still Pending", taskID)
	}

	task := assignment.Task
	task.Status = status

	cs := m.statusFor(task.GroupId, 0)
	if m.isExpired(task) {
		task.Status = core.TaskStatusInvalidGroupCanceled
	}

	var ops []metastore.Op
	var appliedDelta *core.VersionDelta
	var gcSstIds []uint64

	if task.Status == core.TaskStatusSuccess {
		appliedDelta, gcSstIds = m.buildSuccessDelta(task)
		appliedDelta.GcSstIds = gcSstIds
		deltaPB := hummockpb.VersionDeltaToPB(appliedDelta)
		deltaRaw, err := hummockpb.Marshal(deltaPB)
		if err != nil {
			return true, err
		}
		ops = append(ops, metastore.Put(metastore.NamespaceDeltas, key(appliedDelta.Id), deltaRaw))
	}

	cs.ReportCompactTask(task)
	delete(m.assignments, taskID)
	ops = append(ops, metastore.Delete(metastore.NamespaceAssignments, key(taskID)))

	statusPB := compactStatusToPB(cs)
	statusRaw, err := hummockpb.Marshal(statusPB)
	if err != nil {
		return true, err
	}
	ops = append(ops, metastore.Put(metastore.NamespaceCompactStatus, key(task.GroupId), statusRaw))

	if appliedDelta != nil {
		m.versioningMu.Lock()
		defer m.versioningMu.Unlock()
	}

	if err := m.store.Txn(ctx, ops...); err != nil {
		return true, errors.Wrap(err, "hummock: report_compact_task metastore txn")
	}

	if appliedDelta != nil {
		if m.versioning.current.SafeEpoch < task.Watermark {
			appliedDelta.SafeEpoch = task.Watermark
		}
		if err := m.versioning.applyDelta(appliedDelta); err != nil {
			level.Error(m.logger).Log("msg", "report_compact_task delta failed to apply after persisting", "err", err)
			return true, err
		}
		m.metrics.currentVersionId.Set(float64(m.versioning.current.Id))
		m.metrics.tasksSucceeded.Inc()
		m.notify.Publish(notify.Event{Kind: notify.EventVersionDelta, VersionID: appliedDelta.Id, Payload: appliedDelta})
	} else if task.Status.IsCanceled() {
		m.metrics.tasksCanceled.WithLabelValues(task.Status.String()).Inc()
	}
	return true, nil
}

// CancelPendingTask releases a task's level-handler locks without ever
// having created a TaskAssignment, for the AssignFailCanceled and
// SendFailCanceled paths of §4.9 where assignment itself is what failed.
func (m *Manager) CancelPendingTask(ctx context.Context, task *core.CompactTask, status core.TaskStatus) error {
	m.compactionMu.Lock()
	defer m.compactionMu.Unlock()

	task.Status = status
	cs := m.statusFor(task.GroupId, 0)
	cs.ReportCompactTask(task)
	m.metrics.tasksCanceled.WithLabelValues(status.String()).Inc()
	return m.persistCompactStatus(ctx, cs)
}

// isExpired implements §4.8's expiry check: any input sst now branched
// with a higher divide_version than at dispatch, or its group gone.
//
// The comparison must use each input's dispatch-time DivideVersions
// snapshot, not the live sst.DivideVersion field: a CompactTask's Input
// holds the same *core.SstableInfo pointers that live in the group's
// levels, and group.SplitGroup's branch step bumps DivideVersion in
// place on that shared object. Reading the live field here would compare
// the post-split value against itself and never detect the race.
func (m *Manager) isExpired(task *core.CompactTask) bool {
	if m.groups.Group(task.GroupId) == nil {
		return true
	}
	branched := m.groups.Branched()
	for _, lvl := range task.Input {
		for _, sst := range lvl.Tables {
			dispatched := lvl.DivideVersions[sst.Id]
			if v, ok := branched.Get(sst.Id, task.GroupId); ok && v > dispatched {
				return true
			}
		}
	}
	return false
}

// checkHeartbeats implements §4.8's heartbeat loop: every
// HeartbeatInterval, cancel any assignment whose deadline has passed.
// It reports through ReportCompactTask with contextID 0, which skips the
// assignee-equality check: the manager itself is cancelling the task.
func (m *Manager) checkHeartbeats(ctx context.Context) {
	m.compactionMu.Lock()
	now := nowFunc().UnixNano()
	var expired []*core.TaskAssignment
	for _, a := range m.assignments {
		if a.HeartbeatDeadline <= now {
			expired = append(expired, a)
		}
	}
	m.compactionMu.Unlock()

	for _, a := range expired {
		a.Task.Status = core.TaskStatusHeartbeatCanceled
		if _, err := m.ReportCompactTask(ctx, 0, a.Task.TaskId, core.TaskStatusHeartbeatCanceled, a.Task.Input, a.Task.TargetLevel, a.Task.TargetSubLevelId); err != nil {
			level.Warn(m.logger).Log("msg", "failed to cancel expired compaction task", "task_id", a.Task.TaskId, "err", err)
			continue
		}
		m.metrics.heartbeatExpirations.Inc()
	}
}

// Heartbeat resets an assignment's TTL, implementing §6.2
// CompactorHeartbeat.
func (m *Manager) Heartbeat(taskID uint64) error {
	m.compactionMu.Lock()
	defer m.compactionMu.Unlock()
	a, ok := m.assignments[taskID]
	if !ok {
		return ErrTaskNotFound
	}
	a.HeartbeatDeadline = nowFunc().Add(m.cfg.HeartbeatTTL).UnixNano()
	return nil
}

// runCheckpoint implements §4.6 proceed_version_checkpoint, invoked
// periodically by the background worker (§9). Every pass ends by
// publishing the configured periodic selector events.
func (m *Manager) runCheckpoint(ctx context.Context) error {
	defer m.triggerPeriodicSelectors()

	m.versioningMu.Lock()
	advanced := m.versioning.proceedVersionCheckpoint()
	checkpointID := m.versioning.checkpointVersion
	ssts, deltaIds := m.versioning.drainDeletable()
	m.versioningMu.Unlock()

	if !advanced && len(deltaIds) == 0 {
		return nil
	}
	m.metrics.checkpointVersionId.Set(float64(checkpointID))

	var ops []metastore.Op
	for _, id := range deltaIds {
		ops = append(ops, metastore.Delete(metastore.NamespaceDeltas, key(id)))
	}
	if len(ops) == 0 {
		return nil
	}
	if err := m.store.Txn(ctx, ops...); err != nil {
		// Put the drained ids back; nothing has been lost, only deferred.
		m.versioningMu.Lock()
		m.versioning.sstsToDelete = append(m.versioning.sstsToDelete, ssts...)
		m.versioning.deltasToDelete = append(m.versioning.deltasToDelete, deltaIds...)
		m.versioningMu.Unlock()
		return errors.Wrap(err, "hummock: checkpoint delta GC txn")
	}
	level.Debug(m.logger).Log("msg", "checkpoint advanced", "checkpoint_version", checkpointID, "deltas_collected", len(deltaIds), "ssts_collected", len(ssts))
	return nil
}

// PeriodicCompactionRequest is the payload of a notify.EventPeriodicCompaction
// event: a (group, task type) pair a scheduler subscriber should enqueue.
type PeriodicCompactionRequest struct {
	GroupId  uint64
	TaskType core.TaskType
}

// triggerPeriodicSelectors publishes one EventPeriodicCompaction per
// configured periodic selector type and live compaction group, letting
// a scheduler subscriber drive ttl/space-reclaim compactions without
// the manager depending on the scheduler package (§4.4, §4.9).
func (m *Manager) triggerPeriodicSelectors() {
	types := m.cfg.periodicTaskTypes()
	if len(types) == 0 {
		return
	}
	m.compactionMu.RLock()
	groupIDs := m.groups.GroupIds()
	m.compactionMu.RUnlock()

	for _, gid := range groupIDs {
		for _, tt := range types {
			m.notify.Publish(notify.Event{
				Kind:      notify.EventPeriodicCompaction,
				VersionID: gid,
				Payload:   PeriodicCompactionRequest{GroupId: gid, TaskType: tt},
			})
		}
	}
}

// nowFunc is overridden in tests.
var nowFunc = time.Now
