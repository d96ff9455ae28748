// SPDX-License-Identifier: AGPL-3.0-only

package manager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/risingwavelabs/hummock/pkg/hummock/compaction"
	"github.com/risingwavelabs/hummock/pkg/hummock/core"
)

// seedGroupWithL0 registers a group and drops n single-sst L0 sublevels
// into it directly, bypassing CommitEpoch, so a tier-compaction picker
// has enough sublevels to fire.
func seedGroupWithL0(t *testing.T, m *Manager, groupID uint64, cfg core.CompactionConfig, n int) {
	t.Helper()
	_, err := m.RegisterNewGroup(context.Background(), groupID, cfg, []uint32{1})
	require.NoError(t, err)

	levels := m.groups.Levels(groupID)
	for i := 0; i < n; i++ {
		levels.L0.SubLevels = append(levels.L0.SubLevels, &core.SubLevel{
			SubLevelId: uint64(i + 1),
			Tables:     []*core.SstableInfo{{Id: uint64(i + 1), TableIds: []uint32{1}, FileSize: 1 << 20}},
			TotalFileSize: 1 << 20,
		})
	}
}

func TestGetCompactTaskAssignReportSuccessCycle(t *testing.T) {
	m := newTestManager(t)
	cfg := core.DefaultCompactionConfig()
	cfg.Level0TierCompactFileNumber = 1
	cfg.TargetFileSizeBase = 1
	seedGroupWithL0(t, m, 1, cfg, 3)

	sel := &compaction.DynamicLevelSelector{Overlap: &compaction.RangeOverlapStrategy{}}
	task, ok, err := m.GetCompactTask(context.Background(), 1, sel)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, core.TaskStatusPending, task.Status)

	require.NoError(t, m.AssignCompactionTask(context.Background(), task, 7))
	require.Equal(t, core.TaskStatusAssigned, task.Status)

	// Assigning the same task id twice must fail.
	err = m.AssignCompactionTask(context.Background(), task, 8)
	require.ErrorIs(t, err, ErrCompactionTaskAlreadyAssigned)

	assigned, err := m.ReportCompactTask(context.Background(), 7, task.TaskId, core.TaskStatusSuccess, task.Input, task.TargetLevel, task.TargetSubLevelId)
	require.NoError(t, err)
	require.True(t, assigned)
	require.Equal(t, core.TaskStatusSuccess, task.Status)

	// The level handler lock must be released on report.
	status := m.statusFor(1, cfg.MaxLevel)
	for _, sst := range task.InputSstIds() {
		require.False(t, status.Handlers[0].IsPending(sst))
	}
}

func TestReportCompactTaskIgnoresWrongContext(t *testing.T) {
	m := newTestManager(t)
	cfg := core.DefaultCompactionConfig()
	cfg.Level0TierCompactFileNumber = 1
	cfg.TargetFileSizeBase = 1
	seedGroupWithL0(t, m, 1, cfg, 2)

	sel := &compaction.DynamicLevelSelector{Overlap: &compaction.RangeOverlapStrategy{}}
	task, ok, err := m.GetCompactTask(context.Background(), 1, sel)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, m.AssignCompactionTask(context.Background(), task, 7))

	assigned, err := m.ReportCompactTask(context.Background(), 999, task.TaskId, core.TaskStatusSuccess, task.Input, task.TargetLevel, task.TargetSubLevelId)
	require.NoError(t, err)
	require.False(t, assigned, "a report from the wrong context must be ignored")
}

func TestReportCompactTaskUnknownTaskIsNoop(t *testing.T) {
	m := newTestManager(t)
	assigned, err := m.ReportCompactTask(context.Background(), 1, 12345, core.TaskStatusSuccess, nil, 0, 0)
	require.NoError(t, err)
	require.False(t, assigned)
}

func TestCancelPendingTaskReleasesLocks(t *testing.T) {
	m := newTestManager(t)
	cfg := core.DefaultCompactionConfig()
	cfg.Level0TierCompactFileNumber = 1
	cfg.TargetFileSizeBase = 1
	seedGroupWithL0(t, m, 1, cfg, 2)

	sel := &compaction.DynamicLevelSelector{Overlap: &compaction.RangeOverlapStrategy{}}
	task, ok, err := m.GetCompactTask(context.Background(), 1, sel)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, m.CancelPendingTask(context.Background(), task, core.TaskStatusAssignFailCanceled))
	require.Equal(t, core.TaskStatusAssignFailCanceled, task.Status)

	status := m.statusFor(1, cfg.MaxLevel)
	for _, sst := range task.InputSstIds() {
		require.False(t, status.Handlers[0].IsPending(sst))
	}
}

func TestCheckHeartbeatsCancelsExpiredAssignment(t *testing.T) {
	m := newTestManager(t)
	cfg := core.DefaultCompactionConfig()
	cfg.Level0TierCompactFileNumber = 1
	cfg.TargetFileSizeBase = 1
	seedGroupWithL0(t, m, 1, cfg, 2)

	sel := &compaction.DynamicLevelSelector{Overlap: &compaction.RangeOverlapStrategy{}}
	task, ok, err := m.GetCompactTask(context.Background(), 1, sel)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, m.AssignCompactionTask(context.Background(), task, 7))

	old := nowFunc
	defer func() { nowFunc = old }()
	nowFunc = func() time.Time { return old().Add(time.Hour) }

	m.checkHeartbeats(context.Background())
	require.Equal(t, core.TaskStatusHeartbeatCanceled, task.Status)
}

func TestHeartbeatUnknownTask(t *testing.T) {
	m := newTestManager(t)
	err := m.Heartbeat(4242)
	require.ErrorIs(t, err, ErrTaskNotFound)
}

// TestReportCompactTaskExpiresAfterConcurrentSplit exercises §4.8's
// isExpired check: a task dispatched against an SST that a concurrent
// SplitGroup then branches must be forced to InvalidGroupCanceled on
// report, with no version delta applied, even though both input SSTs
// are the very same *core.SstableInfo pointers the split mutates in
// place.
func TestReportCompactTaskExpiresAfterConcurrentSplit(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	cfg := core.DefaultCompactionConfig()

	_, err := m.RegisterNewGroup(ctx, 1, cfg, []uint32{10})
	require.NoError(t, err)

	levels := m.groups.Levels(1)
	levels.Levels[0].Tables = []*core.SstableInfo{{Id: 100, TableIds: []uint32{10}}}
	levels.Levels[1].Tables = []*core.SstableInfo{{Id: 200, TableIds: []uint32{10}}}

	sel := &compaction.ManualCompactionSelector{
		Option:  compaction.ManualCompactionOption{StartLevel: 1, SstIds: map[uint64]struct{}{100: {}}},
		Overlap: &compaction.RangeOverlapStrategy{},
	}
	task, ok, err := m.GetCompactTask(ctx, 1, sel)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, task.Input, 2, "L2's overlapping table 200 must be pulled in as a second input level")

	require.NoError(t, m.AssignCompactionTask(ctx, task, 7))

	// A group split races the in-flight task, branching both its input
	// SSTs and bumping their DivideVersion in place.
	require.NoError(t, m.SplitGroup(ctx, 1, 2, []uint32{10}))

	versionBeforeReport := m.versioning.current.Id
	assigned, err := m.ReportCompactTask(ctx, 7, task.TaskId, core.TaskStatusSuccess, task.Input, task.TargetLevel, task.TargetSubLevelId)
	require.NoError(t, err)
	require.True(t, assigned)
	require.Equal(t, core.TaskStatusInvalidGroupCanceled, task.Status)
	require.Equal(t, versionBeforeReport, m.versioning.current.Id, "an expired task's Success report must not advance the version")
}

func TestHeartbeatExtendsDeadline(t *testing.T) {
	m := newTestManager(t)
	cfg := core.DefaultCompactionConfig()
	cfg.Level0TierCompactFileNumber = 1
	cfg.TargetFileSizeBase = 1
	seedGroupWithL0(t, m, 1, cfg, 2)

	sel := &compaction.DynamicLevelSelector{Overlap: &compaction.RangeOverlapStrategy{}}
	task, ok, err := m.GetCompactTask(context.Background(), 1, sel)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, m.AssignCompactionTask(context.Background(), task, 7))

	before := m.assignments[task.TaskId].HeartbeatDeadline
	time.Sleep(time.Millisecond)
	require.NoError(t, m.Heartbeat(task.TaskId))
	after := m.assignments[task.TaskId].HeartbeatDeadline
	require.Greater(t, after, before)
}
