// SPDX-License-Identifier: AGPL-3.0-only

package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/risingwavelabs/hummock/pkg/hummock/compaction"
	"github.com/risingwavelabs/hummock/pkg/hummock/core"
)

// TestMain verifies that Scheduler.Run, the one long-lived goroutine this
// package spawns, always exits with its caller rather than leaking.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPoolNextIdleRespectsCapacity(t *testing.T) {
	p := NewPool()
	p.Register(1, 1)

	ctxID, ok := p.nextIdle()
	require.True(t, ok)
	require.Equal(t, uint64(1), ctxID)

	_, ok = p.nextIdle()
	require.False(t, ok, "the single worker's one slot is already in use")

	p.release(1)
	_, ok = p.nextIdle()
	require.True(t, ok)
}

func TestPoolUnregisterDropsWorker(t *testing.T) {
	p := NewPool()
	p.Register(1, 1)
	p.Unregister(1)
	_, ok := p.nextIdle()
	require.False(t, ok)
}

type fakeOrchestrator struct {
	mu           sync.Mutex
	task         *core.CompactTask
	dispatched   bool
	assignErr    error
	canceled     []core.TaskStatus
}

func (f *fakeOrchestrator) GetCompactTask(ctx context.Context, groupID uint64, selector compaction.LevelSelector) (*core.CompactTask, bool, error) {
	return f.task, f.dispatched, nil
}

func (f *fakeOrchestrator) AssignCompactionTask(ctx context.Context, task *core.CompactTask, contextID uint64) error {
	return f.assignErr
}

func (f *fakeOrchestrator) CancelPendingTask(ctx context.Context, task *core.CompactTask, status core.TaskStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = append(f.canceled, status)
	return nil
}

type fakeDispatcher struct {
	dispatchErr error
	calls       int
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, contextID uint64, task *core.CompactTask) error {
	f.calls++
	return f.dispatchErr
}

func TestSchedulerHandleDispatchesOnSuccess(t *testing.T) {
	pool := NewPool()
	pool.Register(7, 1)
	orch := &fakeOrchestrator{task: &core.CompactTask{TaskId: 1}, dispatched: true}
	disp := &fakeDispatcher{}
	s := NewScheduler(orch, disp, pool, nil, 4)

	s.handle(context.Background(), Request{GroupId: 1, TaskType: core.TaskTypeDynamic})

	require.Equal(t, 1, disp.calls)
	require.Empty(t, orch.canceled)
}

func TestSchedulerHandleCancelsOnAssignFailure(t *testing.T) {
	pool := NewPool()
	pool.Register(7, 1)
	orch := &fakeOrchestrator{task: &core.CompactTask{TaskId: 1}, dispatched: true, assignErr: require.AnError}
	disp := &fakeDispatcher{}
	s := NewScheduler(orch, disp, pool, nil, 4)

	s.handle(context.Background(), Request{GroupId: 1, TaskType: core.TaskTypeDynamic})

	require.Equal(t, 0, disp.calls)
	require.Equal(t, []core.TaskStatus{core.TaskStatusAssignFailCanceled}, orch.canceled)

	// Releasing the slot on failure must make the worker idle again.
	_, ok := pool.nextIdle()
	require.True(t, ok)
}

func TestSchedulerHandleCancelsOnDispatchFailure(t *testing.T) {
	pool := NewPool()
	pool.Register(7, 1)
	orch := &fakeOrchestrator{task: &core.CompactTask{TaskId: 1}, dispatched: true}
	disp := &fakeDispatcher{dispatchErr: require.AnError}
	s := NewScheduler(orch, disp, pool, nil, 4)

	s.handle(context.Background(), Request{GroupId: 1, TaskType: core.TaskTypeDynamic})

	require.Equal(t, []core.TaskStatus{core.TaskStatusSendFailCanceled}, orch.canceled)
}

func TestSchedulerEnqueueCoalescesDuplicateRequests(t *testing.T) {
	pool := NewPool()
	s := NewScheduler(&fakeOrchestrator{}, &fakeDispatcher{}, pool, nil, 4)

	req := Request{GroupId: 1, TaskType: core.TaskTypeDynamic}
	s.Enqueue(req)
	s.Enqueue(req)

	require.Len(t, s.queue, 1, "a duplicate (group, task type) request must be dropped while one is pending")
}

func TestSchedulerRunStopsOnContextCancel(t *testing.T) {
	pool := NewPool()
	s := NewScheduler(&fakeOrchestrator{}, &fakeDispatcher{}, pool, nil, 4)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
