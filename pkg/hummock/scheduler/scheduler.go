// SPDX-License-Identifier: AGPL-3.0-only

// Package scheduler implements the Compaction Scheduler & Compactor Pool
// of SPEC_FULL.md §4.9: a pool of registered compactor workers dispatched
// against a coalescing request channel, single-threaded and cooperative
// inside the meta service.
package scheduler

import (
	"context"
	"math/rand"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/risingwavelabs/hummock/pkg/hummock/compaction"
	"github.com/risingwavelabs/hummock/pkg/hummock/core"
)

// Request is a coalescible compaction request: duplicate (GroupId,
// TaskType) pairs collapse into one (§4.9).
type Request struct {
	GroupId  uint64
	Selector compaction.LevelSelector
	TaskType core.TaskType
}

// Orchestrator is the subset of manager.Manager the scheduler drives.
// Declared as an interface so the scheduler package does not import
// manager (which would create a cycle), mirroring how the teacher's
// Syncer/Grouper/Planner/Compactor interfaces decouple
// BucketCompactor from any one concrete implementation.
type Orchestrator interface {
	GetCompactTask(ctx context.Context, groupID uint64, selector compaction.LevelSelector) (*core.CompactTask, bool, error)
	AssignCompactionTask(ctx context.Context, task *core.CompactTask, contextID uint64) error
	CancelPendingTask(ctx context.Context, task *core.CompactTask, status core.TaskStatus) error
}

// Dispatcher sends an assigned task to its compactor and reports whether
// the send succeeded, abstracting the compactor RPC surface (§6.2),
// which is out of scope to implement concretely here.
type Dispatcher interface {
	Dispatch(ctx context.Context, contextID uint64, task *core.CompactTask) error
}

// compactorState is the pool's bookkeeping for one registered worker.
type compactorState struct {
	contextID          uint64
	maxTaskParallelism int
	currentLoad        int
}

// Pool tracks registered compactor workers and their load (§4.9).
type Pool struct {
	mu        sync.Mutex
	workers   map[uint64]*compactorState
	resumeCh  chan struct{}
}

// NewPool returns an empty compactor pool.
func NewPool() *Pool {
	return &Pool{workers: make(map[uint64]*compactorState), resumeCh: make(chan struct{}, 1)}
}

// Register adds or updates a compactor's capacity.
func (p *Pool) Register(contextID uint64, maxTaskParallelism int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.workers[contextID] = &compactorState{contextID: contextID, maxTaskParallelism: maxTaskParallelism}
	p.notifyResume()
}

// Unregister drops a compactor from the pool.
func (p *Pool) Unregister(contextID uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.workers, contextID)
}

// nextIdle picks the least-loaded compactor with spare capacity,
// breaking ties at random (§4.9 step 1).
func (p *Pool) nextIdle() (uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var candidates []*compactorState
	minLoad := -1
	for _, w := range p.workers {
		if w.currentLoad >= w.maxTaskParallelism {
			continue
		}
		if minLoad == -1 || w.currentLoad < minLoad {
			minLoad = w.currentLoad
			candidates = candidates[:0]
			candidates = append(candidates, w)
		} else if w.currentLoad == minLoad {
			candidates = append(candidates, w)
		}
	}
	if len(candidates) == 0 {
		return 0, false
	}
	pick := candidates[rand.Intn(len(candidates))]
	pick.currentLoad++
	return pick.contextID, true
}

func (p *Pool) release(contextID uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if w, ok := p.workers[contextID]; ok && w.currentLoad > 0 {
		w.currentLoad--
	}
	p.notifyResume()
}

// notifyResume wakes the scheduler when a formerly full pool becomes
// idle again (§4.9); must be called with p.mu held.
func (p *Pool) notifyResume() {
	select {
	case p.resumeCh <- struct{}{}:
	default:
	}
}

// Idle exposes the resume-notifier channel to the Scheduler.
func (p *Pool) Idle() <-chan struct{} { return p.resumeCh }

// Scheduler consumes coalesced Requests and drives them through
// GetCompactTask -> AssignCompactionTask -> Dispatch (§4.9).
type Scheduler struct {
	orchestrator Orchestrator
	dispatcher   Dispatcher
	pool         *Pool
	logger       log.Logger

	mu      sync.Mutex
	pending map[pendingKey]struct{}
	queue   chan Request
}

type pendingKey struct {
	groupID  uint64
	taskType core.TaskType
}

// NewScheduler returns a Scheduler with a coalescing queue of the given
// buffer size.
func NewScheduler(orchestrator Orchestrator, dispatcher Dispatcher, pool *Pool, logger log.Logger, queueSize int) *Scheduler {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Scheduler{
		orchestrator: orchestrator,
		dispatcher:   dispatcher,
		pool:         pool,
		logger:       logger,
		pending:      make(map[pendingKey]struct{}),
		queue:        make(chan Request, queueSize),
	}
}

// Enqueue submits a request, dropping it silently if an identical
// (group, task type) request is already queued (§4.9 coalescing).
func (s *Scheduler) Enqueue(req Request) {
	k := pendingKey{groupID: req.GroupId, taskType: req.TaskType}
	s.mu.Lock()
	if _, dup := s.pending[k]; dup {
		s.mu.Unlock()
		return
	}
	s.pending[k] = struct{}{}
	s.mu.Unlock()

	select {
	case s.queue <- req:
	default:
		s.mu.Lock()
		delete(s.pending, k)
		s.mu.Unlock()
		level.Warn(s.logger).Log("msg", "compaction scheduler queue full, dropping request", "group_id", req.GroupId)
	}
}

// Run drives the scheduler loop until ctx is canceled, single-threaded
// and cooperative as required by §4.9.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-s.queue:
			s.handle(ctx, req)
		case <-s.pool.Idle():
			// A worker freed up; nothing queued right now is a no-op.
		}
	}
}

func (s *Scheduler) handle(ctx context.Context, req Request) {
	k := pendingKey{groupID: req.GroupId, taskType: req.TaskType}
	s.mu.Lock()
	delete(s.pending, k)
	s.mu.Unlock()

	contextID, ok := s.pool.nextIdle()
	if !ok {
		// No idle compactor: the request is dropped. The pool's resume
		// notifier only wakes Run; it does not bring this request back.
		return
	}

	task, dispatched, err := s.orchestrator.GetCompactTask(ctx, req.GroupId, req.Selector)
	if err != nil {
		level.Warn(s.logger).Log("msg", "get_compact_task failed", "group_id", req.GroupId, "err", err)
		s.pool.release(contextID)
		return
	}
	if !dispatched {
		s.pool.release(contextID)
		return
	}

	if err := s.orchestrator.AssignCompactionTask(ctx, task, contextID); err != nil {
		level.Warn(s.logger).Log("msg", "assign_compaction_task failed", "task_id", task.TaskId, "err", err)
		if cancelErr := s.orchestrator.CancelPendingTask(ctx, task, core.TaskStatusAssignFailCanceled); cancelErr != nil {
			level.Warn(s.logger).Log("msg", "failed to cancel unassignable task", "task_id", task.TaskId, "err", cancelErr)
		}
		s.pool.release(contextID)
		return
	}

	if err := s.dispatcher.Dispatch(ctx, contextID, task); err != nil {
		level.Warn(s.logger).Log("msg", "dispatch to compactor failed", "task_id", task.TaskId, "context_id", contextID, "err", err)
		if cancelErr := s.orchestrator.CancelPendingTask(ctx, task, core.TaskStatusSendFailCanceled); cancelErr != nil {
			level.Warn(s.logger).Log("msg", "failed to cancel undispatchable task", "task_id", task.TaskId, "err", cancelErr)
		}
		s.pool.release(contextID)
		return
	}
}
