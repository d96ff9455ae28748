// SPDX-License-Identifier: AGPL-3.0-only

// Package manager implements the Hummock Manager orchestrator of
// SPEC_FULL.md §4.8: pin/unpin, commit_epoch, compaction task
// assignment and reporting, heartbeat eviction, and checkpoint/GC
// triggering, on top of the Compaction Group Manager, the Versioning
// Store and the Meta Store Adapter.
package manager

import (
	"context"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/services"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/risingwavelabs/hummock/pkg/hummock/compaction"
	"github.com/risingwavelabs/hummock/pkg/hummock/core"
	"github.com/risingwavelabs/hummock/pkg/hummock/group"
	"github.com/risingwavelabs/hummock/pkg/hummock/hummockpb"
	"github.com/risingwavelabs/hummock/pkg/hummock/metastore"
	"github.com/risingwavelabs/hummock/pkg/hummock/notify"
)

// Manager is the Hummock Manager. It embeds services.Service so callers
// drive it the same way the teacher drives MultitenantCompactor.
type Manager struct {
	services.Service

	cfg     Config
	logger  log.Logger
	metrics *metrics
	store   metastore.Store
	sstSeq  *metastore.SequenceGenerator
	taskSeq *metastore.SequenceGenerator
	notify  *notify.Bus

	overlap compaction.OverlapStrategy

	// compactionMu covers CompactStatus + assignments + group membership,
	// including the group manager's branched-SST index. versioningMu
	// covers current version, delta log, pins, stats. When both are
	// needed, compaction is acquired first (§5).
	compactionMu sync.RWMutex
	groups       *group.Manager
	statuses     map[uint64]*compaction.CompactStatus
	assignments  map[uint64]*core.TaskAssignment

	versioningMu sync.RWMutex
	versioning   *versioningState

	shutdown chan struct{}
}

// New constructs a Manager around store and returns it unstarted; callers
// drive its lifecycle via services.StartAndAwaitRunning /
// StopAndAwaitTerminated, as with the teacher's MultitenantCompactor.
func New(cfg Config, store metastore.Store, logger log.Logger, reg prometheus.Registerer) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	m := &Manager{
		cfg:         cfg,
		logger:      logger,
		metrics:     newMetrics(reg),
		store:       store,
		sstSeq:      metastore.NewSequenceGenerator(store, cfg.SstIdSequenceChunkSize),
		taskSeq:     metastore.NewSequenceGenerator(store, cfg.SstIdSequenceChunkSize),
		notify:      notify.NewBus(),
		overlap:     &compaction.RangeOverlapStrategy{},
		groups:      group.NewManager(),
		statuses:    make(map[uint64]*compaction.CompactStatus),
		assignments: make(map[uint64]*core.TaskAssignment),
		versioning:  newVersioningState(),
		shutdown:    make(chan struct{}),
	}
	m.Service = services.NewBasicService(m.starting, m.running, m.stopping)
	return m, nil
}

// Notify exposes the notification bus for subscribers (§6.4).
func (m *Manager) Notify() *notify.Bus { return m.notify }

func (m *Manager) starting(ctx context.Context) error {
	level.Info(m.logger).Log("msg", "replaying hummock metastore state")
	if err := m.replay(ctx); err != nil {
		return errors.Wrap(err, "hummock: startup replay")
	}
	level.Info(m.logger).Log("msg", "hummock manager ready",
		"current_version", m.versioning.current.Id,
		"max_committed_epoch", m.versioning.current.MaxCommittedEpoch)
	return nil
}

func (m *Manager) running(ctx context.Context) error {
	heartbeat := time.NewTicker(m.cfg.HeartbeatInterval)
	checkpoint := time.NewTicker(m.cfg.CheckpointInterval)
	defer heartbeat.Stop()
	defer checkpoint.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.shutdown:
			return nil
		case <-heartbeat.C:
			m.checkHeartbeats(ctx)
		case <-checkpoint.C:
			if err := m.runCheckpoint(ctx); err != nil {
				level.Warn(m.logger).Log("msg", "checkpoint pass failed, will retry", "err", err)
			}
		}
	}
}

func (m *Manager) stopping(_ error) error {
	close(m.shutdown)
	level.Info(m.logger).Log("msg", "hummock manager stopped")
	return nil
}

// replay implements §6.1 startup replay: load versions, deltas, groups,
// compact statuses and stats, elect the highest loaded version as
// current, then fold forward any delta whose prev_id equals current.id.
// Pinned versions, pinned snapshots and task assignments are not loaded,
// so a restarted manager starts with no pins and no assignments; the id
// sequences load their watermark on first use.
func (m *Manager) replay(ctx context.Context) error {
	m.compactionMu.Lock()
	m.versioningMu.Lock()
	defer m.compactionMu.Unlock()
	defer m.versioningMu.Unlock()

	versions, err := m.store.List(ctx, metastore.NamespaceVersions)
	if err != nil {
		return err
	}
	var latest *core.HummockVersion
	for _, raw := range versions {
		var pb hummockpb.HummockVersion
		if err := hummockpb.Unmarshal(raw, &pb); err != nil {
			return errors.Wrap(err, "hummock: corrupt stored version")
		}
		v := hummockpb.HummockVersionFromPB(&pb)
		if latest == nil || v.Id > latest.Id {
			latest = v
		}
	}
	if latest == nil {
		latest = core.NewHummockVersion()
	}
	m.versioning.current = latest

	deltas, err := m.store.List(ctx, metastore.NamespaceDeltas)
	if err != nil {
		return err
	}
	for _, raw := range deltas {
		var pb hummockpb.VersionDelta
		if err := hummockpb.Unmarshal(raw, &pb); err != nil {
			return errors.Wrap(err, "hummock: corrupt stored delta")
		}
		d := hummockpb.VersionDeltaFromPB(&pb)
		m.versioning.deltas[d.Id] = d
	}
	for {
		next, ok := m.versioning.deltas[m.versioning.current.Id+1]
		if !ok || next.PrevId != m.versioning.current.Id {
			break
		}
		if err := m.versioning.applyDelta(next); err != nil {
			return err
		}
	}
	m.versioning.checkpointVersion = m.versioning.current.Id
	m.versioning.latestSnapshot.Store(core.HummockSnapshot{
		CommittedEpoch: m.versioning.current.MaxCommittedEpoch,
		CurrentEpoch:   m.versioning.current.MaxCommittedEpoch,
	})

	groups, err := m.store.List(ctx, metastore.NamespaceGroups)
	if err != nil {
		return err
	}
	groupMap := make(map[uint64]*core.CompactionGroup, len(groups))
	for _, raw := range groups {
		var pb hummockpb.CompactionGroup
		if err := hummockpb.Unmarshal(raw, &pb); err != nil {
			return errors.Wrap(err, "hummock: corrupt stored group")
		}
		g := hummockpb.CompactionGroupFromPB(&pb)
		groupMap[g.GroupId] = g
	}
	m.groups.Load(groupMap, m.versioning.current.Levels, core.NewBranchedSSTs())

	statuses, err := m.store.List(ctx, metastore.NamespaceCompactStatus)
	if err != nil {
		return err
	}
	for _, raw := range statuses {
		var pb hummockpb.CompactStatus
		if err := hummockpb.Unmarshal(raw, &pb); err != nil {
			return errors.Wrap(err, "hummock: corrupt stored compact status")
		}
		m.statuses[pb.GroupId] = compactStatusFromPB(&pb)
	}

	stats, ok, err := m.store.Get(ctx, metastore.NamespaceStats, "singleton")
	if err != nil {
		return err
	}
	if ok {
		var pb hummockpb.VersionStats
		if err := hummockpb.Unmarshal(stats, &pb); err != nil {
			return errors.Wrap(err, "hummock: corrupt stored stats")
		}
		m.versioning.stats = hummockpb.VersionStatsFromPB(&pb)
	}

	return nil
}

func compactStatusFromPB(p *hummockpb.CompactStatus) *compaction.CompactStatus {
	cs := &compaction.CompactStatus{GroupId: p.GroupId, Handlers: make(map[int]*compaction.LevelHandler, len(p.Handlers))}
	for idx, h := range p.Handlers {
		lh := compaction.NewLevelHandler(h.LevelIdx)
		entries := make([]compaction.PendingEntry, 0, len(h.PendingBySst))
		for sst, task := range h.PendingBySst {
			entries = append(entries, compaction.PendingEntry{SstId: sst, TaskId: task, TargetLevel: h.TargetLevel[sst]})
		}
		lh.Restore(entries)
		cs.Handlers[idx] = lh
	}
	return cs
}
