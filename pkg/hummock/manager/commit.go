// SPDX-License-Identifier: AGPL-3.0-only

package manager

import (
	"context"

	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/risingwavelabs/hummock/pkg/hummock/core"
	"github.com/risingwavelabs/hummock/pkg/hummock/hummockpb"
	"github.com/risingwavelabs/hummock/pkg/hummock/metastore"
	"github.com/risingwavelabs/hummock/pkg/hummock/notify"
)

// CommitSst is one committed SST plus the table ids it covers and the
// per-table stat delta it contributes (§6.3 CommitEpoch payload shape).
type CommitSst struct {
	GroupId    uint64
	Sst        *core.SstableInfo
	TableStats map[uint32]core.TableStats
}

// CommitEpoch implements §4.8 commit_epoch's full five-step effect
// sequence. epoch must be strictly greater than the current
// max_committed_epoch.
func (m *Manager) CommitEpoch(ctx context.Context, epoch uint64, ssts []CommitSst) error {
	m.metrics.commitEpochTotal.Inc()
	if m.cfg.CommitsDisabled {
		m.metrics.commitEpochFailed.Inc()
		return ErrCommitsDisabled
	}

	m.compactionMu.Lock()
	defer m.compactionMu.Unlock()
	m.versioningMu.Lock()
	defer m.versioningMu.Unlock()

	if epoch <= m.versioning.current.MaxCommittedEpoch {
		m.metrics.commitEpochFailed.Inc()
		return errors.Wrapf(ErrInvalidEpoch, "epoch %d <= max_committed_epoch %d", epoch, m.versioning.current.MaxCommittedEpoch)
	}
	for _, s := range ssts {
		if m.groups.Group(s.GroupId) == nil {
			m.metrics.commitEpochFailed.Inc()
			return errors.Wrapf(ErrUnknownGroup, "group %d", s.GroupId)
		}
	}

	// Step 1: construct the delta, one L0 sublevel per touched group
	// keyed by l0_sub_level_id = epoch.
	delta := core.NewVersionDelta(m.versioning.current.Id, m.versioning.current.Id+1)
	delta.MaxCommittedEpoch = epoch
	touchedGroups := make(map[uint64]struct{})
	statDeltas := make(map[uint32]core.TableStats)
	for _, s := range ssts {
		gd := delta.GroupDeltaFor(s.GroupId)
		gd.InsertedL0[epoch] = append(gd.InsertedL0[epoch], s.Sst)
		// A raw commit sublevel holds concurrently-written SSTs that may
		// share key ranges, so it is Overlapping until a later
		// tier-compaction task sorts it.
		gd.InsertedL0Type[epoch] = core.LevelTypeOverlapping
		touchedGroups[s.GroupId] = struct{}{}
		for tid, d := range s.TableStats {
			agg := statDeltas[tid]
			agg.Add(d)
			statDeltas[tid] = agg
		}
	}

	// Step 2: apply table-stat deltas ahead of persistence so the
	// persisted VersionStats reflects this commit; purge vanished tables.
	stagedStats := m.versioning.stats.Clone()
	stagedStats.ApplyDelta(statDeltas)
	live := make(map[uint32]struct{})
	for _, gid := range m.groups.GroupIds() {
		for t := range m.groups.Group(gid).TableIds {
			live[t] = struct{}{}
		}
	}
	stagedStats.PurgeVanished(live)

	// Step 3: persist in one transaction; on failure the commit aborts
	// with no state change.
	deltaPB := hummockpb.VersionDeltaToPB(delta)
	deltaRaw, err := hummockpb.Marshal(deltaPB)
	if err != nil {
		m.metrics.commitEpochFailed.Inc()
		return err
	}
	statsPB := hummockpb.VersionStatsToPB(stagedStats)
	statsRaw, err := hummockpb.Marshal(statsPB)
	if err != nil {
		m.metrics.commitEpochFailed.Inc()
		return err
	}
	if err := m.store.Txn(ctx,
		metastore.Put(metastore.NamespaceDeltas, key(delta.Id), deltaRaw),
		metastore.Put(metastore.NamespaceStats, "singleton", statsRaw),
	); err != nil {
		m.metrics.commitEpochFailed.Inc()
		return errors.Wrap(err, "hummock: commit_epoch metastore txn")
	}

	if err := m.versioning.applyDelta(delta); err != nil {
		// Invariant violation: the delta we just built from our own
		// current.Id cannot fail prev_id linkage under the write lock.
		level.Error(m.logger).Log("msg", "commit_epoch delta failed to apply after persisting", "err", err)
		return err
	}
	m.versioning.stats = stagedStats
	m.versioning.latestSnapshot.Store(core.HummockSnapshot{CommittedEpoch: epoch, CurrentEpoch: epoch})

	m.metrics.currentVersionId.Set(float64(m.versioning.current.Id))
	m.metrics.maxCommittedEpoch.Set(float64(epoch))

	// Step 5: notify and enqueue dynamic compaction requests for each
	// touched group. Enqueueing itself is the scheduler's job; the
	// manager only publishes the notification here.
	m.notify.Publish(notify.Event{Kind: notify.EventVersionDelta, VersionID: delta.Id, Payload: delta})
	level.Debug(m.logger).Log("msg", "commit_epoch applied", "epoch", epoch, "version_id", m.versioning.current.Id, "ssts", len(ssts))
	return nil
}

// GetNewSstIds implements §6.3 GetNewSstIds: pre-allocates n consecutive
// sst ids via the SST id sequence generator.
func (m *Manager) GetNewSstIds(ctx context.Context, n uint64) (start uint64, err error) {
	ids, err := m.sstSeq.NextN(ctx, "sst", n)
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// CurrentVersion returns a defensive copy of the current HummockVersion.
func (m *Manager) CurrentVersion() *core.HummockVersion {
	m.versioningMu.RLock()
	defer m.versioningMu.RUnlock()
	return m.versioning.current.Clone()
}

// LatestSnapshot returns the lock-free latest_snapshot cell (§5).
func (m *Manager) LatestSnapshot() core.HummockSnapshot {
	return m.versioning.snapshot()
}
