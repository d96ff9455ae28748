// SPDX-License-Identifier: AGPL-3.0-only

package manager

import (
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/risingwavelabs/hummock/pkg/hummock/core"
)

// versioningState is the Versioning Store of SPEC_FULL.md §4.6: the
// authoritative current HummockVersion, its append-only delta log,
// checkpoint watermark, pins, stats and branched-SST index. All fields
// are guarded by Manager.versioningMu; callers must hold that lock.
type versioningState struct {
	current           *core.HummockVersion
	deltas            map[uint64]*core.VersionDelta // keyed by Id
	checkpointVersion uint64
	pinnedVersions    map[uint64]*core.PinnedVersion  // context id -> pin
	pinnedSnapshots   map[uint64]*core.PinnedSnapshot // context id -> pin
	branched          *core.BranchedSSTs
	stats             *core.VersionStats

	sstsToDelete   []uint64
	deltasToDelete []uint64

	// latestSnapshot is the lock-free atomic cell of §5: single-writer
	// under versioningMu, many lock-free readers.
	latestSnapshot atomic.Value // core.HummockSnapshot
}

func newVersioningState() *versioningState {
	v := &versioningState{
		current:         core.NewHummockVersion(),
		deltas:          make(map[uint64]*core.VersionDelta),
		pinnedVersions:  make(map[uint64]*core.PinnedVersion),
		pinnedSnapshots: make(map[uint64]*core.PinnedSnapshot),
		branched:        core.NewBranchedSSTs(),
		stats:           core.NewVersionStats(),
	}
	v.latestSnapshot.Store(core.HummockSnapshot{})
	return v
}

// snapshot returns the current latest_snapshot without taking any lock.
func (v *versioningState) snapshot() core.HummockSnapshot {
	return v.latestSnapshot.Load().(core.HummockSnapshot)
}

// applyDelta mutates current in place, verifying prev_id linkage, and
// records delta in the log (§4.6).
func (v *versioningState) applyDelta(delta *core.VersionDelta) error {
	if delta.PrevId != v.current.Id {
		return errors.Errorf("hummock: version delta prev_id %d does not match current version %d", delta.PrevId, v.current.Id)
	}
	next := v.current
	next.Id = delta.Id
	if delta.MaxCommittedEpoch > next.MaxCommittedEpoch {
		next.MaxCommittedEpoch = delta.MaxCommittedEpoch
	}
	if delta.SafeEpoch > next.SafeEpoch {
		next.SafeEpoch = delta.SafeEpoch
	}

	for gid, gd := range delta.GroupDeltas {
		if gd.GroupDestroy {
			delete(next.Levels, gid)
			continue
		}
		lv, ok := next.Levels[gid]
		if !ok {
			maxLevel := 0
			if gd.GroupConstruct != nil {
				maxLevel = gd.GroupConstruct.Config.MaxLevel
			}
			lv = core.NewLevels(maxLevel)
			next.Levels[gid] = lv
		}
		applyGroupDelta(lv, gd)
	}

	v.current = next
	v.deltas[delta.Id] = delta
	return nil
}

// applyGroupDelta folds one group's insert/remove sets into its Levels.
func applyGroupDelta(lv *core.Levels, gd *core.GroupDelta) {
	for sl, removed := range gd.RemovedL0 {
		removeSet := toSet(removed)
		for i, s := range lv.L0.SubLevels {
			if s.SubLevelId != sl {
				continue
			}
			s.Tables = filterTables(s.Tables, removeSet)
			if len(s.Tables) == 0 {
				lv.L0.SubLevels = append(lv.L0.SubLevels[:i], lv.L0.SubLevels[i+1:]...)
			}
			break
		}
	}
	for lvlIdx, removed := range gd.RemovedLevels {
		removeSet := toSet(removed)
		l := lv.Level(lvlIdx)
		if l != nil {
			l.Tables = filterTables(l.Tables, removeSet)
		}
	}

	for sl, inserted := range gd.InsertedL0 {
		idx := sort.Search(len(lv.L0.SubLevels), func(i int) bool { return lv.L0.SubLevels[i].SubLevelId >= sl })
		if idx < len(lv.L0.SubLevels) && lv.L0.SubLevels[idx].SubLevelId == sl {
			lv.L0.SubLevels[idx].Tables = append(lv.L0.SubLevels[idx].Tables, inserted...)
			continue
		}
		newSub := &core.SubLevel{SubLevelId: sl, Type: gd.InsertedL0Type[sl], Tables: append([]*core.SstableInfo(nil), inserted...)}
		lv.L0.SubLevels = append(lv.L0.SubLevels, nil)
		copy(lv.L0.SubLevels[idx+1:], lv.L0.SubLevels[idx:])
		lv.L0.SubLevels[idx] = newSub
	}
	for lvlIdx, inserted := range gd.InsertedLevels {
		l := lv.Level(lvlIdx)
		if l != nil {
			l.Tables = append(l.Tables, inserted...)
		}
	}
}

func toSet(ids []uint64) map[uint64]struct{} {
	set := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func filterTables(tables []*core.SstableInfo, remove map[uint64]struct{}) []*core.SstableInfo {
	out := tables[:0]
	for _, t := range tables {
		if _, ok := remove[t.Id]; !ok {
			out = append(out, t)
		}
	}
	return out
}

// minPinnedVersionId returns the minimum pin across all contexts, or the
// current version id when nothing is pinned (§4.6).
func (v *versioningState) minPinnedVersionId() uint64 {
	min := v.current.Id
	for _, p := range v.pinnedVersions {
		if p.MinPinnedVersionId < min {
			min = p.MinPinnedVersionId
		}
	}
	return min
}

// minPinnedSnapshotEpoch returns the minimum snapshot pin across all
// contexts, or maxCommittedEpoch when nothing is pinned. Used as the
// compaction watermark (§4.8 get_compact_task).
func (v *versioningState) minPinnedSnapshotEpoch() uint64 {
	min := v.current.MaxCommittedEpoch
	for _, p := range v.pinnedSnapshots {
		if p.MinimalPinnedEpoch < min {
			min = p.MinimalPinnedEpoch
		}
	}
	return min
}

// extendSstsToDeleteFromDeltas accumulates gc_sst_ids from every delta in
// (fromExclusive, toInclusive] into sstsToDelete and deltasToDelete
// (§4.6).
func (v *versioningState) extendSstsToDeleteFromDeltas(fromExclusive, toInclusive uint64) {
	for id := fromExclusive + 1; id <= toInclusive; id++ {
		delta, ok := v.deltas[id]
		if !ok {
			continue
		}
		v.sstsToDelete = append(v.sstsToDelete, delta.GcSstIds...)
		v.deltasToDelete = append(v.deltasToDelete, id)
	}
}

// proceedVersionCheckpoint moves checkpointVersion up to
// min_pinned_version_id, and reports whether it advanced (§4.6, §8
// invariant 5: checkpoint_version.id ≤ min_pinned_version_id ≤
// current_version.id).
func (v *versioningState) proceedVersionCheckpoint() bool {
	target := v.minPinnedVersionId()
	if target <= v.checkpointVersion {
		return false
	}
	v.extendSstsToDeleteFromDeltas(v.checkpointVersion, target)
	v.checkpointVersion = target
	return true
}

// drainDeletable pops the accumulated GC candidates. The checkpoint/GC
// background worker calls it before its delete txn and puts the ids back
// if that txn fails.
func (v *versioningState) drainDeletable() (ssts, deltaIds []uint64) {
	ssts, deltaIds = v.sstsToDelete, v.deltasToDelete
	v.sstsToDelete, v.deltasToDelete = nil, nil
	return ssts, deltaIds
}
