// SPDX-License-Identifier: AGPL-3.0-only

package manager

import (
	"context"

	"github.com/pkg/errors"

	"github.com/risingwavelabs/hummock/pkg/hummock/core"
	"github.com/risingwavelabs/hummock/pkg/hummock/hummockpb"
	"github.com/risingwavelabs/hummock/pkg/hummock/metastore"
	"github.com/risingwavelabs/hummock/pkg/hummock/notify"
)

// RegisterNewGroup implements §4.7 register_new_group: creates a group
// with an initial empty L0 and config.MaxLevel empty levels, persists it,
// and publishes a CompactionGroup notification.
func (m *Manager) RegisterNewGroup(ctx context.Context, id uint64, cfg core.CompactionConfig, tables []uint32) (*core.CompactionGroup, error) {
	m.compactionMu.Lock()
	defer m.compactionMu.Unlock()

	g, err := m.groups.RegisterNewGroup(id, cfg, tables)
	if err != nil {
		return nil, err
	}
	if err := m.persistGroup(ctx, g); err != nil {
		_ = m.groups.DestroyGroup(id)
		return nil, err
	}
	m.notify.Publish(notify.Event{Kind: notify.EventCompactionGroup, VersionID: id, Payload: g})
	return g, nil
}

// UnregisterTable implements §4.7 unregister_table: strips tableID from
// its owning group, destroying the group if it becomes empty.
func (m *Manager) UnregisterTable(ctx context.Context, tableID uint32) error {
	m.compactionMu.Lock()
	defer m.compactionMu.Unlock()

	gid, destroyable, err := m.groups.UnregisterTable(tableID)
	if err != nil {
		return err
	}
	if gid == 0 && !destroyable {
		return nil // table was not owned by any group
	}
	g := m.groups.Group(gid)
	if g != nil {
		if err := m.persistGroup(ctx, g); err != nil {
			return err
		}
	}
	if destroyable {
		if err := m.groups.DestroyGroup(gid); err != nil {
			return err
		}
		if err := m.store.Txn(ctx, metastore.Delete(metastore.NamespaceGroups, key(gid))); err != nil {
			return errors.Wrap(err, "hummock: destroy group metastore txn")
		}
		m.notify.Publish(notify.Event{Kind: notify.EventCompactionGroup, VersionID: gid, Payload: nil})
	}
	return nil
}

// SplitGroup implements §4.7 split_group: atomically creates childID as a
// new group owning subsetOfTables, branches the affected SSTs, persists
// both groups plus a VersionDelta carrying the GroupConstruct entry, and
// cancels pending compaction tasks on any level touching the split
// boundary (§9: acquire compaction lock first, read cancel targets, then
// take the versioning write lock).
func (m *Manager) SplitGroup(ctx context.Context, parentID, childID uint64, subsetOfTables []uint32) error {
	m.compactionMu.Lock()
	defer m.compactionMu.Unlock()

	result, err := m.groups.SplitGroup(parentID, childID, subsetOfTables)
	if err != nil {
		return err
	}

	branchedSet := make(map[uint64]struct{}, len(result.BranchedSstIds))
	for _, id := range result.BranchedSstIds {
		branchedSet[id] = struct{}{}
	}
	canceled := 0
	if status, ok := m.statuses[parentID]; ok {
		canceled = status.CancelCompactionTasksIf(func(taskID uint64) bool {
			for _, h := range status.Handlers {
				for _, e := range h.Snapshot() {
					if e.TaskId == taskID {
						if _, branched := branchedSet[e.SstId]; branched {
							return true
						}
					}
				}
			}
			return false
		})
	}

	m.versioningMu.Lock()
	defer m.versioningMu.Unlock()

	delta := core.NewVersionDelta(m.versioning.current.Id, m.versioning.current.Id+1)
	gd := delta.GroupDeltaFor(childID)
	gd.GroupConstruct = &core.GroupConstruct{GroupId: childID, Config: result.Child.Config, ParentId: parentID, TableIds: subsetOfTables}
	for _, t := range m.groups.Levels(childID).L0.SubLevels {
		gd.InsertedL0[t.SubLevelId] = append(gd.InsertedL0[t.SubLevelId], t.Tables...)
		gd.InsertedL0Type[t.SubLevelId] = t.Type
	}
	for _, l := range m.groups.Levels(childID).Levels {
		if len(l.Tables) > 0 {
			gd.InsertedLevels[l.LevelIdx] = append(gd.InsertedLevels[l.LevelIdx], l.Tables...)
		}
	}

	deltaPB := hummockpb.VersionDeltaToPB(delta)
	deltaRaw, err := hummockpb.Marshal(deltaPB)
	if err != nil {
		return err
	}
	parentPB := hummockpb.CompactionGroupToPB(result.Parent)
	parentRaw, err := hummockpb.Marshal(parentPB)
	if err != nil {
		return err
	}
	childPB := hummockpb.CompactionGroupToPB(result.Child)
	childRaw, err := hummockpb.Marshal(childPB)
	if err != nil {
		return err
	}

	if err := m.store.Txn(ctx,
		metastore.Put(metastore.NamespaceDeltas, key(delta.Id), deltaRaw),
		metastore.Put(metastore.NamespaceGroups, key(parentID), parentRaw),
		metastore.Put(metastore.NamespaceGroups, key(childID), childRaw),
	); err != nil {
		return errors.Wrap(err, "hummock: split_group metastore txn")
	}

	// group.SplitGroup already put the child's Levels into the map the
	// current version shares; drop them so the GroupConstruct delta builds
	// them once, as it does on replay.
	delete(m.versioning.current.Levels, childID)
	if err := m.versioning.applyDelta(delta); err != nil {
		return err
	}
	m.notify.Publish(notify.Event{Kind: notify.EventCompactionGroup, VersionID: delta.Id, Payload: result.Child})
	m.notify.Publish(notify.Event{Kind: notify.EventVersionDelta, VersionID: delta.Id, Payload: delta})
	_ = canceled
	return nil
}

func (m *Manager) persistGroup(ctx context.Context, g *core.CompactionGroup) error {
	pb := hummockpb.CompactionGroupToPB(g)
	raw, err := hummockpb.Marshal(pb)
	if err != nil {
		return err
	}
	return m.store.Txn(ctx, metastore.Put(metastore.NamespaceGroups, key(g.GroupId), raw))
}
