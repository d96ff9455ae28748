// SPDX-License-Identifier: AGPL-3.0-only

// Package group implements the Compaction Group Manager of SPEC_FULL.md
// §4.7: membership of state tables into compaction groups, and group
// lifecycle (construct/destroy/split). It is a pure, lock-free component;
// the Hummock Manager serializes calls to it under its own locks (§5).
package group

import (
	"github.com/pkg/errors"

	"github.com/risingwavelabs/hummock/pkg/hummock/core"
)

// ErrGroupNotFound is returned when an operation names an unknown group.
var ErrGroupNotFound = errors.New("group: compaction group not found")

// ErrTableAlreadyOwned is returned when a table is assigned to a group
// while another group still claims it (§3: "a state table belongs to
// exactly one group at a time").
var ErrTableAlreadyOwned = errors.New("group: table already owned by another group")

// Manager tracks compaction-group membership and the per-group LSM level
// sets, plus the branched-SST index that a split leaves behind.
type Manager struct {
	groups   map[uint64]*core.CompactionGroup
	levels   map[uint64]*core.Levels
	branched *core.BranchedSSTs
	tableOwner map[uint32]uint64 // table id -> owning group id
}

// NewManager returns an empty group manager.
func NewManager() *Manager {
	return &Manager{
		groups:     make(map[uint64]*core.CompactionGroup),
		levels:     make(map[uint64]*core.Levels),
		branched:   core.NewBranchedSSTs(),
		tableOwner: make(map[uint32]uint64),
	}
}

// Load seeds the manager from metastore-replayed state at startup (§6.1).
func (m *Manager) Load(groups map[uint64]*core.CompactionGroup, levels map[uint64]*core.Levels, branched *core.BranchedSSTs) {
	m.groups = groups
	m.levels = levels
	if branched != nil {
		m.branched = branched
	}
	m.tableOwner = make(map[uint32]uint64, len(groups))
	for gid, g := range groups {
		for t := range g.TableIds {
			m.tableOwner[t] = gid
		}
	}
}

// Group returns the group by id, or nil.
func (m *Manager) Group(id uint64) *core.CompactionGroup { return m.groups[id] }

// Levels returns the level set owned by group id, or nil.
func (m *Manager) Levels(id uint64) *core.Levels { return m.levels[id] }

// GroupIds returns every currently registered group id.
func (m *Manager) GroupIds() []uint64 {
	ids := make([]uint64, 0, len(m.groups))
	for id := range m.groups {
		ids = append(ids, id)
	}
	return ids
}

// OwnerOf returns the group id currently owning tableID, and whether it
// is owned at all.
func (m *Manager) OwnerOf(tableID uint32) (uint64, bool) {
	gid, ok := m.tableOwner[tableID]
	return gid, ok
}

// Branched returns the shared branched-SST index.
func (m *Manager) Branched() *core.BranchedSSTs { return m.branched }

// RegisterNewGroup creates a group with an initial empty L0 and maxLevel
// empty non-overlapping levels, claiming every table in tables (§4.7).
func (m *Manager) RegisterNewGroup(id uint64, cfg core.CompactionConfig, tables []uint32) (*core.CompactionGroup, error) {
	for _, t := range tables {
		if owner, ok := m.tableOwner[t]; ok && owner != id {
			return nil, errors.Wrapf(ErrTableAlreadyOwned, "table %d owned by group %d", t, owner)
		}
	}
	g := core.NewCompactionGroup(id, cfg, tables)
	m.groups[id] = g
	m.levels[id] = core.NewLevels(cfg.MaxLevel)
	for _, t := range tables {
		m.tableOwner[t] = id
	}
	return g, nil
}

// UnregisterTable strips tableID from its owning group's membership and
// reports whether the group became empty and is now a destroy candidate.
func (m *Manager) UnregisterTable(tableID uint32) (groupID uint64, destroyable bool, err error) {
	gid, ok := m.tableOwner[tableID]
	if !ok {
		return 0, false, nil
	}
	g, ok := m.groups[gid]
	if !ok {
		return 0, false, errors.Wrapf(ErrGroupNotFound, "group %d", gid)
	}
	delete(g.TableIds, tableID)
	delete(m.tableOwner, tableID)
	return gid, g.Empty(), nil
}

// DestroyGroup removes a now-empty group and its level set.
func (m *Manager) DestroyGroup(id uint64) error {
	g, ok := m.groups[id]
	if !ok {
		return errors.Wrapf(ErrGroupNotFound, "group %d", id)
	}
	if !g.Empty() {
		return errors.Errorf("group: cannot destroy non-empty group %d", id)
	}
	delete(m.groups, id)
	delete(m.levels, id)
	return nil
}

// SplitResult describes the effect of SplitGroup, for the caller
// (typically the Hummock Manager) to fold into a VersionDelta.
type SplitResult struct {
	Parent         *core.CompactionGroup
	Child          *core.CompactionGroup
	BranchedSstIds []uint64
}

// SplitGroup atomically creates childID as a new group owning
// subsetOfTables (previously owned by parentID), and marks every SST in
// the parent's current levels whose table set intersects the subset as
// branched between parent and child (§4.7, §3 BranchedSST).
func (m *Manager) SplitGroup(parentID, childID uint64, subsetOfTables []uint32) (*SplitResult, error) {
	parent, ok := m.groups[parentID]
	if !ok {
		return nil, errors.Wrapf(ErrGroupNotFound, "parent group %d", parentID)
	}
	subset := make(map[uint32]struct{}, len(subsetOfTables))
	for _, t := range subsetOfTables {
		if !parent.HasTable(t) {
			return nil, errors.Errorf("group: table %d not owned by parent group %d", t, parentID)
		}
		subset[t] = struct{}{}
	}

	child := core.NewCompactionGroup(childID, parent.Config, subsetOfTables)
	for t := range subset {
		delete(parent.TableIds, t)
		m.tableOwner[t] = childID
	}
	m.groups[childID] = child

	parentLevels := m.levels[parentID]
	childLevels := core.NewLevels(parent.Config.MaxLevel)
	var branchedIds []uint64

	tableIntersects := func(sst *core.SstableInfo) bool {
		for _, t := range sst.TableIds {
			if _, ok := subset[t]; ok {
				return true
			}
		}
		return false
	}
	branch := func(sst *core.SstableInfo) *core.SstableInfo {
		cp := sst.Clone()
		cp.DivideVersion++
		sst.DivideVersion++
		m.branched.Insert(sst.Id, parentID, sst.DivideVersion)
		m.branched.Insert(sst.Id, childID, cp.DivideVersion)
		branchedIds = append(branchedIds, sst.Id)
		return cp
	}

	for _, sl := range parentLevels.L0.SubLevels {
		var childTables []*core.SstableInfo
		for _, t := range sl.Tables {
			if tableIntersects(t) {
				childTables = append(childTables, branch(t))
			}
		}
		if len(childTables) > 0 {
			childLevels.L0.SubLevels = append(childLevels.L0.SubLevels, &core.SubLevel{
				SubLevelId: sl.SubLevelId,
				Type:       sl.Type,
				Tables:     childTables,
			})
		}
	}
	for i, lvl := range parentLevels.Levels {
		var childTables []*core.SstableInfo
		for _, t := range lvl.Tables {
			if tableIntersects(t) {
				childTables = append(childTables, branch(t))
			}
		}
		if len(childTables) > 0 {
			childLevels.Levels[i].Tables = append(childLevels.Levels[i].Tables, childTables...)
		}
	}
	m.levels[childID] = childLevels

	return &SplitResult{Parent: parent, Child: child, BranchedSstIds: branchedIds}, nil
}
