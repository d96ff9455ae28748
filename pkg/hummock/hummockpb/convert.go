// SPDX-License-Identifier: AGPL-3.0-only

package hummockpb

import "github.com/risingwavelabs/hummock/pkg/hummock/core"

func sstToPB(s *core.SstableInfo) SstableInfo {
	return SstableInfo{
		Id:       s.Id,
		KeyRange: KeyRange{Left: s.KeyRange.Left, Right: s.KeyRange.Right, RightExclusive: s.KeyRange.RightExclusive},
		TableIds: append([]uint32(nil), s.TableIds...),
		FileSize: s.FileSize, DivideVersion: s.DivideVersion, MinEpoch: s.MinEpoch, MaxEpoch: s.MaxEpoch,
	}
}

func sstFromPB(s SstableInfo) *core.SstableInfo {
	return &core.SstableInfo{
		Id:       s.Id,
		KeyRange: core.KeyRange{Left: s.KeyRange.Left, Right: s.KeyRange.Right, RightExclusive: s.KeyRange.RightExclusive},
		TableIds: append([]uint32(nil), s.TableIds...),
		FileSize: s.FileSize, DivideVersion: s.DivideVersion, MinEpoch: s.MinEpoch, MaxEpoch: s.MaxEpoch,
	}
}

// LevelsToPB converts a core.Levels into its wire form.
func LevelsToPB(lv *core.Levels) Levels {
	out := Levels{}
	for _, sl := range lv.L0.SubLevels {
		pbsl := SubLevel{SubLevelId: sl.SubLevelId, Overlapping: sl.Type == core.LevelTypeOverlapping, TotalFileSize: sl.TotalFileSize}
		for _, t := range sl.Tables {
			pbsl.Tables = append(pbsl.Tables, sstToPB(t))
		}
		out.L0 = append(out.L0, pbsl)
	}
	for _, l := range lv.Levels {
		pbl := Level{LevelIdx: l.LevelIdx, TotalFileSize: l.TotalFileSize}
		for _, t := range l.Tables {
			pbl.Tables = append(pbl.Tables, sstToPB(t))
		}
		out.Levels = append(out.Levels, pbl)
	}
	return out
}

// LevelsFromPB converts a wire Levels back into core.Levels.
func LevelsFromPB(p Levels) *core.Levels {
	out := &core.Levels{L0: &core.OverlappingLevel{}}
	for _, sl := range p.L0 {
		typ := core.LevelTypeNonOverlapping
		if sl.Overlapping {
			typ = core.LevelTypeOverlapping
		}
		csl := &core.SubLevel{SubLevelId: sl.SubLevelId, Type: typ, TotalFileSize: sl.TotalFileSize}
		for _, t := range sl.Tables {
			csl.Tables = append(csl.Tables, sstFromPB(t))
		}
		out.L0.SubLevels = append(out.L0.SubLevels, csl)
	}
	for _, l := range p.Levels {
		cl := &core.Level{LevelIdx: l.LevelIdx, TotalFileSize: l.TotalFileSize}
		for _, t := range l.Tables {
			cl.Tables = append(cl.Tables, sstFromPB(t))
		}
		out.Levels = append(out.Levels, cl)
	}
	return out
}

// HummockVersionToPB converts a core.HummockVersion into its wire form.
func HummockVersionToPB(v *core.HummockVersion) *HummockVersion {
	out := &HummockVersion{Id: v.Id, MaxCommittedEpoch: v.MaxCommittedEpoch, SafeEpoch: v.SafeEpoch, Levels: map[uint64]Levels{}}
	for gid, lv := range v.Levels {
		out.Levels[gid] = LevelsToPB(lv)
	}
	return out
}

// HummockVersionFromPB converts a wire HummockVersion back into core.HummockVersion.
func HummockVersionFromPB(p *HummockVersion) *core.HummockVersion {
	out := &core.HummockVersion{Id: p.Id, MaxCommittedEpoch: p.MaxCommittedEpoch, SafeEpoch: p.SafeEpoch, Levels: map[uint64]*core.Levels{}}
	for gid, lv := range p.Levels {
		out.Levels[gid] = LevelsFromPB(lv)
	}
	return out
}

// VersionDeltaToPB converts a core.VersionDelta into its wire form.
func VersionDeltaToPB(d *core.VersionDelta) *VersionDelta {
	out := &VersionDelta{
		PrevId: d.PrevId, Id: d.Id, MaxCommittedEpoch: d.MaxCommittedEpoch, SafeEpoch: d.SafeEpoch,
		GcSstIds: append([]uint64(nil), d.GcSstIds...), TrivialMove: d.TrivialMove,
		GroupDeltas: map[uint64]GroupDelta{},
	}
	for gid, gd := range d.GroupDeltas {
		pgd := GroupDelta{
			InsertedL0:            map[uint64][]SstableInfo{},
			InsertedL0Overlapping: map[uint64]bool{},
			InsertedLevels:        map[int][]SstableInfo{},
			RemovedL0:             gd.RemovedL0,
			RemovedLevels:         gd.RemovedLevels,
			GroupDestroy:          gd.GroupDestroy,
		}
		for sl, tables := range gd.InsertedL0 {
			for _, t := range tables {
				pgd.InsertedL0[sl] = append(pgd.InsertedL0[sl], sstToPB(t))
			}
		}
		for sl, typ := range gd.InsertedL0Type {
			pgd.InsertedL0Overlapping[sl] = typ == core.LevelTypeOverlapping
		}
		for lvl, tables := range gd.InsertedLevels {
			for _, t := range tables {
				pgd.InsertedLevels[lvl] = append(pgd.InsertedLevels[lvl], sstToPB(t))
			}
		}
		if gd.GroupConstruct != nil {
			pgd.GroupConstruct = &GroupConstruct{
				GroupId: gd.GroupConstruct.GroupId, Config: configToPB(gd.GroupConstruct.Config),
				ParentId: gd.GroupConstruct.ParentId,
				TableIds: append([]uint32(nil), gd.GroupConstruct.TableIds...),
			}
		}
		out.GroupDeltas[gid] = pgd
	}
	return out
}

func configToPB(cfg core.CompactionConfig) CompactionConfig {
	algos := make([]uint32, len(cfg.CompressionAlgorithm))
	for i, a := range cfg.CompressionAlgorithm {
		algos[i] = uint32(a)
	}
	return CompactionConfig{
		MaxLevel: cfg.MaxLevel, BaseLevel: cfg.BaseLevel,
		Level0TierCompactFileNumber: cfg.Level0TierCompactFileNumber,
		Level0MaxCompactFileNumber:  cfg.Level0MaxCompactFileNumber,
		TargetFileSizeBase:          cfg.TargetFileSizeBase,
		CompressionAlgorithm:        algos,
		MaxBytesForLevelBase:        cfg.MaxBytesForLevelBase,
		MaxSpaceReclaimBytes:        cfg.MaxSpaceReclaimBytes,
		SubLevelMaxCompactionBytes:  cfg.SubLevelMaxCompactionBytes,
	}
}

func configFromPB(p CompactionConfig) core.CompactionConfig {
	algos := make([]core.CompressionAlgorithm, len(p.CompressionAlgorithm))
	for i, a := range p.CompressionAlgorithm {
		algos[i] = core.CompressionAlgorithm(a)
	}
	return core.CompactionConfig{
		MaxLevel: p.MaxLevel, BaseLevel: p.BaseLevel,
		Level0TierCompactFileNumber: p.Level0TierCompactFileNumber,
		Level0MaxCompactFileNumber:  p.Level0MaxCompactFileNumber,
		TargetFileSizeBase:          p.TargetFileSizeBase,
		CompressionAlgorithm:        algos,
		MaxBytesForLevelBase:        p.MaxBytesForLevelBase,
		MaxSpaceReclaimBytes:        p.MaxSpaceReclaimBytes,
		SubLevelMaxCompactionBytes:  p.SubLevelMaxCompactionBytes,
	}
}

// VersionDeltaFromPB converts a wire VersionDelta back into core.VersionDelta.
func VersionDeltaFromPB(p *VersionDelta) *core.VersionDelta {
	out := core.NewVersionDelta(p.PrevId, p.Id)
	out.MaxCommittedEpoch = p.MaxCommittedEpoch
	out.SafeEpoch = p.SafeEpoch
	out.GcSstIds = append([]uint64(nil), p.GcSstIds...)
	out.TrivialMove = p.TrivialMove
	for gid, pgd := range p.GroupDeltas {
		gd := core.NewGroupDelta()
		for sl, tables := range pgd.InsertedL0 {
			for _, t := range tables {
				gd.InsertedL0[sl] = append(gd.InsertedL0[sl], sstFromPB(t))
			}
		}
		for sl, overlapping := range pgd.InsertedL0Overlapping {
			if overlapping {
				gd.InsertedL0Type[sl] = core.LevelTypeOverlapping
			} else {
				gd.InsertedL0Type[sl] = core.LevelTypeNonOverlapping
			}
		}
		for lvl, tables := range pgd.InsertedLevels {
			for _, t := range tables {
				gd.InsertedLevels[lvl] = append(gd.InsertedLevels[lvl], sstFromPB(t))
			}
		}
		gd.RemovedL0 = pgd.RemovedL0
		gd.RemovedLevels = pgd.RemovedLevels
		gd.GroupDestroy = pgd.GroupDestroy
		if pgd.GroupConstruct != nil {
			gd.GroupConstruct = &core.GroupConstruct{
				GroupId: pgd.GroupConstruct.GroupId, Config: configFromPB(pgd.GroupConstruct.Config),
				ParentId: pgd.GroupConstruct.ParentId,
				TableIds: append([]uint32(nil), pgd.GroupConstruct.TableIds...),
			}
		}
		out.GroupDeltas[gid] = gd
	}
	return out
}

func inputLevelToPB(l core.InputLevel) InputLevel {
	out := InputLevel{
		LevelIdx: l.LevelIdx, SubLevelId: l.SubLevelId,
		Overlapping:    l.LevelType == core.LevelTypeOverlapping,
		DivideVersions: l.DivideVersions,
	}
	for _, t := range l.Tables {
		out.Tables = append(out.Tables, sstToPB(t))
	}
	return out
}

func inputLevelFromPB(l InputLevel) core.InputLevel {
	typ := core.LevelTypeNonOverlapping
	if l.Overlapping {
		typ = core.LevelTypeOverlapping
	}
	out := core.InputLevel{
		LevelIdx: l.LevelIdx, SubLevelId: l.SubLevelId, LevelType: typ,
		DivideVersions: l.DivideVersions,
	}
	for _, t := range l.Tables {
		out.Tables = append(out.Tables, sstFromPB(t))
	}
	return out
}

// CompactTaskToPB converts a core.CompactTask into its wire form.
func CompactTaskToPB(t *core.CompactTask) CompactTask {
	out := CompactTask{
		TaskId: t.TaskId, GroupId: t.GroupId, Type: int(t.Type),
		TargetLevel: t.TargetLevel, TargetSubLevelId: t.TargetSubLevelId,
		TargetFileSize: t.TargetFileSize, Compression: uint32(t.Compression),
		Watermark: t.Watermark, GcDeleteKeys: t.GcDeleteKeys, Status: int(t.Status),
	}
	for _, l := range t.Input {
		out.Input = append(out.Input, inputLevelToPB(l))
	}
	for _, s := range t.Splits {
		out.Splits = append(out.Splits, KeyRange{Left: s.Left, Right: s.Right, RightExclusive: s.RightExclusive})
	}
	return out
}

// CompactTaskFromPB converts a wire CompactTask back into core.CompactTask.
func CompactTaskFromPB(p CompactTask) *core.CompactTask {
	out := &core.CompactTask{
		TaskId: p.TaskId, GroupId: p.GroupId, Type: core.TaskType(p.Type),
		TargetLevel: p.TargetLevel, TargetSubLevelId: p.TargetSubLevelId,
		TargetFileSize: p.TargetFileSize, Compression: core.CompressionAlgorithm(p.Compression),
		Watermark: p.Watermark, GcDeleteKeys: p.GcDeleteKeys, Status: core.TaskStatus(p.Status),
	}
	for _, l := range p.Input {
		out.Input = append(out.Input, inputLevelFromPB(l))
	}
	for _, s := range p.Splits {
		out.Splits = append(out.Splits, core.KeyRange{Left: s.Left, Right: s.Right, RightExclusive: s.RightExclusive})
	}
	return out
}

// TaskAssignmentToPB converts a core.TaskAssignment into its wire form.
func TaskAssignmentToPB(a *core.TaskAssignment) *CompactTaskAssignment {
	return &CompactTaskAssignment{
		Task: CompactTaskToPB(a.Task), ContextId: a.ContextId, HeartbeatDeadline: a.HeartbeatDeadline,
	}
}

// TaskAssignmentFromPB converts a wire CompactTaskAssignment back into core.TaskAssignment.
func TaskAssignmentFromPB(p *CompactTaskAssignment) *core.TaskAssignment {
	task := CompactTaskFromPB(p.Task)
	return &core.TaskAssignment{Task: task, ContextId: p.ContextId, HeartbeatDeadline: p.HeartbeatDeadline}
}

// CompactionGroupToPB converts a core.CompactionGroup into its wire form.
func CompactionGroupToPB(g *core.CompactionGroup) *CompactionGroup {
	tableIds := make([]uint32, 0, len(g.TableIds))
	for id := range g.TableIds {
		tableIds = append(tableIds, id)
	}
	return &CompactionGroup{GroupId: g.GroupId, Config: configToPB(g.Config), TableIds: tableIds}
}

// CompactionGroupFromPB converts a wire CompactionGroup back into core.CompactionGroup.
func CompactionGroupFromPB(p *CompactionGroup) *core.CompactionGroup {
	return core.NewCompactionGroup(p.GroupId, configFromPB(p.Config), p.TableIds)
}

// VersionStatsToPB converts a core.VersionStats into its wire form.
func VersionStatsToPB(s *core.VersionStats) *VersionStats {
	out := &VersionStats{Tables: map[uint32]TableStatsRow{}}
	for id, row := range s.Tables {
		out.Tables[id] = TableStatsRow{TotalKeySize: row.TotalKeySize, TotalValueSize: row.TotalValueSize, TotalKeyCount: row.TotalKeyCount}
	}
	return out
}

// VersionStatsFromPB converts a wire VersionStats back into core.VersionStats.
func VersionStatsFromPB(p *VersionStats) *core.VersionStats {
	out := core.NewVersionStats()
	for id, row := range p.Tables {
		out.Tables[id] = &core.TableStats{TotalKeySize: row.TotalKeySize, TotalValueSize: row.TotalValueSize, TotalKeyCount: row.TotalKeyCount}
	}
	return out
}

// PinnedVersionToPB converts a core.PinnedVersion into its wire form.
func PinnedVersionToPB(p *core.PinnedVersion) *PinnedVersion {
	return &PinnedVersion{ContextId: p.ContextId, MinPinnedVersionId: p.MinPinnedVersionId}
}

// PinnedVersionFromPB converts a wire PinnedVersion back into core.PinnedVersion.
func PinnedVersionFromPB(p *PinnedVersion) *core.PinnedVersion {
	return &core.PinnedVersion{ContextId: p.ContextId, MinPinnedVersionId: p.MinPinnedVersionId}
}

// PinnedSnapshotToPB converts a core.PinnedSnapshot into its wire form.
func PinnedSnapshotToPB(p *core.PinnedSnapshot) *PinnedSnapshot {
	return &PinnedSnapshot{ContextId: p.ContextId, MinimalPinnedEpoch: p.MinimalPinnedEpoch}
}

// PinnedSnapshotFromPB converts a wire PinnedSnapshot back into core.PinnedSnapshot.
func PinnedSnapshotFromPB(p *PinnedSnapshot) *core.PinnedSnapshot {
	return &core.PinnedSnapshot{ContextId: p.ContextId, MinimalPinnedEpoch: p.MinimalPinnedEpoch}
}
