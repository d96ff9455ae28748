// SPDX-License-Identifier: AGPL-3.0-only

package hummockpb

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/risingwavelabs/hummock/pkg/hummock/core"
)

func TestHummockVersionRoundTrip(t *testing.T) {
	v := core.NewHummockVersion()
	v.Id = 3
	v.MaxCommittedEpoch = 42
	lv := core.NewLevels(2)
	lv.L0.SubLevels = append(lv.L0.SubLevels, &core.SubLevel{
		SubLevelId: 1,
		Tables:     []*core.SstableInfo{{Id: 9, TableIds: []uint32{5}, FileSize: 100}},
	})
	v.Levels[1] = lv

	pb := HummockVersionToPB(v)
	raw, err := pb.Marshal()
	require.NoError(t, err)

	var decoded HummockVersion
	require.NoError(t, decoded.Unmarshal(raw))
	back := HummockVersionFromPB(&decoded)

	require.Equal(t, v.Id, back.Id)
	require.Equal(t, v.MaxCommittedEpoch, back.MaxCommittedEpoch)
	require.Len(t, back.Levels[1].L0.SubLevels, 1)
	require.Equal(t, uint64(9), back.Levels[1].L0.SubLevels[0].Tables[0].Id)
}

func TestVersionDeltaRoundTrip(t *testing.T) {
	d := core.NewVersionDelta(3, 4)
	d.MaxCommittedEpoch = 50
	d.GcSstIds = []uint64{1, 2}
	gd := d.GroupDeltaFor(1)
	gd.InsertedL0[1] = []*core.SstableInfo{{Id: 7, TableIds: []uint32{1}}}
	gd.GroupConstruct = &core.GroupConstruct{GroupId: 2, Config: core.DefaultCompactionConfig(), ParentId: 1, TableIds: []uint32{1}}

	pb := VersionDeltaToPB(d)
	raw, err := pb.Marshal()
	require.NoError(t, err)

	var decoded VersionDelta
	require.NoError(t, decoded.Unmarshal(raw))
	back := VersionDeltaFromPB(&decoded)

	require.Equal(t, d.PrevId, back.PrevId)
	require.Equal(t, d.Id, back.Id)
	require.ElementsMatch(t, d.GcSstIds, back.GcSstIds)
	require.Equal(t, uint64(7), back.GroupDeltas[1].InsertedL0[1][0].Id)
	require.Equal(t, uint64(2), back.GroupDeltas[1].GroupConstruct.GroupId)
}

func TestCompactTaskRoundTrip(t *testing.T) {
	task := &core.CompactTask{
		TaskId: 1, GroupId: 2, Type: core.TaskTypeDynamic,
		Input: []core.InputLevel{{LevelIdx: 0, SubLevelId: 1, Tables: []*core.SstableInfo{{Id: 5}}}},
		TargetLevel: 1, Status: core.TaskStatusPending,
		Splits: []core.KeyRange{{Left: []byte("a"), Right: []byte("b")}},
	}

	pb := CompactTaskToPB(task)
	back := CompactTaskFromPB(pb)

	require.Equal(t, task.TaskId, back.TaskId)
	require.Equal(t, task.Type, back.Type)
	require.Equal(t, task.Status, back.Status)
	require.Len(t, back.Input, 1)
	require.Equal(t, uint64(5), back.Input[0].Tables[0].Id)
	require.Equal(t, []byte("a"), back.Splits[0].Left)
}

func TestCompactionGroupRoundTrip(t *testing.T) {
	cfg := core.DefaultCompactionConfig()
	cfg.CompressionAlgorithm = []core.CompressionAlgorithm{core.CompressionLz4, core.CompressionZstd}
	g := core.NewCompactionGroup(7, cfg, []uint32{1, 2, 3})

	pb := CompactionGroupToPB(g)
	raw, err := pb.Marshal()
	require.NoError(t, err)

	var decoded CompactionGroup
	require.NoError(t, decoded.Unmarshal(raw))
	back := CompactionGroupFromPB(&decoded)

	require.Equal(t, g.GroupId, back.GroupId)
	require.ElementsMatch(t, []core.CompressionAlgorithm{core.CompressionLz4, core.CompressionZstd}, back.Config.CompressionAlgorithm)
	for id := range g.TableIds {
		require.True(t, back.HasTable(id))
	}
}

func TestVersionStatsRoundTrip(t *testing.T) {
	s := core.NewVersionStats()
	s.Tables[1] = &core.TableStats{TotalKeyCount: 10, TotalKeySize: 100, TotalValueSize: 1000}

	pb := VersionStatsToPB(s)
	raw, err := pb.Marshal()
	require.NoError(t, err)

	var decoded VersionStats
	require.NoError(t, decoded.Unmarshal(raw))
	back := VersionStatsFromPB(&decoded)

	require.Equal(t, int64(10), back.Tables[1].TotalKeyCount)
}

func TestPinnedVersionAndSnapshotRoundTrip(t *testing.T) {
	pv := &core.PinnedVersion{ContextId: 1, MinPinnedVersionId: 5}
	backPV := PinnedVersionFromPB(PinnedVersionToPB(pv))
	require.Equal(t, pv, backPV)

	ps := &core.PinnedSnapshot{ContextId: 1, MinimalPinnedEpoch: 9}
	backPS := PinnedSnapshotFromPB(PinnedSnapshotToPB(ps))
	require.Equal(t, ps, backPS)
}

func TestTaskAssignmentRoundTrip(t *testing.T) {
	task := &core.CompactTask{TaskId: 3, GroupId: 1, Status: core.TaskStatusAssigned}
	a := &core.TaskAssignment{Task: task, ContextId: 9, HeartbeatDeadline: 123456}

	pb := TaskAssignmentToPB(a)
	raw, err := pb.Marshal()
	require.NoError(t, err)

	var decoded CompactTaskAssignment
	require.NoError(t, decoded.Unmarshal(raw))
	back := TaskAssignmentFromPB(&decoded)

	require.Equal(t, a.ContextId, back.ContextId)
	require.Equal(t, a.HeartbeatDeadline, back.HeartbeatDeadline)
	require.Equal(t, a.Task.TaskId, back.Task.TaskId)
}
