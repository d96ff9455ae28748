// SPDX-License-Identifier: AGPL-3.0-only

package compaction

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/risingwavelabs/hummock/pkg/hummock/core"
)

func newHandlers(maxLevel int) map[int]*LevelHandler {
	h := make(map[int]*LevelHandler, maxLevel+1)
	for i := 0; i <= maxLevel; i++ {
		h[i] = NewLevelHandler(i)
	}
	return h
}

func TestTierCompactionPickerRequiresThresholdAndTwoSublevels(t *testing.T) {
	p := &TierCompactionPicker{TierFileNumberThreshold: 1, TargetCompactionSize: 1}
	levels := &core.Levels{L0: &core.OverlappingLevel{SubLevels: []*core.SubLevel{
		{SubLevelId: 1, Tables: []*core.SstableInfo{{Id: 1, FileSize: 10}}, TotalFileSize: 10},
	}}}
	stats := &LocalPickerStatistic{}
	_, ok := p.Pick(levels, newHandlers(0), stats)
	require.False(t, ok, "a single sublevel must not satisfy the threshold")
	require.Equal(t, 1, stats.FileCountLimitSkip)

	levels.L0.SubLevels = append(levels.L0.SubLevels, &core.SubLevel{
		SubLevelId: 2, Tables: []*core.SstableInfo{{Id: 2, FileSize: 10}}, TotalFileSize: 10,
	})
	in, ok := p.Pick(levels, newHandlers(0), &LocalPickerStatistic{})
	require.True(t, ok)
	require.Equal(t, uint64(1), in.TargetSubLevelId, "target sublevel must be the oldest input id")
	require.Len(t, in.InputLevels, 2)
}

func TestTierCompactionPickerSkipsPendingSublevel(t *testing.T) {
	p := &TierCompactionPicker{TierFileNumberThreshold: 1, TargetCompactionSize: 1}
	levels := &core.Levels{L0: &core.OverlappingLevel{SubLevels: []*core.SubLevel{
		{SubLevelId: 1, Tables: []*core.SstableInfo{{Id: 1, FileSize: 10}}, TotalFileSize: 10},
		{SubLevelId: 2, Tables: []*core.SstableInfo{{Id: 2, FileSize: 10}}, TotalFileSize: 10},
	}}}
	handlers := newHandlers(0)
	handlers[0].AddPendingTask(99, 0, []uint64{1})

	stats := &LocalPickerStatistic{}
	_, ok := p.Pick(levels, handlers, stats)
	require.False(t, ok, "the leading sublevel is locked, leaving only one unlocked sublevel — not enough to form a run")
	require.Equal(t, 1, stats.PendingFilesSkip)
}

func TestLevelCompactionPickerJoinsOverlappingBaseFiles(t *testing.T) {
	levels := &core.Levels{
		L0: &core.OverlappingLevel{SubLevels: []*core.SubLevel{
			{SubLevelId: 5, Tables: []*core.SstableInfo{{Id: 1, KeyRange: core.KeyRange{Left: []byte("a"), Right: []byte("m")}}}},
		}},
		Levels: []*core.Level{
			{LevelIdx: 1, Tables: []*core.SstableInfo{
				{Id: 2, KeyRange: core.KeyRange{Left: []byte("b"), Right: []byte("c")}},
				{Id: 3, KeyRange: core.KeyRange{Left: []byte("x"), Right: []byte("z")}},
			}},
		},
	}
	p := &LevelCompactionPicker{BaseLevel: 1, Overlap: &RangeOverlapStrategy{}}
	in, ok := p.Pick(levels, newHandlers(1), &LocalPickerStatistic{})
	require.True(t, ok)
	require.Equal(t, 1, in.TargetLevel)
	require.Len(t, in.InputLevels, 2)
	require.Equal(t, []uint64{2}, idsOf(in.InputLevels[1].Tables))
}

func TestMinOverlappingPickerPrefersSmallerOverlap(t *testing.T) {
	levels := &core.Levels{Levels: []*core.Level{
		{LevelIdx: 1, Tables: []*core.SstableInfo{
			{Id: 10, KeyRange: core.KeyRange{Left: []byte("a"), Right: []byte("b")}},
			{Id: 11, KeyRange: core.KeyRange{Left: []byte("m"), Right: []byte("n")}},
		}},
		{LevelIdx: 2, Tables: []*core.SstableInfo{
			{Id: 20, KeyRange: core.KeyRange{Left: []byte("a"), Right: []byte("b")}, FileSize: 100},
			{Id: 21, KeyRange: core.KeyRange{Left: []byte("n"), Right: []byte("n")}, FileSize: 1},
		}},
	}}
	p := &MinOverlappingPicker{SourceLevel: 1, Overlap: &RangeOverlapStrategy{}}
	in, ok := p.Pick(levels, newHandlers(2), &LocalPickerStatistic{})
	require.True(t, ok)
	require.Equal(t, []uint64{11}, idsOf(in.InputLevels[0].Tables), "file 11 overlaps the lighter level-2 file")
}

func TestTtlPickerSelectsExpiredTables(t *testing.T) {
	levels := &core.Levels{Levels: []*core.Level{
		{LevelIdx: 1, Tables: []*core.SstableInfo{
			{Id: 1, TableIds: []uint32{7}, MinEpoch: 0},
			{Id: 2, TableIds: []uint32{7}, MinEpoch: 90},
		}},
	}}
	p := &TtlPicker{Option: TtlPickerOption{TableTTLEpoch: map[uint32]uint64{7: 50}, CurrentEpoch: 100}}
	in, ok := p.Pick(levels, newHandlers(1), &LocalPickerStatistic{})
	require.True(t, ok)
	require.Equal(t, []uint64{1}, idsOf(in.InputLevels[0].Tables))
}

func TestSpaceReclaimPickerSelectsVanishedTables(t *testing.T) {
	levels := &core.Levels{Levels: []*core.Level{
		{LevelIdx: 1, Tables: []*core.SstableInfo{
			{Id: 1, TableIds: []uint32{1}},
			{Id: 2, TableIds: []uint32{2}},
		}},
	}}
	p := &SpaceReclaimPicker{LiveTableIds: map[uint32]struct{}{1: {}}}
	in, ok := p.Pick(levels, newHandlers(1), &LocalPickerStatistic{})
	require.True(t, ok)
	require.Equal(t, []uint64{2}, idsOf(in.InputLevels[0].Tables))
}

func TestTargetFileSizeAndCompressionFor(t *testing.T) {
	cfg := core.CompactionConfig{
		BaseLevel:            2,
		TargetFileSizeBase:   1024,
		CompressionAlgorithm: []core.CompressionAlgorithm{core.CompressionNone, core.CompressionLz4, core.CompressionZstd},
	}
	require.Equal(t, uint64(1024), TargetFileSize(cfg, 0))
	require.Equal(t, uint64(1024), TargetFileSize(cfg, 2))
	require.Equal(t, uint64(2048), TargetFileSize(cfg, 4))

	require.Equal(t, core.CompressionNone, CompressionFor(cfg, 0))
	require.Equal(t, core.CompressionLz4, CompressionFor(cfg, 2))
	require.Equal(t, core.CompressionZstd, CompressionFor(cfg, 3))
	require.Equal(t, core.CompressionZstd, CompressionFor(cfg, 10), "index clamps to the last configured entry")
}

func idsOf(tables []*core.SstableInfo) []uint64 {
	out := make([]uint64, len(tables))
	for i, t := range tables {
		out[i] = t.Id
	}
	return out
}
