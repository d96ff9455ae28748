// SPDX-License-Identifier: AGPL-3.0-only

package compaction

import "github.com/risingwavelabs/hummock/pkg/hummock/core"

// LevelSelector chooses which picker to run for a compaction group and
// computes the resulting task's target file size and compression (§4.4).
type LevelSelector interface {
	PickCompaction(groupID uint64, levels *core.Levels, handlers map[int]*LevelHandler, cfg core.CompactionConfig, stats *LocalPickerStatistic) (*CompactionInput, core.TaskType, bool)
}

// DynamicLevelSelector implements the tier -> level -> min-overlap chain
// used for ordinary, non-manual compaction.
type DynamicLevelSelector struct {
	Overlap OverlapStrategy
}

func (s *DynamicLevelSelector) PickCompaction(groupID uint64, levels *core.Levels, handlers map[int]*LevelHandler, cfg core.CompactionConfig, stats *LocalPickerStatistic) (*CompactionInput, core.TaskType, bool) {
	tier := &TierCompactionPicker{
		TierFileNumberThreshold: cfg.Level0TierCompactFileNumber,
		TargetCompactionSize:    cfg.TargetFileSizeBase,
	}
	if in, ok := tier.Pick(levels, handlers, stats); ok {
		return in, core.TaskTypeDynamic, true
	}

	level := &LevelCompactionPicker{BaseLevel: cfg.BaseLevel, Overlap: s.Overlap}
	if in, ok := level.Pick(levels, handlers, stats); ok {
		return in, core.TaskTypeDynamic, true
	}

	for i := cfg.BaseLevel; i < cfg.MaxLevel; i++ {
		inter := &MinOverlappingPicker{SourceLevel: i, Overlap: s.Overlap}
		if in, ok := inter.Pick(levels, handlers, stats); ok {
			return in, core.TaskTypeDynamic, true
		}
	}

	return nil, core.TaskTypeDynamic, false
}

// ManualCompactionSelector wraps an operator-supplied ManualCompactionOption.
type ManualCompactionSelector struct {
	Option  ManualCompactionOption
	Overlap OverlapStrategy
}

func (s *ManualCompactionSelector) PickCompaction(groupID uint64, levels *core.Levels, handlers map[int]*LevelHandler, cfg core.CompactionConfig, stats *LocalPickerStatistic) (*CompactionInput, core.TaskType, bool) {
	picker := &ManualCompactionPicker{Option: s.Option, Overlap: s.Overlap}
	in, ok := picker.Pick(levels, handlers, stats)
	return in, core.TaskTypeManual, ok
}

// TtlCompactionSelector runs the TTL picker.
type TtlCompactionSelector struct {
	Option TtlPickerOption
}

func (s *TtlCompactionSelector) PickCompaction(groupID uint64, levels *core.Levels, handlers map[int]*LevelHandler, cfg core.CompactionConfig, stats *LocalPickerStatistic) (*CompactionInput, core.TaskType, bool) {
	picker := &TtlPicker{Option: s.Option}
	in, ok := picker.Pick(levels, handlers, stats)
	return in, core.TaskTypeTtl, ok
}

// SpaceReclaimCompactionSelector runs the space-reclaim picker.
type SpaceReclaimCompactionSelector struct {
	LiveTableIds map[uint32]struct{}
}

func (s *SpaceReclaimCompactionSelector) PickCompaction(groupID uint64, levels *core.Levels, handlers map[int]*LevelHandler, cfg core.CompactionConfig, stats *LocalPickerStatistic) (*CompactionInput, core.TaskType, bool) {
	picker := &SpaceReclaimPicker{LiveTableIds: s.LiveTableIds}
	in, ok := picker.Pick(levels, handlers, stats)
	return in, core.TaskTypeSpaceReclaim, ok
}

// TargetFileSize implements §4.4: target_file_size = base << (target_level
// - base_level) / 2, or base_file_size when target_level is 0.
func TargetFileSize(cfg core.CompactionConfig, targetLevel int) uint64 {
	if targetLevel <= 0 {
		return cfg.TargetFileSizeBase
	}
	shift := (targetLevel - cfg.BaseLevel) / 2
	if shift < 0 {
		shift = 0
	}
	return cfg.TargetFileSizeBase << uint(shift)
}

// CompressionFor implements §4.4: compression_algorithm =
// config.compression[target_level - base_level + 1], index 0 for L0.
func CompressionFor(cfg core.CompactionConfig, targetLevel int) core.CompressionAlgorithm {
	if len(cfg.CompressionAlgorithm) == 0 {
		return core.CompressionNone
	}
	idx := 0
	if targetLevel > 0 {
		idx = targetLevel - cfg.BaseLevel + 1
	}
	if idx < 0 {
		idx = 0
	}
	if idx >= len(cfg.CompressionAlgorithm) {
		idx = len(cfg.CompressionAlgorithm) - 1
	}
	return cfg.CompressionAlgorithm[idx]
}
