// SPDX-License-Identifier: AGPL-3.0-only

package core

// CompressionAlgorithm mirrors the handful of codecs a compaction target
// level may be configured with.
type CompressionAlgorithm uint32

const (
	CompressionNone CompressionAlgorithm = iota
	CompressionLz4
	CompressionZstd
)

// CompactionConfig is the per-group tuning knobs consumed by the Level
// Selector and Compaction Picker implementations.
type CompactionConfig struct {
	MaxLevel               int
	BaseLevel              int
	Level0TierCompactFileNumber int // tier picker fires once L0 has more sublevels than this
	Level0MaxCompactFileNumber  int
	TargetFileSizeBase     uint64
	CompressionAlgorithm   []CompressionAlgorithm // index 0 == L0
	MaxBytesForLevelBase   uint64
	MaxSpaceReclaimBytes   uint64
	SubLevelMaxCompactionBytes uint64
}

// DefaultCompactionConfig returns the conventional defaults used across
// the example test scenarios (§8).
func DefaultCompactionConfig() CompactionConfig {
	return CompactionConfig{
		MaxLevel:                    6,
		BaseLevel:                   1,
		Level0TierCompactFileNumber: 4,
		Level0MaxCompactFileNumber:  16,
		TargetFileSizeBase:          32 << 20,
		CompressionAlgorithm: []CompressionAlgorithm{
			CompressionNone, CompressionLz4, CompressionLz4, CompressionLz4,
			CompressionZstd, CompressionZstd, CompressionZstd,
		},
		MaxBytesForLevelBase: 512 << 20,
	}
}

// CompactionGroup is a collection of state tables sharing one LSM tree.
type CompactionGroup struct {
	GroupId  uint64
	Config   CompactionConfig
	TableIds map[uint32]struct{}
}

// NewCompactionGroup creates a group owning the given tables.
func NewCompactionGroup(id uint64, cfg CompactionConfig, tables []uint32) *CompactionGroup {
	g := &CompactionGroup{GroupId: id, Config: cfg, TableIds: make(map[uint32]struct{}, len(tables))}
	for _, t := range tables {
		g.TableIds[t] = struct{}{}
	}
	return g
}

// HasTable reports group membership of a state table.
func (g *CompactionGroup) HasTable(tableID uint32) bool {
	_, ok := g.TableIds[tableID]
	return ok
}

// Empty reports whether the group owns no tables and is a destroy candidate.
func (g *CompactionGroup) Empty() bool {
	return len(g.TableIds) == 0
}

// Clone deep-copies a compaction group.
func (g *CompactionGroup) Clone() *CompactionGroup {
	if g == nil {
		return nil
	}
	out := &CompactionGroup{GroupId: g.GroupId, Config: g.Config}
	out.Config.CompressionAlgorithm = append([]CompressionAlgorithm(nil), g.Config.CompressionAlgorithm...)
	out.TableIds = make(map[uint32]struct{}, len(g.TableIds))
	for t := range g.TableIds {
		out.TableIds[t] = struct{}{}
	}
	return out
}
