// SPDX-License-Identifier: AGPL-3.0-only

package compaction

import (
	"sort"

	"github.com/risingwavelabs/hummock/pkg/hummock/core"
)

// LocalPickerStatistic counts the reasons a picker invocation declined to
// nominate a compaction input (§4.3).
type LocalPickerStatistic struct {
	WriteAmpLimitSkip    int
	FileCountLimitSkip   int
	PendingFilesSkip     int
	OverlapConflictSkip  int
}

// CompactionInput is what a Picker nominates: the source levels, the
// target level, and — for tier-compaction output — the target sublevel.
type CompactionInput struct {
	InputLevels      []core.InputLevel
	TargetLevel      int
	TargetSubLevelId uint64
}

// Picker nominates an input set from a level snapshot (§4.3).
type Picker interface {
	Pick(levels *core.Levels, handlers map[int]*LevelHandler, stats *LocalPickerStatistic) (*CompactionInput, bool)
}

// byFileIDAsc breaks ties deterministically: among equal candidates the
// lower file id is preferred (§4.3 tie-break rules).
func byFileIDAsc(tables []*core.SstableInfo) {
	sort.Slice(tables, func(i, j int) bool { return tables[i].Id < tables[j].Id })
}

func sumSize(tables []*core.SstableInfo) uint64 {
	var total uint64
	for _, t := range tables {
		total += t.FileSize
	}
	return total
}

// snapshotDivideVersions captures each table's DivideVersion as observed
// right now, so a task built from this input can later detect a branch
// split that raced its dispatch without reading the live, possibly
// since-mutated field off the shared *SstableInfo.
func snapshotDivideVersions(tables []*core.SstableInfo) map[uint64]uint64 {
	out := make(map[uint64]uint64, len(tables))
	for _, t := range tables {
		out[t.Id] = t.DivideVersion
	}
	return out
}

func anyPending(h *LevelHandler, tables []*core.SstableInfo) bool {
	if h == nil {
		return false
	}
	for _, t := range tables {
		if h.IsPending(t.Id) {
			return true
		}
	}
	return false
}

// TierCompactionPicker implements the L0->L0 tier picker (§4.3): when L0
// has accumulated more sublevels than the configured threshold, it picks
// a run of consecutive, unlocked sublevels (oldest first) whose combined
// size reaches the target, and writes the result to a new L0 sublevel
// identified by the lowest input sublevel id.
type TierCompactionPicker struct {
	TierFileNumberThreshold int
	TargetCompactionSize    uint64
}

func (p *TierCompactionPicker) Pick(levels *core.Levels, handlers map[int]*LevelHandler, stats *LocalPickerStatistic) (*CompactionInput, bool) {
	h0 := handlers[0]
	subLevels := levels.L0.SubLevels
	if len(subLevels) <= p.TierFileNumberThreshold {
		stats.FileCountLimitSkip++
		return nil, false
	}

	var run []*core.SubLevel
	var runSize uint64
	for _, sl := range subLevels {
		if anyPending(h0, sl.Tables) {
			if len(run) == 0 {
				stats.PendingFilesSkip++
				continue
			}
			break
		}
		run = append(run, sl)
		runSize += sl.TotalFileSize
		if runSize >= p.TargetCompactionSize && len(run) >= 2 {
			break
		}
	}
	if len(run) < 2 {
		stats.WriteAmpLimitSkip++
		return nil, false
	}

	var inputLevels []core.InputLevel
	for _, sl := range run {
		tables := append([]*core.SstableInfo(nil), sl.Tables...)
		byFileIDAsc(tables)
		inputLevels = append(inputLevels, core.InputLevel{
			LevelIdx:       0,
			SubLevelId:     sl.SubLevelId,
			LevelType:      sl.Type,
			Tables:         tables,
			DivideVersions: snapshotDivideVersions(tables),
		})
	}

	return &CompactionInput{
		InputLevels:      inputLevels,
		TargetLevel:      0,
		TargetSubLevelId: run[0].SubLevelId,
	}, true
}

// LevelCompactionPicker implements the L0->Lbase picker (§4.3): it picks
// the single oldest eligible sublevel and every Lbase sst overlapping it.
// Li->Li+1 picks are made by InterLevelCompactionPicker instead.
type LevelCompactionPicker struct {
	BaseLevel int
	Overlap   OverlapStrategy
}

func (p *LevelCompactionPicker) Pick(levels *core.Levels, handlers map[int]*LevelHandler, stats *LocalPickerStatistic) (*CompactionInput, bool) {
	h0 := handlers[0]
	for _, sl := range levels.L0.SubLevels {
		if anyPending(h0, sl.Tables) {
			stats.PendingFilesSkip++
			continue
		}
		base := levels.Level(p.BaseLevel)
		var baseTables []*core.SstableInfo
		if base != nil {
			kr := tablesKeyRange(sl.Tables)
			baseTables = p.Overlap.OverlappingTables(kr, base.Tables)
			if anyPending(handlers[p.BaseLevel], baseTables) {
				stats.OverlapConflictSkip++
				continue
			}
		}

		l0Tables := append([]*core.SstableInfo(nil), sl.Tables...)
		byFileIDAsc(l0Tables)
		byFileIDAsc(baseTables)

		input := []core.InputLevel{{
			LevelIdx:       0,
			SubLevelId:     sl.SubLevelId,
			LevelType:      sl.Type,
			Tables:         l0Tables,
			DivideVersions: snapshotDivideVersions(l0Tables),
		}}
		if len(baseTables) > 0 {
			baseType := core.LevelTypeNonOverlapping
			if base != nil {
				baseType = base.Type
			}
			input = append(input, core.InputLevel{
				LevelIdx:       p.BaseLevel,
				LevelType:      baseType,
				Tables:         baseTables,
				DivideVersions: snapshotDivideVersions(baseTables),
			})
		}
		return &CompactionInput{InputLevels: input, TargetLevel: p.BaseLevel}, true
	}
	return nil, false
}

// InterLevelCompactionPicker handles Li -> Li+1 for i >= BaseLevel.
type InterLevelCompactionPicker struct {
	SourceLevel int
	Overlap     OverlapStrategy
}

func (p *InterLevelCompactionPicker) Pick(levels *core.Levels, handlers map[int]*LevelHandler, stats *LocalPickerStatistic) (*CompactionInput, bool) {
	src := levels.Level(p.SourceLevel)
	if src == nil || len(src.Tables) == 0 {
		return nil, false
	}
	next := levels.Level(p.SourceLevel + 1)

	type candidate struct {
		table       *core.SstableInfo
		overlapSize uint64
		overlapping []*core.SstableInfo
	}
	var candidates []candidate
	srcHandler := handlers[p.SourceLevel]
	nextHandler := handlers[p.SourceLevel+1]
	for _, t := range src.Tables {
		if srcHandler != nil && srcHandler.IsPending(t.Id) {
			continue
		}
		var overlapping []*core.SstableInfo
		if next != nil {
			overlapping = p.Overlap.OverlappingTables(t.KeyRange, next.Tables)
		}
		if anyPending(nextHandler, overlapping) {
			continue
		}
		candidates = append(candidates, candidate{table: t, overlapSize: sumSize(overlapping), overlapping: overlapping})
	}
	if len(candidates) == 0 {
		stats.PendingFilesSkip++
		return nil, false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].overlapSize != candidates[j].overlapSize {
			return candidates[i].overlapSize < candidates[j].overlapSize
		}
		return candidates[i].table.Id < candidates[j].table.Id
	})
	best := candidates[0]

	srcTables := []*core.SstableInfo{best.table}
	input := []core.InputLevel{{
		LevelIdx:       p.SourceLevel,
		LevelType:      src.Type,
		Tables:         srcTables,
		DivideVersions: snapshotDivideVersions(srcTables),
	}}
	if len(best.overlapping) > 0 {
		tables := append([]*core.SstableInfo(nil), best.overlapping...)
		byFileIDAsc(tables)
		nextType := core.LevelTypeNonOverlapping
		if next != nil {
			nextType = next.Type
		}
		input = append(input, core.InputLevel{
			LevelIdx:       p.SourceLevel + 1,
			LevelType:      nextType,
			Tables:         tables,
			DivideVersions: snapshotDivideVersions(tables),
		})
	}
	return &CompactionInput{InputLevels: input, TargetLevel: p.SourceLevel + 1}, true
}

// MinOverlappingPicker chooses a single file (from any non-L0 level)
// whose overlap byte-count with the next level is minimum, skipping
// locked files (§4.3).
type MinOverlappingPicker struct {
	SourceLevel int
	Overlap     OverlapStrategy
}

func (p *MinOverlappingPicker) Pick(levels *core.Levels, handlers map[int]*LevelHandler, stats *LocalPickerStatistic) (*CompactionInput, bool) {
	ilp := &InterLevelCompactionPicker{SourceLevel: p.SourceLevel, Overlap: p.Overlap}
	return ilp.Pick(levels, handlers, stats)
}

// ManualCompactionOption filters candidates by explicit sst-ids, key
// range, table-id set and starting level (§4.3).
type ManualCompactionOption struct {
	StartLevel int
	SstIds     map[uint64]struct{}
	KeyRange   core.KeyRange
	TableIds   map[uint32]struct{}
}

// ManualCompactionPicker selects exactly the SSTs matching the operator's
// explicit filter, at the configured starting level.
type ManualCompactionPicker struct {
	Option  ManualCompactionOption
	Overlap OverlapStrategy
}

func (p *ManualCompactionPicker) matches(t *core.SstableInfo) bool {
	if len(p.Option.SstIds) > 0 {
		if _, ok := p.Option.SstIds[t.Id]; !ok {
			return false
		}
	}
	if len(p.Option.TableIds) > 0 {
		found := false
		for _, tid := range t.TableIds {
			if _, ok := p.Option.TableIds[tid]; ok {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !p.Option.KeyRange.Empty() || len(p.Option.KeyRange.Left) > 0 || len(p.Option.KeyRange.Right) > 0 {
		if !p.Overlap.Overlaps(p.Option.KeyRange, t.KeyRange) {
			return false
		}
	}
	return true
}

func (p *ManualCompactionPicker) Pick(levels *core.Levels, handlers map[int]*LevelHandler, stats *LocalPickerStatistic) (*CompactionInput, bool) {
	level := p.Option.StartLevel
	var source []*core.SstableInfo
	if level == 0 {
		for _, sl := range levels.L0.SubLevels {
			source = append(source, sl.Tables...)
		}
	} else {
		l := levels.Level(level)
		if l != nil {
			source = l.Tables
		}
	}

	var matched []*core.SstableInfo
	for _, t := range source {
		if !p.matches(t) {
			continue
		}
		if anyPending(handlers[level], []*core.SstableInfo{t}) {
			stats.PendingFilesSkip++
			continue
		}
		matched = append(matched, t)
	}
	if len(matched) == 0 {
		return nil, false
	}
	byFileIDAsc(matched)

	target := level
	if level < len(levels.Levels) {
		target = level + 1
	}
	var nextTables []*core.SstableInfo
	if target != level {
		next := levels.Level(target)
		if next != nil {
			nextTables = p.Overlap.OverlappingTables(tablesKeyRange(matched), next.Tables)
		}
	}

	// An operator-triggered L0 source spans every sublevel it matched
	// against, so it carries no single sublevel's overlapping-ness and is
	// conservatively never trivial-move eligible; a non-L0 source reports
	// its level's real Type.
	srcType := core.LevelTypeOverlapping
	if level != 0 {
		if l := levels.Level(level); l != nil {
			srcType = l.Type
		}
	}
	input := []core.InputLevel{{
		LevelIdx:       level,
		LevelType:      srcType,
		Tables:         matched,
		DivideVersions: snapshotDivideVersions(matched),
	}}
	if len(nextTables) > 0 {
		byFileIDAsc(nextTables)
		nextType := core.LevelTypeNonOverlapping
		if next := levels.Level(target); next != nil {
			nextType = next.Type
		}
		input = append(input, core.InputLevel{
			LevelIdx:       target,
			LevelType:      nextType,
			Tables:         nextTables,
			DivideVersions: snapshotDivideVersions(nextTables),
		})
	}
	return &CompactionInput{InputLevels: input, TargetLevel: target}, true
}

// TtlPickerOption configures per-table TTL thresholds, keyed by table id.
type TtlPickerOption struct {
	TableTTLEpoch map[uint32]uint64 // table id -> max age in epoch units
	CurrentEpoch  uint64
}

// TtlPicker selects files whose min epoch is older than the owning
// table's configured TTL (§4.3).
type TtlPicker struct {
	Option TtlPickerOption
}

func (p *TtlPicker) Pick(levels *core.Levels, handlers map[int]*LevelHandler, stats *LocalPickerStatistic) (*CompactionInput, bool) {
	for levelIdx := 1; levelIdx <= len(levels.Levels); levelIdx++ {
		l := levels.Level(levelIdx)
		if l == nil {
			continue
		}
		var matched []*core.SstableInfo
		for _, t := range l.Tables {
			if handlers[levelIdx] != nil && handlers[levelIdx].IsPending(t.Id) {
				continue
			}
			if p.isExpired(t) {
				matched = append(matched, t)
			}
		}
		if len(matched) > 0 {
			byFileIDAsc(matched)
			input := core.InputLevel{LevelIdx: levelIdx, LevelType: l.Type, Tables: matched, DivideVersions: snapshotDivideVersions(matched)}
			return &CompactionInput{InputLevels: []core.InputLevel{input}, TargetLevel: levelIdx}, true
		}
	}
	return nil, false
}

func (p *TtlPicker) isExpired(t *core.SstableInfo) bool {
	for _, tid := range t.TableIds {
		ttl, ok := p.Option.TableTTLEpoch[tid]
		if !ok || ttl == 0 {
			continue
		}
		if p.Option.CurrentEpoch > t.MinEpoch && p.Option.CurrentEpoch-t.MinEpoch > ttl {
			return true
		}
	}
	return false
}

// SpaceReclaimPicker selects files referencing only table ids no longer
// present in the live catalog (§4.3).
type SpaceReclaimPicker struct {
	LiveTableIds map[uint32]struct{}
}

func (p *SpaceReclaimPicker) Pick(levels *core.Levels, handlers map[int]*LevelHandler, stats *LocalPickerStatistic) (*CompactionInput, bool) {
	for levelIdx := 1; levelIdx <= len(levels.Levels); levelIdx++ {
		l := levels.Level(levelIdx)
		if l == nil {
			continue
		}
		var matched []*core.SstableInfo
		for _, t := range l.Tables {
			if handlers[levelIdx] != nil && handlers[levelIdx].IsPending(t.Id) {
				continue
			}
			if p.isVanished(t) {
				matched = append(matched, t)
			}
		}
		if len(matched) > 0 {
			byFileIDAsc(matched)
			input := core.InputLevel{LevelIdx: levelIdx, LevelType: l.Type, Tables: matched, DivideVersions: snapshotDivideVersions(matched)}
			return &CompactionInput{InputLevels: []core.InputLevel{input}, TargetLevel: levelIdx}, true
		}
	}
	return nil, false
}

func (p *SpaceReclaimPicker) isVanished(t *core.SstableInfo) bool {
	if len(t.TableIds) == 0 {
		return false
	}
	for _, tid := range t.TableIds {
		if _, ok := p.LiveTableIds[tid]; ok {
			return false
		}
	}
	return true
}
