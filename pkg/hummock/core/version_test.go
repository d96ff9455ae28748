// SPDX-License-Identifier: AGPL-3.0-only

package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVersionStatsApplyDelta(t *testing.T) {
	testCases := []struct {
		name      string
		initial   map[uint32]*TableStats
		deltas    map[uint32]TableStats
		expectIDs []uint32
	}{
		{
			name:    "new table row created",
			initial: map[uint32]*TableStats{},
			deltas: map[uint32]TableStats{
				1: {TotalKeySize: 10, TotalValueSize: 20, TotalKeyCount: 2},
			},
			expectIDs: []uint32{1},
		},
		{
			name: "existing row updated in place",
			initial: map[uint32]*TableStats{
				1: {TotalKeySize: 10, TotalValueSize: 20, TotalKeyCount: 2},
			},
			deltas: map[uint32]TableStats{
				1: {TotalKeySize: 5, TotalValueSize: 5, TotalKeyCount: 1},
			},
			expectIDs: []uint32{1},
		},
		{
			name: "row purged once key count reaches zero",
			initial: map[uint32]*TableStats{
				1: {TotalKeySize: 10, TotalValueSize: 20, TotalKeyCount: 2},
			},
			deltas: map[uint32]TableStats{
				1: {TotalKeySize: -10, TotalValueSize: -20, TotalKeyCount: -2},
			},
			expectIDs: nil,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := &VersionStats{Tables: tc.initial}
			s.ApplyDelta(tc.deltas)
			var got []uint32
			for id := range s.Tables {
				got = append(got, id)
			}
			require.ElementsMatch(t, tc.expectIDs, got)
		})
	}
}

func TestVersionStatsPurgeVanished(t *testing.T) {
	s := &VersionStats{Tables: map[uint32]*TableStats{
		1: {TotalKeyCount: 1},
		2: {TotalKeyCount: 1},
	}}
	s.PurgeVanished(map[uint32]struct{}{1: {}})
	require.Contains(t, s.Tables, uint32(1))
	require.NotContains(t, s.Tables, uint32(2))
}

func TestBranchedSSTsInsertAndRemove(t *testing.T) {
	b := NewBranchedSSTs()
	require.False(t, b.IsBranched(100))

	b.Insert(100, 1, 0)
	b.Insert(100, 2, 1)
	require.True(t, b.IsBranched(100))

	v, ok := b.Get(100, 2)
	require.True(t, ok)
	require.Equal(t, uint64(1), v)

	// Removing one owner leaves a single-owner entry, which must be
	// dropped entirely per the §3 BranchedSST invariant.
	b.Remove(100, 1)
	require.False(t, b.IsBranched(100))
	_, ok = b.Get(100, 2)
	require.False(t, ok)
}

func TestBranchedSSTsClone(t *testing.T) {
	b := NewBranchedSSTs()
	b.Insert(1, 10, 0)
	b.Insert(1, 20, 1)

	clone := b.Clone()
	clone.Remove(1, 10)

	require.True(t, b.IsBranched(1), "mutating the clone must not affect the original")
}

func TestHummockVersionClone(t *testing.T) {
	v := NewHummockVersion()
	v.Levels[1] = NewLevels(3)
	v.MaxCommittedEpoch = 42

	cp := v.Clone()
	cp.MaxCommittedEpoch = 99
	cp.Levels[1].Level(1).Tables = append(cp.Levels[1].Level(1).Tables, &SstableInfo{Id: 1})

	require.Equal(t, uint64(42), v.MaxCommittedEpoch)
	require.Empty(t, v.Levels[1].Level(1).Tables)
}
