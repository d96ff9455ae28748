// SPDX-License-Identifier: AGPL-3.0-only

package metastore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStagedCommit(t *testing.T) {
	s := NewStaged(1)
	require.False(t, s.HasPending())

	s.Stage(2)
	require.True(t, s.HasPending())
	require.Equal(t, 1, s.Get(), "Get must not observe an uncommitted stage")

	s.Commit()
	require.False(t, s.HasPending())
	require.Equal(t, 2, s.Get())
}

func TestStagedDiscard(t *testing.T) {
	s := NewStaged("a")
	s.Stage("b")
	s.Discard()
	require.False(t, s.HasPending())
	require.Equal(t, "a", s.Get())
}

func TestStagedCommitWithNoPendingIsNoop(t *testing.T) {
	s := NewStaged(5)
	s.Commit()
	require.Equal(t, 5, s.Get())
}
