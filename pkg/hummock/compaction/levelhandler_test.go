// SPDX-License-Identifier: AGPL-3.0-only

package compaction

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLevelHandlerAddAndRemovePendingTask(t *testing.T) {
	h := NewLevelHandler(1)
	h.AddPendingTask(10, 2, []uint64{1, 2, 3})

	require.True(t, h.IsPending(1))
	require.True(t, h.IsPending(2))
	require.Equal(t, 3, h.PendingFileCount())

	taskID, ok := h.PendingTaskIDBySst(2)
	require.True(t, ok)
	require.Equal(t, uint64(10), taskID)

	h.RemoveTask(10)
	require.False(t, h.IsPending(1))
	require.Equal(t, 0, h.PendingFileCount())
}

func TestLevelHandlerRemoveTaskIsIdempotent(t *testing.T) {
	h := NewLevelHandler(1)
	h.RemoveTask(999) // unknown task id, must not panic
	require.Equal(t, 0, h.PendingFileCount())
}

func TestLevelHandlerSnapshotRestoreRoundTrip(t *testing.T) {
	h := NewLevelHandler(3)
	h.AddPendingTask(1, 4, []uint64{100, 101})
	h.AddPendingTask(2, 4, []uint64{200})

	snap := h.Snapshot()
	require.Len(t, snap, 3)

	restored := NewLevelHandler(3)
	restored.Restore(snap)

	for _, e := range snap {
		taskID, ok := restored.PendingTaskIDBySst(e.SstId)
		require.True(t, ok)
		require.Equal(t, e.TaskId, taskID)
	}
	require.ElementsMatch(t, h.PendingTaskIds(), restored.PendingTaskIds())
}
