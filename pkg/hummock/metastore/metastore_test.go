// SPDX-License-Identifier: AGPL-3.0-only

package metastore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInMemoryTxnPutAndGet(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	require.NoError(t, s.Txn(ctx, Put(NamespaceGroups, "1", []byte("a"))))
	v, ok, err := s.Get(ctx, NamespaceGroups, "1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("a"), v)
}

func TestInMemoryTxnDelete(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	require.NoError(t, s.Txn(ctx, Put(NamespaceGroups, "1", []byte("a"))))
	require.NoError(t, s.Txn(ctx, Delete(NamespaceGroups, "1")))

	_, ok, err := s.Get(ctx, NamespaceGroups, "1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestInMemoryTxnRejectsMalformedOpWithoutPartialApply(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	err := s.Txn(ctx,
		Put(NamespaceGroups, "1", []byte("a")),
		Op{Namespace: "", Key: "bad", Value: []byte("x")},
	)
	require.Error(t, err)

	_, ok, err := s.Get(ctx, NamespaceGroups, "1")
	require.NoError(t, err)
	require.False(t, ok, "a rejected transaction must not partially apply")
}

func TestInMemoryListReturnsIndependentCopies(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	require.NoError(t, s.Txn(ctx, Put(NamespaceDeltas, "1", []byte("a"))))

	out, err := s.List(ctx, NamespaceDeltas)
	require.NoError(t, err)
	out["1"][0] = 'z'

	v, _, err := s.Get(ctx, NamespaceDeltas, "1")
	require.NoError(t, err)
	require.Equal(t, []byte("a"), v, "mutating a List result must not affect stored data")
}

func TestInMemoryGetMissingNamespace(t *testing.T) {
	s := NewInMemory()
	_, ok, err := s.Get(context.Background(), NamespaceGroups, "missing")
	require.NoError(t, err)
	require.False(t, ok)
}
