// SPDX-License-Identifier: AGPL-3.0-only

// Package metastore implements the Meta Store Adapter of SPEC_FULL.md §0
// and §4.10: an all-or-nothing transactional key/value contract over a
// fixed set of typed namespaces, plus an in-memory implementation and a
// pre-allocating id generator. Values are opaque byte strings; callers
// marshal/unmarshal them with github.com/gogo/protobuf/proto against the
// hummockpb message types.
package metastore

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// Namespace identifies one of the typed key spaces listed in §6.1.
type Namespace string

const (
	NamespaceVersions      Namespace = "hummock_version"
	NamespaceDeltas        Namespace = "hummock_version_delta"
	NamespaceCompactStatus Namespace = "compact_status"
	NamespaceAssignments   Namespace = "compact_task_assignment"
	NamespacePinnedVersion Namespace = "pinned_version"
	NamespacePinnedSnapshot Namespace = "pinned_snapshot"
	NamespaceGroups        Namespace = "compaction_group"
	NamespaceStats         Namespace = "hummock_version_stats"
	NamespaceSequence      Namespace = "id_sequence"
)

// Op is one write within a transaction: either a Put or, when Value is
// nil, a Delete.
type Op struct {
	Namespace Namespace
	Key       string
	Value     []byte
}

// Put returns a write op.
func Put(ns Namespace, key string, value []byte) Op { return Op{Namespace: ns, Key: key, Value: value} }

// Delete returns a tombstone op.
func Delete(ns Namespace, key string) Op { return Op{Namespace: ns, Key: key} }

// Store is the contract the manager programs against: an all-or-nothing
// multi-namespace transaction, plus single-key/prefix reads used for
// startup replay (§6.1).
type Store interface {
	// Txn applies every op atomically. A failure leaves the store exactly
	// as it was before the call (§4.10: "on store error the staged
	// changes are dropped").
	Txn(ctx context.Context, ops ...Op) error
	Get(ctx context.Context, ns Namespace, key string) ([]byte, bool, error)
	List(ctx context.Context, ns Namespace) (map[string][]byte, error)
}

// InMemory is a mutex-guarded Store used both by tests and by the
// cmd/hummock-meta entry point, which otherwise has no durable backend
// wired (§0: the process hosts the manager over an in-process metastore).
type InMemory struct {
	mu   sync.Mutex
	data map[Namespace]map[string][]byte
}

// NewInMemory returns an empty store; a namespace's bucket is created by
// the first Txn that writes to it.
func NewInMemory() *InMemory {
	return &InMemory{data: make(map[Namespace]map[string][]byte)}
}

func (s *InMemory) Txn(ctx context.Context, ops ...Op) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// Validate before mutating so a malformed batch never partially applies.
	for _, op := range ops {
		if op.Namespace == "" || op.Key == "" {
			return errors.Errorf("metastore: op with empty namespace or key: %+v", op)
		}
	}
	for _, op := range ops {
		bucket, ok := s.data[op.Namespace]
		if !ok {
			bucket = make(map[string][]byte)
			s.data[op.Namespace] = bucket
		}
		if op.Value == nil {
			delete(bucket, op.Key)
			continue
		}
		cp := append([]byte(nil), op.Value...)
		bucket[op.Key] = cp
	}
	return nil
}

func (s *InMemory) Get(ctx context.Context, ns Namespace, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.data[ns]
	if !ok {
		return nil, false, nil
	}
	v, ok := bucket[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *InMemory) List(ctx context.Context, ns Namespace) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]byte, len(s.data[ns]))
	for k, v := range s.data[ns] {
		out[k] = append([]byte(nil), v...)
	}
	return out, nil
}
