// SPDX-License-Identifier: AGPL-3.0-only

package metastore

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/pkg/errors"
)

// SequenceGenerator hands out monotonically increasing ids in
// configurable-size chunks, persisting only the high watermark after each
// chunk is exhausted (§6.1 id_sequence/{category}, SPEC_FULL.md §4:
// GetNewSstIds / new task ids are pre-allocated this way so that every id
// issued between two persisted watermarks survives a crash without a
// metastore round trip per id).
type SequenceGenerator struct {
	store     Store
	chunkSize uint64

	mu       sync.Mutex
	next     map[string]uint64 // category -> next unissued id, in-memory
	highWatermark map[string]uint64 // category -> persisted ceiling
}

// NewSequenceGenerator returns a generator that pre-allocates chunkSize
// ids from the metastore at a time.
func NewSequenceGenerator(store Store, chunkSize uint64) *SequenceGenerator {
	if chunkSize == 0 {
		chunkSize = 1
	}
	return &SequenceGenerator{
		store:         store,
		chunkSize:     chunkSize,
		next:          make(map[string]uint64),
		highWatermark: make(map[string]uint64),
	}
}

// Next returns the next unused id for category, extending the persisted
// high watermark by one chunk when the in-memory allocation is exhausted.
func (g *SequenceGenerator) Next(ctx context.Context, category string) (uint64, error) {
	ids, err := g.NextN(ctx, category, 1)
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// NextN returns n consecutive ids for category.
func (g *SequenceGenerator) NextN(ctx context.Context, category string, n uint64) ([]uint64, error) {
	if n == 0 {
		return nil, nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.highWatermark[category] == 0 {
		v, ok, err := g.store.Get(ctx, NamespaceSequence, category)
		if err != nil {
			return nil, errors.Wrap(err, "metastore: load id sequence")
		}
		if ok {
			g.next[category] = binary.BigEndian.Uint64(v)
			g.highWatermark[category] = g.next[category]
		} else {
			g.next[category] = 1
			g.highWatermark[category] = 1
		}
	}

	out := make([]uint64, n)
	for i := uint64(0); i < n; i++ {
		if g.next[category] >= g.highWatermark[category] {
			newCeiling := g.highWatermark[category] + g.chunkSize
			buf := make([]byte, 8)
			binary.BigEndian.PutUint64(buf, newCeiling)
			if err := g.store.Txn(ctx, Put(NamespaceSequence, category, buf)); err != nil {
				return nil, errors.Wrap(err, "metastore: extend id sequence")
			}
			g.highWatermark[category] = newCeiling
		}
		out[i] = g.next[category]
		g.next[category]++
	}
	return out, nil
}
