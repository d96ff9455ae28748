// SPDX-License-Identifier: AGPL-3.0-only

package manager

import (
	"context"

	"github.com/gogo/protobuf/proto"

	"github.com/risingwavelabs/hummock/pkg/hummock/core"
	"github.com/risingwavelabs/hummock/pkg/hummock/hummockpb"
	"github.com/risingwavelabs/hummock/pkg/hummock/metastore"
)

// PinVersion implements §4.8 pin_version: records min_pinned_id =
// current.id for ctx if lower than any existing pin, and returns the
// full version body. Idempotent.
func (m *Manager) PinVersion(ctx context.Context, contextID uint64) (*core.HummockVersion, error) {
	m.versioningMu.Lock()
	defer m.versioningMu.Unlock()

	pin, ok := m.versioning.pinnedVersions[contextID]
	if !ok {
		pin = &core.PinnedVersion{ContextId: contextID, MinPinnedVersionId: m.versioning.current.Id}
		m.versioning.pinnedVersions[contextID] = pin
	} else if m.versioning.current.Id < pin.MinPinnedVersionId {
		pin.MinPinnedVersionId = m.versioning.current.Id
	}

	if err := m.persistPin(ctx, metastore.NamespacePinnedVersion, contextID, &hummockpb.PinnedVersion{
		ContextId: pin.ContextId, MinPinnedVersionId: pin.MinPinnedVersionId,
	}); err != nil {
		return nil, err
	}
	m.metrics.pinnedVersions.Set(float64(len(m.versioning.pinnedVersions)))
	return m.versioning.current.Clone(), nil
}

// UnpinVersionBefore implements §4.8 unpin_version_before: advances ctx's
// pin to id, making previously pinned lower ids eligible for GC.
func (m *Manager) UnpinVersionBefore(ctx context.Context, contextID, id uint64) error {
	m.versioningMu.Lock()
	defer m.versioningMu.Unlock()

	pin, ok := m.versioning.pinnedVersions[contextID]
	if !ok {
		return ErrInvalidContext
	}
	if id > pin.MinPinnedVersionId {
		pin.MinPinnedVersionId = id
	}
	return m.persistPin(ctx, metastore.NamespacePinnedVersion, contextID, &hummockpb.PinnedVersion{
		ContextId: pin.ContextId, MinPinnedVersionId: pin.MinPinnedVersionId,
	})
}

// PinSnapshot implements §4.8 pin_snapshot: pins at the current
// max_committed_epoch and returns the latest snapshot.
func (m *Manager) PinSnapshot(ctx context.Context, contextID uint64) (core.HummockSnapshot, error) {
	return m.PinSpecificSnapshot(ctx, contextID, m.currentMaxCommittedEpoch())
}

// PinSpecificSnapshot implements §4.8 pin_specific_snapshot:
// minimal_pinned_snapshot = min(requested, max_committed_epoch).
func (m *Manager) PinSpecificSnapshot(ctx context.Context, contextID, epoch uint64) (core.HummockSnapshot, error) {
	m.versioningMu.Lock()
	defer m.versioningMu.Unlock()

	if epoch > m.versioning.current.MaxCommittedEpoch {
		epoch = m.versioning.current.MaxCommittedEpoch
	}
	pin, ok := m.versioning.pinnedSnapshots[contextID]
	if !ok {
		pin = &core.PinnedSnapshot{ContextId: contextID, MinimalPinnedEpoch: epoch}
		m.versioning.pinnedSnapshots[contextID] = pin
	} else if epoch < pin.MinimalPinnedEpoch {
		pin.MinimalPinnedEpoch = epoch
	}

	if err := m.persistPin(ctx, metastore.NamespacePinnedSnapshot, contextID, &hummockpb.PinnedSnapshot{
		ContextId: pin.ContextId, MinimalPinnedEpoch: pin.MinimalPinnedEpoch,
	}); err != nil {
		return core.HummockSnapshot{}, err
	}
	m.metrics.pinnedSnapshots.Set(float64(len(m.versioning.pinnedSnapshots)))
	return m.versioning.snapshot(), nil
}

// UnpinSnapshotBefore implements §4.8 unpin_snapshot_before: advances
// ctx's snapshot pin watermark, possibly releasing earlier snapshots.
func (m *Manager) UnpinSnapshotBefore(ctx context.Context, contextID uint64, snap core.HummockSnapshot) error {
	m.versioningMu.Lock()
	defer m.versioningMu.Unlock()

	pin, ok := m.versioning.pinnedSnapshots[contextID]
	if !ok {
		return ErrInvalidContext
	}
	if snap.CommittedEpoch > pin.MinimalPinnedEpoch {
		pin.MinimalPinnedEpoch = snap.CommittedEpoch
	}
	return m.persistPin(ctx, metastore.NamespacePinnedSnapshot, contextID, &hummockpb.PinnedSnapshot{
		ContextId: pin.ContextId, MinimalPinnedEpoch: pin.MinimalPinnedEpoch,
	})
}

// ReleaseContexts implements §5's client-context-invalidation hook:
// unpins every version/snapshot owned by contextID in one metastore txn.
func (m *Manager) ReleaseContexts(ctx context.Context, contextID uint64) error {
	m.versioningMu.Lock()
	defer m.versioningMu.Unlock()

	_, hadVersion := m.versioning.pinnedVersions[contextID]
	_, hadSnapshot := m.versioning.pinnedSnapshots[contextID]
	if !hadVersion && !hadSnapshot {
		return nil
	}

	var ops []metastore.Op
	if hadVersion {
		ops = append(ops, metastore.Delete(metastore.NamespacePinnedVersion, key(contextID)))
	}
	if hadSnapshot {
		ops = append(ops, metastore.Delete(metastore.NamespacePinnedSnapshot, key(contextID)))
	}
	if err := m.store.Txn(ctx, ops...); err != nil {
		return err
	}
	delete(m.versioning.pinnedVersions, contextID)
	delete(m.versioning.pinnedSnapshots, contextID)
	m.metrics.pinnedVersions.Set(float64(len(m.versioning.pinnedVersions)))
	m.metrics.pinnedSnapshots.Set(float64(len(m.versioning.pinnedSnapshots)))
	return nil
}

func (m *Manager) currentMaxCommittedEpoch() uint64 {
	m.versioningMu.RLock()
	defer m.versioningMu.RUnlock()
	return m.versioning.current.MaxCommittedEpoch
}

func (m *Manager) persistPin(ctx context.Context, ns metastore.Namespace, contextID uint64, value proto.Message) error {
	raw, err := hummockpb.Marshal(value)
	if err != nil {
		return err
	}
	return m.store.Txn(ctx, metastore.Put(ns, key(contextID), raw))
}
