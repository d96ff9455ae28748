// SPDX-License-Identifier: AGPL-3.0-only

package notify

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBusPublishFansOutToAllSubscribers(t *testing.T) {
	b := NewBus()
	_, ch1 := b.Subscribe(1)
	_, ch2 := b.Subscribe(1)

	b.Publish(Event{Kind: EventVersionDelta, VersionID: 1})

	ev1 := <-ch1
	ev2 := <-ch2
	require.Equal(t, uint64(1), ev1.VersionID)
	require.Equal(t, uint64(1), ev2.VersionID)
}

func TestBusPublishDropsForSlowSubscriberWithoutBlocking(t *testing.T) {
	b := NewBus()
	_, ch := b.Subscribe(1)

	b.Publish(Event{VersionID: 1})
	b.Publish(Event{VersionID: 2}) // channel is full; must be dropped, not block

	ev := <-ch
	require.Equal(t, uint64(1), ev.VersionID, "the first event delivered must still be the oldest one buffered")
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	b := NewBus()
	id, ch := b.Subscribe(1)
	b.Unsubscribe(id)

	_, ok := <-ch
	require.False(t, ok)
}

func TestBusPublishAfterUnsubscribeIsNoop(t *testing.T) {
	b := NewBus()
	id, _ := b.Subscribe(1)
	b.Unsubscribe(id)

	require.NotPanics(t, func() {
		b.Publish(Event{VersionID: 1})
	})
}

func TestBusPeriodicCompactionEventCarriesPayload(t *testing.T) {
	b := NewBus()
	_, ch := b.Subscribe(1)

	type req struct {
		GroupId uint64
	}
	b.Publish(Event{Kind: EventPeriodicCompaction, VersionID: 3, Payload: req{GroupId: 3}})

	ev := <-ch
	require.Equal(t, EventPeriodicCompaction, ev.Kind)
	require.Equal(t, req{GroupId: 3}, ev.Payload)
}
