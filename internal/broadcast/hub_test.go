package broadcast

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Onyemech/teemplot-sub006/internal/domain"
)

// memorySource fakes the pub/sub backend
type memorySource struct {
	mu    sync.Mutex
	chans map[string]chan []byte
}

func newMemorySource() *memorySource {
	return &memorySource{chans: make(map[string]chan []byte)}
}

func (s *memorySource) Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan []byte, 16)
	s.chans[channel] = ch
	stop := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if cur, ok := s.chans[channel]; ok && cur == ch {
			delete(s.chans, channel)
			close(ch)
		}
	}
	return ch, stop, nil
}

func (s *memorySource) publish(t *testing.T, channel string, snap domain.CapacitySnapshot) {
	t.Helper()
	payload, err := json.Marshal(snap)
	require.NoError(t, err)
	s.mu.Lock()
	ch, ok := s.chans[channel]
	s.mu.Unlock()
	require.True(t, ok, "no subscriber on %s", channel)
	ch <- payload
}

func (s *memorySource) subscribed(channel string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.chans[channel]
	return ok
}

func receiveSnapshot(t *testing.T, ch <-chan domain.CapacitySnapshot) domain.CapacitySnapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		require.True(t, ok, "feed closed")
		return snap
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for capacity update")
		return domain.CapacitySnapshot{}
	}
}

func TestHubFanOut(t *testing.T) {
	source := newMemorySource()
	hub := NewHub(source)
	defer hub.Close()

	ctx := context.Background()

	first, cancelFirst, err := hub.Subscribe(ctx, "company-1")
	require.NoError(t, err)
	defer cancelFirst()

	second, cancelSecond, err := hub.Subscribe(ctx, "company-1")
	require.NoError(t, err)
	defer cancelSecond()

	snap := domain.CapacitySnapshot{CompanyID: "company-1", SeatLimit: 5, UsedSeats: 3}
	source.publish(t, ChannelFor("company-1"), snap)

	assert.Equal(t, snap, receiveSnapshot(t, first))
	assert.Equal(t, snap, receiveSnapshot(t, second))
}

func TestHubIsolatesCompanies(t *testing.T) {
	source := newMemorySource()
	hub := NewHub(source)
	defer hub.Close()

	ctx := context.Background()

	one, cancelOne, err := hub.Subscribe(ctx, "company-1")
	require.NoError(t, err)
	defer cancelOne()

	two, cancelTwo, err := hub.Subscribe(ctx, "company-2")
	require.NoError(t, err)
	defer cancelTwo()

	source.publish(t, ChannelFor("company-2"), domain.CapacitySnapshot{CompanyID: "company-2"})

	got := receiveSnapshot(t, two)
	assert.Equal(t, "company-2", got.CompanyID)

	select {
	case snap := <-one:
		t.Fatalf("company-1 subscriber received %+v", snap)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubTearsDownIdleFeeds(t *testing.T) {
	source := newMemorySource()
	hub := NewHub(source)
	defer hub.Close()

	ctx := context.Background()

	_, cancelFirst, err := hub.Subscribe(ctx, "company-1")
	require.NoError(t, err)
	_, cancelSecond, err := hub.Subscribe(ctx, "company-1")
	require.NoError(t, err)

	assert.True(t, source.subscribed(ChannelFor("company-1")))

	// Upstream subscription survives the first unsubscribe
	cancelFirst()
	assert.True(t, source.subscribed(ChannelFor("company-1")))

	// And goes away with the last one
	cancelSecond()
	assert.False(t, source.subscribed(ChannelFor("company-1")))

	// Cancelling twice is harmless
	cancelSecond()
}

func TestHubDropsMalformedPayloads(t *testing.T) {
	source := newMemorySource()
	hub := NewHub(source)
	defer hub.Close()

	ctx := context.Background()

	feed, cancel, err := hub.Subscribe(ctx, "company-1")
	require.NoError(t, err)
	defer cancel()

	source.mu.Lock()
	ch := source.chans[ChannelFor("company-1")]
	source.mu.Unlock()
	ch <- []byte("not json")

	snap := domain.CapacitySnapshot{CompanyID: "company-1", UsedSeats: 1}
	source.publish(t, ChannelFor("company-1"), snap)

	assert.Equal(t, snap, receiveSnapshot(t, feed))
}
