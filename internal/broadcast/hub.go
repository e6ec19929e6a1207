package broadcast

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"github.com/Onyemech/teemplot-sub006/internal/domain"
	"github.com/Onyemech/teemplot-sub006/pkg/logger"
)

// Hub fans capacity updates out to local stream subscribers. It keeps one
// upstream subscription per company, opened when the first subscriber
// arrives and torn down when the last one leaves.
type Hub struct {
	source Source

	mu    sync.Mutex
	feeds map[string]*feed

	wg     conc.WaitGroup
	closed bool
}

type feed struct {
	stop   func()
	nextID int
	subs   map[int]chan domain.CapacitySnapshot
}

// NewHub creates a hub reading from the given source
func NewHub(source Source) *Hub {
	return &Hub{
		source: source,
		feeds:  make(map[string]*feed),
	}
}

// Subscribe registers a local listener for a company's capacity updates.
// The returned cancel function must be called when the listener goes away.
// Updates are dropped for listeners that fall behind rather than blocking
// the fan-out.
func (h *Hub) Subscribe(ctx context.Context, companyID string) (<-chan domain.CapacitySnapshot, func(), error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		ch := make(chan domain.CapacitySnapshot)
		close(ch)
		return ch, func() {}, nil
	}

	f, ok := h.feeds[companyID]
	if !ok {
		msgs, stop, err := h.source.Subscribe(ctx, ChannelFor(companyID))
		if err != nil {
			return nil, nil, err
		}
		f = &feed{
			stop: stop,
			subs: make(map[int]chan domain.CapacitySnapshot),
		}
		h.feeds[companyID] = f
		h.wg.Go(func() {
			h.pump(companyID, f, msgs)
		})
	}

	id := f.nextID
	f.nextID++
	ch := make(chan domain.CapacitySnapshot, 8)
	f.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		cur, ok := h.feeds[companyID]
		if !ok || cur != f {
			return
		}
		if sub, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(sub)
		}
		if len(f.subs) == 0 {
			delete(h.feeds, companyID)
			f.stop()
		}
	}
	return ch, cancel, nil
}

// Close tears down every feed and waits for the pumps to drain
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	for companyID, f := range h.feeds {
		for id, sub := range f.subs {
			delete(f.subs, id)
			close(sub)
		}
		delete(h.feeds, companyID)
		f.stop()
	}
	h.mu.Unlock()

	h.wg.Wait()
}

func (h *Hub) pump(companyID string, f *feed, msgs <-chan []byte) {
	for payload := range msgs {
		var snap domain.CapacitySnapshot
		if err := json.Unmarshal(payload, &snap); err != nil {
			logger.Warn("dropping malformed capacity update",
				zap.String("company_id", companyID),
				zap.Error(err),
			)
			continue
		}

		h.mu.Lock()
		for _, sub := range f.subs {
			select {
			case sub <- snap:
			default:
			}
		}
		h.mu.Unlock()
	}
}
