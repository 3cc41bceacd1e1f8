package rpc

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"flashsettle/core/events"
	"flashsettle/core/types"
)

const (
	wsWriteTimeout   = 10 * time.Second
	subscriberBuffer = 64
)

type renderable interface {
	Event() *types.Event
}

// Hub fans committed events out to websocket subscribers. Slow subscribers
// are disconnected rather than allowed to block the settlement path.
type Hub struct {
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[chan []byte]struct{}
	closed bool
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{logger: logger, subs: make(map[chan []byte]struct{})}
}

// Emit implements events.Emitter.
func (h *Hub) Emit(evt events.Event) {
	r, ok := evt.(renderable)
	if !ok {
		return
	}
	data, err := json.Marshal(r.Event())
	if err != nil {
		h.logger.Error("encode stream event", slog.String("type", evt.EventType()), slog.Any("error", err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- data:
		default:
			delete(h.subs, ch)
			close(ch)
			h.logger.Warn("stream subscriber dropped", slog.String("reason", "buffer full"))
		}
	}
}

// Subscribe registers a new listener. The returned cancel func is safe to
// call more than once.
func (h *Hub) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, subscriberBuffer)
	h.mu.Lock()
	if h.closed {
		close(ch)
		h.mu.Unlock()
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
	}
}

// Subscribers reports the number of live listeners.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}

// ServeHTTP upgrades the request and streams events until either side goes
// away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	updates, cancel := h.Subscribe()
	defer cancel()

	ctx := conn.CloseRead(r.Context())
	if err := stream(ctx, conn, updates); err != nil {
		if websocket.CloseStatus(err) == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func stream(ctx context.Context, conn *websocket.Conn, updates <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-updates:
			if !ok {
				return nil
			}
			writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}
