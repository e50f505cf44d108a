package relay

import (
	"context"
	"sync"

	"github.com/fred1433/CounselAI/pkg/logger"
	"github.com/fred1433/CounselAI/service"
)

// Bus fans frames out to every process sharing the relay. Subscribe blocks
// until ctx is done, calling deliver for each frame published by any process.
type Bus interface {
	Publish(ctx context.Context, frame []byte) error
	Subscribe(ctx context.Context, deliver func(frame []byte)) error
}

// Hub tracks connected clients and broadcasts frames to them.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]struct{}
	bus        Bus
	sendBuffer int
}

// NewHub creates a hub. A nil bus delivers broadcasts in-process only.
func NewHub(bus Bus, sendBuffer int) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = 32
	}
	return &Hub{
		clients:    make(map[*Client]struct{}),
		bus:        bus,
		sendBuffer: sendBuffer,
	}
}

// Run consumes the bus until ctx is done. Without a bus it just waits.
// Remaining clients are disconnected on return.
func (h *Hub) Run(ctx context.Context) error {
	defer h.closeAll()

	if h.bus == nil {
		<-ctx.Done()
		return nil
	}

	logger.Info(ctx, "relay subscribed to bus")
	err := h.bus.Subscribe(ctx, func(frame []byte) {
		h.deliver(frame, false)
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends an event to every connected client, across processes when
// a bus is configured. Clients that cannot keep up are disconnected.
func (h *Hub) Broadcast(ctx context.Context, event string, data any) error {
	frame, err := encodeFrame(event, data)
	if err != nil {
		return err
	}

	if h.bus != nil {
		err := h.bus.Publish(ctx, frame)
		if err == nil {
			return nil
		}
		logger.Warn(ctx, "bus publish failed, delivering locally", "event", event, logger.Err(err))
	}
	h.deliver(frame, false)
	return nil
}

// Report pushes a diagnostic to the clients of this process. Busy clients
// miss it.
func (h *Hub) Report(ctx context.Context, d service.Diagnostic) {
	frame, err := encodeFrame(EventLog, d)
	if err != nil {
		logger.Warn(ctx, "dropping diagnostic", logger.Err(err))
		return
	}
	h.deliver(frame, true)
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	logger.Info(c.ctx, "client connected", "clients", n)
}

// unregister removes c and closes its send queue. Safe to call twice.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		logger.Info(c.ctx, "client disconnected", "clients", n)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

// deliver queues frame on every client. When droppable is false a full
// queue disconnects the client; otherwise the frame is skipped for it.
func (h *Hub) deliver(frame []byte, droppable bool) {
	var slow []*Client

	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- frame:
		default:
			if !droppable {
				slow = append(slow, c)
			}
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		logger.Warn(c.ctx, "client too slow, disconnecting")
		h.unregister(c)
	}
}

// sendTo queues frame for a single client if it is still registered.
func (h *Hub) sendTo(c *Client, frame []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.clients[c]; !ok {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}
