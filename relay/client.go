package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fred1433/CounselAI/model"
	"github.com/fred1433/CounselAI/pkg/logger"
	"github.com/fred1433/CounselAI/service"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	defaultMaxMessageBytes  = 1 << 20
	defaultMaxEditsInFlight = 2
)

// Editor applies one edit instruction to a contract.
type Editor interface {
	EditContract(ctx context.Context, req model.EditRequest) (*model.EditResult, error)
}

// Limiter charges a request to key and reports whether it is allowed.
type Limiter interface {
	Allow(key string) (bool, time.Duration)
}

// Client is one WebSocket connection registered with a hub.
type Client struct {
	id       string
	hub      *Hub
	conn     *websocket.Conn
	editor   Editor
	send     chan []byte
	ctx      context.Context
	inFlight chan struct{}
	limiter  Limiter
	remoteIP string
}

// ClientOptions tune a single connection.
type ClientOptions struct {
	MaxMessageBytes int64
	// MaxEditsInFlight bounds concurrent edits per connection.
	MaxEditsInFlight int
	// Limiter, when set, is charged one request per edit keyed by RemoteIP.
	Limiter  Limiter
	RemoteIP string
	// Username is attached to the client's log context when auth is enabled.
	Username string
}

// Serve registers conn with the hub and starts its pumps. It returns
// immediately; the connection lives until either side closes it.
func (h *Hub) Serve(conn *websocket.Conn, editor Editor, opts ClientOptions) *Client {
	id := uuid.New().String()
	ctx := logger.With(context.Background(), logger.ClientIDKey, id)
	if opts.Username != "" {
		ctx = logger.With(ctx, logger.UsernameKey, opts.Username)
	}
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = defaultMaxMessageBytes
	}
	if opts.MaxEditsInFlight <= 0 {
		opts.MaxEditsInFlight = defaultMaxEditsInFlight
	}

	c := &Client{
		id:       id,
		hub:      h,
		conn:     conn,
		editor:   editor,
		send:     make(chan []byte, h.sendBuffer),
		ctx:      ctx,
		inFlight: make(chan struct{}, opts.MaxEditsInFlight),
		limiter:  opts.Limiter,
		remoteIP: opts.RemoteIP,
	}
	h.register(c)

	if frame, err := encodeFrame(EventLog, service.Diagnostic{Message: "connected", Type: service.DiagnosticInfo}); err == nil {
		h.sendTo(c, frame)
	}

	go c.writePump()
	go c.readPump(opts.MaxMessageBytes)
	return c
}

// ID returns the connection id used in logs.
func (c *Client) ID() string {
	return c.id
}

func (c *Client) readPump(maxMessageBytes int64) {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logger.Warn(c.ctx, "websocket read failed", logger.Err(err))
			}
			return
		}
		c.handleFrame(data)
	}
}

func (c *Client) handleFrame(data []byte) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		logger.Warn(c.ctx, "malformed frame", logger.Err(err))
		c.reject("", "malformed message: expected {\"event\", \"data\"} JSON envelope")
		return
	}

	switch frame.Event {
	case EventEditContract:
		var req model.EditRequest
		if err := json.Unmarshal(frame.Data, &req); err != nil {
			logger.Warn(c.ctx, "malformed editContract payload", logger.Err(err))
			c.reject(requestIDOf(frame.Data), "malformed editContract payload")
			return
		}
		if !c.admit(req.RequestID) {
			return
		}
		go func() {
			defer func() { <-c.inFlight }()
			c.edit(req)
		}()
	default:
		logger.Warn(c.ctx, "unknown event", "event", frame.Event)
		c.reject("", "unknown event: "+frame.Event)
	}
}

// admit takes an in-flight slot for an edit and charges the rate limiter.
// A refused edit is answered to the sender only.
func (c *Client) admit(requestID string) bool {
	select {
	case c.inFlight <- struct{}{}:
	default:
		logger.Warn(c.ctx, "too many edits in flight", "request_id", requestID)
		c.reject(requestID, "Too many edits in progress. Wait for the current edit to finish.")
		return false
	}

	if c.limiter != nil {
		if ok, retryAfter := c.limiter.Allow(c.remoteIP); !ok {
			<-c.inFlight
			logger.Warn(c.ctx, "edit rate limit exceeded", "client_ip", c.remoteIP, "request_id", requestID)
			c.reject(requestID, fmt.Sprintf("Rate limit exceeded. Try again in %s.", retryAfter.Round(time.Second)))
			return false
		}
	}
	return true
}

// edit runs one edit and broadcasts the outcome to every client. It is not
// tied to the connection, so the result still reaches other clients when the
// requester has gone away.
func (c *Client) edit(req model.EditRequest) {
	ctx := logger.With(c.ctx, logger.EditIDKey, req.RequestID)

	result, err := c.editor.EditContract(ctx, req)
	if err != nil {
		logger.Error(ctx, "edit failed", logger.Err(err))

		payload := EditErrorPayload{Error: editErrorMessage(err), RequestID: req.RequestID}
		var editErr *service.EditError
		if errors.As(err, &editErr) {
			payload.RequestID = editErr.RequestID
		}
		if err := c.hub.Broadcast(ctx, EventEditError, payload); err != nil {
			logger.Error(ctx, "broadcasting edit error failed", logger.Err(err))
		}
		return
	}

	if err := c.hub.Broadcast(ctx, EventContractUpdate, result); err != nil {
		logger.Error(ctx, "broadcasting contract update failed", logger.Err(err))
	}
}

func editErrorMessage(err error) string {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		return verr.Error()
	}
	var upstream *service.UpstreamError
	if errors.As(err, &upstream) {
		return "Failed to edit contract: " + upstream.Error()
	}
	return "Failed to edit contract."
}

// reject answers the sender only.
func (c *Client) reject(requestID, message string) {
	frame, err := encodeFrame(EventEditError, EditErrorPayload{Error: message, RequestID: requestID})
	if err != nil {
		return
	}
	if !c.hub.sendTo(c, frame) {
		logger.Warn(c.ctx, "could not queue error for client")
	}
}

// requestIDOf digs the requestId out of a payload that failed to decode as a
// whole, so the caller can still correlate the failure.
func requestIDOf(data json.RawMessage) string {
	var fields map[string]json.RawMessage
	if json.Unmarshal(data, &fields) != nil {
		return ""
	}
	var id string
	if json.Unmarshal(fields["requestId"], &id) != nil {
		return ""
	}
	return id
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				logger.Warn(c.ctx, "websocket write failed", logger.Err(err))
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
