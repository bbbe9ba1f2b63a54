package telephony

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/slingshot-ai/slingdial/internal/config"
	"github.com/slingshot-ai/slingdial/internal/events"
)

// Client represents one connected media socket. A client that opened or
// attached to a call receives that call's sentence and lifecycle events.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	mu      sync.Mutex
	threads map[string]struct{}
}

func (c *Client) attach(threadID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.threads[threadID] = struct{}{}
}

func (c *Client) attached(threadID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.threads[threadID]
	return ok
}

// Hub manages media websocket clients and bridges call events to them.
type Hub struct {
	mu          sync.RWMutex
	clients     map[*Client]struct{}
	manager     *CallManager
	unsubscribe func()
}

// NewHub creates a websocket hub bridging bus events to attached clients.
func NewHub(manager *CallManager, bus *events.Bus) *Hub {
	h := &Hub{
		clients: make(map[*Client]struct{}),
		manager: manager,
	}

	h.unsubscribe = bus.Subscribe(func(e events.Event) {
		frame, err := NewEventFrame(string(e.Type), e.ThreadID, e.Payload)
		if err != nil {
			slog.Error("marshal event frame", "error", err)
			return
		}
		data, err := MarshalFrame(frame)
		if err != nil {
			slog.Error("marshal frame", "error", err)
			return
		}
		h.broadcast(e.ThreadID, data)
	}, events.EventSentence, events.EventCallStarted, events.EventCallEnded, events.EventTurnCompleted)

	return h
}

// broadcast sends data to every client attached to the thread.
func (h *Hub) broadcast(threadID string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if threadID != "" && !c.attached(threadID) {
			continue
		}
		select {
		case c.send <- data:
		default:
			// Client too slow, skip
		}
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	slog.Info("media client connected", "clients", len(h.clients))
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		slog.Info("media client disconnected", "clients", len(h.clients))
	}
}

// ServeWS handles a websocket upgrade and manages the client lifecycle.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // Allow any origin for dev
	})
	if err != nil {
		slog.Error("ws accept", "error", err)
		return
	}

	client := &Client{
		conn:    conn,
		send:    make(chan []byte, 256),
		hub:     h,
		threads: make(map[string]struct{}),
	}

	h.register(client)

	ctx := r.Context()
	go client.writePump(ctx)
	client.readPump(ctx)
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("ws read closed", "status", websocket.CloseStatus(err))
			} else {
				slog.Debug("ws read error", "error", err)
			}
			return
		}

		frame, err := UnmarshalFrame(data)
		if err != nil {
			slog.Error("ws unmarshal frame", "error", err)
			continue
		}

		if frame.Type == FrameTypeRequest {
			c.handleRequest(ctx, frame)
		} else {
			slog.Debug("ws unexpected frame type", "type", frame.Type)
		}
	}
}

func (c *Client) handleRequest(ctx context.Context, frame Frame) {
	switch frame.Method {
	case MethodStartCall:
		var params StartCallParams
		if err := json.Unmarshal(frame.Params, &params); err != nil {
			c.sendError(frame.ID, "invalid params")
			return
		}
		c.startCall(frame.ID, params)

	case MethodUtterance:
		var params UtteranceParams
		if err := json.Unmarshal(frame.Params, &params); err != nil {
			c.sendError(frame.ID, "invalid params")
			return
		}
		c.utterance(ctx, frame.ID, params)

	case MethodEndCall:
		var params EndCallParams
		if err := json.Unmarshal(frame.Params, &params); err != nil {
			c.sendError(frame.ID, "invalid params")
			return
		}
		if params.Reason == "" {
			params.Reason = "hangup"
		}
		if err := c.hub.manager.EndCall(params.ThreadID, params.Reason); err != nil {
			c.sendError(frame.ID, err.Error())
			return
		}
		c.sendOK(frame.ID, map[string]string{"status": "ended"})

	default:
		c.sendError(frame.ID, "unknown method: "+frame.Method)
	}
}

func (c *Client) startCall(frameID string, params StartCallParams) {
	dir := directionOf(params.Direction)
	threadID, greeting, err := c.hub.manager.StartCall(params.PhoneNumber, params.Language, dir)
	if err != nil {
		c.sendError(frameID, err.Error())
		return
	}
	c.attach(threadID)
	c.sendOK(frameID, map[string]string{
		"thread_id": threadID,
		"greeting":  greeting,
	})
}

func (c *Client) utterance(ctx context.Context, frameID string, params UtteranceParams) {
	c.attach(params.ThreadID)
	// The turn runs asynchronously; sentences arrive as event frames.
	go func() {
		err := c.hub.manager.HandleUtterance(ctx, params.ThreadID, params.Content, nil)
		if err != nil {
			slog.Error("handle utterance", "thread", params.ThreadID, "error", err)
		}
	}()
	c.sendOK(frameID, map[string]string{"status": "accepted"})
}

func (c *Client) writePump(ctx context.Context) {
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.Write(ctx, websocket.MessageText, msg); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) sendOK(id string, payload any) {
	f, err := NewResponseFrame(id, true, payload, "")
	if err != nil {
		return
	}
	c.enqueue(f)
}

func (c *Client) sendError(id string, errMsg string) {
	f, err := NewResponseFrame(id, false, nil, errMsg)
	if err != nil {
		return
	}
	c.enqueue(f)
}

func (c *Client) enqueue(f Frame) {
	data, err := MarshalFrame(f)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// Close shuts down the hub and all client connections.
func (h *Hub) Close() {
	if h.unsubscribe != nil {
		h.unsubscribe()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.conn.Close(websocket.StatusGoingAway, "server shutdown")
		delete(h.clients, c)
	}
}

func directionOf(s string) config.Direction {
	if s == string(config.DirectionOutbound) {
		return config.DirectionOutbound
	}
	return config.DirectionInbound
}
