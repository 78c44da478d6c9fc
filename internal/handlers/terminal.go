package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/cloudterm/console/internal/bridge"
	"github.com/cloudterm/console/internal/remote"
	"github.com/coder/websocket"
)

// terminalRateLimit defines the maximum number of messages allowed per
// second per WebSocket connection. Messages beyond this rate are dropped.
const terminalRateLimit = 200

// terminalRateBurst is the token bucket burst size, allowing short bursts
// of rapid input (e.g., paste operations) before rate limiting kicks in.
const terminalRateBurst = 200

// maxInputMessageSize bounds a single input payload.
const maxInputMessageSize = 64 * 1024

// clientMessage is one inbound frame. Action selects which fields matter:
//
//	connect: host (a directory profile name) or target (a full descriptor)
//	input:   session_id, data
//	resize:  session_id, cols, rows
//	close:   session_id
//
// Data is base64 in the JSON encoding.
type clientMessage struct {
	Action    string         `json:"action"`
	SessionID string         `json:"session_id,omitempty"`
	Host      string         `json:"host,omitempty"`
	Target    *remote.Target `json:"target,omitempty"`
	Data      []byte         `json:"data,omitempty"`
	Cols      uint16         `json:"cols,omitempty"`
	Rows      uint16         `json:"rows,omitempty"`
}

// serverEvent is one outbound frame: connected, output, error, or closed.
type serverEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Data      []byte `json:"data,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Message   string `json:"message,omitempty"`
	Failure   string `json:"failure,omitempty"`
}

// wsClient delivers bridge events onto one WebSocket connection. Output is
// called concurrently by every pump of a session this connection owns, so
// writes are serialized with a mutex. Write errors propagate back to the
// bridge so a stalled client tears down only its own sessions.
type wsClient struct {
	conn *websocket.Conn
	ctx  context.Context

	writeMu sync.Mutex

	mu       sync.Mutex
	sessions map[string]struct{}
}

func (c *wsClient) send(ev serverEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.Write(c.ctx, websocket.MessageText, data)
}

func (c *wsClient) Output(sessionID string, data []byte) error {
	return c.send(serverEvent{Type: "output", SessionID: sessionID, Data: data})
}

func (c *wsClient) Closed(sessionID, reason string) {
	c.mu.Lock()
	delete(c.sessions, sessionID)
	c.mu.Unlock()
	// Best effort: the connection may already be gone.
	c.send(serverEvent{Type: "closed", SessionID: sessionID, Reason: reason})
}

func (c *wsClient) track(sessionID string) {
	c.mu.Lock()
	c.sessions[sessionID] = struct{}{}
	c.mu.Unlock()
}

func (c *wsClient) owns(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.sessions[sessionID]
	return ok
}

func (c *wsClient) owned() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.sessions))
	for id := range c.sessions {
		out = append(out, id)
	}
	return out
}

// tokenBucket implements a simple token bucket rate limiter for terminal
// messages.
type tokenBucket struct {
	tokens     int
	maxTokens  int
	refillRate int // tokens added per second
	lastRefill time.Time
}

func newTokenBucket(maxTokens, refillRate int) *tokenBucket {
	return &tokenBucket{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// allow checks if a message is allowed and consumes a token.
func (tb *tokenBucket) allow() bool {
	now := time.Now()
	elapsed := now.Sub(tb.lastRefill)
	tb.lastRefill = now

	tb.tokens += int(elapsed.Seconds() * float64(tb.refillRate))
	if tb.tokens > tb.maxTokens {
		tb.tokens = tb.maxTokens
	}

	if tb.tokens <= 0 {
		return false
	}
	tb.tokens--
	return true
}

// TerminalWS is the interactive session endpoint. One WebSocket carries any
// number of concurrent sessions, each identified by the session id the
// connect reply assigns. When the socket drops, every session it opened is
// terminated.
func TerminalWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("Failed to accept terminal websocket: %v", err)
		return
	}
	defer conn.CloseNow()

	conn.SetReadLimit(1024 * 1024)

	relayCtx, relayCancel := context.WithCancel(r.Context())
	defer relayCancel()

	client := &wsClient{
		conn:     conn,
		ctx:      relayCtx,
		sessions: make(map[string]struct{}),
	}

	defer func() {
		for _, id := range client.owned() {
			SessionBridge.Terminate(id, bridge.ReasonDisconnect)
		}
	}()

	limiter := newTokenBucket(terminalRateBurst, terminalRateLimit)

	for {
		_, data, err := conn.Read(relayCtx)
		if err != nil {
			return
		}

		if !limiter.allow() {
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			client.send(serverEvent{Type: "error", Message: "malformed message"})
			continue
		}

		switch msg.Action {
		case "connect":
			handleConnect(relayCtx, client, msg)
		case "input":
			handleInput(client, msg)
		case "resize":
			if client.owns(msg.SessionID) {
				SessionBridge.Resize(msg.SessionID, msg.Rows, msg.Cols)
			}
		case "close":
			if client.owns(msg.SessionID) {
				SessionBridge.Terminate(msg.SessionID, bridge.ReasonClientClose)
			}
		default:
			client.send(serverEvent{Type: "error", SessionID: msg.SessionID, Message: "unknown action"})
		}
	}
}

func handleConnect(ctx context.Context, client *wsClient, msg clientMessage) {
	var target remote.Target
	switch {
	case msg.Host != "":
		t, err := Dir.ResolveShell(msg.Host)
		if err != nil {
			client.send(serverEvent{
				Type:    "error",
				Message: err.Error(),
				Failure: string(remote.TargetNotFound),
			})
			return
		}
		target = t
	case msg.Target != nil:
		target = *msg.Target
	default:
		client.send(serverEvent{Type: "error", Message: "connect needs a host name or a target"})
		return
	}

	s, banner, err := SessionBridge.Open(ctx, target, client)
	if err != nil {
		client.send(serverEvent{
			Type:    "error",
			Message: err.Error(),
			Failure: string(remote.FailureOf(err)),
		})
		return
	}
	client.track(s.ID)

	// The connect reply and the banner go out before the pump starts, so
	// the client learns the session id before any output and the banner
	// stays ahead of whatever the remote printed after it.
	if err := client.send(serverEvent{Type: "connected", SessionID: s.ID}); err != nil {
		SessionBridge.Terminate(s.ID, bridge.ReasonDisconnect)
		return
	}
	if len(banner) > 0 {
		if err := client.Output(s.ID, banner); err != nil {
			SessionBridge.Terminate(s.ID, bridge.ReasonDisconnect)
			return
		}
	}
	SessionBridge.Start(s.ID)
}

func handleInput(client *wsClient, msg clientMessage) {
	if len(msg.Data) > maxInputMessageSize {
		client.send(serverEvent{Type: "error", SessionID: msg.SessionID, Message: "input message too large"})
		return
	}
	if !client.owns(msg.SessionID) {
		client.send(serverEvent{Type: "error", SessionID: msg.SessionID, Message: "unknown session"})
		return
	}
	if err := SessionBridge.Input(msg.SessionID, msg.Data); err != nil {
		if errors.Is(err, bridge.ErrSessionNotFound) {
			client.send(serverEvent{Type: "error", SessionID: msg.SessionID, Message: "unknown session"})
		}
		// Write failures already terminated the session and notified the
		// client through Closed.
	}
}
