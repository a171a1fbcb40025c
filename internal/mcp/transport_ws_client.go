package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WSClientTransport speaks MCP as an outbound WebSocket client: one JSON
// object per frame, the same pending-request-by-id bookkeeping as
// StdioTransport (spec §4.3(b)), built on a single persistent
// `gorilla/websocket` connection.
type WSClientTransport struct {
	config *ServerConfig
	logger *slog.Logger

	conn   *websocket.Conn
	connMu sync.Mutex

	pending   map[int64]chan *JSONRPCResponse
	pendingMu sync.Mutex
	nextID    atomic.Int64

	events   chan *JSONRPCNotification
	requests chan *JSONRPCRequest

	connected atomic.Bool
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// NewWSClientTransport builds a WSClientTransport dialing cfg.URL.
func NewWSClientTransport(cfg *ServerConfig) *WSClientTransport {
	return &WSClientTransport{
		config:   cfg,
		logger:   slog.Default().With("mcp_server", cfg.ID, "transport", "websocket-client"),
		pending:  make(map[int64]chan *JSONRPCResponse),
		events:   make(chan *JSONRPCNotification, 100),
		requests: make(chan *JSONRPCRequest, 100),
		stopChan: make(chan struct{}),
	}
}

func (t *WSClientTransport) Connect(ctx context.Context) error {
	if t.config.URL == "" {
		return fmt.Errorf("URL is required for websocket transport")
	}

	header := make(map[string][]string, len(t.config.Headers))
	for k, v := range t.config.Headers {
		header[k] = []string{v}
	}

	dialer := websocket.Dialer{HandshakeTimeout: 30 * time.Second}
	conn, _, err := dialer.DialContext(ctx, t.config.URL, header)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	t.conn = conn
	t.connected.Store(true)
	t.stopChan = make(chan struct{})

	t.wg.Add(1)
	go t.readLoop()

	return nil
}

func (t *WSClientTransport) readLoop() {
	defer t.wg.Done()
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			t.connected.Store(false)
			t.rejectAllPending(fmt.Errorf("transport closed: %w", err))
			return
		}
		t.processMessage(data)
	}
}

func (t *WSClientTransport) processMessage(data []byte) {
	var resp JSONRPCResponse
	if err := json.Unmarshal(data, &resp); err == nil && resp.ID != nil {
		id := normalizeID(resp.ID)
		t.pendingMu.Lock()
		ch, ok := t.pending[id]
		if ok {
			delete(t.pending, id)
		}
		t.pendingMu.Unlock()
		if ok {
			select {
			case ch <- &resp:
			default:
			}
		}
		return
	}

	var req JSONRPCRequest
	if err := json.Unmarshal(data, &req); err == nil && req.Method != "" && req.ID != nil {
		select {
		case t.requests <- &req:
		default:
			t.logger.Warn("request channel full, dropping")
		}
		return
	}

	var notif JSONRPCNotification
	if err := json.Unmarshal(data, &notif); err == nil && notif.Method != "" {
		select {
		case t.events <- &notif:
		default:
			t.logger.Warn("notification channel full, dropping")
		}
	}
}

func (t *WSClientTransport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if !t.connected.Load() {
		return nil, fmt.Errorf("not connected")
	}

	id := t.nextID.Add(1)
	req := JSONRPCRequest{JSONRPC: "2.0", ID: id, Method: method}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		req.Params = data
	}

	respChan := make(chan *JSONRPCResponse, 1)
	t.pendingMu.Lock()
	t.pending[id] = respChan
	t.pendingMu.Unlock()

	t.connMu.Lock()
	err := t.conn.WriteJSON(req)
	t.connMu.Unlock()
	if err != nil {
		t.pendingMu.Lock()
		delete(t.pending, id)
		t.pendingMu.Unlock()
		return nil, fmt.Errorf("write: %w", err)
	}

	timeout := t.config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	select {
	case resp := <-respChan:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-ctx.Done():
		t.pendingMu.Lock()
		delete(t.pending, id)
		t.pendingMu.Unlock()
		return nil, ctx.Err()
	case <-time.After(timeout):
		t.pendingMu.Lock()
		delete(t.pending, id)
		t.pendingMu.Unlock()
		return nil, fmt.Errorf("TIMEOUT: request %q timed out after %s", method, timeout)
	case <-t.stopChan:
		return nil, fmt.Errorf("transport closed")
	}
}

func (t *WSClientTransport) Notify(ctx context.Context, method string, params any) error {
	if !t.connected.Load() {
		return fmt.Errorf("not connected")
	}
	notif := JSONRPCNotification{JSONRPC: "2.0", Method: method}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal params: %w", err)
		}
		notif.Params = data
	}
	t.connMu.Lock()
	defer t.connMu.Unlock()
	return t.conn.WriteJSON(notif)
}

func (t *WSClientTransport) Respond(ctx context.Context, id any, result any, rpcErr *JSONRPCError) error {
	if !t.connected.Load() {
		return fmt.Errorf("not connected")
	}
	resp := JSONRPCResponse{JSONRPC: "2.0", ID: id, Error: rpcErr}
	if rpcErr == nil && result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return err
		}
		resp.Result = data
	}
	t.connMu.Lock()
	defer t.connMu.Unlock()
	return t.conn.WriteJSON(resp)
}

func (t *WSClientTransport) Events() <-chan *JSONRPCNotification { return t.events }
func (t *WSClientTransport) Requests() <-chan *JSONRPCRequest    { return t.requests }
func (t *WSClientTransport) Connected() bool                     { return t.connected.Load() }

func (t *WSClientTransport) rejectAllPending(err error) {
	t.pendingMu.Lock()
	defer t.pendingMu.Unlock()
	for id, ch := range t.pending {
		select {
		case ch <- &JSONRPCResponse{Error: &JSONRPCError{Code: ErrCodeInternalError, Message: err.Error()}}:
		default:
		}
		delete(t.pending, id)
	}
}

func (t *WSClientTransport) Close() error {
	t.connected.Store(false)
	close(t.stopChan)
	t.rejectAllPending(fmt.Errorf("transport closed"))
	if t.conn != nil {
		_ = t.conn.Close()
	}
	t.wg.Wait()
	return nil
}
