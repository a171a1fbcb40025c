package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WSServerListener is the inbound WebSocket server transport named in
// spec §4.3(c) and §6: it accepts connections from browser extensions or
// other local processes and treats each one as a remote MCP client,
// exposing a curated tool set (spec §6). The listener itself is not a
// Transport — each accepted connection is, handed to the caller (the MCP
// Manager's ServeInbound) via Accepted() and serviced as its own JSON-RPC
// pipe.
type WSServerListener struct {
	addr     string
	logger   *slog.Logger
	upgrader websocket.Upgrader

	httpServer *http.Server
	listener   net.Listener

	accepted chan Transport
	closed   atomic.Bool
}

// NewWSServerListener builds a listener bound to addr (e.g. "127.0.0.1:0"
// to let the OS pick a free port; query Addr() after Start for the
// resolved address).
func NewWSServerListener(addr string) *WSServerListener {
	return &WSServerListener{
		addr:     addr,
		logger:   slog.Default().With("component", "mcp.ws_server"),
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		accepted: make(chan Transport, 16),
	}
}

// Start binds the listener and begins accepting WebSocket upgrade
// requests on "/mcp". It returns once the socket is bound; serving
// happens in a background goroutine.
func (l *WSServerListener) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	l.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", l.handleUpgrade)
	l.httpServer = &http.Server{Handler: mux}

	go func() {
		if err := l.httpServer.Serve(ln); err != nil && !l.closed.Load() {
			l.logger.Warn("ws server stopped", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address (useful when addr was "host:0").
func (l *WSServerListener) Addr() string {
	if l.listener == nil {
		return ""
	}
	return l.listener.Addr().String()
}

func (l *WSServerListener) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	peer := newWSPeerTransport(conn, l.logger)
	peer.connected.Store(true)
	peer.wg.Add(1)
	go peer.readLoop()

	select {
	case l.accepted <- peer:
	default:
		l.logger.Warn("accepted-connection channel full, closing new peer")
		_ = peer.Close()
	}
}

// Accepted yields each inbound peer connection as it completes its
// WebSocket handshake.
func (l *WSServerListener) Accepted() <-chan Transport { return l.accepted }

// Close stops accepting new connections.
func (l *WSServerListener) Close() error {
	l.closed.Store(true)
	if l.httpServer != nil {
		return l.httpServer.Close()
	}
	return nil
}

// wsPeerTransport is the Transport implementation for one accepted
// inbound WebSocket connection. Unlike WSClientTransport, the "requests"
// this peer sends us (tools/call, initialize, tools/list) arrive as
// JSONRPCRequest and are delivered on Requests() for the Manager's local
// request handler to service via Respond(); Call()/Notify() are used in
// the opposite direction, e.g. to push `notifications/tools/list_changed`
// to the peer.
type wsPeerTransport struct {
	conn   *websocket.Conn
	connMu sync.Mutex
	logger *slog.Logger

	pending   map[int64]chan *JSONRPCResponse
	pendingMu sync.Mutex
	nextID    atomic.Int64

	events   chan *JSONRPCNotification
	requests chan *JSONRPCRequest

	connected atomic.Bool
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

func newWSPeerTransport(conn *websocket.Conn, logger *slog.Logger) *wsPeerTransport {
	return &wsPeerTransport{
		conn:     conn,
		logger:   logger,
		pending:  make(map[int64]chan *JSONRPCResponse),
		events:   make(chan *JSONRPCNotification, 32),
		requests: make(chan *JSONRPCRequest, 32),
		stopChan: make(chan struct{}),
	}
}

// Connect is a no-op: the connection is already established by the time
// the listener hands out a wsPeerTransport.
func (t *wsPeerTransport) Connect(ctx context.Context) error { return nil }

func (t *wsPeerTransport) readLoop() {
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

func (t *wsPeerTransport) processMessage(data []byte) {
	var resp JSONRPCResponse
	if err := json.Unmarshal(data, &resp); err == nil && resp.ID != nil && resp.Result != nil {
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
			t.logger.Warn("inbound request channel full, dropping")
		}
		return
	}

	var notif JSONRPCNotification
	if err := json.Unmarshal(data, &notif); err == nil && notif.Method != "" {
		select {
		case t.events <- &notif:
		default:
		}
	}
}

func (t *wsPeerTransport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := t.nextID.Add(1)
	req := JSONRPCRequest{JSONRPC: "2.0", ID: id, Method: method}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, err
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
		return nil, err
	}

	select {
	case resp := <-respChan:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(30 * time.Second):
		return nil, fmt.Errorf("TIMEOUT: request %q timed out", method)
	case <-t.stopChan:
		return nil, fmt.Errorf("transport closed")
	}
}

func (t *wsPeerTransport) Notify(ctx context.Context, method string, params any) error {
	notif := JSONRPCNotification{JSONRPC: "2.0", Method: method}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return err
		}
		notif.Params = data
	}
	t.connMu.Lock()
	defer t.connMu.Unlock()
	return t.conn.WriteJSON(notif)
}

// Respond answers a peer-initiated request (the common path for this
// transport: the peer called us via tools/call).
func (t *wsPeerTransport) Respond(ctx context.Context, id any, result any, rpcErr *JSONRPCError) error {
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

func (t *wsPeerTransport) Events() <-chan *JSONRPCNotification { return t.events }
func (t *wsPeerTransport) Requests() <-chan *JSONRPCRequest    { return t.requests }
func (t *wsPeerTransport) Connected() bool                     { return t.connected.Load() }

func (t *wsPeerTransport) rejectAllPending(err error) {
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

func (t *wsPeerTransport) Close() error {
	t.connected.Store(false)
	close(t.stopChan)
	t.rejectAllPending(fmt.Errorf("transport closed"))
	_ = t.conn.Close()
	t.wg.Wait()
	return nil
}
