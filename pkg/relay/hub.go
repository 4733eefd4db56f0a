// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package relay

import (
	"crypto/subtle"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
)

// WriteTimeout bounds a broadcast to one client
const WriteTimeout = time.Second

// HubConfig configures a Hub
type HubConfig struct {
	// Basic auth credentials; auth is disabled when Username is empty
	Username string
	Password string
}

type hubClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// Hub is the WebSocket side of the client transport. Every connected
// client receives each write as one binary message; binary messages from
// any client are read back in arrival order. Hub is an http.Handler and
// an io.ReadWriteCloser, so it can be served by bridge.Serve.
type Hub struct {
	cfg      HubConfig
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*hubClient]struct{}

	inbound chan []byte
	pending []byte
	closed  chan struct{}
	once    sync.Once
}

// NewHub creates a hub with no clients
func NewHub(cfg HubConfig) *Hub {
	return &Hub{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*hubClient]struct{}),
		inbound: make(chan []byte, 64),
		closed:  make(chan struct{}),
	}
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) authorized(r *http.Request) bool {
	if h.cfg.Username == "" {
		return true
	}
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(h.cfg.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(h.cfg.Password)) == 1
	return userOK && passOK
}

// ServeHTTP upgrades the request and serves the client until it
// disconnects
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		w.Header().Set("WWW-Authenticate", `Basic realm="tandem"`)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		glog.Warningf("relay: websocket upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}

	c := &hubClient{conn: conn}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	glog.Infof("relay: client %s connected", r.RemoteAddr)

	defer func() {
		h.drop(c)
		glog.Infof("relay: client %s disconnected", r.RemoteAddr)
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		// Only binary messages carry frame bytes
		if messageType != websocket.BinaryMessage {
			continue
		}
		select {
		case h.inbound <- data:
		case <-h.closed:
			return
		}
	}
}

func (h *Hub) drop(c *hubClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		c.conn.Close()
	}
}

// Write broadcasts p to every client. A client that cannot take the
// message is disconnected. Write never fails while the hub is open.
func (h *Hub) Write(p []byte) (int, error) {
	select {
	case <-h.closed:
		return 0, io.ErrClosedPipe
	default:
	}

	h.mu.Lock()
	clients := make([]*hubClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.mu.Lock()
		c.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
		err := c.conn.WriteMessage(websocket.BinaryMessage, p)
		c.mu.Unlock()
		if err != nil {
			if glog.V(1) {
				glog.Infof("relay: dropping client: %v", err)
			}
			h.drop(c)
		}
	}
	return len(p), nil
}

// Read returns bytes received from clients, blocking until there are
// some. It returns io.EOF once the hub is closed.
func (h *Hub) Read(p []byte) (int, error) {
	if len(h.pending) == 0 {
		select {
		case data := <-h.inbound:
			h.pending = data
		case <-h.closed:
			return 0, io.EOF
		}
	}
	n := copy(p, h.pending)
	h.pending = h.pending[n:]
	return n, nil
}

// Close disconnects every client and ends pending reads
func (h *Hub) Close() error {
	h.once.Do(func() {
		close(h.closed)
		h.mu.Lock()
		for c := range h.clients {
			c.conn.Close()
			delete(h.clients, c)
		}
		h.mu.Unlock()
	})
	return nil
}

// ListenAndServe serves the hub at path on addr until the server fails
func (h *Hub) ListenAndServe(addr, path string) (*http.Server, <-chan error) {
	mux := http.NewServeMux()
	mux.Handle(path, h)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		glog.Infof("relay: websocket hub on %s%s", addr, path)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- fmt.Errorf("websocket hub: %w", err)
		}
		close(errc)
	}()
	return srv, errc
}
