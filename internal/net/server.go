package net

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Server upgrades HTTP requests to WebSocket sockets and hands them to the
// game loop over the newConns channel.
type Server struct {
	httpSrv  *http.Server
	upgrader websocket.Upgrader
	scfg     SocketConfig
	nextID   atomic.Uint64
	newConns chan *Socket
	log      *zap.Logger
}

func NewServer(bindAddr, wsPath string, scfg SocketConfig, log *zap.Logger) *Server {
	s := &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Game clients connect from packaged builds and local dev
			// pages; origin enforcement happens upstream.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		scfg:     scfg,
		newConns: make(chan *Socket, 64),
		log:      log,
	}
	mux := http.NewServeMux()
	mux.HandleFunc(wsPath, s.handleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	s.httpSrv = &http.Server{
		Addr:              bindAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// handleWS validates connection params, upgrades, and queues the socket for
// the game loop. Credentials ride the query string; the authentication
// itself runs off-loop once the game picks the socket up.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	name, token := q.Get("name"), q.Get("token")
	if name == "" || token == "" || len(name) > 64 || len(token) > 256 {
		http.Error(w, "missing or invalid credentials", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("upgrade failed", zap.Error(err))
		return
	}

	id := s.nextID.Add(1)
	sock := NewSocket(conn, id, s.scfg, s.log)
	sock.AuthName = name
	sock.AuthToken = token
	sock.Start()

	s.log.Info("client connected",
		zap.Uint64("socket", id),
		zap.String("ip", sock.IP),
	)

	select {
	case s.newConns <- sock:
	default:
		s.log.Warn("connection queue full, refusing socket", zap.Uint64("socket", id))
		sock.CloseWithCode(websocket.CloseTryAgainLater, "server busy")
	}
}

// ListenAndServe blocks until Shutdown or a listener error.
func (s *Server) ListenAndServe() error {
	s.log.Info("listening", zap.String("addr", s.httpSrv.Addr))
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// NewSockets is the channel of freshly upgraded sockets, drained by the
// connection system each tick.
func (s *Server) NewSockets() <-chan *Socket {
	return s.newConns
}

// Shutdown stops accepting connections and closes the listener. Live
// sockets are closed by the game loop's own teardown.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
