package net

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/runegate/server/internal/net/packet"
)

// Application close codes sent with the close frame so the client can show
// the right screen.
const (
	CloseKicked         = 4002
	CloseBanned         = 4003
	CloseDuplicateLogin = 4005
)

// maxInboundFrame bounds a single client frame.
const maxInboundFrame = 64 * 1024

// SocketConfig is the per-socket tuning the server hands each new
// connection.
type SocketConfig struct {
	InQueueSize       int
	OutQueueSize      int
	WriteTimeout      time.Duration
	PingInterval      time.Duration
	PingGrace         time.Duration
	PingMissTolerance int
}

// Socket is a single client connection. Network I/O runs in the two pump
// goroutines; everything else touches the socket only from the game loop.
type Socket struct {
	ID   uint64
	conn *websocket.Conn

	cfg   SocketConfig
	stage atomic.Int32 // packet.Stage

	In       chan *Message // game loop drains inbound envelopes from here
	OutQueue chan []byte   // write pump drains encoded frames from here

	IP          string
	ConnectedAt time.Time

	// Login flow state, game loop only. AuthName and AuthToken arrive as
	// connection params and are consumed by the authentication step, which
	// fills AccountID on success.
	AuthName            string
	AuthToken           string
	AccountID           string
	SelectedCharacterID int64
	CharacterName       string

	outBuf [][]byte // buffered frames, drained by the output flush (game loop only)

	missedPongs atomic.Int32

	closeCh   chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
	closeCode atomic.Int32

	log *zap.Logger
}

func NewSocket(conn *websocket.Conn, id uint64, cfg SocketConfig, log *zap.Logger) *Socket {
	s := &Socket{
		ID:          id,
		conn:        conn,
		cfg:         cfg,
		In:          make(chan *Message, cfg.InQueueSize),
		OutQueue:    make(chan []byte, cfg.OutQueueSize),
		IP:          conn.RemoteAddr().String(),
		ConnectedAt: time.Now(),
		closeCh:     make(chan struct{}),
		log:         log.With(zap.Uint64("socket", id)),
	}
	s.stage.Store(int32(packet.StageAuth))
	return s
}

func (s *Socket) Stage() packet.Stage {
	return packet.Stage(s.stage.Load())
}

func (s *Socket) SetStage(st packet.Stage) {
	s.stage.Store(int32(st))
}

// Start launches the read and write pumps.
func (s *Socket) Start() {
	go s.readPump()
	go s.writePump()
}

// Send buffers an outbound packet. Nothing reaches the wire until the
// per-tick output flush. Game loop only.
func (s *Socket) Send(name string, data any) {
	if s.closed.Load() {
		return
	}
	buf, err := EncodeMessage(name, data)
	if err != nil {
		s.log.Error("encode outbound packet", zap.String("packet", name), zap.Error(err))
		return
	}
	s.outBuf = append(s.outBuf, buf)
}

// SendRaw buffers an already-encoded frame. Broadcasts encode once and fan
// the bytes out. Game loop only.
func (s *Socket) SendRaw(buf []byte) {
	if s.closed.Load() {
		return
	}
	s.outBuf = append(s.outBuf, buf)
}

// FlushOutput drains the output buffer to the write pump. Non-blocking: a
// full queue means the client cannot keep up, and the socket is dropped
// rather than let one slow reader stall the tick.
func (s *Socket) FlushOutput() {
	for i, data := range s.outBuf {
		select {
		case s.OutQueue <- data:
		default:
			s.log.Warn("output queue full, dropping slow connection",
				zap.Int("unsent", len(s.outBuf)-i))
			s.Close()
			s.outBuf = s.outBuf[:0]
			return
		}
	}
	s.outBuf = s.outBuf[:0]
}

// CloseWithCode sends a close frame carrying an application code (kick,
// ban, duplicate login) before dropping the connection.
func (s *Socket) CloseWithCode(code int, reason string) {
	if s.closed.Load() {
		return
	}
	s.closeCode.Store(int32(code))
	deadline := time.Now().Add(s.cfg.WriteTimeout)
	msg := websocket.FormatCloseMessage(code, reason)
	if err := s.conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		s.log.Debug("write close frame", zap.Error(err))
	}
	s.Close()
}

// Close tears the socket down. Safe to call from any goroutine, repeatedly.
func (s *Socket) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.SetStage(packet.StageClosing)
		close(s.closeCh)
		s.conn.Close()
	})
}

func (s *Socket) IsClosed() bool {
	return s.closed.Load()
}

// readDeadline allows the configured tolerance of silent ping intervals
// plus the grace window before the read side gives up on its own.
func (s *Socket) readDeadline() time.Time {
	window := s.cfg.PingInterval*time.Duration(s.cfg.PingMissTolerance+1) + s.cfg.PingGrace
	return time.Now().Add(window)
}

// readPump delivers inbound frames to the In channel. It blocks when the
// channel is full: the pump is per-socket, so backpressure stalls only this
// client, and move packets are never dropped.
func (s *Socket) readPump() {
	defer s.Close()

	s.conn.SetReadLimit(maxInboundFrame)
	s.conn.SetReadDeadline(s.readDeadline())
	s.conn.SetPongHandler(func(string) error {
		s.missedPongs.Store(0)
		s.conn.SetReadDeadline(s.readDeadline())
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if !s.closed.Load() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("read error", zap.Error(err))
			}
			return
		}
		msg, err := DecodeMessage(raw)
		if err != nil {
			s.log.Debug("dropping malformed frame", zap.Error(err))
			continue
		}
		select {
		case s.In <- msg:
		case <-s.closeCh:
			return
		}
	}
}

// writePump writes queued frames and keeps the ping clock. A tick of the
// ping timer with too many unanswered pings drops the connection.
func (s *Socket) writePump() {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		s.Close()
	}()

	for {
		select {
		case data := <-s.OutQueue:
			if !s.writeFrame(data) {
				return
			}
			// Drain whatever else this tick flushed.
			for len(s.OutQueue) > 0 {
				select {
				case more := <-s.OutQueue:
					if !s.writeFrame(more) {
						return
					}
				case <-s.closeCh:
					return
				}
			}
		case <-ticker.C:
			if int(s.missedPongs.Add(1)) > s.cfg.PingMissTolerance {
				s.log.Info("ping tolerance exceeded, disconnecting",
					zap.Int32("missed", s.missedPongs.Load()))
				return
			}
			deadline := time.Now().Add(s.cfg.WriteTimeout)
			if err := s.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-s.closeCh:
			return
		}
	}
}

func (s *Socket) writeFrame(data []byte) bool {
	s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		if !s.closed.Load() {
			s.log.Debug("write error", zap.Error(err))
		}
		return false
	}
	return true
}

// SocketTable indexes live sockets by id. Game loop only.
type SocketTable struct {
	sockets map[uint64]*Socket
}

func NewSocketTable() *SocketTable {
	return &SocketTable{sockets: make(map[uint64]*Socket)}
}

func (t *SocketTable) Add(s *Socket) {
	t.sockets[s.ID] = s
}

func (t *SocketTable) Remove(id uint64) *Socket {
	s, ok := t.sockets[id]
	if !ok {
		return nil
	}
	delete(t.sockets, id)
	return s
}

func (t *SocketTable) Get(id uint64) *Socket {
	return t.sockets[id]
}

func (t *SocketTable) Each(fn func(*Socket)) {
	for _, s := range t.sockets {
		fn(s)
	}
}

func (t *SocketTable) Len() int {
	return len(t.sockets)
}
