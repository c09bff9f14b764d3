package observer

import (
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"empires.ai/internal/protocol"
	"empires.ai/internal/sim/model"
)

const (
	defaultLeaders = 10
	maxLeaders     = 100
	queueLen       = 16
)

// Server fans turn summaries out to websocket observers. Slow or
// over-rate observers miss summaries instead of holding up the game.
type Server struct {
	welcome func() protocol.WelcomeMsg
	log     *slog.Logger

	upgrader     websocket.Upgrader
	loopbackOnly bool
	limit        rate.Limit
	burst        int

	nextID  atomic.Uint64
	dropped atomic.Uint64

	mu   sync.Mutex
	subs map[uint64]*subscriber
}

type subscriber struct {
	gameID  string
	leaders int
	lim     *rate.Limiter
	out     chan []byte
}

type Option func(*Server)

func WithLogger(l *slog.Logger) Option { return func(s *Server) { s.log = l } }

// WithRate caps summaries per second sent to one observer.
func WithRate(r rate.Limit, burst int) Option {
	return func(s *Server) { s.limit, s.burst = r, burst }
}

// WithLoopbackOnly rejects observers that do not connect from localhost.
func WithLoopbackOnly(v bool) Option { return func(s *Server) { s.loopbackOnly = v } }

// NewServer serves observers; welcome reports the current game and turn.
func NewServer(welcome func() protocol.WelcomeMsg, opts ...Option) *Server {
	s := &Server{
		welcome: welcome,
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		limit: 20,
		burst: 20,
		subs:  map[uint64]*subscriber{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Server) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Dropped counts summaries not delivered because of rate or a full queue.
func (s *Server) Dropped() uint64 { return s.dropped.Load() }

// Publish sends the turn's summary to every observer of its game.
func (s *Server) Publish(r *model.TurnResult, digest string) {
	if r == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	encoded := map[int][]byte{}
	for _, sub := range s.subs {
		if sub.gameID != "" && sub.gameID != r.GameID {
			continue
		}
		b, ok := encoded[sub.leaders]
		if !ok {
			var err error
			b, err = json.Marshal(protocol.Summarize(r, digest, sub.leaders))
			if err != nil {
				s.log.Error("encode summary", "error", err)
				return
			}
			encoded[sub.leaders] = b
		}
		if !sub.lim.Allow() {
			s.dropped.Add(1)
			continue
		}
		select {
		case sub.out <- b:
		default:
			s.dropped.Add(1)
		}
	}
}

func (s *Server) register(hello protocol.HelloMsg) (uint64, *subscriber) {
	n := hello.Leaders
	if n <= 0 {
		n = defaultLeaders
	}
	if n > maxLeaders {
		n = maxLeaders
	}
	sub := &subscriber{
		gameID:  hello.GameID,
		leaders: n,
		lim:     rate.NewLimiter(s.limit, s.burst),
		out:     make(chan []byte, queueLen),
	}
	id := s.nextID.Add(1)
	s.mu.Lock()
	s.subs[id] = sub
	s.mu.Unlock()
	return id, sub
}

func (s *Server) unregister(id uint64) {
	s.mu.Lock()
	delete(s.subs, id)
	s.mu.Unlock()
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if s.loopbackOnly && !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		hello, ok := s.handshake(conn)
		if !ok {
			return
		}
		id, sub := s.register(hello)
		defer s.unregister(id)
		log := s.log.With("observer", id)
		log.Info("observer joined", "game_id", hello.GameID, "leaders", sub.leaders)

		w := s.welcome()
		w.Type = protocol.TypeWelcome
		w.ProtocolVersion = protocol.Version
		if err := writeJSON(conn, w); err != nil {
			return
		}

		done := make(chan struct{})
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-done:
					writeErr <- nil
					return
				case b := <-sub.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: only keeps the connection alive and notices closes.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		close(done)
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
		log.Info("observer left")
	}
}

func (s *Server) handshake(conn *websocket.Conn) (protocol.HelloMsg, bool) {
	var hello protocol.HelloMsg
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return hello, false
	}
	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		reject(conn, "expected HELLO")
		return hello, false
	}
	if err := json.Unmarshal(msg, &hello); err != nil {
		reject(conn, "bad HELLO")
		return hello, false
	}
	if hello.ProtocolVersion != protocol.Version {
		reject(conn, "bad protocol_version")
		return hello, false
	}
	return hello, true
}

func reject(conn *websocket.Conn, reason string) {
	_ = writeJSON(conn, protocol.NewError(protocol.ErrProtoBadRequest, reason))
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
