package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"

	"mineopoly.ai/internal/protocol"
	"mineopoly.ai/internal/sim/strategy"
)

// RoundFunc plays one round between two strategies and returns when it is over.
type RoundFunc func(ctx context.Context, roundID string, red, blue strategy.Strategy) error

type Option func(*Server)

// WithHouseOpponent pairs every connection with a fresh local strategy instead of
// waiting for a second client. The remote side alternates colors between rounds.
func WithHouseOpponent(newStrategy func() strategy.Strategy) Option {
	return func(s *Server) { s.house = newStrategy }
}

// WithToken requires HELLO.auth.token to match.
func WithToken(token string) Option {
	return func(s *Server) { s.token = token }
}

// WithRules fills the round limits announced in WELCOME.
func WithRules(maxTurns int, budget time.Duration) Option {
	return func(s *Server) {
		s.rules.MaxTurns = maxTurns
		s.rules.TurnBudgetMsec = int(budget / time.Millisecond)
	}
}

// Server is the strategy lobby: each websocket client says HELLO and is seated in the next round.
type Server struct {
	log   *log.Logger
	round RoundFunc
	house func() strategy.Strategy
	token string
	rules protocol.RulesMsg

	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	waiting *seat
	rounds  atomic.Uint64
	playing sync.WaitGroup
}

type seat struct {
	remote *Remote
	done   chan struct{}
}

func NewServer(round RoundFunc, logger *log.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		log:   logger,
		round: round,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		ctx:    ctx,
		cancel: cancel,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Close aborts rounds in progress, turns new clients away and waits for the
// aborted rounds to return.
func (s *Server) Close() {
	s.mu.Lock()
	s.cancel()
	w := s.waiting
	s.waiting = nil
	s.mu.Unlock()
	if w != nil {
		close(w.done)
	}
	s.playing.Wait()
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		name, ok := s.handshake(conn)
		if !ok {
			return
		}
		if s.ctx.Err() != nil {
			_ = writeJSON(conn, protocol.NewError(protocol.ErrLobbyClosed, "server shutting down"))
			return
		}
		remote := newRemote(conn, name)

		if s.house != nil {
			n := s.rounds.Add(1)
			red, blue := strategy.Strategy(remote), s.house()
			if n%2 == 0 {
				red, blue = blue, red
			}
			s.play(n, red, blue)
			return
		}

		me := &seat{remote: remote, done: make(chan struct{})}
		s.mu.Lock()
		other := s.waiting
		if other == nil || isGone(other.remote) {
			s.waiting = me
			s.mu.Unlock()
			select {
			case <-me.done:
			case <-remote.Done():
				s.mu.Lock()
				if s.waiting == me {
					s.waiting = nil
				}
				s.mu.Unlock()
			}
			return
		}
		s.waiting = nil
		s.mu.Unlock()

		n := s.rounds.Add(1)
		s.play(n, other.remote, remote)
		close(other.done)
	}
}

func isGone(r *Remote) bool {
	select {
	case <-r.Done():
		return true
	default:
		return false
	}
}

func (s *Server) play(n uint64, red, blue strategy.Strategy) {
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		for _, st := range []strategy.Strategy{red, blue} {
			if rm, ok := st.(*Remote); ok {
				_ = rm.send(protocol.NewError(protocol.ErrLobbyClosed, "server shutting down"))
			}
		}
		return
	}
	s.playing.Add(1)
	s.mu.Unlock()
	defer s.playing.Done()

	roundID := fmt.Sprintf("round-%d-%d", time.Now().UTC().Unix(), n)
	for _, pair := range [][2]strategy.Strategy{{red, blue}, {blue, red}} {
		if rm, ok := pair[0].(*Remote); ok {
			rm.roundID = roundID
			rm.opponent = pair[1].Name()
			rm.rules = s.rules
		}
	}
	s.log.Printf("%s: %s (red) vs %s (blue)", roundID, red.Name(), blue.Name())
	if err := s.round(s.ctx, roundID, red, blue); err != nil {
		s.log.Printf("%s: %v", roundID, err)
		for _, st := range []strategy.Strategy{red, blue} {
			if rm, ok := st.(*Remote); ok {
				_ = rm.send(protocol.NewError(protocol.ErrInternal, err.Error()))
			}
		}
	}
}

func (s *Server) handshake(conn *websocket.Conn) (name string, ok bool) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", false
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = writeJSON(conn, protocol.NewError(protocol.ErrProtoBadRequest, "expected HELLO"))
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return "", false
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		_ = writeJSON(conn, protocol.NewError(protocol.ErrProtoBadRequest, err.Error()))
		return "", false
	}
	if !supports(hello) {
		_ = writeJSON(conn, protocol.NewError(protocol.ErrProtoVersion, "want protocol_version "+protocol.Version))
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return "", false
	}
	if s.token != "" {
		got := ""
		if hello.Auth != nil {
			got = strings.TrimSpace(hello.Auth.Token)
		}
		if got != s.token {
			_ = writeJSON(conn, protocol.NewError(protocol.ErrUnauthorized, "bad token"))
			return "", false
		}
	}
	name = strings.TrimSpace(hello.StrategyName)
	if name == "" {
		name = "remote"
	}
	name = truncateRunes(name, maxNameRunes)
	return name, true
}

const maxNameRunes = 64

// truncateRunes cuts s to at most n runes without splitting one.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func supports(h protocol.HelloMsg) bool {
	if h.ProtocolVersion == protocol.Version {
		return true
	}
	for _, v := range h.SupportedVersions {
		if v == protocol.Version {
			return true
		}
	}
	return false
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
