package ws

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"

	"mineopoly.ai/internal/protocol"
	"mineopoly.ai/internal/sim/board"
	"mineopoly.ai/internal/sim/match"
	"mineopoly.ai/internal/sim/strategy"
)

func testConfig() match.Config {
	return match.Config{BoardSize: 10, MaxTurns: 40, StrategyBudget: 2 * time.Second}
}

type roundLog struct {
	mu      sync.Mutex
	results map[string]match.Result
}

func (l *roundLog) play(ctx context.Context, roundID string, red, blue strategy.Strategy) error {
	e, err := match.New(testConfig(), red, blue, 77)
	if err != nil {
		return err
	}
	res, err := e.Run(ctx)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.results[roundID] = res
	l.mu.Unlock()
	return nil
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestLobby_PairsTwoClients(t *testing.T) {
	rl := &roundLog{results: map[string]match.Result{}}
	s := NewServer(rl.play, nil, WithRules(40, 2*time.Second))
	defer s.Close()
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	var results [2]ClientResult
	var errs [2]error
	for i, st := range []strategy.Strategy{strategy.NewGreedy(), strategy.NewRandom()} {
		wg.Add(1)
		go func(i int, st strategy.Strategy) {
			defer wg.Done()
			results[i], errs[i] = Play(ctx, wsURL(srv), st, "")
		}(i, st)
		if i == 0 {
			// Make the greedy client the waiting (red) seat.
			time.Sleep(100 * time.Millisecond)
		}
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("client %d: %v", i, err)
		}
	}

	g, r := results[0], results[1]
	if g.RoundID == "" || g.RoundID != r.RoundID {
		t.Fatalf("round ids %q %q", g.RoundID, r.RoundID)
	}
	if g.Welcome.Color != board.Red || r.Welcome.Color != board.Blue {
		t.Fatalf("colors %v %v", g.Welcome.Color, r.Welcome.Color)
	}
	if g.Welcome.Opponent != "Random" || r.Welcome.Opponent != "Greedy" {
		t.Fatalf("opponents %q %q", g.Welcome.Opponent, r.Welcome.Opponent)
	}
	if g.Welcome.Rules.MaxTurns != 40 || g.Welcome.Rules.BoardSize != 10 {
		t.Fatalf("rules %+v", g.Welcome.Rules)
	}

	rl.mu.Lock()
	res, ok := rl.results[g.RoundID]
	rl.mu.Unlock()
	if !ok {
		t.Fatalf("round %s not recorded", g.RoundID)
	}
	if g.Own != res.Scores[board.Red] || r.Own != res.Scores[board.Blue] || g.Opponent != r.Own {
		t.Fatalf("client scores %d/%d, round %v", g.Own, r.Own, res.Scores)
	}
	if g.Turns != res.Turns || r.Turns != res.Turns {
		t.Fatalf("clients answered %d/%d turns, round ran %d", g.Turns, r.Turns, res.Turns)
	}
	if res.Replay.Header().Red != "Greedy" || res.Replay.Header().Blue != "Random" {
		t.Fatalf("replay names %+v", res.Replay.Header())
	}
}

func TestLobby_HouseOpponentAlternatesColors(t *testing.T) {
	rl := &roundLog{results: map[string]match.Result{}}
	s := NewServer(rl.play, nil, WithHouseOpponent(func() strategy.Strategy { return strategy.NewGreedy() }))
	defer s.Close()
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var colors []board.Color
	for i := 0; i < 2; i++ {
		res, err := Play(ctx, wsURL(srv), strategy.NewScripted("Idle", nil), "")
		if err != nil {
			t.Fatalf("round %d: %v", i, err)
		}
		if res.Welcome.Opponent != "Greedy" {
			t.Fatalf("opponent %q", res.Welcome.Opponent)
		}
		colors = append(colors, res.Welcome.Color)
	}
	if colors[0] != board.Red || colors[1] != board.Blue {
		t.Fatalf("colors=%v", colors)
	}
}

func TestHandshake_Rejections(t *testing.T) {
	s := NewServer(func(context.Context, string, strategy.Strategy, strategy.Strategy) error { return nil }, nil, WithToken("sekrit"))
	defer s.Close()
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := Play(ctx, wsURL(srv), strategy.NewGreedy(), "wrong")
	if !errors.Is(err, ErrRejected) || !strings.Contains(err.Error(), protocol.ErrUnauthorized) {
		t.Fatalf("bad token: %v", err)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL(srv), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if err := conn.WriteJSON(protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: "0.1", StrategyName: "old"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var e protocol.ErrorMsg
	if err := conn.ReadJSON(&e); err != nil {
		t.Fatalf("read: %v", err)
	}
	if e.Type != protocol.TypeError || e.Code != protocol.ErrProtoVersion {
		t.Fatalf("got %+v", e)
	}
}

func TestRemote_DisconnectBecomesFault(t *testing.T) {
	done := make(chan match.Result, 1)
	s := NewServer(func(ctx context.Context, _ string, red, blue strategy.Strategy) error {
		e, err := match.New(testConfig(), red, blue, 5)
		if err != nil {
			return err
		}
		res, err := e.Run(ctx)
		done <- res
		return err
	}, nil, WithHouseOpponent(func() strategy.Strategy { return strategy.NewGreedy() }))
	defer s.Close()
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if err := conn.WriteJSON(protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, StrategyName: "quitter"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	var w protocol.WelcomeMsg
	if err := conn.ReadJSON(&w); err != nil {
		t.Fatalf("read welcome: %v", err)
	}
	_ = conn.Close()

	select {
	case res := <-done:
		if !res.State.Terminal() {
			t.Fatalf("round did not finish: %v", res.State)
		}
		for e := range res.Replay.Entries() {
			if e.Color == board.Red && e.Action != strategy.NoOp {
				t.Fatalf("disconnected player acted: %+v", e)
			}
		}
	case <-time.After(20 * time.Second):
		t.Fatalf("round never finished after disconnect")
	}
}

func TestClose_WaitsForRoundsInFlight(t *testing.T) {
	started := make(chan struct{})
	var mu sync.Mutex
	finished := false
	s := NewServer(func(ctx context.Context, _ string, _, _ strategy.Strategy) error {
		close(started)
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond) // persisting after the abort
		mu.Lock()
		finished = true
		mu.Unlock()
		return ctx.Err()
	}, nil, WithHouseOpponent(func() strategy.Strategy { return strategy.NewGreedy() }))
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if err := conn.WriteJSON(protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, StrategyName: "slow"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case <-started:
	case <-time.After(10 * time.Second):
		t.Fatalf("round never started")
	}

	s.Close()
	mu.Lock()
	defer mu.Unlock()
	if !finished {
		t.Fatalf("Close returned before the round did")
	}
}

func TestTruncateRunes(t *testing.T) {
	long := strings.Repeat("é", 70)
	got := truncateRunes(long, maxNameRunes)
	if !utf8.ValidString(got) || utf8.RuneCountInString(got) != maxNameRunes {
		t.Fatalf("got %q (%d runes)", got, utf8.RuneCountInString(got))
	}
	if truncateRunes("greedy", maxNameRunes) != "greedy" {
		t.Fatalf("short name changed")
	}
}
