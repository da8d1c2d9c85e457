package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/gorilla/websocket"

	"mineopoly.ai/internal/protocol"
	"mineopoly.ai/internal/sim/strategy"
)

// ErrRejected wraps an ERROR message received from the server.
var ErrRejected = errors.New("server rejected client")

// ClientResult is what a client learns at the end of a round.
type ClientResult struct {
	RoundID  string
	Welcome  protocol.WelcomeMsg
	Own      int
	Opponent int
	Turns    int
}

// Play connects to url, plays exactly one round with s, and returns after END.
// Each TurnAction gets the budget announced in WELCOME (or one second).
func Play(ctx context.Context, url string, s strategy.Strategy, token string) (ClientResult, error) {
	var res ClientResult

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return res, fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	hello := protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, StrategyName: s.Name()}
	if token != "" {
		hello.Auth = &protocol.HelloAuth{Token: token}
	}
	if err := writeJSON(conn, hello); err != nil {
		return res, err
	}

	budget := time.Second
	for {
		_ = conn.SetReadDeadline(time.Time{})
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			return res, fmt.Errorf("read: %w", err)
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeError:
			var e protocol.ErrorMsg
			_ = json.Unmarshal(msg, &e)
			return res, fmt.Errorf("%w: %s %s", ErrRejected, e.Code, e.Message)

		case protocol.TypeWelcome:
			if err := json.Unmarshal(msg, &res.Welcome); err != nil {
				return res, fmt.Errorf("welcome: %w", err)
			}
			res.RoundID = res.Welcome.RoundID
			if res.Welcome.Rules.TurnBudgetMsec > 0 {
				budget = time.Duration(res.Welcome.Rules.TurnBudgetMsec) * time.Millisecond
			}
			setup, err := protocol.SetupFromWelcome(res.Welcome)
			if err != nil {
				return res, fmt.Errorf("welcome: %w", err)
			}
			setup.Rand = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(setup.BoardSize)))
			if err := s.Initialize(ctx, setup); err != nil {
				return res, fmt.Errorf("initialize: %w", err)
			}

		case protocol.TypeTurn:
			var tm protocol.TurnMsg
			if err := json.Unmarshal(msg, &tm); err != nil {
				return res, fmt.Errorf("turn: %w", err)
			}
			t, err := protocol.DecodeTurn(tm)
			if err != nil {
				return res, fmt.Errorf("turn %d: %w", tm.Turn, err)
			}
			tctx, cancel := context.WithTimeout(ctx, budget)
			a, err := s.TurnAction(tctx, t)
			cancel()
			if err != nil {
				a = strategy.NoOp
			}
			res.Turns++
			if err := writeJSON(conn, protocol.NewAct(tm.Turn, a)); err != nil {
				return res, err
			}

		case protocol.TypeItem:
			var im protocol.ItemMsg
			if err := json.Unmarshal(msg, &im); err == nil {
				_ = s.OnReceiveItem(ctx, im.Item)
			}

		case protocol.TypeSold:
			var sm protocol.SoldMsg
			if err := json.Unmarshal(msg, &sm); err == nil {
				_ = s.OnSoldInventory(ctx, sm.Total)
			}

		case protocol.TypeEnd:
			var em protocol.EndMsg
			if err := json.Unmarshal(msg, &em); err != nil {
				return res, fmt.Errorf("end: %w", err)
			}
			res.Own, res.Opponent = em.Own, em.Opponent
			_ = s.EndRound(ctx, em.Own, em.Opponent)
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
			return res, nil
		}
	}
}
