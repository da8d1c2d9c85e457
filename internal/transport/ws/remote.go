package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"mineopoly.ai/internal/protocol"
	"mineopoly.ai/internal/sim/board"
	"mineopoly.ai/internal/sim/strategy"
)

// ErrDisconnected is returned by every call once the remote connection is gone.
var ErrDisconnected = errors.New("remote strategy disconnected")

// Remote is a strategy played by a websocket client.
// Engine calls become TURN/ITEM/SOLD/END messages; TurnAction waits for the matching ACT.
type Remote struct {
	name string
	conn *websocket.Conn

	roundID  string
	opponent string
	rules    protocol.RulesMsg

	wmu  sync.Mutex
	acts chan protocol.ActMsg
	done chan struct{}
	once sync.Once
	err  error
}

func newRemote(conn *websocket.Conn, name string) *Remote {
	r := &Remote{
		name: name,
		conn: conn,
		acts: make(chan protocol.ActMsg, 8),
		done: make(chan struct{}),
	}
	go r.readLoop()
	return r
}

func (r *Remote) Name() string { return r.name }

// Done is closed when the connection drops.
func (r *Remote) Done() <-chan struct{} { return r.done }

func (r *Remote) readLoop() {
	for {
		_ = r.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, msg, err := r.conn.ReadMessage()
		if err != nil {
			r.fail(err)
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil || base.Type != protocol.TypeAct {
			continue
		}
		var act protocol.ActMsg
		if err := json.Unmarshal(msg, &act); err != nil {
			continue
		}
		if act.ProtocolVersion != protocol.Version {
			continue
		}
		select {
		case r.acts <- act:
		default:
			// Client is flooding; keep the newest.
			select {
			case <-r.acts:
			default:
			}
			r.acts <- act
		}
	}
}

func (r *Remote) fail(err error) {
	r.once.Do(func() {
		r.err = err
		close(r.done)
	})
}

func (r *Remote) send(v any) error {
	select {
	case <-r.done:
		return fmt.Errorf("%w: %v", ErrDisconnected, r.err)
	default:
	}
	r.wmu.Lock()
	defer r.wmu.Unlock()
	if err := writeJSON(r.conn, v); err != nil {
		r.fail(err)
		return fmt.Errorf("%w: %v", ErrDisconnected, err)
	}
	return nil
}

func (r *Remote) Initialize(ctx context.Context, s strategy.Setup) error {
	color := board.Blue
	if s.IsRed {
		color = board.Red
	}
	rules := r.rules
	rules.BoardSize = s.BoardSize
	rules.MaxInventory = s.MaxInventory
	rules.MaxCharge = s.MaxCharge
	rules.WinningScore = s.WinningScore
	// Drain ACTs left over from an earlier round on the same connection.
drain:
	for {
		select {
		case <-r.acts:
		default:
			break drain
		}
	}
	return r.send(protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		RoundID:         r.roundID,
		Color:           color,
		Opponent:        r.opponent,
		Rules:           rules,
		Start:           s.Start,
		View:            protocol.EncodeView(s.View),
	})
}

func (r *Remote) TurnAction(ctx context.Context, t strategy.Turn) (strategy.Action, error) {
	if err := r.send(protocol.EncodeTurn(t)); err != nil {
		return strategy.NoOp, err
	}
	for {
		select {
		case act := <-r.acts:
			if act.Turn < t.Index {
				continue
			}
			if act.Turn > t.Index {
				return strategy.NoOp, fmt.Errorf("act for turn %d while playing turn %d", act.Turn, t.Index)
			}
			a, err := strategy.ParseAction(act.Action)
			if err != nil {
				_ = r.send(protocol.NewError(protocol.ErrBadAction, err.Error()))
				return strategy.NoOp, err
			}
			return a, nil
		case <-r.done:
			return strategy.NoOp, fmt.Errorf("%w: %v", ErrDisconnected, r.err)
		case <-ctx.Done():
			return strategy.NoOp, ctx.Err()
		}
	}
}

func (r *Remote) OnReceiveItem(ctx context.Context, it board.Item) error {
	return r.send(protocol.ItemMsg{Type: protocol.TypeItem, ProtocolVersion: protocol.Version, Item: it})
}

func (r *Remote) OnSoldInventory(ctx context.Context, total int) error {
	return r.send(protocol.SoldMsg{Type: protocol.TypeSold, ProtocolVersion: protocol.Version, Total: total})
}

func (r *Remote) EndRound(ctx context.Context, own, opponent int) error {
	return r.send(protocol.EndMsg{Type: protocol.TypeEnd, ProtocolVersion: protocol.Version, Own: own, Opponent: opponent})
}
