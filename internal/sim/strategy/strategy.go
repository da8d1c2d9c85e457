package strategy

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"mineopoly.ai/internal/sim/board"
	"mineopoly.ai/internal/sim/economy"
)

// Setup is handed to a strategy once per round before the first turn.
type Setup struct {
	BoardSize    int
	MaxInventory int
	MaxCharge    int
	WinningScore int
	View         board.View
	Start        board.Point
	IsRed        bool
	// Rand is owned by the strategy for the round. The engine never reads it.
	Rand *rand.Rand
}

// Turn is everything a strategy sees when asked for an action.
type Turn struct {
	Index     int
	View      board.View
	Prices    economy.Prices
	Charge    int
	Inventory []board.Item
	// RedTurn is the tiebreak flag: Red wins destination collisions when set.
	RedTurn bool
}

// Strategy is a pluggable, untrusted player. Implementations must not retain
// anything they are handed beyond the call except their own copies.
type Strategy interface {
	Name() string
	Initialize(ctx context.Context, s Setup) error
	TurnAction(ctx context.Context, t Turn) (Action, error)
	OnReceiveItem(ctx context.Context, it board.Item) error
	OnSoldInventory(ctx context.Context, total int) error
	// EndRound must reset any round-scoped state.
	EndRound(ctx context.Context, own, opponent int) error
}

// ErrTimeout is wrapped by faults raised when a call exceeds its budget.
var ErrTimeout = errors.New("strategy call timed out")

// Fault records a strategy call that errored, panicked, or ran out of time.
type Fault struct {
	Strategy string
	Op       string
	Err      error
	Panic    any
}

func (f *Fault) Error() string {
	switch {
	case f.Panic != nil:
		return fmt.Sprintf("strategy %q %s: panic: %v", f.Strategy, f.Op, f.Panic)
	case f.Err != nil:
		return fmt.Sprintf("strategy %q %s: %v", f.Strategy, f.Op, f.Err)
	}
	return fmt.Sprintf("strategy %q %s: fault", f.Strategy, f.Op)
}

func (f *Fault) Unwrap() error { return f.Err }

func (f *Fault) Timeout() bool { return errors.Is(f.Err, ErrTimeout) }
