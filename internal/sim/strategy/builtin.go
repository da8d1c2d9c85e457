package strategy

import (
	"context"
	"math/rand/v2"
	"sort"
	"strings"

	"mineopoly.ai/internal/sim/board"
)

// Random picks a uniformly random action every turn.
type Random struct {
	rng *rand.Rand
}

func NewRandom() *Random { return &Random{} }

func (r *Random) Name() string { return "Random" }

func (r *Random) Initialize(_ context.Context, s Setup) error {
	r.rng = s.Rand
	if r.rng == nil {
		r.rng = rand.New(rand.NewPCG(1, 2))
	}
	return nil
}

func (r *Random) TurnAction(context.Context, Turn) (Action, error) {
	if r.rng == nil {
		return NoOp, nil
	}
	return Actions[r.rng.IntN(len(Actions))], nil
}

func (r *Random) OnReceiveItem(context.Context, board.Item) error { return nil }
func (r *Random) OnSoldInventory(context.Context, int) error      { return nil }

func (r *Random) EndRound(context.Context, int, int) error {
	r.rng = nil
	return nil
}

// Scripted replays a fixed action list indexed by turn; turns past the end are NoOp.
// It also records the notifications it receives.
type Scripted struct {
	name    string
	actions []Action

	Received []board.Item
	Sales    []int
	Ended    bool
	Final    [2]int // own, opponent
}

func NewScripted(name string, actions []Action) *Scripted {
	if name == "" {
		name = "Scripted"
	}
	return &Scripted{name: name, actions: append([]Action(nil), actions...)}
}

func (s *Scripted) Name() string { return s.name }

func (s *Scripted) Initialize(context.Context, Setup) error {
	s.Received, s.Sales, s.Ended = nil, nil, false
	return nil
}

func (s *Scripted) TurnAction(_ context.Context, t Turn) (Action, error) {
	if t.Index < 0 || t.Index >= len(s.actions) {
		return NoOp, nil
	}
	return s.actions[t.Index], nil
}

func (s *Scripted) OnReceiveItem(_ context.Context, it board.Item) error {
	s.Received = append(s.Received, it)
	return nil
}

func (s *Scripted) OnSoldInventory(_ context.Context, total int) error {
	s.Sales = append(s.Sales, total)
	return nil
}

func (s *Scripted) EndRound(_ context.Context, own, opp int) error {
	s.Ended = true
	s.Final = [2]int{own, opp}
	return nil
}

var builtins = map[string]func() Strategy{
	"greedy": func() Strategy { return NewGreedy() },
	"random": func() Strategy { return NewRandom() },
	"idle":   func() Strategy { return NewScripted("Idle", nil) },
}

// Lookup returns a constructor for a built-in strategy by case-insensitive name.
func Lookup(name string) (func() Strategy, bool) {
	f, ok := builtins[strings.ToLower(strings.TrimSpace(name))]
	return f, ok
}

// Builtins lists the registered built-in names, sorted.
func Builtins() []string {
	out := make([]string, 0, len(builtins))
	for k := range builtins {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
