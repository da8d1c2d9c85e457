package luastrat

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mineopoly.ai/internal/sim/match"
	"mineopoly.ai/internal/sim/strategy"
)

func minerPath() string {
	return filepath.Join("..", "..", "..", "..", "configs", "strategies", "miner.lua")
}

type faultLog struct{ faults []string }

func (f *faultLog) WriteTurn(e match.TurnLogEntry) error {
	for _, s := range e.Faults {
		if s != "" {
			f.faults = append(f.faults, s)
		}
	}
	return nil
}

func TestLoad_Miner(t *testing.T) {
	s, err := Load(minerPath(), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.Name() != "LuaMiner" {
		t.Fatalf("name=%q", s.Name())
	}

	play := func() match.Result {
		s, err := Load(minerPath(), nil)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		fl := &faultLog{}
		e, err := match.New(match.Config{BoardSize: 12, MaxTurns: 300, StrategyBudget: time.Second}, s, strategy.NewScripted("Idle", nil), 21, match.WithTurnLogger(fl))
		if err != nil {
			t.Fatalf("new: %v", err)
		}
		res, err := e.Run(context.Background())
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if len(fl.faults) > 0 {
			t.Fatalf("script faulted: %v", fl.faults[0])
		}
		return res
	}
	a, b := play(), play()
	if a.Digest != b.Digest {
		t.Fatalf("lua rounds are not deterministic")
	}
	if a.Scores[0] == 0 {
		t.Fatalf("miner never sold anything in %d turns", a.Turns)
	}
}

func TestNew_Rejects(t *testing.T) {
	if _, err := New("bad", "function turn(", nil); err == nil {
		t.Fatalf("syntax error accepted")
	}
	if _, err := New("noturn", "function initialize() end", nil); err == nil {
		t.Fatalf("script without turn accepted")
	}
	if _, err := New("boom", "error('nope')\nfunction turn() end", nil); err == nil {
		t.Fatalf("failing chunk accepted")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.lua"), nil); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("missing file: %v", err)
	}
}

func TestSandbox(t *testing.T) {
	src := `
assert(io == nil and os == nil and dofile == nil and loadfile == nil and require == nil, "escaped sandbox")
function turn(t) return nil end
`
	if _, err := New("sandboxed", src, nil); err != nil {
		t.Fatalf("sandbox: %v", err)
	}
}

func TestTurn_FaultsBecomeNoOps(t *testing.T) {
	cases := map[string]string{
		"loop":    "function turn(t) while true do end end",
		"badname": "function turn(t) return 'JUMP' end",
		"badtype": "function turn(t) return 7 end",
		"runtime": "function turn(t) return t.nothing.here end",
	}
	for name, src := range cases {
		s, err := New(name, src, nil)
		if err != nil {
			t.Fatalf("%s: new: %v", name, err)
		}
		fl := &faultLog{}
		e, err := match.New(match.Config{BoardSize: 8, MaxTurns: 3, StrategyBudget: 50 * time.Millisecond}, s, strategy.NewScripted("Idle", nil), 1, match.WithTurnLogger(fl))
		if err != nil {
			t.Fatalf("%s: match: %v", name, err)
		}
		res, err := e.Run(context.Background())
		if err != nil {
			t.Fatalf("%s: run: %v", name, err)
		}
		if len(fl.faults) != 3 {
			t.Fatalf("%s: faults=%v", name, fl.faults)
		}
		if name == "loop" && !strings.Contains(fl.faults[0], strategy.ErrTimeout.Error()) {
			t.Fatalf("loop fault %q is not a timeout", fl.faults[0])
		}
		for _, a := range res.Replay.Actions(0) {
			if a != strategy.NoOp {
				t.Fatalf("%s: faulting script moved: %v", name, a)
			}
		}
	}
}

func TestHooksAndRandom(t *testing.T) {
	src := `
received, sold, ended = 0, 0, nil
function on_item(item) received = received + 1 end
function on_sold(total) sold = sold + total end
function end_round(own, opp) ended = own end
local moves = {"MOVE_UP", "MOVE_DOWN", "MOVE_LEFT", "MOVE_RIGHT"}
function turn(t) return moves[math.random(#moves)] end
`
	run := func() match.Result {
		s, err := New("walker", src, nil)
		if err != nil {
			t.Fatalf("new: %v", err)
		}
		e, err := match.New(match.Config{BoardSize: 8, MaxTurns: 40, StrategyBudget: time.Second}, s, strategy.NewScripted("Idle", nil), 3)
		if err != nil {
			t.Fatalf("match: %v", err)
		}
		res, err := e.Run(context.Background())
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		return res
	}
	a, b := run(), run()
	if a.Digest != b.Digest {
		t.Fatalf("math.random is not seeded from the round")
	}
}

func TestResolve(t *testing.T) {
	f, err := Resolve("lua:"+minerPath(), nil)
	if err != nil {
		t.Fatalf("resolve lua: %v", err)
	}
	a, b := f(), f()
	if a == b {
		t.Fatalf("resolver returned a shared instance")
	}
	if a.Name() != "LuaMiner" {
		t.Fatalf("name=%q", a.Name())
	}
	g, err := Resolve(" Greedy ", nil)
	if err != nil || g().Name() != "Greedy" {
		t.Fatalf("resolve greedy: %v", err)
	}
	if _, err := Resolve("nobody", nil); err == nil {
		t.Fatalf("unknown name resolved")
	}
}
