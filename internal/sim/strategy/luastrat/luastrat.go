// Package luastrat runs strategies written in Lua.
//
// A script defines global functions; only turn is required:
//
//	name = "Miner"                -- optional display name
//	function initialize(setup) end
//	function turn(t) return "MINE" end
//	function on_item(item) end
//	function on_sold(total) end
//	function end_round(own, opponent) end
//
// Scripts get base, table, string and math without file or module access.
// math.random draws from the round's seeded generator. Board helpers read the
// current turn's view: tile(x, y), items(x, y), find(tile_name),
// step_toward(x1, y1, x2, y2) and distance(x1, y1, x2, y2).
package luastrat

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"mineopoly.ai/internal/sim/board"
	"mineopoly.ai/internal/sim/strategy"
)

// Strategy is a strategy.Strategy backed by a Lua script. Each round runs in a fresh Lua state.
type Strategy struct {
	name  string
	proto *lua.FunctionProto
	log   *log.Logger

	mu   sync.Mutex
	L    *lua.LState
	view board.View
	rng  *rand.Rand
}

// Load compiles the script at path.
func Load(path string, logger *log.Logger) (*Strategy, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return New(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), string(src), logger)
}

// New compiles src. fallbackName is used when the script does not set name.
func New(fallbackName, src string, logger *log.Logger) (*Strategy, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	chunk, err := parse.Parse(strings.NewReader(src), fallbackName)
	if err != nil {
		return nil, fmt.Errorf("lua parse: %w", err)
	}
	proto, err := lua.Compile(chunk, fallbackName)
	if err != nil {
		return nil, fmt.Errorf("lua compile: %w", err)
	}
	s := &Strategy{name: fallbackName, proto: proto, log: logger}

	// Evaluate once to validate the script and pick up its name.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	L, err := s.newState(ctx)
	if err != nil {
		return nil, err
	}
	defer L.Close()
	if fn, ok := L.GetGlobal("turn").(*lua.LFunction); !ok || fn == nil {
		return nil, fmt.Errorf("lua script %s: missing function turn", fallbackName)
	}
	if n, ok := L.GetGlobal("name").(lua.LString); ok && strings.TrimSpace(string(n)) != "" {
		s.name = strings.TrimSpace(string(n))
	}
	return s, nil
}

func (s *Strategy) Name() string { return s.name }

func (s *Strategy) newState(ctx context.Context) (*lua.LState, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true, CallStackSize: 256})
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.open))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "module", "require"} {
		L.SetGlobal(name, lua.LNil)
	}
	L.SetGlobal("print", L.NewFunction(s.luaPrint))
	if mt, ok := L.GetGlobal("math").(*lua.LTable); ok {
		mt.RawSetString("random", L.NewFunction(s.luaRandom))
		mt.RawSetString("randomseed", L.NewFunction(func(*lua.LState) int { return 0 }))
	}
	L.SetGlobal("tile", L.NewFunction(s.luaTile))
	L.SetGlobal("items", L.NewFunction(s.luaItems))
	L.SetGlobal("find", L.NewFunction(s.luaFind))
	L.SetGlobal("step_toward", L.NewFunction(luaStepToward))
	L.SetGlobal("distance", L.NewFunction(luaDistance))

	L.SetContext(ctx)
	defer L.RemoveContext()
	L.Push(L.NewFunctionFromProto(s.proto))
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		L.Close()
		return nil, fmt.Errorf("lua load %s: %w", s.name, err)
	}
	return L, nil
}

// call invokes the global fn if the script defines it. Missing optional hooks are not an error.
func (s *Strategy) call(ctx context.Context, fn string, nret int, args ...lua.LValue) (lua.LValue, error) {
	if s.L == nil {
		return lua.LNil, fmt.Errorf("lua %s: not initialized", s.name)
	}
	f, ok := s.L.GetGlobal(fn).(*lua.LFunction)
	if !ok {
		return lua.LNil, nil
	}
	s.L.SetContext(ctx)
	defer s.L.RemoveContext()
	if err := s.L.CallByParam(lua.P{Fn: f, NRet: nret, Protect: true}, args...); err != nil {
		return lua.LNil, fmt.Errorf("lua %s.%s: %w", s.name, fn, err)
	}
	if nret == 0 {
		return lua.LNil, nil
	}
	ret := s.L.Get(-1)
	s.L.Pop(1)
	return ret, nil
}

func (s *Strategy) Initialize(ctx context.Context, setup strategy.Setup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.L != nil {
		s.L.Close()
		s.L = nil
	}
	s.rng = setup.Rand
	if s.rng == nil {
		s.rng = rand.New(rand.NewPCG(1, 2))
	}
	s.view = setup.View
	L, err := s.newState(ctx)
	if err != nil {
		return err
	}
	s.L = L

	t := L.NewTable()
	t.RawSetString("board_size", lua.LNumber(setup.BoardSize))
	t.RawSetString("max_inventory", lua.LNumber(setup.MaxInventory))
	t.RawSetString("max_charge", lua.LNumber(setup.MaxCharge))
	t.RawSetString("winning_score", lua.LNumber(setup.WinningScore))
	t.RawSetString("is_red", lua.LBool(setup.IsRed))
	t.RawSetString("start", pointTable(L, setup.Start))
	_, err = s.call(ctx, "initialize", 0, t)
	return err
}

func (s *Strategy) TurnAction(ctx context.Context, turn strategy.Turn) (strategy.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.L == nil {
		return strategy.NoOp, fmt.Errorf("lua %s: not initialized", s.name)
	}
	s.view = turn.View
	L := s.L

	t := L.NewTable()
	t.RawSetString("index", lua.LNumber(turn.Index))
	t.RawSetString("charge", lua.LNumber(turn.Charge))
	t.RawSetString("red_turn", lua.LBool(turn.RedTurn))
	t.RawSetString("size", lua.LNumber(turn.View.Size()))
	t.RawSetString("self", pointTable(L, turn.View.Self()))
	t.RawSetString("opponent", pointTable(L, turn.View.Opponent()))
	t.RawSetString("opponent_score", lua.LNumber(turn.View.OpponentScore()))
	prices := L.NewTable()
	for _, k := range board.Kinds {
		prices.RawSetString(k.String(), lua.LNumber(turn.Prices.Of(k)))
	}
	t.RawSetString("prices", prices)
	inv := L.NewTable()
	for _, it := range turn.Inventory {
		inv.Append(itemTable(L, it))
	}
	t.RawSetString("inventory", inv)

	ret, err := s.call(ctx, "turn", 1, t)
	if err != nil {
		return strategy.NoOp, err
	}
	switch v := ret.(type) {
	case *lua.LNilType:
		return strategy.NoOp, nil
	case lua.LString:
		return strategy.ParseAction(strings.ToUpper(strings.TrimSpace(string(v))))
	}
	return strategy.NoOp, fmt.Errorf("lua %s.turn returned %s, want string", s.name, ret.Type())
}

func (s *Strategy) OnReceiveItem(ctx context.Context, it board.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.L == nil {
		return nil
	}
	_, err := s.call(ctx, "on_item", 0, itemTable(s.L, it))
	return err
}

func (s *Strategy) OnSoldInventory(ctx context.Context, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.L == nil {
		return nil
	}
	_, err := s.call(ctx, "on_sold", 0, lua.LNumber(total))
	return err
}

// EndRound closes the round's Lua state.
func (s *Strategy) EndRound(ctx context.Context, own, opponent int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.L == nil {
		return nil
	}
	_, err := s.call(ctx, "end_round", 0, lua.LNumber(own), lua.LNumber(opponent))
	s.L.Close()
	s.L = nil
	s.view = board.View{}
	return err
}

func pointTable(L *lua.LState, p board.Point) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("x", lua.LNumber(p.X))
	t.RawSetString("y", lua.LNumber(p.Y))
	return t
}

func itemTable(L *lua.LState, it board.Item) *lua.LTable {
	t := L.NewTable()
	t.RawSetString("id", lua.LNumber(it.ID))
	t.RawSetString("kind", lua.LString(it.Kind.String()))
	return t
}

func (s *Strategy) luaPrint(L *lua.LState) int {
	parts := make([]string, 0, L.GetTop())
	for i := 1; i <= L.GetTop(); i++ {
		parts = append(parts, L.ToStringMeta(L.Get(i)).String())
	}
	s.log.Printf("[lua %s] %s", s.name, strings.Join(parts, "\t"))
	return 0
}

// math.random(), math.random(m), math.random(m, n) as in stock Lua.
func (s *Strategy) luaRandom(L *lua.LState) int {
	rng := s.rng
	if rng == nil {
		rng = rand.New(rand.NewPCG(1, 2))
		s.rng = rng
	}
	switch L.GetTop() {
	case 0:
		L.Push(lua.LNumber(rng.Float64()))
	case 1:
		m := L.CheckInt(1)
		if m < 1 {
			L.ArgError(1, "interval is empty")
		}
		L.Push(lua.LNumber(1 + rng.IntN(m)))
	default:
		lo, hi := L.CheckInt(1), L.CheckInt(2)
		if lo > hi {
			L.ArgError(2, "interval is empty")
		}
		L.Push(lua.LNumber(lo + rng.IntN(hi-lo+1)))
	}
	return 1
}

func (s *Strategy) luaTile(L *lua.LState) int {
	p := board.Point{X: L.CheckInt(1), Y: L.CheckInt(2)}
	t, ok := s.view.TileAt(p)
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LString(t.String()))
	return 1
}

func (s *Strategy) luaItems(L *lua.LState) int {
	p := board.Point{X: L.CheckInt(1), Y: L.CheckInt(2)}
	t := L.NewTable()
	for _, it := range s.view.ItemsAt(p) {
		t.Append(itemTable(L, it))
	}
	L.Push(t)
	return 1
}

func (s *Strategy) luaFind(L *lua.LState) int {
	tt, err := board.ParseTileType(L.CheckString(1))
	if err != nil {
		L.ArgError(1, err.Error())
		return 0
	}
	t := L.NewTable()
	for _, p := range s.view.Find(tt) {
		t.Append(pointTable(L, p))
	}
	L.Push(t)
	return 1
}

func luaStepToward(L *lua.LState) int {
	from := board.Point{X: L.CheckInt(1), Y: L.CheckInt(2)}
	to := board.Point{X: L.CheckInt(3), Y: L.CheckInt(4)}
	L.Push(lua.LString(strategy.StepToward(from, to).String()))
	return 1
}

func luaDistance(L *lua.LState) int {
	a := board.Point{X: L.CheckInt(1), Y: L.CheckInt(2)}
	b := board.Point{X: L.CheckInt(3), Y: L.CheckInt(4)}
	L.Push(lua.LNumber(board.Manhattan(a, b)))
	return 1
}
