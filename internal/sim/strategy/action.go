package strategy

import (
	"fmt"

	"mineopoly.ai/internal/sim/board"
)

// Action is one per-turn request.
type Action uint8

const (
	NoOp Action = iota
	MoveUp
	MoveDown
	MoveLeft
	MoveRight
	Mine
	PickUp

	numActions
)

var actionNames = [...]string{
	NoOp:      "NO_OP",
	MoveUp:    "MOVE_UP",
	MoveDown:  "MOVE_DOWN",
	MoveLeft:  "MOVE_LEFT",
	MoveRight: "MOVE_RIGHT",
	Mine:      "MINE",
	PickUp:    "PICK_UP_RESOURCE",
}

// Actions lists every action in wire order.
var Actions = []Action{NoOp, MoveUp, MoveDown, MoveLeft, MoveRight, Mine, PickUp}

func (a Action) String() string {
	if a < numActions {
		return actionNames[a]
	}
	return fmt.Sprintf("ACTION(%d)", uint8(a))
}

func (a Action) Valid() bool { return a < numActions }

func (a Action) IsMove() bool { return a >= MoveUp && a <= MoveRight }

// Delta is the grid offset of a move. Up is +y.
func (a Action) Delta() board.Point {
	switch a {
	case MoveUp:
		return board.Point{Y: 1}
	case MoveDown:
		return board.Point{Y: -1}
	case MoveLeft:
		return board.Point{X: -1}
	case MoveRight:
		return board.Point{X: 1}
	}
	return board.Point{}
}

func ParseAction(s string) (Action, error) {
	for i, name := range actionNames {
		if name == s {
			return Action(i), nil
		}
	}
	return NoOp, fmt.Errorf("unknown action %q", s)
}

func (a Action) MarshalText() ([]byte, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("invalid action %d", uint8(a))
	}
	return []byte(a.String()), nil
}

func (a *Action) UnmarshalText(b []byte) error {
	v, err := ParseAction(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}
