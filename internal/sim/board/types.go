package board

import "fmt"

// TileType is the static variant of a board cell.
type TileType uint8

const (
	Empty TileType = iota
	ResourceDiamond
	ResourceEmerald
	ResourceRuby
	Recharge
	RedMarket
	BlueMarket

	numTileTypes
)

var tileNames = [...]string{
	Empty:           "EMPTY",
	ResourceDiamond: "RESOURCE_DIAMOND",
	ResourceEmerald: "RESOURCE_EMERALD",
	ResourceRuby:    "RESOURCE_RUBY",
	Recharge:        "RECHARGE",
	RedMarket:       "RED_MARKET",
	BlueMarket:      "BLUE_MARKET",
}

func (t TileType) String() string {
	if t < numTileTypes {
		return tileNames[t]
	}
	return fmt.Sprintf("TILE(%d)", uint8(t))
}

func (t TileType) Valid() bool { return t < numTileTypes }

// IsVein reports whether the tile yields resources when mined.
func (t TileType) IsVein() bool {
	_, ok := t.Resource()
	return ok
}

// Resource returns the kind mined from a vein tile.
func (t TileType) Resource() (Kind, bool) {
	switch t {
	case ResourceDiamond:
		return Diamond, true
	case ResourceEmerald:
		return Emerald, true
	case ResourceRuby:
		return Ruby, true
	}
	return 0, false
}

// MarketColor returns the color served by a market tile.
func (t TileType) MarketColor() (Color, bool) {
	switch t {
	case RedMarket:
		return Red, true
	case BlueMarket:
		return Blue, true
	}
	return 0, false
}

func ParseTileType(s string) (TileType, error) {
	for i, name := range tileNames {
		if name == s {
			return TileType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown tile type %q", s)
}

// Kind is a resource kind.
type Kind uint8

const (
	Diamond Kind = iota + 1
	Emerald
	Ruby
)

// Kinds lists every resource kind in a stable order.
var Kinds = []Kind{Diamond, Emerald, Ruby}

func (k Kind) String() string {
	switch k {
	case Diamond:
		return "DIAMOND"
	case Emerald:
		return "EMERALD"
	case Ruby:
		return "RUBY"
	}
	return fmt.Sprintf("KIND(%d)", uint8(k))
}

func (k Kind) Valid() bool { return k >= Diamond && k <= Ruby }

// Vein is the tile type that produces k.
func (k Kind) Vein() TileType {
	switch k {
	case Diamond:
		return ResourceDiamond
	case Emerald:
		return ResourceEmerald
	case Ruby:
		return ResourceRuby
	}
	return Empty
}

func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid resource kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown resource kind %q", s)
}

// Color identifies a player. The values double as array indexes.
type Color uint8

const (
	Red Color = iota
	Blue
)

// Colors lists both players, Red first.
var Colors = [2]Color{Red, Blue}

func (c Color) String() string {
	switch c {
	case Red:
		return "RED"
	case Blue:
		return "BLUE"
	}
	return fmt.Sprintf("COLOR(%d)", uint8(c))
}

func (c Color) Valid() bool { return c == Red || c == Blue }

func (c Color) Opponent() Color {
	if c == Red {
		return Blue
	}
	return Red
}

// Market is the market tile that buys from c.
func (c Color) Market() TileType {
	if c == Red {
		return RedMarket
	}
	return BlueMarket
}

func (c Color) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid color %d", uint8(c))
	}
	return []byte(c.String()), nil
}

func (c *Color) UnmarshalText(b []byte) error {
	switch string(b) {
	case "RED":
		*c = Red
	case "BLUE":
		*c = Blue
	default:
		return fmt.Errorf("unknown color %q", string(b))
	}
	return nil
}

// Point is a grid coordinate. (0,0) is the bottom-left corner; y grows upward.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Point) Add(q Point) Point { return Point{X: p.X + q.X, Y: p.Y + q.Y} }

func (p Point) String() string { return fmt.Sprintf("(%d,%d)", p.X, p.Y) }

func Manhattan(a, b Point) int {
	return absInt(a.X-b.X) + absInt(a.Y-b.Y)
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// Item is one mined resource. IDs are assigned in mining order and are unique within a round.
type Item struct {
	ID   uint64 `json:"id"`
	Kind Kind   `json:"kind"`
}
