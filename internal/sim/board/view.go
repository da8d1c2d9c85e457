package board

// View is a read-only snapshot of the board handed to one strategy for one turn.
// It shares no memory with the live board.
type View struct {
	size          int
	tiles         []TileType
	self          Point
	opponent      Point
	opponentScore int
	ground        map[Point][]Item
}

// ViewFor builds a fresh view for the player standing at observer.
func (b *Board) ViewFor(observer, opponent Point, opponentScore int) View {
	ground := make(map[Point][]Item, len(b.ground))
	for p, items := range b.ground {
		ground[p] = append([]Item(nil), items...)
	}
	return View{
		size:          b.size,
		tiles:         b.Tiles(),
		self:          observer,
		opponent:      opponent,
		opponentScore: opponentScore,
		ground:        ground,
	}
}

// NewView assembles a view from decoded parts (remote strategies rebuild views from the wire).
// tiles is row-major and must hold size*size entries.
func NewView(size int, tiles []TileType, self, opponent Point, opponentScore int, ground map[Point][]Item) View {
	g := make(map[Point][]Item, len(ground))
	for p, items := range ground {
		if len(items) > 0 {
			g[p] = append([]Item(nil), items...)
		}
	}
	return View{
		size:          size,
		tiles:         append([]TileType(nil), tiles...),
		self:          self,
		opponent:      opponent,
		opponentScore: opponentScore,
		ground:        g,
	}
}

func (v View) Size() int { return v.size }

func (v View) Self() Point { return v.self }

func (v View) Opponent() Point { return v.opponent }

func (v View) OpponentScore() int { return v.opponentScore }

func (v View) InBounds(p Point) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < v.size && p.Y < v.size
}

// TileAt returns the tile at p; ok is false outside the grid.
func (v View) TileAt(p Point) (TileType, bool) {
	if !v.InBounds(p) || len(v.tiles) != v.size*v.size {
		return Empty, false
	}
	return v.tiles[p.Y*v.size+p.X], true
}

// Find returns every cell of type t in row-major order.
func (v View) Find(t TileType) []Point {
	var out []Point
	for i, tt := range v.tiles {
		if tt == t {
			out = append(out, Point{X: i % v.size, Y: i / v.size})
		}
	}
	return out
}

// Tiles returns a copy of the row-major grid.
func (v View) Tiles() []TileType { return append([]TileType(nil), v.tiles...) }

func (v View) ItemsAt(p Point) []Item { return append([]Item(nil), v.ground[p]...) }

// Ground returns a copy of every non-empty ground cell.
func (v View) Ground() map[Point][]Item {
	out := make(map[Point][]Item, len(v.ground))
	for p, items := range v.ground {
		out[p] = append([]Item(nil), items...)
	}
	return out
}
