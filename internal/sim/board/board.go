package board

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
)

// ErrConfiguration matches every *ConfigurationError via errors.Is.
var ErrConfiguration = errors.New("configuration error")

// ConfigurationError reports a board or rule set that cannot host a round.
// It is fatal at round setup and never raised once turns are running.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string { return "configuration error: " + e.Reason }

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

func configErrorf(format string, args ...any) error {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// GenConfig tunes seeded board generation.
type GenConfig struct {
	// Chance, per mirrored pair of empty cells, of placing a vein pair.
	VeinDensityPermille int
	// Units each vein yields before it is exhausted.
	VeinYield int
}

func (g *GenConfig) applyDefaults() {
	if g.VeinDensityPermille <= 0 {
		g.VeinDensityPermille = 60
	}
	if g.VeinDensityPermille > 1000 {
		g.VeinDensityPermille = 1000
	}
	if g.VeinYield <= 0 {
		g.VeinYield = 3
	}
}

// MaxSize bounds the side of any board, generated or loaded.
const MaxSize = 256

// Board owns the tile grid and the items lying on the ground.
// It is created per round and is not safe for concurrent use.
type Board struct {
	size   int
	tiles  []TileType // row-major: y*size + x
	yield  []int      // remaining units for vein cells
	ground map[Point][]Item

	nextItem uint64
}

// Build deterministically generates a size×size board from seed.
func Build(seed int64, size int, gen GenConfig) (*Board, error) {
	if size <= 0 || size > MaxSize {
		return nil, configErrorf("board size must be within [1,%d], got %d", MaxSize, size)
	}
	gen.applyDefaults()

	b := newBoard(size)
	rng := rand.New(rand.NewPCG(uint64(seed), 0x6d696e65))

	last := size - 1
	b.place(Point{0, 0}, RedMarket, 0)
	b.place(Point{last, last}, BlueMarket, 0)
	b.place(Point{size / 2, size / 2}, Recharge, 0)
	b.place(Point{last - size/2, last - size/2}, Recharge, 0)

	// Veins come in point-symmetric pairs so neither color starts closer to resources.
	var candidates [][2]Point
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			p := Point{x, y}
			m := Point{last - x, last - y}
			if b.index(p) >= b.index(m) {
				continue
			}
			if b.TileAt(p) != Empty || b.TileAt(m) != Empty {
				continue
			}
			candidates = append(candidates, [2]Point{p, m})
		}
	}
	placed := 0
	for _, c := range candidates {
		if rng.IntN(1000) >= gen.VeinDensityPermille {
			continue
		}
		k := Kinds[rng.IntN(len(Kinds))]
		b.place(c[0], k.Vein(), gen.VeinYield)
		b.place(c[1], k.Vein(), gen.VeinYield)
		placed++
	}
	if placed == 0 && len(candidates) > 0 {
		c := candidates[rng.IntN(len(candidates))]
		k := Kinds[rng.IntN(len(Kinds))]
		b.place(c[0], k.Vein(), gen.VeinYield)
		b.place(c[1], k.Vein(), gen.VeinYield)
	}

	if err := b.validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// FromGrid builds a board from an explicit layout indexed grid[x][y].
// Every vein starts with yield units.
func FromGrid(grid [][]TileType, yield int) (*Board, error) {
	size := len(grid)
	if size == 0 {
		return nil, configErrorf("empty grid")
	}
	if size > MaxSize {
		return nil, configErrorf("grid size %d exceeds %d", size, MaxSize)
	}
	if yield <= 0 {
		yield = 1
	}
	b := newBoard(size)
	for x, col := range grid {
		if len(col) != size {
			return nil, configErrorf("grid is not square: column %d has %d cells, want %d", x, len(col), size)
		}
		for y, t := range col {
			if !t.Valid() {
				return nil, configErrorf("invalid tile %d at (%d,%d)", uint8(t), x, y)
			}
			units := 0
			if t.IsVein() {
				units = yield
			}
			b.place(Point{x, y}, t, units)
		}
	}
	if err := b.validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// FromTiles rebuilds a board from a row-major tile slice and per-cell vein yields,
// as exported by Tiles and Yields.
func FromTiles(size int, tiles []TileType, yields []int) (*Board, error) {
	if size <= 0 || size > MaxSize {
		return nil, configErrorf("board size must be within [1,%d], got %d", MaxSize, size)
	}
	if len(tiles) != size*size || len(yields) != size*size {
		return nil, configErrorf("layout has %d tiles and %d yields, want %d", len(tiles), len(yields), size*size)
	}
	b := newBoard(size)
	for i, t := range tiles {
		if !t.Valid() {
			return nil, configErrorf("invalid tile %d at cell %d", uint8(t), i)
		}
		units := 0
		if t.IsVein() {
			units = yields[i]
			if units <= 0 {
				return nil, configErrorf("vein at cell %d has no yield", i)
			}
		}
		b.tiles[i] = t
		b.yield[i] = units
	}
	if err := b.validate(); err != nil {
		return nil, err
	}
	return b, nil
}

func newBoard(size int) *Board {
	return &Board{
		size:   size,
		tiles:  make([]TileType, size*size),
		yield:  make([]int, size*size),
		ground: map[Point][]Item{},
	}
}

func (b *Board) place(p Point, t TileType, units int) {
	i := b.index(p)
	if b.tiles[i] != Empty {
		return
	}
	b.tiles[i] = t
	b.yield[i] = units
}

func (b *Board) validate() error {
	var red, blue, recharge, vein bool
	for _, t := range b.tiles {
		switch {
		case t == RedMarket:
			red = true
		case t == BlueMarket:
			blue = true
		case t == Recharge:
			recharge = true
		case t.IsVein():
			vein = true
		}
	}
	var missing []string
	if !red {
		missing = append(missing, RedMarket.String())
	}
	if !blue {
		missing = append(missing, BlueMarket.String())
	}
	if !recharge {
		missing = append(missing, Recharge.String())
	}
	if !vein {
		missing = append(missing, "RESOURCE_*")
	}
	if len(missing) > 0 {
		return configErrorf("board %dx%d is missing required tiles %v", b.size, b.size, missing)
	}
	return nil
}

func (b *Board) index(p Point) int { return p.Y*b.size + p.X }

func (b *Board) Size() int { return b.size }

func (b *Board) InBounds(p Point) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < b.size && p.Y < b.size
}

// TileAt returns the tile at p. Querying outside the grid is a programming error and panics.
func (b *Board) TileAt(p Point) TileType {
	if !b.InBounds(p) {
		panic(fmt.Sprintf("board: TileAt%v outside %dx%d grid", p, b.size, b.size))
	}
	return b.tiles[b.index(p)]
}

// Yield returns the units left in the vein at p (0 for non-vein tiles).
func (b *Board) Yield(p Point) int {
	if !b.InBounds(p) {
		return 0
	}
	return b.yield[b.index(p)]
}

// Find returns every cell of type t in row-major order.
func (b *Board) Find(t TileType) []Point {
	var out []Point
	for i, tt := range b.tiles {
		if tt == t {
			out = append(out, Point{X: i % b.size, Y: i / b.size})
		}
	}
	return out
}

// Mine extracts one unit from the vein at p and drops it on the ground there.
// An exhausted vein turns into an Empty tile. ok is false when p is not a vein.
func (b *Board) Mine(p Point) (Item, bool) {
	if !b.InBounds(p) {
		return Item{}, false
	}
	i := b.index(p)
	kind, isVein := b.tiles[i].Resource()
	if !isVein || b.yield[i] <= 0 {
		return Item{}, false
	}
	b.yield[i]--
	if b.yield[i] == 0 {
		b.tiles[i] = Empty
	}
	b.nextItem++
	it := Item{ID: b.nextItem, Kind: kind}
	b.ground[p] = append(b.ground[p], it)
	return it, true
}

// NewItem allocates an item that starts off the ground (a pre-filled inventory).
func (b *Board) NewItem(k Kind) Item {
	b.nextItem++
	return Item{ID: b.nextItem, Kind: k}
}

// PickUp removes and returns the oldest item on the ground at p.
func (b *Board) PickUp(p Point) (Item, bool) {
	items := b.ground[p]
	if len(items) == 0 {
		return Item{}, false
	}
	it := items[0]
	if len(items) == 1 {
		delete(b.ground, p)
	} else {
		b.ground[p] = items[1:]
	}
	return it, true
}

// GroundAt returns a copy of the items lying at p, oldest first.
func (b *Board) GroundAt(p Point) []Item {
	return append([]Item(nil), b.ground[p]...)
}

// GroundCells returns the occupied ground cells in row-major order.
func (b *Board) GroundCells() []Point {
	cells := make([]Point, 0, len(b.ground))
	for p := range b.ground {
		cells = append(cells, p)
	}
	sort.Slice(cells, func(i, j int) bool { return b.index(cells[i]) < b.index(cells[j]) })
	return cells
}

// Tiles returns a copy of the row-major tile grid.
func (b *Board) Tiles() []TileType {
	return append([]TileType(nil), b.tiles...)
}

// Yields returns a copy of the row-major remaining vein yields.
func (b *Board) Yields() []int {
	return append([]int(nil), b.yield...)
}
