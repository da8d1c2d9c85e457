package match

import (
	"errors"
	"fmt"
	"time"

	"mineopoly.ai/internal/sim/board"
	"mineopoly.ai/internal/sim/economy"
	"mineopoly.ai/internal/sim/replay"
)

// Settlement selects when a player standing on its market sells.
type Settlement string

const (
	// SettleStanding sells whenever a turn ends with the player on its market holding items.
	SettleStanding Settlement = "standing"
	// SettleArrival sells only on the turn the player moved onto its market.
	SettleArrival Settlement = "arrival"
)

type Config struct {
	BoardSize      int
	MaxInventory   int
	MaxCharge      int
	WinningScore   int
	MaxTurns       int
	StrategyBudget time.Duration
	Settlement     Settlement

	VeinDensityPermille int
	VeinYield           int

	// Prices overrides the default curve per kind.
	Prices map[board.Kind]economy.Params

	// Starts overrides the default starting state (own market, empty inventory).
	Starts []Start
}

// Start places a player somewhere other than its market, optionally holding items.
type Start struct {
	Color     board.Color
	Pos       board.Point
	Inventory []board.Kind
}

func DefaultConfig() Config {
	var c Config
	c.applyDefaults()
	return c
}

// WithDefaults returns c with every unset rule filled in.
func (c Config) WithDefaults() Config {
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.BoardSize == 0 {
		c.BoardSize = 20
	}
	if c.MaxInventory == 0 {
		c.MaxInventory = 5
	}
	if c.MaxCharge == 0 {
		c.MaxCharge = 80
	}
	if c.WinningScore == 0 {
		c.WinningScore = 2000
	}
	if c.MaxTurns == 0 {
		c.MaxTurns = 1000
	}
	if c.StrategyBudget == 0 {
		c.StrategyBudget = 100 * time.Millisecond
	}
	if c.Settlement == "" {
		c.Settlement = SettleStanding
	}
	if c.VeinDensityPermille == 0 {
		c.VeinDensityPermille = 60
	}
	if c.VeinYield == 0 {
		c.VeinYield = 3
	}
}

func (c Config) validate() error {
	var errs []error
	if c.BoardSize < 3 || c.BoardSize > board.MaxSize {
		errs = append(errs, fmt.Errorf("board_size must be within [3,%d], got %d", board.MaxSize, c.BoardSize))
	}
	if c.MaxInventory <= 0 {
		errs = append(errs, fmt.Errorf("max_inventory must be > 0"))
	}
	if c.MaxCharge <= 0 {
		errs = append(errs, fmt.Errorf("max_charge must be > 0"))
	}
	if c.WinningScore <= 0 {
		errs = append(errs, fmt.Errorf("winning_score must be > 0"))
	}
	if c.MaxTurns <= 0 {
		errs = append(errs, fmt.Errorf("max_turns must be > 0"))
	}
	if c.StrategyBudget <= 0 {
		errs = append(errs, fmt.Errorf("strategy_budget must be > 0"))
	}
	if c.Settlement != SettleStanding && c.Settlement != SettleArrival {
		errs = append(errs, fmt.Errorf("unknown settlement policy %q", c.Settlement))
	}
	if c.VeinDensityPermille < 0 || c.VeinDensityPermille > 1000 {
		errs = append(errs, fmt.Errorf("vein_density_permille must be within [0,1000]"))
	}
	if c.VeinYield <= 0 {
		errs = append(errs, fmt.Errorf("vein_yield must be > 0"))
	}
	seen := map[board.Color]bool{}
	for _, s := range c.Starts {
		if !s.Color.Valid() || seen[s.Color] {
			errs = append(errs, fmt.Errorf("bad or duplicate start for color %d", uint8(s.Color)))
			continue
		}
		seen[s.Color] = true
		if len(s.Inventory) > c.MaxInventory {
			errs = append(errs, fmt.Errorf("%s start inventory %d exceeds max %d", s.Color, len(s.Inventory), c.MaxInventory))
		}
		for _, k := range s.Inventory {
			if !k.Valid() {
				errs = append(errs, fmt.Errorf("%s start inventory has invalid kind %d", s.Color, uint8(k)))
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return &board.ConfigurationError{Reason: err.Error()}
	}
	return nil
}

// Validate applies defaults and reports every problem with c, price curves included.
func (c Config) Validate() error {
	c.applyDefaults()
	if err := c.validate(); err != nil {
		return err
	}
	_, err := economy.New(c.Prices)
	return err
}

func (c Config) genConfig() board.GenConfig {
	return board.GenConfig{VeinDensityPermille: c.VeinDensityPermille, VeinYield: c.VeinYield}
}

func (c Config) rules() replay.Rules {
	r := replay.Rules{
		BoardSize:           c.BoardSize,
		MaxInventory:        c.MaxInventory,
		MaxCharge:           c.MaxCharge,
		WinningScore:        c.WinningScore,
		MaxTurns:            c.MaxTurns,
		Settlement:          string(c.Settlement),
		VeinDensityPermille: c.VeinDensityPermille,
		VeinYield:           c.VeinYield,
		Prices:              map[string]economy.Params{},
	}
	defaults := economy.DefaultParams()
	for _, k := range board.Kinds {
		p, ok := c.Prices[k]
		if !ok {
			p = defaults[k]
		}
		r.Prices[k.String()] = p
	}
	for _, s := range c.Starts {
		r.Starts = append(r.Starts, replay.Start{Color: s.Color, Pos: s.Pos, Inventory: append([]board.Kind(nil), s.Inventory...)})
	}
	return r
}

// ConfigFromRules rebuilds the match configuration recorded in a replay header.
func ConfigFromRules(r replay.Rules) (Config, error) {
	c := Config{
		BoardSize:           r.BoardSize,
		MaxInventory:        r.MaxInventory,
		MaxCharge:           r.MaxCharge,
		WinningScore:        r.WinningScore,
		MaxTurns:            r.MaxTurns,
		Settlement:          Settlement(r.Settlement),
		VeinDensityPermille: r.VeinDensityPermille,
		VeinYield:           r.VeinYield,
	}
	if len(r.Prices) > 0 {
		c.Prices = map[board.Kind]economy.Params{}
		for name, p := range r.Prices {
			k, err := board.ParseKind(name)
			if err != nil {
				return Config{}, &replay.FormatError{Reason: "rules.prices", Err: err}
			}
			c.Prices[k] = p
		}
	}
	for _, s := range r.Starts {
		c.Starts = append(c.Starts, Start{Color: s.Color, Pos: s.Pos, Inventory: append([]board.Kind(nil), s.Inventory...)})
	}
	return c, nil
}
