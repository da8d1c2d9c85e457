package tuning

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"mineopoly.ai/internal/sim/board"
	"mineopoly.ai/internal/sim/economy"
	"mineopoly.ai/internal/sim/match"
)

// Tuning is the on-disk form of the match rules (configs/tuning.yaml).
// Zero values fall back to the engine defaults.
type Tuning struct {
	BoardSize        int    `yaml:"board_size"`
	MaxInventory     int    `yaml:"max_inventory"`
	MaxCharge        int    `yaml:"max_charge"`
	WinningScore     int    `yaml:"winning_score"`
	MaxTurns         int    `yaml:"max_turns"`
	StrategyBudgetMs int    `yaml:"strategy_budget_ms"`
	Settlement       string `yaml:"settlement"`

	VeinDensityPermille int `yaml:"vein_density_permille"`
	VeinYield           int `yaml:"vein_yield"`

	// WinningScoreBySize overrides WinningScore for particular board sizes.
	WinningScoreBySize map[int]int `yaml:"winning_score_by_size"`

	Prices map[string]economy.Params `yaml:"prices"`

	Batch Batch `yaml:"batch"`
}

type Batch struct {
	Rounds     int   `yaml:"rounds"`
	Parallel   int   `yaml:"parallel"`
	BoardSizes []int `yaml:"board_sizes"`
}

func Load(path string) (Tuning, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Tuning{}, err
	}
	t, err := Parse(raw)
	if err != nil {
		return t, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Parse rejects unknown keys so typos do not silently fall back to defaults.
func Parse(raw []byte) (Tuning, error) {
	var t Tuning
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil && !errors.Is(err, io.EOF) {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.applyDefaults()
	return t, nil
}

func (t *Tuning) applyDefaults() {
	if t.Batch.Rounds == 0 {
		t.Batch.Rounds = 1000
	}
	if t.Batch.Parallel == 0 {
		t.Batch.Parallel = 4
	}
	if len(t.Batch.BoardSizes) == 0 {
		t.Batch.BoardSizes = []int{14, 20, 26, 32}
	}
}

// MatchConfig converts the tuning into a validated engine configuration.
func (t Tuning) MatchConfig() (match.Config, error) {
	return t.MatchConfigFor(t.BoardSize)
}

// MatchConfigFor is MatchConfig with the board size replaced (0 keeps the tuned size).
func (t Tuning) MatchConfigFor(size int) (match.Config, error) {
	if size == 0 {
		size = t.BoardSize
	}
	c := match.Config{
		BoardSize:           size,
		MaxInventory:        t.MaxInventory,
		MaxCharge:           t.MaxCharge,
		WinningScore:        t.WinningScore,
		MaxTurns:            t.MaxTurns,
		StrategyBudget:      time.Duration(t.StrategyBudgetMs) * time.Millisecond,
		Settlement:          match.Settlement(t.Settlement),
		VeinDensityPermille: t.VeinDensityPermille,
		VeinYield:           t.VeinYield,
	}.WithDefaults()
	if ws, ok := t.WinningScoreBySize[c.BoardSize]; ok {
		c.WinningScore = ws
	}
	if len(t.Prices) > 0 {
		c.Prices = make(map[board.Kind]economy.Params, len(t.Prices))
		for name, p := range t.Prices {
			k, err := board.ParseKind(name)
			if err != nil {
				return match.Config{}, &board.ConfigurationError{Reason: "prices: " + err.Error()}
			}
			c.Prices[k] = p
		}
	}
	if err := c.Validate(); err != nil {
		return match.Config{}, err
	}
	return c, nil
}
