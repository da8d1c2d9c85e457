// Package watch follows rounds on a server's observer stream and draws them in the terminal.
package watch

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"mineopoly.ai/internal/observerproto"
	"mineopoly.ai/internal/platform/config"
	"mineopoly.ai/internal/sim/board"
	"mineopoly.ai/internal/sim/encoding"
)

type Config struct {
	URL     string `env:"WATCH_URL" envDefault:"ws://127.0.0.1:8080/admin/v1/observer/ws"`
	RoundID string `env:"WATCH_ROUND"`
	// Every draws the board on every Nth turn; 0 prints only the score line.
	Every  int  `env:"WATCH_EVERY" envDefault:"1"`
	Follow bool `env:"WATCH_FOLLOW"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.URL, "url", cfg.URL, "observer ws url")
	fs.StringVar(&cfg.RoundID, "round", cfg.RoundID, "round id to follow (empty = live round)")
	fs.IntVar(&cfg.Every, "every", cfg.Every, "draw the board every N turns (0 = scores only)")
	fs.BoolVar(&cfg.Follow, "follow", cfg.Follow, "keep watching the next live rounds after END")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run watches until END (or until ctx ends when following live rounds).
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	conn, _, err := websocket.Dial(ctx, cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", cfg.URL, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")
	conn.SetReadLimit(4 << 20)

	sub := observerproto.SubscribeMsg{Type: observerproto.TypeSubscribe, ProtocolVersion: observerproto.Version, RoundID: cfg.RoundID}
	if err := wsjson.Write(ctx, conn, sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	var boot *observerproto.BootstrapMsg
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		var base struct {
			Type    string `json:"type"`
			RoundID string `json:"round_id"`
		}
		if err := json.Unmarshal(msg, &base); err != nil {
			continue
		}
		switch base.Type {
		case observerproto.TypeBootstrap:
			var b observerproto.BootstrapMsg
			if err := json.Unmarshal(msg, &b); err != nil {
				return fmt.Errorf("bootstrap: %w", err)
			}
			boot = &b
			fmt.Fprintf(out, "== %s: %s (R) vs %s (B) size=%d seed=%d goal=%d\n", b.RoundID, b.Red, b.Blue, b.Size, b.Seed, b.WinningScore)

		case observerproto.TypeTurn:
			if boot == nil || base.RoundID != boot.RoundID {
				continue
			}
			var t observerproto.TurnMsg
			if err := json.Unmarshal(msg, &t); err != nil {
				return fmt.Errorf("turn: %w", err)
			}
			fmt.Fprintf(out, "turn %4d  R %-18s %5d  B %-18s %5d\n", t.Turn,
				t.Actions[board.Red], t.Players[board.Red].Score, t.Actions[board.Blue], t.Players[board.Blue].Score)
			if cfg.Every > 0 && t.Turn%cfg.Every == 0 {
				if err := Draw(out, boot.Size, t); err != nil {
					return err
				}
			}

		case observerproto.TypeEnd:
			if boot == nil || base.RoundID != boot.RoundID {
				continue
			}
			var e observerproto.EndMsg
			if err := json.Unmarshal(msg, &e); err != nil {
				return fmt.Errorf("end: %w", err)
			}
			fmt.Fprintf(out, "== %s: %s %d-%d after %d turns\n", e.RoundID, e.Outcome, e.Scores[board.Red], e.Scores[board.Blue], e.Turns)
			if !cfg.Follow || cfg.RoundID != "" {
				return nil
			}
			boot = nil
		}
	}
}

var glyphs = map[board.TileType]byte{
	board.Empty:           '.',
	board.ResourceDiamond: 'd',
	board.ResourceEmerald: 'e',
	board.ResourceRuby:    'r',
	board.Recharge:        '+',
	board.RedMarket:       '[',
	board.BlueMarket:      ']',
}

// Draw renders one turn with y growing upwards. R and B mark the players, X both,
// and * a tile with items on the ground.
func Draw(out io.Writer, size int, t observerproto.TurnMsg) error {
	tiles, err := encoding.DecodeTiles(t.Tiles, size*size)
	if err != nil {
		return fmt.Errorf("turn %d tiles: %w", t.Turn, err)
	}
	grid := make([][]byte, size)
	for y := range grid {
		row := make([]byte, size)
		for x := range row {
			g, ok := glyphs[tiles[y*size+x]]
			if !ok {
				g = '?'
			}
			row[x] = g
		}
		grid[y] = row
	}
	put := func(p board.Point, g byte) error {
		if p.X < 0 || p.Y < 0 || p.X >= size || p.Y >= size {
			return errors.New("position off the board")
		}
		grid[p.Y][p.X] = g
		return nil
	}
	for _, c := range t.Ground {
		if err := put(c.Pos, '*'); err != nil {
			return err
		}
	}
	red, blue := t.Players[board.Red].Pos, t.Players[board.Blue].Pos
	if err := put(red, 'R'); err != nil {
		return err
	}
	g := byte('B')
	if red == blue {
		g = 'X'
	}
	if err := put(blue, g); err != nil {
		return err
	}

	var sb strings.Builder
	for y := size - 1; y >= 0; y-- {
		sb.Write(grid[y])
		sb.WriteByte('\n')
	}
	_, err = io.WriteString(out, sb.String())
	return err
}
