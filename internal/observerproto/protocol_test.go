package observerproto

import (
	"context"
	"testing"

	"mineopoly.ai/internal/sim/board"
	"mineopoly.ai/internal/sim/encoding"
	"mineopoly.ai/internal/sim/match"
	"mineopoly.ai/internal/sim/strategy"
)

func TestMessages_FollowTheRound(t *testing.T) {
	sink := make(chan match.TurnSnapshot, 64)
	e, err := match.New(match.Config{BoardSize: 8, MaxTurns: 30}, strategy.NewGreedy(), strategy.NewRandom(), 9, match.WithSnapshotSink(sink))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	boot := NewBootstrap("r9", e)
	if boot.Red != "Greedy" || boot.Blue != "Random" || boot.Size != 8 || boot.Seed != 9 {
		t.Fatalf("bootstrap=%+v", boot)
	}
	tiles, err := encoding.DecodeTiles(boot.Tiles, 64)
	if err != nil {
		t.Fatalf("bootstrap tiles: %v", err)
	}
	if tiles[0] != board.RedMarket || tiles[63] != board.BlueMarket {
		t.Fatalf("markets not at the corners")
	}

	res, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	close(sink)
	var last TurnMsg
	n := 0
	for s := range sink {
		last = FromSnapshot("r9", s)
		n++
	}
	if n != res.Turns {
		t.Fatalf("snapshots=%d turns=%d", n, res.Turns)
	}
	if last.Turn != res.Turns-1 || last.State != res.State.String() {
		t.Fatalf("last turn=%+v", last)
	}
	if last.Players[board.Red].Score != res.Scores[board.Red] {
		t.Fatalf("red score %d want %d", last.Players[board.Red].Score, res.Scores[board.Red])
	}
	if _, ok := last.Prices["DIAMOND"]; !ok {
		t.Fatalf("prices missing diamond: %v", last.Prices)
	}

	end := NewEnd("r9", res)
	if end.Outcome != res.State.String() || end.Digest != res.Digest || end.Turns != res.Turns {
		t.Fatalf("end=%+v", end)
	}
}
