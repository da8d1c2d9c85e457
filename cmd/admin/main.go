package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"mineopoly.ai/internal/persistence/replayfile"
	"mineopoly.ai/internal/sim/board"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "rounds":
			remoteCmd("/admin/v1/rounds", os.Args[2:])
			return
		case "winrates":
			remoteCmd("/admin/v1/winrates", os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

// listCmd prints the header line of every replay under <data>/rounds, newest name last.
func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	asJSON := fs.Bool("json", false, "print one JSON header per line")
	_ = fs.Parse(args)

	dir := filepath.Join(*dataDir, "rounds")
	entries, err := os.ReadDir(dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".replay.zst") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		rep, err := replayfile.Read(filepath.Join(dir, name))
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
			continue
		}
		h, r := rep.Header(), rep.Result()
		if *asJSON {
			printJSON(map[string]any{"round": strings.TrimSuffix(name, ".replay.zst"), "header": h, "result": r})
			continue
		}
		fmt.Printf("%s\t%s vs %s\tsize=%d\t%s\t%d-%d\tturns=%d\n",
			strings.TrimSuffix(name, ".replay.zst"), h.Red, h.Blue, h.Rules.BoardSize,
			r.Outcome, r.Scores[board.Red], r.Scores[board.Blue], r.Turns)
	}
}

func printJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		fmt.Fprintln(os.Stderr, "json:", err)
		os.Exit(1)
	}
	fmt.Println(string(b))
}
