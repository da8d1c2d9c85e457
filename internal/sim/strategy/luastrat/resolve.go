package luastrat

import (
	"fmt"
	"log"
	"strings"

	"mineopoly.ai/internal/sim/strategy"
)

// Resolve turns a command-line strategy name into a constructor. Built-in names
// are looked up in the strategy registry; "lua:<path>" compiles the script once
// and hands out a fresh instance per call.
func Resolve(name string, logger *log.Logger) (func() strategy.Strategy, error) {
	name = strings.TrimSpace(name)
	if path, ok := strings.CutPrefix(name, "lua:"); ok {
		s, err := Load(path, logger)
		if err != nil {
			return nil, err
		}
		return func() strategy.Strategy { return s.Clone() }, nil
	}
	if f, ok := strategy.Lookup(name); ok {
		return f, nil
	}
	return nil, fmt.Errorf("unknown strategy %q (want one of %s or lua:<path>)", name, strings.Join(strategy.Builtins(), ", "))
}

// Clone returns an uninitialized copy that shares the compiled script.
func (s *Strategy) Clone() *Strategy {
	return &Strategy{name: s.name, proto: s.proto, log: s.log}
}
