// Package server parses lobby server flags and runs the HTTP/websocket server.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"mineopoly.ai/internal/persistence/indexdb"
	persistlog "mineopoly.ai/internal/persistence/log"
	"mineopoly.ai/internal/persistence/r2s3"
	"mineopoly.ai/internal/platform/config"
	"mineopoly.ai/internal/sim/match"
	"mineopoly.ai/internal/sim/strategy/luastrat"
	"mineopoly.ai/internal/sim/tuning"
	"mineopoly.ai/internal/transport/observer"
	"mineopoly.ai/internal/transport/ws"
)

// Config holds server configuration. Every field can also be set through MINEOPOLY_<env>.
type Config struct {
	Addr       string `env:"ADDR" envDefault:":8080"`
	DataDir    string `env:"DATA_DIR" envDefault:"./data"`
	TuningPath string `env:"TUNING" envDefault:"./configs/tuning.yaml"`
	BoardSize  int    `env:"BOARD_SIZE"`
	Seed       int64  `env:"SEED"`
	Opponent   string `env:"OPPONENT"`
	Token      string `env:"TOKEN"`
	DisableDB  bool   `env:"DISABLE_DB"`
	AdminHTTP  bool   `env:"ADMIN_HTTP" envDefault:"true"`
	PprofHTTP  bool   `env:"PPROF_HTTP"`

	// R2 mirrors replay files and turn logs to a bucket when set.
	R2              r2s3.Config
	R2Workers       int `env:"R2_WORKERS" envDefault:"2"`
	R2QueueCapacity int `env:"R2_QUEUE" envDefault:"1024"`
}

// ParseConfig parses environment and flags into a Config. Flags win over env.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "http listen address")
	fs.StringVar(&cfg.DataDir, "data", cfg.DataDir, "runtime data directory")
	fs.StringVar(&cfg.TuningPath, "tuning", cfg.TuningPath, "path to tuning.yaml")
	fs.IntVar(&cfg.BoardSize, "size", cfg.BoardSize, "board size (0 = tuning board_size)")
	fs.Int64Var(&cfg.Seed, "seed", cfg.Seed, "seed of the first round; later rounds count up (0 = clock)")
	fs.StringVar(&cfg.Opponent, "opponent", cfg.Opponent, "house opponent for every client: greedy, random, idle or lua:<path> (empty pairs clients)")
	fs.StringVar(&cfg.Token, "token", cfg.Token, "required HELLO auth token (empty disables auth)")
	fs.BoolVar(&cfg.DisableDB, "disable_db", cfg.DisableDB, "disable the sqlite round index")
	fs.BoolVar(&cfg.AdminHTTP, "admin_http", cfg.AdminHTTP, "serve loopback-only /admin/v1 endpoints")
	fs.BoolVar(&cfg.PprofHTTP, "pprof_http", cfg.PprofHTTP, "serve /debug/pprof")
	fs.StringVar(&cfg.R2.Endpoint, "r2_endpoint", cfg.R2.Endpoint, "S3-compatible endpoint for mirroring round files (empty disables)")
	fs.StringVar(&cfg.R2.Bucket, "r2_bucket", cfg.R2.Bucket, "mirror bucket")
	fs.StringVar(&cfg.R2.Prefix, "r2_prefix", cfg.R2.Prefix, "object key prefix")
	fs.IntVar(&cfg.R2Workers, "r2_workers", cfg.R2Workers, "mirror upload workers")
	fs.IntVar(&cfg.R2QueueCapacity, "r2_queue", cfg.R2QueueCapacity, "mirror queue capacity")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadTuning reads the tuning file; a missing file falls back to defaults.
func LoadTuning(path string, logger *log.Logger) (tuning.Tuning, error) {
	t, err := tuning.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Printf("tuning not found (%s); using defaults", path)
		return tuning.Parse(nil)
	}
	return t, err
}

// Run serves until ctx is cancelled.
func Run(ctx context.Context, cfg Config, logger *log.Logger) error {
	tune, err := LoadTuning(cfg.TuningPath, logger)
	if err != nil {
		return fmt.Errorf("load tuning: %w", err)
	}
	mc, err := tune.MatchConfigFor(cfg.BoardSize)
	if err != nil {
		return fmt.Errorf("match config: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return err
	}

	var idx *indexdb.SQLiteIndex
	if !cfg.DisableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(cfg.DataDir, "index", "rounds.sqlite"))
		if err != nil {
			return fmt.Errorf("open index: %w", err)
		}
		defer idx.Close()
	}
	audit := persistlog.NewAuditLogger(cfg.DataDir)
	defer audit.Close()

	hub := observer.NewHub(logger)
	rounds := NewRounds(mc, cfg.DataDir, cfg.Seed, idx, audit, hub, logger)
	if cfg.R2.Enabled() {
		client, err := r2s3.New(cfg.R2)
		if err != nil {
			return fmt.Errorf("r2 mirror: %w", err)
		}
		mirror := r2s3.NewMirror(client, cfg.DataDir, cfg.R2.Prefix, cfg.R2Workers, cfg.R2QueueCapacity, logger)
		defer mirror.Close()
		rounds.SetMirror(mirror)
		logger.Printf("mirroring round files to %s/%s", cfg.R2.Endpoint, cfg.R2.Bucket)
	}

	opts := []ws.Option{ws.WithRules(mc.MaxTurns, mc.StrategyBudget)}
	if cfg.Token != "" {
		opts = append(opts, ws.WithToken(cfg.Token))
	}
	if strings.TrimSpace(cfg.Opponent) != "" {
		house, err := luastrat.Resolve(cfg.Opponent, logger)
		if err != nil {
			return fmt.Errorf("opponent: %w", err)
		}
		opts = append(opts, ws.WithHouseOpponent(house))
		logger.Printf("house opponent: %s", house().Name())
	}
	lobby := ws.NewServer(rounds.Play, logger, opts...)
	defer lobby.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewMux(cfg, lobby, rounds, idx, hub, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		lobby.Close()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (board=%d max_turns=%d budget=%s)", cfg.Addr, mc.BoardSize, mc.MaxTurns, mc.StrategyBudget)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// NewMux wires the lobby, health, metrics, admin and observer endpoints.
func NewMux(cfg Config, lobby *ws.Server, rounds *Rounds, idx *indexdb.SQLiteIndex, hub *observer.Hub, logger *log.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, rounds, idx, hub)
	})
	mux.HandleFunc("/v1/ws", lobby.Handler())

	if cfg.AdminHTTP {
		mux.HandleFunc("/admin/v1/rounds", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			if idx == nil {
				http.Error(rw, "index disabled", http.StatusServiceUnavailable)
				return
			}
			limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
			if limit <= 0 {
				limit = 50
			}
			rows, err := idx.ListRounds(r.Context(), limit)
			if err != nil {
				http.Error(rw, err.Error(), http.StatusInternalServerError)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(rows)
		})
		mux.HandleFunc("/admin/v1/winrates", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			if idx == nil {
				http.Error(rw, "index disabled", http.StatusServiceUnavailable)
				return
			}
			rates, err := idx.WinRates(r.Context())
			if err != nil {
				http.Error(rw, err.Error(), http.StatusInternalServerError)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(rates)
		})
		obsSrv := observer.NewServer(hub, logger)
		mux.HandleFunc("/admin/v1/observer/bootstrap", obsSrv.BootstrapHandler())
		mux.HandleFunc("/admin/v1/observer/ws", obsSrv.WSHandler())
	} else {
		logger.Printf("admin endpoints disabled")
	}
	if cfg.PprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	return mux
}

func writeMetrics(rw http.ResponseWriter, rounds *Rounds, idx *indexdb.SQLiteIndex, hub *observer.Hub) {
	m := rounds.Metrics()

	// Minimal Prometheus exposition format.
	fmt.Fprintf(rw, "# HELP mineopoly_rounds_active Rounds currently being played.\n")
	fmt.Fprintf(rw, "# TYPE mineopoly_rounds_active gauge\n")
	fmt.Fprintf(rw, "mineopoly_rounds_active %d\n", m.Active)

	fmt.Fprintf(rw, "# HELP mineopoly_rounds_total Rounds played to a terminal state.\n")
	fmt.Fprintf(rw, "# TYPE mineopoly_rounds_total counter\n")
	for _, o := range []match.State{match.RedWin, match.BlueWin, match.Draw, match.MaxTurnsReached} {
		fmt.Fprintf(rw, "mineopoly_rounds_total{outcome=%q} %d\n", o.String(), m.Outcomes[o.String()])
	}

	fmt.Fprintf(rw, "# HELP mineopoly_rounds_failed_total Rounds aborted before a terminal state.\n")
	fmt.Fprintf(rw, "# TYPE mineopoly_rounds_failed_total counter\n")
	fmt.Fprintf(rw, "mineopoly_rounds_failed_total %d\n", m.Failed)

	fmt.Fprintf(rw, "# HELP mineopoly_observers Connected observer streams.\n")
	fmt.Fprintf(rw, "# TYPE mineopoly_observers gauge\n")
	fmt.Fprintf(rw, "mineopoly_observers %d\n", hub.Subscribers())

	if rounds.mirror != nil {
		st := rounds.mirror.Stats()
		fmt.Fprintf(rw, "# HELP mineopoly_r2_queue_depth Round files waiting for upload.\n")
		fmt.Fprintf(rw, "# TYPE mineopoly_r2_queue_depth gauge\n")
		fmt.Fprintf(rw, "mineopoly_r2_queue_depth %d\n", st.QueueDepth)
		fmt.Fprintf(rw, "# HELP mineopoly_r2_uploads_total Round file uploads by result.\n")
		fmt.Fprintf(rw, "# TYPE mineopoly_r2_uploads_total counter\n")
		fmt.Fprintf(rw, "mineopoly_r2_uploads_total{result=%q} %d\n", "ok", st.UploadSuccessTotal)
		fmt.Fprintf(rw, "mineopoly_r2_uploads_total{result=%q} %d\n", "error", st.UploadFailTotal)
		fmt.Fprintf(rw, "mineopoly_r2_uploads_total{result=%q} %d\n", "dropped", st.DroppedTotal)
	}

	if idx == nil {
		return
	}
	s := idx.Stats()
	fmt.Fprintf(rw, "# HELP mineopoly_index_queue_depth Pending index writes.\n")
	fmt.Fprintf(rw, "# TYPE mineopoly_index_queue_depth gauge\n")
	fmt.Fprintf(rw, "mineopoly_index_queue_depth %d\n", s.QueueDepth)
	fmt.Fprintf(rw, "# HELP mineopoly_index_dropped_total Index writes dropped on a full queue.\n")
	fmt.Fprintf(rw, "# TYPE mineopoly_index_dropped_total counter\n")
	fmt.Fprintf(rw, "mineopoly_index_dropped_total{kind=%q} %d\n", "round", s.DropRoundTotal)
	fmt.Fprintf(rw, "mineopoly_index_dropped_total{kind=%q} %d\n", "turn", s.DropTurnTotal)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
