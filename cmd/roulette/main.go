// Command roulette runs the roulette tracker as a local HTTP service or as a
// one-shot CLI against the persisted session.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/MJE43/roulette-tracker-go/internal/api"
	"github.com/MJE43/roulette-tracker-go/internal/autospin"
	"github.com/MJE43/roulette-tracker-go/internal/config"
	"github.com/MJE43/roulette-tracker-go/internal/engine"
	"github.com/MJE43/roulette-tracker-go/internal/logging"
	"github.com/MJE43/roulette-tracker-go/internal/progression"
	"github.com/MJE43/roulette-tracker-go/internal/session"
	"github.com/MJE43/roulette-tracker-go/internal/store"
	"github.com/MJE43/roulette-tracker-go/internal/wheel"
)

const usage = `usage: roulette <command> [flags]

commands:
  serve                              run the HTTP API
  spin [-n N] [-json]                spin N times
  stats [-n N] [-json]               hot, cold, prediction, colours, betting
  history [-limit N]                 most recent spins, newest first
  reset                              clear history, frequency and stake
  variant <european|american> [-clear]
  autospin [-n N] [-interval D]      timed spins, Ctrl-C stops
  version

every command accepts -config path
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return errors.New("missing command")
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "serve":
		return cmdServe(rest)
	case "spin":
		return cmdSpin(rest, out)
	case "stats":
		return cmdStats(rest, out)
	case "history":
		return cmdHistory(rest, out)
	case "reset":
		return cmdReset(rest, out)
	case "variant":
		return cmdVariant(rest, out)
	case "autospin":
		return cmdAutospin(rest, out)
	case "version":
		v := api.GetVersionInfo()
		fmt.Fprintf(out, "roulette %s (%s, built %s)\n", v.Version, v.GitCommit, v.BuildTime)
		return nil
	case "help", "-h", "--help":
		fmt.Fprint(out, usage)
		return nil
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// app is a configured, restored session and its dependencies.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	kv      store.KV
	session *session.Session
}

func newFlagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	cfgPath := fs.String("config", "", "path to config.yaml")
	return fs, cfgPath
}

func openApp(ctx context.Context, cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	kv, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	strategy, err := buildStrategy(cfg)
	if err != nil {
		kv.Close()
		return nil, err
	}

	sess, err := session.New(session.Options{
		Source:            buildSource(cfg),
		Variant:           wheel.Variant(cfg.Game.Variant),
		Store:             store.NewStateStore(kv, cfg.Game.BaseStake),
		Strategy:          strategy,
		BaseStake:         cfg.Game.BaseStake,
		WindowedFrequency: cfg.Game.WindowedFrequency,
		Logger:            logger,
	})
	if err != nil {
		kv.Close()
		return nil, err
	}
	sess.Restore(ctx)

	return &app{cfg: cfg, logger: logger, kv: kv, session: sess}, nil
}

func (a *app) close(ctx context.Context) {
	if err := a.session.Close(ctx); err != nil {
		a.logger.Warn("close store", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.KV, error) {
	switch cfg.Store.Backend {
	case config.StoreMemory:
		return store.NewMemoryKV(), nil
	case config.StoreSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.Store.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		kv, err := store.NewSQLiteKV(cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Debug("sqlite store opened", zap.String("path", cfg.Store.SQLitePath))
		return kv, nil
	case config.StoreKeyring:
		return store.NewKeyringKV(cfg.Store.Keyring.Service, cfg.Store.Keyring.FallbackPath), nil
	case config.StoreRedis:
		return store.NewRedisKV(ctx, store.RedisOptions{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
			Prefix:   cfg.Store.Redis.Prefix,
		})
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func buildSource(cfg *config.Config) engine.Source {
	if strings.EqualFold(cfg.Game.RNG, config.RNGSeeded) {
		return engine.NewSeededSource(cfg.Game.Seed.Server, cfg.Game.Seed.Client, cfg.Game.Seed.Nonce)
	}
	return engine.NewSecureSource()
}

func buildStrategy(cfg *config.Config) (progression.Strategy, error) {
	if cfg.Strategy.Name != config.StrategyScript {
		return progression.Martingale{}, nil
	}
	src, err := os.ReadFile(cfg.Strategy.ScriptPath)
	if err != nil {
		return nil, fmt.Errorf("read strategy script: %w", err)
	}
	return progression.NewScriptStrategy(string(src))
}

func cmdServe(args []string) error {
	fs, cfgPath := newFlagSet("serve")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, *cfgPath)
	if err != nil {
		return err
	}

	srv := api.NewServer(api.Options{
		Session:          a.session,
		Store:            a.kv,
		Logger:           a.logger,
		CORSOrigins:      a.cfg.CORSOrigins,
		AutospinCount:    a.cfg.Autospin.Count,
		AutospinInterval: &a.cfg.Autospin.Interval,
	})
	if err := srv.Start(a.cfg.Listen); err != nil {
		a.close(context.Background())
		return fmt.Errorf("listen %s: %w", a.cfg.Listen, err)
	}
	a.logger.Info("roulette tracker ready",
		zap.String("listen", a.cfg.Listen),
		zap.String("store", a.cfg.Store.Backend),
		zap.String("variant", string(a.session.Variant())),
		zap.String("version", api.Version))

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("http shutdown", zap.Error(err))
	}
	a.close(shutdownCtx)
	a.logger.Info("roulette tracker stopped")
	return nil
}

func cmdSpin(args []string, out io.Writer) error {
	fs, cfgPath := newFlagSet("spin")
	n := fs.Int("n", 1, "number of spins")
	asJSON := fs.Bool("json", false, "print results as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *n < 1 || *n > 1000 {
		return fmt.Errorf("-n must be between 1 and 1000")
	}

	ctx := context.Background()
	a, err := openApp(ctx, *cfgPath)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	for i := 0; i < *n; i++ {
		res, err := a.session.Spin(ctx)
		if err != nil {
			return err
		}
		if *asJSON {
			if err := writeJSON(out, res); err != nil {
				return err
			}
			continue
		}
		printSpin(out, res)
	}
	return nil
}

func cmdStats(args []string, out io.Writer) error {
	fs, cfgPath := newFlagSet("stats")
	n := fs.Int("n", 8, "numbers per list")
	asJSON := fs.Bool("json", false, "print as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *n < 1 || *n > 38 {
		return fmt.Errorf("-n must be between 1 and 38")
	}

	ctx := context.Background()
	a, err := openApp(ctx, *cfgPath)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	s := collectStats(a.session, *n)
	if *asJSON {
		return writeJSON(out, s)
	}
	printStats(out, s)
	return nil
}

func cmdHistory(args []string, out io.Writer) error {
	fs, cfgPath := newFlagSet("history")
	limit := fs.Int("limit", 20, "number of spins to show")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit < 1 || *limit > 100 {
		return fmt.Errorf("-limit must be between 1 and 100")
	}

	ctx := context.Background()
	a, err := openApp(ctx, *cfgPath)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	history := a.session.History()
	if len(history) > *limit {
		history = history[:*limit]
	}
	printHistory(out, history)
	return nil
}

func cmdReset(args []string, out io.Writer) error {
	fs, cfgPath := newFlagSet("reset")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	a, err := openApp(ctx, *cfgPath)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	a.session.Reset(ctx)
	fmt.Fprintf(out, "reset: history cleared, stake %s\n", a.session.BettingState().CurrentStake)
	return nil
}

func cmdVariant(args []string, out io.Writer) error {
	fs, cfgPath := newFlagSet("variant")
	clearState := fs.Bool("clear", false, "reset history and stake after switching")
	if err := fs.Parse(args); err != nil {
		return err
	}
	// Accept flags on either side of the variant name.
	if fs.NArg() == 0 {
		return errors.New("variant: expected european or american")
	}
	name := fs.Arg(0)
	if err := fs.Parse(fs.Args()[1:]); err != nil {
		return err
	}
	v, err := wheel.ParseVariant(name)
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := openApp(ctx, *cfgPath)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	if err := a.session.SetVariant(ctx, v, *clearState); err != nil {
		return err
	}
	fmt.Fprintf(out, "wheel: %s (%d slots)", v, v.Size())
	if *clearState {
		fmt.Fprint(out, ", state cleared")
	}
	fmt.Fprintln(out)
	return nil
}

func cmdAutospin(args []string, out io.Writer) error {
	fs, cfgPath := newFlagSet("autospin")
	n := fs.Int("n", 0, "number of spins (default from config)")
	interval := fs.Duration("interval", -1, "delay between spins (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, *cfgPath)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	count := a.cfg.Autospin.Count
	if *n > 0 {
		count = *n
	}
	pace := a.cfg.Autospin.Interval
	if *interval >= 0 {
		pace = *interval
	}

	runner := autospin.NewRunner(a.session, a.logger)
	if _, err := runner.Start(count, pace, func(res session.SpinResult) {
		printSpin(out, res)
	}); err != nil {
		return err
	}

	select {
	case <-runner.Done():
	case <-ctx.Done():
		_ = runner.Stop()
		<-runner.Done()
	}

	st := runner.Status()
	fmt.Fprintf(out, "autospin %s: %d/%d spins\n", st.State, st.Completed, st.Requested)
	if st.State == autospin.StateError {
		return errors.New(st.Error)
	}
	return nil
}
