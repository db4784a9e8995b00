// Package config loads roulette-tracker settings from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/MJE43/roulette-tracker-go/internal/wheel"
)

const (
	appConfigDirName = "roulette-tracker"
	configFileName   = "config.yaml"
	stateDBName      = "state.db"
	fallbackFileName = "keyring-fallback.json"
)

// Store backends.
const (
	StoreMemory  = "memory"
	StoreSQLite  = "sqlite"
	StoreKeyring = "keyring"
	StoreRedis   = "redis"
)

// Stake strategies.
const (
	StrategyMartingale = "martingale"
	StrategyScript     = "script"
)

// RNG sources.
const (
	RNGSecure = "secure"
	RNGSeeded = "seeded"
)

// Config is the full application configuration.
type Config struct {
	Listen      string         `yaml:"listen"`
	CORSOrigins []string       `yaml:"cors_origins"`
	Log         LogConfig      `yaml:"log"`
	Store       StoreConfig    `yaml:"store"`
	Game        GameConfig     `yaml:"game"`
	Strategy    StrategyConfig `yaml:"strategy"`
	Autospin    AutospinConfig `yaml:"autospin"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type StoreConfig struct {
	Backend    string        `yaml:"backend"`
	SQLitePath string        `yaml:"sqlite_path"`
	Keyring    KeyringConfig `yaml:"keyring"`
	Redis      RedisConfig   `yaml:"redis"`
}

type KeyringConfig struct {
	Service      string `yaml:"service"`
	FallbackPath string `yaml:"fallback_path"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type GameConfig struct {
	Variant   string          `yaml:"variant"`
	BaseStake decimal.Decimal `yaml:"base_stake"`
	// WindowedFrequency limits the frequency table to the retained history.
	WindowedFrequency bool       `yaml:"windowed_frequency"`
	RNG               string     `yaml:"rng"`
	Seed              SeedConfig `yaml:"seed"`
}

// SeedConfig feeds the deterministic source used for replays.
type SeedConfig struct {
	Server string `yaml:"server"`
	Client string `yaml:"client"`
	Nonce  uint64 `yaml:"nonce"`
}

type StrategyConfig struct {
	Name       string `yaml:"name"`
	ScriptPath string `yaml:"script_path"`
}

type AutospinConfig struct {
	Count    int           `yaml:"count"`
	Interval time.Duration `yaml:"interval"`
}

// Default returns the built-in configuration.
func Default() *Config {
	dir := AppDataDir()
	return &Config{
		Listen: "127.0.0.1:17890",
		Log:    LogConfig{Level: "info", Format: "json"},
		Store: StoreConfig{
			Backend:    StoreSQLite,
			SQLitePath: filepath.Join(dir, stateDBName),
			Keyring: KeyringConfig{
				Service:      "roulette-tracker",
				FallbackPath: filepath.Join(dir, fallbackFileName),
			},
			Redis: RedisConfig{Addr: "127.0.0.1:6379", Prefix: "roulette:"},
		},
		Game: GameConfig{
			Variant:   string(wheel.European),
			BaseStake: decimal.NewFromInt(1),
			RNG:       RNGSecure,
		},
		Strategy: StrategyConfig{Name: StrategyMartingale},
		Autospin: AutospinConfig{Count: 5, Interval: 2 * time.Second},
	}
}

// Load reads path (or the default config file when path is empty and the
// file exists), applies environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = filepath.Join(AppDataDir(), configFileName)
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv("ROULETTE_LISTEN"); ok && v != "" {
		c.Listen = v
	}
	if v, ok := os.LookupEnv("ROULETTE_STORE"); ok && v != "" {
		c.Store.Backend = v
	}
	if v, ok := os.LookupEnv("ROULETTE_SQLITE_PATH"); ok && v != "" {
		c.Store.SQLitePath = v
	}
	if v, ok := os.LookupEnv("ROULETTE_REDIS_ADDR"); ok && v != "" {
		c.Store.Redis.Addr = v
	}
	if v, ok := os.LookupEnv("ROULETTE_LOG_LEVEL"); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := os.LookupEnv("ROULETTE_BASE_STAKE"); ok && v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return fmt.Errorf("config: ROULETTE_BASE_STAKE: %w", err)
		}
		c.Game.BaseStake = d
	}
	if v, ok := os.LookupEnv("ROULETTE_AUTOSPIN_COUNT"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: ROULETTE_AUTOSPIN_COUNT: %w", err)
		}
		c.Autospin.Count = n
	}
	return nil
}

// Validate checks that every setting is usable.
func (c *Config) Validate() error {
	var errs []error
	if c.Listen == "" {
		errs = append(errs, errors.New("listen address is required"))
	}
	switch c.Store.Backend {
	case StoreMemory, StoreKeyring:
	case StoreSQLite:
		if c.Store.SQLitePath == "" {
			errs = append(errs, errors.New("store.sqlite_path is required for the sqlite backend"))
		}
	case StoreRedis:
		if c.Store.Redis.Addr == "" {
			errs = append(errs, errors.New("store.redis.addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}
	if _, err := wheel.ParseVariant(c.Game.Variant); err != nil {
		errs = append(errs, err)
	}
	if !c.Game.BaseStake.IsPositive() {
		errs = append(errs, fmt.Errorf("game.base_stake must be positive, got %s", c.Game.BaseStake))
	}
	switch strings.ToLower(c.Game.RNG) {
	case RNGSecure:
	case RNGSeeded:
		if c.Game.Seed.Server == "" {
			errs = append(errs, errors.New("game.seed.server is required for the seeded rng"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown rng %q", c.Game.RNG))
	}
	switch c.Strategy.Name {
	case StrategyMartingale:
	case StrategyScript:
		if c.Strategy.ScriptPath == "" {
			errs = append(errs, errors.New("strategy.script_path is required for the script strategy"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown strategy %q", c.Strategy.Name))
	}
	if c.Autospin.Count < 1 || c.Autospin.Count > 1000 {
		errs = append(errs, fmt.Errorf("autospin.count must be in [1, 1000], got %d", c.Autospin.Count))
	}
	if c.Autospin.Interval < 0 || c.Autospin.Interval > time.Minute {
		errs = append(errs, fmt.Errorf("autospin.interval must be in [0, 1m], got %s", c.Autospin.Interval))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// AppDataDir returns an OS-appropriate writable directory.
func AppDataDir() string {
	if d, err := os.UserConfigDir(); err == nil && d != "" {
		return filepath.Join(d, appConfigDirName)
	}
	if h, err := os.UserHomeDir(); err == nil && h != "" {
		return filepath.Join(h, "."+appConfigDirName)
	}
	return "."
}
