// Package config loads the server's solver defaults from an optional YAML
// file (CONFIG_PATH) with environment variables taking precedence, so a
// container can override a baked-in file without editing it.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// Solver holds the tunables applied when an order leaves a knob unset.
type Solver struct {
	// Backend selects the solve engine: "cpsat" (default) or "pbsat".
	Backend string `yaml:"backend"`
	// TimeLimitMs bounds one solve call.
	TimeLimitMs int `yaml:"timeLimitMs"`
	// Workers is the parallel search worker count for backends that support it.
	Workers int `yaml:"workers"`

	MaxToppingsPerPizza int `yaml:"maxToppingsPerPizza"`
	// DislikeWeight is the score applied to disliked toppings; more negative
	// values make the optimizer avoid dislikes harder. Must be negative.
	DislikeWeight int  `yaml:"dislikeWeight"`
	BalanceLoad   bool `yaml:"balanceLoad"`
}

type Config struct {
	Solver Solver `yaml:"solver"`
}

func defaults() Config {
	return Config{Solver: Solver{
		Backend:             "cpsat",
		TimeLimitMs:         20000,
		Workers:             4,
		MaxToppingsPerPizza: 3,
		DislikeWeight:       -1,
		BalanceLoad:         true,
	}}
}

// Load resolves the effective configuration: defaults, then the YAML file at
// CONFIG_PATH (or the given path) if present, then environment overrides.
func Load(path string) (Config, error) {
	cfg := defaults()
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SOLVER_BACKEND"); v != "" {
		cfg.Solver.Backend = v
	}
	envInt("SOLVER_TIME_LIMIT_MS", &cfg.Solver.TimeLimitMs)
	envInt("SOLVER_WORKERS", &cfg.Solver.Workers)
	envInt("MAX_TOPPINGS_PER_PIZZA", &cfg.Solver.MaxToppingsPerPizza)
	envInt("DISLIKE_WEIGHT", &cfg.Solver.DislikeWeight)
	if v := os.Getenv("BALANCE_LOAD"); v != "" {
		cfg.Solver.BalanceLoad = v != "false" && v != "0"
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func (c Config) validate() error {
	s := c.Solver
	if s.TimeLimitMs <= 0 {
		return fmt.Errorf("solver time limit must be positive, got %dms", s.TimeLimitMs)
	}
	if s.MaxToppingsPerPizza < 1 {
		return fmt.Errorf("max toppings per pizza must be >= 1, got %d", s.MaxToppingsPerPizza)
	}
	if s.DislikeWeight >= 0 {
		return fmt.Errorf("dislike weight must be negative, got %d", s.DislikeWeight)
	}
	switch s.Backend {
	case "cpsat", "pbsat":
	default:
		return fmt.Errorf("unknown solver backend %q", s.Backend)
	}
	return nil
}

// TimeLimit returns the solve budget as a duration.
func (s Solver) TimeLimit() time.Duration {
	return time.Duration(s.TimeLimitMs) * time.Millisecond
}
