package imagecache

import (
	"errors"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/caarlos0/env/v11"

	"github.com/IvanBrykalov/boundcache/cache"
)

// DefaultCostLimit is used when Options.CostLimit is zero.
const DefaultCostLimit int64 = 256 << 20

// Options configures an ImageCache. Zero values are safe:
//   - CostLimit == 0  => DefaultCostLimit
//   - CountLimit == 0 => unbounded (math.MaxInt)
//   - nil Cost        => DefaultCost
//
// Negative limits are clamped to zero by the engine.
type Options struct {
	CostLimit  int64
	CountLimit int
	DefaultTTL time.Duration

	Cost CostFunc

	Metrics cache.Metrics
	Clock   clock.Clock
	Logger  *slog.Logger
}

// Config is the environment-driven subset of Options.
type Config struct {
	CostLimit  int64         `env:"IMAGECACHE_COST_LIMIT"`
	CountLimit int           `env:"IMAGECACHE_COUNT_LIMIT"`
	DefaultTTL time.Duration `env:"IMAGECACHE_DEFAULT_TTL"`
}

// LoadConfig parses Config from the process environment.
// Unset variables keep their zero value (engine defaults).
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Join(ErrParsingConfig, err)
	}
	return cfg, nil
}

// Options converts the config into facade Options.
func (c Config) Options() Options {
	return Options{
		CostLimit:  c.CostLimit,
		CountLimit: c.CountLimit,
		DefaultTTL: c.DefaultTTL,
	}
}
