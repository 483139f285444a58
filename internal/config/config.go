package config

import (
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/go-playground/validator/v10"

	"github.com/mafu-labs/growthsim/internal/errors"
	"github.com/mafu-labs/growthsim/internal/sim"
)

type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	HTTP        struct {
		Port            int           `env:"HTTP_PORT" envDefault:"8080" validate:"gt=0,lte=65535"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
		IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	}
	Logging struct {
		Level  string `env:"LOG_LEVEL"`
		Format string `env:"LOG_FORMAT" envDefault:"json" validate:"oneof=json text console"`
		Output string `env:"LOG_OUTPUT" envDefault:"stderr"`
	}
	Solver struct {
		MaxNodes     int     `env:"SOLVER_MAX_NODES" envDefault:"10000" validate:"gte=0"`
		IntTolerance float64 `env:"SOLVER_INT_TOLERANCE" envDefault:"1e-6" validate:"gte=0,lt=0.5"`
		// CacheSize bounds the memoized solves. Zero disables caching.
		CacheSize int `env:"SOLVER_CACHE" envDefault:"4096" validate:"gte=0"`
	}
	Simulation struct {
		MaxNodes      int           `env:"SIM_MAX_NODES" envDefault:"200000" validate:"gte=0"`
		MaxLevels     int           `env:"SIM_MAX_LEVELS" envDefault:"8" validate:"gte=0"`
		Timeout       time.Duration `env:"SIM_TIMEOUT" envDefault:"5m"`
		FailurePolicy string        `env:"SIM_FAILURE_POLICY" envDefault:"abort" validate:"oneof=abort zero zero-return"`
	}
	Jobs struct {
		// Retention is how long finished simulations stay queryable.
		Retention time.Duration `env:"JOB_RETENTION" envDefault:"1h"`
	}
}

var validate = validator.New()

func Load() (*Config, error) {
	return load(env.Options{})
}

// LoadFromMap reads the configuration from vars instead of the process
// environment.
func LoadFromMap(vars map[string]string) (*Config, error) {
	return load(env.Options{Environment: vars})
}

func load(opts env.Options) (*Config, error) {
	cfg := &Config{}

	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, errors.Wrap(err, "parsing environment").WithKind(errors.KindInvalid).WithComponent("config")
	}

	// Development logs at debug unless told otherwise
	if cfg.Logging.Level == "" {
		if cfg.Environment == "development" {
			cfg.Logging.Level = "debug"
		} else {
			cfg.Logging.Level = "info"
		}
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid configuration").WithKind(errors.KindInvalid).WithComponent("config")
	}

	return cfg, nil
}

// FailurePolicy returns the parsed simulation failure policy.
func (c *Config) FailurePolicy() sim.FailurePolicy {
	p, err := sim.ParsePolicy(c.Simulation.FailurePolicy)
	if err != nil {
		return sim.PolicyAbort
	}
	return p
}
