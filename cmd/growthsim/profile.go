package main

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mafu-labs/growthsim/internal/errors"
	"github.com/mafu-labs/growthsim/internal/logging"
	"github.com/mafu-labs/growthsim/internal/registry"
	"github.com/mafu-labs/growthsim/internal/sim"
)

// envPrefix namespaces profile overrides, e.g. GROWTHSIM_LEVELS=4.
const envPrefix = "GROWTHSIM"

// Profile holds the parameters of a simulation run.
type Profile struct {
	Levels       int     `mapstructure:"levels" validate:"gte=0"`
	Step         int     `mapstructure:"step" validate:"gt=0,lte=100"`
	Root         string  `mapstructure:"root" validate:"required"`
	Productivity float64 `mapstructure:"productivity" validate:"gte=0"`
	Savings      float64 `mapstructure:"savings" validate:"gte=0"`
	Policy       string  `mapstructure:"policy" validate:"oneof=abort zero zero-return"`
	MaxNodes     int     `mapstructure:"maxNodes" validate:"gte=0"`

	Solver struct {
		MaxNodes     int     `mapstructure:"maxNodes" validate:"gte=0"`
		IntTolerance float64 `mapstructure:"intTolerance" validate:"gte=0,lt=0.5"`
		Cache        int     `mapstructure:"cache" validate:"gte=0"`
	} `mapstructure:"solver"`

	Variables []registry.ProductionVariable `mapstructure:"variables"`
	Logging   logging.Config                `mapstructure:"logging"`
}

var validate = validator.New()

func setDefaults(v *viper.Viper) {
	v.SetDefault("levels", 2)
	v.SetDefault("step", 50)
	v.SetDefault("root", sim.DefaultRootName)
	v.SetDefault("productivity", sim.DefaultSeed)
	v.SetDefault("savings", sim.DefaultSeed)
	v.SetDefault("policy", "abort")
	v.SetDefault("maxNodes", 2000000)
	v.SetDefault("solver.maxNodes", 10000)
	v.SetDefault("solver.intTolerance", 1e-6)
	v.SetDefault("solver.cache", 4096)
	v.SetDefault("logging.level", "warn")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stderr")
}

// LoadProfile reads the YAML profile at path, if any, and applies
// GROWTHSIM_* environment overrides. Flags of cmd with a matching profile
// key take precedence when set.
func LoadProfile(path string, cmd *cobra.Command) (*Profile, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "reading profile %s", path).WithKind(errors.KindInvalid)
		}
	}

	if cmd != nil {
		for _, key := range []string{"levels", "step", "root", "policy"} {
			if f := cmd.Flags().Lookup(key); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, errors.Wrapf(err, "binding flag %s", key)
				}
			}
		}
	}

	var p Profile
	if err := v.Unmarshal(&p); err != nil {
		return nil, errors.Wrap(err, "decoding profile").WithKind(errors.KindInvalid)
	}
	if err := validate.Struct(&p); err != nil {
		return nil, errors.Wrap(err, "invalid profile").WithKind(errors.KindInvalid)
	}
	return &p, nil
}

// Registry returns the profile's variables, or the cake registry when the
// profile defines none.
func (p *Profile) Registry() (*registry.Registry, error) {
	if len(p.Variables) == 0 {
		return registry.Default(), nil
	}
	return registry.New(p.Variables...)
}

// FailurePolicy returns the parsed failure policy.
func (p *Profile) FailurePolicy() (sim.FailurePolicy, error) {
	return sim.ParsePolicy(p.Policy)
}
