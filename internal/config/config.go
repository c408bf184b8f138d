package config

import (
	"os"
	"strconv"
	"strings"

	"transitcausal/domain/causal"
	"transitcausal/domain/core"
	"transitcausal/internal/errors"
)

// Defaults for the analysis surface. The secondary elasticities are
// literature-derived constants, not fit from data; callers should treat
// them as overridable assumptions, which is why they live in config
// rather than in the simulator.
const (
	DefaultMinSampleForEstimate = 20
	DefaultRefutationTolerance  = 0.5
	DefaultSubsetFraction       = 0.8
	DefaultBootstrapResamples   = 500
	DefaultBootstrapMinEntities = 5
	DefaultIntervalLevel        = 0.95
	DefaultMaxPlausibleElast    = 0.8
)

// RunConfig is the immutable configuration threaded through every
// component call. It is never read from ambient state, so runs are
// reproducible and testable in isolation.
type RunConfig struct {
	// AdjustmentOverride forces a confounder set per outcome, bypassing
	// backdoor identification for that outcome.
	AdjustmentOverride map[core.VariableKey][]core.VariableKey

	// MinSampleForEstimate marks estimates below this N as low power.
	MinSampleForEstimate int

	// RefutationTolerance is the maximum relative deviation accepted by
	// the random-common-cause and data-subset tests.
	RefutationTolerance float64

	// SubsetFraction is the share of rows kept by the data-subset test.
	SubsetFraction float64

	// BootstrapResamples is the number of entity resamples for interval
	// construction.
	BootstrapResamples int

	// BootstrapSeed must be supplied explicitly for reproducible runs.
	BootstrapSeed int64
	SeedSet       bool

	// BootstrapMinEntities is the minimum distinct entities required
	// before resampling is meaningful.
	BootstrapMinEntities int

	// IntervalLevel is the bootstrap interval coverage (0.95 -> 2.5/97.5
	// percentiles).
	IntervalLevel float64

	// Scenarios are the named policy levels to simulate.
	Scenarios []causal.Scenario

	// SecondaryElasticities map auxiliary outcomes to fixed elasticity
	// constants used when an outcome lacks its own validated estimate.
	SecondaryElasticities map[core.VariableKey]float64

	// OutcomeBounds declares valid ranges for percentage-bounded
	// outcomes; projections outside the range are clamped and flagged.
	OutcomeBounds map[core.VariableKey]causal.OutcomeBound

	// MaxPlausibleElasticity flags scenarios whose implied elasticity
	// exceeds this magnitude as implausible in the run report.
	MaxPlausibleElasticity float64
}

// Default returns a RunConfig with every tunable at its design default.
// The bootstrap seed is deliberately left unset; reproducible runs must
// supply one via WithSeed.
func Default() RunConfig {
	return RunConfig{
		MinSampleForEstimate:   DefaultMinSampleForEstimate,
		RefutationTolerance:    DefaultRefutationTolerance,
		SubsetFraction:         DefaultSubsetFraction,
		BootstrapResamples:     DefaultBootstrapResamples,
		BootstrapMinEntities:   DefaultBootstrapMinEntities,
		IntervalLevel:          DefaultIntervalLevel,
		MaxPlausibleElasticity: DefaultMaxPlausibleElast,
		SecondaryElasticities:  map[core.VariableKey]float64{},
		OutcomeBounds:          map[core.VariableKey]causal.OutcomeBound{},
		AdjustmentOverride:     map[core.VariableKey][]core.VariableKey{},
	}
}

// WithSeed returns a copy of the config with the bootstrap seed set.
func (c RunConfig) WithSeed(seed int64) RunConfig {
	c.BootstrapSeed = seed
	c.SeedSet = true
	return c
}

// WithScenarios returns a copy of the config with the scenario list set.
func (c RunConfig) WithScenarios(scenarios ...causal.Scenario) RunConfig {
	c.Scenarios = append([]causal.Scenario(nil), scenarios...)
	return c
}

// WithSecondaryElasticities returns a copy of the config with fixed
// elasticities for auxiliary outcomes.
func (c RunConfig) WithSecondaryElasticities(elasticities map[core.VariableKey]float64) RunConfig {
	out := make(map[core.VariableKey]float64, len(elasticities))
	for k, v := range elasticities {
		out[k] = v
	}
	c.SecondaryElasticities = out
	return c
}

// Validate checks the structural sanity of the configuration. A bad
// config aborts the whole run.
func (c RunConfig) Validate() error {
	if c.MinSampleForEstimate < 2 {
		return errors.ConfigInvalid("min sample for estimate must be at least 2")
	}
	if c.RefutationTolerance <= 0 {
		return errors.ConfigInvalid("refutation tolerance must be positive")
	}
	if c.SubsetFraction <= 0 || c.SubsetFraction >= 1 {
		return errors.ConfigInvalid("subset fraction must be in (0, 1)")
	}
	if c.BootstrapResamples < 1 {
		return errors.ConfigInvalid("bootstrap resamples must be at least 1")
	}
	if c.BootstrapMinEntities < 2 {
		return errors.ConfigInvalid("bootstrap minimum entities must be at least 2")
	}
	if c.IntervalLevel <= 0 || c.IntervalLevel >= 1 {
		return errors.ConfigInvalid("interval level must be in (0, 1)")
	}
	for _, s := range c.Scenarios {
		if s.Name == "" {
			return errors.ConfigInvalid("scenario with empty name")
		}
		if s.Kind != causal.ScenarioMultiplier && s.Kind != causal.ScenarioTargetLevel {
			return errors.ConfigInvalid("scenario " + s.Name + " has unknown kind")
		}
	}
	for key, b := range c.OutcomeBounds {
		if b.Min >= b.Max {
			return errors.ConfigInvalid("outcome bound for " + key.String() + " has min >= max")
		}
	}
	return nil
}

// RequireSeed enforces the explicit-seed rule for the uncertainty step.
func (c RunConfig) RequireSeed() error {
	if !c.SeedSet {
		return errors.WithCode(errors.CodeConfigInvalid, core.ErrSeedRequired)
	}
	return nil
}

// FromEnv overlays environment variables onto the defaults. Used by cmd
// entrypoints; library callers construct RunConfig directly.
func FromEnv() (RunConfig, error) {
	c := Default()
	c.MinSampleForEstimate = getEnvIntOrDefault("MIN_SAMPLE_FOR_ESTIMATE", c.MinSampleForEstimate)
	c.RefutationTolerance = getEnvFloatOrDefault("REFUTATION_TOLERANCE", c.RefutationTolerance)
	c.SubsetFraction = getEnvFloatOrDefault("SUBSET_FRACTION", c.SubsetFraction)
	c.BootstrapResamples = getEnvIntOrDefault("BOOTSTRAP_RESAMPLES", c.BootstrapResamples)
	c.BootstrapMinEntities = getEnvIntOrDefault("BOOTSTRAP_MIN_ENTITIES", c.BootstrapMinEntities)
	if v := os.Getenv("BOOTSTRAP_SEED"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return c, errors.ConfigInvalid("BOOTSTRAP_SEED must be an integer")
		}
		c = c.WithSeed(seed)
	}
	if v := os.Getenv("SECONDARY_ELASTICITIES"); v != "" {
		elasticities, err := parseElasticities(v)
		if err != nil {
			return c, err
		}
		c = c.WithSecondaryElasticities(elasticities)
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// parseElasticities reads "outcome=value" pairs separated by commas,
// e.g. "pm25_concentration=-0.2,gdp_per_capita=0.15".
func parseElasticities(s string) (map[core.VariableKey]float64, error) {
	out := make(map[core.VariableKey]float64)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, errors.ConfigInvalid("SECONDARY_ELASTICITIES entries must be outcome=value")
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, errors.ConfigInvalid("SECONDARY_ELASTICITIES values must be numeric")
		}
		out[core.VariableKey(strings.TrimSpace(key))] = f
	}
	return out, nil
}

// Helper functions for environment variable parsing

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
