package config

import (
	"errors"
	"testing"

	"transitcausal/domain/causal"
	"transitcausal/domain/core"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*RunConfig)
	}{
		{"min sample", func(c *RunConfig) { c.MinSampleForEstimate = 1 }},
		{"tolerance", func(c *RunConfig) { c.RefutationTolerance = 0 }},
		{"subset fraction", func(c *RunConfig) { c.SubsetFraction = 1.0 }},
		{"resamples", func(c *RunConfig) { c.BootstrapResamples = 0 }},
		{"min entities", func(c *RunConfig) { c.BootstrapMinEntities = 1 }},
		{"interval level", func(c *RunConfig) { c.IntervalLevel = 1.0 }},
		{"nameless scenario", func(c *RunConfig) {
			c.Scenarios = []causal.Scenario{{Kind: causal.ScenarioMultiplier, Value: 2}}
		}},
		{"unknown scenario kind", func(c *RunConfig) {
			c.Scenarios = []causal.Scenario{{Name: "x", Kind: "mystery", Value: 2}}
		}},
		{"inverted bound", func(c *RunConfig) {
			c.OutcomeBounds = map[core.VariableKey]causal.OutcomeBound{"y": {Min: 10, Max: 0}}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestRequireSeed(t *testing.T) {
	cfg := Default()
	if err := cfg.RequireSeed(); !errors.Is(err, core.ErrSeedRequired) {
		t.Fatalf("expected seed required error, got %v", err)
	}
	if err := cfg.WithSeed(0).RequireSeed(); err != nil {
		t.Fatalf("seed zero is a valid explicit seed: %v", err)
	}
}

func TestFromEnvOverlaysValues(t *testing.T) {
	t.Setenv("BOOTSTRAP_RESAMPLES", "750")
	t.Setenv("BOOTSTRAP_SEED", "1234")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.BootstrapResamples != 750 {
		t.Errorf("resamples = %d", cfg.BootstrapResamples)
	}
	if !cfg.SeedSet || cfg.BootstrapSeed != 1234 {
		t.Errorf("seed not applied: %+v", cfg)
	}
}

func TestFromEnvRejectsBadSeed(t *testing.T) {
	t.Setenv("BOOTSTRAP_SEED", "not-a-number")
	if _, err := FromEnv(); err == nil {
		t.Fatal("expected config error")
	}
}

func TestFromEnvParsesSecondaryElasticities(t *testing.T) {
	t.Setenv("SECONDARY_ELASTICITIES", "pm25_concentration=-0.2, gdp_per_capita=0.15")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if got := cfg.SecondaryElasticities["pm25_concentration"]; got != -0.2 {
		t.Errorf("pm25 elasticity = %v", got)
	}
	if got := cfg.SecondaryElasticities["gdp_per_capita"]; got != 0.15 {
		t.Errorf("gdp elasticity = %v", got)
	}
}

func TestFromEnvRejectsMalformedElasticities(t *testing.T) {
	t.Setenv("SECONDARY_ELASTICITIES", "pm25_concentration")
	if _, err := FromEnv(); err == nil {
		t.Fatal("expected config error")
	}
}

func TestWithScenariosCopies(t *testing.T) {
	src := []causal.Scenario{{Name: "a", Kind: causal.ScenarioMultiplier, Value: 1}}
	cfg := Default().WithScenarios(src...)
	src[0].Name = "mutated"
	if cfg.Scenarios[0].Name != "a" {
		t.Error("WithScenarios must copy the slice")
	}
}
