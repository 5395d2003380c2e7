package models

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/h2integrate/h2integrate/pkg/common"
	"github.com/h2integrate/h2integrate/pkg/component"
	"github.com/h2integrate/h2integrate/pkg/technology"
	"github.com/h2integrate/h2integrate/pkg/units"
)

type feedstockConfig struct {
	FeedstockType string  `yaml:"feedstock_type" required:"true"`
	Units         string  `yaml:"units" required:"true"`
	RatedCapacity float64 `yaml:"rated_capacity" required:"true"`
	Price         float64 `yaml:"price"`
	AnnualCost    float64 `yaml:"annual_cost"`
	StartUpCost   float64 `yaml:"start_up_cost"`

	technology.CostYear `yaml:",inline"`
}

// FeedstockSource supplies a feedstock at its rated capacity every timestep.
type FeedstockSource struct {
	cfg feedstockConfig
	n   int
}

// FeedstockCost buys whatever the downstream technology consumes. Until that
// consumption is connected the rated capacity is assumed to be used.
type FeedstockCost struct {
	cfg       feedstockConfig
	n         int
	plantLife int
}

// NewFeedstock builds the feedstock model. In the performance role it is the
// source and in the cost role it buys the consumed amount.
func NewFeedstock(cfg technology.Config) (component.Component, error) {
	kind := technology.RoleCost
	if cfg.Role == technology.RolePerformance {
		kind = technology.RolePerformance
	}
	var c feedstockConfig
	if err := cfg.Decode(kind, &c); err != nil {
		return nil, err
	}
	if _, err := units.Parse(c.Units); err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Name, err)
	}
	if c.RatedCapacity < 0 {
		return nil, fmt.Errorf("%s: rated_capacity must not be negative", cfg.Name)
	}
	if cfg.Role == technology.RolePerformance {
		return &FeedstockSource{cfg: c, n: cfg.NTimesteps()}, nil
	}
	return &FeedstockCost{cfg: c, n: cfg.NTimesteps(), plantLife: cfg.PlantLife()}, nil
}

// Inputs implements component.Component.
func (f *FeedstockSource) Inputs() []component.Port {
	return nil
}

// Outputs implements component.Component.
func (f *FeedstockSource) Outputs() []component.Port {
	return []component.Port{
		component.Series(f.cfg.FeedstockType+"_out", f.cfg.Units, f.n, ""),
	}
}

// Compute implements component.Component.
func (f *FeedstockSource) Compute(ctx context.Context, in, out component.Vector) error {
	vals := make([]float64, f.n)
	for i := range vals {
		vals[i] = f.cfg.RatedCapacity
	}
	out.Set(f.cfg.FeedstockType+"_out", vals)
	return nil
}

// Inputs implements component.Component.
func (f *FeedstockCost) Inputs() []component.Port {
	return []component.Port{{
		Name:    f.cfg.FeedstockType + "_consumed",
		Units:   f.cfg.Units,
		Size:    f.n,
		Default: f.cfg.RatedCapacity,
	}}
}

// Outputs implements component.Component.
func (f *FeedstockCost) Outputs() []component.Port {
	return technology.CostOutputs(f.plantLife)
}

// Compute implements component.Component.
func (f *FeedstockCost) Compute(ctx context.Context, in, out component.Vector) error {
	consumed := annualTotal(in.Get(f.cfg.FeedstockType + "_consumed"))
	technology.SetCosts(out, f.cfg.StartUpCost, f.cfg.AnnualCost, consumed*f.cfg.Price, f.cfg.Year(2022))
	return nil
}

const (
	feedstockNormal      = "normal"
	feedstockSizeMode    = "feedstock_size"
	feedstockProductSize = "product_size"
)

type simpleFeedstockPerformanceConfig struct {
	Commodity   string `yaml:"commodity" required:"true"`
	ComputeMode string `yaml:"compute_mode" required:"true"`
	// Profile is a CSV of supply values, relative to the technology config.
	Profile string `yaml:"profile"`
	Unit    string `yaml:"unit" required:"true"`
}

// SimpleFeedstockPerformance supplies a commodity from a profile file or, in
// product_size mode, exactly what {commodity}_demand asks for.
type SimpleFeedstockPerformance struct {
	cfg     simpleFeedstockPerformanceConfig
	profile []float64
	n       int
}

// NewSimpleFeedstockPerformance builds simple_feedstock_performance.
func NewSimpleFeedstockPerformance(cfg technology.Config) (component.Component, error) {
	var c simpleFeedstockPerformanceConfig
	if err := cfg.Decode("performance", &c); err != nil {
		return nil, err
	}
	if _, err := units.Parse(c.Unit); err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Name, err)
	}
	s := &SimpleFeedstockPerformance{cfg: c, n: cfg.NTimesteps()}
	switch c.ComputeMode {
	case feedstockProductSize:
		return s, nil
	case feedstockNormal, feedstockSizeMode:
	default:
		return nil, fmt.Errorf(
			"%s: compute_mode %q must be one of %s, %s, %s",
			cfg.Name, c.ComputeMode, feedstockNormal, feedstockSizeMode, feedstockProductSize,
		)
	}
	if c.Profile == "" {
		return nil, fmt.Errorf("%s: profile is required in %s mode", cfg.Name, c.ComputeMode)
	}
	profile, err := common.ReadProfile(cfg.Path(c.Profile))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Name, err)
	}
	if s.profile, err = Profile(profile).Series("profile", s.n); err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Name, err)
	}
	return s, nil
}

// Inputs implements component.Component.
func (s *SimpleFeedstockPerformance) Inputs() []component.Port {
	if s.cfg.ComputeMode == feedstockProductSize {
		return []component.Port{component.Series(s.cfg.Commodity+"_demand", s.cfg.Unit, s.n, "")}
	}
	return nil
}

// Outputs implements component.Component.
func (s *SimpleFeedstockPerformance) Outputs() []component.Port {
	return []component.Port{
		component.Series(s.cfg.Commodity+"_out", s.cfg.Unit, s.n, ""),
	}
}

// Compute implements component.Component.
func (s *SimpleFeedstockPerformance) Compute(ctx context.Context, in, out component.Vector) error {
	if s.cfg.ComputeMode == feedstockProductSize {
		out.Set(s.cfg.Commodity+"_out", in.Get(s.cfg.Commodity+"_demand"))
		return nil
	}
	out.Set(s.cfg.Commodity+"_out", s.profile)
	return nil
}

type simpleFeedstockCostConfig struct {
	Commodity string  `yaml:"commodity" required:"true"`
	BuyPrice  float64 `yaml:"buy_price" required:"true"`
	// Unit is the unit of {commodity}_out; buy_price is per unit*h.
	Unit string `yaml:"unit" required:"true"`

	technology.CostYear `yaml:",inline"`
}

// SimpleFeedstockCost buys the supplied profile at a fixed price.
type SimpleFeedstockCost struct {
	cfg       simpleFeedstockCostConfig
	n         int
	plantLife int
}

// NewSimpleFeedstockCost builds simple_feedstock_cost.
func NewSimpleFeedstockCost(cfg technology.Config) (component.Component, error) {
	var c simpleFeedstockCostConfig
	if err := cfg.Decode("cost", &c); err != nil {
		return nil, err
	}
	return &SimpleFeedstockCost{cfg: c, n: cfg.NTimesteps(), plantLife: cfg.PlantLife()}, nil
}

// Inputs implements component.Component.
func (s *SimpleFeedstockCost) Inputs() []component.Port {
	return []component.Port{
		component.Series(s.cfg.Commodity+"_out", s.cfg.Unit, s.n, ""),
	}
}

// Outputs implements component.Component.
func (s *SimpleFeedstockCost) Outputs() []component.Port {
	return technology.CostOutputs(s.plantLife)
}

// Compute implements component.Component.
func (s *SimpleFeedstockCost) Compute(ctx context.Context, in, out component.Vector) error {
	supplied := in.Get(s.cfg.Commodity + "_out")
	opex := floats.Sum(supplied) * s.cfg.BuyPrice * units.HoursPerYear / float64(max(len(supplied), 1))
	technology.SetCosts(out, 0, opex, 0, s.cfg.Year(2022))
	return nil
}
