package models

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/h2integrate/h2integrate/pkg/component"
	"github.com/h2integrate/h2integrate/pkg/technology"
	"github.com/h2integrate/h2integrate/pkg/units"
)

const (
	// h2HHV is the higher heating value of hydrogen in kWh/kg.
	h2HHV = 39.41
	// oxygenPerHydrogen is the mass of oxygen released per kg of hydrogen.
	oxygenPerHydrogen = 7.94
)

type electrolyzerPerformanceConfig struct {
	NClusters       int     `yaml:"n_clusters" required:"true"`
	ClusterRatingMW float64 `yaml:"cluster_rating_MW" required:"true"`
	Location        string  `yaml:"location"`
	PEMControlType  string  `yaml:"pem_control_type"`
	// EOLEffPercentLoss is the efficiency loss in percent at end of life.
	EOLEffPercentLoss         float64 `yaml:"eol_eff_percent_loss"`
	UptimeHoursUntilEOL       float64 `yaml:"uptime_hours_until_eol"`
	IncludeDegradationPenalty bool    `yaml:"include_degradation_penalty"`
	TurndownRatio             float64 `yaml:"turndown_ratio"`
	// SpecificEnergy is the beginning of life electricity use in kWh/kg.
	SpecificEnergy    float64 `yaml:"specific_energy_kWh_per_kg"`
	WaterUsageGalPrKg float64 `yaml:"water_usage_gal_pr_kg"`

	technology.Sizing `yaml:",inline"`
}

// ElectrolyzerPerformance is a clustered PEM electrolyzer with a turndown
// limit and linear stack degradation.
type ElectrolyzerPerformance struct {
	cfg electrolyzerPerformanceConfig
	n   int
}

// NewElectrolyzerPerformance builds pem_electrolyzer_performance.
func NewElectrolyzerPerformance(cfg technology.Config) (component.Component, error) {
	var c electrolyzerPerformanceConfig
	if err := cfg.Decode("performance", &c); err != nil {
		return nil, err
	}
	if err := c.Sizing.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Name, err)
	}
	if c.SpecificEnergy == 0 {
		c.SpecificEnergy = 55
	}
	if c.WaterUsageGalPrKg == 0 {
		c.WaterUsageGalPrKg = 3.8
	}
	if c.UptimeHoursUntilEOL == 0 {
		c.UptimeHoursUntilEOL = 80000
	}
	switch {
	case c.NClusters <= 0 || c.ClusterRatingMW <= 0:
		return nil, fmt.Errorf("%s: n_clusters and cluster_rating_MW must be positive", cfg.Name)
	case c.TurndownRatio < 0 || c.TurndownRatio >= 1:
		return nil, fmt.Errorf("%s: turndown_ratio must be in [0, 1)", cfg.Name)
	case c.PEMControlType != "" && c.PEMControlType != "basic":
		return nil, fmt.Errorf("%s: pem_control_type %q is not supported", cfg.Name, c.PEMControlType)
	case c.Location != "" && c.Location != "onshore" && c.Location != "offshore":
		return nil, fmt.Errorf("%s: location must be onshore or offshore", cfg.Name)
	}
	return &ElectrolyzerPerformance{cfg: c, n: cfg.NTimesteps()}, nil
}

// Inputs implements component.Component.
func (e *ElectrolyzerPerformance) Inputs() []component.Port {
	ports := []component.Port{
		component.Series("electricity_in", "kW", e.n, "Power available to the stacks"),
	}
	if e.cfg.SizeMode == technology.SizeByMaxCommodity {
		ports = append(ports, component.Scalar("max_hydrogen_capacity", "kg/h", 0, "Hydrogen capacity to size to"))
	}
	return append(ports, e.cfg.Sizing.Inputs()...)
}

// Outputs implements component.Component.
func (e *ElectrolyzerPerformance) Outputs() []component.Port {
	return []component.Port{
		component.Series("hydrogen_out", "kg/h", e.n, ""),
		component.Series("oxygen_out", "kg/h", e.n, ""),
		component.Series("water_consumed", "galUS/h", e.n, ""),
		component.Series("electricity_consumed", "kW", e.n, ""),
		component.Scalar("total_hydrogen_produced", "kg/year", 0, ""),
		component.Scalar("time_until_replacement", "h", 0, "Hours until the stacks reach end of life"),
		component.Scalar("electrolyzer_size_mw", "MW", 0, ""),
		component.Scalar("rated_h2_production_kg_pr_hr", "kg/h", 0, ""),
		component.Scalar("max_electricity_capacity", "kW", 0, "Rated electrical input"),
		component.Scalar("efficiency", "unitless", 0, "Average efficiency, HHV basis"),
		component.Scalar("capacity_factor", "unitless", 0, ""),
	}
}

// ratedKW returns the installed capacity, rounded up to whole clusters when
// the electrolyzer is sized from its inputs.
func (e *ElectrolyzerPerformance) ratedKW(in component.Vector) float64 {
	cluster := e.cfg.ClusterRatingMW * 1000
	var target float64
	switch e.cfg.SizeMode {
	case technology.SizeByMaxFeedstock:
		target = floats.Max(in.Get("electricity_in")) * in.Scalar("max_feedstock_ratio")
	case technology.SizeByMaxCommodity:
		target = in.Scalar("max_hydrogen_capacity") * in.Scalar("max_commodity_ratio") * e.cfg.SpecificEnergy
	default:
		return float64(e.cfg.NClusters) * cluster
	}
	return math.Max(1, math.Ceil(target/cluster)) * cluster
}

// Compute implements component.Component.
func (e *ElectrolyzerPerformance) Compute(ctx context.Context, in, out component.Vector) error {
	power := in.Get("electricity_in")
	rated := e.ratedKW(in)
	minPower := e.cfg.TurndownRatio * rated

	h2 := make([]float64, len(power))
	used := make([]float64, len(power))
	var operating, energy float64
	for i, p := range power {
		p = min(p, rated)
		if p <= 0 || p < minPower {
			continue
		}
		se := e.cfg.SpecificEnergy
		if e.cfg.IncludeDegradationPenalty {
			se *= 1 + e.cfg.EOLEffPercentLoss/100*math.Min(operating/e.cfg.UptimeHoursUntilEOL, 1)
		}
		h2[i] = p / se
		used[i] = p
		operating++
		energy += p
	}

	var timeUntilReplacement, efficiency float64
	if operating > 0 {
		// calendar hours until the stacks log their rated uptime
		timeUntilReplacement = e.cfg.UptimeHoursUntilEOL * float64(len(power)) / operating
	}
	total := floats.Sum(h2)
	if energy > 0 {
		efficiency = total * h2HHV / energy
	}

	oxygen := make([]float64, len(h2))
	water := make([]float64, len(h2))
	for i, v := range h2 {
		oxygen[i] = v * oxygenPerHydrogen
		water[i] = v * e.cfg.WaterUsageGalPrKg
	}

	out.Set("hydrogen_out", h2)
	out.Set("oxygen_out", oxygen)
	out.Set("water_consumed", water)
	out.Set("electricity_consumed", used)
	out.SetScalar("total_hydrogen_produced", annualTotal(h2))
	out.SetScalar("time_until_replacement", timeUntilReplacement)
	out.SetScalar("electrolyzer_size_mw", rated/1000)
	out.SetScalar("rated_h2_production_kg_pr_hr", rated/e.cfg.SpecificEnergy)
	out.SetScalar("max_electricity_capacity", rated)
	out.SetScalar("efficiency", efficiency)
	out.SetScalar("capacity_factor", capacityFactor(h2, rated/e.cfg.SpecificEnergy))
	return nil
}

type electrolyzerCostConfig struct {
	Location string `yaml:"location"`
	// ElectrolyzerCapex is the installed cost in USD/kW.
	ElectrolyzerCapex float64 `yaml:"electrolyzer_capex" required:"true"`
	// FixedOpexFraction is the yearly fixed O&M as a fraction of capex.
	FixedOpexFraction float64 `yaml:"fixed_opex_fraction"`
	// TimeBetweenReplacement is accepted for the basic model and ignored.
	TimeBetweenReplacement float64 `yaml:"time_between_replacement"`

	technology.CostYear `yaml:",inline"`
}

// ElectrolyzerCost prices the electrolyzer from its rating.
type ElectrolyzerCost struct {
	cfg       electrolyzerCostConfig
	plantLife int
	costYear  int
}

// NewElectrolyzerCost builds pem_electrolyzer_cost.
func NewElectrolyzerCost(cfg technology.Config) (component.Component, error) {
	return newElectrolyzerCost(cfg, 0)
}

// NewBasicElectrolyzerCost builds basic_electrolyzer_cost, whose costs are
// always in 2016 dollars.
func NewBasicElectrolyzerCost(cfg technology.Config) (component.Component, error) {
	return newElectrolyzerCost(cfg, 2016)
}

func newElectrolyzerCost(cfg technology.Config, costYear int) (component.Component, error) {
	var c electrolyzerCostConfig
	if err := cfg.Decode("cost", &c); err != nil {
		return nil, err
	}
	if c.Location != "" && c.Location != "onshore" && c.Location != "offshore" {
		return nil, fmt.Errorf("%s: location must be onshore or offshore", cfg.Name)
	}
	if c.FixedOpexFraction == 0 {
		c.FixedOpexFraction = 0.03
	}
	if costYear == 0 {
		costYear = c.Year(2022)
	}
	return &ElectrolyzerCost{cfg: c, plantLife: cfg.PlantLife(), costYear: costYear}, nil
}

// Inputs implements component.Component.
func (e *ElectrolyzerCost) Inputs() []component.Port {
	return []component.Port{
		component.Scalar("electrolyzer_size_mw", "MW", 0, ""),
	}
}

// Outputs implements component.Component.
func (e *ElectrolyzerCost) Outputs() []component.Port {
	return technology.CostOutputs(e.plantLife)
}

// Compute implements component.Component.
func (e *ElectrolyzerCost) Compute(ctx context.Context, in, out component.Vector) error {
	sizeKW, err := units.Convert(in.Scalar("electrolyzer_size_mw"), "MW", "kW")
	if err != nil {
		return err
	}
	capex := e.cfg.ElectrolyzerCapex * sizeKW
	if e.cfg.Location == "offshore" {
		// platform and marinization
		capex *= 1.1
	}
	technology.SetCosts(out, capex, capex*e.cfg.FixedOpexFraction, 0, e.costYear)
	return nil
}
