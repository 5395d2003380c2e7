package models

import (
	"context"
	"fmt"
	"math"

	"github.com/h2integrate/h2integrate/pkg/component"
	"github.com/h2integrate/h2integrate/pkg/technology"
	"github.com/h2integrate/h2integrate/pkg/units"
)

// ironFeedstock is one input of the direct reduction plant, used at a fixed
// rate per tonne of pig iron.
type ironFeedstock struct {
	name, units string
	rate        float64
}

type ironPerformanceConfig struct {
	// PigIronRate is the rated output in t/h.
	PigIronRate float64 `yaml:"pig_iron_production_rate_tonnes_per_hr" required:"true"`

	// Rates are per tonne of pig iron.
	NaturalGasRate  float64 `yaml:"natural_gas_MMBtu_per_t" required:"true"`
	WaterRate       float64 `yaml:"water_galUS_per_t" required:"true"`
	IronOreRate     float64 `yaml:"iron_ore_t_per_t" required:"true"`
	ElectricityRate float64 `yaml:"electricity_kWh_per_t" required:"true"`
	CatalystRate    float64 `yaml:"reformer_catalyst_m3_per_t"`
}

// IronDRIPerformance is a natural gas direct reduced iron plant. Each hour it
// makes the pig iron demanded, up to its rating and up to what each supplied
// feedstock allows. A feedstock whose rate is zero does not limit output.
type IronDRIPerformance struct {
	cfg        ironPerformanceConfig
	feedstocks []ironFeedstock
	n          int
}

// NewIronDRIPerformance builds ng_iron_dri_performance.
func NewIronDRIPerformance(cfg technology.Config) (component.Component, error) {
	var c ironPerformanceConfig
	if err := cfg.Decode("performance", &c); err != nil {
		return nil, err
	}
	if c.PigIronRate <= 0 {
		return nil, fmt.Errorf("%s: pig_iron_production_rate_tonnes_per_hr must be positive", cfg.Name)
	}
	feedstocks := []ironFeedstock{
		{"natural_gas", "MMBtu/h", c.NaturalGasRate},
		{"water", "galUS/h", c.WaterRate},
		{"iron_ore", "t/h", c.IronOreRate},
		{"electricity", "kW", c.ElectricityRate},
		{"reformer_catalyst", "m**3/h", c.CatalystRate},
	}
	for _, f := range feedstocks {
		if f.rate < 0 {
			return nil, fmt.Errorf("%s: %s rate must not be negative", cfg.Name, f.name)
		}
	}
	return &IronDRIPerformance{cfg: c, feedstocks: feedstocks, n: cfg.NTimesteps()}, nil
}

// Inputs implements component.Component.
func (p *IronDRIPerformance) Inputs() []component.Port {
	ports := []component.Port{
		component.Series("pig_iron_demand", "t/h", p.n, "Defaults to the rated output"),
	}
	ports[0].Default = p.cfg.PigIronRate
	for _, f := range p.feedstocks {
		in := component.Series(f.name+"_in", f.units, p.n, "")
		in.Default = p.cfg.PigIronRate * f.rate
		ports = append(ports, in)
	}
	return ports
}

// Outputs implements component.Component.
func (p *IronDRIPerformance) Outputs() []component.Port {
	ports := []component.Port{
		component.Series("pig_iron_out", "t/h", p.n, ""),
		component.Scalar("total_pig_iron_produced", "t/year", 0, ""),
		component.Scalar("plant_capacity_tpy", "t/year", 0, "Nameplate pig iron capacity"),
		component.Scalar("capacity_factor", "unitless", 0, ""),
	}
	for _, f := range p.feedstocks {
		ports = append(ports, component.Series(f.name+"_consumed", f.units, p.n, ""))
	}
	return ports
}

// Compute implements component.Component.
func (p *IronDRIPerformance) Compute(ctx context.Context, in, out component.Vector) error {
	rated := p.cfg.PigIronRate
	demand := in.Get("pig_iron_demand")

	iron := make([]float64, p.n)
	for i := range iron {
		iron[i] = clip(demand[i], 0, rated)
	}
	for _, f := range p.feedstocks {
		if f.rate == 0 {
			continue
		}
		avail := in.Get(f.name + "_in")
		for i := range iron {
			iron[i] = math.Min(iron[i], clip(avail[i], 0, rated*f.rate)/f.rate)
		}
	}

	for _, f := range p.feedstocks {
		used := make([]float64, p.n)
		for i, v := range iron {
			used[i] = v * f.rate
		}
		out.Set(f.name+"_consumed", used)
	}
	out.Set("pig_iron_out", iron)
	out.SetScalar("total_pig_iron_produced", annualTotal(iron))
	out.SetScalar("plant_capacity_tpy", rated*units.HoursPerYear)
	out.SetScalar("capacity_factor", capacityFactor(iron, rated))
	return nil
}

type ironCostConfig struct {
	// CapexCoeff and CapexExponent give CapEx = CapexCoeff * capacity^CapexExponent
	// with capacity in t/year of pig iron.
	CapexCoeff    float64 `yaml:"capex_coeff" required:"true"`
	CapexExponent float64 `yaml:"capex_exponent"`
	// PropertyTaxFraction of CapEx is charged each year.
	PropertyTaxFraction float64 `yaml:"property_tax_fraction"`
	SkilledLaborCost    float64 `yaml:"skilled_labor_cost"`
	UnskilledLaborCost  float64 `yaml:"unskilled_labor_cost"`
	// LaborHoursPerTonne is split evenly between skilled and unskilled work.
	LaborHoursPerTonne float64 `yaml:"labor_hours_per_tonne"`
	// VarOMPerTonne is charged on pig iron made.
	VarOMPerTonne float64 `yaml:"varom_per_tonne"`

	technology.CostYear `yaml:",inline"`
}

// IronDRICost prices the direct reduction plant from its nameplate capacity
// and hourly output.
type IronDRICost struct {
	cfg       ironCostConfig
	n         int
	plantLife int
}

// NewIronDRICost builds ng_iron_dri_cost.
func NewIronDRICost(cfg technology.Config) (component.Component, error) {
	var c ironCostConfig
	if err := cfg.Decode("cost", &c); err != nil {
		return nil, err
	}
	if c.CapexExponent == 0 {
		c.CapexExponent = 1
	}
	if c.SkilledLaborCost < 0 || c.UnskilledLaborCost < 0 {
		return nil, fmt.Errorf("%s: labor costs must not be negative", cfg.Name)
	}
	return &IronDRICost{cfg: c, n: cfg.NTimesteps(), plantLife: cfg.PlantLife()}, nil
}

// Inputs implements component.Component.
func (c *IronDRICost) Inputs() []component.Port {
	return []component.Port{
		component.Scalar("plant_capacity_tpy", "t/year", 0, ""),
		component.Series("pig_iron_out", "t/h", c.n, ""),
	}
}

// Outputs implements component.Component.
func (c *IronDRICost) Outputs() []component.Port {
	return technology.CostOutputs(c.plantLife)
}

// Compute implements component.Component.
func (c *IronDRICost) Compute(ctx context.Context, in, out component.Vector) error {
	capacity := in.Scalar("plant_capacity_tpy")
	capex := c.cfg.CapexCoeff * math.Pow(capacity, c.cfg.CapexExponent)
	labor := c.cfg.LaborHoursPerTonne * capacity * (c.cfg.SkilledLaborCost + c.cfg.UnskilledLaborCost) / 2
	fixed := c.cfg.PropertyTaxFraction*capex + labor
	varOpEx := c.cfg.VarOMPerTonne * annualTotal(in.Get("pig_iron_out"))
	technology.SetCosts(out, capex, fixed, varOpEx, c.cfg.Year(2022))
	return nil
}
