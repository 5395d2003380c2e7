package models

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/h2integrate/h2integrate/pkg/component"
	"github.com/h2integrate/h2integrate/pkg/technology"
	"github.com/h2integrate/h2integrate/pkg/units"
)

// methanolLHV is the lower heating value of the natural gas feed in GJ/kg.
const methanolLHV = 0.0201

// gjPerMMBtu converts natural gas energy to the unit it is priced in.
const gjPerMMBtu = 1.055

type methanolPerformanceConfig struct {
	PlantCapacityKgpy float64 `yaml:"plant_capacity_kgpy"`
	CapacityFactor    float64 `yaml:"capacity_factor"`

	// Ratios are per kg of methanol.
	CO2eEmitRatio     float64 `yaml:"co2e_emit_ratio"`
	H2OConsumeRatio   float64 `yaml:"h2o_consume_ratio"`
	H2ConsumeRatio    float64 `yaml:"h2_consume_ratio"`
	CO2ConsumeRatio   float64 `yaml:"co2_consume_ratio"`
	ElecConsumeRatio  float64 `yaml:"elec_consume_ratio"`
	SynCatConsumeRate float64 `yaml:"meoh_syn_cat_consume_ratio"`
	ATRCatConsumeRate float64 `yaml:"meoh_atr_cat_consume_ratio"`
	LNGConsumeRatio   float64 `yaml:"lng_consume_ratio"`
	ElecProduceRatio  float64 `yaml:"elec_produce_ratio"`
}

// MethanolSMRPerformance is a steam methane reforming methanol plant that
// runs flat at its capacity factor. Feedstock use and co-product electricity
// follow from fixed ratios per kg of methanol.
type MethanolSMRPerformance struct {
	cfg methanolPerformanceConfig
	n   int
}

// NewMethanolSMRPerformance builds smr_methanol_performance.
func NewMethanolSMRPerformance(cfg technology.Config) (component.Component, error) {
	var c methanolPerformanceConfig
	if err := cfg.Decode("performance", &c); err != nil {
		return nil, err
	}
	if c.PlantCapacityKgpy == 0 {
		c.PlantCapacityKgpy = 1e8
	}
	if c.CapacityFactor == 0 {
		c.CapacityFactor = 0.85
	}
	if c.PlantCapacityKgpy < 0 {
		return nil, fmt.Errorf("%s: plant_capacity_kgpy must be positive", cfg.Name)
	}
	if c.CapacityFactor < 0 || c.CapacityFactor > 1 {
		return nil, fmt.Errorf("%s: capacity_factor must be in [0, 1]", cfg.Name)
	}
	for name, v := range map[string]float64{
		"co2e_emit_ratio":            c.CO2eEmitRatio,
		"h2o_consume_ratio":          c.H2OConsumeRatio,
		"h2_consume_ratio":           c.H2ConsumeRatio,
		"co2_consume_ratio":          c.CO2ConsumeRatio,
		"elec_consume_ratio":         c.ElecConsumeRatio,
		"meoh_syn_cat_consume_ratio": c.SynCatConsumeRate,
		"meoh_atr_cat_consume_ratio": c.ATRCatConsumeRate,
		"lng_consume_ratio":          c.LNGConsumeRatio,
		"elec_produce_ratio":         c.ElecProduceRatio,
	} {
		if v < 0 {
			return nil, fmt.Errorf("%s: %s must not be negative", cfg.Name, name)
		}
	}
	return &MethanolSMRPerformance{cfg: c, n: cfg.NTimesteps()}, nil
}

// Inputs implements component.Component.
func (m *MethanolSMRPerformance) Inputs() []component.Port {
	return nil
}

// Outputs implements component.Component.
func (m *MethanolSMRPerformance) Outputs() []component.Port {
	return []component.Port{
		component.Series("methanol_out", "kg/h", m.n, ""),
		component.Series("co2e_emissions", "kg/h", m.n, ""),
		component.Series("water_consumed", "kg/h", m.n, ""),
		component.Series("hydrogen_consumed", "kg/h", m.n, ""),
		component.Series("co2_consumed", "kg/h", m.n, ""),
		component.Series("electricity_consumed", "kW", m.n, ""),
		component.Series("natural_gas_consumed", "kg/h", m.n, "LNG feed"),
		component.Series("electricity_out", "kW", m.n, "Electricity exported by the plant"),
		component.Scalar("meoh_syn_cat_consumption", "ft**3/year", 0, "Synthesis catalyst used"),
		component.Scalar("meoh_atr_cat_consumption", "ft**3/year", 0, "Autothermal reformer catalyst used"),
		component.Scalar("total_methanol_produced", "kg/year", 0, ""),
		component.Scalar("plant_capacity_kgpy", "kg/year", 0, "Nameplate methanol capacity"),
		component.Scalar("capacity_factor", "unitless", 0, ""),
	}
}

// Compute implements component.Component.
func (m *MethanolSMRPerformance) Compute(ctx context.Context, in, out component.Vector) error {
	kgph := m.cfg.PlantCapacityKgpy * m.cfg.CapacityFactor / units.HoursPerYear
	meoh := make([]float64, m.n)
	for i := range meoh {
		meoh[i] = kgph
	}
	scaled := func(k float64) []float64 {
		s := make([]float64, len(meoh))
		floats.ScaleTo(s, k, meoh)
		return s
	}
	annual := annualTotal(meoh)

	out.Set("methanol_out", meoh)
	out.Set("co2e_emissions", scaled(m.cfg.CO2eEmitRatio))
	out.Set("water_consumed", scaled(m.cfg.H2OConsumeRatio))
	out.Set("hydrogen_consumed", scaled(m.cfg.H2ConsumeRatio))
	out.Set("co2_consumed", scaled(m.cfg.CO2ConsumeRatio))
	out.Set("electricity_consumed", scaled(m.cfg.ElecConsumeRatio))
	out.Set("natural_gas_consumed", scaled(m.cfg.LNGConsumeRatio))
	out.Set("electricity_out", scaled(m.cfg.ElecProduceRatio))
	out.SetScalar("meoh_syn_cat_consumption", annual*m.cfg.SynCatConsumeRate)
	out.SetScalar("meoh_atr_cat_consumption", annual*m.cfg.ATRCatConsumeRate)
	out.SetScalar("total_methanol_produced", annual)
	out.SetScalar("plant_capacity_kgpy", m.cfg.PlantCapacityKgpy)
	out.SetScalar("capacity_factor", capacityFactor(meoh, m.cfg.PlantCapacityKgpy/units.HoursPerYear))
	return nil
}

type methanolCostConfig struct {
	// TOCPerKgpy is the total overnight cost per kg/year of capacity.
	TOCPerKgpy float64 `yaml:"toc_kg_y" required:"true"`
	// FOCPerKgpy is the fixed operating cost per kg/year of capacity, each year.
	FOCPerKgpy float64 `yaml:"foc_kg_y2" required:"true"`
	// VOCPerKg includes catalyst replacement.
	VOCPerKg       float64 `yaml:"voc_kg" required:"true"`
	SynCatPrice    float64 `yaml:"meoh_syn_cat_price"`
	ATRCatPrice    float64 `yaml:"meoh_atr_cat_price"`
	LNGPrice       float64 `yaml:"lng_price"`
	ElecSalesPrice float64 `yaml:"elec_sales_price"`

	technology.CostYear `yaml:",inline"`
}

// MethanolSMRCost prices the SMR methanol plant. Natural gas is bought at
// lng_price in USD/MMBtu and exported electricity is credited against the
// variable cost.
type MethanolSMRCost struct {
	cfg       methanolCostConfig
	n         int
	plantLife int
}

// NewMethanolSMRCost builds smr_methanol_cost.
func NewMethanolSMRCost(cfg technology.Config) (component.Component, error) {
	var c methanolCostConfig
	if err := cfg.Decode("cost", &c); err != nil {
		return nil, err
	}
	return &MethanolSMRCost{cfg: c, n: cfg.NTimesteps(), plantLife: cfg.PlantLife()}, nil
}

// Inputs implements component.Component.
func (m *MethanolSMRCost) Inputs() []component.Port {
	return []component.Port{
		component.Scalar("plant_capacity_kgpy", "kg/year", 0, ""),
		component.Series("methanol_out", "kg/h", m.n, ""),
		component.Series("natural_gas_consumed", "kg/h", m.n, ""),
		component.Series("electricity_out", "kW", m.n, ""),
		component.Scalar("meoh_syn_cat_consumption", "ft**3/year", 0, ""),
		component.Scalar("meoh_atr_cat_consumption", "ft**3/year", 0, ""),
	}
}

// Outputs implements component.Component.
func (m *MethanolSMRCost) Outputs() []component.Port {
	return append(technology.CostOutputs(m.plantLife),
		component.Scalar("Fixed_OpEx", "USD/year", 0, ""),
		component.Scalar("Variable_OpEx", "USD/year", 0, "Operating cost that scales with production"),
		component.Scalar("meoh_syn_cat_cost", "USD/year", 0, ""),
		component.Scalar("meoh_atr_cat_cost", "USD/year", 0, ""),
		component.Scalar("lng_cost", "USD/year", 0, ""),
		component.Scalar("elec_revenue", "USD/year", 0, ""),
	)
}

// Compute implements component.Component.
func (m *MethanolSMRCost) Compute(ctx context.Context, in, out component.Vector) error {
	capacity := in.Scalar("plant_capacity_kgpy")
	capex := capacity * m.cfg.TOCPerKgpy
	fixed := capacity * m.cfg.FOCPerKgpy
	variable := annualTotal(in.Get("methanol_out")) * m.cfg.VOCPerKg

	lng := annualTotal(in.Get("natural_gas_consumed")) * methanolLHV / gjPerMMBtu * m.cfg.LNGPrice
	rev := annualTotal(in.Get("electricity_out")) * m.cfg.ElecSalesPrice

	out.SetScalar("Fixed_OpEx", fixed)
	out.SetScalar("Variable_OpEx", variable)
	out.SetScalar("meoh_syn_cat_cost", in.Scalar("meoh_syn_cat_consumption")*m.cfg.SynCatPrice)
	out.SetScalar("meoh_atr_cat_cost", in.Scalar("meoh_atr_cat_consumption")*m.cfg.ATRCatPrice)
	out.SetScalar("lng_cost", lng)
	out.SetScalar("elec_revenue", rev)
	technology.SetCosts(out, capex, fixed, variable+lng-rev, m.cfg.Year(2022))
	return nil
}
