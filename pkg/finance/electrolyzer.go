package finance

import (
	"context"
	"fmt"

	"github.com/h2integrate/h2integrate/pkg/component"
	"github.com/h2integrate/h2integrate/pkg/config"
	"github.com/h2integrate/h2integrate/pkg/technology"
)

type electrolyzerFinancialConfig struct {
	DiscountRate float64        `yaml:"discount_rate" required:"true"`
	CapitalItems capitalItem    `yaml:"capital_items"`
	FixedCosts   map[string]any `yaml:"fixed_costs"`
}

// ElectrolyzerFinancial is the levelized cost of hydrogen of one electrolyzer
// from its own cost and production, without the rest of the plant.
type ElectrolyzerFinancial struct {
	cfg  electrolyzerFinancialConfig
	life int
}

// NewElectrolyzerFinancial builds pem_electrolyzer_financial.
func NewElectrolyzerFinancial(cfg technology.Config) (component.Component, error) {
	m, err := cfg.Inputs(technology.RoleFinancial)
	if err != nil {
		return nil, err
	}
	var c electrolyzerFinancialConfig
	if err := config.DecodeLoose(m, &c); err != nil {
		return nil, fmt.Errorf("%s financial parameters: %w", cfg.Name, err)
	}
	if c.DiscountRate < 0 || c.DiscountRate > 1 {
		return nil, fmt.Errorf("%s: discount_rate must be between 0 and 1, got %v", cfg.Name, c.DiscountRate)
	}
	return &ElectrolyzerFinancial{cfg: c, life: cfg.PlantLife()}, nil
}

// Inputs implements component.Component.
func (e *ElectrolyzerFinancial) Inputs() []component.Port {
	return []component.Port{
		component.Scalar("CapEx", "USD", 0, ""),
		component.Scalar("OpEx", "USD/year", 0, ""),
		component.Series("VarOpEx", "USD/year", e.life, ""),
		component.Scalar("total_hydrogen_produced", "kg/year", 0, ""),
		component.Scalar("time_until_replacement", "h", 0, ""),
	}
}

// Outputs implements component.Component.
func (e *ElectrolyzerFinancial) Outputs() []component.Port {
	return []component.Port{component.Scalar("LCOH", "USD/kg", 0, "Levelized cost of hydrogen from the electrolyzer alone")}
}

// Compute implements component.Component.
func (e *ElectrolyzerFinancial) Compute(ctx context.Context, in, out component.Vector) error {
	capex := in.Scalar("CapEx")
	opex := in.Scalar("OpEx")
	varOpEx := in.Get("VarOpEx")
	refurb := e.cfg.CapitalItems.refurbSchedule(e.life, in.Scalar("time_until_replacement"))
	annual := in.Scalar("total_hydrogen_produced")

	var production, spend float64
	for y := range e.life {
		d := discount(e.cfg.DiscountRate, y)
		cost := opex + capex*refurb[y]
		if y < len(varOpEx) {
			cost += varOpEx[y]
		}
		production += annual * d
		spend += cost * d
	}
	var lcoh float64
	if production > 0 {
		lcoh = (capex + spend) / production
	}
	out.SetScalar("LCOH", lcoh)
	return nil
}
