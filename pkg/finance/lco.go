package finance

import (
	"context"
	"fmt"

	"github.com/h2integrate/h2integrate/pkg/component"
	"github.com/h2integrate/h2integrate/pkg/config"
	"github.com/h2integrate/h2integrate/pkg/technology"
)

type simpleLCOConfig struct {
	DiscountRate float64 `yaml:"discount_rate" required:"true"`
	PlantLife    int     `yaml:"plant_life"`
}

// SimpleLCO is the discounted lifetime cost over the discounted lifetime
// production of a commodity.
type SimpleLCO struct {
	commodity string
	metric    string
	text      string
	techs     []string
	items     map[string]capitalItem
	rate      float64
	life      int
}

// NewSimpleLCO builds simple_lco.
func NewSimpleLCO(cfg technology.FinanceConfig) (component.Component, error) {
	var c simpleLCOConfig
	if err := config.Decode(cfg.ModelInputs, &c); err != nil {
		return nil, fmt.Errorf("simple_lco: %w", err)
	}
	life := cfg.PlantLife()
	if err := checkPlantLife(c.PlantLife, life); err != nil {
		return nil, err
	}
	if c.DiscountRate < 0 || c.DiscountRate > 1 {
		return nil, fmt.Errorf("simple_lco: discount_rate must be between 0 and 1, got %v", c.DiscountRate)
	}
	if cfg.Techs.Len() == 0 {
		return nil, errNoTechs
	}
	items, err := capitalItems(cfg)
	if err != nil {
		return nil, err
	}
	return &SimpleLCO{
		commodity: cfg.Commodity,
		metric:    MetricName(cfg.Commodity, cfg.Description),
		text:      outputText(cfg.Commodity, cfg.Description),
		techs:     cfg.Techs.Keys,
		items:     items,
		rate:      c.DiscountRate,
		life:      life,
	}, nil
}

func checkPlantLife(given, life int) error {
	if given != 0 && given != life {
		return fmt.Errorf("plant_life %d in the finance inputs does not match plant.plant_life %d", given, life)
	}
	return nil
}

// Inputs implements component.Component.
func (s *SimpleLCO) Inputs() []component.Port {
	return append(
		[]component.Port{component.Scalar(ProducedName(s.commodity), ProductionUnits(s.commodity), 0, "")},
		techInputs(s.techs, s.life)...,
	)
}

// Outputs implements component.Component.
func (s *SimpleLCO) Outputs() []component.Port {
	return []component.Port{
		component.Scalar(s.metric, PriceUnits(s.commodity), 0, "Levelized cost of "+s.commodity),
		component.Scalar("total_capital_cost_"+s.text, "USD", 0, ""),
		component.Series("annual_fixed_costs_"+s.text, "USD", s.life, ""),
		component.Series("annual_replacement_costs_"+s.text, "USD", s.life, ""),
	}
}

// Compute implements component.Component. Nothing produced gives a cost of
// zero.
func (s *SimpleLCO) Compute(ctx context.Context, in, out component.Vector) error {
	annual := in.Scalar(ProducedName(s.commodity))
	c := sumCosts(s.techs, s.items, s.life, in)

	fixed := make([]float64, s.life)
	var production, spend float64
	for y := range s.life {
		d := discount(s.rate, y)
		fixed[y] = c.opex + c.varOpEx[y]
		production += annual * d
		spend += (fixed[y] + c.refurb[y]) * d
	}
	var lco float64
	if production > 0 {
		lco = (c.capex + spend) / production
	}
	out.SetScalar(s.metric, lco)
	out.SetScalar("total_capital_cost_"+s.text, c.capex)
	out.Set("annual_fixed_costs_"+s.text, fixed)
	out.Set("annual_replacement_costs_"+s.text, c.refurb)
	return nil
}
