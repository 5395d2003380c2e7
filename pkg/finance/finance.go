// Package finance holds the plant level finance models. They read the
// escalated costs of every technology in a finance subgroup together with the
// commodity produced and report levelized costs and net present values.
package finance

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/h2integrate/h2integrate/pkg/component"
	"github.com/h2integrate/h2integrate/pkg/config"
	"github.com/h2integrate/h2integrate/pkg/technology"
	"github.com/h2integrate/h2integrate/pkg/types"
)

// RegisterAll adds the finance models to m. pem_electrolyzer_financial and
// smr_methanol_financial are technology models, each finances one plant by
// itself.
func RegisterAll(m *technology.Map) {
	m.RegisterFinance("simple_lco", NewSimpleLCO)
	m.RegisterFinance("npv", NewNPV)
	m.RegisterFinance("profast_lco", NewCashFlowLCO)
	m.RegisterFinance("ProFastComp", NewCashFlowLCO)
	m.RegisterFinance("profast_npv", NewCashFlowNPV)
	m.RegisterFinance("ProFastNPV", NewCashFlowNPV)

	m.Register("pem_electrolyzer_financial", NewElectrolyzerFinancial)
	m.Register("smr_methanol_financial", NewMethanolFinancial)
}

// MetricName is the output a levelized cost model writes for commodity,
// e.g. LCOH or LCOE_grid.
func MetricName(commodity, desc string) string {
	name := "LCO"
	if commodity != "" {
		name += strings.ToUpper(commodity[:1])
	}
	if d := cleanDesc(desc); d != "" {
		name += "_" + d
	}
	return name
}

// NPVName is the output the npv model writes for commodity.
func NPVName(commodity, desc string) string {
	c := strings.ToLower(commodity)
	if d := cleanDesc(desc); d != "" {
		d = strings.Trim(strings.ReplaceAll(d, c, ""), "_()-")
		if d != "" {
			return c + "_" + d + "_NPV"
		}
	}
	return c + "_NPV"
}

func cleanDesc(desc string) string {
	return strings.Trim(strings.TrimSpace(desc), "_()-")
}

// outputText names the extra outputs of a levelized cost model.
func outputText(commodity, desc string) string {
	c := strings.ToLower(commodity)
	if d := cleanDesc(desc); d != "" {
		return c + "_" + d
	}
	return c
}

// ProductionUnits are the units of total_{commodity}_produced.
func ProductionUnits(commodity string) string {
	if commodity == "electricity" {
		return "kW*h/year"
	}
	return "kg/year"
}

// PriceUnits are the units of a levelized cost or sell price of commodity.
func PriceUnits(commodity string) string {
	if commodity == "electricity" {
		return "USD/kW/h"
	}
	return "USD/kg"
}

// ProducedName is the finance input for the annual production.
func ProducedName(commodity string) string {
	return "total_" + commodity + "_produced"
}

// IncludedTechs filters techs down to the ones listed for metric in
// technologies_included_in_metrics. A listed tech that is not in techs is an
// error.
func IncludedTechs(techs []string, fp *types.FinanceParameters, metric string) ([]string, error) {
	if fp == nil || fp.TechnologiesIncludedInMetrics == nil {
		return techs, nil
	}
	listed, ok := fp.TechnologiesIncludedInMetrics[metric]
	if !ok {
		return techs, nil
	}
	have := make(map[string]bool, len(techs))
	for _, t := range techs {
		have[t] = true
	}
	var out []string
	for _, t := range listed {
		if !have[t] {
			return nil, fmt.Errorf("technologies_included_in_metrics for %s names unknown technology %q", metric, t)
		}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("technologies_included_in_metrics for %s is empty", metric)
	}
	return out, nil
}

var errNoTechs = errors.New("no technologies to finance")

// capitalItem is a tech's financial_parameters.capital_items.
type capitalItem struct {
	DeprType                 string   `yaml:"depr_type"`
	DeprPeriod               int      `yaml:"depr_period"`
	ReplacementCostPercent   *float64 `yaml:"replacement_cost_percent"`
	RefurbishmentPeriodYears *int     `yaml:"refurbishment_period_years"`
	// Refurb is an explicit per-year schedule as a fraction of capex.
	Refurb []float64 `yaml:"refurb"`
}

// capitalItems decodes the capital items of every tech in cfg.
func capitalItems(cfg technology.FinanceConfig) (map[string]capitalItem, error) {
	out := make(map[string]capitalItem, cfg.Techs.Len())
	for _, name := range cfg.Techs.Keys {
		tc := cfg.Techs.Values[name]
		var ci capitalItem
		if err := config.DecodeLoose(tc.CapitalItems(), &ci); err != nil {
			return nil, fmt.Errorf("%s capital_items: %w", name, err)
		}
		out[name] = ci
	}
	return out, nil
}

// refurbSchedule returns the fraction of capex spent on replacements in each
// of life years. The period comes from refurbishment_period_years or from the
// hours until replacement. A zero period means no replacements.
func (c capitalItem) refurbSchedule(life int, hoursUntilReplacement float64) []float64 {
	out := make([]float64, life)
	if len(c.Refurb) > 0 {
		copy(out, c.Refurb)
		return out
	}
	if c.ReplacementCostPercent == nil {
		return out
	}
	var period int
	if c.RefurbishmentPeriodYears != nil {
		period = *c.RefurbishmentPeriodYears
	} else {
		period = int(math.Round(hoursUntilReplacement / (24 * 365)))
	}
	if period <= 0 {
		return out
	}
	for y := period; y < life; y += period {
		out[y] = *c.ReplacementCostPercent
	}
	return out
}

// ReplacementInput is the finance input for a tech's stack life, when the
// tech reports one.
func ReplacementInput(tech string) string {
	return tech + "_time_until_replacement"
}

// discount returns 1/(1+r)^y.
func discount(r float64, y int) float64 {
	return math.Pow(1+r, -float64(y))
}

// techInputs are the escalated cost inputs of every financed tech.
func techInputs(techs []string, life int) []component.Port {
	ports := make([]component.Port, 0, 4*len(techs))
	for _, t := range techs {
		ports = append(ports,
			component.Scalar("capex_adjusted_"+t, "USD", 0, ""),
			component.Scalar("opex_adjusted_"+t, "USD/year", 0, ""),
			component.Series("varopex_adjusted_"+t, "USD/year", life, ""),
			component.Scalar(ReplacementInput(t), "h", 0, "Zero when the technology has no replacements"),
		)
	}
	return ports
}

// costs are the summed yearly costs of the financed techs.
type costs struct {
	capex float64
	opex  float64
	// varOpEx and refurb are per operating year, refurb in USD.
	varOpEx []float64
	refurb  []float64
}

func sumCosts(techs []string, items map[string]capitalItem, life int, in component.Vector) costs {
	c := costs{
		varOpEx: make([]float64, life),
		refurb:  make([]float64, life),
	}
	for _, t := range techs {
		capex := in.Scalar("capex_adjusted_" + t)
		c.capex += capex
		c.opex += in.Scalar("opex_adjusted_" + t)
		if v := in.Get("varopex_adjusted_" + t); len(v) == life {
			floats.Add(c.varOpEx, v)
		}
		sched := items[t].refurbSchedule(life, in.Scalar(ReplacementInput(t)))
		floats.AddScaled(c.refurb, capex, sched)
	}
	return c
}
