package finance

import (
	"context"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/h2integrate/h2integrate/pkg/component"
	"github.com/h2integrate/h2integrate/pkg/units"
)

// AdjustedCapexOpex escalates every technology's costs from the dollar year
// the cost model reports to the plant cost year.
type AdjustedCapexOpex struct {
	techs     []string
	costYear  int
	inflation float64
	life      int
}

// NewAdjustedCapexOpex returns the adjusted_capex_opex component for techs.
func NewAdjustedCapexOpex(techs []string, costYear int, inflation float64, plantLife int) *AdjustedCapexOpex {
	return &AdjustedCapexOpex{
		techs:     techs,
		costYear:  costYear,
		inflation: inflation,
		life:      max(plantLife, 1),
	}
}

// Inputs implements component.Component.
func (a *AdjustedCapexOpex) Inputs() []component.Port {
	ports := make([]component.Port, 0, 4*len(a.techs))
	for _, t := range a.techs {
		ports = append(ports,
			component.Scalar("capex_"+t, "USD", 0, ""),
			component.Scalar("opex_"+t, "USD/year", 0, ""),
			component.Series("varopex_"+t, "USD/year", a.life, ""),
			component.Scalar("cost_year_"+t, "", float64(a.costYear), ""),
		)
	}
	return ports
}

// Outputs implements component.Component.
func (a *AdjustedCapexOpex) Outputs() []component.Port {
	ports := make([]component.Port, 0, 3*len(a.techs)+2)
	for _, t := range a.techs {
		ports = append(ports,
			component.Scalar("capex_adjusted_"+t, "USD", 0, ""),
			component.Scalar("opex_adjusted_"+t, "USD/year", 0, ""),
			component.Series("varopex_adjusted_"+t, "USD/year", a.life, ""),
		)
	}
	return append(ports,
		component.Scalar("total_capex_adjusted", "USD", 0, ""),
		component.Scalar("total_opex_adjusted", "USD/year", 0, ""),
	)
}

// Compute implements component.Component.
func (a *AdjustedCapexOpex) Compute(ctx context.Context, in, out component.Vector) error {
	var capex, opex float64
	for _, t := range a.techs {
		year := in.Scalar("cost_year_" + t)
		if year <= 0 {
			year = float64(a.costYear)
		}
		f := math.Pow(1+a.inflation, float64(a.costYear)-year)

		c := in.Scalar("capex_"+t) * f
		o := in.Scalar("opex_"+t) * f
		v := append([]float64(nil), in.Get("varopex_"+t)...)
		floats.Scale(f, v)

		out.SetScalar("capex_adjusted_"+t, c)
		out.SetScalar("opex_adjusted_"+t, o)
		out.Set("varopex_adjusted_"+t, v)
		capex += c
		opex += o
	}
	out.SetScalar("total_capex_adjusted", capex)
	out.SetScalar("total_opex_adjusted", opex)
	return nil
}

// ElectricitySum totals the electricity of the producing technologies in a
// finance subgroup.
type ElectricitySum struct {
	techs []string
	n     int
}

// NewElectricitySum returns the electricity_sum component.
func NewElectricitySum(techs []string, nTimesteps int) *ElectricitySum {
	return &ElectricitySum{techs: techs, n: nTimesteps}
}

// Inputs implements component.Component.
func (e *ElectricitySum) Inputs() []component.Port {
	ports := make([]component.Port, len(e.techs))
	for i, t := range e.techs {
		ports[i] = component.Series("electricity_"+t, "kW", e.n, "")
	}
	return ports
}

// Outputs implements component.Component.
func (e *ElectricitySum) Outputs() []component.Port {
	return []component.Port{component.Scalar("total_electricity_produced", "kW*h/year", 0, "")}
}

// Compute implements component.Component. The hourly kW values of the
// simulation are scaled to one year.
func (e *ElectricitySum) Compute(ctx context.Context, in, out component.Vector) error {
	var total float64
	for _, t := range e.techs {
		total += floats.Sum(in.Get("electricity_" + t))
	}
	if e.n > 0 {
		total *= units.HoursPerYear / float64(e.n)
	}
	out.SetScalar("total_electricity_produced", total)
	return nil
}
