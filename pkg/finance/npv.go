package finance

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gonum.org/v1/gonum/floats"

	"github.com/h2integrate/h2integrate/pkg/component"
	"github.com/h2integrate/h2integrate/pkg/config"
	"github.com/h2integrate/h2integrate/pkg/technology"
)

type npvConfig struct {
	DiscountRate       float64 `yaml:"discount_rate" required:"true"`
	CommoditySellPrice float64 `yaml:"commodity_sell_price"`
	PlantLife          int     `yaml:"plant_life"`

	SaveCostBreakdown            bool   `yaml:"save_cost_breakdown"`
	SaveNPVBreakdown             bool   `yaml:"save_npv_breakdown"`
	CostBreakdownFileDescription string `yaml:"cost_breakdown_file_description"`
}

// NPV is the net present value of selling a commodity at a fixed price.
// Year 0 holds the capital costs and years 1 to plant life the income less
// operating costs. Costs are negative.
type NPV struct {
	cfg       npvConfig
	commodity string
	metric    string
	desc      string
	techs     []string
	items     map[string]capitalItem
	life      int
	outDir    string
}

// NewNPV builds npv.
func NewNPV(cfg technology.FinanceConfig) (component.Component, error) {
	c := npvConfig{CostBreakdownFileDescription: "default"}
	if err := config.Decode(cfg.ModelInputs, &c); err != nil {
		return nil, fmt.Errorf("npv: %w", err)
	}
	life := cfg.PlantLife()
	if err := checkPlantLife(c.PlantLife, life); err != nil {
		return nil, err
	}
	if c.DiscountRate < 0 || c.DiscountRate > 1 {
		return nil, fmt.Errorf("npv: discount_rate must be between 0 and 1, got %v", c.DiscountRate)
	}
	if cfg.Techs.Len() == 0 {
		return nil, errNoTechs
	}
	items, err := capitalItems(cfg)
	if err != nil {
		return nil, err
	}
	return &NPV{
		cfg:       c,
		commodity: cfg.Commodity,
		metric:    NPVName(cfg.Commodity, cfg.Description),
		desc:      cfg.Description,
		techs:     cfg.Techs.Keys,
		items:     items,
		life:      life,
		outDir:    cfg.OutputDir,
	}, nil
}

// Inputs implements component.Component.
func (n *NPV) Inputs() []component.Port {
	ports := []component.Port{
		component.Scalar(ProducedName(n.commodity), ProductionUnits(n.commodity), 0, ""),
		component.Scalar("commodity_sell_price", PriceUnits(n.commodity), n.cfg.CommoditySellPrice, ""),
	}
	return append(ports, techInputs(n.techs, n.life)...)
}

// Outputs implements component.Component.
func (n *NPV) Outputs() []component.Port {
	return []component.Port{component.Scalar(n.metric, "USD", 0, "Net present value")}
}

// cashFlow is one named line of the yearly cash flow, indexed from year 0.
type cashFlow struct {
	name string
	vals []float64
}

func (n *NPV) cashFlows(in component.Vector) []cashFlow {
	income := in.Scalar("commodity_sell_price") * in.Scalar(ProducedName(n.commodity))
	flows := []cashFlow{{name: "Cash Inflow of Selling " + n.commodity, vals: n.years(income)}}
	for _, t := range n.techs {
		capex := in.Scalar("capex_adjusted_" + t)

		capexFlow := make([]float64, n.life+1)
		capexFlow[0] = -capex
		varFlow := make([]float64, n.life+1)
		if v := in.Get("varopex_adjusted_" + t); len(v) == n.life {
			copy(varFlow[1:], v)
			floats.Scale(-1, varFlow)
		}
		flows = append(flows,
			cashFlow{name: t + ": capital cost", vals: capexFlow},
			cashFlow{name: t + ": fixed o&m", vals: n.years(-in.Scalar("opex_adjusted_" + t))},
			cashFlow{name: t + ": variable o&m", vals: varFlow},
		)

		item := n.items[t]
		if item.ReplacementCostPercent == nil && len(item.Refurb) == 0 {
			continue
		}
		// the schedule starts at year 0
		refurb := item.refurbSchedule(n.life, in.Scalar(ReplacementInput(t)))
		floats.Scale(-capex, refurb)
		flows = append(flows, cashFlow{name: t + ": replacement cost", vals: refurb})
	}
	return flows
}

// years returns v in every operating year.
func (n *NPV) years(v float64) []float64 {
	out := make([]float64, n.life+1)
	for i := 1; i <= n.life; i++ {
		out[i] = v
	}
	return out
}

// npv discounts vals from year 0.
func npv(rate float64, vals []float64) float64 {
	var sum float64
	for t, v := range vals {
		sum += v * discount(rate, t)
	}
	return sum
}

// Compute implements component.Component.
func (n *NPV) Compute(ctx context.Context, in, out component.Vector) error {
	flows := n.cashFlows(in)
	var total float64
	values := make([]float64, len(flows))
	for i, f := range flows {
		values[i] = npv(n.cfg.DiscountRate, f.vals)
		total += values[i]
	}
	out.SetScalar(n.metric, total)

	if n.cfg.SaveCostBreakdown {
		if err := n.writeCostBreakdown(flows); err != nil {
			return err
		}
	}
	if n.cfg.SaveNPVBreakdown {
		if err := n.writeNPVBreakdown(flows, values, total); err != nil {
			return err
		}
	}
	return nil
}

func (n *NPV) filename(suffix string) string {
	base := n.cfg.CostBreakdownFileDescription + "_" + n.commodity
	if d := cleanDesc(n.desc); d != "" && d != n.commodity {
		base += "_" + d
	}
	return filepath.Join(n.outDir, base+"_NPVFinance_"+suffix+".csv")
}

func (n *NPV) writeCostBreakdown(flows []cashFlow) error {
	rows := [][]string{{"year"}}
	for _, f := range flows {
		rows[0] = append(rows[0], f.name)
	}
	for y := 0; y <= n.life; y++ {
		row := []string{strconv.Itoa(y)}
		for _, f := range flows {
			var v float64
			if y < len(f.vals) {
				v = f.vals[y]
			}
			row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
		}
		rows = append(rows, row)
	}
	return writeCSV(n.filename("cost_breakdown"), rows)
}

func (n *NPV) writeNPVBreakdown(flows []cashFlow, values []float64, total float64) error {
	rows := [][]string{{"", "NPV (USD)"}}
	for i, f := range flows {
		rows = append(rows, []string{f.name, strconv.FormatFloat(values[i], 'g', -1, 64)})
	}
	rows = append(rows, []string{"Total", strconv.FormatFloat(total, 'g', -1, 64)})
	return writeCSV(n.filename("NPV_breakdown"), rows)
}

func writeCSV(path string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
