package finance

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/h2integrate/h2integrate/pkg/component"
	"github.com/h2integrate/h2integrate/pkg/config"
	"github.com/h2integrate/h2integrate/pkg/technology"
)

// CashFlowLCO finds the commodity price where the after-tax equity cash flow
// of the plant breaks even at the discount rate.
type CashFlowLCO struct {
	model     *cashFlowModel
	inputs    cashFlowInputs
	commodity string
	metric    string
	text      string
	outDir    string
}

func decodeCashFlow(cfg technology.FinanceConfig, name string) (*cashFlowModel, cashFlowInputs, error) {
	var in cashFlowInputs
	if err := config.Decode(cfg.ModelInputs, &in); err != nil {
		return nil, in, fmt.Errorf("%s: %w", name, err)
	}
	if cfg.Techs.Len() == 0 {
		return nil, in, errNoTechs
	}
	m, err := newCashFlowModel(cfg, in)
	if err != nil {
		return nil, in, fmt.Errorf("%s: %w", name, err)
	}
	if in.ProfastOutputDescription == "" {
		in.ProfastOutputDescription = "ProFastComp"
	}
	return m, in, nil
}

// NewCashFlowLCO builds profast_lco.
func NewCashFlowLCO(cfg technology.FinanceConfig) (component.Component, error) {
	m, in, err := decodeCashFlow(cfg, "profast_lco")
	if err != nil {
		return nil, err
	}
	return &CashFlowLCO{
		model:     m,
		inputs:    in,
		commodity: cfg.Commodity,
		metric:    MetricName(cfg.Commodity, cfg.Description),
		text:      outputText(cfg.Commodity, cfg.Description),
		outDir:    cfg.OutputDir,
	}, nil
}

// Inputs implements component.Component.
func (c *CashFlowLCO) Inputs() []component.Port {
	return append(
		[]component.Port{component.Scalar(ProducedName(c.commodity), ProductionUnits(c.commodity), 0, "")},
		techInputs(c.model.techs, c.model.life)...,
	)
}

// Outputs implements component.Component.
func (c *CashFlowLCO) Outputs() []component.Port {
	price := PriceUnits(c.commodity)
	return []component.Port{
		component.Scalar(c.metric, price, 0, "Levelized cost of "+c.commodity),
		component.Scalar("price_"+c.text, price, 0, "Break-even price in the first year"),
		component.Scalar("wacc_"+c.text, "unitless", 0, "After-tax weighted average cost of capital"),
		component.Scalar("crf_"+c.text, "unitless", 0, "Capital recovery factor"),
		component.Scalar("investor_payback_period_"+c.text, "year", 0, ""),
	}
}

// Compute implements component.Component.
func (c *CashFlowLCO) Compute(ctx context.Context, in, out component.Vector) error {
	price := c.model.breakEven(in, c.commodity)
	lines, total := c.model.flows(price, in, c.commodity)

	out.SetScalar(c.metric, price)
	out.SetScalar("price_"+c.text, price)
	out.SetScalar("wacc_"+c.text, c.model.wacc())
	out.SetScalar("crf_"+c.text, c.model.crf())
	out.SetScalar("investor_payback_period_"+c.text, c.model.payback(total))
	return c.save(lines, total)
}

func (c *CashFlowLCO) save(lines []cashFlow, total []float64) error {
	base := filepath.Join(c.outDir, c.inputs.ProfastOutputDescription+"_"+c.text)
	if c.inputs.SaveProfastConfig || c.inputs.SaveProfastToFile {
		b, err := yaml.Marshal(c.model.p)
		if err != nil {
			return fmt.Errorf("failed to encode cash flow config: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(base), 0o755); err != nil {
			return fmt.Errorf("failed to create output dir: %w", err)
		}
		if err := os.WriteFile(base+"_config.yaml", b, 0o644); err != nil {
			return fmt.Errorf("failed to write cash flow config: %w", err)
		}
	}
	if !c.inputs.SaveProfastResults {
		return nil
	}
	start := c.model.p.AnalysisStartYear
	rows := [][]string{{"line"}}
	for t := range total {
		rows[0] = append(rows[0], strconv.Itoa(start+t))
	}
	lines = append(lines, cashFlow{name: "Equity cash flow", vals: total})
	for _, ln := range lines {
		row := []string{ln.name}
		for _, v := range ln.vals {
			row = append(row, strconv.FormatFloat(v, 'f', 2, 64))
		}
		rows = append(rows, row)
	}
	return writeCSV(base+"_profast_price_breakdown.csv", rows)
}

// CashFlowNPV is the equity net present value of the plant when the
// commodity sells at sell_price.
type CashFlowNPV struct {
	model     *cashFlowModel
	commodity string
	text      string
	price     float64
}

// NewCashFlowNPV builds profast_npv. commodity_sell_price is required.
func NewCashFlowNPV(cfg technology.FinanceConfig) (component.Component, error) {
	m, in, err := decodeCashFlow(cfg, "profast_npv")
	if err != nil {
		return nil, err
	}
	if in.CommoditySellPrice == nil {
		return nil, fmt.Errorf("profast_npv: commodity_sell_price is required")
	}
	return &CashFlowNPV{
		model:     m,
		commodity: cfg.Commodity,
		text:      outputText(cfg.Commodity, cfg.Description),
		price:     *in.CommoditySellPrice,
	}, nil
}

// Inputs implements component.Component.
func (c *CashFlowNPV) Inputs() []component.Port {
	ports := []component.Port{
		component.Scalar(ProducedName(c.commodity), ProductionUnits(c.commodity), 0, ""),
		component.Scalar("sell_price_"+c.text, PriceUnits(c.commodity), c.price, ""),
	}
	return append(ports, techInputs(c.model.techs, c.model.life)...)
}

// Outputs implements component.Component.
func (c *CashFlowNPV) Outputs() []component.Port {
	return []component.Port{component.Scalar("NPV_"+c.text, "USD", 0, "Equity net present value")}
}

// Compute implements component.Component.
func (c *CashFlowNPV) Compute(ctx context.Context, in, out component.Vector) error {
	out.SetScalar("NPV_"+c.text, c.model.npv(in.Scalar("sell_price_"+c.text), in, c.commodity))
	return nil
}
