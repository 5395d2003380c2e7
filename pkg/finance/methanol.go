package finance

import (
	"context"
	"fmt"

	"github.com/h2integrate/h2integrate/pkg/component"
	"github.com/h2integrate/h2integrate/pkg/config"
	"github.com/h2integrate/h2integrate/pkg/technology"
)

type methanolFinancialConfig struct {
	// FixedChargeRate annualizes the total as-spent cost.
	FixedChargeRate float64 `yaml:"fixed_charge_rate"`
	// TASCTOCMultiplier turns total overnight cost into total as-spent cost.
	TASCTOCMultiplier float64 `yaml:"tasc_toc_multiplier"`
}

// MethanolFinancial is the levelized cost of methanol of one SMR plant,
// broken down by cost item. Capital is annualized with a fixed charge rate
// rather than discounted over the plant life.
type MethanolFinancial struct {
	cfg methanolFinancialConfig
}

// NewMethanolFinancial builds smr_methanol_financial.
func NewMethanolFinancial(cfg technology.Config) (component.Component, error) {
	m, err := cfg.Inputs(technology.RoleFinancial)
	if err != nil {
		return nil, err
	}
	var c methanolFinancialConfig
	if err := config.DecodeLoose(m, &c); err != nil {
		return nil, fmt.Errorf("%s financial parameters: %w", cfg.Name, err)
	}
	if c.FixedChargeRate == 0 {
		c.FixedChargeRate = 0.0707
	}
	if c.TASCTOCMultiplier == 0 {
		c.TASCTOCMultiplier = 1.093
	}
	if c.FixedChargeRate < 0 || c.TASCTOCMultiplier < 0 {
		return nil, fmt.Errorf("%s: fixed_charge_rate and tasc_toc_multiplier must not be negative", cfg.Name)
	}
	return &MethanolFinancial{cfg: c}, nil
}

// Inputs implements component.Component.
func (m *MethanolFinancial) Inputs() []component.Port {
	return []component.Port{
		component.Scalar("CapEx", "USD", 0, ""),
		component.Scalar("Fixed_OpEx", "USD/year", 0, ""),
		component.Scalar("Variable_OpEx", "USD/year", 0, ""),
		component.Scalar("meoh_syn_cat_cost", "USD/year", 0, ""),
		component.Scalar("meoh_atr_cat_cost", "USD/year", 0, ""),
		component.Scalar("lng_cost", "USD/year", 0, ""),
		component.Scalar("elec_revenue", "USD/year", 0, ""),
		component.Scalar("total_methanol_produced", "kg/year", 0, ""),
	}
}

// Outputs implements component.Component.
func (m *MethanolFinancial) Outputs() []component.Port {
	return []component.Port{
		component.Scalar("LCOM", "USD/kg", 0, "Levelized cost of methanol"),
		component.Scalar("LCOM_meoh", "USD/kg", 0, "Share from the plant itself, without feedstocks"),
		component.Scalar("LCOM_meoh_capex", "USD/kg", 0, ""),
		component.Scalar("LCOM_meoh_fopex", "USD/kg", 0, ""),
		component.Scalar("LCOM_meoh_vopex", "USD/kg", 0, "Variable cost other than catalyst"),
		component.Scalar("LCOM_meoh_syn_cat", "USD/kg", 0, ""),
		component.Scalar("LCOM_meoh_atr_cat", "USD/kg", 0, ""),
		component.Scalar("LCOM_ng", "USD/kg", 0, ""),
		component.Scalar("LCOM_elec", "USD/kg", 0, "Credit for exported electricity"),
	}
}

// Compute implements component.Component.
func (m *MethanolFinancial) Compute(ctx context.Context, in, out component.Vector) error {
	kg := in.Scalar("total_methanol_produced")
	per := func(usd float64) float64 {
		if kg <= 0 {
			return 0
		}
		return usd / kg
	}
	capex := per(in.Scalar("CapEx") * m.cfg.FixedChargeRate * m.cfg.TASCTOCMultiplier)
	fopex := per(in.Scalar("Fixed_OpEx"))
	syn := per(in.Scalar("meoh_syn_cat_cost"))
	atr := per(in.Scalar("meoh_atr_cat_cost"))
	// variable cost per kg already covers catalyst
	vopex := per(in.Scalar("Variable_OpEx")) - syn - atr
	ng := per(in.Scalar("lng_cost"))
	elec := -per(in.Scalar("elec_revenue"))

	meoh := capex + fopex + vopex + syn + atr
	out.SetScalar("LCOM_meoh_capex", capex)
	out.SetScalar("LCOM_meoh_fopex", fopex)
	out.SetScalar("LCOM_meoh_vopex", vopex)
	out.SetScalar("LCOM_meoh_syn_cat", syn)
	out.SetScalar("LCOM_meoh_atr_cat", atr)
	out.SetScalar("LCOM_ng", ng)
	out.SetScalar("LCOM_elec", elec)
	out.SetScalar("LCOM_meoh", meoh)
	out.SetScalar("LCOM", meoh+ng+elec)
	return nil
}
