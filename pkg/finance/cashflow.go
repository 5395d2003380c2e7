package finance

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"

	"github.com/h2integrate/h2integrate/pkg/component"
	"github.com/h2integrate/h2integrate/pkg/config"
	"github.com/h2integrate/h2integrate/pkg/technology"
)

// ErrConflictingParameter is returned when two spellings of a cash flow
// parameter are given different values.
var ErrConflictingParameter = errors.New("conflicting parameter")

const (
	deprMACRS        = "MACRS"
	deprStraightLine = "Straight line"

	debtRevolving = "Revolving debt"
	debtOneTime   = "One time loan"
)

// macrs are the half-year convention MACRS rates by recovery period.
var macrs = map[int][]float64{
	3:  {0.3333, 0.4445, 0.1481, 0.0741},
	5:  {0.20, 0.32, 0.192, 0.1152, 0.1152, 0.0576},
	7:  {0.1429, 0.2449, 0.1749, 0.1249, 0.0893, 0.0892, 0.0893, 0.0446},
	10: {0.10, 0.18, 0.144, 0.1152, 0.0922, 0.0737, 0.0655, 0.0655, 0.0656, 0.0655, 0.0328},
	15: {0.05, 0.095, 0.0855, 0.077, 0.0693, 0.0623, 0.059, 0.059, 0.0591, 0.059, 0.0591, 0.059, 0.0591, 0.059, 0.0591, 0.0295},
	20: {
		0.0375, 0.07219, 0.06677, 0.06177, 0.05713, 0.05285, 0.04888, 0.04522, 0.04462, 0.04461, 0.04462,
		0.04461, 0.04462, 0.04461, 0.04462, 0.04461, 0.04462, 0.04461, 0.04462, 0.04461, 0.02231,
	},
}

// depreciation returns the fraction of an asset deducted in each year after
// it is placed in service.
func depreciation(kind string, period int) ([]float64, error) {
	switch kind {
	case deprMACRS:
		rates, ok := macrs[period]
		if !ok {
			return nil, fmt.Errorf("invalid MACRS depr_period %d, must be 3, 5, 7, 10, 15 or 20", period)
		}
		return rates, nil
	case deprStraightLine:
		if period <= 0 {
			return nil, fmt.Errorf("invalid straight line depr_period %d", period)
		}
		rates := make([]float64, period)
		for i := range rates {
			rates[i] = 1 / float64(period)
		}
		return rates, nil
	}
	return nil, fmt.Errorf("invalid depr_type %q, must be %q or %q", kind, deprMACRS, deprStraightLine)
}

// paramAliases maps the spaced names of the cash flow parameters, after
// spaces become underscores, to the names used here.
var paramAliases = map[string]string{
	"debt_equity_ratio_of_initial_financing":   "debt_equity_ratio",
	"leverage_after_tax_nominal_discount_rate": "discount_rate",
	"operating_life":                           "plant_life",
	"sales_tax":                                "sales_tax_rate",
	"cash_onhand":                              "cash_onhand_months",
	"installation_months":                      "installation_time",
	"general_inflation_rate":                   "inflation_rate",
}

func normalizeKey(k string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(k), " ", "_"))
}

// normalizeParams rewrites every key, and the keys of nested mappings, to
// snake_case and resolves aliases. Two spellings of one parameter must agree.
func normalizeParams(raw map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(raw))
	from := make(map[string]string, len(raw))
	for _, k := range slices.Sorted(maps.Keys(raw)) {
		v := raw[k]
		name := normalizeKey(k)
		if alias, ok := paramAliases[name]; ok {
			name = alias
		}
		if m, ok := v.(map[string]any); ok {
			nm := make(map[string]any, len(m))
			for mk, mv := range m {
				nm[normalizeKey(mk)] = mv
			}
			v = nm
		}
		if prev, ok := from[name]; ok {
			if fmt.Sprint(out[name]) != fmt.Sprint(v) {
				return nil, fmt.Errorf("%w: %q and %q both set %s", ErrConflictingParameter, prev, k, name)
			}
			continue
		}
		out[name] = v
		from[name] = k
	}
	return out, nil
}

type commodityParams struct {
	Name         string   `yaml:"name"`
	Unit         string   `yaml:"unit"`
	InitalPrice  float64  `yaml:"inital_price"`
	InitialPrice float64  `yaml:"initial_price"`
	Escalation   *float64 `yaml:"escalation"`
}

// escalated is a yearly amount that grows at its own rate, the inflation
// rate when unset.
type escalated struct {
	Value float64 `yaml:"value"`
	// Rate multiplies Value for labor, which is given in hours.
	Rate       float64  `yaml:"rate"`
	Escalation *float64 `yaml:"escalation"`
}

func (e escalated) at(t int, inflation float64) float64 {
	g := inflation
	if e.Escalation != nil {
		g = *e.Escalation
	}
	v := e.Value
	if e.Rate != 0 {
		v *= e.Rate
	}
	return v * math.Pow(1+g, float64(t))
}

type capitalCost struct {
	Value       float64 `yaml:"value"`
	DeprType    string  `yaml:"depr_type"`
	DeprPeriod  int     `yaml:"depr_period"`
	Depreciable bool    `yaml:"depreciable"`
}

type incentive struct {
	Value       float64 `yaml:"value"`
	Decay       float64 `yaml:"decay"`
	SunsetYears int     `yaml:"sunset_years"`
	Taxable     bool    `yaml:"taxable"`
}

// takeOrPay is revenue guaranteed for part of the capacity.
type takeOrPay struct {
	UnitPrice          float64 `yaml:"unit_price"`
	Decay              float64 `yaml:"decay"`
	SunsetYears        int     `yaml:"sunset_years"`
	SupportUtilization float64 `yaml:"support_utilization"`
}

type cashFlowParams struct {
	PlantLife         int `yaml:"plant_life"`
	AnalysisStartYear int `yaml:"analysis_start_year"`
	// InstallationTime is in months.
	InstallationTime int `yaml:"installation_time"`

	DiscountRate    float64  `yaml:"discount_rate" required:"true"`
	DebtEquityRatio *float64 `yaml:"debt_equity_ratio"`
	// DebtEquitySplit is the percent of the initial financing that is debt.
	DebtEquitySplit  *float64 `yaml:"debt_equity_split"`
	DebtInterestRate float64  `yaml:"debt_interest_rate"`
	DebtType         string   `yaml:"debt_type"`
	LoanPeriodIfUsed int      `yaml:"loan_period_if_used"`

	PropertyTaxAndInsurance float64 `yaml:"property_tax_and_insurance"`
	TotalIncomeTaxRate      float64 `yaml:"total_income_tax_rate"`
	CapitalGainsTaxRate     float64 `yaml:"capital_gains_tax_rate"`
	SalesTaxRate            float64 `yaml:"sales_tax_rate"`
	InflationRate           float64 `yaml:"inflation_rate"`
	CashOnhandMonths        float64 `yaml:"cash_onhand_months"`
	AdminExpense            float64 `yaml:"admin_expense"`
	CreditCardFees          float64 `yaml:"credit_card_fees"`
	DemandRampup            float64 `yaml:"demand_rampup"`
	LongTermUtilization     float64 `yaml:"long_term_utilization"`

	NonDeprAssets              float64 `yaml:"non_depr_assets"`
	EndOfProjSaleNonDeprAssets float64 `yaml:"end_of_proj_sale_non_depr_assets"`
	TaxLossCarryForwardYears   int     `yaml:"tax_loss_carry_forward_years"`
	TaxLossesMonetized         bool    `yaml:"tax_losses_monetized"`
	SellUndepreciatedCap       bool    `yaml:"sell_undepreciated_cap"`

	Commodity                commodityParams `yaml:"commodity"`
	InstallationCost         capitalCost     `yaml:"installation_cost"`
	OneTimeCapInct           capitalCost     `yaml:"one_time_cap_inct"`
	TOPC                     takeOrPay       `yaml:"topc"`
	AnnualOperatingIncentive incentive       `yaml:"annual_operating_incentive"`
	IncidentalRevenue        escalated       `yaml:"incidental_revenue"`
	RoadTax                  escalated       `yaml:"road_tax"`
	Labor                    escalated       `yaml:"labor"`
	Maintenance              escalated       `yaml:"maintenance"`
	Rent                     escalated       `yaml:"rent"`
	LicenseAndPermit         escalated       `yaml:"license_and_permit"`
}

// fixedCost holds the defaults, or a tech's own fixed_costs.
type fixedCost struct {
	Escalation *float64 `yaml:"escalation"`
	Unit       string   `yaml:"unit"`
	Usage      *float64 `yaml:"usage"`
}

type cashFlowInputs struct {
	Params       map[string]any `yaml:"params" required:"true"`
	CapitalItems capitalItem    `yaml:"capital_items"`
	FixedCosts   fixedCost      `yaml:"fixed_costs"`
	// CommoditySellPrice is the default sell price of profast_npv.
	CommoditySellPrice *float64 `yaml:"commodity_sell_price"`

	SaveProfastResults       bool   `yaml:"save_profast_results"`
	SaveProfastConfig        bool   `yaml:"save_profast_config"`
	SaveProfastToFile        bool   `yaml:"save_profast_to_file"`
	ProfastOutputDescription string `yaml:"profast_output_description"`
}

// cashFlowModel is the yearly after-tax equity cash flow of a plant. Period 0
// is the analysis start year, when the capital is spent. Operation starts
// after the installation time and lasts the plant life.
type cashFlowModel struct {
	p     cashFlowParams
	techs []string
	items map[string]capitalItem
	deprs map[string][]float64
	fixed map[string]fixedCost

	life  int
	start int
	// debt is the fraction of the initial financing that is borrowed.
	debt float64
}

func newCashFlowModel(cfg technology.FinanceConfig, in cashFlowInputs) (*cashFlowModel, error) {
	life := cfg.PlantLife()
	norm, err := normalizeParams(in.Params)
	if err != nil {
		return nil, err
	}
	if v, ok := norm["plant_life"]; ok && fmt.Sprint(v) != fmt.Sprint(life) {
		return nil, fmt.Errorf("plant_life %v in the finance params does not match plant.plant_life %d", v, life)
	}

	p := cashFlowParams{
		AnalysisStartYear:    cfg.Plant.Plant.FinancialAnalysisStartYear,
		InstallationTime:     cfg.Plant.Plant.InstallationTime,
		DebtType:             debtRevolving,
		LongTermUtilization:  1,
		TaxLossesMonetized:   true,
		SellUndepreciatedCap: true,
	}
	p.AnnualOperatingIncentive.Taxable = true
	if err := config.Decode(norm, &p); err != nil {
		return nil, fmt.Errorf("finance params: %w", err)
	}
	p.PlantLife = life
	if p.AnalysisStartYear == 0 {
		p.AnalysisStartYear = cfg.Plant.Plant.CostYear
	}
	if p.DiscountRate < 0 || p.DiscountRate > 1 {
		return nil, fmt.Errorf("discount_rate must be between 0 and 1, got %v", p.DiscountRate)
	}
	if p.InstallationTime < 0 {
		return nil, fmt.Errorf("installation_time must not be negative, got %d", p.InstallationTime)
	}

	m := &cashFlowModel{
		p:     p,
		techs: cfg.Techs.Keys,
		items: make(map[string]capitalItem, cfg.Techs.Len()),
		deprs: make(map[string][]float64, cfg.Techs.Len()),
		fixed: make(map[string]fixedCost, cfg.Techs.Len()),
		life:  life,
		start: max(1, (p.InstallationTime+11)/12),
	}

	switch {
	case p.DebtEquityRatio != nil && p.DebtEquitySplit != nil:
		return nil, errors.New("only one of debt_equity_ratio and debt_equity_split may be given")
	case p.DebtEquityRatio != nil:
		if *p.DebtEquityRatio < 0 {
			return nil, fmt.Errorf("debt_equity_ratio must not be negative, got %v", *p.DebtEquityRatio)
		}
		m.debt = *p.DebtEquityRatio / (1 + *p.DebtEquityRatio)
	case p.DebtEquitySplit != nil:
		if *p.DebtEquitySplit < 0 || *p.DebtEquitySplit >= 100 {
			return nil, fmt.Errorf("debt_equity_split must be a percent below 100, got %v", *p.DebtEquitySplit)
		}
		m.debt = *p.DebtEquitySplit / 100
	}
	switch p.DebtType {
	case debtRevolving:
	case debtOneTime:
		if p.LoanPeriodIfUsed <= 0 && m.debt > 0 {
			return nil, fmt.Errorf("loan_period_if_used is required for %q", debtOneTime)
		}
	default:
		return nil, fmt.Errorf("invalid debt_type %q, must be %q or %q", p.DebtType, debtRevolving, debtOneTime)
	}

	def := in.CapitalItems
	if def.DeprType == "" {
		def.DeprType = deprMACRS
	}
	if def.DeprPeriod == 0 {
		def.DeprPeriod = 7
	}
	for _, name := range cfg.Techs.Keys {
		tc := cfg.Techs.Values[name]
		item := def
		if err := config.DecodeLoose(tc.CapitalItems(), &item); err != nil {
			return nil, fmt.Errorf("%s capital_items: %w", name, err)
		}
		// a tech's replacement_cost_percent replaces a default refurb schedule
		if c := tc.CapitalItems(); c["replacement_cost_percent"] != nil && c["refurb"] == nil {
			item.Refurb = nil
		}
		dep, err := depreciation(item.DeprType, item.DeprPeriod)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		m.items[name] = item
		m.deprs[name] = dep

		fc := in.FixedCosts
		if err := config.DecodeLoose(tc.FixedCosts(), &fc); err != nil {
			return nil, fmt.Errorf("%s fixed_costs: %w", name, err)
		}
		m.fixed[name] = fc
	}
	return m, nil
}

func (m *cashFlowModel) periods() int {
	return m.start + m.life
}

func escalate(rate float64, t int) float64 {
	return math.Pow(1+rate, float64(t))
}

// addDepreciation spreads cost over the schedule starting at period t.
func addDepreciation(dst []float64, cost float64, sched []float64, t int) {
	for i, f := range sched {
		if t+i >= len(dst) {
			return
		}
		dst[t+i] += cost * f
	}
}

// ledger collects named cash flow lines in the order they are added.
type ledger struct {
	n     int
	lines []cashFlow
}

func (l *ledger) line(name string) []float64 {
	vals := make([]float64, l.n)
	l.lines = append(l.lines, cashFlow{name: name, vals: vals})
	return vals
}

func (l *ledger) total() []float64 {
	out := make([]float64, l.n)
	for _, ln := range l.lines {
		for i, v := range ln.vals {
			out[i] += v
		}
	}
	return out
}

// flows returns the cash flow lines at price, per unit of the commodity in
// analysis start year dollars, together with their sum. Costs are negative.
func (m *cashFlowModel) flows(price float64, in component.Vector, commodity string) ([]cashFlow, []float64) {
	p := m.p
	n := m.periods()
	end := n - 1
	g := p.InflationRate
	priceEsc := g
	if p.Commodity.Escalation != nil {
		priceEsc = *p.Commodity.Escalation
	}
	annual := in.Scalar(ProducedName(commodity))

	l := &ledger{n: n}
	capexLine := l.line("Capital expenditures")
	installLine := l.line("Installation cost")
	landLine := l.line("Non depreciable assets")
	debtLine := l.line("Debt proceeds")
	revenueLine := l.line("Sales of " + commodity)
	otherRevenue := l.line("Other revenue and incentives")
	fixedLine := l.line("Fixed operating costs")
	varLine := l.line("Variable operating costs")
	otherLine := l.line("Labor, maintenance, rent, permits and road tax")
	ptiLine := l.line("Property tax and insurance")
	salesLine := l.line("Admin, sales tax and card fees")
	refurbLine := l.line("Replacements")
	interestLine := l.line("Interest")
	principalLine := l.line("Debt repayment")
	cashLine := l.line("Cash on hand")
	taxLine := l.line("Income tax")
	saleLine := l.line("End of project sales")

	depr := make([]float64, n)
	taxableExtra := make([]float64, n)

	var capex, booked float64
	for _, t := range m.techs {
		c := in.Scalar("capex_adjusted_" + t)
		capex += c
		booked += c
		dep := m.deprs[t]
		addDepreciation(depr, c, dep, m.start)

		sched := m.items[t].refurbSchedule(m.life, in.Scalar(ReplacementInput(t)))
		for k, f := range sched {
			if f == 0 {
				continue
			}
			at := m.start + k
			cost := c * f * escalate(g, at)
			refurbLine[at] -= cost
			booked += cost
			addDepreciation(depr, cost, dep, at)
		}

		fc := m.fixed[t]
		fg := g
		if fc.Escalation != nil {
			fg = *fc.Escalation
		}
		usage := 1.0
		if fc.Usage != nil {
			usage = *fc.Usage
		}
		opex := in.Scalar("opex_adjusted_"+t) * usage
		varOpEx := in.Get("varopex_adjusted_" + t)
		for k := range m.life {
			at := m.start + k
			fixedLine[at] -= opex * escalate(fg, at)
			if k < len(varOpEx) {
				varLine[at] -= varOpEx[k] * escalate(g, at)
			}
		}
	}
	capexLine[0] = -capex

	inst := p.InstallationCost
	installLine[0] = -inst.Value
	if inst.Depreciable && inst.Value != 0 {
		if dep, err := depreciation(inst.DeprType, inst.DeprPeriod); err == nil {
			addDepreciation(depr, inst.Value, dep, m.start)
			booked += inst.Value
		}
	}
	landLine[0] = -p.NonDeprAssets
	otherRevenue[m.start] += p.OneTimeCapInct.Value
	taxableExtra[m.start] -= p.OneTimeCapInct.Value

	borrowed := m.debt * (capex + inst.Value)
	debtLine[0] = borrowed

	for k := range m.life {
		at := m.start + k
		util := p.LongTermUtilization
		if k < int(p.DemandRampup) {
			util *= float64(k+1) / (p.DemandRampup + 1)
		}
		q := annual * util
		revenue := price * q * escalate(priceEsc, at)
		revenueLine[at] = revenue

		other := p.IncidentalRevenue.at(at, g)
		if k < p.TOPC.SunsetYears {
			other += p.TOPC.UnitPrice * annual * p.TOPC.SupportUtilization * math.Pow(1-p.TOPC.Decay, float64(k))
		}
		if ai := p.AnnualOperatingIncentive; k < ai.SunsetYears || (ai.SunsetYears == 0 && ai.Value != 0) {
			v := ai.Value * math.Pow(1-ai.Decay, float64(k))
			other += v
			if !ai.Taxable {
				taxableExtra[at] -= v
			}
		}
		otherRevenue[at] += other

		otherLine[at] = -(p.Labor.at(at, g) + p.Maintenance.at(at, g) + p.Rent.at(at, g) +
			p.LicenseAndPermit.at(at, g) + p.RoadTax.at(at, g))
		ptiLine[at] = -p.PropertyTaxAndInsurance * capex * escalate(g, at)
		salesLine[at] = -(p.AdminExpense + p.SalesTaxRate + p.CreditCardFees) * revenue
	}

	// working capital is held from the start of operation to the end
	firstOpex := -(fixedLine[m.start] + varLine[m.start] + otherLine[m.start] + ptiLine[m.start])
	onHand := p.CashOnhandMonths / 12 * firstOpex
	cashLine[m.start-1] -= onHand
	cashLine[end] += onHand

	m.debtService(borrowed, interestLine, principalLine)

	// book value left after the plant life
	var deducted float64
	for _, d := range depr[:n] {
		deducted += d
	}
	if p.SellUndepreciatedCap {
		saleLine[end] += max(booked-deducted, 0)
	}
	if p.EndOfProjSaleNonDeprAssets != 0 {
		gain := p.EndOfProjSaleNonDeprAssets - p.NonDeprAssets
		saleLine[end] += p.EndOfProjSaleNonDeprAssets - p.CapitalGainsTaxRate*max(gain, 0)
	}

	taxable := make([]float64, n)
	for t := range n {
		taxable[t] = revenueLine[t] + otherRevenue[t] + fixedLine[t] + varLine[t] + otherLine[t] +
			ptiLine[t] + salesLine[t] + interestLine[t] - depr[t] + taxableExtra[t]
	}
	m.incomeTax(taxable, taxLine)

	return l.lines, l.total()
}

// debtService fills the interest and principal lines. Revolving debt pays
// interest on the full amount and repays it at the end. A one time loan is
// amortized over the loan period.
func (m *cashFlowModel) debtService(borrowed float64, interest, principal []float64) {
	if borrowed == 0 {
		return
	}
	r := m.p.DebtInterestRate
	end := m.periods() - 1
	if m.p.DebtType == debtRevolving {
		for k := range m.life {
			interest[m.start+k] = -r * borrowed
		}
		principal[end] = -borrowed
		return
	}
	n := m.p.LoanPeriodIfUsed
	payment := borrowed / float64(n)
	if r > 0 {
		payment = borrowed * r / (1 - math.Pow(1+r, -float64(n)))
	}
	balance := borrowed
	for k := 0; k < n && m.start+k <= end; k++ {
		at := m.start + k
		i := balance * r
		interest[at] = -i
		principal[at] = -(payment - i)
		balance -= payment - i
	}
	if balance > 1e-9 {
		principal[end] -= balance
	}
}

// incomeTax taxes taxable income. Monetized losses are credited in the year
// they occur, otherwise they are carried forward for the configured number of
// years, or indefinitely when that is zero.
func (m *cashFlowModel) incomeTax(taxable, tax []float64) {
	rate := m.p.TotalIncomeTaxRate
	if m.p.TaxLossesMonetized {
		for t, v := range taxable {
			tax[t] = -rate * v
		}
		return
	}
	type loss struct {
		amount  float64
		expires int
	}
	var losses []loss
	for t, v := range taxable {
		if v < 0 {
			expires := math.MaxInt
			if y := m.p.TaxLossCarryForwardYears; y > 0 {
				expires = t + y
			}
			losses = append(losses, loss{amount: -v, expires: expires})
			continue
		}
		for i := range losses {
			if v == 0 {
				break
			}
			if losses[i].expires < t || losses[i].amount == 0 {
				continue
			}
			used := min(v, losses[i].amount)
			losses[i].amount -= used
			v -= used
		}
		tax[t] = -rate * v
	}
}

// npv is the equity net present value at price.
func (m *cashFlowModel) npv(price float64, in component.Vector, commodity string) float64 {
	_, total := m.flows(price, in, commodity)
	return npv(m.p.DiscountRate, total)
}

// breakEven returns the price where the net present value is zero. The value
// is affine in price unless losses are carried forward, then the secant
// method refines the first estimate. Zero is returned when revenue does not
// change the value.
func (m *cashFlowModel) breakEven(in component.Vector, commodity string) float64 {
	a, fa := 0.0, m.npv(0, in, commodity)
	slope := m.npv(1, in, commodity) - fa
	if slope <= 0 {
		return 0
	}
	b := -fa / slope
	if m.p.TaxLossesMonetized {
		return b
	}
	fb := m.npv(b, in, commodity)
	tol := 1e-9 * max(1, math.Abs(fa))
	for range 100 {
		if math.Abs(fb) <= tol || fb == fa {
			break
		}
		c := b - fb*(b-a)/(fb-fa)
		a, fa = b, fb
		b, fb = c, m.npv(c, in, commodity)
	}
	return b
}

// wacc is the after-tax weighted average cost of capital.
func (m *cashFlowModel) wacc() float64 {
	p := m.p
	return m.debt*p.DebtInterestRate*(1-p.TotalIncomeTaxRate) + (1-m.debt)*p.DiscountRate
}

// crf is the capital recovery factor at the wacc over the plant life.
func (m *cashFlowModel) crf() float64 {
	w := m.wacc()
	if w == 0 {
		return 1 / float64(m.life)
	}
	return w / (1 - math.Pow(1+w, -float64(m.life)))
}

// payback is the number of operating years until the cumulative equity cash
// flow turns positive, zero when it never does.
func (m *cashFlowModel) payback(total []float64) float64 {
	var cum float64
	for t, v := range total {
		cum += v
		if t >= m.start && cum >= 0 {
			return float64(t - m.start + 1)
		}
	}
	return 0
}
