// Package plant assembles the execution graph of a plant from its configs:
// the site and its resources, one group per technology, the transports
// between technologies and the finance subgroups that price them.
package plant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/h2integrate/h2integrate/pkg/component"
	"github.com/h2integrate/h2integrate/pkg/finance"
	"github.com/h2integrate/h2integrate/pkg/log"
	"github.com/h2integrate/h2integrate/pkg/resource"
	"github.com/h2integrate/h2integrate/pkg/technology"
	"github.com/h2integrate/h2integrate/pkg/types"
	"github.com/h2integrate/h2integrate/pkg/units"
)

// SubgroupPrefix starts the name of every finance subgroup.
const SubgroupPrefix = "financials_subgroup_"

// electricityProducers are the technology names, or name prefixes, whose
// electricity_out is summed for the finance subgroups.
var electricityProducers = []string{"wind", "solar", "natural_gas", "grid"}

// Options change how a plant is built.
type Options struct {
	// Client fetches resources given by url.
	Client *http.Client
	// CacheDir overrides the cache_dir of every model with caching enabled.
	CacheDir string
}

// Model is a built plant ready to run.
type Model struct {
	Problem *component.Problem
	Config  *types.Config

	techs     map[string]*tech
	subgroups []*subgroup
	metrics   map[string]bool
}

// tech holds the components built for one technology.
type tech struct {
	name  string
	cfg   types.TechConfig
	comps []component.Component
	// source is set for feedstocks, whose performance model is the root
	// component {name}_source.
	source component.Component
	// cost is set for feedstocks, whose cost model is the root component
	// {name}.
	cost component.Component
}

type subgroup struct {
	name      string
	commodity string
	// included are the technologies counted in the metrics and techs the
	// ones among them with costs.
	included  []string
	techs     []string
	producers []string
	finance   []component.Component
}

// Build creates the problem for cfg with the models in reg and sets it up.
func Build(ctx context.Context, cfg *types.Config, reg *technology.Map, opts Options) (*Model, error) {
	if cfg == nil {
		return nil, errors.New("missing config")
	}
	b := &builder{
		cfg:  cfg,
		reg:  reg,
		opts: opts,
		m: &Model{
			Problem: component.NewProblem(),
			Config:  cfg,
			techs:   make(map[string]*tech),
			metrics: make(map[string]bool),
		},
	}
	if opts.Client == nil {
		b.opts.Client = http.DefaultClient
	}

	start := time.Now()
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"site", b.addSite},
		{"custom models", b.addCustomModels},
		{"technologies", b.addTechnologies},
		{"finance", b.addFinance},
		{"interconnections", b.connectTechnologies},
		{"finance connections", b.connectFinance},
	}
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			return nil, fmt.Errorf("failed to build %s: %w", s.name, err)
		}
	}
	if err := b.m.Problem.Setup(ctx); err != nil {
		return nil, fmt.Errorf("failed to set up plant: %w", err)
	}
	log.Ctx(ctx).DebugContext(
		ctx,
		"built plant",
		slog.String("name", cfg.Name),
		slog.Int("technologies", len(b.m.techs)),
		slog.Int("subgroups", len(b.m.subgroups)),
		slog.Duration("duration", time.Since(start)),
	)
	return b.m, nil
}

type builder struct {
	cfg  *types.Config
	reg  *technology.Map
	opts Options
	m    *Model
}

func (b *builder) addSite(ctx context.Context) error {
	p := b.m.Problem
	site := b.cfg.Plant.Site
	if err := p.Add("site", resource.NewSite(site)); err != nil {
		return err
	}
	for _, name := range site.Resources.Keys {
		r, err := resource.New(ctx, name, site.Resources.Values[name], b.cfg.Plant, resource.Options{
			Dir:    b.cfg.BaseDir,
			Client: b.opts.Client,
		})
		if err != nil {
			return err
		}
		if err := p.Add(name, r); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) addCustomModels(ctx context.Context) error {
	techs := b.cfg.Technology.Technologies
	for _, name := range techs.Keys {
		tc := techs.Values[name]
		refs := []struct {
			role string
			ref  *types.ModelRef
		}{
			{technology.RolePerformance, tc.PerformanceModel},
			{technology.RoleControl, tc.ControlStrategy},
			{technology.RoleCost, tc.CostModel},
			{technology.RoleFinancial, tc.FinancialModel},
		}
		for _, r := range refs {
			if err := b.reg.AddCustom(name, r.role, r.ref, b.cfg.TechDir); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *builder) techConfig(name, role string, tc types.TechConfig) technology.Config {
	return technology.Config{
		Name:     name,
		Role:     role,
		Tech:     tc,
		Plant:    b.cfg.Plant,
		Driver:   b.cfg.Driver,
		Dir:      b.cfg.TechDir,
		CacheDir: b.opts.CacheDir,
	}
}

func (b *builder) model(name, role string, ref *types.ModelRef, tc types.TechConfig) (component.Component, error) {
	f, err := b.reg.Lookup(ref.Model)
	if err != nil {
		return nil, fmt.Errorf("%s %s model: %w", name, role, err)
	}
	c, err := f(b.techConfig(name, role, tc))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s %s model %s: %w", name, role, ref.Model, err)
	}
	return c, nil
}

func isFeedstock(model string) bool {
	return strings.Contains(model, "feedstock")
}

func (b *builder) addTechnologies(ctx context.Context) error {
	p := b.m.Problem
	techs := b.cfg.Technology.Technologies
	for _, name := range techs.Keys {
		tc := techs.Values[name]
		t := &tech{name: name, cfg: tc}
		b.m.techs[name] = t

		perf := tc.PerformanceModel.Name()
		if isFeedstock(perf) {
			c, err := b.model(name, technology.RolePerformance, tc.PerformanceModel, tc)
			if err != nil {
				return err
			}
			if err := p.Add(name+"_source", c); err != nil {
				return err
			}
			t.source = c
			t.comps = append(t.comps, c)
			continue
		}
		if perf == "" && isFeedstock(tc.CostModel.Name()) {
			continue
		}
		if perf == "" {
			return fmt.Errorf("technology %s requires a performance_model", name)
		}
		if err := b.addTechGroup(t); err != nil {
			return err
		}
	}

	// feedstock costs are added once every source exists
	for _, name := range techs.Keys {
		tc := techs.Values[name]
		if !isFeedstock(tc.CostModel.Name()) {
			continue
		}
		c, err := b.model(name, technology.RoleCost, tc.CostModel, tc)
		if err != nil {
			return err
		}
		if err := p.Add(name, c); err != nil {
			return err
		}
		t := b.m.techs[name]
		t.cost = c
		t.comps = append(t.comps, c)
		if t.source != nil {
			if err := b.connectFeedstock(name, t); err != nil {
				return err
			}
		}
	}
	return nil
}

// addTechGroup adds the group {name} with the performance, control, cost and
// tech specific financial models, all promoted.
func (b *builder) addTechGroup(t *tech) error {
	g, err := b.m.Problem.AddGroup(t.name)
	if err != nil {
		return err
	}
	tc := t.cfg
	add := func(member, role string, ref *types.ModelRef) error {
		c, err := b.model(t.name, role, ref, tc)
		if err != nil {
			return err
		}
		if err := g.Add(member, c, true); err != nil {
			return err
		}
		t.comps = append(t.comps, c)
		if role == technology.RoleFinancial {
			for _, o := range c.Outputs() {
				if isMetric(o.Name) {
					b.m.metrics[t.name+"."+o.Name] = true
				}
			}
		}
		return nil
	}

	perf, cost := tc.PerformanceModel.Name(), tc.CostModel.Name()
	if perf == cost {
		// one model does both
		if err := add(t.name, technology.RolePerformance, tc.PerformanceModel); err != nil {
			return err
		}
	} else {
		if err := add(perf, technology.RolePerformance, tc.PerformanceModel); err != nil {
			return err
		}
	}
	if ctrl := tc.ControlStrategy.Name(); ctrl != "" {
		if err := add(ctrl, technology.RoleControl, tc.ControlStrategy); err != nil {
			return err
		}
	}
	if cost != "" && cost != perf {
		if err := add(cost, technology.RoleCost, tc.CostModel); err != nil {
			return err
		}
	}
	if fin := tc.FinancialModel.Name(); fin != "" && fin != cost {
		if err := add(t.name+"_financial", technology.RoleFinancial, tc.FinancialModel); err != nil {
			return err
		}
	}
	return nil
}

// connectFeedstock feeds the cost model of a feedstock the inputs its own
// source provides, such as the profile of a simple feedstock.
func (b *builder) connectFeedstock(name string, t *tech) error {
	for _, in := range t.cost.Inputs() {
		if _, ok := port(t.source.Outputs(), in.Name); !ok {
			continue
		}
		if err := b.m.Problem.Connect(name+"_source."+in.Name, name+"."+in.Name); err != nil {
			return err
		}
	}
	return nil
}

func port(ports []component.Port, name string) (component.Port, bool) {
	for _, p := range ports {
		if p.Name == name {
			return p, true
		}
	}
	return component.Port{}, false
}

// output returns the named output of any of the tech's components.
func (t *tech) output(name string) (component.Port, bool) {
	if t == nil {
		return component.Port{}, false
	}
	for _, c := range t.comps {
		if p, ok := port(c.Outputs(), name); ok {
			return p, true
		}
	}
	return component.Port{}, false
}

func (t *tech) input(name string) bool {
	if t == nil {
		return false
	}
	for _, c := range t.comps {
		if _, ok := port(c.Inputs(), name); ok {
			return true
		}
	}
	return false
}

// isMetric reports whether a finance output is reported by Metrics.
func isMetric(name string) bool {
	return strings.HasPrefix(name, "LCO") || strings.HasSuffix(name, "_NPV") || strings.HasPrefix(name, "NPV_")
}

func isElectricityProducer(name string) bool {
	for _, p := range electricityProducers {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// financeGroups returns the named finance groups with the top-level
// finance_model, if any, added under its nickname.
func financeGroups(fp *types.FinanceParameters) (map[string]types.FinanceGroup, string) {
	groups := make(map[string]types.FinanceGroup, len(fp.Groups)+1)
	for k, v := range fp.Groups {
		groups[k] = v
	}
	nickname := "default"
	if fp.FinanceModel == "" {
		return groups, nickname
	}
	if _, ok := groups[nickname]; ok {
		for i := range 5 {
			n := "default_" + strconv.Itoa(i)
			if _, ok := groups[n]; !ok {
				nickname = n
				break
			}
		}
	}
	groups[nickname] = types.FinanceGroup{FinanceModel: fp.FinanceModel, ModelInputs: fp.ModelInputs}
	return groups, nickname
}

func (b *builder) outputDir() string {
	dir := b.cfg.Driver.General.FolderOutput
	if dir == "" || filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(b.cfg.BaseDir, dir)
}

func (b *builder) addFinance(ctx context.Context) error {
	fp := b.cfg.Plant.FinanceParameters
	if fp == nil {
		return nil
	}
	groups, nickname := financeGroups(fp)

	subgroups := fp.Subgroups
	if subgroups.Len() == 0 {
		if fp.Commodity == "" || groups[nickname].FinanceModel == "" {
			return errors.New("finance_parameters must define commodity and finance_model if no subgroups are provided")
		}
		subgroups = types.NewOrdered[types.Subgroup]()
		subgroups.Set(nickname, types.Subgroup{
			Commodity:     fp.Commodity,
			CommodityDesc: fp.CommodityDesc,
			FinanceGroups: types.StringOrSlice{nickname},
			Technologies:  b.cfg.Technology.Technologies.Keys,
		})
	}

	for _, name := range subgroups.Keys {
		if err := b.addSubgroup(ctx, name, subgroups.Values[name], groups, nickname); err != nil {
			return fmt.Errorf("subgroup %s: %w", name, err)
		}
	}
	return nil
}

func (b *builder) addSubgroup(ctx context.Context, name string, sg types.Subgroup, groups map[string]types.FinanceGroup, nickname string) error {
	if sg.Commodity == "" {
		return errors.New("missing commodity")
	}
	all := b.cfg.Technology.Technologies
	var techs []string
	for _, t := range sg.Technologies {
		if all.Has(t) {
			techs = append(techs, t)
		}
	}
	if len(techs) == 0 {
		return fmt.Errorf("no valid technologies, available: %v", all.Keys)
	}
	included, err := finance.IncludedTechs(techs, b.cfg.Plant.FinanceParameters, finance.MetricName(sg.Commodity, ""))
	if err != nil {
		return err
	}

	s := &subgroup{name: name, commodity: sg.Commodity, included: included}
	financed := types.NewOrdered[types.TechConfig]()
	for _, t := range included {
		if strings.Contains(t, "splitter") || strings.Contains(t, "combiner") {
			continue
		}
		tt := b.m.techs[t]
		if isElectricityProducer(t) {
			if _, ok := tt.output("electricity_out"); ok {
				s.producers = append(s.producers, t)
			}
		}
		if _, ok := tt.output("CapEx"); !ok {
			log.Ctx(ctx).DebugContext(ctx, "technology has no costs to finance", slog.String("technology", t))
			continue
		}
		s.techs = append(s.techs, t)
		financed.Set(t, all.Values[t])
	}

	g, err := b.m.Problem.AddGroup(SubgroupPrefix + name)
	if err != nil {
		return err
	}
	plant := b.cfg.Plant.Plant
	life := max(plant.PlantLife, 1)
	if err := g.Add("electricity_sum", finance.NewElectricitySum(s.producers, b.cfg.NTimesteps()), false); err != nil {
		return err
	}
	adjusted := finance.NewAdjustedCapexOpex(s.techs, plant.CostYear, b.cfg.Plant.FinanceParameters.CostingGeneralInflation, life)
	if err := g.Add("adjusted_capex_opex", adjusted, true); err != nil {
		return err
	}

	nicknames := []string(sg.FinanceGroups)
	if len(nicknames) == 0 {
		nicknames = []string{nickname}
	}
	var nonTech int
	for _, n := range nicknames {
		if _, ok := groups[n]; ok {
			nonTech++
		}
	}
	for _, n := range nicknames {
		if tc, ok := all.Get(n); ok && slices.Contains(techs, n) && tc.FinancialModel.Name() != "" {
			// built with the technology
			continue
		}
		fg, ok := groups[n]
		if !ok {
			return fmt.Errorf("finance group %q is not defined in finance_parameters", n)
		}
		f, err := b.reg.LookupFinance(fg.FinanceModel)
		if err != nil {
			return fmt.Errorf("finance group %s: %w", n, err)
		}
		desc := sg.CommodityDesc
		if nonTech > 1 {
			desc += "_" + n
		}
		if s.techs == nil {
			return fmt.Errorf("finance group %s: no technologies with costs", n)
		}
		c, err := f(technology.FinanceConfig{
			Commodity:   sg.Commodity,
			Description: desc,
			Techs:       financed,
			Plant:       b.cfg.Plant,
			ModelInputs: fg.ModelInputs,
			OutputDir:   b.outputDir(),
		})
		if err != nil {
			return fmt.Errorf("failed to create finance model %s: %w", fg.FinanceModel, err)
		}
		member := n + "_" + sg.Commodity
		if sg.CommodityDesc != "" {
			member += "_" + sg.CommodityDesc
		}
		if err := g.Add(member, c, true); err != nil {
			return err
		}
		s.finance = append(s.finance, c)
		for _, o := range c.Outputs() {
			if isMetric(o.Name) {
				b.m.metrics[g.Name()+"."+o.Name] = true
			}
		}
	}
	b.m.subgroups = append(b.m.subgroups, s)
	return nil
}

func (b *builder) connectTechnologies(ctx context.Context) error {
	p := b.m.Problem
	splitters := map[string]int{}
	combiners := map[string]int{}
	for _, c := range b.cfg.Plant.TechnologyInterconnections {
		switch c.Len() {
		case 4:
			if err := b.addTransport(c, splitters, combiners); err != nil {
				return err
			}
		case 3:
			src, dst := c.Params()
			if err := p.Connect(c.Source()+"."+src, c.Dest()+"."+dst); err != nil {
				return err
			}
		default:
			return fmt.Errorf("invalid connection: %s", c)
		}
	}
	for _, c := range b.cfg.Plant.ResourceToTechConnections {
		if c.Len() != 3 {
			return fmt.Errorf("invalid resource to tech connection: %s", c)
		}
		src, dst := c.Params()
		if err := p.Connect(c.Source()+"."+src, c.Dest()+"."+dst); err != nil {
			return err
		}
	}
	return nil
}

// addTransport adds the component {source}_to_{dest}_{transport} carrying
// item between the two technologies.
func (b *builder) addTransport(c types.Interconnection, splitters, combiners map[string]int) error {
	p := b.m.Problem
	src, dst, item := c.Source(), c.Dest(), c.Item()
	name := src + "_to_" + dst + "_" + c.Transport()

	st := b.m.techs[src]
	if st != nil && st.cost != nil {
		consumed := item + "_consumed"
		if _, ok := b.m.techs[dst].output(consumed); ok && st.input(consumed) {
			if err := p.Connect(dst+"."+consumed, src+"."+consumed); err != nil {
				return err
			}
		}
	}
	if st != nil && st.source != nil {
		src += "_source"
	}

	f, err := b.reg.LookupTransport(c.Transport())
	if err != nil {
		return fmt.Errorf("connection %s: %w", c, err)
	}
	comp, err := f(item, b.cfg.Plant)
	if err != nil {
		return fmt.Errorf("connection %s: %w", c, err)
	}
	if err := p.Add(name, comp); err != nil {
		return err
	}

	out := item + "_out"
	if strings.Contains(src, "splitter") {
		splitters[src]++
		out = "electricity_out" + strconv.Itoa(splitters[src])
	}
	if err := p.Connect(src+"."+out, name+"."+item+"_in"); err != nil {
		return err
	}
	in := item + "_in"
	if strings.Contains(dst, "combiner") {
		combiners[dst]++
		in = "electricity_in" + strconv.Itoa(combiners[dst])
	}
	return p.Connect(name+"."+item+"_out", dst+"."+in)
}

// connectFinance wires every financed technology into its subgroups.
func (b *builder) connectFinance(ctx context.Context) error {
	p := b.m.Problem
	for _, s := range b.m.subgroups {
		group := SubgroupPrefix + s.name
		var producing bool
		for _, t := range s.producers {
			if err := p.Connect(t+".electricity_out", group+".electricity_sum.electricity_"+t); err != nil {
				return err
			}
			producing = true
		}

		for _, t := range s.techs {
			for _, c := range [][2]string{
				{"CapEx", "capex_"},
				{"OpEx", "opex_"},
				{"VarOpEx", "varopex_"},
				{"cost_year", "cost_year_"},
			} {
				if _, ok := b.m.techs[t].output(c[0]); !ok {
					continue
				}
				if err := p.Connect(t+"."+c[0], group+"."+c[1]+t); err != nil {
					return err
				}
			}
		}
		if len(s.finance) == 0 {
			continue
		}

		for _, t := range s.techs {
			if _, ok := b.m.techs[t].output("time_until_replacement"); ok {
				if err := p.Connect(t+".time_until_replacement", group+"."+finance.ReplacementInput(t)); err != nil {
					return err
				}
			}
		}

		produced := finance.ProducedName(s.commodity)
		if !financeInput(s.finance, produced) {
			continue
		}
		if producing && s.commodity == "electricity" {
			if err := p.Connect(group+".electricity_sum.total_electricity_produced", group+"."+produced); err != nil {
				return err
			}
			continue
		}
		if t := b.producer(s.included, s.commodity); t != "" {
			if err := p.Connect(t+"."+produced, group+"."+produced); err != nil {
				return err
			}
		}
	}
	return nil
}

// producer returns the first technology with a total_{commodity}_produced
// output in units the finance models accept. Without such a technology the
// first one with the output is returned and Setup reports the mismatch.
func (b *builder) producer(techs []string, commodity string) string {
	name := finance.ProducedName(commodity)
	want := finance.ProductionUnits(commodity)
	var first string
	for _, t := range techs {
		o, ok := b.m.techs[t].output(name)
		if !ok {
			continue
		}
		if _, err := units.Factor(o.Units, want); err == nil {
			return t
		}
		if first == "" {
			first = t
		}
	}
	return first
}

func financeInput(comps []component.Component, name string) bool {
	for _, c := range comps {
		if _, ok := port(c.Inputs(), name); ok {
			return true
		}
	}
	return false
}

// Run computes the plant once.
func (m *Model) Run(ctx context.Context) error {
	start := time.Now()
	if err := m.Problem.Run(ctx); err != nil {
		return err
	}
	log.Ctx(ctx).DebugContext(ctx, "ran plant", slog.Duration("duration", time.Since(start)))
	return nil
}

// Metrics returns every levelized cost and net present value keyed by its
// path, e.g. financials_subgroup_default.LCOH.
func (m *Model) Metrics() map[string]float64 {
	out := make(map[string]float64, len(m.metrics))
	for path, v := range m.Problem.Scalars() {
		if m.metrics[path] {
			out[path] = v
		}
	}
	return out
}

// PostProcess logs every scalar output with its units.
func (m *Model) PostProcess(ctx context.Context) {
	vars := m.Problem.Variables()
	sort.SliceStable(vars, func(i, j int) bool {
		return vars[i].Path < vars[j].Path
	})
	for _, v := range vars {
		if v.Input || len(v.Value) != 1 {
			continue
		}
		log.Ctx(ctx).InfoContext(
			ctx,
			"output",
			slog.String("path", v.Path),
			slog.Float64("value", v.Value[0]),
			slog.String("units", v.Units),
		)
	}
}
