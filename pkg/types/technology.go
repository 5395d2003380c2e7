package types

// TechnologyConfig is the technology_config file.
type TechnologyConfig struct {
	Name         string              `yaml:"name"`
	Description  string              `yaml:"description"`
	Technologies Ordered[TechConfig] `yaml:"technologies"`
}

// TechConfig describes the models that make up one technology.
type TechConfig struct {
	PerformanceModel *ModelRef `yaml:"performance_model"`
	ControlStrategy  *ModelRef `yaml:"control_strategy"`
	CostModel        *ModelRef `yaml:"cost_model"`
	FinancialModel   *ModelRef `yaml:"financial_model"`

	// ModelInputs holds shared_parameters, performance_parameters,
	// cost_parameters, control_parameters and financial_parameters.
	ModelInputs map[string]map[string]any `yaml:"model_inputs"`
}

// ModelRef names the model used for one role of a technology. Custom models
// also name the class and where it lives.
type ModelRef struct {
	Model          string         `yaml:"model"`
	ModelClassName string         `yaml:"model_class_name"`
	ModelLocation  string         `yaml:"model_location"`
	Config         map[string]any `yaml:"config"`
}

// Name returns the model name or "" when r is nil.
func (r *ModelRef) Name() string {
	if r == nil {
		return ""
	}
	return r.Model
}

// IsCustom reports whether a custom class was named.
func (r *ModelRef) IsCustom() bool {
	return r != nil && (r.ModelClassName != "" || r.ModelLocation != "")
}

// CapitalItems returns model_inputs.financial_parameters.capital_items.
func (t TechConfig) CapitalItems() map[string]any {
	return t.financialSection("capital_items")
}

// FixedCosts returns model_inputs.financial_parameters.fixed_costs.
func (t TechConfig) FixedCosts() map[string]any {
	return t.financialSection("fixed_costs")
}

func (t TechConfig) financialSection(name string) map[string]any {
	fp, ok := t.ModelInputs["financial_parameters"]
	if !ok {
		return nil
	}
	m, _ := fp[name].(map[string]any)
	return m
}
