package types

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// CurrentConfigVersion is the current version of the plant config schema.
// Increment this value when adding fields that require default values.
const CurrentConfigVersion = 3

// DefaultTimesteps is one hourly year.
const DefaultTimesteps = 8760

// PlantConfig is the plant_config file: site, plant parameters, how the
// technologies are wired together and how they are financed.
type PlantConfig struct {
	Version     int    `yaml:"version" json:"version"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`

	Site  SiteConfig      `yaml:"site" json:"site"`
	Plant PlantParameters `yaml:"plant" json:"plant"`

	TechnologyInterconnections []Interconnection `yaml:"technology_interconnections" json:"technologyInterconnections"`
	ResourceToTechConnections  []Interconnection `yaml:"resource_to_tech_connections" json:"resourceToTechConnections"`

	FinanceParameters *FinanceParameters `yaml:"finance_parameters" json:"financeParameters,omitempty"`
}

// PlantParameters are the plant-wide economic and simulation settings.
type PlantParameters struct {
	// PlantLife is the operating life in years.
	PlantLife int `yaml:"plant_life" json:"plantLife"`
	// CostYear is the dollar year every cost is adjusted to.
	CostYear int `yaml:"cost_year" json:"costYear"`
	// InstallationTime is the construction period in months.
	InstallationTime           int                  `yaml:"installation_time" json:"installationTime"`
	FinancialAnalysisStartYear int                  `yaml:"financial_analysis_start_year" json:"financialAnalysisStartYear"`
	GridConnection             bool                 `yaml:"grid_connection" json:"gridConnection"`
	Simulation                 SimulationParameters `yaml:"simulation" json:"simulation"`
}

// SimulationParameters describe the simulated time axis.
type SimulationParameters struct {
	NTimesteps int `yaml:"n_timesteps" json:"nTimesteps"`
	// Dt is the timestep in seconds. Only hourly steps are supported.
	Dt        int    `yaml:"dt" json:"dt"`
	StartTime string `yaml:"start_time" json:"startTime"`
	Timezone  int    `yaml:"timezone" json:"timezone"`
}

// Start parses StartTime ("2006-01-02 15:04:05", "01/02 15:04:05" or RFC3339).
// Without a year component the simulation is placed in 2023.
func (s SimulationParameters) Start() (time.Time, error) {
	loc := time.FixedZone("site", s.Timezone*3600)
	if s.StartTime == "" {
		return time.Date(2023, 1, 1, 0, 0, 0, 0, loc), nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006/01/02 15:04:05"} {
		if t, err := time.ParseInLocation(layout, s.StartTime, loc); err == nil {
			return t, nil
		}
	}
	t, err := time.ParseInLocation("01/02 15:04:05", s.StartTime, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid start_time %q: %w", s.StartTime, err)
	}
	return t.AddDate(2023, 0, 0), nil
}

// SiteConfig is the location of the plant and its resources.
type SiteConfig struct {
	Latitude   float64                 `yaml:"latitude" json:"latitude"`
	Longitude  float64                 `yaml:"longitude" json:"longitude"`
	ElevationM float64                 `yaml:"elevation_m" json:"elevationM"`
	TimeZone   int                     `yaml:"time_zone" json:"timeZone"`
	Boundaries []Boundary              `yaml:"boundaries" json:"boundaries,omitempty"`
	Resources  Ordered[ResourceConfig] `yaml:"resources" json:"-"`
}

// Boundary is a site polygon.
type Boundary struct {
	X []float64 `yaml:"x" json:"x"`
	Y []float64 `yaml:"y" json:"y"`
}

// ResourceConfig points a site resource at its data.
type ResourceConfig struct {
	Filename string `yaml:"filename"`
	URL      string `yaml:"url"`
	// Parameters holds generator settings such as mean_wind_speed.
	Parameters map[string]any `yaml:",inline"`
}

// FinanceParameters is the finance_parameters section. Named finance groups
// (nickname -> model and inputs) are collected from the remaining keys.
type FinanceParameters struct {
	Commodity     string `yaml:"commodity"`
	CommodityDesc string `yaml:"commodity_desc"`

	// FinanceModel and ModelInputs form the default finance group when set.
	FinanceModel string         `yaml:"finance_model"`
	ModelInputs  map[string]any `yaml:"model_inputs"`

	// CostingGeneralInflation escalates each tech's costs from its own cost
	// year to plant.cost_year.
	CostingGeneralInflation float64 `yaml:"costing_general_inflation"`
	// ProfastGeneralInflation is the pre-v2 name of CostingGeneralInflation.
	ProfastGeneralInflation float64 `yaml:"profast_general_inflation"`

	Subgroups                     Ordered[Subgroup]   `yaml:"subgroups"`
	TechnologiesIncludedInMetrics map[string][]string `yaml:"technologies_included_in_metrics"`

	Groups map[string]FinanceGroup `yaml:",inline"`
}

// FinanceGroup names a finance model and its inputs.
type FinanceGroup struct {
	FinanceModel string         `yaml:"finance_model"`
	ModelInputs  map[string]any `yaml:"model_inputs"`
}

// Subgroup is a set of technologies financed together for one commodity.
type Subgroup struct {
	Commodity     string        `yaml:"commodity"`
	CommodityDesc string        `yaml:"commodity_desc"`
	FinanceGroups StringOrSlice `yaml:"finance_groups"`
	Technologies  []string      `yaml:"technologies"`
}

// StringOrSlice decodes either a scalar string or a list of strings.
type StringOrSlice []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *StringOrSlice) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		*s = StringOrSlice{n.Value}
		return nil
	case yaml.SequenceNode:
		var out []string
		if err := n.Decode(&out); err != nil {
			return err
		}
		*s = out
		return nil
	}
	return fmt.Errorf("line %d: expected a string or a list of strings", n.Line)
}
