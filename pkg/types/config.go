package types

import (
	"fmt"
)

// Config is a fully loaded top-level input: the three config files plus where
// they were read from.
type Config struct {
	Name          string
	SystemSummary string

	Driver     DriverConfig
	Technology TechnologyConfig
	Plant      PlantConfig

	// BaseDir is the directory of the top-level file.
	BaseDir string
	// TechDir is the directory of the technology config. Custom model
	// locations are relative to it.
	TechDir string
}

// NTimesteps returns the simulation length, defaulting to one hourly year.
func (c *Config) NTimesteps() int {
	if c.Plant.Plant.Simulation.NTimesteps <= 0 {
		return DefaultTimesteps
	}
	return c.Plant.Plant.Simulation.NTimesteps
}

// MigratePlantConfig migrates the plant config to the current version.
// It returns the migrated config, a boolean indicating if changes were made, and an error if migration failed.
func MigratePlantConfig(p PlantConfig, currentVersion int) (PlantConfig, bool, error) {
	if currentVersion >= CurrentConfigVersion {
		return p, false, nil
	}

	migrated := false
	for version := currentVersion + 1; version <= CurrentConfigVersion; version++ {
		switch version {
		case 1:
			// version 1: explicit simulation axis
			if p.Plant.Simulation.NTimesteps == 0 {
				p.Plant.Simulation.NTimesteps = DefaultTimesteps
				migrated = true
			}
			if p.Plant.Simulation.Dt == 0 {
				p.Plant.Simulation.Dt = 3600
				migrated = true
			}
		case 2:
			// version 2: profast_general_inflation renamed
			if fp := p.FinanceParameters; fp != nil && fp.CostingGeneralInflation == 0 && fp.ProfastGeneralInflation != 0 {
				fp.CostingGeneralInflation = fp.ProfastGeneralInflation
				fp.ProfastGeneralInflation = 0
				migrated = true
			}
		case 3:
			// version 3: cost_year defaults to the analysis start year
			if p.Plant.CostYear == 0 && p.Plant.FinancialAnalysisStartYear != 0 {
				p.Plant.CostYear = p.Plant.FinancialAnalysisStartYear
				migrated = true
			}
		default:
			return p, false, fmt.Errorf("unknown config version: %d", version)
		}
	}
	p.Version = CurrentConfigVersion
	return p, migrated, nil
}
