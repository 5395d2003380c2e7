package types

import (
	"fmt"
	"time"
)

// CurrentCaseVersion is the current version of the stored case struct.
const CurrentCaseVersion = 2

// Run is one invocation of a driver.
type Run struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Driver      string    `json:"driver"`
	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt,omitzero"`
	Cases       int       `json:"cases"`
	// BestIteration is the case with the lowest objective, -1 when the run
	// has no objective.
	BestIteration int    `json:"bestIteration"`
	Error         string `json:"error,omitempty"`
}

// Case is one evaluation of the model.
type Case struct {
	RunID     string    `json:"runID"`
	Iteration int       `json:"iteration"`
	Timestamp time.Time `json:"timestamp"`

	DesignVariables map[string]float64 `json:"designVariables,omitempty"`
	Objectives      map[string]float64 `json:"objectives,omitempty"`
	Constraints     map[string]float64 `json:"constraints,omitempty"`
	// Outputs holds every scalar output, keyed by promoted path.
	Outputs map[string]float64 `json:"outputs,omitempty"`
	// Timeseries is only recorded when the recorder asks for it.
	Timeseries map[string][]float64 `json:"timeseries,omitempty"`

	Feasible bool   `json:"feasible"`
	Error    string `json:"error,omitempty"`

	// Objective is the single objective stored by version 1 cases.
	Objective *float64 `json:"objective,omitempty"`
	// ObjectiveName accompanies Objective in version 1 cases.
	ObjectiveName string `json:"objectiveName,omitempty"`
}

// MigrateCase migrates a stored case to the current version.
// It returns the migrated case, a boolean indicating if changes were made, and an error if migration failed.
func MigrateCase(c Case, currentVersion int) (Case, bool, error) {
	if currentVersion >= CurrentCaseVersion {
		return c, false, nil
	}

	migrated := false
	for version := currentVersion + 1; version <= CurrentCaseVersion; version++ {
		switch version {
		case 1:
			// version 1: initial
		case 2:
			// version 2: objectives keyed by name
			if c.Objective != nil {
				name := c.ObjectiveName
				if name == "" {
					name = "objective"
				}
				if c.Objectives == nil {
					c.Objectives = map[string]float64{}
				}
				c.Objectives[name] = *c.Objective
				c.Objective = nil
				c.ObjectiveName = ""
				migrated = true
			}
		default:
			return c, false, fmt.Errorf("unknown case version: %d", version)
		}
	}
	return c, migrated, nil
}
