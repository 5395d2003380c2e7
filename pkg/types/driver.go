package types

// DriverConfig is the driver_config file. Without an optimization or design of
// experiments section the model is run once.
type DriverConfig struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	General     GeneralConfig  `yaml:"general"`
	Driver      DriverSettings `yaml:"driver"`

	DesignVariables Ordered[Ordered[DesignVariable]] `yaml:"design_variables"`
	Objective       *Objective                       `yaml:"objective"`
	Constraints     Ordered[Ordered[Constraint]]     `yaml:"constraints"`
	Recorder        *RecorderConfig                  `yaml:"recorder"`
}

type GeneralConfig struct {
	FolderOutput string `yaml:"folder_output"`
}

type DriverSettings struct {
	Optimization        OptimizationSettings `yaml:"optimization"`
	DesignOfExperiments DOESettings          `yaml:"design_of_experiments"`
}

type OptimizationSettings struct {
	Flag   bool    `yaml:"flag"`
	Solver string  `yaml:"solver"`
	Tol    float64 `yaml:"tol"`
	// MaxIter bounds the number of model evaluations.
	MaxIter int `yaml:"max_iter"`
}

type DOESettings struct {
	Flag bool `yaml:"flag"`
	// Generator is "fullfact" or "csvgen".
	Generator string `yaml:"generator"`
	Levels    int    `yaml:"levels"`
	Filename  string `yaml:"filename"`
}

// DesignVariable bounds one promoted input of a technology.
type DesignVariable struct {
	Flag  bool    `yaml:"flag"`
	Lower float64 `yaml:"lower"`
	Upper float64 `yaml:"upper"`
	Units string  `yaml:"units"`
}

// Objective names the output to minimize, e.g. finance_subgroup_h2.LCOH.
type Objective struct {
	Name string  `yaml:"name"`
	Ref  float64 `yaml:"ref"`
}

// Constraint bounds one output.
type Constraint struct {
	Flag   bool     `yaml:"flag"`
	Lower  *float64 `yaml:"lower"`
	Upper  *float64 `yaml:"upper"`
	Equals *float64 `yaml:"equals"`
	Units  string   `yaml:"units"`
}

// RecorderConfig controls case recording.
type RecorderConfig struct {
	Flag bool `yaml:"flag"`
	// File is the sqlite database path, relative to folder_output.
	File string `yaml:"file"`
	// Provider overrides the -storage-provider flag.
	Provider         string `yaml:"provider"`
	RecordTimeseries bool   `yaml:"record_timeseries"`
}
