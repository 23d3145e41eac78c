package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Source kinds accepted by the extractor.
const (
	SourceSynthetic = "synthetic"
	SourceParquet   = "parquet"
	SourceDICOM     = "dicom"
	SourceHub       = "hub"
)

// AgeGroup is one bucket of the patient dimension's age_group attribute.
// Max < 0 means the bucket is open ended.
type AgeGroup struct {
	Label string `yaml:"label"`
	Min   int32  `yaml:"min"`
	Max   int32  `yaml:"max"`
}

// UnknownAgeGroup labels ages that fall in no bucket (or are missing).
const UnknownAgeGroup = "Unknown"

// TimeWindow bounds the calendar days generated into dim_time, relative to today.
type TimeWindow struct {
	PastDays   int `yaml:"past_days"`
	FutureDays int `yaml:"future_days"`
}

// SourceConfig selects and locates the external record source.
type SourceConfig struct {
	Kind    string `yaml:"kind"`
	Path    string `yaml:"path"`     // parquet file or DICOM directory
	BaseURL string `yaml:"base_url"` // datasets-server endpoint for kind=hub
	Dataset string `yaml:"dataset"`
	Split   string `yaml:"split"`
}

// Config holds all runtime configuration for a pipeline invocation. It is a
// plain value passed into each component.
type Config struct {
	DSN       string `yaml:"-"`
	LogFormat string `yaml:"-"` // "text" or "json"

	SampleSize        int          `yaml:"sample_size"`
	StagingCommitSize int          `yaml:"staging_commit_size"`
	PromoteBatchSize  int          `yaml:"promote_batch_size"`
	PromoteCommitSize int          `yaml:"promote_commit_size"`
	PatientPoolSize   int          `yaml:"patient_pool_size"`
	FacilityPoolSize  int          `yaml:"facility_pool_size"`
	AgeGroups         []AgeGroup   `yaml:"age_groups"`
	TimeWindow        TimeWindow   `yaml:"time_window"`
	Source            SourceConfig `yaml:"source"`
	Seed              SeedConfig   `yaml:"seed"`
}

// SeedConfig sizes the synthetic operational data set.
type SeedConfig struct {
	Patients                  int    `yaml:"patients"`
	Facilities                int    `yaml:"facilities"`
	MinEncountersPerPatient   int    `yaml:"min_encounters_per_patient"`
	MaxEncountersPerPatient   int    `yaml:"max_encounters_per_patient"`
	MinProceduresPerEncounter int    `yaml:"min_procedures_per_encounter"`
	MaxProceduresPerEncounter int    `yaml:"max_procedures_per_encounter"`
	RandomSeed                uint64 `yaml:"random_seed"`
}

// DefaultAgeGroups are the patient dimension's standard buckets.
func DefaultAgeGroups() []AgeGroup {
	return []AgeGroup{
		{Label: "18-30", Min: 18, Max: 30},
		{Label: "31-50", Min: 31, Max: 50},
		{Label: "51-70", Min: 51, Max: 70},
		{Label: "71+", Min: 71, Max: -1},
	}
}

// Default returns the standard pipeline parameters.
func Default() Config {
	return Config{
		LogFormat:         "text",
		SampleSize:        10000,
		StagingCommitSize: 1000,
		PromoteBatchSize:  5000,
		PromoteCommitSize: 500,
		PatientPoolSize:   1000,
		FacilityPoolSize:  5,
		AgeGroups:         DefaultAgeGroups(),
		TimeWindow:        TimeWindow{PastDays: 730, FutureDays: 365},
		Source: SourceConfig{
			Kind:    SourceHub,
			BaseURL: "https://datasets-server.huggingface.co",
			Dataset: "MedHK23/IMT-CXR",
			Split:   "train",
		},
		Seed: SeedConfig{
			Patients:                  5000,
			Facilities:                10,
			MinEncountersPerPatient:   1,
			MaxEncountersPerPatient:   8,
			MinProceduresPerEncounter: 1,
			MaxProceduresPerEncounter: 3,
			RandomSeed:                42,
		},
	}
}

// LoadFromFile reads a YAML config file and merges its values into Config.
// Keys absent from the file keep their current values.
func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return c.Validate()
}

// Validate checks that every sizing parameter is usable.
func (c *Config) Validate() error {
	positive := []struct {
		name string
		v    int
	}{
		{"sample_size", c.SampleSize},
		{"staging_commit_size", c.StagingCommitSize},
		{"promote_batch_size", c.PromoteBatchSize},
		{"promote_commit_size", c.PromoteCommitSize},
		{"patient_pool_size", c.PatientPoolSize},
		{"facility_pool_size", c.FacilityPoolSize},
	}
	for _, p := range positive {
		if p.v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", p.name, p.v)
		}
	}
	if c.TimeWindow.PastDays < 0 || c.TimeWindow.FutureDays < 0 {
		return fmt.Errorf("time_window days must not be negative")
	}
	if err := validateAgeGroups(c.AgeGroups); err != nil {
		return err
	}
	switch c.Source.Kind {
	case SourceSynthetic, SourceHub:
	case SourceParquet, SourceDICOM:
		if c.Source.Path == "" {
			return fmt.Errorf("source.path is required for source kind %q", c.Source.Kind)
		}
	default:
		return fmt.Errorf("unknown source kind %q", c.Source.Kind)
	}
	return nil
}

// ValidateWithDSN checks the config and that a DSN is present.
func (c *Config) ValidateWithDSN() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.DSN == "" {
		return fmt.Errorf("--dsn or DATABASE_URL is required")
	}
	return nil
}

func validateAgeGroups(groups []AgeGroup) error {
	if len(groups) == 0 {
		return fmt.Errorf("age_groups must not be empty")
	}
	for i, g := range groups {
		if g.Label == "" {
			return fmt.Errorf("age_groups[%d]: label is required", i)
		}
		if g.Max >= 0 && g.Max < g.Min {
			return fmt.Errorf("age_groups[%d] %q: max %d below min %d", i, g.Label, g.Max, g.Min)
		}
		if i > 0 {
			prev := groups[i-1]
			if prev.Max < 0 || g.Min <= prev.Max {
				return fmt.Errorf("age_groups[%d] %q overlaps %q", i, g.Label, prev.Label)
			}
		}
	}
	return nil
}

// AgeGroupArrays splits groups into parallel arrays for the dim_patient insert.
func AgeGroupArrays(groups []AgeGroup) (mins, maxes []int32, labels []string) {
	mins = make([]int32, len(groups))
	maxes = make([]int32, len(groups))
	labels = make([]string, len(groups))
	for i, g := range groups {
		mins[i] = g.Min
		maxes[i] = g.Max
		labels[i] = g.Label
	}
	return mins, maxes, labels
}
