// Run configuration for the label balancer
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Feasibility gate policies.
const (
	// FeasibilityLiteral compares category one's capacity against the deficit,
	// whichever category is deficient.
	FeasibilityLiteral = "literal"
	// FeasibilityDeficient compares the deficient category's own capacity.
	FeasibilityDeficient = "deficient"
)

const (
	DefaultDestName     = "balanced_data"
	DefaultTheta        = 5.0
	DefaultFact         = 1.3
	DefaultThetaStep    = 5.0
	DefaultFactStep     = 0.3
	DefaultMultiplier   = 6
	DefaultWorkers      = 10
	DefaultImageWorkers = 1
	DefaultEngine       = "opencv"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Category maps a category id to the labels it owns.
type Category struct {
	ID     string   `yaml:"id" json:"id"`
	Labels []string `yaml:"labels" json:"labels"`
}

// LogConfig selects logrus level and formatter.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"` // "text" or "json"
}

// Config is built once at startup and passed by value. Nothing mutates it
// after Validate succeeds.
type Config struct {
	InDir    string `yaml:"in_dir" json:"in_dir"`
	OutDir   string `yaml:"out_dir" json:"out_dir"`
	DestName string `yaml:"dest_name" json:"dest_name"`

	Theta      float64 `yaml:"theta" json:"theta"`
	Fact       float64 `yaml:"fact" json:"fact"`
	ThetaStep  float64 `yaml:"theta_step" json:"theta_step"`
	FactStep   float64 `yaml:"fact_step" json:"fact_step"`
	Multiplier int     `yaml:"multiplier" json:"multiplier"`

	Workers      int    `yaml:"workers" json:"workers"`
	ImageWorkers int    `yaml:"image_workers" json:"image_workers"`
	Engine       string `yaml:"engine" json:"engine"`
	Seed         uint64 `yaml:"seed" json:"seed"`
	Feasibility  string `yaml:"feasibility" json:"feasibility"`

	Manifest    string `yaml:"manifest" json:"manifest"`
	MetricsFile string `yaml:"metrics_file" json:"metrics_file"`

	Categories []Category `yaml:"categories" json:"categories"`
	Log        LogConfig  `yaml:"log" json:"log"`
}

// DefaultCategories is the two-category problem: labels 1,2,3 against 4,5,6.
func DefaultCategories() []Category {
	return []Category{
		{ID: "1", Labels: []string{"1", "2", "3"}},
		{ID: "2", Labels: []string{"4", "5", "6"}},
	}
}

// Default returns the configuration used when neither file nor flags say otherwise.
func Default() Config {
	return Config{
		OutDir:       ".",
		DestName:     DefaultDestName,
		Theta:        DefaultTheta,
		Fact:         DefaultFact,
		ThetaStep:    DefaultThetaStep,
		FactStep:     DefaultFactStep,
		Multiplier:   DefaultMultiplier,
		Workers:      DefaultWorkers,
		ImageWorkers: DefaultImageWorkers,
		Engine:       DefaultEngine,
		Feasibility:  FeasibilityLiteral,
		Categories:   DefaultCategories(),
		Log:          LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads a YAML (or .json) file on top of Default. The result is not validated.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if filepath.Ext(path) == ".json" {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse JSON: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}
	return cfg, nil
}

// TotalMultiplier is the number of images one original can account for:
// the original itself plus every rotation and flipped rotation.
func (c Config) TotalMultiplier() int {
	return c.Multiplier*2 + 1
}

// VariantsPerImage is the rotation/flip budget of a single source image.
func (c Config) VariantsPerImage() int {
	return c.Multiplier * 2
}

// DestDir is the root of the balanced output tree.
func (c Config) DestDir() string {
	return filepath.Join(c.OutDir, c.DestName)
}

// Labels returns every label in category order.
func (c Config) Labels() []string {
	var labels []string
	for _, cat := range c.Categories {
		labels = append(labels, cat.Labels...)
	}
	return labels
}

// Validate checks ranges and the category table.
func (c Config) Validate() error {
	if c.InDir == "" {
		return fmt.Errorf("%w: in_dir is required", ErrInvalid)
	}
	if c.DestName == "" {
		return fmt.Errorf("%w: dest_name must not be empty", ErrInvalid)
	}
	if c.Multiplier < 1 {
		return fmt.Errorf("%w: multiplier must be at least 1, got %d", ErrInvalid, c.Multiplier)
	}
	if !finite(c.Theta) || !finite(c.ThetaStep) {
		return fmt.Errorf("%w: theta and theta_step must be finite", ErrInvalid)
	}
	if !finite(c.Fact) || c.Fact <= 0 {
		return fmt.Errorf("%w: fact must be positive, got %v", ErrInvalid, c.Fact)
	}
	if !finite(c.FactStep) || c.Fact+c.FactStep*float64(c.Multiplier-1) <= 0 {
		return fmt.Errorf("%w: fact_step drives the zoom factor non-positive", ErrInvalid)
	}
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers must be at least 1, got %d", ErrInvalid, c.Workers)
	}
	if c.ImageWorkers < 1 {
		return fmt.Errorf("%w: image_workers must be at least 1, got %d", ErrInvalid, c.ImageWorkers)
	}
	if c.Engine == "" {
		return fmt.Errorf("%w: engine must not be empty", ErrInvalid)
	}
	switch c.Feasibility {
	case FeasibilityLiteral, FeasibilityDeficient:
	default:
		return fmt.Errorf("%w: unknown feasibility policy %q", ErrInvalid, c.Feasibility)
	}
	return c.validateCategories()
}

func (c Config) validateCategories() error {
	if len(c.Categories) != 2 {
		return fmt.Errorf("%w: exactly two categories are required, got %d", ErrInvalid, len(c.Categories))
	}

	seen := make(map[string]string)
	ids := make(map[string]bool)
	for _, cat := range c.Categories {
		if cat.ID == "" {
			return fmt.Errorf("%w: category id must not be empty", ErrInvalid)
		}
		if ids[cat.ID] {
			return fmt.Errorf("%w: duplicate category id %q", ErrInvalid, cat.ID)
		}
		ids[cat.ID] = true
		if len(cat.Labels) == 0 {
			return fmt.Errorf("%w: category %q has no labels", ErrInvalid, cat.ID)
		}
		for _, label := range cat.Labels {
			if label == "" {
				return fmt.Errorf("%w: category %q has an empty label", ErrInvalid, cat.ID)
			}
			if owner, dup := seen[label]; dup {
				return fmt.Errorf("%w: label %q belongs to categories %q and %q", ErrInvalid, label, owner, cat.ID)
			}
			seen[label] = cat.ID
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
