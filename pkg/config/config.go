// Package config provides configuration loading and management for prfmapper.
// It handles loading configuration from YAML files, environment overrides and
// provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cast"
	"gonum.org/v1/gonum/floats"
	"gopkg.in/yaml.v3"

	"prfmapper/internal/models"
	"prfmapper/pkg/fit"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Grid describes the candidate pRF models in visual space
	Grid struct {
		// NumX is the number of modelled x-positions
		NumX int `yaml:"numX"`

		// ExtXMin and ExtXMax bound the x-positions in degrees of visual angle
		ExtXMin float64 `yaml:"extXMin"`
		ExtXMax float64 `yaml:"extXMax"`

		NumY    int     `yaml:"numY"`
		ExtYMin float64 `yaml:"extYMin"`
		ExtYMax float64 `yaml:"extYMax"`

		// NumSizes is the number of modelled pRF sizes (SD of the Gaussian)
		NumSizes int     `yaml:"numSizes"`
		SizeMin  float64 `yaml:"sizeMin"`
		SizeMax  float64 `yaml:"sizeMax"`
	} `yaml:"grid"`

	// Fitting parameters
	Fitting struct {
		// Strategy is "generic" or "specialized"
		Strategy string `yaml:"strategy"`

		// NumWorkers is the number of voxel partitions fitted in parallel
		NumWorkers int `yaml:"numWorkers"`

		// ProgressSteps is the number of progress milestones reported
		ProgressSteps int `yaml:"progressSteps"`
	} `yaml:"fitting"`

	// Input files
	Input struct {
		// VoxelFile holds the functional data as a (voxel, volume) array
		VoxelFile string `yaml:"voxelFile"`

		// ModelFile holds the model time courses as an (x, y, size, condition, volume) array
		ModelFile string `yaml:"modelFile"`
	} `yaml:"input"`

	// Output parameters
	Output struct {
		ResultFile string `yaml:"resultFile"`

		// Compress enables zstd compression of the result file
		Compress bool `yaml:"compress"`

		// MapDir, when set together with MapShape, receives JPEG slices of
		// the parameter maps
		MapDir string `yaml:"mapDir"`

		// MapShape is the (width, height, depth) of the voxel volume
		MapShape []int `yaml:"mapShape"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Grid.NumX = 40
	cfg.Grid.ExtXMin = -5.0
	cfg.Grid.ExtXMax = 5.0
	cfg.Grid.NumY = 40
	cfg.Grid.ExtYMin = -5.0
	cfg.Grid.ExtYMax = 5.0
	cfg.Grid.NumSizes = 40
	cfg.Grid.SizeMin = 0.2
	cfg.Grid.SizeMax = 7.0

	cfg.Fitting.Strategy = fit.Specialized.String()
	cfg.Fitting.NumWorkers = runtime.NumCPU() // Use all available cores by default
	cfg.Fitting.ProgressSteps = fit.DefaultProgressSteps

	cfg.Input.VoxelFile = "voxels.prfa"
	cfg.Input.ModelFile = "models.prfa"

	cfg.Output.ResultFile = "prf_results.prfa"
	cfg.Output.Compress = true
	cfg.Output.Verbose = true

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

// Environment variables that override the fitting and output settings
const (
	EnvStrategy      = "PRF_STRATEGY"
	EnvNumWorkers    = "PRF_NUM_WORKERS"
	EnvProgressSteps = "PRF_PROGRESS_STEPS"
	EnvCompress      = "PRF_COMPRESS"
)

// ApplyEnv overrides settings from the environment. lookup is usually
// os.LookupEnv.
func (cfg *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvStrategy); ok {
		cfg.Fitting.Strategy = v
	}
	if v, ok := lookup(EnvNumWorkers); ok {
		n, err := cast.ToIntE(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvNumWorkers, err)
		}
		cfg.Fitting.NumWorkers = n
	}
	if v, ok := lookup(EnvProgressSteps); ok {
		n, err := cast.ToIntE(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvProgressSteps, err)
		}
		cfg.Fitting.ProgressSteps = n
	}
	if v, ok := lookup(EnvCompress); ok {
		b, err := cast.ToBoolE(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvCompress, err)
		}
		cfg.Output.Compress = b
	}
	return nil
}

// Validate checks the configuration for values the pipeline cannot use
func (cfg *Config) Validate() error {
	g := cfg.Grid
	if g.NumX <= 0 || g.NumY <= 0 || g.NumSizes <= 0 {
		return fmt.Errorf("grid sizes must be positive, got %dx%dx%d", g.NumX, g.NumY, g.NumSizes)
	}
	if g.ExtXMin > g.ExtXMax || g.ExtYMin > g.ExtYMax || g.SizeMin > g.SizeMax {
		return fmt.Errorf("grid extents must be ordered min <= max")
	}
	if _, err := fit.ParseStrategy(cfg.Fitting.Strategy); err != nil {
		return err
	}
	if len(cfg.Output.MapShape) != 0 && len(cfg.Output.MapShape) != 3 {
		return fmt.Errorf("mapShape must have three entries, got %v", cfg.Output.MapShape)
	}
	return nil
}

// Strategy returns the configured fitting strategy
func (cfg *Config) Strategy() (fit.Strategy, error) {
	return fit.ParseStrategy(cfg.Fitting.Strategy)
}

// Axes builds the model parameter axes as evenly spaced values between
// the configured extents, endpoints included.
func (cfg *Config) Axes() models.ParameterAxes {
	g := cfg.Grid
	return models.ParameterAxes{
		X:     span(g.NumX, g.ExtXMin, g.ExtXMax),
		Y:     span(g.NumY, g.ExtYMin, g.ExtYMax),
		Sizes: span(g.NumSizes, g.SizeMin, g.SizeMax),
	}
}

func span(n int, lo, hi float64) []float64 {
	switch {
	case n <= 0:
		return nil
	case n == 1:
		return []float64{lo}
	default:
		return floats.Span(make([]float64, n), lo, hi)
	}
}
