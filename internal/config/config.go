// Package config holds the runtime knobs of an evaluation run.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/born-ml/radioml/internal/cost"
	"github.com/born-ml/radioml/internal/dataset"
	"github.com/born-ml/radioml/internal/device"
	"github.com/born-ml/radioml/internal/model"
	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation error.
var ErrInvalid = errors.New("invalid config")

// Config captures the runtime knobs of a pipeline run.
type Config struct {
	DatasetDir string `yaml:"dataset_dir" json:"dataset_dir"`
	Checkpoint string `yaml:"checkpoint" json:"checkpoint"`
	OutputDir  string `yaml:"output_dir" json:"output_dir"`

	BatchSize int    `yaml:"batch_size" json:"batch_size"`
	Device    string `yaml:"device" json:"device"`
	Workers   int    `yaml:"workers" json:"workers"`
	LogEvery  int    `yaml:"log_every" json:"log_every"`

	Split dataset.SplitOptions `yaml:"split" json:"split"`
	Model model.VGG10Config    `yaml:"model" json:"model"`

	ExportFile string `yaml:"export_file" json:"export_file"`
	FinalFile  string `yaml:"final_file" json:"final_file"`
	CostFile   string `yaml:"cost_file" json:"cost_file"`

	DiscountSparsity bool          `yaml:"discount_sparsity" json:"discount_sparsity"`
	Baseline         cost.Baseline `yaml:"baseline" json:"baseline"`
	Plots            bool          `yaml:"plots" json:"plots"`
}

// Default returns the configuration of the published evaluation.
func Default() *Config {
	return &Config{
		DatasetDir:       "data/radioml2018",
		Checkpoint:       "models/model_trained.safetensors",
		OutputDir:        "out",
		BatchSize:        1024,
		Device:           string(device.Auto),
		LogEvery:         50,
		Split:            dataset.DefaultSplitOptions(),
		Model:            model.DefaultVGG10Config(),
		ExportFile:       "model_export.onnx",
		FinalFile:        "model_final.onnx",
		CostFile:         "model_cost.json",
		DiscountSparsity: true,
		Baseline:         cost.DefaultBaseline(),
		Plots:            true,
	}
}

// Overrides captures CLI supplied values. Zero values leave the config
// untouched.
type Overrides struct {
	DatasetDir string
	Checkpoint string
	OutputDir  string
	BatchSize  int
	Device     string
	Workers    int
	LogEvery   int
	// MinTrainSNR is applied when non-nil.
	MinTrainSNR *int
	NoPlots     bool
}

// Load reads a YAML config on top of Default and validates it. Unknown
// keys are rejected.
func Load(path string) (*Config, error) {
	//nolint:gosec // G304: path is user supplied by design
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyOverrides updates c using any non-zero override.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.DatasetDir != "" {
		c.DatasetDir = o.DatasetDir
	}
	if o.Checkpoint != "" {
		c.Checkpoint = o.Checkpoint
	}
	if o.OutputDir != "" {
		c.OutputDir = o.OutputDir
	}
	if o.BatchSize > 0 {
		c.BatchSize = o.BatchSize
	}
	if o.Device != "" {
		c.Device = o.Device
	}
	if o.Workers > 0 {
		c.Workers = o.Workers
	}
	if o.LogEvery > 0 {
		c.LogEvery = o.LogEvery
	}
	if o.MinTrainSNR != nil {
		c.Split.MinTrainSNRIndex = *o.MinTrainSNR
	}
	if o.NoPlots {
		c.Plots = false
	}
}

// Validate verifies the config is runnable.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalid)
	}
	if c.DatasetDir == "" {
		return fmt.Errorf("%w: dataset_dir must be set", ErrInvalid)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("%w: output_dir must be set", ErrInvalid)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: batch_size must be > 0 (got %d)", ErrInvalid, c.BatchSize)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must be >= 0 (got %d)", ErrInvalid, c.Workers)
	}
	if _, err := device.ParseKind(c.Device); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := c.Split.Validate(); err != nil {
		return fmt.Errorf("%w: split: %w", ErrInvalid, err)
	}
	if err := c.Model.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if c.Split.Mods != c.Model.Classes {
		return fmt.Errorf("%w: split.mods %d != model.classes %d", ErrInvalid, c.Split.Mods, c.Model.Classes)
	}
	for name, v := range map[string]string{
		"export_file": c.ExportFile,
		"final_file":  c.FinalFile,
		"cost_file":   c.CostFile,
	} {
		if v == "" {
			return fmt.Errorf("%w: %s must be set", ErrInvalid, name)
		}
	}
	if c.Baseline.BOPs <= 0 || c.Baseline.WeightBits <= 0 {
		return fmt.Errorf("%w: baseline costs must be > 0", ErrInvalid)
	}
	if c.LogEvery < 0 {
		c.LogEvery = 0
	}
	return nil
}

// Write stores c as YAML.
func (c *Config) Write(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
