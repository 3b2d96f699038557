package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault_Valid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, uint32(2018), cfg.Split.Seed)
	assert.Equal(t, 1024, cfg.BatchSize)
	assert.Equal(t, 24, cfg.Model.Classes)
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	path := writeFile(t, `
dataset_dir: /data/rml
batch_size: 256
device: cpu
split:
  min_train_snr_index: 5
model:
  filters_conv: 32
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/rml", cfg.DatasetDir)
	assert.Equal(t, 256, cfg.BatchSize)
	assert.Equal(t, "cpu", cfg.Device)
	assert.Equal(t, 5, cfg.Split.MinTrainSNRIndex)
	assert.Equal(t, uint32(2018), cfg.Split.Seed)
	assert.Equal(t, 32, cfg.Model.FiltersConv)
	assert.Equal(t, 128, cfg.Model.FiltersDense)
	assert.Equal(t, "model_cost.json", cfg.CostFile)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown key", "batch_sise: 3\n"},
		{"bad batch size", "batch_size: 0\n"},
		{"bad device", "device: tpu\n"},
		{"bad split", "split:\n  test_fraction: 1.5\n"},
		{"bad model", "model:\n  frame_length: 1000\n"},
		{"class mismatch", "model:\n  classes: 10\n"},
		{"zero baseline", "baseline:\n  bops: 0\n"},
		{"not yaml", "::\n\t- ["},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.content))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate_Sentinel(t *testing.T) {
	cfg := Default()
	cfg.OutputDir = ""
	assert.ErrorIs(t, cfg.Validate(), ErrInvalid)

	var nilCfg *Config
	assert.ErrorIs(t, nilCfg.Validate(), ErrInvalid)
}

func TestApplyOverrides(t *testing.T) {
	cfg := Default()
	snr := 3
	cfg.ApplyOverrides(Overrides{
		DatasetDir:  "/d",
		Checkpoint:  "/c.safetensors",
		BatchSize:   64,
		Device:      "cpu",
		Workers:     2,
		MinTrainSNR: &snr,
		NoPlots:     true,
	})
	assert.Equal(t, "/d", cfg.DatasetDir)
	assert.Equal(t, "/c.safetensors", cfg.Checkpoint)
	assert.Equal(t, "out", cfg.OutputDir)
	assert.Equal(t, 64, cfg.BatchSize)
	assert.Equal(t, "cpu", cfg.Device)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, 3, cfg.Split.MinTrainSNRIndex)
	assert.False(t, cfg.Plots)

	before := *cfg
	cfg.ApplyOverrides(Overrides{})
	assert.Equal(t, before, *cfg)
}

func TestWrite_RoundTrip(t *testing.T) {
	cfg := Default()
	cfg.BatchSize = 77
	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, cfg.Write(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
