package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func smokeConfig(t *testing.T) (string, string) {
	t.Helper()
	root := t.TempDir()
	cfg := strings.Join([]string{
		"dataset_dir: " + filepath.Join(root, "data"),
		"checkpoint: " + filepath.Join(root, "ckpt", "model.safetensors"),
		"output_dir: " + filepath.Join(root, "out"),
		"device: cpu",
		"batch_size: 32",
		"split:",
		"  snrs: 2",
		"  frames_per_group: 8",
		"model:",
		"  filters_conv: 4",
		"  filters_dense: 8",
		"  conv_blocks: 2",
		"  frame_length: 16",
	}, "\n")
	path := filepath.Join(root, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path, filepath.Join(root, "out")
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "radioml "+version)
}

func TestSynthThenRun(t *testing.T) {
	cfgPath, outDir := smokeConfig(t)

	_, err := execute(t, "--config", cfgPath, "--log-level", "warn", "synth", "--frames-per-group", "8")
	require.NoError(t, err)

	out, err := execute(t, "--config", cfgPath, "--log-level", "warn", "--no-plots", "run")
	require.NoError(t, err)
	assert.Contains(t, out, "score")
	assert.FileExists(t, filepath.Join(outDir, "summary.json"))
	assert.FileExists(t, filepath.Join(outDir, "model_export.onnx"))

	out, err = execute(t, "--config", cfgPath, "--log-level", "warn", "cost", filepath.Join(outDir, "model_export.onnx"))
	require.NoError(t, err)
	assert.Contains(t, out, "bops")

	_, err = execute(t, "--config", cfgPath, "--log-level", "warn", "split")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(outDir, "split.json"))
}

func TestFlagsOverrideConfig(t *testing.T) {
	cfgPath, _ := smokeConfig(t)
	_, err := execute(t, "--config", cfgPath, "--batch-size", "-1", "--device", "tpu", "version")
	require.NoError(t, err, "version skips config loading")

	_, err = execute(t, "--config", cfgPath, "--device", "tpu", "split")
	assert.Error(t, err)
}

func TestUnknownLogFormat(t *testing.T) {
	_, err := execute(t, "--log-format", "xml", "split")
	assert.Error(t, err)
}
