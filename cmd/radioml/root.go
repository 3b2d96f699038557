package main

import (
	"fmt"

	"github.com/born-ml/radioml/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// app carries state shared by subcommands after flag parsing.
type app struct {
	configPath string
	logLevel   string
	logFormat  string

	overrides   config.Overrides
	minTrainSNR int

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "radioml",
		Short:         "Quantized modulation classifier: evaluation, QONNX export and cost scoring",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	f := root.PersistentFlags()
	f.StringVarP(&a.configPath, "config", "c", "", "path to YAML config (defaults are used when empty)")
	f.StringVar(&a.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	f.StringVar(&a.logFormat, "log-format", "console", "log format: console or json")
	f.StringVar(&a.overrides.DatasetDir, "data", "", "dataset directory holding X.npy, Y.npy and Z.npy")
	f.StringVar(&a.overrides.Checkpoint, "checkpoint", "", "checkpoint (.safetensors, or .pth/.pt from torch.save)")
	f.StringVarP(&a.overrides.OutputDir, "out", "o", "", "output directory")
	f.IntVar(&a.overrides.BatchSize, "batch-size", 0, "evaluation batch size")
	f.StringVar(&a.overrides.Device, "device", "", "compute device: auto, cpu or webgpu")
	f.IntVar(&a.overrides.Workers, "workers", 0, "CPU worker goroutines (0 = GOMAXPROCS)")
	f.IntVar(&a.overrides.LogEvery, "log-every", 0, "log throughput every N batches")
	f.IntVar(&a.minTrainSNR, "min-train-snr-index", 0, "drop training frames below this SNR index")
	f.BoolVar(&a.overrides.NoPlots, "no-plots", false, "skip PNG figures")

	root.AddCommand(
		newRunCmd(a),
		newEvaluateCmd(a),
		newExportCmd(a),
		newCostCmd(a),
		newSplitCmd(a),
		newSynthCmd(a),
		newDeviceCmd(a),
		newVersionCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	logger, err := newLogger(a.logLevel, a.logFormat)
	if err != nil {
		return err
	}
	a.logger = logger

	cfg := config.Default()
	if a.configPath != "" {
		if cfg, err = config.Load(a.configPath); err != nil {
			return err
		}
	}
	if cmd.Flags().Changed("min-train-snr-index") {
		a.overrides.MinTrainSNR = &a.minTrainSNR
	}
	cfg.ApplyOverrides(a.overrides)
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

func newLogger(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	var zc zap.Config
	switch format {
	case "json":
		zc = zap.NewProductionConfig()
	case "console":
		zc = zap.NewDevelopmentConfig()
		zc.DisableStacktrace = true
	default:
		return nil, fmt.Errorf("unknown log format %q (want console or json)", format)
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}
