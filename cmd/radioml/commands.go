package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/born-ml/radioml/internal/backend/cpu"
	"github.com/born-ml/radioml/internal/cost"
	"github.com/born-ml/radioml/internal/dataset"
	"github.com/born-ml/radioml/internal/device"
	"github.com/born-ml/radioml/internal/model"
	"github.com/born-ml/radioml/internal/onnx"
	"github.com/born-ml/radioml/internal/parallel"
	"github.com/born-ml/radioml/internal/pipeline"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Evaluate, export and score the classifier",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			summary, err := pipeline.Run(cmd.Context(), a.cfg, a.logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "accuracy %.4f  bops %.0f  w_bits %.0f  score %.6f\n",
				summary.Accuracy, summary.BOPs, summary.WeightBits, summary.Score)
			return nil
		},
	}
}

func newEvaluateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate",
		Short: "Classify the test partition and write metrics and plots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := pipeline.New(a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer p.Close()

			report, _, err := p.Evaluate(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "accuracy %.4f over %d frames\n", report.Accuracy, report.Count)
			for _, s := range report.PerSNR {
				if s.Count > 0 {
					fmt.Fprintf(out, "  snr %+3d dB  %.4f  (%d)\n", s.SNR, s.Accuracy, s.Count)
				}
			}
			return nil
		},
	}
}

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Export the checkpoint as a QONNX model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := pipeline.New(a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer p.Close()

			if _, err := p.Export(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), filepath.Join(a.cfg.OutputDir, a.cfg.ExportFile))
			return nil
		},
	}
}

func newCostCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cost [model.onnx]",
		Short: "Compute BOPs, weight bits and the normalized score",
		Long: "Analyzes a QONNX model. Without an argument the configured checkpoint " +
			"is exported first.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var report *cost.Report
			if len(args) == 1 {
				r, err := costOfFile(a, args[0])
				if err != nil {
					return err
				}
				report = r
			} else {
				p, err := pipeline.New(a.cfg, a.logger)
				if err != nil {
					return err
				}
				defer p.Close()
				m, err := p.Export()
				if err != nil {
					return err
				}
				if report, err = p.Cost(m); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "bops %.0f  w_bits %.0f  score %.6f\n",
				report.TotalBOPs, report.TotalMemWBits, report.Score())
			return nil
		},
	}
}

func costOfFile(a *app, path string) (*cost.Report, error) {
	m, err := onnx.ParseFile(path)
	if err != nil {
		return nil, err
	}
	opts := cost.DefaultOptions()
	opts.DiscountSparsity = a.cfg.DiscountSparsity
	report, annotated, err := cost.InferenceCost(m, opts)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(a.cfg.OutputDir, 0o750); err != nil {
		return nil, err
	}
	if err := onnx.WriteFile(filepath.Join(a.cfg.OutputDir, a.cfg.FinalFile), annotated); err != nil {
		return nil, err
	}
	if err := report.WriteFile(filepath.Join(a.cfg.OutputDir, a.cfg.CostFile)); err != nil {
		return nil, err
	}
	a.logger.Info("inference cost", zap.String("model", path), zap.Float64("score", report.Score()))
	return report, nil
}

func newSplitCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "split",
		Short: "Write the train/test partition as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if out == "" {
				if err := os.MkdirAll(a.cfg.OutputDir, 0o750); err != nil {
					return err
				}
				out = filepath.Join(a.cfg.OutputDir, pipeline.SplitFile)
			}
			part, err := pipeline.WriteSplit(a.cfg, out)
			if err != nil {
				return err
			}
			a.logger.Info("split written",
				zap.String("file", out),
				zap.Int("train", len(part.Train)),
				zap.Int("test", len(part.Test)),
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "split-file", "", "output file (default <out>/split.json)")
	return cmd
}

func newSynthCmd(a *app) *cobra.Command {
	var (
		framesPerGroup int
		seed           uint32
	)
	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Write a synthetic dataset and a random checkpoint for smoke runs",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			o := a.cfg.Split
			if framesPerGroup > 0 {
				o.FramesPerGroup = framesPerGroup
			}
			if err := os.MkdirAll(a.cfg.DatasetDir, 0o750); err != nil {
				return err
			}
			if err := dataset.WriteSynthetic(a.cfg.DatasetDir, o, a.cfg.Model.FrameLength); err != nil {
				return err
			}

			seq, err := model.NewVGG10(a.cfg.Model, cpu.New())
			if err != nil {
				return err
			}
			if err := seq.LoadStateDict(model.RandomStateDict(seq, seed)); err != nil {
				return err
			}
			if dir := filepath.Dir(a.cfg.Checkpoint); dir != "" {
				if err := os.MkdirAll(dir, 0o750); err != nil {
					return err
				}
			}
			meta := map[string]string{"seed": fmt.Sprint(seed), "synthetic": "true"}
			if err := model.Save(a.cfg.Checkpoint, seq, meta); err != nil {
				return err
			}
			a.logger.Info("synthetic fixtures written",
				zap.String("dataset", a.cfg.DatasetDir),
				zap.Int("frames", o.Total()),
				zap.Int("frames_per_group", o.FramesPerGroup),
				zap.String("checkpoint", a.cfg.Checkpoint),
			)
			return nil
		},
	}
	cmd.Flags().IntVar(&framesPerGroup, "frames-per-group", 16, "frames per (modulation, SNR) group")
	cmd.Flags().Uint32Var(&seed, "seed", 1, "weight initialization seed")
	return cmd
}

func newDeviceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "device",
		Short: "Report the host CPU and the backend that would be selected",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kind, err := device.ParseKind(a.cfg.Device)
			if err != nil {
				return err
			}
			sel, err := device.Select(kind, parallel.WithWorkers(a.cfg.Workers))
			if err != nil {
				return err
			}
			defer sel.Close()

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				Selected        string         `json:"selected"`
				Backend         string         `json:"backend"`
				WebGPUAvailable bool           `json:"webgpu_available"`
				CPU             device.CPUInfo `json:"cpu"`
			}{
				Selected:        string(sel.Kind),
				Backend:         sel.Backend.Name(),
				WebGPUAvailable: device.WebGPUAvailable(),
				CPU:             sel.CPU,
			})
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "radioml %s\n", version)
		},
	}
}
