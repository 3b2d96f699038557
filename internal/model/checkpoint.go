package model

import (
	"fmt"
	"sort"
	"strings"

	"github.com/born-ml/radioml/internal/dataset/nprand"
	"github.com/born-ml/radioml/internal/nn"
	"github.com/born-ml/radioml/internal/serialization"
	"github.com/born-ml/radioml/internal/tensor"
)

// Load builds the classifier for cfg and loads a checkpoint into it,
// either SafeTensors or a torch.save archive (.pth, .pt). Every parameter must be present with the expected shape.
func Load[B tensor.Backend](path string, cfg VGG10Config, backend B) (*nn.Sequential[B], error) {
	seq, err := NewVGG10(cfg, backend)
	if err != nil {
		return nil, err
	}
	sd, err := serialization.LoadCheckpoint(path)
	if err != nil {
		return nil, err
	}
	if err := seq.LoadStateDict(sd); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return seq, nil
}

// Save writes the model's state dict as a SafeTensors checkpoint.
func Save[B tensor.Backend](path string, seq *nn.Sequential[B], metadata map[string]string) error {
	return serialization.WriteSafeTensors(path, seq.StateDict(), metadata)
}

// RandomStateDict returns a reproducible, fully populated state dict for
// seq. Weights are uniform in [-0.5, 0.5), batch norm scales and variances
// in [0.5, 1.5) and activation thresholds in [1, 3). It is meant for smoke
// runs without a trained checkpoint.
func RandomStateDict[B tensor.Backend](seq *nn.Sequential[B], seed uint32) map[string]*tensor.RawTensor {
	src := seq.StateDict()
	keys := make([]string, 0, len(src))
	for k := range src {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rng := nprand.New(seed)
	uniform := func() float32 {
		return float32(float64(rng.Uint32()) / (1 << 32))
	}

	out := make(map[string]*tensor.RawTensor, len(src))
	for _, key := range keys {
		raw := src[key].Clone()
		data := raw.AsFloat32()
		for i := range data {
			u := uniform()
			switch {
			case strings.HasSuffix(key, nn.QuantReLUScaleKey):
				data[i] = 1 + 2*u
			case strings.HasSuffix(key, "running_var"):
				data[i] = 0.5 + u
			case strings.HasSuffix(key, "running_mean"), strings.HasSuffix(key, "bias"):
				data[i] = 0.2 * (u - 0.5)
			case isBatchNormWeight(key, src):
				data[i] = 0.5 + u
			default:
				data[i] = u - 0.5
			}
		}
		out[key] = raw
	}
	return out
}

func isBatchNormWeight(key string, sd map[string]*tensor.RawTensor) bool {
	prefix, ok := strings.CutSuffix(key, "weight")
	if !ok {
		return false
	}
	_, ok = sd[prefix+"running_var"]
	return ok
}
