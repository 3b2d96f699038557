package serialization

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/born-ml/radioml/internal/tensor"
)

// wrapperPrefixes are added by data-parallel training wrappers.
var wrapperPrefixes = []string{"module.", "_orig_mod."}

// LoadCheckpoint reads a checkpoint into a state dict. Files with a
// torch.save extension (see TorchExtensions) are unpickled, anything else
// is read as SafeTensors.
//
// A prefix shared by every key and added by a training wrapper
// ("module.") is stripped so keys match the Sequential layout.
func LoadCheckpoint(path string) (map[string]*tensor.RawTensor, error) {
	var (
		sd  map[string]*tensor.RawTensor
		err error
	)
	if IsTorchCheckpoint(path) {
		sd, err = LoadTorch(path)
	} else {
		sd, err = loadSafeTensors(path)
	}
	if err != nil {
		return nil, err
	}
	return stripWrapperPrefix(sd), nil
}

func loadSafeTensors(path string) (map[string]*tensor.RawTensor, error) {
	r, err := OpenSafeTensors(path)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint: %w", err)
	}
	defer func() { _ = r.Close() }()

	sd, err := r.ReadStateDict()
	if err != nil {
		return nil, fmt.Errorf("read checkpoint %s: %w", path, err)
	}
	return sd, nil
}

func stripWrapperPrefix(sd map[string]*tensor.RawTensor) map[string]*tensor.RawTensor {
	for _, prefix := range wrapperPrefixes {
		all := len(sd) > 0
		for key := range sd {
			if !strings.HasPrefix(key, prefix) {
				all = false
				break
			}
		}
		if !all {
			continue
		}
		out := make(map[string]*tensor.RawTensor, len(sd))
		for key, raw := range sd {
			out[strings.TrimPrefix(key, prefix)] = raw
		}
		sd = out
	}
	return sd
}

// FileChecksum returns the hex SHA-256 of a file.
func FileChecksum(path string) (string, error) {
	//nolint:gosec // G304: path is user supplied by design
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	sum, err := ComputeChecksumReader(f)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sum[:]), nil
}

// ComputeChecksumReader computes SHA-256 hash from an io.Reader.
func ComputeChecksumReader(r io.Reader) ([32]byte, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return [32]byte{}, fmt.Errorf("failed to compute checksum: %w", err)
	}
	var checksum [32]byte
	copy(checksum[:], h.Sum(nil))
	return checksum, nil
}
