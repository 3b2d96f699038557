// Package device selects the compute backend for inference.
package device

import (
	"errors"
	"fmt"
	"strings"

	"github.com/born-ml/radioml/internal/backend/cpu"
	"github.com/born-ml/radioml/internal/parallel"
	"github.com/born-ml/radioml/internal/tensor"
	"github.com/klauspost/cpuid/v2"
)

// Kind names a compute device preference.
type Kind string

// Supported device preferences.
const (
	Auto   Kind = "auto"
	CPU    Kind = "cpu"
	WebGPU Kind = "webgpu"
)

// ErrUnavailable is returned when an explicitly requested device cannot be used.
var ErrUnavailable = errors.New("device not available")

// ParseKind validates a device preference string.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case Auto, CPU, WebGPU:
		return k, nil
	case "":
		return Auto, nil
	default:
		return "", fmt.Errorf("unknown device %q (want auto, cpu or webgpu)", s)
	}
}

// CPUInfo describes the host processor.
type CPUInfo struct {
	Brand         string   `json:"brand"`
	Vendor        string   `json:"vendor"`
	PhysicalCores int      `json:"physical_cores"`
	LogicalCores  int      `json:"logical_cores"`
	AVX2          bool     `json:"avx2"`
	AVX512        bool     `json:"avx512"`
	NEON          bool     `json:"neon"`
	Features      []string `json:"features"`
}

// DetectCPU reports the host CPU via cpuid.
func DetectCPU() CPUInfo {
	c := cpuid.CPU
	return CPUInfo{
		Brand:         c.BrandName,
		Vendor:        c.VendorString,
		PhysicalCores: c.PhysicalCores,
		LogicalCores:  c.LogicalCores,
		AVX2:          c.Supports(cpuid.AVX2),
		AVX512:        c.Supports(cpuid.AVX512F, cpuid.AVX512DQ),
		NEON:          c.Supports(cpuid.ASIMD),
		Features:      c.FeatureSet(),
	}
}

// Selection is the outcome of device selection.
type Selection struct {
	Kind    Kind
	Backend tensor.Backend
	CPU     CPUInfo

	release func()
}

// Close releases device resources. Safe to call more than once.
func (s *Selection) Close() {
	if s.release != nil {
		s.release()
		s.release = nil
	}
}

// Select picks a backend for pref. Auto prefers WebGPU when an adapter is
// present and falls back to the CPU. Requesting WebGPU explicitly on a host
// without it returns ErrUnavailable.
func Select(pref Kind, cfg parallel.Config) (*Selection, error) {
	info := DetectCPU()

	switch pref {
	case CPU:
		return &Selection{Kind: CPU, Backend: cpu.NewWithConfig(cfg), CPU: info}, nil
	case WebGPU, Auto:
		backend, release, err := openWebGPU()
		if err == nil {
			return &Selection{Kind: WebGPU, Backend: backend, CPU: info, release: release}, nil
		}
		if pref == WebGPU {
			return nil, fmt.Errorf("webgpu: %w: %v", ErrUnavailable, err)
		}
		return &Selection{Kind: CPU, Backend: cpu.NewWithConfig(cfg), CPU: info}, nil
	default:
		return nil, fmt.Errorf("unknown device %q", pref)
	}
}
