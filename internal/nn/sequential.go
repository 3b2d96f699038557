package nn

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/born-ml/radioml/internal/tensor"
)

// Sequential is a container module that chains multiple modules together.
//
// State-dict keys are prefixed with the module index ("3.weight",
// "12.running_var"), the naming PyTorch uses for nn.Sequential.
type Sequential[B tensor.Backend] struct {
	modules []Module[B]
}

// NewSequential creates a new Sequential container.
func NewSequential[B tensor.Backend](modules ...Module[B]) *Sequential[B] {
	return &Sequential[B]{modules: modules}
}

// Forward applies all modules in sequence.
func (s *Sequential[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	output := input
	for _, module := range s.modules {
		output = module.Forward(output)
	}
	return output
}

// Parameters returns all parameters from all modules.
func (s *Sequential[B]) Parameters() []*Parameter[B] {
	var params []*Parameter[B]
	for _, module := range s.modules {
		params = append(params, module.Parameters()...)
	}
	return params
}

// Add appends a module to the sequence.
func (s *Sequential[B]) Add(module Module[B]) {
	s.modules = append(s.modules, module)
}

// Len returns the number of modules in the sequence.
func (s *Sequential[B]) Len() int {
	return len(s.modules)
}

// Module returns the module at the given index.
//
// Panics if index is out of bounds.
func (s *Sequential[B]) Module(index int) Module[B] {
	if index < 0 || index >= len(s.modules) {
		panic("Sequential.Module: index out of bounds")
	}
	return s.modules[index]
}

// Modules returns the modules in order.
func (s *Sequential[B]) Modules() []Module[B] {
	return s.modules
}

// StateDict returns index-prefixed parameter tensors.
func (s *Sequential[B]) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	for i, module := range s.modules {
		for name, raw := range module.StateDict() {
			stateDict[fmt.Sprintf("%d.%s", i, name)] = raw
		}
	}
	return stateDict
}

// LoadStateDict loads parameters from an index-prefixed state dict.
//
// Every module with parameters must find all of them, and every key must
// belong to some module.
func (s *Sequential[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	perModule := make([]map[string]*tensor.RawTensor, len(s.modules))
	var stray []string

	for key, raw := range stateDict {
		idx, rest, ok := splitIndex(key)
		if !ok || idx >= len(s.modules) {
			stray = append(stray, key)
			continue
		}
		if perModule[idx] == nil {
			perModule[idx] = make(map[string]*tensor.RawTensor)
		}
		perModule[idx][rest] = raw
	}
	if len(stray) > 0 {
		sort.Strings(stray)
		return fmt.Errorf("%w: %s", ErrUnexpectedParameter, strings.Join(stray, ", "))
	}

	for i, module := range s.modules {
		if perModule[i] == nil && len(module.Parameters()) == 0 {
			continue
		}
		sd := perModule[i]
		if sd == nil {
			sd = map[string]*tensor.RawTensor{}
		}
		if err := module.LoadStateDict(sd); err != nil {
			return fmt.Errorf("failed to load module %d: %w", i, err)
		}
	}
	return nil
}

func splitIndex(key string) (int, string, bool) {
	head, rest, ok := strings.Cut(key, ".")
	if !ok || rest == "" {
		return 0, "", false
	}
	idx, err := strconv.Atoi(head)
	if err != nil || idx < 0 {
		return 0, "", false
	}
	return idx, rest, true
}
