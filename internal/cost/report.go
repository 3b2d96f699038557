package cost

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Map flattens the report into the key layout of the JSON report:
// every aggregated cost key, the totals and the unsupported op types.
func (r *Report) Map() map[string]any {
	out := make(map[string]any, len(r.Costs)+7)
	for k, v := range r.Costs {
		out[k] = v
	}
	out["total_bops"] = r.TotalBOPs
	out["total_macs"] = r.TotalMACs
	out["total_mem_w_bits"] = r.TotalMemWBits
	out["total_mem_w_elems"] = r.TotalMemWElems
	out["total_mem_o_bits"] = r.TotalMemOBits
	out["total_mem_o_elems"] = r.TotalMemOElems
	unsupported := r.Unsupported
	if unsupported == nil {
		unsupported = []string{}
	}
	out["unsupported"] = unsupported
	return out
}

// Score returns the normalized score of the report.
func (r *Report) Score() float64 {
	return Score(r.TotalBOPs, r.TotalMemWBits)
}

// WriteJSON writes the flattened report, keys sorted.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r.Map())
}

// WriteFile writes the JSON report to path.
func (r *Report) WriteFile(path string) (err error) {
	//nolint:gosec // G304: path is user supplied by design
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create cost report: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()
	return r.WriteJSON(f)
}

// ReadTotals reads total_bops and total_mem_w_bits back from a JSON report.
func ReadTotals(path string) (bops, weightBits float64, err error) {
	//nolint:gosec // G304: path is user supplied by design
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, fmt.Errorf("read cost report: %w", err)
	}
	var totals struct {
		BOPs       *float64 `json:"total_bops"`
		WeightBits *float64 `json:"total_mem_w_bits"`
	}
	if err := json.Unmarshal(data, &totals); err != nil {
		return 0, 0, fmt.Errorf("parse cost report %s: %w", path, err)
	}
	if totals.BOPs == nil || totals.WeightBits == nil {
		return 0, 0, fmt.Errorf("cost report %s lacks total_bops or total_mem_w_bits", path)
	}
	return *totals.BOPs, *totals.WeightBits, nil
}
