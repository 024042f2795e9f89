package quadra

// Usage is a model-usage report: how many tokens one model call consumed.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// RateTable holds per-1000-token dollar rates for a model.
type RateTable struct {
	InputPer1K  float64 `json:"input_per_1k" yaml:"input_per_1k"`
	OutputPer1K float64 `json:"output_per_1k" yaml:"output_per_1k"`
}

// DefaultRateTable returns approximate Claude Sonnet pricing.
func DefaultRateTable() RateTable {
	return RateTable{
		InputPer1K:  0.003,
		OutputPer1K: 0.015,
	}
}

// EstimateCost converts a usage report into a dollar estimate. The value
// is accumulated at full precision; round only for display. Malformed
// usage (negative counts) contributes zero for that side.
func EstimateCost(usage Usage, rates RateTable) float64 {
	in, out := usage.InputTokens, usage.OutputTokens
	if in < 0 {
		in = 0
	}
	if out < 0 {
		out = 0
	}
	return float64(in)/1000*rates.InputPer1K + float64(out)/1000*rates.OutputPer1K
}
