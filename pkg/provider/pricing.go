package provider

import "strings"

// modelRate is USD per million tokens.
type modelRate struct {
	input  float64
	output float64
}

// Pricing is keyed by model-name prefix; the longest matching prefix wins.
// Unlisted models cost zero, which keeps local and stub models free.
var pricing = map[string]modelRate{
	"gpt-4o-mini":       {input: 0.15, output: 0.60},
	"gpt-4o":            {input: 2.50, output: 10.00},
	"gpt-4.1-mini":      {input: 0.40, output: 1.60},
	"gpt-4.1":           {input: 2.00, output: 8.00},
	"o1":                {input: 15.00, output: 60.00},
	"o3-mini":           {input: 1.10, output: 4.40},
	"claude-3-haiku":    {input: 0.25, output: 1.25},
	"claude-3-5-haiku":  {input: 0.80, output: 4.00},
	"claude-3-5-sonnet": {input: 3.00, output: 15.00},
	"claude-sonnet":     {input: 3.00, output: 15.00},
	"claude-opus":       {input: 15.00, output: 75.00},
	"gemini-1.5-flash":  {input: 0.075, output: 0.30},
	"gemini-1.5-pro":    {input: 1.25, output: 5.00},
	"gemini-2.0-flash":  {input: 0.10, output: 0.40},
}

// EstimateCost returns the USD cost of a completion for a model.
func EstimateCost(model string, usage Usage) float64 {
	lower := strings.ToLower(model)

	var best string
	for prefix := range pricing {
		if strings.HasPrefix(lower, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return 0
	}

	rate := pricing[best]
	return float64(usage.PromptTokens)*rate.input/1e6 +
		float64(usage.CompletionTokens)*rate.output/1e6
}
