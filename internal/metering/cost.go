package metering

// modelRates holds per-1K-token USD rates for a model.
type modelRates struct {
	prompt     float64
	completion float64
}

// costPer1K is the static rate table used for cost estimation.
// Unknown models fall back to defaultRates rather than erroring.
var costPer1K = map[string]modelRates{
	"gpt-4-turbo":            {prompt: 0.01, completion: 0.03},
	"gpt-3.5-turbo":          {prompt: 0.0005, completion: 0.0015},
	"text-embedding-3-small": {prompt: 0.00002, completion: 0},
}

var defaultRates = modelRates{prompt: 0.001, completion: 0.002}

// EstimateCost returns the estimated USD cost of an LLM call. The estimate is
// linear in both token counts.
func EstimateCost(model string, promptTokens, completionTokens int) float64 {
	rates, ok := costPer1K[model]
	if !ok {
		rates = defaultRates
	}
	return float64(promptTokens)/1000*rates.prompt + float64(completionTokens)/1000*rates.completion
}
