package provider

// ModelCost is the price per million tokens for one model. Cost tables
// are static versioned data so prices can change without touching
// orchestration code.
type ModelCost struct {
	ModelID               string
	InputPerMillion       float64
	OutputPerMillion      float64
	CachedInputPerMillion float64
}

// CostTable is an ordered price list. The first entry doubles as the
// lenient fallback: an unrecognized model id is priced at the first
// entry rather than aborting a completed stream.
type CostTable []ModelCost

// Lookup returns the cost entry for modelID, falling back to the first
// entry when the id is unknown.
func (t CostTable) Lookup(modelID string) ModelCost {
	for _, entry := range t {
		if entry.ModelID == modelID {
			return entry
		}
	}
	if len(t) == 0 {
		return ModelCost{}
	}
	return t[0]
}

// Cost prices a turn in dollars. Linear in each token argument.
func (t CostTable) Cost(promptTokens, completionTokens, cachedTokens int, modelID string) float64 {
	entry := t.Lookup(modelID)
	return (float64(promptTokens)*entry.InputPerMillion +
		float64(completionTokens)*entry.OutputPerMillion +
		float64(cachedTokens)*entry.CachedInputPerMillion) / 1_000_000
}

// EstimateTokens approximates the token count of text for vendors that
// do not report usage in-stream: one token per four characters, rounded
// up. Deterministic so accounting is reproducible.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}
