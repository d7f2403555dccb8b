package provider

import (
	"math"
	"testing"
)

var testCosts = CostTable{
	{ModelID: "small", InputPerMillion: 0.15, OutputPerMillion: 0.60, CachedInputPerMillion: 0.075},
	{ModelID: "large", InputPerMillion: 2.50, OutputPerMillion: 10.00, CachedInputPerMillion: 1.25},
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-12
}

func TestCostLookup(t *testing.T) {
	if got := testCosts.Lookup("large"); got.OutputPerMillion != 10.00 {
		t.Errorf("Lookup(large) = %+v", got)
	}

	// Unknown ids are priced at the first entry.
	if got := testCosts.Lookup("does-not-exist"); got.ModelID != "small" {
		t.Errorf("fallback entry = %+v, want first entry", got)
	}

	var empty CostTable
	if got := empty.Lookup("anything"); got != (ModelCost{}) {
		t.Errorf("empty table lookup = %+v", got)
	}
}

func TestCostComputation(t *testing.T) {
	tests := []struct {
		name                      string
		prompt, completion, cached int
		modelID                   string
		want                      float64
	}{
		{"zero tokens", 0, 0, 0, "small", 0},
		{"prompt only", 1_000_000, 0, 0, "small", 0.15},
		{"completion only", 0, 1_000_000, 0, "small", 0.60},
		{"cached only", 0, 0, 1_000_000, "small", 0.075},
		{"mixed large", 100_000, 50_000, 200_000, "large", (100_000*2.50 + 50_000*10.00 + 200_000*1.25) / 1_000_000},
		{"unknown model falls back to first entry", 1_000_000, 0, 0, "mystery", 0.15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := testCosts.Cost(tt.prompt, tt.completion, tt.cached, tt.modelID)
			if !approxEqual(got, tt.want) {
				t.Errorf("Cost = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCostLinearity(t *testing.T) {
	// Doubling any one argument doubles its contribution.
	base := testCosts.Cost(100, 0, 0, "small")
	if !approxEqual(testCosts.Cost(200, 0, 0, "small"), 2*base) {
		t.Error("cost not linear in prompt tokens")
	}

	base = testCosts.Cost(0, 100, 0, "small")
	if !approxEqual(testCosts.Cost(0, 200, 0, "small"), 2*base) {
		t.Error("cost not linear in completion tokens")
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"12345678", 2},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.text); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}

	// Monotonic in length.
	prev := 0
	text := ""
	for i := 0; i < 50; i++ {
		text += "x"
		got := EstimateTokens(text)
		if got < prev {
			t.Fatalf("EstimateTokens decreased at length %d", i+1)
		}
		prev = got
	}
}
