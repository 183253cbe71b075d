// Package cost estimates the USD cost of vision provider calls.
package cost

import "strings"

// Rates maps provider name to per-model pricing.
type Rates map[string]map[string]ModelRate

// ModelRate is per-million-token pricing for one model.
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Price is a configured override for one provider model.
type Price struct {
	Provider string  `yaml:"provider" mapstructure:"provider"`
	Model    string  `yaml:"model" mapstructure:"model"`
	Input    float64 `yaml:"input" mapstructure:"input"`
	Output   float64 `yaml:"output" mapstructure:"output"`
}

// With returns a copy of r with prices applied on top.
func (r Rates) With(prices []Price) Rates {
	out := make(Rates, len(r))
	for p, models := range r {
		out[p] = make(map[string]ModelRate, len(models))
		for m, rate := range models {
			out[p][m] = rate
		}
	}
	for _, pr := range prices {
		p, m := strings.ToLower(pr.Provider), strings.ToLower(pr.Model)
		if p == "" || m == "" {
			continue
		}
		if out[p] == nil {
			out[p] = make(map[string]ModelRate)
		}
		out[p][m] = ModelRate{Input: pr.Input, Output: pr.Output}
	}
	return out
}

// Calculator prices token usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator. A nil rates map prices everything at zero.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Estimate returns the cost of one call. Models are looked up exactly first,
// then by the longest configured prefix so that dated snapshots such as
// "gpt-4o-2024-08-06" use the "gpt-4o" rate. Unknown models cost 0.
func (c *Calculator) Estimate(provider, model string, input, output int64) float64 {
	rate, ok := c.lookup(strings.ToLower(provider), strings.ToLower(model))
	if !ok {
		return 0
	}
	return float64(input)/1e6*rate.Input + float64(output)/1e6*rate.Output
}

func (c *Calculator) lookup(provider, model string) (ModelRate, bool) {
	models := c.rates[provider]
	if r, ok := models[model]; ok {
		return r, true
	}
	var best string
	for name := range models {
		if strings.HasPrefix(model, name) && len(name) > len(best) {
			best = name
		}
	}
	if best == "" {
		return ModelRate{}, false
	}
	return models[best], true
}

// DefaultRates returns list prices for the default vision models.
func DefaultRates() Rates {
	return Rates{
		"anthropic": {
			"claude-haiku-4-5":  {Input: 1.00, Output: 5.00},
			"claude-sonnet-4-5": {Input: 3.00, Output: 15.00},
			"claude-opus-4":     {Input: 15.00, Output: 75.00},
		},
		"openai": {
			"gpt-4o":      {Input: 2.50, Output: 10.00},
			"gpt-4o-mini": {Input: 0.15, Output: 0.60},
			"gpt-4.1":     {Input: 2.00, Output: 8.00},
		},
		"gemini": {
			"gemini-1.5-flash": {Input: 0.075, Output: 0.30},
			"gemini-1.5-pro":   {Input: 1.25, Output: 5.00},
			"gemini-2.0-flash": {Input: 0.10, Output: 0.40},
		},
	}
}
