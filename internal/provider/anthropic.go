package provider

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ledger-intake/internal/resilience"
	"github.com/sells-group/ledger-intake/pkg/anthropic"
)

// Anthropic extracts with Claude models.
type Anthropic struct {
	client       anthropic.Client
	defaultModel string
	maxTokens    int64
}

// NewAnthropic creates the Claude adapter.
func NewAnthropic(client anthropic.Client, defaultModel string, maxTokens int64) *Anthropic {
	return &Anthropic{client: client, defaultModel: defaultModel, maxTokens: maxTokens}
}

// Name implements Adapter.
func (a *Anthropic) Name() string { return "anthropic" }

// Extract implements Adapter.
func (a *Anthropic) Extract(ctx context.Context, req Request) (*Extraction, error) {
	model := firstNonEmpty(req.Model, a.defaultModel)
	temp := 0.0
	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       model,
		MaxTokens:   a.maxTokens,
		System:      []anthropic.SystemBlock{{Text: systemPrompt, Cached: true}},
		Temperature: &temp,
		Messages: []anthropic.Message{{
			Role:        "user",
			Content:     userPrompt(req),
			Attachments: []anthropic.Attachment{{MediaType: req.MimeType, Data: req.Data}},
		}},
	})
	if err != nil {
		return nil, resilience.ClassifyStatus(err, anthropic.StatusCode(err))
	}

	raw, err := ParseJSON(resp.Text())
	if err != nil {
		return nil, eris.Wrapf(err, "provider: anthropic %s", model)
	}
	return &Extraction{
		Raw:          raw,
		Model:        firstNonEmpty(resp.Model, model),
		InputTokens:  resp.Usage.InputTokens + resp.Usage.CacheCreationInputTokens + resp.Usage.CacheReadInputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
