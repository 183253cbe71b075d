package provider

import (
	"context"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rotisserie/eris"
	"google.golang.org/api/option"
)

// Generator runs one Gemini generation. GeminiClient is the production
// implementation.
type Generator interface {
	Generate(ctx context.Context, model, system string, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// GeminiClient adapts *genai.Client to Generator.
type GeminiClient struct {
	client *genai.Client
}

// NewGeminiClient connects to the Gemini API with an API key.
func NewGeminiClient(ctx context.Context, apiKey string) (*GeminiClient, error) {
	c, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, eris.Wrap(err, "provider: gemini client")
	}
	return &GeminiClient{client: c}, nil
}

// Generate implements Generator with JSON output and zero temperature.
func (g *GeminiClient) Generate(ctx context.Context, model, system string, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	m := g.client.GenerativeModel(model)
	m.SetTemperature(0)
	m.ResponseMIMEType = "application/json"
	m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	return m.GenerateContent(ctx, parts...)
}

// Close releases the underlying connection.
func (g *GeminiClient) Close() error {
	return g.client.Close()
}

// Gemini extracts with Google Gemini models, which read both images and PDFs.
type Gemini struct {
	gen          Generator
	defaultModel string
}

// NewGemini creates the Gemini adapter.
func NewGemini(gen Generator, defaultModel string) *Gemini {
	return &Gemini{gen: gen, defaultModel: defaultModel}
}

// Name implements Adapter.
func (g *Gemini) Name() string { return "gemini" }

// Extract implements Adapter.
func (g *Gemini) Extract(ctx context.Context, req Request) (*Extraction, error) {
	model := firstNonEmpty(req.Model, g.defaultModel)
	resp, err := g.gen.Generate(ctx, model, systemPrompt,
		genai.Blob{MIMEType: req.MimeType, Data: req.Data},
		genai.Text(userPrompt(req)),
	)
	if err != nil {
		return nil, eris.Wrap(err, "provider: gemini generate")
	}

	var b strings.Builder
	if resp != nil {
		for _, c := range resp.Candidates {
			if c == nil || c.Content == nil {
				continue
			}
			for _, p := range c.Content.Parts {
				if t, ok := p.(genai.Text); ok {
					b.WriteString(string(t))
				}
			}
			break
		}
	}

	raw, err := ParseJSON(b.String())
	if err != nil {
		return nil, eris.Wrapf(err, "provider: gemini %s", model)
	}
	out := &Extraction{Raw: raw, Model: model}
	if resp.UsageMetadata != nil {
		out.InputTokens = int64(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int64(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}
