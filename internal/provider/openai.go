package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	openai "github.com/sashabaranov/go-openai"

	"github.com/sells-group/ledger-intake/internal/resilience"
)

// ChatCompleter is the part of *openai.Client the adapter uses.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAI extracts with GPT vision models. It also serves any
// OpenAI-compatible endpoint through a custom base URL.
type OpenAI struct {
	name         string
	client       ChatCompleter
	defaultModel string
	maxTokens    int
}

// NewOpenAI creates an adapter registered as name.
func NewOpenAI(name string, client ChatCompleter, defaultModel string, maxTokens int) *OpenAI {
	return &OpenAI{name: name, client: client, defaultModel: defaultModel, maxTokens: maxTokens}
}

// NewOpenAIClient builds a go-openai client. baseURL may be empty.
func NewOpenAIClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

// Name implements Adapter.
func (o *OpenAI) Name() string { return o.name }

// Extract implements Adapter. Chat completions only take images, so PDFs are
// rejected as unsupported input.
func (o *OpenAI) Extract(ctx context.Context, req Request) (*Extraction, error) {
	if strings.EqualFold(req.MimeType, "application/pdf") {
		return nil, eris.Wrap(ErrImageUnsupported, "provider: openai chat completions do not accept PDF input")
	}
	model := firstNonEmpty(req.Model, o.defaultModel)
	dataURL := "data:" + req.MimeType + ";base64," + base64.StdEncoding.EncodeToString(req.Data)

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:          model,
		MaxTokens:      o.maxTokens,
		Temperature:    0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: userPrompt(req)},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
					URL:    dataURL,
					Detail: openai.ImageURLDetailHigh,
				}},
			}},
		},
	})
	if err != nil {
		return nil, resilience.ClassifyStatus(eris.Wrap(err, "provider: openai chat completion"), openAIStatus(err))
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	raw, err := ParseJSON(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, eris.Wrapf(err, "provider: openai %s", model)
	}
	return &Extraction{
		Raw:          raw,
		Model:        firstNonEmpty(resp.Model, model),
		InputTokens:  int64(resp.Usage.PromptTokens),
		OutputTokens: int64(resp.Usage.CompletionTokens),
	}, nil
}

func openAIStatus(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
