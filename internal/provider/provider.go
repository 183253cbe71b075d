// Package provider sends document bytes to a vision model and returns the
// best-effort JSON it produced. Adapters are looked up by provider name.
package provider

import (
	"context"
	"strings"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ledger-intake/internal/resilience"
)

var (
	// ErrUnknownProvider is returned for a provider name with no adapter.
	ErrUnknownProvider = eris.New("provider: unknown provider")
	// ErrImageUnsupported is returned when the configured model cannot read
	// images or documents.
	ErrImageUnsupported = eris.New("provider: model does not accept image input")
	// ErrEmptyResponse is returned when the model produced no text.
	ErrEmptyResponse = eris.New("provider: empty response")
)

// Request is one extraction call.
type Request struct {
	Provider string
	Model    string

	Data     []byte
	MimeType string

	TenantName string
	Locale     string
	Aliases    []string
}

// Extraction is what an adapter returns: the parsed JSON object plus usage.
type Extraction struct {
	Raw          map[string]any
	Model        string
	InputTokens  int64
	OutputTokens int64
}

// Adapter extracts fields from one document with a specific provider.
type Adapter interface {
	Name() string
	Extract(ctx context.Context, req Request) (*Extraction, error)
}

// Registry holds the configured adapters and guards each with its own
// circuit breaker and retry policy.
type Registry struct {
	backoff  resilience.Backoff
	breakers *resilience.Breakers

	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty registry. Only transient errors count toward
// a provider's breaker unless cfg says otherwise.
func NewRegistry(backoff resilience.Backoff, cfg resilience.BreakerConfig) *Registry {
	if cfg.Counts == nil {
		cfg.Counts = resilience.IsTransient
	}
	return &Registry{
		backoff:  backoff,
		breakers: resilience.NewBreakers(cfg),
		adapters: make(map[string]Adapter),
	}
}

// Register adds or replaces the adapter for a.Name().
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[key(a.Name())] = a
}

// Get returns the adapter for name.
func (r *Registry) Get(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[key(name)]
	return a, ok
}

// Names lists the registered provider names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.adapters))
	for n := range r.adapters {
		out = append(out, n)
	}
	return out
}

// Extract dispatches req to the adapter registered for req.Provider.
func (r *Registry) Extract(ctx context.Context, req Request) (*Extraction, error) {
	a, ok := r.Get(req.Provider)
	if !ok {
		return nil, eris.Wrapf(ErrUnknownProvider, "provider: %q is not configured", req.Provider)
	}

	backoff := r.backoff
	backoff.OnRetry = resilience.LogRetries(a.Name(), "extract")
	out, err := resilience.Guard(ctx, r.breakers.Get(a.Name()), func(ctx context.Context) (*Extraction, error) {
		return resilience.Retry(ctx, backoff, func(ctx context.Context) (*Extraction, error) {
			return a.Extract(ctx, req)
		})
	})
	if err != nil {
		if IsImageUnsupported(err) {
			return nil, eris.Wrapf(ErrImageUnsupported,
				"The configured AI model (%s %s) does not support image input. Choose a vision-capable model in AI settings",
				a.Name(), req.Model)
		}
		return nil, eris.Wrapf(err, "provider: %s extract", a.Name())
	}
	return out, nil
}

// unsupportedMarkers are fragments of provider error messages returned when
// a text-only model receives an image.
var unsupportedMarkers = []string{
	"does not support image",
	"does not support images",
	"image input is not supported",
	"image_url is only supported",
	"invalid content type",
	"does not support vision",
	"multimodal is not supported",
	"unsupported mime type",
}

// IsImageUnsupported reports whether err says the model cannot take images.
func IsImageUnsupported(err error) bool {
	if err == nil {
		return false
	}
	if eris.Is(err, ErrImageUnsupported) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range unsupportedMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

func key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
