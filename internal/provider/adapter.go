package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/eino/schema"

	"github.com/loupe-ai/loupe/internal/logging"
	"github.com/loupe-ai/loupe/pkg/types"
)

// OutputFormat selects how the adapter interprets the model's reply.
type OutputFormat int

const (
	// FormatText returns the reply verbatim.
	FormatText OutputFormat = iota
	// FormatJSON expects a JSON document, possibly wrapped in a
	// markdown code fence, and unmarshals it.
	FormatJSON
)

// InvokeRequest is a single adapter call. The pool is tried in order;
// each entry retries transient failures with exponential backoff
// before the adapter moves to the next model.
type InvokeRequest struct {
	Pool        []types.ModelRef
	Messages    []*schema.Message
	Tools       []*schema.ToolInfo
	MaxTokens   int
	Temperature float32
	Format      OutputFormat
	Retries     int // per-model attempts, 0 means adapter default
}

// Adapter abstracts LLM completion for the session engine. Callers
// supply a model pool and get back either raw text or a typed value.
type Adapter interface {
	// Invoke runs a completion and returns the assistant text.
	Invoke(ctx context.Context, req *InvokeRequest) (string, error)

	// InvokeTyped runs a completion with Format JSON and unmarshals
	// the reply into out.
	InvokeTyped(ctx context.Context, req *InvokeRequest, out any) error
}

// EinoAdapter implements Adapter on top of a provider Registry.
type EinoAdapter struct {
	registry *Registry
}

// NewAdapter creates an adapter backed by the given registry.
func NewAdapter(registry *Registry) *EinoAdapter {
	return &EinoAdapter{registry: registry}
}

const defaultRetries = 2

func (a *EinoAdapter) Invoke(ctx context.Context, req *InvokeRequest) (string, error) {
	msg, err := a.complete(ctx, req)
	if err != nil {
		return "", err
	}
	return msg.Content, nil
}

func (a *EinoAdapter) InvokeTyped(ctx context.Context, req *InvokeRequest, out any) error {
	msg, err := a.complete(ctx, req)
	if err != nil {
		return err
	}

	raw := StripCodeFence(msg.Content)
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("malformed model response: %w", err)
	}
	return nil
}

// complete tries each model in the pool in order until one succeeds.
func (a *EinoAdapter) complete(ctx context.Context, req *InvokeRequest) (*schema.Message, error) {
	if len(req.Pool) == 0 {
		return nil, fmt.Errorf("empty model pool")
	}

	var lastErr error
	for _, ref := range req.Pool {
		provider, err := a.registry.Get(ref.ProviderID)
		if err != nil {
			lastErr = err
			continue
		}

		msg, err := a.generateWithRetry(ctx, provider, ref.ModelID, req)
		if err == nil {
			return msg, nil
		}
		lastErr = err
		logging.Warn().
			Str("provider", ref.ProviderID).
			Str("model", ref.ModelID).
			Err(err).
			Msg("Model failed, trying next in pool")

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("all models in pool failed: %w", lastErr)
}

func (a *EinoAdapter) generateWithRetry(ctx context.Context, provider Provider, modelID string, req *InvokeRequest) (*schema.Message, error) {
	retries := req.Retries
	if retries <= 0 {
		retries = defaultRetries
	}

	var msg *schema.Message
	attempt := 0
	operation := func() error {
		attempt++
		var err error
		msg, err = provider.Generate(ctx, &CompletionRequest{
			Model:       modelID,
			Messages:    req.Messages,
			Tools:       req.Tools,
			MaxTokens:   req.MaxTokens,
			Temperature: float64(req.Temperature),
		})
		if err != nil {
			if attempt >= retries {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(newRetryBackoff(), ctx))
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// newRetryBackoff returns the retry policy for transient LLM errors.
func newRetryBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 1 * time.Second
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 2 * time.Minute
	b.RandomizationFactor = 0.5
	return b
}

// StripCodeFence removes a surrounding markdown code fence, if any.
// Models frequently wrap JSON replies in ```json blocks.
func StripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	// Drop the opening fence line (``` or ```json)
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		trimmed = trimmed[idx+1:]
	} else {
		return strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
	}

	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}
