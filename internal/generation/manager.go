package generation

import (
	"context"
	"log"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	perrors "github.com/selune/engine/internal/platform/errors"
)

// Retry policy per provider: transport failures only.
const (
	maxAttempts     = 3
	initialInterval = time.Second
	maxInterval     = 10 * time.Second
)

// Manager tries providers in the order they were configured and returns
// the first valid response.
type Manager struct {
	providers []Provider

	initialInterval time.Duration
	maxInterval     time.Duration
}

// NewManager creates a manager over providers in priority order.
func NewManager(providers ...Provider) *Manager {
	return &Manager{
		providers:       providers,
		initialInterval: initialInterval,
		maxInterval:     maxInterval,
	}
}

// Providers returns the configured provider names in priority order.
func (m *Manager) Providers() []string {
	names := make([]string, len(m.providers))
	for i, p := range m.providers {
		names[i] = p.Name()
	}
	return names
}

// Generate runs the request through the provider chain. Each provider
// gets up to three attempts with exponential backoff, but only transport
// errors are retried; invalid or rejected output falls through to the
// next provider at once. Exhausting the chain is fatal for the turn.
func (m *Manager) Generate(ctx context.Context, req Request) (*Response, error) {
	ctx, span := otel.Tracer("github.com/selune/engine/internal/generation").Start(ctx, "generation.Generate")
	defer span.End()

	if len(m.providers) == 0 {
		span.SetStatus(codes.Error, "no provider")
		return nil, perrors.Wrap(perrors.CodeGenerationNoProvider, "generate", ErrNoProvider)
	}

	for _, p := range m.providers {
		text, err := m.generateWithRetry(ctx, p, req)
		if err != nil {
			log.Printf("generation provider failed provider=%s: %v", p.Name(), err)
			span.RecordError(err)
			continue
		}
		if !validResponse(text) {
			log.Printf("generation response rejected provider=%s len=%d", p.Name(), len(text))
			continue
		}
		span.SetAttributes(attribute.String("gen.provider", p.Name()))
		return &Response{Text: text, Provider: p.Name()}, nil
	}

	span.SetStatus(codes.Error, "all providers exhausted")
	return nil, perrors.Wrap(perrors.CodeGenerationNoProvider, "all providers exhausted", ErrNoProvider)
}

func (m *Manager) generateWithRetry(ctx context.Context, p Provider, req Request) (string, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = m.initialInterval
	policy.MaxInterval = m.maxInterval

	return backoff.Retry(ctx, func() (string, error) {
		text, err := p.Generate(ctx, req)
		if err != nil {
			if IsTransport(err) {
				return "", err
			}
			return "", backoff.Permanent(err)
		}
		return text, nil
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(maxAttempts))
}

// Health probes every provider.
func (m *Manager) Health(ctx context.Context) map[string]bool {
	out := make(map[string]bool, len(m.providers))
	for _, p := range m.providers {
		out[p.Name()] = p.Available(ctx)
	}
	return out
}
