package generation

import (
	"context"
	"encoding/json"
	"sync"
)

// Mock is a deterministic provider for development and tests. Responses
// rotate through the canned set; Fail schedules errors for upcoming
// calls.
type Mock struct {
	mu        sync.Mutex
	responses []string
	next      int
	failures  []error
}

// Default canned responses, already in the structured turn schema.
var defaultMockResponses = []string{
	mustMockJSON(Proposal{
		Text:              "She watches you from the doorway, an unreadable half-smile on her lips. \"You came at exactly the right moment,\" she murmurs.",
		VisualDescription: "companion standing by the doorway, soft light, enigmatic smile",
		Tags:              []string{"doorway", "soft_light", "smile"},
	}),
	mustMockJSON(Proposal{
		Text:              "\"I have been waiting all day for this,\" she admits, twisting a strand of hair around one finger.",
		VisualDescription: "companion twirling her hair, shy but pleased expression",
		Tags:              []string{"blushing", "playing_with_hair"},
	}),
	mustMockJSON(Proposal{
		Text:              "She steps closer, and the air between you tightens. \"Is there something you want to tell me?\"",
		VisualDescription: "companion leaning closer, intimate distance, detailed eyes",
		Tags:              []string{"close_up", "detailed_eyes", "leaning_forward"},
	}),
}

func mustMockJSON(p Proposal) string {
	b, err := json.Marshal(p)
	if err != nil {
		panic(err)
	}
	return string(b)
}

// NewMock creates a mock provider. With no responses given it uses the
// default canned set.
func NewMock(responses ...string) *Mock {
	if len(responses) == 0 {
		responses = defaultMockResponses
	}
	return &Mock{responses: responses}
}

func (m *Mock) Name() string { return "mock" }

// Fail schedules errs to be returned, in order, by the next calls to
// Generate before any canned response is served.
func (m *Mock) Fail(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, errs...)
}

func (m *Mock) Generate(ctx context.Context, req Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", &TransportError{Err: err}
	}
	if len(m.failures) > 0 {
		err := m.failures[0]
		m.failures = m.failures[1:]
		return "", err
	}

	resp := m.responses[m.next%len(m.responses)]
	m.next++
	return resp, nil
}

func (m *Mock) Available(context.Context) bool { return true }
