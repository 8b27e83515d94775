package provider

import (
	"context"
	"sync"
)

// ScriptedProvider replays canned responses in order. It backs the
// scenario runner and tests; after the script runs out it repeats the
// last response.
type ScriptedProvider struct {
	mu        sync.Mutex
	name      string
	responses []ChatResponse
	errs      []error
	calls     int
	requests  []ChatRequest
}

// NewScriptedProvider builds a provider that returns the given responses
// in sequence. A nil entry in errs means the corresponding call succeeds.
func NewScriptedProvider(name string, responses []ChatResponse, errs []error) *ScriptedProvider {
	return &ScriptedProvider{name: name, responses: responses, errs: errs}
}

// Name returns the scripted provider name.
func (s *ScriptedProvider) Name() string { return s.name }

// Models returns a single placeholder model.
func (s *ScriptedProvider) Models() []string { return []string{"scripted"} }

// Chat returns the next scripted response or error.
func (s *ScriptedProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.calls
	s.calls++
	s.requests = append(s.requests, req)

	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if len(s.responses) == 0 {
		return &ChatResponse{Content: "ok", FinishReason: FinishReasonStop}, nil
	}
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	resp := s.responses[i]
	return &resp, nil
}

// Calls returns how many chat calls were made.
func (s *ScriptedProvider) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Requests returns a copy of the recorded requests.
func (s *ScriptedProvider) Requests() []ChatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ChatRequest(nil), s.requests...)
}
