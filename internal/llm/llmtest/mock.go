// Package llmtest provides a scripted mock model client for tests.
package llmtest

import (
	"context"
	"sync"

	"github.com/mfranzen/storyforge/internal/llm"
)

// MockClient returns configured responses in sequence and records every
// request it receives. Safe for concurrent use.
//
//	mock := &llmtest.MockClient{Responses: []*llm.Response{
//	    {Content: `{"ok":true}`, Model: "test-model"},
//	}}
type MockClient struct {
	mu        sync.Mutex
	Responses []*llm.Response
	Err       error // takes precedence over Responses

	// Respond, when set, overrides Responses and computes the reply from
	// the request. Useful for pipelines whose call count varies.
	Respond func(req llm.Request) (*llm.Response, error)

	requests []llm.Request
	index    int

	// Block, when non-nil, is received from before each reply, letting
	// tests hold calls in flight to observe scheduler occupancy.
	Block chan struct{}
}

// Complete implements llm.Client.
func (m *MockClient) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	respond := m.Respond
	block := m.Block
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if respond != nil {
		return respond(req)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	if m.index < len(m.Responses) {
		resp := m.Responses[m.index]
		m.index++
		return resp, nil
	}
	return &llm.Response{Content: "{}", Model: "test-model"}, nil
}

// Calls returns the number of completed Complete invocations.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns a copy of the captured requests.
func (m *MockClient) Requests() []llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]llm.Request, len(m.requests))
	copy(out, m.requests)
	return out
}
