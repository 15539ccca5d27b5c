package testutil

import (
	"context"
	"iter"
	"sync"

	"cmdai/model"
)

// MockProvider implements model.Provider for testing.
type MockProvider struct {
	// Configurable responses
	NameValue      string
	ListModelsFunc func(ctx context.Context) ([]string, error)
	StreamFunc     func(ctx context.Context, modelName string, messages []model.ChatMessage) iter.Seq2[string, error]
	ChatFunc       func(ctx context.Context, modelName string, messages []model.ChatMessage) (string, error)

	mu    sync.Mutex
	calls []Call
}

// Call records one StreamChat or Chat invocation.
type Call struct {
	Method   string
	Model    string
	Messages []model.ChatMessage
}

// NewMockProvider creates a mock provider with default implementations
func NewMockProvider(name string) *MockProvider {
	mock := &MockProvider{NameValue: name}
	mock.ListModelsFunc = mock.defaultListModels
	mock.StreamFunc = mock.defaultStream
	mock.ChatFunc = mock.defaultChat
	return mock
}

func (m *MockProvider) defaultListModels(ctx context.Context) ([]string, error) {
	return []string{"mock-model-1", "mock-model-2"}, nil
}

func (m *MockProvider) defaultStream(ctx context.Context, modelName string, messages []model.ChatMessage) iter.Seq2[string, error] {
	return Fragments("Mock ", "response")
}

func (m *MockProvider) defaultChat(ctx context.Context, modelName string, messages []model.ChatMessage) (string, error) {
	return "Mock response", nil
}

func (m *MockProvider) record(method, modelName string, messages []model.ChatMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: method, Model: modelName, Messages: messages})
}

// Calls returns the recorded StreamChat and Chat invocations.
func (m *MockProvider) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

func (m *MockProvider) Name() string {
	return m.NameValue
}

func (m *MockProvider) ListModels(ctx context.Context) ([]string, error) {
	return m.ListModelsFunc(ctx)
}

func (m *MockProvider) StreamChat(ctx context.Context, modelName string, messages []model.ChatMessage) iter.Seq2[string, error] {
	m.record("StreamChat", modelName, messages)
	return m.StreamFunc(ctx, modelName, messages)
}

func (m *MockProvider) Chat(ctx context.Context, modelName string, messages []model.ChatMessage) (string, error) {
	m.record("Chat", modelName, messages)
	return m.ChatFunc(ctx, modelName, messages)
}

// Fragments returns a sequence yielding each fragment with a nil error.
func Fragments(fragments ...string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, f := range fragments {
			if !yield(f, nil) {
				return
			}
		}
	}
}

// FragmentsThenError yields the fragments and then a terminal error.
func FragmentsThenError(err error, fragments ...string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, f := range fragments {
			if !yield(f, nil) {
				return
			}
		}
		yield("", err)
	}
}
