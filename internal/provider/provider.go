// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider

import (
	"context"
	"fmt"
)

// Provider is the core interface for generative model providers.
type Provider interface {
	Name() string
	Available(ctx context.Context) bool
	ListModels(ctx context.Context) ([]ModelInfo, error)
	Chat(ctx context.Context, req ChatRequest) (<-chan ChatEvent, error)
	Status(ctx context.Context) (ProviderStatus, error)
	Close() error
}

// Router routes chat requests to the appropriate provider based on model name.
type Router interface {
	Route(ctx context.Context, modelName string) (Provider, string, error)
	RegisterProvider(name string, provider Provider) error
	Close() error
}

// HealthReporter is implemented by providers that track their own health.
type HealthReporter interface {
	RecordFailure()
	RecordSuccess()
}

// ChatRequest represents a request to the model.
type ChatRequest struct {
	Model        string
	Messages     []Message
	SystemPrompt string
	Options      ChatOptions
}

// ChatOptions contains model configuration.
type ChatOptions struct {
	Temperature   *float32
	MaxTokens     int
	StopSequences []string
}

// Message represents a conversation message.
type Message struct {
	Role    MessageRole
	Content string
}

// MessageRole defines the role of a message sender.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleSystem    MessageRole = "system"
)

// ChatEvent is a streaming response event. Err is set on EventTypeError and
// keeps its error code so callers can tell an unreachable upstream apart.
type ChatEvent struct {
	Type  EventType
	Text  string
	Usage *Usage
	Err   error
}

// EventType defines the type of chat event.
type EventType string

const (
	EventTypeTextDelta EventType = "text_delta"
	EventTypeUsage     EventType = "usage"
	EventTypeDone      EventType = "done"
	EventTypeError     EventType = "error"
)

// Usage tracks token consumption.
type Usage struct {
	InputTokens     int
	OutputTokens    int
	CacheReadTokens int
}

// ModelInfo describes a model's capabilities.
type ModelInfo struct {
	ID           string
	Name         string
	Provider     string
	Capabilities ModelCapabilities
}

// ModelCapabilities declares what a model supports.
type ModelCapabilities struct {
	SupportsStreaming bool
	MaxContextTokens  int
	MaxOutputTokens   int
}

// ProviderStatus indicates provider health.
type ProviderStatus struct {
	Available bool           `json:"available"`
	Provider  string         `json:"provider"`
	Message   string         `json:"message"`
	Health    *HealthMetrics `json:"health,omitempty"`
}

// Send delivers ev unless ctx is done first. It reports whether the event
// was delivered.
func Send(ctx context.Context, ch chan<- ChatEvent, ev ChatEvent) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

var displayNames = map[string]string{
	"google":    "Gemini",
	"openai":    "OpenAI",
	"anthropic": "Anthropic",
}

// DisplayName returns the user-facing service name of a provider.
func DisplayName(name string) string {
	if d, ok := displayNames[name]; ok {
		return d
	}
	return name
}

// UnreachableMessage is shown to users when the named provider cannot be
// contacted.
func UnreachableMessage(name string) string {
	return fmt.Sprintf("%s API is not working", DisplayName(name))
}
