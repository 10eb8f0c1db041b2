// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package openai generates answers through the OpenAI Chat Completions API
// or any server that speaks it, such as Ollama or vLLM.
package openai

import (
	"context"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/sigil-dev/docqa/internal/provider"
	dqerr "github.com/sigil-dev/docqa/pkg/errors"
)

// Config holds OpenAI provider configuration.
type Config struct {
	APIKey string
	// BaseURL points the client at an OpenAI-compatible server. Local
	// servers accept any API key.
	BaseURL string
}

// Provider implements provider.Provider using the OpenAI Chat Completions API.
type Provider struct {
	client openaisdk.Client
	config Config
	health *provider.HealthTracker
}

var _ provider.HealthReporter = (*Provider)(nil)

// New creates a new OpenAI provider. The API key is required unless BaseURL
// is set.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		if cfg.BaseURL == "" {
			return nil, dqerr.New(dqerr.CodeProviderRequestInvalid, "openai: missing api_key in config", dqerr.FieldProvider("openai"))
		}
		cfg.APIKey = "unused"
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Provider{
		client: openaisdk.NewClient(opts...),
		config: cfg,
		health: provider.MustHealthTracker(),
	}, nil
}

func (p *Provider) Name() string { return "openai" }

func (p *Provider) Available(_ context.Context) bool {
	return p.health.IsHealthy()
}

func (p *Provider) RecordFailure() { p.health.RecordFailure() }
func (p *Provider) RecordSuccess() { p.health.RecordSuccess() }

// knownModels returns the hardcoded set of known OpenAI models.
func knownModels() []provider.ModelInfo {
	return []provider.ModelInfo{
		{
			ID:       "gpt-4.1",
			Name:     "GPT-4.1",
			Provider: "openai",
			Capabilities: provider.ModelCapabilities{
				SupportsStreaming: true,
				MaxContextTokens:  128000,
				MaxOutputTokens:   32768,
			},
		},
		{
			ID:       "gpt-4.1-mini",
			Name:     "GPT-4.1 Mini",
			Provider: "openai",
			Capabilities: provider.ModelCapabilities{
				SupportsStreaming: true,
				MaxContextTokens:  128000,
				MaxOutputTokens:   16384,
			},
		},
		{
			ID:       "gpt-4.1-nano",
			Name:     "GPT-4.1 Nano",
			Provider: "openai",
			Capabilities: provider.ModelCapabilities{
				SupportsStreaming: true,
				MaxContextTokens:  128000,
				MaxOutputTokens:   16384,
			},
		},
	}
}

// ListModels returns the known hosted models, or the models served by a
// compatible server when BaseURL is set.
func (p *Provider) ListModels(ctx context.Context) ([]provider.ModelInfo, error) {
	if p.config.BaseURL == "" {
		return knownModels(), nil
	}

	page, err := p.client.Models.List(ctx)
	if err != nil {
		return nil, dqerr.ClassifyUpstream(err, dqerr.CodeProviderUpstreamUnreachable, dqerr.CodeProviderUpstreamFailure, "openai: listing models")
	}
	models := make([]provider.ModelInfo, 0, len(page.Data))
	for _, m := range page.Data {
		models = append(models, provider.ModelInfo{
			ID:           m.ID,
			Name:         m.ID,
			Provider:     "openai",
			Capabilities: provider.ModelCapabilities{SupportsStreaming: true},
		})
	}
	return models, nil
}

func (p *Provider) Chat(ctx context.Context, req provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	params, err := buildParams(req, p.config.BaseURL != "")
	if err != nil {
		return nil, dqerr.Wrapf(err, dqerr.CodeProviderRequestInvalid, "openai: building request params")
	}

	eventCh := make(chan provider.ChatEvent, 100)

	go func() {
		defer close(eventCh)
		p.streamChat(ctx, params, eventCh)
	}()

	return eventCh, nil
}

func (p *Provider) Status(_ context.Context) (provider.ProviderStatus, error) {
	return p.health.Status("openai"), nil
}

func (p *Provider) Close() error { return nil }

// buildParams converts a provider.ChatRequest into OpenAI SDK ChatCompletionNewParams.
// Compatible servers get the older max_tokens field, which they all accept.
func buildParams(req provider.ChatRequest, compatible bool) (openaisdk.ChatCompletionNewParams, error) {
	msgs, err := convertMessages(req.Messages, req.SystemPrompt)
	if err != nil {
		return openaisdk.ChatCompletionNewParams{}, err
	}

	params := openaisdk.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: msgs,
		StreamOptions: openaisdk.ChatCompletionStreamOptionsParam{
			IncludeUsage: param.NewOpt(true),
		},
	}

	if req.Options.MaxTokens > 0 {
		if compatible {
			params.MaxTokens = param.NewOpt(int64(req.Options.MaxTokens))
		} else {
			params.MaxCompletionTokens = param.NewOpt(int64(req.Options.MaxTokens))
		}
	}

	if req.Options.Temperature != nil {
		params.Temperature = param.NewOpt(float64(*req.Options.Temperature))
	}

	if len(req.Options.StopSequences) > 0 {
		params.Stop = openaisdk.ChatCompletionNewParamsStopUnion{
			OfStringArray: req.Options.StopSequences,
		}
	}

	return params, nil
}

// convertMessages transforms provider.Message slices into OpenAI SDK message params.
// The system prompt is prepended as a system message if present.
func convertMessages(msgs []provider.Message, systemPrompt string) ([]openaisdk.ChatCompletionMessageParamUnion, error) {
	var result []openaisdk.ChatCompletionMessageParamUnion

	if systemPrompt != "" {
		result = append(result, openaisdk.SystemMessage(systemPrompt))
	}

	for _, msg := range msgs {
		switch msg.Role {
		case provider.MessageRoleUser:
			result = append(result, openaisdk.UserMessage(msg.Content))
		case provider.MessageRoleAssistant:
			result = append(result, openaisdk.AssistantMessage(msg.Content))
		case provider.MessageRoleSystem:
			result = append(result, openaisdk.SystemMessage(msg.Content))
		default:
			return nil, dqerr.Errorf(dqerr.CodeProviderRequestInvalid, "openai: unsupported message role %q", msg.Role)
		}
	}

	return result, nil
}

// streamChat runs the streaming loop, converting SDK events into provider.ChatEvent values.
func (p *Provider) streamChat(ctx context.Context, params openaisdk.ChatCompletionNewParams, ch chan<- provider.ChatEvent) {
	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	for stream.Next() {
		chunk := stream.Current()

		for _, choice := range chunk.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			if !provider.Send(ctx, ch, provider.ChatEvent{Type: provider.EventTypeTextDelta, Text: choice.Delta.Content}) {
				return
			}
		}

		// Usage chunk (typically last chunk with stream_options.include_usage).
		if chunk.Usage.PromptTokens > 0 || chunk.Usage.CompletionTokens > 0 {
			provider.Send(ctx, ch, provider.ChatEvent{
				Type: provider.EventTypeUsage,
				Usage: &provider.Usage{
					InputTokens:     int(chunk.Usage.PromptTokens),
					OutputTokens:    int(chunk.Usage.CompletionTokens),
					CacheReadTokens: int(chunk.Usage.PromptTokensDetails.CachedTokens),
				},
			})
		}
	}

	if err := stream.Err(); err != nil {
		p.health.RecordFailure()
		provider.Send(ctx, ch, provider.ChatEvent{
			Type: provider.EventTypeError,
			Err:  dqerr.ClassifyUpstream(err, dqerr.CodeProviderUpstreamUnreachable, dqerr.CodeProviderUpstreamFailure, "openai: streaming completion for %s", params.Model),
		})
		return
	}

	p.health.RecordSuccess()
	provider.Send(ctx, ch, provider.ChatEvent{Type: provider.EventTypeDone})
}
