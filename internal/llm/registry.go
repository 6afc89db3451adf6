// Package llm builds the chat models and image generator the backend streams
// from.
package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"ugc-studio/internal/config"
	"ugc-studio/pkg/logger"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/qwen"
	einoModel "github.com/cloudwego/eino/components/model"
)

const (
	ProviderOpenAI = "openai"
	ProviderGoogle = "google"
	ProviderOllama = "ollama"
	ProviderDoubao = "doubao"
	ProviderQwen   = "qwen"
)

var ErrUnknownProvider = errors.New("unknown provider")

// Registry maps provider names to chat models.
type Registry struct {
	models   map[string]einoModel.BaseChatModel
	fallback string
}

func NewRegistry(fallback string) *Registry {
	return &Registry{
		models:   make(map[string]einoModel.BaseChatModel),
		fallback: fallback,
	}
}

// NewRegistryFromConfig builds every provider that has enough configuration
// to be reachable. Ollama needs no key.
func NewRegistryFromConfig(ctx context.Context, cfg config.ProvidersConfig) (*Registry, error) {
	r := NewRegistry(cfg.Default)

	openaiCompatible := []struct {
		name string
		cfg  config.OpenAIConfig
		need bool
	}{
		{ProviderOpenAI, cfg.OpenAI, true},
		{ProviderGoogle, cfg.Google, true},
		{ProviderOllama, cfg.Ollama, false},
	}
	for _, p := range openaiCompatible {
		if p.need && p.cfg.APIKey == "" {
			continue
		}
		if p.cfg.Model == "" {
			continue
		}
		r.Register(p.name, newOpenAIChatModel(p.name, p.cfg))
	}

	if cfg.Doubao.APIKey != "" {
		m, err := newDoubaoModel(ctx, cfg.Doubao)
		if err != nil {
			return nil, err
		}
		r.Register(ProviderDoubao, m)
	}

	if cfg.Qwen.APIKey != "" {
		m, err := newQwenModel(ctx, cfg.Qwen)
		if err != nil {
			return nil, err
		}
		r.Register(ProviderQwen, m)
	}

	logger.Infof("Chat providers available: %v (default %q)", r.Names(), cfg.Default)
	return r, nil
}

func (r *Registry) Register(name string, m einoModel.BaseChatModel) {
	r.models[name] = m
}

// Get resolves name, falling back to the default provider when empty.
func (r *Registry) Get(name string) (einoModel.BaseChatModel, string, error) {
	if name == "" {
		name = r.fallback
	}
	m, ok := r.models[name]
	if !ok {
		return nil, name, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return m, name, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newDoubaoModel(ctx context.Context, cfg config.DoubaoConfig) (einoModel.BaseChatModel, error) {
	ac := &ark.ChatModelConfig{
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		BaseURL: cfg.BaseURL,
		CustomHeader: map[string]string{
			"X-Ark-Thinking-Mode": "disable",
		},
	}
	if cfg.Timeout > 0 {
		ac.Timeout = &cfg.Timeout
	}

	chatModel, err := ark.NewChatModel(ctx, ac)
	if err != nil {
		return nil, fmt.Errorf("failed to create doubao model: %w", err)
	}
	return chatModel, nil
}

func newQwenModel(ctx context.Context, cfg config.QwenConfig) (einoModel.BaseChatModel, error) {
	httpClient := newHTTPClient(cfg.Timeout)
	if cfg.DebugRequest {
		httpClient = newDebugHTTPClient(cfg.Timeout, ProviderQwen)
	}

	qc := &qwen.ChatModelConfig{
		BaseURL:    cfg.BaseURL,
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		Timeout:    cfg.Timeout,
		HTTPClient: httpClient,
	}
	if cfg.MaxTokens > 0 {
		qc.MaxTokens = &cfg.MaxTokens
	}
	if cfg.Temperature > 0 {
		qc.Temperature = &cfg.Temperature
	}
	if cfg.TopP > 0 {
		qc.TopP = &cfg.TopP
	}

	chatModel, err := qwen.NewChatModel(ctx, qc)
	if err != nil {
		return nil, fmt.Errorf("failed to create qwen model: %w", err)
	}
	return chatModel, nil
}
