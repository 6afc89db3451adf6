package service

import (
	"context"
	"fmt"

	"ugc-studio/internal/llm"
	"ugc-studio/internal/model"
	"ugc-studio/pkg/logger"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

const historyPlaceholder = "message_histories"

// Generator turns a stream request into a provider stream: system prompt,
// trimmed history and the images attached to the latest user turn.
type Generator struct {
	registry   *llm.Registry
	template   prompt.ChatTemplate
	maxHistory int
}

func NewGenerator(registry *llm.Registry, systemPrompt string, maxHistory int) *Generator {
	return &Generator{
		registry:   registry,
		template:   newChatPrompt(systemPrompt),
		maxHistory: maxHistory,
	}
}

// newChatPrompt builds the template. The system prompt is an FString
// template, so literal braces must be doubled.
func newChatPrompt(systemPrompt string) prompt.ChatTemplate {
	if systemPrompt == "" {
		return prompt.FromMessages(schema.FString,
			schema.MessagesPlaceholder(historyPlaceholder, false),
		)
	}
	return prompt.FromMessages(schema.FString,
		schema.SystemMessage(systemPrompt),
		schema.MessagesPlaceholder(historyPlaceholder, false),
	)
}

// Resolve reports which provider a request would use, or an error when the
// provider is not configured.
func (g *Generator) Resolve(provider string) (string, error) {
	_, name, err := g.registry.Get(provider)
	return name, err
}

func (g *Generator) Stream(ctx context.Context, req *model.StreamRequest) (*schema.StreamReader[*schema.Message], string, error) {
	chatModel, name, err := g.registry.Get(req.Provider)
	if err != nil {
		return nil, name, err
	}

	history := historyMessages(req, g.maxHistory)
	messages, err := g.template.Format(ctx, map[string]any{
		historyPlaceholder: history,
	})
	if err != nil {
		return nil, name, fmt.Errorf("failed to format prompt: %w", err)
	}

	logger.Infof("Streaming chat %s via %s with %d history messages", req.ChatID, name, len(history))

	stream, err := chatModel.Stream(ctx, messages)
	if err != nil {
		return nil, name, fmt.Errorf("failed to start %s stream: %w", name, err)
	}
	return stream, name, nil
}

// historyMessages keeps the newest maxMessages request messages and attaches
// the prompt images and this turn's images to the last user message.
func historyMessages(req *model.StreamRequest, maxMessages int) []*schema.Message {
	msgs := req.Messages
	if maxMessages > 0 && len(msgs) > maxMessages {
		msgs = msgs[len(msgs)-maxMessages:]
	}

	lastUser := -1
	for i, m := range msgs {
		if m.Role == model.RoleUser {
			lastUser = i
		}
	}

	images := make([]string, 0, len(req.PromptImages)+len(req.Images))
	images = append(images, req.PromptImages...)
	images = append(images, req.Images...)

	out := make([]*schema.Message, 0, len(msgs))
	for i, m := range msgs {
		role := schema.User
		switch m.Role {
		case model.RoleAssistant:
			role = schema.Assistant
		case model.RoleSystem:
			role = schema.System
		}

		if i != lastUser || len(images) == 0 {
			out = append(out, &schema.Message{Role: role, Content: m.Content})
			continue
		}

		parts := make([]schema.ChatMessagePart, 0, len(images)+1)
		if m.Content != "" {
			parts = append(parts, schema.ChatMessagePart{Type: schema.ChatMessagePartTypeText, Text: m.Content})
		}
		for _, u := range images {
			parts = append(parts, schema.ChatMessagePart{
				Type:     schema.ChatMessagePartTypeImageURL,
				ImageURL: &schema.ChatMessageImageURL{URL: u},
			})
		}
		out = append(out, &schema.Message{Role: role, MultiContent: parts})
	}
	return out
}
