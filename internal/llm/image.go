package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"ugc-studio/internal/config"

	openai "github.com/sashabaranov/go-openai"
)

// GeneratedImage is raw image bytes produced by an ImageGenerator.
type GeneratedImage struct {
	Data     []byte
	MimeType string
}

type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (*GeneratedImage, error)
}

type openaiImageGenerator struct {
	client *openai.Client
	model  string
	size   string
}

// NewImageGenerator returns a storyboard generator backed by the OpenAI
// images API, or nil when storyboards are disabled or no key is configured.
func NewImageGenerator(providers config.ProvidersConfig, sb config.StoryboardConfig) ImageGenerator {
	if !sb.Enabled || providers.OpenAI.APIKey == "" {
		return nil
	}

	clientConfig := openai.DefaultConfig(providers.OpenAI.APIKey)
	if providers.OpenAI.BaseURL != "" {
		clientConfig.BaseURL = providers.OpenAI.BaseURL
	}
	clientConfig.HTTPClient = newHTTPClient(providers.OpenAI.Timeout)

	return &openaiImageGenerator{
		client: openai.NewClientWithConfig(clientConfig),
		model:  sb.Model,
		size:   sb.Size,
	}
}

func (g *openaiImageGenerator) GenerateImage(ctx context.Context, prompt string) (*GeneratedImage, error) {
	resp, err := g.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          g.model,
		N:              1,
		Size:           g.size,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return nil, fmt.Errorf("create image: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, errors.New("create image: empty response")
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("create image: %w", err)
	}
	return &GeneratedImage{Data: data, MimeType: "image/png"}, nil
}
