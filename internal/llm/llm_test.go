package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ugc-studio/internal/config"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertMessages(t *testing.T) {
	msgs := []*schema.Message{
		schema.SystemMessage("be brief"),
		schema.AssistantMessage("", nil),
		{
			Role: schema.User,
			MultiContent: []schema.ChatMessagePart{
				{Type: schema.ChatMessagePartTypeText, Text: "what is this"},
				{Type: schema.ChatMessagePartTypeImageURL, ImageURL: &schema.ChatMessageImageURL{URL: "http://x/a.png"}},
				{Type: schema.ChatMessagePartTypeImageURL},
			},
		},
	}

	out := convertMessages(msgs)
	require.Len(t, out, 2)
	assert.Equal(t, "system", out[0].Role)
	assert.Equal(t, "be brief", out[0].Content)

	assert.Equal(t, "user", out[1].Role)
	assert.Empty(t, out[1].Content)
	require.Len(t, out[1].MultiContent, 2)
	assert.Equal(t, "what is this", out[1].MultiContent[0].Text)
	assert.Equal(t, "http://x/a.png", out[1].MultiContent[1].ImageURL.URL)
}

func TestOpenAIChatModelStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, tok := range []string{"Hel", "lo"} {
			fmt.Fprintf(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", tok)
		}
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	m := newOpenAIChatModel(ProviderOllama, config.OpenAIConfig{BaseURL: server.URL, Model: "llava"})
	stream, err := m.Stream(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.NoError(t, err)
	defer stream.Close()

	var b strings.Builder
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		b.WriteString(chunk.Content)
	}
	assert.Equal(t, "Hello", b.String())
}

func TestRegistry(t *testing.T) {
	r, err := NewRegistryFromConfig(context.Background(), config.ProvidersConfig{
		Default: ProviderOllama,
		OpenAI:  config.OpenAIConfig{Model: "gpt-4o-mini"},
		Ollama:  config.OpenAIConfig{BaseURL: "http://localhost:11434/v1", Model: "llava"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{ProviderOllama}, r.Names())

	_, name, err := r.Get("")
	require.NoError(t, err)
	assert.Equal(t, ProviderOllama, name)

	_, _, err = r.Get(ProviderOpenAI)
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestImageGenerator(t *testing.T) {
	png := []byte("\x89PNG fake")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/images/generations", r.URL.Path)
		var req map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "b64_json", req["response_format"])
		json.NewEncoder(w).Encode(map[string]any{
			"created": 1,
			"data":    []map[string]string{{"b64_json": base64.StdEncoding.EncodeToString(png)}},
		})
	}))
	defer server.Close()

	gen := NewImageGenerator(
		config.ProvidersConfig{OpenAI: config.OpenAIConfig{APIKey: "k", BaseURL: server.URL}},
		config.StoryboardConfig{Enabled: true, Model: "dall-e-3", Size: "1024x1024"},
	)
	require.NotNil(t, gen)

	img, err := gen.GenerateImage(context.Background(), "a storyboard")
	require.NoError(t, err)
	assert.Equal(t, png, img.Data)
	assert.Equal(t, "image/png", img.MimeType)

	assert.Nil(t, NewImageGenerator(config.ProvidersConfig{}, config.StoryboardConfig{Enabled: true}))
}

func TestRedactHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Authorization", "Bearer secret")
	h.Set("Content-Type", "application/json")

	out := redactHeaders(h)
	assert.Equal(t, "[REDACTED]", out["Authorization"])
	assert.Equal(t, "application/json", out["Content-Type"])
}
