package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 5050, c.Server.Port)
	assert.Equal(t, "http://localhost:5050", c.Studio.APIBaseURL)
	assert.Equal(t, "google", c.Providers.Default)
	assert.Equal(t, 20, c.Generation.MaxHistoryMessages)
	assert.Equal(t, int64(10<<20), c.Uploads.MaxBytes)
	assert.Equal(t, 2*time.Hour, c.Studio.WorkspaceTTL)
	assert.Equal(t, "memory", c.Storage.Type)
	assert.Contains(t, c.CORS.AllowedHeaders, "X-Session-Id")
	assert.Same(t, c, Get())
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 6000
studio:
  provider: qwen
  http_timeout: 45s
providers:
  openai:
    api_key: from-file
generation:
  storyboard:
    enabled: true
`), 0644))

	t.Setenv("UGC_SERVER_PORT", "7000")
	t.Setenv("GEMINI_API_KEY", "gemini-env")
	t.Setenv("OPENAI_API_KEY", "openai-env")

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7000, c.Server.Port)
	assert.Equal(t, "qwen", c.Studio.Provider)
	assert.Equal(t, 45*time.Second, c.Studio.HTTPTimeout)
	assert.True(t, c.Generation.Storyboard.Enabled)
	assert.Equal(t, "dall-e-3", c.Generation.Storyboard.Model)
	assert.Equal(t, "from-file", c.Providers.OpenAI.APIKey)
	assert.Equal(t, "gemini-env", c.Providers.Google.APIKey)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 5050, c.Server.Port)
}

func TestLoadRejectsBrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [port"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}
