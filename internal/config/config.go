package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Studio     StudioConfig     `mapstructure:"studio"`
	Providers  ProvidersConfig  `mapstructure:"providers"`
	Generation GenerationConfig `mapstructure:"generation"`
	Uploads    UploadsConfig    `mapstructure:"uploads"`
	CORS       CORSConfig       `mapstructure:"cors"`
	Log        LogConfig        `mapstructure:"log"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Session    SessionConfig    `mapstructure:"session"`
	Storage    StorageConfig    `mapstructure:"storage"`
}

// ServerConfig configures the reference backend listener.
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxHeaderBytes int           `mapstructure:"max_header_bytes"`
}

// StudioConfig configures the client side: the gateway and the CLI.
type StudioConfig struct {
	Port            int           `mapstructure:"port"`
	APIBaseURL      string        `mapstructure:"api_base_url"`
	SessionID       string        `mapstructure:"session_id"`
	Provider        string        `mapstructure:"provider"`
	WelcomeMessage  string        `mapstructure:"welcome_message"`
	HTTPTimeout     time.Duration `mapstructure:"http_timeout"`
	WorkspaceTTL    time.Duration `mapstructure:"workspace_ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	MaxAttachments  int           `mapstructure:"max_attachments"`
}

type ProvidersConfig struct {
	Default string       `mapstructure:"default"`
	OpenAI  OpenAIConfig `mapstructure:"openai"`
	Google  OpenAIConfig `mapstructure:"google"`
	Ollama  OpenAIConfig `mapstructure:"ollama"`
	Doubao  DoubaoConfig `mapstructure:"doubao"`
	Qwen    QwenConfig   `mapstructure:"qwen"`
}

// OpenAIConfig covers every provider that speaks the OpenAI wire protocol.
type OpenAIConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type DoubaoConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type QwenConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	Model        string        `mapstructure:"model"`
	MaxTokens    int           `mapstructure:"max_tokens"`
	Temperature  float32       `mapstructure:"temperature"`
	TopP         float32       `mapstructure:"top_p"`
	Timeout      time.Duration `mapstructure:"timeout"`
	DebugRequest bool          `mapstructure:"debug_request"`
}

type GenerationConfig struct {
	SystemPrompt       string           `mapstructure:"system_prompt"`
	MaxHistoryMessages int              `mapstructure:"max_history_messages"`
	StreamTimeout      time.Duration    `mapstructure:"stream_timeout"`
	Storyboard         StoryboardConfig `mapstructure:"storyboard"`
}

// StoryboardConfig drives the optional image generated after each reply.
type StoryboardConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Model   string `mapstructure:"model"`
	Size    string `mapstructure:"size"`
	Prompt  string `mapstructure:"prompt"`
}

type UploadsConfig struct {
	Dir          string `mapstructure:"dir"`
	GeneratedDir string `mapstructure:"generated_dir"`
	MaxBytes     int64  `mapstructure:"max_bytes"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

type SessionConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type StorageConfig struct {
	Type      string `mapstructure:"type"`
	DataDir   string `mapstructure:"data_dir"`
	CacheSize int    `mapstructure:"cache_size"`
}

var cfg *Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 5050)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 0)
	v.SetDefault("server.max_header_bytes", 1<<20)

	v.SetDefault("studio.port", 5173)
	v.SetDefault("studio.api_base_url", "http://localhost:5050")
	v.SetDefault("studio.provider", "google")
	v.SetDefault("studio.welcome_message", "Hi! Ask a question or upload an image to start chatting.")
	v.SetDefault("studio.http_timeout", 0)
	v.SetDefault("studio.workspace_ttl", 2*time.Hour)
	v.SetDefault("studio.cleanup_interval", 10*time.Minute)
	v.SetDefault("studio.max_attachments", 8)

	v.SetDefault("providers.default", "google")
	v.SetDefault("providers.openai.model", "gpt-4o-mini")
	v.SetDefault("providers.google.base_url", "https://generativelanguage.googleapis.com/v1beta/openai/")
	v.SetDefault("providers.google.model", "gemini-2.0-flash")
	v.SetDefault("providers.ollama.base_url", "http://localhost:11434/v1")
	v.SetDefault("providers.ollama.model", "llava")
	v.SetDefault("providers.qwen.base_url", "https://dashscope.aliyuncs.com/compatible-mode/v1")
	v.SetDefault("providers.qwen.timeout", 2*time.Minute)

	v.SetDefault("generation.max_history_messages", 20)
	v.SetDefault("generation.stream_timeout", 10*time.Minute)
	v.SetDefault("generation.storyboard.model", "dall-e-3")
	v.SetDefault("generation.storyboard.size", "1024x1024")

	v.SetDefault("uploads.dir", "./data/uploads")
	v.SetDefault("uploads.generated_dir", "./data/gen_imgs")
	v.SetDefault("uploads.max_bytes", 10<<20)

	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Origin", "Content-Type", "X-Session-Id", "ngrok-skip-browser-warning"})
	v.SetDefault("cors.max_age", 3600)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("rate_limit.requests_per_minute", 120)
	v.SetDefault("rate_limit.burst", 20)

	v.SetDefault("session.ttl", 30*24*time.Hour)
	v.SetDefault("session.cleanup_interval", time.Hour)

	v.SetDefault("storage.type", "memory")
	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("storage.cache_size", 100)
}

// Load reads the YAML file at configPath (optional when empty) layered over
// defaults, a local .env file, and UGC_-prefixed environment variables.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load(".env")

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("UGC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, err
			}
		}
	}

	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, err
	}

	// File values win; fall back to each vendor's conventional variable.
	if c.Providers.OpenAI.APIKey == "" {
		c.Providers.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.Providers.Google.APIKey == "" {
		c.Providers.Google.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if c.Providers.Doubao.APIKey == "" {
		c.Providers.Doubao.APIKey = os.Getenv("ARK_API_KEY")
	}
	if c.Providers.Qwen.APIKey == "" {
		c.Providers.Qwen.APIKey = os.Getenv("DASHSCOPE_API_KEY")
	}

	cfg = c
	return c, nil
}

func Get() *Config {
	return cfg
}
