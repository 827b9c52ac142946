package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	BackendGemini = "gemini"
	BackendOpenAI = "openai"
)

type Log struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

type Generation struct {
	Backend           string        `yaml:"backend" env:"GENERATION_BACKEND" env-default:"gemini"`
	APIKey            string        `env:"GENERATION_API_KEY"`
	APIKeyParameter   string        `yaml:"api_key_parameter" env:"GENERATION_API_KEY_PARAMETER"`
	Model             string        `yaml:"model" env:"GENERATION_MODEL" env-default:"gemini-1.5-flash"`
	BaseURL           string        `yaml:"base_url" env:"GENERATION_BASE_URL"`
	MaxOutputTokens   int           `yaml:"max_output_tokens" env:"GENERATION_MAX_OUTPUT_TOKENS" env-default:"900"`
	InlineImagePrompt bool          `yaml:"inline_image_prompt" env:"GENERATION_INLINE_IMAGE_PROMPT" env-default:"false"`
	RequestTimeout    time.Duration `yaml:"request_timeout" env:"GENERATION_REQUEST_TIMEOUT" env-default:"60s"`
}

type Classifier struct {
	Command   string        `yaml:"command" env:"CLASSIFIER_COMMAND" env-default:"./classify"`
	ModelPath string        `yaml:"model_path" env:"CLASSIFIER_MODEL_PATH" env-default:"./mobilenet.onnx"`
	TopK      int           `yaml:"top_k" env:"CLASSIFIER_TOP_K" env-default:"5"`
	Timeout   time.Duration `yaml:"timeout" env:"CLASSIFIER_TIMEOUT" env-default:"30s"`
}

type Camera struct {
	Command string   `yaml:"command" env:"CAMERA_COMMAND"`
	Args    []string `yaml:"args" env:"CAMERA_ARGS" env-separator:" "`
}

type Telegram struct {
	TelegramAPIToken  string  `env:"TELEGRAM_APITOKEN"`
	AllowedTelegramID []int64 `yaml:"allowed_telegram_id" env:"ALLOWED_TELEGRAM_ID" env-separator:","`
	IsNotPublic       bool    `yaml:"is_not_public" env:"TELEGRAM_IS_NOT_PUBLIC" env-default:"false"`

	SessionIdleTimeout time.Duration `yaml:"session_idle_timeout" env:"TELEGRAM_SESSION_IDLE_TIMEOUT" env-default:"30m"`
}

type Redis struct {
	Endpoint string        `yaml:"endpoint" env:"REDIS_ENDPOINT"`
	LabelTTL time.Duration `yaml:"label_ttl" env:"REDIS_LABEL_TTL" env-default:"24h"`
}

type Config struct {
	Language   string     `yaml:"language" env:"BOT_LANGUAGE" env-default:"en"`
	Log        Log        `yaml:"log"`
	Generation Generation `yaml:"generation"`
	Classifier Classifier `yaml:"classifier"`
	Camera     Camera     `yaml:"camera"`
	Telegram   Telegram   `yaml:"telegram"`
	Redis      Redis      `yaml:"redis"`
}

// LoadConfig reads an optional .env file, the yaml file at cfgPath (when it
// exists) and then environment overrides.
func LoadConfig(cfgPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	if cfgPath != "" {
		if _, err := os.Stat(cfgPath); err == nil {
			if err = cleanenv.ReadConfig(cfgPath, &cfg); err != nil {
				return nil, fmt.Errorf("failed to read config %s: %w", cfgPath, err)
			}
		}
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Generation.Backend {
	case BackendGemini, BackendOpenAI:
	default:
		return fmt.Errorf("unknown generation backend %q", c.Generation.Backend)
	}
	if c.Generation.MaxOutputTokens <= 0 {
		return fmt.Errorf("max_output_tokens must be positive, got %d", c.Generation.MaxOutputTokens)
	}
	if c.Classifier.TopK <= 0 {
		return fmt.Errorf("classifier top_k must be positive, got %d", c.Classifier.TopK)
	}
	return nil
}
