// Package config loads and validates the service configuration.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type Config struct {
	Environment  string `mapstructure:"environment"`
	LogLevel     string `mapstructure:"log_level"`
	LogFormat    string `mapstructure:"log_format"`
	LogRedaction bool   `mapstructure:"log_redaction"`

	Server   ServerConfig   `mapstructure:"server"`
	Twilio   TwilioConfig   `mapstructure:"twilio"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	Database DatabaseConfig `mapstructure:"database"`
	Deepgram DeepgramConfig `mapstructure:"deepgram"`
	Relay    RelayConfig    `mapstructure:"relay"`
	Scripts  ScriptsConfig  `mapstructure:"scripts"`
}

type ServerConfig struct {
	Addr          string `mapstructure:"addr"`
	PublicURL     string `mapstructure:"public_url"`
	VoicePath     string `mapstructure:"voice_path"`
	WebsocketPath string `mapstructure:"ws_path"`
	Greeting      string `mapstructure:"greeting"`
}

type TwilioConfig struct {
	AccountSID  string `mapstructure:"account_sid"`
	AuthToken   string `mapstructure:"auth_token"`
	PhoneNumber string `mapstructure:"phone_number"`
}

type OpenAIConfig struct {
	APIKey           string  `mapstructure:"api_key"`
	Model            string  `mapstructure:"model"`
	Voice            string  `mapstructure:"voice"`
	BaseURL          string  `mapstructure:"base_url"`
	Instructions     string  `mapstructure:"instructions"`
	Temperature      float64 `mapstructure:"temperature"`
	ConnectTimeoutMS int     `mapstructure:"connect_timeout_ms"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type DeepgramConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
}

type RelayConfig struct {
	NoiseWords         []string      `mapstructure:"noise_words"`
	MinUtteranceLen    int           `mapstructure:"min_utterance_len"`
	ArtifactsDir       string        `mapstructure:"artifacts_dir"`
	AudioBufferSeconds int           `mapstructure:"audio_buffer_seconds"`
	RegistryPruneAge   time.Duration `mapstructure:"registry_prune_age"`
}

type ScriptsConfig struct {
	Morning []string `mapstructure:"morning"`
	Evening []string `mapstructure:"evening"`
}

const defaultInstructions = "You are a helpful and bubbly AI assistant who loves to chat about " +
	"anything the user is interested in and is prepared to offer them facts. " +
	"Always stay positive, but work in a joke when appropriate."

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("log_redaction", false)
	v.SetDefault("server.addr", ":5050")
	v.SetDefault("server.voice_path", "/incoming-call")
	v.SetDefault("server.ws_path", "/media-stream")
	v.SetDefault("server.greeting", "Please wait while we connect your call to the A. I. voice assistant.")
	v.SetDefault("openai.model", "gpt-4o-realtime-preview-2024-10-01")
	v.SetDefault("openai.voice", "alloy")
	v.SetDefault("openai.base_url", "wss://api.openai.com/v1/realtime")
	v.SetDefault("openai.instructions", defaultInstructions)
	v.SetDefault("openai.temperature", 0.8)
	v.SetDefault("openai.connect_timeout_ms", 5000)
	v.SetDefault("deepgram.enabled", false)
	v.SetDefault("deepgram.model", "nova-3")
	v.SetDefault("relay.noise_words", []string{"you", "bye", "hello", "uh", "um"})
	v.SetDefault("relay.min_utterance_len", 3)
	v.SetDefault("relay.artifacts_dir", "artifacts")
	v.SetDefault("relay.audio_buffer_seconds", 120)
	v.SetDefault("relay.registry_prune_age", "24h")
}

// Load reads the YAML file at path, applies defaults and ${ENV} expansion,
// and validates the result. An empty path yields the defaults only.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	expandEnvStrings(reflect.ValueOf(&cfg))

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.OpenAI.APIKey) == "" {
		return fmt.Errorf("openai.api_key is required")
	}
	if c.OpenAI.Temperature < 0 || c.OpenAI.Temperature > 2 {
		return fmt.Errorf("openai.temperature out of range: %v", c.OpenAI.Temperature)
	}
	if c.Deepgram.Enabled && strings.TrimSpace(c.Deepgram.APIKey) == "" {
		return fmt.Errorf("deepgram.api_key is required when deepgram.enabled")
	}
	return nil
}

// expandEnvStrings walks the struct and applies os.ExpandEnv to every string
// field, so secrets can be referenced as ${VAR} in the YAML.
func expandEnvStrings(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return
		}
		expandEnvStrings(v.Elem())
		return
	}
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandEnvStrings(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			expandEnvStrings(v.Index(i))
		}
	}
}
