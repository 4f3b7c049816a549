package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "openai:\n  api_key: sk-test\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.Server.Addr != ":5050" {
		t.Fatalf("expected default addr, got %q", cfg.Server.Addr)
	}
	if cfg.OpenAI.Voice != "alloy" || cfg.OpenAI.Temperature != 0.8 {
		t.Fatalf("unexpected openai defaults: %+v", cfg.OpenAI)
	}
	if len(cfg.Relay.NoiseWords) != 5 {
		t.Fatalf("expected default noise words, got %v", cfg.Relay.NoiseWords)
	}
	if cfg.Relay.RegistryPruneAge != 24*time.Hour {
		t.Fatalf("expected 24h prune age, got %v", cfg.Relay.RegistryPruneAge)
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "sk-from-env")
	path := writeConfig(t, "openai:\n  api_key: ${TEST_OPENAI_KEY}\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.OpenAI.APIKey != "sk-from-env" {
		t.Fatalf("expected env expansion, got %q", cfg.OpenAI.APIKey)
	}
}

func TestLoadRequiresOpenAIKey(t *testing.T) {
	path := writeConfig(t, "log_level: debug\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error for missing api key")
	}
}

func TestLoadDeepgramRequiresKeyWhenEnabled(t *testing.T) {
	path := writeConfig(t, "openai:\n  api_key: sk-test\ndeepgram:\n  enabled: true\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error for missing deepgram key")
	}
}

func TestLoadCustomScriptsAndNoise(t *testing.T) {
	path := writeConfig(t, `
openai:
  api_key: sk-test
relay:
  noise_words: [hmm, nah]
  min_utterance_len: 2
scripts:
  morning:
    - "Q1"
    - "Q2"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if len(cfg.Relay.NoiseWords) != 2 || cfg.Relay.NoiseWords[0] != "hmm" {
		t.Fatalf("unexpected noise words: %v", cfg.Relay.NoiseWords)
	}
	if len(cfg.Scripts.Morning) != 2 {
		t.Fatalf("unexpected morning script: %v", cfg.Scripts.Morning)
	}
}
