package commands

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "parlo.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, "openai:\n  api_key: sk-test\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != ":8080" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
	if cfg.OpenAI.Model == "" {
		t.Error("default model not applied")
	}
	if cfg.Speech.Format != "mp3" {
		t.Errorf("Format = %q", cfg.Speech.Format)
	}
}

func TestLoadConfigEnvExpansion(t *testing.T) {
	t.Setenv("PARLO_TEST_KEY", "sk-from-env")
	path := writeConfig(t, "openai:\n  api_key: $PARLO_TEST_KEY\n  model: gpt-4o-mini\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.OpenAI.APIKey != "sk-from-env" {
		t.Errorf("APIKey = %q", cfg.OpenAI.APIKey)
	}
	if cfg.OpenAI.Model != "gpt-4o-mini" {
		t.Errorf("Model = %q", cfg.OpenAI.Model)
	}
}

func TestLoadConfigMissingKey(t *testing.T) {
	t.Setenv("PARLO_UNSET_KEY", "")
	path := writeConfig(t, "openai:\n  api_key: $PARLO_UNSET_KEY\n")
	if _, err := LoadConfig(path); err == nil {
		t.Error("empty api_key accepted")
	}
}

func TestLoadConfigBadYAML(t *testing.T) {
	path := writeConfig(t, "openai: [broken\n")
	if _, err := LoadConfig(path); err == nil {
		t.Error("malformed YAML accepted")
	}
}

func TestBuildServerWiring(t *testing.T) {
	path := writeConfig(t, "openai:\n  api_key: sk-test\nspeech:\n  voice: alloy\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	srv := buildServer(cfg)
	if srv.Loop == nil || srv.Catalog == nil || srv.Builder == nil || srv.Store == nil {
		t.Fatal("collaborators not wired")
	}
	if srv.Synth == nil || srv.SynthFor == nil {
		t.Error("speech not wired")
	}
	if srv.Transcriber == nil {
		t.Error("transcriber not wired")
	}
}
