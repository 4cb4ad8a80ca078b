package commands

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/parlo-ai/parlo/pkg/chat"
	"github.com/parlo-ai/parlo/pkg/server"
	"github.com/parlo-ai/parlo/pkg/session"
	"github.com/parlo-ai/parlo/pkg/speech"
	"github.com/parlo-ai/parlo/pkg/tools"
)

// Config is the YAML configuration of the backend.
type Config struct {
	Listen string `yaml:"listen"`

	OpenAI struct {
		APIKey      string  `yaml:"api_key"` // supports $VAR references
		BaseURL     string  `yaml:"base_url,omitempty"`
		Model       string  `yaml:"model"`
		Temperature float64 `yaml:"temperature,omitempty"`
	} `yaml:"openai"`

	Speech struct {
		Voice           string `yaml:"voice,omitempty"`
		Model           string `yaml:"model,omitempty"`
		Format          string `yaml:"format,omitempty"`
		TranscribeModel string `yaml:"transcribe_model,omitempty"`
		SpeakEmails     bool   `yaml:"speak_emails,omitempty"`
		Disabled        bool   `yaml:"disabled,omitempty"`
	} `yaml:"speech"`

	Session struct {
		MaxTurns int `yaml:"max_turns,omitempty"`
	} `yaml:"session"`

	Instructions string `yaml:"instructions,omitempty"`
}

// LoadConfig reads and validates the YAML config at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.OpenAI.APIKey = expandEnv(cfg.OpenAI.APIKey)
	if cfg.OpenAI.APIKey == "" {
		return nil, fmt.Errorf("%s: openai.api_key is required", path)
	}
	if cfg.OpenAI.Model == "" {
		cfg.OpenAI.Model = openai.ChatModelGPT4o
	}
	if cfg.Listen == "" {
		cfg.Listen = ":8080"
	}
	if cfg.Speech.Format == "" {
		cfg.Speech.Format = "mp3"
	}
	return &cfg, nil
}

// expandEnv resolves $VAR / ${VAR} references. A reference to an unset
// variable resolves to empty rather than the literal text.
func expandEnv(s string) string {
	if strings.HasPrefix(s, "$") {
		return os.ExpandEnv(s)
	}
	return s
}

// buildServer wires every collaborator from the config.
func buildServer(cfg *Config) *server.Server {
	opts := []option.RequestOption{option.WithAPIKey(cfg.OpenAI.APIKey)}
	if cfg.OpenAI.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.OpenAI.BaseURL))
	}
	client := openai.NewClient(opts...)

	registry := tools.NewRegistry()
	registry.MustRegister(tools.NewWeatherTool(http.DefaultClient).Definition())

	loop := &chat.Loop{
		Completer: &chat.OpenAICompleter{
			Client:      &client,
			Model:       cfg.OpenAI.Model,
			Temperature: cfg.OpenAI.Temperature,
		},
		Invoker: &chat.Invoker{Server: registry},
	}

	srv := &server.Server{
		Store:       session.NewStore(cfg.Session.MaxTurns),
		Catalog:     &chat.Catalog{Server: registry},
		Builder:     &chat.ConversationBuilder{Instructions: cfg.Instructions},
		Loop:        loop,
		Format:      cfg.Speech.Format,
		Transcriber: speech.NewOpenAITranscriber(&client, cfg.Speech.TranscribeModel),
		Normalize:   speech.NormalizeOptions{SpeakEmails: cfg.Speech.SpeakEmails},
	}
	if !cfg.Speech.Disabled {
		srv.Synth = newSynth(&client, cfg, cfg.Speech.Voice)
		srv.SynthFor = func(voice string) speech.Synthesizer {
			return newSynth(&client, cfg, voice)
		}
	}
	return srv
}

func newSynth(client *openai.Client, cfg *Config, voice string) speech.Synthesizer {
	opts := []speech.TTSOption{speech.WithFormat(cfg.Speech.Format)}
	if voice != "" {
		opts = append(opts, speech.WithVoice(voice))
	}
	if cfg.Speech.Model != "" {
		opts = append(opts, speech.WithTTSModel(cfg.Speech.Model))
	}
	return speech.NewOpenAISynthesizer(client, opts...)
}
