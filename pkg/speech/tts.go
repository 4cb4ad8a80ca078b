package speech

import (
	"context"
	"fmt"
	"io"

	"github.com/openai/openai-go"
)

// Synthesizer renders one text segment into encoded audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

type ttsConfig struct {
	model  openai.SpeechModel
	voice  openai.AudioSpeechNewParamsVoice
	format openai.AudioSpeechNewParamsResponseFormat
	speed  float64
}

// TTSOption customizes an OpenAI synthesizer.
type TTSOption func(*ttsConfig)

// WithTTSModel selects the speech model.
func WithTTSModel(model string) TTSOption {
	return func(c *ttsConfig) { c.model = openai.SpeechModel(model) }
}

// WithVoice selects the builtin voice.
func WithVoice(voice string) TTSOption {
	return func(c *ttsConfig) { c.voice = openai.AudioSpeechNewParamsVoice(voice) }
}

// WithFormat selects the audio container ("mp3", "opus", "wav", ...).
func WithFormat(format string) TTSOption {
	return func(c *ttsConfig) { c.format = openai.AudioSpeechNewParamsResponseFormat(format) }
}

// WithSpeed scales playback speed, 0.25 to 4.0.
func WithSpeed(speed float64) TTSOption {
	return func(c *ttsConfig) { c.speed = speed }
}

// OpenAISynthesizer speaks segments through the OpenAI audio endpoint.
type OpenAISynthesizer struct {
	client *openai.Client
	cfg    ttsConfig
}

// NewOpenAISynthesizer wraps an OpenAI client for synthesis.
func NewOpenAISynthesizer(client *openai.Client, opts ...TTSOption) *OpenAISynthesizer {
	cfg := ttsConfig{
		model:  openai.SpeechModelGPT4oMiniTTS,
		voice:  openai.AudioSpeechNewParamsVoiceAlloy,
		format: openai.AudioSpeechNewParamsResponseFormatMP3,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &OpenAISynthesizer{client: client, cfg: cfg}
}

func (s *OpenAISynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	params := openai.AudioSpeechNewParams{
		Model:          s.cfg.model,
		Input:          text,
		Voice:          s.cfg.voice,
		ResponseFormat: s.cfg.format,
	}
	if s.cfg.speed != 0 {
		params.Speed = openai.Float(s.cfg.speed)
	}
	resp, err := s.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("synthesize speech: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read speech audio: %w", err)
	}
	return data, nil
}
