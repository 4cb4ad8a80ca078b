package speech

import (
	"context"
	"fmt"
	"io"

	"github.com/openai/openai-go"
)

// Transcriber converts recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error)
}

// OpenAITranscriber transcribes audio through the OpenAI audio endpoint.
type OpenAITranscriber struct {
	client *openai.Client
	model  openai.AudioModel
}

// NewOpenAITranscriber wraps an OpenAI client for transcription. An
// empty model picks whisper-1.
func NewOpenAITranscriber(client *openai.Client, model string) *OpenAITranscriber {
	m := openai.AudioModel(model)
	if model == "" {
		m = openai.AudioModelWhisper1
	}
	return &OpenAITranscriber{client: client, model: m}
}

func (t *OpenAITranscriber) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	if filename == "" {
		filename = "audio.wav"
	}
	resp, err := t.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		Model: t.model,
		File:  openai.File(audio, filename, "application/octet-stream"),
	})
	if err != nil {
		return "", fmt.Errorf("transcribe audio: %w", err)
	}
	return resp.Text, nil
}
