package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// ErrEmptyAudio is returned when an upload carries no audio.
var ErrEmptyAudio = errors.New("llm: audio is empty")

// Transcriber turns recorded speech into text.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error)
}

type transcriptionAPI interface {
	CreateTranscription(ctx context.Context, request openai.AudioRequest) (openai.AudioResponse, error)
}

// WhisperTranscriber implements Transcriber with OpenAI's transcription endpoint.
type WhisperTranscriber struct {
	api   transcriptionAPI
	model string
}

func NewWhisperTranscriber(api transcriptionAPI, model string) *WhisperTranscriber {
	if api == nil {
		panic("llm: openai transcription client cannot be nil")
	}
	if strings.TrimSpace(model) == "" {
		model = openai.Whisper1
	}
	return &WhisperTranscriber{api: api, model: model}
}

func (t *WhisperTranscriber) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	if audio == nil {
		return "", ErrEmptyAudio
	}
	ctx, span := llmTracer.Start(ctx, "llm.transcribe")
	defer span.End()

	// The API infers the container format from the file extension.
	if filepath.Ext(filename) == "" {
		filename = "command.webm"
	}
	resp, err := t.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: filepath.Base(filename),
		Reader:   audio,
		Language: "en",
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("llm: transcription failed: %w", err)
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrEmptyAudio
	}
	return text, nil
}
