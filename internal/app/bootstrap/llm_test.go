package bootstrap

import (
	"context"
	"testing"

	appconfig "github.com/wolfman30/practice-scheduler/internal/config"
	"github.com/wolfman30/practice-scheduler/internal/llm"
	"github.com/wolfman30/practice-scheduler/pkg/logging"
)

func TestBuildLLMClientRequiresConfig(t *testing.T) {
	if _, err := BuildLLMClient(context.Background(), nil, logging.New("error")); err == nil {
		t.Fatalf("expected error for nil config")
	}
}

func TestBuildLLMClientWithoutCredentialsReturnsNil(t *testing.T) {
	client, err := BuildLLMClient(context.Background(), &appconfig.Config{LLMProvider: "openai"}, logging.New("error"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client != nil {
		t.Fatalf("expected nil client without an api key")
	}
}

func TestBuildLLMClientUnknownProvider(t *testing.T) {
	if _, err := BuildLLMClient(context.Background(), &appconfig.Config{LLMProvider: "parrot"}, nil); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

func TestBuildLLMClientOpenAI(t *testing.T) {
	cfg := &appconfig.Config{LLMProvider: "openai", OpenAIAPIKey: "sk-test", OpenAIModel: "gpt-4o-mini"}
	client, err := BuildLLMClient(context.Background(), cfg, logging.New("error"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := client.(*llm.OpenAIClient); !ok {
		t.Fatalf("expected OpenAIClient, got %T", client)
	}
}

func TestBuildLLMClientWrapsFallback(t *testing.T) {
	cfg := &appconfig.Config{
		LLMProvider:         "openai",
		LLMFallbackProvider: "gemini",
		OpenAIAPIKey:        "sk-test",
		GeminiAPIKey:        "gm-test",
	}
	client, err := BuildLLMClient(context.Background(), cfg, logging.New("error"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := client.(*llm.FallbackClient); !ok {
		t.Fatalf("expected FallbackClient, got %T", client)
	}
}

func TestBuildLLMClientSkipsUnconfiguredFallback(t *testing.T) {
	cfg := &appconfig.Config{LLMProvider: "openai", LLMFallbackProvider: "bedrock", OpenAIAPIKey: "sk-test"}
	client, err := BuildLLMClient(context.Background(), cfg, logging.New("error"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := client.(*llm.OpenAIClient); !ok {
		t.Fatalf("expected bare OpenAIClient, got %T", client)
	}
}

func TestBuildTranscriber(t *testing.T) {
	if BuildTranscriber(&appconfig.Config{}) != nil {
		t.Fatalf("expected nil transcriber without an api key")
	}
	if _, ok := BuildTranscriber(&appconfig.Config{OpenAIAPIKey: "sk-test"}).(*llm.WhisperTranscriber); !ok {
		t.Fatalf("expected WhisperTranscriber")
	}
}
