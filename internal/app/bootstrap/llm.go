package bootstrap

import (
	"context"
	"fmt"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	openai "github.com/sashabaranov/go-openai"

	appconfig "github.com/wolfman30/practice-scheduler/internal/config"
	"github.com/wolfman30/practice-scheduler/internal/llm"
	"github.com/wolfman30/practice-scheduler/pkg/logging"
)

// BuildLLMClient wires the configured provider, wrapped with the fallback
// provider when one is set. A nil client means nothing is configured and the
// voice layer runs on rules alone.
func BuildLLMClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (llm.Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	primary, err := buildProvider(ctx, cfg, cfg.LLMProvider)
	if err != nil {
		return nil, err
	}
	if primary == nil {
		logger.Warn("no language model configured; general questions get the help message", "provider", cfg.LLMProvider)
		return nil, nil
	}

	fallbackName := strings.TrimSpace(cfg.LLMFallbackProvider)
	if fallbackName == "" || fallbackName == cfg.LLMProvider {
		logger.Info("language model configured", "provider", cfg.LLMProvider)
		return primary, nil
	}
	fallback, err := buildProvider(ctx, cfg, fallbackName)
	if err != nil {
		logger.Warn("fallback language model unavailable", "provider", fallbackName, "error", err)
		return primary, nil
	}
	if fallback == nil {
		return primary, nil
	}
	logger.Info("language model configured", "provider", cfg.LLMProvider, "fallback", fallbackName)
	return llm.NewFallbackClient(primary, fallback, logger), nil
}

// buildProvider returns nil, nil when the provider lacks credentials.
func buildProvider(ctx context.Context, cfg *appconfig.Config, name string) (llm.Client, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "openai":
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			return nil, nil
		}
		return llm.NewOpenAIClient(openai.NewClient(cfg.OpenAIAPIKey), cfg.OpenAIModel), nil
	case "bedrock":
		if strings.TrimSpace(cfg.BedrockModelID) == "" {
			return nil, nil
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("bootstrap: load aws config: %w", err)
		}
		return llm.NewBedrockClient(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockModelID), nil
	case "gemini":
		if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
			return nil, nil
		}
		client, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		return client, nil
	case "", "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown llm provider %q", name)
	}
}

// BuildTranscriber returns the Whisper transcriber when an OpenAI key is set.
func BuildTranscriber(cfg *appconfig.Config) llm.Transcriber {
	if cfg == nil || strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
		return nil
	}
	return llm.NewWhisperTranscriber(openai.NewClient(cfg.OpenAIAPIKey), cfg.OpenAITranscribeModel)
}
