package llm

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var llmTracer = otel.Tracer("practice.internal.llm")

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a provider-neutral chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Usage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

// Request is a single completion call. A negative Temperature leaves the
// provider default in place. JSON asks the provider for a bare JSON object.
type Request struct {
	Model       string
	System      []string
	Messages    []Message
	MaxTokens   int32
	Temperature float32
	JSON        bool
}

type Response struct {
	Text       string
	Usage      Usage
	StopReason string
	Provider   string
}

// Client completes chat requests against one provider.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

func startSpan(ctx context.Context, provider, model string) (context.Context, trace.Span) {
	ctx, span := llmTracer.Start(ctx, "llm.complete")
	span.SetAttributes(
		attribute.String("practice.llm.provider", provider),
		attribute.String("practice.llm.model", model),
	)
	return ctx, span
}

// ExtractJSONObject strips code fences and surrounding prose from a model reply,
// returning the outermost {...} span.
func ExtractJSONObject(raw string) string {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "{") && strings.HasSuffix(text, "}") {
		return text
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}
