package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"sortly/internal/httpx"
)

const anthropicSystemPrompt = "You are an email triage assistant. Reply with a single JSON object and nothing else: no markdown, no commentary."

type anthropicGenerator struct {
	model   string
	baseURL string
}

func newAnthropicGenerator(model, baseURL string) *anthropicGenerator {
	return &anthropicGenerator{model: model, baseURL: strings.TrimSpace(baseURL)}
}

// Generate builds a client per call because the API key may come from the
// caller. SDK retries are disabled: a request gets exactly one attempt.
func (a *anthropicGenerator) Generate(ctx context.Context, apiKey, prompt string) (string, error) {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpx.ExternalHTTPClient()),
		option.WithMaxRetries(0),
	}
	if a.baseURL != "" {
		opts = append(opts, option.WithBaseURL(a.baseURL))
	}
	client := anthropic.NewClient(opts...)

	message, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: anthropicSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", &APIError{Provider: "anthropic", StatusCode: apiErr.StatusCode, Message: err.Error()}
		}
		return "", fmt.Errorf("Anthropic API error: %w", err)
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			log.Printf("llm anthropic response size=%d tokens_in=%d tokens_out=%d", len(block.Text), message.Usage.InputTokens, message.Usage.OutputTokens)
			return block.Text, nil
		}
	}
	return "", errors.New("no text content in Anthropic response")
}
