package llm

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"sortly/internal/config"
	"sortly/internal/domain"
	"sortly/internal/metrics"
)

// generator sends a prompt to a text-generation backend and returns the raw
// model output, which must be a JSON document.
type generator interface {
	Generate(ctx context.Context, apiKey, prompt string) (string, error)
}

type Classifier struct {
	gen        generator
	provider   string
	model      string
	defaultKey string
	timeout    time.Duration
}

// NewClassifier builds a classifier for cfg.LLMProvider.
func NewClassifier(cfg config.Config) *Classifier {
	var gen generator
	switch cfg.LLMProvider {
	case config.ProviderAnthropic:
		gen = newAnthropicGenerator(cfg.LLMModel, cfg.AnthropicBaseURL)
	default:
		gen = newGeminiGenerator(cfg.LLMModel, cfg.GeminiBaseURL)
	}
	return &Classifier{
		gen:        gen,
		provider:   cfg.LLMProvider,
		model:      cfg.LLMModel,
		defaultKey: cfg.DefaultCredential(),
		timeout:    cfg.LLMTimeout(),
	}
}

func (c *Classifier) Provider() string { return c.provider }

// Classify sends text to the model and maps every outcome, including
// failures, to a result. The caller's key wins over the configured default.
func (c *Classifier) Classify(ctx context.Context, text, callerKey string) domain.ClassificationResult {
	apiKey, keySource := c.resolveKey(callerKey)
	if apiKey == "" {
		log.Printf("llm classify provider=%s skipped: no API key", c.provider)
		result := domain.NoCredentialResult()
		metrics.ObserveClassification(c.provider, result.Category, result.Outcome.String(), 0)
		return result
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	log.Printf("llm classify provider=%s model=%s key_source=%s chars=%d", c.provider, c.model, keySource, len(text))
	start := time.Now()
	result := c.classify(ctx, apiKey, text)
	elapsed := time.Since(start)
	metrics.ObserveClassification(c.provider, result.Category, result.Outcome.String(), elapsed)
	log.Printf("llm classify provider=%s outcome=%s category=%q elapsed=%s", c.provider, result.Outcome, result.Category, elapsed.Round(time.Millisecond))
	return result
}

func (c *Classifier) classify(ctx context.Context, apiKey, text string) (result domain.ClassificationResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("llm classify provider=%s recovered from panic: %v", c.provider, r)
			result = domain.ServiceErrorResult(fmt.Errorf("panic during classification: %v", r))
		}
	}()

	responseText, err := c.gen.Generate(ctx, apiKey, buildPrompt(text))
	if err != nil {
		log.Printf("llm %s error: %v", c.provider, err)
		if isQuotaError(err) {
			return domain.QuotaExceededResult()
		}
		return domain.ServiceErrorResult(err)
	}

	parsed, err := parseClassificationResponse(responseText)
	if err != nil {
		log.Printf("llm %s parse error: %v", c.provider, err)
		return domain.ServiceErrorResult(err)
	}
	return parsed
}

func (c *Classifier) resolveKey(callerKey string) (string, string) {
	if key := strings.TrimSpace(callerKey); key != "" {
		return key, "caller"
	}
	if c.defaultKey != "" {
		return c.defaultKey, "default"
	}
	return "", "none"
}
