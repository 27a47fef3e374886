package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"sortly/internal/httpx"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

type geminiGenerator struct {
	model      string
	baseURL    string
	httpClient *http.Client
}

func newGeminiGenerator(model, baseURL string) *geminiGenerator {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultGeminiBaseURL
	}
	return &geminiGenerator{
		model:      model,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpx.ExternalHTTPClient(),
	}
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"responseMimeType"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int64 `json:"promptTokenCount"`
		CandidatesTokenCount int64 `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Generate calls models/{model}:generateContent with JSON output requested.
// The key travels in the x-goog-api-key header so it never appears in URLs
// echoed by transport errors.
func (g *geminiGenerator) Generate(ctx context.Context, apiKey, prompt string) (string, error) {
	reqBody := geminiRequest{
		Contents: []geminiContent{
			{Parts: []geminiPart{{Text: prompt}}},
		},
		GenerationConfig: geminiGenerationConfig{
			Temperature:      0.2,
			ResponseMimeType: "application/json",
		},
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, g.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("Gemini API call failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{Provider: "gemini", StatusCode: resp.StatusCode, Message: truncate(string(respBody), 512)}
		var parsed geminiErrorResponse
		if json.Unmarshal(respBody, &parsed) == nil && parsed.Error.Message != "" {
			apiErr.Status = parsed.Error.Status
			apiErr.Message = parsed.Error.Message
		}
		return "", apiErr
	}

	var geminiResp geminiResponse
	if err := json.Unmarshal(respBody, &geminiResp); err != nil {
		return "", fmt.Errorf("parsing Gemini response: %w", err)
	}
	if len(geminiResp.Candidates) == 0 || len(geminiResp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("empty Gemini response")
	}

	var text strings.Builder
	for _, part := range geminiResp.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	if geminiResp.UsageMetadata != nil {
		log.Printf("llm gemini response size=%d tokens_in=%d tokens_out=%d", text.Len(), geminiResp.UsageMetadata.PromptTokenCount, geminiResp.UsageMetadata.CandidatesTokenCount)
	}
	return text.String(), nil
}
