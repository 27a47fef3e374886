package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	"sortly/internal/config"
	"sortly/internal/domain"
)

type fakeGenerator struct {
	calls      int
	lastKey    string
	lastPrompt string
	response   string
	err        error
	panicWith  any
}

func (f *fakeGenerator) Generate(_ context.Context, apiKey, prompt string) (string, error) {
	f.calls++
	f.lastKey = apiKey
	f.lastPrompt = prompt
	if f.panicWith != nil {
		panic(f.panicWith)
	}
	return f.response, f.err
}

func newFakeClassifier(gen generator, defaultKey string) *Classifier {
	return &Classifier{gen: gen, provider: "fake", model: "fake-model", defaultKey: defaultKey}
}

func TestClassifyNoCredentialSkipsCall(t *testing.T) {
	gen := &fakeGenerator{response: `{"categoria":"Produtivo","resposta_sugerida":"ok"}`}
	c := newFakeClassifier(gen, "")

	got := c.Classify(context.Background(), "preciso de ajuda", "  ")
	if gen.calls != 0 {
		t.Fatalf("generator called %d times, want 0", gen.calls)
	}
	if got.Outcome != domain.OutcomeNoCredential {
		t.Fatalf("outcome = %s, want no_credential", got.Outcome)
	}
	if got.Category != domain.CategoryError || got.SuggestedReply != domain.MessageNoCredential {
		t.Fatalf("unexpected result %+v", got)
	}
}

func TestClassifyCallerKeyWins(t *testing.T) {
	gen := &fakeGenerator{response: `{"categoria":"Produtivo","resposta_sugerida":"Vamos verificar."}`}
	c := newFakeClassifier(gen, "server-key")

	got := c.Classify(context.Background(), "status do chamado 42", "caller-key")
	if gen.lastKey != "caller-key" {
		t.Fatalf("key = %q, want caller-key", gen.lastKey)
	}
	if got.Category != domain.CategoryProductive || got.SuggestedReply != "Vamos verificar." || got.Outcome != domain.OutcomeOK {
		t.Fatalf("unexpected result %+v", got)
	}

	c.Classify(context.Background(), "status do chamado 42", "")
	if gen.lastKey != "server-key" {
		t.Fatalf("key = %q, want server-key fallback", gen.lastKey)
	}
}

func TestClassifyPromptCarriesText(t *testing.T) {
	gen := &fakeGenerator{response: `{"categoria":"Improdutivo","resposta_sugerida":"Obrigado!"}`}
	c := newFakeClassifier(gen, "k")

	c.Classify(context.Background(), "Feliz natal a todos", "")
	for _, want := range []string{"Feliz natal a todos", `"Produtivo"`, `"Improdutivo"`, "categoria", "resposta_sugerida"} {
		if !strings.Contains(gen.lastPrompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, gen.lastPrompt)
		}
	}
}

func TestClassifyErrorMapping(t *testing.T) {
	tests := []struct {
		name         string
		gen          *fakeGenerator
		wantCategory string
		wantOutcome  domain.Outcome
		wantReply    string
	}{
		{
			name:         "quota by status code",
			gen:          &fakeGenerator{err: &APIError{Provider: "gemini", StatusCode: http.StatusTooManyRequests, Message: "slow down"}},
			wantCategory: domain.CategoryQuotaExceeded,
			wantOutcome:  domain.OutcomeQuotaExceeded,
			wantReply:    domain.MessageQuotaExceeded,
		},
		{
			name:         "quota by message",
			gen:          &fakeGenerator{err: errors.New("upstream said RESOURCE_EXHAUSTED")},
			wantCategory: domain.CategoryQuotaExceeded,
			wantOutcome:  domain.OutcomeQuotaExceeded,
			wantReply:    domain.MessageQuotaExceeded,
		},
		{
			name:         "quota by 429 in message",
			gen:          &fakeGenerator{err: errors.New("googleapi: Error 429: quota exceeded for this key")},
			wantCategory: domain.CategoryQuotaExceeded,
			wantOutcome:  domain.OutcomeQuotaExceeded,
			wantReply:    domain.MessageQuotaExceeded,
		},
		{
			name:         "other service error",
			gen:          &fakeGenerator{err: errors.New("connection refused")},
			wantCategory: domain.CategoryError,
			wantOutcome:  domain.OutcomeServiceError,
			wantReply:    "connection refused",
		},
		{
			name:         "malformed json",
			gen:          &fakeGenerator{response: "Produtivo, com certeza"},
			wantCategory: domain.CategoryError,
			wantOutcome:  domain.OutcomeServiceError,
		},
		{
			name:         "missing categoria",
			gen:          &fakeGenerator{response: `{"resposta_sugerida":"oi"}`},
			wantCategory: domain.CategoryError,
			wantOutcome:  domain.OutcomeServiceError,
		},
		{
			name:         "panic",
			gen:          &fakeGenerator{panicWith: "boom"},
			wantCategory: domain.CategoryError,
			wantOutcome:  domain.OutcomeServiceError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newFakeClassifier(tt.gen, "k")
			got := c.Classify(context.Background(), "texto", "")
			if got.Category != tt.wantCategory || got.Outcome != tt.wantOutcome {
				t.Fatalf("got category=%q outcome=%s, want %q %s", got.Category, got.Outcome, tt.wantCategory, tt.wantOutcome)
			}
			if tt.wantReply != "" && !strings.Contains(got.SuggestedReply, tt.wantReply) {
				t.Fatalf("reply = %q, want it to contain %q", got.SuggestedReply, tt.wantReply)
			}
			if got.SuggestedReply == "" {
				t.Fatal("error results must carry a message")
			}
		})
	}
}

func TestParseClassificationResponse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantCat  string
		wantErr  bool
		wantText string
	}{
		{name: "object", input: `{"categoria":"Produtivo","resposta_sugerida":"Ok"}`, wantCat: "Produtivo", wantText: "Ok"},
		{name: "fenced", input: "```json\n{\"categoria\":\"Improdutivo\",\"resposta_sugerida\":\"Obrigado\"}\n```", wantCat: "Improdutivo", wantText: "Obrigado"},
		{name: "single element array", input: `[{"categoria":"Produtivo","resposta_sugerida":"x"}]`, wantCat: "Produtivo", wantText: "x"},
		{name: "two element array", input: `[{"categoria":"Produtivo"},{"categoria":"Improdutivo"}]`, wantErr: true},
		{name: "blank categoria", input: `{"categoria":"  ","resposta_sugerida":"x"}`, wantErr: true},
		{name: "not json", input: `hello`, wantErr: true},
		{name: "missing reply", input: `{"categoria":"Improdutivo"}`, wantCat: "Improdutivo", wantText: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseClassificationResponse(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Category != tt.wantCat || got.SuggestedReply != tt.wantText {
				t.Fatalf("got %+v", got)
			}
		})
	}
}

func TestGeminiGeneratorRequest(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/models/test-model:generateContent" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("x-goog-api-key"); got != "caller-key" {
			t.Errorf("api key header = %q", got)
		}
		if r.URL.RawQuery != "" {
			t.Errorf("key must not travel in the query string: %q", r.URL.RawQuery)
		}
		body, _ := io.ReadAll(r.Body)
		var req geminiRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if req.GenerationConfig.ResponseMimeType != "application/json" {
			t.Errorf("responseMimeType = %q", req.GenerationConfig.ResponseMimeType)
		}
		if len(req.Contents) != 1 || !strings.Contains(req.Contents[0].Parts[0].Text, "reunião amanhã") {
			t.Errorf("prompt not forwarded: %+v", req.Contents)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":"{\"categoria\":\"Produtivo\",\"resposta_sugerida\":\"Confirmado.\"}"}]}}],"usageMetadata":{"promptTokenCount":10,"candidatesTokenCount":5}}`)
	}))
	defer server.Close()

	c := NewClassifier(config.Config{
		LLMProvider:   config.ProviderGemini,
		LLMModel:      "test-model",
		GeminiBaseURL: server.URL + "/",
		GoogleAPIKey:  "server-key",
	})
	got := c.Classify(context.Background(), "reunião amanhã", "caller-key")
	if got.Outcome != domain.OutcomeOK || got.Category != domain.CategoryProductive || got.SuggestedReply != "Confirmado." {
		t.Fatalf("unexpected result %+v", got)
	}
	if hits.Load() != 1 {
		t.Fatalf("server hits = %d, want 1", hits.Load())
	}
}

func TestGeminiGeneratorQuota(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"code":429,"message":"Quota exceeded for metric","status":"RESOURCE_EXHAUSTED"}}`)
	}))
	defer server.Close()

	c := NewClassifier(config.Config{LLMProvider: config.ProviderGemini, LLMModel: "m", GeminiBaseURL: server.URL, GoogleAPIKey: "k"})
	got := c.Classify(context.Background(), "texto", "")
	if got.Outcome != domain.OutcomeQuotaExceeded || got.Category != domain.CategoryQuotaExceeded {
		t.Fatalf("unexpected result %+v", got)
	}
	if hits.Load() != 1 {
		t.Fatalf("server hits = %d, want exactly one attempt", hits.Load())
	}
}

func TestGeminiGeneratorServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"code":500,"message":"internal","status":"INTERNAL"}}`)
	}))
	defer server.Close()

	c := NewClassifier(config.Config{LLMProvider: config.ProviderGemini, LLMModel: "m", GeminiBaseURL: server.URL, GoogleAPIKey: "k"})
	got := c.Classify(context.Background(), "texto", "")
	if got.Outcome != domain.OutcomeServiceError || got.Category != domain.CategoryError {
		t.Fatalf("unexpected result %+v", got)
	}
	if !strings.Contains(got.SuggestedReply, "internal") {
		t.Fatalf("reply = %q, want provider message", got.SuggestedReply)
	}
}

func TestAnthropicGenerator(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("X-Api-Key"); got != "anthropic-key" {
			t.Errorf("api key header = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"msg_1","type":"message","role":"assistant","model":"m","content":[{"type":"text","text":"{\"categoria\":\"Improdutivo\",\"resposta_sugerida\":\"Obrigado pela mensagem!\"}"}],"stop_reason":"end_turn","usage":{"input_tokens":12,"output_tokens":8}}`)
	}))
	defer server.Close()

	c := NewClassifier(config.Config{
		LLMProvider:      config.ProviderAnthropic,
		LLMModel:         "m",
		AnthropicBaseURL: server.URL,
		AnthropicAPIKey:  "anthropic-key",
	})
	got := c.Classify(context.Background(), "Obrigado pela ajuda", "")
	if got.Outcome != domain.OutcomeOK || got.Category != domain.CategoryUnproductive || got.SuggestedReply != "Obrigado pela mensagem!" {
		t.Fatalf("unexpected result %+v", got)
	}
}

func TestAnthropicGeneratorRateLimitNoRetry(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"type":"error","error":{"type":"rate_limit_error","message":"rate limited"}}`)
	}))
	defer server.Close()

	c := NewClassifier(config.Config{LLMProvider: config.ProviderAnthropic, LLMModel: "m", AnthropicBaseURL: server.URL, AnthropicAPIKey: "k"})
	got := c.Classify(context.Background(), "texto", "")
	if got.Outcome != domain.OutcomeQuotaExceeded {
		t.Fatalf("outcome = %s, want quota_exceeded", got.Outcome)
	}
	if hits.Load() != 1 {
		t.Fatalf("server hits = %d, want 1", hits.Load())
	}
}

func TestIsQuotaError(t *testing.T) {
	if isQuotaError(nil) {
		t.Fatal("nil is not a quota error")
	}
	if !isQuotaError(fmt.Errorf("wrapped: %w", &APIError{Provider: "x", StatusCode: 429})) {
		t.Fatal("wrapped 429 should be a quota error")
	}
	if isQuotaError(&APIError{Provider: "x", StatusCode: 500, Message: "oops"}) {
		t.Fatal("500 is not a quota error")
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	in := strings.Repeat("ç", 10) // 20 bytes
	got := truncate(in, 5)
	if !utf8.ValidString(got) {
		t.Fatalf("truncate produced invalid UTF-8: %q", got)
	}
	if !strings.HasPrefix(got, "çç...") {
		t.Fatalf("truncate(%q, 5) = %q, want two whole runes kept", in, got)
	}
	if got := truncate("curto", 10); got != "curto" {
		t.Fatalf("short input changed: %q", got)
	}
}

func TestClassifyServiceErrorMessageIsValidUTF8(t *testing.T) {
	body := "x" + strings.Repeat("é", 400) // byte 512 falls inside a rune
	gen := &fakeGenerator{response: body}
	got := newFakeClassifier(gen, "k").Classify(context.Background(), "texto", "")
	if got.Outcome != domain.OutcomeServiceError {
		t.Fatalf("outcome = %s, want service_error", got.Outcome)
	}
	if !utf8.ValidString(got.SuggestedReply) {
		t.Fatalf("reply is not valid UTF-8: %q", got.SuggestedReply)
	}
}
