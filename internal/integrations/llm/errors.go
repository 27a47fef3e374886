package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// APIError is a non-2xx answer from an LLM provider.
type APIError struct {
	Provider   string
	StatusCode int
	Status     string // provider status string, e.g. RESOURCE_EXHAUSTED
	Message    string
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("%s API error %d %s: %s", e.Provider, e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("%s API error %d: %s", e.Provider, e.StatusCode, e.Message)
}

// isQuotaError reports rate-limit or quota exhaustion, by status code when the
// error is typed and by message otherwise.
func isQuotaError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED" {
			return true
		}
	}
	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED") ||
		strings.Contains(msg, "Too Many Requests")
}
