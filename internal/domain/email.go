package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	CategoryProductive    = "Produtivo"
	CategoryUnproductive  = "Improdutivo"
	CategoryError         = "Erro"
	CategoryQuotaExceeded = "Cota Excedida"
	CategoryUnknown       = "Desconhecido"
)

const (
	SnippetMaxChars = 70
	snippetEllipsis = "..."
)

// HistoryDateLayout is the display format used by the history page and API.
const HistoryDateLayout = "02/01/2006 15:04"

type EmailLog struct {
	ID             int64
	SubjectSnippet string
	FullText       string // raw input, before normalization
	Category       string
	AIResponse     string
	CreatedAt      time.Time
}

// HistoryEntry is the JSON projection of an EmailLog.
type HistoryEntry struct {
	ID       int64  `json:"id"`
	Snippet  string `json:"snippet"`
	Category string `json:"category"`
	Date     string `json:"date"`
}

func (l EmailLog) HistoryEntry() HistoryEntry {
	return HistoryEntry{
		ID:       l.ID,
		Snippet:  l.SubjectSnippet,
		Category: l.Category,
		Date:     l.CreatedAt.Format(HistoryDateLayout),
	}
}

// Snippet returns the first SnippetMaxChars characters of text followed by an
// ellipsis, or text unchanged when it is short enough.
func Snippet(text string) string {
	if utf8.RuneCountInString(text) <= SnippetMaxChars {
		return text
	}
	runes := []rune(text)
	return string(runes[:SnippetMaxChars]) + snippetEllipsis
}

// NewEmailLog builds the record persisted after a successful classification.
// original is the text as submitted, not the normalized form sent to the model.
func NewEmailLog(original string, result ClassificationResult) EmailLog {
	category := strings.TrimSpace(result.Category)
	if category == "" {
		category = CategoryUnknown
	}
	return EmailLog{
		SubjectSnippet: Snippet(original),
		FullText:       original,
		Category:       category,
		AIResponse:     result.SuggestedReply,
	}
}
