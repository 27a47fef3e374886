package slackbot

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"sortly/internal/domain"
	"sortly/internal/httpx"
)

// Notifier posts classification events to a single Slack channel. A nil
// *Notifier is valid and does nothing.
type Notifier struct {
	api       *slack.Client
	channelID string
}

// NewNotifier returns nil when token or channelID is empty.
func NewNotifier(token, channelID string, opts ...slack.Option) *Notifier {
	if strings.TrimSpace(token) == "" || strings.TrimSpace(channelID) == "" {
		return nil
	}
	opts = append([]slack.Option{slack.OptionHTTPClient(httpx.ExternalHTTPClient())}, opts...)
	return &Notifier{
		api:       slack.New(token, opts...),
		channelID: channelID,
	}
}

func (n *Notifier) Enabled() bool { return n != nil }

// NotifyProductive announces a persisted productive email. Other categories
// are ignored.
func (n *Notifier) NotifyProductive(ctx context.Context, l domain.EmailLog) error {
	if n == nil || l.Category != domain.CategoryProductive {
		return nil
	}
	return n.post(ctx, "productive", FormatProductiveMessage(l))
}

// PostDigest posts the category summary for [since, until).
func (n *Notifier) PostDigest(ctx context.Context, counts map[string]int, since, until time.Time) error {
	if n == nil {
		return nil
	}
	return n.post(ctx, "digest", FormatDigest(counts, since, until))
}

func (n *Notifier) post(ctx context.Context, kind, text string) error {
	_, _, err := n.api.PostMessageContext(ctx, n.channelID, slack.MsgOptionText(text, false))
	if err != nil {
		log.Printf("slack post kind=%s channel=%s error: %v", kind, n.channelID, err)
		return fmt.Errorf("posting %s message: %w", kind, err)
	}
	log.Printf("slack post kind=%s channel=%s", kind, n.channelID)
	return nil
}

func FormatProductiveMessage(l domain.EmailLog) string {
	var b strings.Builder
	fmt.Fprintf(&b, ":inbox_tray: Novo email *%s* (#%d)\n", l.Category, l.ID)
	fmt.Fprintf(&b, "> %s\n", l.SubjectSnippet)
	if reply := strings.TrimSpace(l.AIResponse); reply != "" {
		fmt.Fprintf(&b, "Resposta sugerida: %s", reply)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatDigest renders per-category counts with the two main categories first
// and any other category after them alphabetically.
func FormatDigest(counts map[string]int, since, until time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Resumo de emails de %s a %s\n",
		since.Format(domain.HistoryDateLayout), until.Format(domain.HistoryDateLayout))

	total := 0
	for _, c := range counts {
		total += c
	}
	if total == 0 {
		b.WriteString("Nenhum email classificado no período.")
		return b.String()
	}

	fmt.Fprintf(&b, "• %s: %d\n", domain.CategoryProductive, counts[domain.CategoryProductive])
	fmt.Fprintf(&b, "• %s: %d\n", domain.CategoryUnproductive, counts[domain.CategoryUnproductive])

	var others []string
	for category := range counts {
		if category != domain.CategoryProductive && category != domain.CategoryUnproductive {
			others = append(others, category)
		}
	}
	sort.Strings(others)
	for _, category := range others {
		fmt.Fprintf(&b, "• %s: %d\n", category, counts[category])
	}
	fmt.Fprintf(&b, "Total: %d", total)
	return b.String()
}
