package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"sortly/internal/domain"
)

const classificationPrompt = `Você é um assistente de triagem de emails corporativos.
Tarefa:
1. Leia o conteúdo do email abaixo.
2. Classifique-o estritamente como "Produtivo" (exige alguma ação ou suporte) ou "Improdutivo" (agradecimentos, felicitações, spam, nenhuma ação necessária).
3. Escreva uma sugestão de resposta educada e profissional coerente com a categoria.

Email para análise:
"%s"

Responda APENAS com um objeto JSON com exatamente duas chaves: "categoria" e "resposta_sugerida".`

func buildPrompt(text string) string {
	return fmt.Sprintf(classificationPrompt, text)
}

type classificationPayload struct {
	Categoria        string `json:"categoria"`
	RespostaSugerida string `json:"resposta_sugerida"`
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// parseClassificationResponse decodes the model output. It accepts a bare
// object or a single-element array of objects.
func parseClassificationResponse(responseText string) (domain.ClassificationResult, error) {
	responseText = stripCodeFences(responseText)

	var payload classificationPayload
	if err := json.Unmarshal([]byte(responseText), &payload); err != nil {
		var list []classificationPayload
		if listErr := json.Unmarshal([]byte(responseText), &list); listErr != nil || len(list) != 1 {
			return domain.ClassificationResult{}, fmt.Errorf("parsing LLM classification response: %w (response: %s)", err, truncate(responseText, 512))
		}
		payload = list[0]
	}

	category := strings.TrimSpace(payload.Categoria)
	if category == "" {
		return domain.ClassificationResult{}, errors.New("LLM classification response has no \"categoria\"")
	}
	return domain.ClassificationResult{
		Category:       category,
		SuggestedReply: strings.TrimSpace(payload.RespostaSugerida),
		Outcome:        domain.OutcomeOK,
	}, nil
}

// truncate cuts s to at most max bytes without splitting a UTF-8 sequence.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + fmt.Sprintf("... [truncated, total_length=%d]", len(s))
}
