package domain

// Outcome tags how a classification attempt ended.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeNoCredential
	OutcomeQuotaExceeded
	OutcomeServiceError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeNoCredential:
		return "no_credential"
	case OutcomeQuotaExceeded:
		return "quota_exceeded"
	case OutcomeServiceError:
		return "service_error"
	default:
		return "unknown"
	}
}

const (
	MessageNoCredential  = "Nenhuma chave de API configurada."
	MessageQuotaExceeded = "A chave utilizada atingiu o limite gratuito. Tente outra chave nas Configurações ou aguarde alguns instantes."
)

type ClassificationResult struct {
	Category       string  `json:"categoria"`
	SuggestedReply string  `json:"resposta_sugerida"`
	Outcome        Outcome `json:"-"`
}

// Persistable reports whether the result may be written to the log store.
func (r ClassificationResult) Persistable() bool {
	if r.Outcome != OutcomeOK {
		return false
	}
	return r.Category != CategoryError && r.Category != CategoryQuotaExceeded
}

func NoCredentialResult() ClassificationResult {
	return ClassificationResult{
		Category:       CategoryError,
		SuggestedReply: MessageNoCredential,
		Outcome:        OutcomeNoCredential,
	}
}

func QuotaExceededResult() ClassificationResult {
	return ClassificationResult{
		Category:       CategoryQuotaExceeded,
		SuggestedReply: MessageQuotaExceeded,
		Outcome:        OutcomeQuotaExceeded,
	}
}

func ServiceErrorResult(err error) ClassificationResult {
	return ClassificationResult{
		Category:       CategoryError,
		SuggestedReply: err.Error(),
		Outcome:        OutcomeServiceError,
	}
}
