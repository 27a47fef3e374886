// Package web serves the triage pages and the /analyze endpoint.
package web

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"sortly/internal/config"
	"sortly/internal/domain"
	"sortly/internal/metrics"
)

const (
	defaultMaxUploadBytes   = 16 << 20
	defaultCredentialHeader = "X-Gemini-Key"
)

type Classifier interface {
	Classify(ctx context.Context, text, callerKey string) domain.ClassificationResult
}

// LogStore is the best-effort log store: failures are absorbed by the store.
type LogStore interface {
	Record(ctx context.Context, l domain.EmailLog) (int64, bool)
	History(ctx context.Context) []domain.EmailLog
}

type Notifier interface {
	NotifyProductive(ctx context.Context, l domain.EmailLog) error
}

type Server struct {
	cfg        config.Config
	classifier Classifier
	store      LogStore
	notifier   Notifier
	pages      *pages
}

func NewServer(cfg config.Config, classifier Classifier, store LogStore, notifier Notifier) (*Server, error) {
	p, err := loadPages()
	if err != nil {
		return nil, err
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if strings.TrimSpace(cfg.CredentialHeader) == "" {
		cfg.CredentialHeader = defaultCredentialHeader
	}
	return &Server{
		cfg:        cfg,
		classifier: classifier,
		store:      store,
		notifier:   notifier,
		pages:      p,
	}, nil
}

// Router registers every route. When CORS origins are configured the router
// is wrapped so browsers on those origins may send the credential header.
func (s *Server) Router() http.Handler {
	router := mux.NewRouter()
	router.Use(s.instrument)

	router.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	router.HandleFunc("/preferences", s.handlePreferences).Methods(http.MethodGet)
	router.HandleFunc("/history", s.handleHistoryPage).Methods(http.MethodGet)
	router.HandleFunc("/analyze", s.handleAnalyze).Methods(http.MethodPost)

	router.HandleFunc("/api/history", s.handleHistoryAPI).Methods(http.MethodGet)
	router.HandleFunc("/healthz", handleHealthz).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	router.PathPrefix("/static/").Handler(staticHandler())

	if len(s.cfg.CORSAllowedOrigins) == 0 {
		return router
	}
	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.CORSAllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Content-Type",
			s.cfg.CredentialHeader,
		},
	})
	return c.Handler(router)
}

func (s *Server) handleHistoryAPI(w http.ResponseWriter, r *http.Request) {
	logs := s.store.History(r.Context())
	entries := make([]domain.HistoryEntry, 0, len(logs))
	for _, l := range logs {
		entries = append(entries, l.HistoryEntry())
	}
	writeJSON(w, http.StatusOK, entries)
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("http write json status=%d error: %v", status, err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) callerKey(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(s.cfg.CredentialHeader))
}
