package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"sortly/internal/domain"
	"sortly/internal/extract"
	"sortly/internal/normalize"
)

const (
	msgNoContent     = "Nenhum conteúdo de texto ou arquivo válido recebido."
	msgUploadTooBig  = "Arquivo ou texto excede o tamanho máximo permitido."
	multipartMemory  = 8 << 20
	notifyTimeout    = 15 * time.Second
	maxFilenameChars = 100
)

var unsafeFilenameRe = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// handleAnalyze runs one pass of intake, extraction, normalization,
// classification and persistence. Classification problems are reported in
// the 200 body; only missing input and oversize bodies are HTTP errors.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		if bodyTooLarge(err) {
			log.Printf("analyze rejected: body exceeds %d bytes", s.cfg.MaxUploadBytes)
			writeError(w, http.StatusRequestEntityTooLarge, msgUploadTooBig)
			return
		}
		log.Printf("analyze rejected: parse form: %v", err)
		writeError(w, http.StatusBadRequest, msgNoContent)
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	text := s.intake(r)
	if strings.TrimSpace(text) == "" {
		writeError(w, http.StatusBadRequest, msgNoContent)
		return
	}

	clean := normalize.Text(text)
	result := s.classifier.Classify(r.Context(), clean, s.callerKey(r))

	if result.Persistable() {
		// A client that hangs up after the model answered still gets its log row.
		persistCtx := context.WithoutCancel(r.Context())
		entry := domain.NewEmailLog(text, result)
		if id, ok := s.store.Record(persistCtx, entry); ok {
			entry.ID = id
			log.Printf("analyze persisted id=%d category=%s", id, entry.Category)
			s.notifyProductive(persistCtx, entry)
		}
	} else {
		log.Printf("analyze not persisted outcome=%s category=%s", result.Outcome, result.Category)
	}

	writeJSON(w, http.StatusOK, result)
}

// intake returns the submitted text. A named file part wins over the pasted
// text even when the file turns out to be unusable.
func (s *Server) intake(r *http.Request) string {
	file, header, err := r.FormFile("file")
	if err == nil {
		defer file.Close()
		if header.Filename != "" {
			return s.textFromUpload(file, header)
		}
	} else if !errors.Is(err, http.ErrMissingFile) && !errors.Is(err, http.ErrNotMultipart) {
		log.Printf("analyze read file part: %v", err)
	}

	if text := r.FormValue("email_text"); strings.TrimSpace(text) != "" {
		return text
	}
	return ""
}

func (s *Server) textFromUpload(file multipart.File, header *multipart.FileHeader) string {
	if !extract.Allowed(header.Filename) {
		log.Printf("analyze upload rejected: extension not allowed filename=%q", header.Filename)
		return ""
	}
	ext := extract.Ext(header.Filename)

	path, err := s.saveUpload(file, header.Filename)
	if err != nil {
		log.Printf("analyze upload save failed filename=%q: %v", header.Filename, err)
		return ""
	}
	defer removeUpload(path)

	text, err := extract.Extract(path, ext)
	if err != nil {
		log.Printf("analyze extract failed filename=%q: %v", header.Filename, err)
		return ""
	}
	log.Printf("analyze extracted filename=%q ext=%s chars=%d", header.Filename, ext, len(text))
	return text
}

func (s *Server) saveUpload(src io.Reader, filename string) (string, error) {
	name := uuid.NewString() + "_" + sanitizeFilename(filename)
	path := filepath.Join(s.cfg.UploadDir, name)

	dst, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", fmt.Errorf("creating upload file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		removeUpload(path)
		return "", fmt.Errorf("writing upload file: %w", err)
	}
	if err := dst.Close(); err != nil {
		removeUpload(path)
		return "", fmt.Errorf("closing upload file: %w", err)
	}
	return path, nil
}

// bodyTooLarge detects the MaxBytesReader limit even when the multipart
// reader has flattened the error into a message.
func bodyTooLarge(err error) bool {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return true
	}
	return strings.Contains(err.Error(), "request body too large")
}

func removeUpload(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("analyze remove upload %s failed: %v", path, err)
	}
}

// sanitizeFilename keeps only the base name with a conservative character set.
func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = unsafeFilenameRe.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		return "upload"
	}
	if len(name) > maxFilenameChars {
		name = name[len(name)-maxFilenameChars:]
	}
	return name
}

// notifyProductive posts in the background so Slack latency never delays the
// response. ctx must already be detached from the request.
func (s *Server) notifyProductive(ctx context.Context, entry domain.EmailLog) {
	if s.notifier == nil || entry.Category != domain.CategoryProductive {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
		defer cancel()
		if err := s.notifier.NotifyProductive(ctx, entry); err != nil {
			log.Printf("analyze notify failed id=%d: %v", entry.ID, err)
		}
	}()
}
