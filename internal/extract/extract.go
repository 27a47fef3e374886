// Package extract turns uploaded email files into plain text.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

const (
	ExtTXT = "txt"
	ExtPDF = "pdf"
)

var allowedExtensions = map[string]bool{
	ExtTXT: true,
	ExtPDF: true,
}

// Ext returns the lower-cased extension of filename without the dot.
func Ext(filename string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
}

// Allowed reports whether filename carries an extension we can extract.
func Allowed(filename string) bool {
	return allowedExtensions[Ext(filename)]
}

// Extract reads the file at path and returns its text. ext must already be
// one of the allowed extensions.
func Extract(path, ext string) (string, error) {
	switch strings.ToLower(ext) {
	case ExtPDF:
		return extractPDF(path)
	case ExtTXT:
		return extractTXT(path)
	default:
		return "", fmt.Errorf("unsupported extension %q", ext)
	}
}

func extractTXT(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read text file: %w", err)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("text file %s is not valid UTF-8", filepath.Base(path))
	}
	return string(data), nil
}

func extractPDF(path string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("panic during PDF extraction: %v", r)
		}
	}()

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open PDF: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat PDF: %w", err)
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return "", fmt.Errorf("open PDF reader: %w", err)
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		t := pageText(page)
		if t == "" {
			continue
		}
		b.WriteString(t)
		b.WriteString("\n")
	}
	return b.String(), nil
}

func pageText(page pdf.Page) string {
	var b strings.Builder
	for _, item := range page.Content().Text {
		b.WriteString(item.S)
	}
	return b.String()
}
