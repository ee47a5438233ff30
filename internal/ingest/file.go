// Package ingest turns uploaded or local files into datastore documents.
// PDF files go through text extraction; anything else is treated as UTF-8
// text. Used by the /upsert-file endpoint and the `mekonggpt ingest` CLI
// command, both of which feed the same upsert pipeline.
package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/mekonggpt/retrieval-go/internal/datastore"
)

// ParseMetadata decodes an optional metadata JSON string. A missing or
// unparseable string falls back to a generic file source rather than
// failing the upload.
func ParseMetadata(raw string) datastore.DocumentMetadata {
	fallback := datastore.DocumentMetadata{Source: datastore.SourceFile}
	if raw == "" {
		return fallback
	}

	var meta datastore.DocumentMetadata
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return fallback
	}
	if meta.Source == "" {
		meta.Source = datastore.SourceFile
	}
	return meta
}

// DocumentFromFile reads the file content from r and builds a datastore
// document with the given metadata. name is used to detect PDFs and as the
// source identifier when the metadata has none.
func DocumentFromFile(name string, r io.Reader, meta datastore.DocumentMetadata) (datastore.Document, error) {
	var (
		text string
		err  error
	)
	if strings.EqualFold(filepath.Ext(name), ".pdf") {
		text, err = extractPDFText(r)
	} else {
		text, err = readText(r)
	}
	if err != nil {
		return datastore.Document{}, err
	}
	if strings.TrimSpace(text) == "" {
		return datastore.Document{}, fmt.Errorf("ingest: no text extracted from %s", name)
	}

	if meta.SourceID == "" {
		meta.SourceID = name
	}

	return datastore.Document{Text: text, Metadata: meta}, nil
}

// readText reads r fully as UTF-8 text.
func readText(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("ingest: read file: %w", err)
	}
	return string(data), nil
}

// extractPDFText extracts the plain text of a PDF. The PDF library works
// with file paths, so the upload is spooled to a temp file first.
func extractPDFText(r io.Reader) (string, error) {
	tmp, err := os.CreateTemp("", "upload-*.pdf")
	if err != nil {
		return "", fmt.Errorf("ingest: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := io.Copy(tmp, r); err != nil {
		return "", fmt.Errorf("ingest: spool pdf: %w", err)
	}

	f, rdr, err := pdf.Open(tmp.Name())
	if err != nil {
		return "", fmt.Errorf("ingest: open pdf: %w", err)
	}
	defer f.Close()

	plain, err := rdr.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("ingest: extract pdf text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("ingest: read pdf text: %w", err)
	}

	return buf.String(), nil
}
