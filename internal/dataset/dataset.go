// Package dataset loads the inputs of an evaluation run: queries,
// relevance judgments, precomputed query embeddings and passages.
//
// Everything returned by this package is read-only once loaded.
package dataset

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/asmuvera/muvera-eval/internal/pkg/errors"
)

// maxLineSize bounds a single input record. Embedding rows with many token
// vectors are the largest records we read.
const maxLineSize = 64 * 1024 * 1024

// Query is a single evaluation query.
type Query struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Format identifies an input file encoding.
type Format string

const (
	FormatJSONL Format = "jsonl"
	FormatTSV   Format = "tsv"
	FormatTREC  Format = "trec"
)

// detectFormat picks a line format from the file extension.
// Anything that is not tab or whitespace separated is read as JSONL.
func detectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tsv", ".txt":
		return FormatTSV
	case ".qrels", ".trec":
		return FormatTREC
	default:
		return FormatJSONL
	}
}

// eachLine calls fn with every non-blank line of path and its 1-based line
// number. Errors returned by fn are passed through unchanged.
func eachLine(path string, fn func(line string, n int) error) error {
	f, err := os.Open(path)
	if err != nil {
		return apperrors.InputLoadError(path, 0, err)
	}
	defer f.Close()

	return scanLines(path, f, fn)
}

func scanLines(path string, r io.Reader, fn func(line string, n int) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	n := 0
	for scanner.Scan() {
		n++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := fn(line, n); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return apperrors.InputLoadError(path, n+1, err)
	}
	return nil
}

// decodeLine unmarshals a JSONL record, reporting the line on failure.
func decodeLine(path string, n int, line string, v any) error {
	if err := json.Unmarshal([]byte(line), v); err != nil {
		return apperrors.InputLoadError(path, n, err)
	}
	return nil
}

// firstNonEmpty returns the first non-empty argument.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
