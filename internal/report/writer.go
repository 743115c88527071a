package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	apperrors "github.com/asmuvera/muvera-eval/internal/pkg/errors"
)

// Format is a report file format.
type Format string

// Supported formats.
const (
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatMarkdown Format = "markdown"
	FormatCSV      Format = "csv"
)

// Formatter encodes a report.
type Formatter interface {
	Format(r *Report) ([]byte, error)
}

// ParseFormat parses a format name. Common aliases are accepted.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "csv":
		return FormatCSV, nil
	}
	return "", apperrors.ValidationError(fmt.Sprintf("unknown report format %q", name))
}

// FormatFromPath infers the format from the file extension, defaulting to
// JSON.
func FormatFromPath(path string) Format {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if f, err := ParseFormat(ext); err == nil {
		return f
	}
	return FormatJSON
}

// NewFormatter returns the formatter for f.
func NewFormatter(f Format) (Formatter, error) {
	switch f {
	case FormatJSON:
		return jsonFormatter{}, nil
	case FormatYAML:
		return yamlFormatter{}, nil
	case FormatMarkdown:
		return markdownFormatter{}, nil
	case FormatCSV:
		return csvFormatter{}, nil
	}
	return nil, apperrors.ValidationError(fmt.Sprintf("unknown report format %q", f))
}

// Write encodes r and writes it to path. An empty format is inferred from
// the extension of path.
func Write(path string, format Format, r *Report) error {
	if path == "" {
		return apperrors.ValidationError("report path is required")
	}
	if format == "" {
		format = FormatFromPath(path)
	}

	formatter, err := NewFormatter(format)
	if err != nil {
		return err
	}
	data, err := formatter.Format(r)
	if err != nil {
		return fmt.Errorf("encoding %s report: %w", format, err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating report directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

type jsonFormatter struct{}

func (jsonFormatter) Format(r *Report) ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

type yamlFormatter struct{}

func (yamlFormatter) Format(r *Report) ([]byte, error) {
	return yaml.Marshal(r)
}
