package dataset

import (
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/asmuvera/muvera-eval/internal/pkg/errors"
)

// queryRecord accepts both the {"id","text"} and the {"query_id","query"}
// spellings found in MS MARCO derived files.
type queryRecord struct {
	ID      string `json:"id"`
	QueryID string `json:"query_id"`
	Text    string `json:"text"`
	Query   string `json:"query"`
}

// LoadQueries reads queries from a JSONL or TSV file, preserving file order.
// Missing files, malformed records, empty ids and duplicate ids are all
// reported as input load errors.
func LoadQueries(path string) ([]Query, error) {
	format := detectFormat(path)
	seen := make(map[string]int)
	var queries []Query

	err := eachLine(path, func(line string, n int) error {
		var q Query
		switch format {
		case FormatTSV, FormatTREC:
			var err error
			if q, err = parseTabPair(path, n, line); err != nil {
				return err
			}
		default:
			var rec queryRecord
			if err := decodeLine(path, n, line, &rec); err != nil {
				return err
			}
			q = Query{
				ID:   firstNonEmpty(rec.ID, rec.QueryID),
				Text: firstNonEmpty(rec.Text, rec.Query),
			}
		}

		if q.ID == "" {
			return apperrors.InputLoadError(path, n, errors.New("query id is empty"))
		}
		if q.Text == "" {
			return apperrors.InputLoadError(path, n, fmt.Errorf("query %s has no text", q.ID))
		}
		if prev, dup := seen[q.ID]; dup {
			return apperrors.InputLoadError(path, n, fmt.Errorf("duplicate query id %s (first on line %d)", q.ID, prev))
		}
		seen[q.ID] = n
		queries = append(queries, q)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(queries) == 0 {
		return nil, apperrors.InputLoadError(path, 0, errors.New("no queries found"))
	}
	return queries, nil
}

// Limit returns at most max queries from the head of the list.
// A max of zero or less means no limit.
func Limit(queries []Query, max int) []Query {
	if max <= 0 || max >= len(queries) {
		return queries
	}
	return queries[:max]
}

// parseTabPair splits an "id<TAB>text" line.
func parseTabPair(path string, n int, line string) (Query, error) {
	id, text, ok := strings.Cut(line, "\t")
	if !ok {
		return Query{}, apperrors.InputLoadError(path, n, errors.New("expected id<TAB>text"))
	}
	return Query{ID: strings.TrimSpace(id), Text: strings.TrimSpace(text)}, nil
}
