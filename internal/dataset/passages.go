package dataset

import (
	"errors"

	apperrors "github.com/asmuvera/muvera-eval/internal/pkg/errors"
)

// Passage is a corpus document.
type Passage struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
	Text  string `json:"text"`
}

type passageRecord struct {
	ID      string `json:"id"`
	DocID   string `json:"doc_id"`
	Title   string `json:"title"`
	Text    string `json:"text"`
	Content string `json:"content"`
}

// LoadPassages reads passages from JSONL ({"id","title","content"} or
// {"id","text"}) or from an MS MARCO style "id<TAB>text" collection.
func LoadPassages(path string) ([]Passage, error) {
	format := detectFormat(path)
	var passages []Passage

	err := eachLine(path, func(line string, n int) error {
		var p Passage
		switch format {
		case FormatTSV, FormatTREC:
			q, err := parseTabPair(path, n, line)
			if err != nil {
				return err
			}
			p = Passage{ID: q.ID, Text: q.Text}
		default:
			var rec passageRecord
			if err := decodeLine(path, n, line, &rec); err != nil {
				return err
			}
			p = Passage{
				ID:    firstNonEmpty(rec.ID, rec.DocID),
				Title: rec.Title,
				Text:  firstNonEmpty(rec.Text, rec.Content),
			}
		}
		if p.ID == "" {
			return apperrors.InputLoadError(path, n, errors.New("passage id is empty"))
		}
		passages = append(passages, p)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return passages, nil
}
