package dataset

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	apperrors "github.com/asmuvera/muvera-eval/internal/pkg/errors"
)

// Judgment is the graded relevance of one document for one query.
// Grade 0 means not relevant.
type Judgment struct {
	DocID string
	Grade int
}

// QueryJudgments holds the judgments of a single query in load order.
// The zero value is an empty set.
type QueryJudgments struct {
	order  []Judgment
	grades map[string]int
}

// NewQueryJudgments builds a judgment set from judgments in load order.
// A repeated document keeps its first position and takes the last grade.
func NewQueryJudgments(js ...Judgment) QueryJudgments {
	var q QueryJudgments
	for _, j := range js {
		q.set(j.DocID, j.Grade)
	}
	return q
}

func (q *QueryJudgments) set(docID string, grade int) {
	if q.grades == nil {
		q.grades = make(map[string]int)
	}
	if _, exists := q.grades[docID]; exists {
		for i := range q.order {
			if q.order[i].DocID == docID {
				q.order[i].Grade = grade
				break
			}
		}
	} else {
		q.order = append(q.order, Judgment{DocID: docID, Grade: grade})
	}
	q.grades[docID] = grade
}

// Grade returns the grade of docID, or 0 when it was never judged.
func (q QueryJudgments) Grade(docID string) int {
	return q.grades[docID]
}

// Grades returns all grades in load order.
func (q QueryJudgments) Grades() []int {
	grades := make([]int, len(q.order))
	for i, j := range q.order {
		grades[i] = j.Grade
	}
	return grades
}

// All returns a copy of the judgments in load order.
func (q QueryJudgments) All() []Judgment {
	out := make([]Judgment, len(q.order))
	copy(out, q.order)
	return out
}

// RelevantCount counts judged documents with grade >= threshold.
func (q QueryJudgments) RelevantCount(threshold int) int {
	count := 0
	for _, j := range q.order {
		if j.Grade >= threshold {
			count++
		}
	}
	return count
}

// Len returns the number of judged documents.
func (q QueryJudgments) Len() int {
	return len(q.order)
}

// Judgments maps query id to its judged documents.
type Judgments struct {
	byQuery map[string]*QueryJudgments
	queries []string
	total   int
}

// NewJudgments returns an empty judgment store.
func NewJudgments() *Judgments {
	return &Judgments{byQuery: make(map[string]*QueryJudgments)}
}

// Add records a judgment. Grades must be non-negative.
func (j *Judgments) Add(queryID, docID string, grade int) error {
	if queryID == "" || docID == "" {
		return apperrors.ValidationError("query id and doc id are required")
	}
	if grade < 0 {
		return apperrors.ValidationError(fmt.Sprintf("negative grade %d for %s/%s", grade, queryID, docID))
	}

	qj, ok := j.byQuery[queryID]
	if !ok {
		qj = &QueryJudgments{}
		j.byQuery[queryID] = qj
		j.queries = append(j.queries, queryID)
	}
	before := qj.Len()
	qj.set(docID, grade)
	j.total += qj.Len() - before
	return nil
}

// ForQuery returns the judgments of queryID. Unknown queries yield an
// empty set.
func (j *Judgments) ForQuery(queryID string) QueryJudgments {
	if qj, ok := j.byQuery[queryID]; ok {
		return *qj
	}
	return QueryJudgments{}
}

// Grade returns the grade of docID for queryID, 0 when unjudged.
func (j *Judgments) Grade(queryID, docID string) int {
	return j.ForQuery(queryID).Grade(docID)
}

// RelevantCount counts documents judged relevant for queryID.
func (j *Judgments) RelevantCount(queryID string, threshold int) int {
	return j.ForQuery(queryID).RelevantCount(threshold)
}

// QueryIDs returns the judged query ids in load order.
func (j *Judgments) QueryIDs() []string {
	out := make([]string, len(j.queries))
	copy(out, j.queries)
	return out
}

// Len returns the total number of judged (query, document) pairs.
func (j *Judgments) Len() int {
	return j.total
}

// judgmentRecord accepts doc_id and passage_id spellings.
type judgmentRecord struct {
	QueryID   string `json:"query_id"`
	DocID     string `json:"doc_id"`
	PassageID string `json:"passage_id"`
	Relevance *int   `json:"relevance"`
}

// LoadJudgments reads judgments from JSONL or TREC qrels
// ("qid iter docid grade", whitespace separated).
func LoadJudgments(path string) (*Judgments, error) {
	format := detectFormat(path)
	judgments := NewJudgments()

	err := eachLine(path, func(line string, n int) error {
		var (
			queryID, docID string
			grade          int
		)

		switch format {
		case FormatTSV, FormatTREC:
			fields := strings.Fields(line)
			if len(fields) != 4 {
				return apperrors.InputLoadError(path, n, fmt.Errorf("expected 4 fields, got %d", len(fields)))
			}
			g, err := strconv.Atoi(fields[3])
			if err != nil {
				return apperrors.InputLoadError(path, n, fmt.Errorf("invalid grade %q", fields[3]))
			}
			queryID, docID, grade = fields[0], fields[2], g
		default:
			var rec judgmentRecord
			if err := decodeLine(path, n, line, &rec); err != nil {
				return err
			}
			if rec.Relevance == nil {
				return apperrors.InputLoadError(path, n, errors.New("relevance is missing"))
			}
			queryID = rec.QueryID
			docID = firstNonEmpty(rec.DocID, rec.PassageID)
			grade = *rec.Relevance
		}

		if err := judgments.Add(queryID, docID, grade); err != nil {
			return apperrors.InputLoadError(path, n, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return judgments, nil
}
