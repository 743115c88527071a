package bus

import (
	"encoding/json"
	"fmt"
)

// RunPayload describes an evaluation run at start and completion.
type RunPayload struct {
	RunID      string   `json:"run_id"`
	Queries    int      `json:"queries"`
	Strategies []string `json:"strategies"`
	Records    int      `json:"records,omitempty"`
	Failures   int      `json:"failures,omitempty"`
	DurationMs int64    `json:"duration_ms,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// QueryCompletedPayload is published once every strategy has answered a
// query.
type QueryCompletedPayload struct {
	RunID      string `json:"run_id"`
	QueryID    string `json:"query_id"`
	QueryIndex int    `json:"query_index"`
	Strategies int    `json:"strategies"`
	Failures   int    `json:"failures"`
	Completed  int    `json:"completed"`
	Total      int    `json:"total"`
}

// DecodePayload returns the payload of e as T. In-process buses deliver
// the original value; events read back from Kafka or the event log carry
// decoded JSON and are converted.
func DecodePayload[T any](e Event) (T, error) {
	var out T
	switch p := e.Payload.(type) {
	case T:
		return p, nil
	case *T:
		if p != nil {
			return *p, nil
		}
		return out, fmt.Errorf("event %s has nil payload", e.ID)
	}

	data, err := json.Marshal(e.Payload)
	if err != nil {
		return out, fmt.Errorf("encoding payload of event %s: %w", e.ID, err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decoding payload of event %s: %w", e.ID, err)
	}
	return out, nil
}
