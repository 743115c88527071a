package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asmuvera/muvera-eval/internal/bus"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

// evaluateWithEventLog runs a local_keyword evaluation with the event log
// enabled and returns the config path and the run id.
func evaluateWithEventLog(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "queries.jsonl", `{"id": "q1", "text": "atomic bomb"}
{"id": "q2", "text": "nuclear energy"}
`)
	writeFile(t, dir, "qrels.jsonl", `{"query_id": "q1", "doc_id": "1", "relevance": 2}
{"query_id": "q2", "doc_id": "2", "relevance": 1}
`)
	writeFile(t, dir, "passages.jsonl", `{"id": "1", "text": "The Manhattan Project and its atomic bomb"}
{"id": "2", "title": "Nuclear energy", "text": "Peaceful uses of atomic power"}
`)
	reportPath := filepath.Join(dir, "report.json")
	cfgPath := writeFile(t, dir, "config.yaml", `
eval:
  queries: `+filepath.Join(dir, "queries.jsonl")+`
  judgments: `+filepath.Join(dir, "qrels.jsonl")+`
  strategies: [local_keyword]
  ks: [1, 5]
keyword:
  passages: `+filepath.Join(dir, "passages.jsonl")+`
bus:
  event_log: `+filepath.Join(dir, "events", "events.jsonl")+`
report:
  output: `+reportPath+`
log:
  level: error
`)

	_, err := execute(t, "evaluate", "--config", cfgPath)
	require.NoError(t, err)

	data, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	var rep struct {
		Metadata struct {
			RunID string `json:"run_id"`
		} `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(data, &rep))
	require.NotEmpty(t, rep.Metadata.RunID)
	return cfgPath, rep.Metadata.RunID
}

func TestEventsCmd_List(t *testing.T) {
	cfgPath, runID := evaluateWithEventLog(t)

	out, err := execute(t, "events", "--config", cfgPath, "--run", runID)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4, out)
	assert.Contains(t, lines[0], bus.TopicRunStarted)
	assert.Contains(t, lines[0], "queries=2 strategies=local_keyword")
	assert.Contains(t, lines[1], bus.TopicQueryCompleted)
	assert.Contains(t, lines[1], "progress=")
	assert.Contains(t, lines[3], bus.TopicRunCompleted)
	assert.Contains(t, lines[3], "records=2 failures=0")
	for _, line := range lines {
		assert.Contains(t, line, "run="+runID)
	}

	out, err = execute(t, "events", "--config", cfgPath, "--run", "unknown")
	require.NoError(t, err)
	assert.Contains(t, out, "No events found.")
}

func TestEventsCmd_JSON(t *testing.T) {
	cfgPath, runID := evaluateWithEventLog(t)

	out, err := execute(t, "events", "--config", cfgPath, "--run", runID, "--json", "--limit", "1")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1)
	var e bus.LoggedEvent
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &e))
	assert.Equal(t, bus.TopicRunStarted, e.Topic)
	assert.Equal(t, runID, e.Event.CorrelationID)
}

func TestEventsCmd_Replay(t *testing.T) {
	cfgPath, runID := evaluateWithEventLog(t)

	out, err := execute(t, "events", "--config", cfgPath, "--run", runID, "--replay")
	require.NoError(t, err)

	assert.Contains(t, out, "Replayed 4 events")
	assert.Contains(t, out, "queries evaluated: 2")
	assert.Contains(t, out, "failed calls:      0")
}

func TestEventsCmd_NoLog(t *testing.T) {
	cfgPath := writeFile(t, t.TempDir(), "config.yaml", "log:\n  level: error\n")

	_, err := execute(t, "events", "--config", cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no event log configured")
}

func TestParseSince(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	got, err := parseSince("", now)
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	got, err = parseSince("90m", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-90*time.Minute), got)

	got, err = parseSince("2026-02-28T10:00:00Z", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 28, 10, 0, 0, 0, time.UTC), got)

	_, err = parseSince("-1h", now)
	assert.Error(t, err)
	_, err = parseSince("yesterday", now)
	assert.Error(t, err)
}
