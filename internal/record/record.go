// Package record accumulates the structured audit events of a run.
package record

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// Record types written by the orchestrator.
const (
	TypeDistgitCommit     = "distgit_commit"
	TypeImageBuildMetrics = "image_build_metrics"
	TypeBuildFailure      = "build_failure"
	TypePushFailure       = "push_failure"
)

// Record is one self-describing audit event.
type Record struct {
	Type   string
	Fields map[string]string
	Time   time.Time
}

// Recorder is an append-only, process-lifetime event log safe for
// concurrent use.
type Recorder struct {
	mu      sync.Mutex
	records []Record
	now     func() time.Time
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{now: time.Now}
}

// Append records one event. fields is copied; no validation or
// deduplication is performed.
func (r *Recorder) Append(recordType string, fields map[string]string) {
	copied := make(map[string]string, len(fields))
	for k, v := range fields {
		copied[k] = v
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now
	if r.now != nil {
		now = r.now
	}
	r.records = append(r.records, Record{Type: recordType, Fields: copied, Time: now()})
}

// Records returns a snapshot of the events appended so far.
func (r *Recorder) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}

// Len returns the number of events appended so far.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// Encode writes records in the line format
//
//	type|key=value|key=value|
//
// with keys sorted. Separators inside values are escaped.
func Encode(w io.Writer, records []Record) error {
	bw := bufio.NewWriter(w)
	for _, rec := range records {
		if _, err := bw.WriteString(EncodeLine(rec)); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}
	return bw.Flush()
}

var escaper = strings.NewReplacer(`\`, `\\`, "|", `\|`, "\n", `\n`)

// EncodeLine renders one record, including the trailing newline.
func EncodeLine(rec Record) string {
	keys := make([]string, 0, len(rec.Fields))
	for k := range rec.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(escaper.Replace(rec.Type))
	b.WriteByte('|')
	for _, k := range keys {
		b.WriteString(escaper.Replace(k))
		b.WriteByte('=')
		b.WriteString(escaper.Replace(rec.Fields[k]))
		b.WriteByte('|')
	}
	b.WriteByte('\n')
	return b.String()
}
