package output

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/torosent/crankping/internal/result"
)

// JSONLines writes one JSON object per record. It implements result.Sink.
type JSONLines struct {
	mu    sync.Mutex
	enc   *json.Encoder
	runID string
	err   error
}

type jsonLine struct {
	RunID string `json:"run_id,omitempty"`
	result.Record
}

func NewJSONLines(w io.Writer, runID string) *JSONLines {
	if w == nil {
		w = io.Discard
	}
	return &JSONLines{enc: json.NewEncoder(w), runID: runID}
}

func (j *JSONLines) Handle(rec result.Record) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return
	}
	j.err = j.enc.Encode(jsonLine{RunID: j.runID, Record: rec})
}

// Err returns the first write error, after which output stops.
func (j *JSONLines) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}
