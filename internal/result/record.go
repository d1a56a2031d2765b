// Package result defines the unit of output produced by one request attempt and
// the channel plumbing that carries it from workers to presentation.
package result

import (
	"fmt"
	"strings"
	"time"
)

// Outcome classifies a finished request attempt.
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFail    Outcome = "FAIL"
	OutcomeError   Outcome = "ERROR"
)

// Severity tells a sink how to highlight a record.
type Severity int

const (
	SeverityPositive Severity = iota
	SeverityNegative
)

func (s Severity) String() string {
	if s == SeverityPositive {
		return "positive"
	}
	return "negative"
}

// EmptyBody replaces an empty response body in rendered output.
const EmptyBody = "Empty Response"

// PrefixLength is the number of identifier runes kept in IdentifierPrefix.
const PrefixLength = 10

// Record is produced by exactly one worker and consumed once by the pump.
// The producer must not touch it after Emit.
type Record struct {
	RequestNumber    int64         `json:"request"`
	Slot             int           `json:"slot"`
	Identifier       string        `json:"-"`
	IdentifierPrefix string        `json:"refid_prefix"`
	Outcome          Outcome       `json:"outcome"`
	StatusCode       int           `json:"status_code,omitempty"`
	Body             string        `json:"body,omitempty"`
	ErrorDetail      string        `json:"error,omitempty"`
	ErrorKind        string        `json:"error_kind,omitempty"`
	Severity         Severity      `json:"-"`
	Latency          time.Duration `json:"-"`
	LatencyMs        float64       `json:"latency_ms"`
	Timestamp        time.Time     `json:"timestamp"`
}

// Prefix returns the first PrefixLength runes of identifier.
func Prefix(identifier string) string {
	runes := []rune(identifier)
	if len(runes) <= PrefixLength {
		return identifier
	}
	return string(runes[:PrefixLength])
}

// SeverityFor maps an outcome to its severity.
func SeverityFor(outcome Outcome) Severity {
	if outcome == OutcomeSuccess {
		return SeverityPositive
	}
	return SeverityNegative
}

// Failed reports whether the record is anything but a success.
func (r Record) Failed() bool {
	return r.Outcome != OutcomeSuccess
}

// Message renders the record the way the console shows it.
func (r Record) Message() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Request #%d (Slot %d, RefID: %s...): ", r.RequestNumber, r.Slot, r.IdentifierPrefix)
	switch r.Outcome {
	case OutcomeError:
		sb.WriteString("ERROR\n")
		detail := r.ErrorDetail
		if detail == "" {
			detail = "unknown error"
		}
		fmt.Fprintf(&sb, "Details: %s\n", detail)
	default:
		fmt.Fprintf(&sb, "%s (%d)\n", r.Outcome, r.StatusCode)
		body := r.Body
		if body == "" {
			body = EmptyBody
		}
		fmt.Fprintf(&sb, "Response: %s\n", body)
	}
	sb.WriteString("---")
	return sb.String()
}
