package pipeline

import "fmt"

// Stage names the pipeline phase where a request failed.
type Stage string

const (
	StageSchema     Stage = "schema"
	StageValidation Stage = "validation"
	StageExecution  Stage = "execution"
)

// Error is a structured request failure. It names the failing stage and
// carries the offending SQL and attempt count so callers can debug or
// correct manually.
type Error struct {
	Stage    Stage
	Question string
	SQL      string
	StepID   string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s failed", e.Stage)
	if e.StepID != "" {
		msg += fmt.Sprintf(" at step %s", e.StepID)
	}
	if e.Attempts > 0 {
		msg += fmt.Sprintf(" after %d attempt(s)", e.Attempts)
	}
	msg += ": " + e.Err.Error()
	if e.SQL != "" {
		msg += fmt.Sprintf(" (sql: %s)", e.SQL)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }
