package poller

import "time"

// Stage is the last stage a cycle reached.
type Stage string

const (
	StageFetch    Stage = "fetch"
	StageValidate Stage = "validate"
	StageExtract  Stage = "extract"
	StageNotify   Stage = "notify"
)

// Outcome classifies how a cycle ended.
type Outcome string

const (
	OutcomeTransportError     Outcome = "transport_error"
	OutcomeSchemaError        Outcome = "schema_error"
	OutcomeUnrecognizedStatus Outcome = "unrecognized_status"
	OutcomeNoChange           Outcome = "no_change"
	OutcomeDuplicate          Outcome = "duplicate"
	OutcomeNotified           Outcome = "notified"
)

// Advances reports whether the cursor moves forward on this outcome.
func (o Outcome) Advances() bool {
	switch o {
	case OutcomeNoChange, OutcomeDuplicate, OutcomeNotified:
		return true
	default:
		return false
	}
}

// Outcomes lists every outcome, in the order they are checked.
func Outcomes() []Outcome {
	return []Outcome{
		OutcomeTransportError,
		OutcomeSchemaError,
		OutcomeUnrecognizedStatus,
		OutcomeNoChange,
		OutcomeDuplicate,
		OutcomeNotified,
	}
}

// CycleReport summarizes one cycle. It is a value; holding one never exposes
// loop state.
type CycleReport struct {
	ID           string        `json:"id"`
	Started      time.Time     `json:"started"`
	Stage        Stage         `json:"stage"`
	Outcome      Outcome       `json:"outcome"`
	CursorBefore int64         `json:"cursor_before"`
	CursorAfter  int64         `json:"cursor_after"`
	Status       string        `json:"status,omitempty"`
	Name         string        `json:"name,omitempty"`
	Delivered    bool          `json:"delivered"`
	Attempts     int           `json:"attempts,omitempty"`
	Error        string        `json:"error,omitempty"`
	Duration     time.Duration `json:"duration"`
}
