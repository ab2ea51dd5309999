package notifier

import (
	"fmt"
	"time"

	kit "hwbot/internal/transport"
)

type Config struct {
	Target        kit.ChatTarget
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	SendTimeout   time.Duration
}

// Message is one notification. Status and CycleID only feed logs, events and
// the journal.
type Message struct {
	Target  kit.ChatTarget // zero means Config.Target
	Text    string
	Status  string
	CycleID string
}

type Ack struct {
	Ref      kit.MessageRef
	Attempts int
	Took     time.Duration
}

type DeliveryError struct {
	Target   kit.ChatTarget
	Attempts int
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to chat %d failed after %d attempt(s): %v", e.Target.ChatID, e.Attempts, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

type HistoryItem struct {
	At        time.Time `json:"at"`
	Status    string    `json:"status,omitempty"`
	Text      string    `json:"text"`
	Delivered bool      `json:"delivered"`
}

// DeliveryEvent is the bus payload for notifier.sent / notifier.failed.
type DeliveryEvent struct {
	ChatID   int64         `json:"chat_id"`
	ThreadID int           `json:"thread_id,omitempty"`
	CycleID  string        `json:"cycle_id,omitempty"`
	Status   string        `json:"status,omitempty"`
	Attempts int           `json:"attempts"`
	Took     time.Duration `json:"took"`
	Error    string        `json:"error,omitempty"`
}
