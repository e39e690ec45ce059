package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/integration/events"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueLedgerEvents carries ledger domain events awaiting fan-out.
	QueueLedgerEvents = "ledger_events"
	// TaskGLIntegrity is the task type for the periodic double-entry scan.
	TaskGLIntegrity = "ledger:gl_integrity"
)

// EventTaskTypes lists the task types produced by the asynq event sink.
var EventTaskTypes = []string{
	events.TopicTransactionPosted,
	events.TopicTransactionReversed,
}

// GLIntegrityPayload bounds the integrity scan window.
type GLIntegrityPayload struct {
	LookbackHours int `json:"lookback_hours"`
}

func (p GLIntegrityPayload) lookback() time.Duration {
	if p.LookbackHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(p.LookbackHours) * time.Hour
}

// NewGLIntegrityTask constructs an Asynq task.
func NewGLIntegrityTask(payload GLIntegrityPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskGLIntegrity, data), nil
}
