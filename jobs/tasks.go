package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueMail carries outbound supplier email.
	QueueMail = "mail"

	// TaskTypeSendEmail delivers one queued email log row.
	TaskTypeSendEmail = "mail:send"
	// TaskTypeSweepEmails re-enqueues email log rows left Queued.
	TaskTypeSweepEmails = "mail:sweep"
	// TaskTypeIdempotencyCleanup purges expired idempotency keys.
	TaskTypeIdempotencyCleanup = "idempotency:cleanup"
)

const sendEmailMaxRetry = 5

// SendEmailPayload identifies the email log row to deliver. Recipient, subject
// and body travel with the task.
type SendEmailPayload struct {
	EmailLogID int64  `json:"email_log_id"`
	CompanyID  int64  `json:"company_id"`
	To         string `json:"to"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
}

func (p SendEmailPayload) validate() error {
	switch {
	case p.EmailLogID <= 0:
		return fmt.Errorf("jobs: email log id required")
	case p.To == "":
		return fmt.Errorf("jobs: recipient required")
	}
	return nil
}

// sendEmailTaskID deduplicates enqueues of the same email log row.
func sendEmailTaskID(emailLogID int64) string {
	return fmt.Sprintf("email-log-%d", emailLogID)
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	if err := payload.validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data,
		asynq.Queue(QueueMail),
		asynq.TaskID(sendEmailTaskID(payload.EmailLogID)),
		asynq.MaxRetry(sendEmailMaxRetry),
		asynq.Retention(24*time.Hour),
	), nil
}

// SweepEmailsPayload bounds one sweep run.
type SweepEmailsPayload struct {
	OlderThan time.Duration `json:"older_than"`
	Limit     int           `json:"limit"`
}

// NewSweepEmailsTask builds the periodic sweep task.
func NewSweepEmailsTask(olderThan time.Duration, limit int) (*asynq.Task, error) {
	body, err := json.Marshal(SweepEmailsPayload{OlderThan: olderThan, Limit: limit})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSweepEmails, body, asynq.Queue(QueueDefault)), nil
}

// IdempotencyCleanupPayload sets the key retention.
type IdempotencyCleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewIdempotencyCleanupTask builds the periodic cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}
