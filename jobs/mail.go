package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wneessen/go-mail"

	jobmetrics "github.com/odyssey-erp/odyssey-procure/internal/jobs"
	"github.com/odyssey-erp/odyssey-procure/internal/procurement"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// ErrEmailLogNotFound is returned when a task references a missing email log row.
var ErrEmailLogNotFound = errors.New("jobs: email log not found")

// ErrInvalidAddress is returned for a sender or recipient that does not parse.
var ErrInvalidAddress = errors.New("jobs: invalid email address")

// Mailer delivers a single plain text message.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPMailer sends through an SMTP relay such as Mailpit or a local MTA.
// A client is dialed per message.
type SMTPMailer struct {
	host string
	from string
	opts []mail.Option
}

// NewSMTPMailer builds a mailer for host:port. STARTTLS is used when the relay
// offers it.
func NewSMTPMailer(host string, port int, from string, opts ...mail.Option) (*SMTPMailer, error) {
	m := &SMTPMailer{host: host, from: from}
	m.opts = append([]mail.Option{
		mail.WithPort(port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(15 * time.Second),
	}, opts...)
	if _, err := mail.NewClient(host, m.opts...); err != nil {
		return nil, fmt.Errorf("jobs: smtp client: %w", err)
	}
	if err := mail.NewMsg().From(from); err != nil {
		return nil, fmt.Errorf("%w: from %q: %v", ErrInvalidAddress, from, err)
	}
	return m, nil
}

// Send implements Mailer.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	msg, err := newMessage(m.from, to, subject, body)
	if err != nil {
		return err
	}
	client, err := mail.NewClient(m.host, m.opts...)
	if err != nil {
		return err
	}
	return client.DialAndSendWithContext(ctx, msg)
}

var headerBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// newMessage builds a plain text UTF-8 message. Addresses are parsed and
// rejected when malformed; line breaks in the subject are folded to spaces.
func newMessage(from, to, subject, body string) (*mail.Msg, error) {
	msg := mail.NewMsg(mail.WithCharset(mail.CharsetUTF8))
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("%w: from %q: %v", ErrInvalidAddress, from, err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("%w: to %q: %v", ErrInvalidAddress, to, err)
	}
	msg.Subject(headerBreaks.Replace(subject))
	msg.SetBodyString(mail.TypeTextPlain, body)
	return msg, nil
}

// EmailLogStore reads and updates email_logs rows for the worker.
type EmailLogStore struct {
	pool *pgxpool.Pool
}

// NewEmailLogStore constructs the store.
func NewEmailLogStore(pool *pgxpool.Pool) *EmailLogStore {
	return &EmailLogStore{pool: pool}
}

// Status returns the delivery status of an email log row.
func (s *EmailLogStore) Status(ctx context.Context, id int64) (procurement.EmailStatus, error) {
	var status string
	err := s.pool.QueryRow(ctx, `SELECT status FROM email_logs WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: %d", ErrEmailLogNotFound, id)
	}
	return procurement.EmailStatus(status), err
}

// MarkSent records a successful delivery.
func (s *EmailLogStore) MarkSent(ctx context.Context, id int64, at time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE email_logs SET status = $2, sent_date = $3, error_message = NULL
WHERE id = $1`, id, string(procurement.EmailStatusSent), at)
	return err
}

// MarkFailed records the final delivery error.
func (s *EmailLogStore) MarkFailed(ctx context.Context, id int64, message string) error {
	_, err := s.pool.Exec(ctx, `UPDATE email_logs SET status = $2, error_message = $3 WHERE id = $1`,
		id, string(procurement.EmailStatusFailed), message)
	return err
}

// Queued lists rows still Queued that were created before cutoff.
func (s *EmailLogStore) Queued(ctx context.Context, cutoff time.Time, limit int) ([]SendEmailPayload, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, company_id, recipient_email, subject, body
FROM email_logs WHERE status = $1 AND created_at < $2 ORDER BY id LIMIT $3`,
		string(procurement.EmailStatusQueued), cutoff, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (SendEmailPayload, error) {
		var p SendEmailPayload
		err := row.Scan(&p.EmailLogID, &p.CompanyID, &p.To, &p.Subject, &p.Body)
		return p, err
	})
}

type emailLogStore interface {
	Status(ctx context.Context, id int64) (procurement.EmailStatus, error)
	MarkSent(ctx context.Context, id int64, at time.Time) error
	MarkFailed(ctx context.Context, id int64, message string) error
}

// SendEmailJob delivers queued purchase order emails and records the outcome
// on the email log. Delivery failures never touch the purchase order.
type SendEmailJob struct {
	Store   emailLogStore
	Mailer  Mailer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewSendEmailJob wires dependencies for the mail:send handler.
func NewSendEmailJob(store emailLogStore, mailer Mailer, logger *slog.Logger, metrics *jobmetrics.Metrics) *SendEmailJob {
	return &SendEmailJob{
		Store:   store,
		Mailer:  mailer,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes TaskTypeSendEmail tasks.
func (j *SendEmailJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Store == nil || j.Mailer == nil {
		return errors.New("send email: handler not configured")
	}
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("send email: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if err := payload.validate(); err != nil {
		return fmt.Errorf("send email: %v: %w", err, asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskTypeSendEmail)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()
	logger := j.logger().With(slog.Int64("email_log_id", payload.EmailLogID))

	status, err := j.Store.Status(ctx, payload.EmailLogID)
	if err != nil {
		return err
	}
	if status != procurement.EmailStatusQueued {
		logger.Info("email already processed", slog.String("status", string(status)))
		return nil
	}

	if err := j.Mailer.Send(ctx, payload.To, payload.Subject, payload.Body); err != nil {
		permanent := errors.Is(err, ErrInvalidAddress)
		if !permanent && !finalAttempt(ctx) {
			logger.Warn("deliver email, will retry", slog.Any("error", err))
			return err
		}
		logger.Error("deliver email", slog.Any("error", err))
		if merr := j.Store.MarkFailed(ctx, payload.EmailLogID, err.Error()); merr != nil {
			return errors.Join(err, merr)
		}
		j.metrics().AddEmail(string(procurement.EmailStatusFailed))
		if permanent {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return err
	}
	if err := j.Store.MarkSent(ctx, payload.EmailLogID, j.now()); err != nil {
		return err
	}
	j.metrics().AddEmail(string(procurement.EmailStatusSent))
	logger.Info("email delivered", slog.String("to", payload.To))
	return nil
}

// finalAttempt reports whether asynq will not retry after this run. Outside a
// worker there is no retry metadata and every run is final.
func finalAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return true
	}
	limit, ok := asynq.GetMaxRetry(ctx)
	return !ok || retried >= limit
}

func (j *SendEmailJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskTypeSendEmail))
	}
	return slog.Default().With(slog.String("job", TaskTypeSendEmail))
}

func (j *SendEmailJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *SendEmailJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
