package procurement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/odyssey-procure/internal/shared"
)

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ApprovalPort records approval history.
type ApprovalPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
}

// LockPort serializes work on one document across processes.
type LockPort interface {
	Acquire(ctx context.Context, key string) (shared.Release, error)
}

// Config tunes conflict handling.
type Config struct {
	MaxAttempts  int
	RetryBackoff time.Duration
}

// Dependencies collects the collaborators of Service. Only Repo and Refs are required.
type Dependencies struct {
	Repo      RepositoryPort
	Refs      ReferencePort
	Approvals ApprovalPort
	Audit     AuditPort
	Locker    LockPort
	Notifier  Notifier
	Metrics   MetricsPort
	Logger    *slog.Logger
	Now       func() time.Time
}

// Service orchestrates the procurement workflow.
type Service struct {
	repo      RepositoryPort
	refs      ReferencePort
	approvals ApprovalPort
	audit     AuditPort
	locker    LockPort
	notifier  Notifier
	metrics   MetricsPort
	logger    *slog.Logger
	now       func() time.Time
	cfg       Config
}

// NewService constructs procurement service.
func NewService(deps Dependencies, cfg Config) *Service {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:      deps.Repo,
		refs:      deps.Refs,
		approvals: deps.Approvals,
		audit:     deps.Audit,
		locker:    deps.Locker,
		notifier:  deps.Notifier,
		metrics:   deps.Metrics,
		logger:    logger.With(slog.String("module", "procurement")),
		now:       now,
		cfg:       cfg,
	}
}

// Page is one page of a listing.
type Page[T any] struct {
	Items      []T               `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

func newPage[T any](items []T, total int, filter ListFilter) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{Items: items, Pagination: shared.NewPagination(filter.Page, filter.PerPage, total)}
}

func checkActor(actor shared.Actor) error {
	if !actor.Valid() {
		return ErrActorRequired
	}
	return nil
}

// run executes fn in one transaction, retrying the whole unit on conflicts.
// fn must rebuild any state it returns on every attempt.
func (s *Service) run(ctx context.Context, op string, fn func(context.Context, TxRepository) error) error {
	return s.runLocked(ctx, op, "", fn)
}

// runLocked is run guarded by the document lock key. An empty key skips locking.
func (s *Service) runLocked(ctx context.Context, op, key string, fn func(context.Context, TxRepository) error) error {
	var err error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		err = s.attempt(ctx, key, fn)
		if err == nil || !shared.IsRetryable(err) {
			return err
		}
		if s.metrics != nil {
			s.metrics.ObserveConflict(op)
		}
		s.logger.Warn("procurement conflict", slog.String("operation", op), slog.Int("attempt", attempt), slog.Any("error", err))
		if attempt == s.cfg.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * s.cfg.RetryBackoff):
		}
	}
	return err
}

func (s *Service) attempt(ctx context.Context, key string, fn func(context.Context, TxRepository) error) error {
	if key != "" && s.locker != nil {
		release, err := s.locker.Acquire(ctx, key)
		if err != nil {
			return err
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("release document lock", slog.String("key", key), slog.Any("error", err))
			}
		}()
	}
	return s.repo.WithTx(ctx, fn)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case shared.IsRetryable(err):
		return "conflict"
	case shared.KindOf(err) != nil:
		return "rejected"
	}
	return "error"
}

func (s *Service) observe(doc DocumentType, tr string, err error) {
	if s.metrics != nil {
		s.metrics.ObserveTransition(string(doc), tr, outcome(err))
	}
	if err != nil && shared.KindOf(err) == nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("procurement operation failed", slog.String("document", string(doc)),
			slog.String("operation", tr), slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Actor, action string, doc DocumentType, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:   actor.UserID,
		CompanyID: actor.CompanyID,
		Action:    action,
		Entity:    string(doc),
		EntityID:  fmt.Sprintf("%d", id),
		Meta:      meta,
		At:        s.now(),
	})
	if err != nil {
		s.logger.Warn("record audit", slog.String("action", action), slog.Int64("id", id), slog.Any("error", err))
	}
}

func (s *Service) recordApproval(ctx context.Context, actor shared.Actor, doc DocumentType, id int64, action shared.ApprovalAction, note string) {
	if s.approvals == nil {
		return
	}
	err := s.approvals.Record(ctx, shared.ApprovalLog{
		Module:  string(doc),
		RefID:   shared.ApprovalRef(string(doc), id),
		ActorID: actor.UserID,
		Action:  action,
		Note:    note,
		At:      s.now(),
	})
	if err != nil {
		s.logger.Warn("record approval", slog.String("document", string(doc)), slog.Int64("id", id), slog.Any("error", err))
	}
}

func today(now time.Time, value *time.Time) time.Time {
	if value != nil && !value.IsZero() {
		return *value
	}
	return now.Truncate(24 * time.Hour)
}

func ptr[T any](v T) *T { return &v }
