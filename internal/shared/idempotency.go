package shared

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrIdempotencyReplay indicates the key already produced a resource.
	ErrIdempotencyReplay = errors.New("idempotent request already processed")
	// ErrIdempotencyInFlight indicates the key is still being processed elsewhere.
	ErrIdempotencyInFlight = NewKindError(ErrConflict, "idempotent request still in progress")
)

// IdempotencyStore persists processed request keys per module and company.
type IdempotencyStore struct {
	pool *pgxpool.Pool
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(pool *pgxpool.Pool) *IdempotencyStore {
	return &IdempotencyStore{pool: pool}
}

func checkKey(key, module string) error {
	if key == "" {
		return errors.New("idempotency key required")
	}
	if module == "" {
		return errors.New("idempotency module required")
	}
	return nil
}

// Reserve claims key. When the key already completed it returns the stored
// resource id together with ErrIdempotencyReplay.
func (s *IdempotencyStore) Reserve(ctx context.Context, companyID int64, key, module string) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, errors.New("idempotency store not initialised")
	}
	if err := checkKey(key, module); err != nil {
		return 0, err
	}
	tag, err := s.pool.Exec(ctx, `INSERT INTO idempotency_keys (company_id, key, module, created_at)
VALUES ($1, $2, $3, $4) ON CONFLICT (company_id, key, module) DO NOTHING`, companyID, key, module, time.Now())
	if err != nil {
		return 0, err
	}
	if tag.RowsAffected() == 1 {
		return 0, nil
	}
	var resourceID *int64
	err = s.pool.QueryRow(ctx, `SELECT resource_id FROM idempotency_keys WHERE company_id=$1 AND key=$2 AND module=$3`, companyID, key, module).Scan(&resourceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrIdempotencyInFlight
		}
		return 0, err
	}
	if resourceID == nil {
		return 0, ErrIdempotencyInFlight
	}
	return *resourceID, ErrIdempotencyReplay
}

// Complete binds the resource produced for a reserved key.
func (s *IdempotencyStore) Complete(ctx context.Context, companyID int64, key, module string, resourceID int64) error {
	if s == nil || s.pool == nil {
		return nil
	}
	_, err := s.pool.Exec(ctx, `UPDATE idempotency_keys SET resource_id=$4 WHERE company_id=$1 AND key=$2 AND module=$3`, companyID, key, module, resourceID)
	return err
}

// Release removes a reservation, typically after failed processing.
func (s *IdempotencyStore) Release(ctx context.Context, companyID int64, key, module string) error {
	if s == nil || s.pool == nil {
		return nil
	}
	if err := checkKey(key, module); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE company_id=$1 AND key=$2 AND module=$3`, companyID, key, module)
	return err
}

// Cleanup removes entries older than retention.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, nil
	}
	cutoff := time.Now().Add(-olderThan)
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
