package sqlstore

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-slack-dispatch/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	ClaimStatusProcessing = "processing"
	ClaimStatusRetryReady = "retry_ready"
	ClaimStatusComplete   = "complete"

	defaultClaimLease = 10 * time.Minute
	maxErrorLength    = 512
)

// ClaimStore is the durable dedupe ledger for platform deliveries. Rows are
// keyed by claim_key; claim_id identifies the current owner of the row.
type ClaimStore struct {
	db   *bun.DB
	repo repository.Repository[*claimRecord]
	Now  func() time.Time
}

func NewClaimStore(db *bun.DB) (*ClaimStore, error) {
	if db == nil {
		return nil, storeError("sqlstore: bun db is required", goerrors.CategoryBadInput, core.ErrorBadInput)
	}
	repo := repository.NewRepository[*claimRecord](db, claimHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, core.WrapError(err, goerrors.CategoryInternal, "sqlstore: invalid claim repository wiring", core.ErrorInternal, nil)
		}
	}
	return &ClaimStore{db: db, repo: repo}, nil
}

func (s *ClaimStore) Claim(ctx context.Context, key string, lease time.Duration) (string, bool, error) {
	if s == nil || s.db == nil {
		return "", false, storeError("sqlstore: claim store is not configured", goerrors.CategoryInternal, core.ErrorInternal)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", false, storeError("sqlstore: claim key is required", goerrors.CategoryBadInput, core.ErrorBadInput)
	}
	if lease <= 0 {
		lease = defaultClaimLease
	}
	now := s.now()
	expiresAt := now.Add(lease)
	claimID := uuid.NewString()

	record := &claimRecord{
		ID:        uuid.NewString(),
		ClaimKey:  key,
		ClaimID:   claimID,
		Status:    ClaimStatusProcessing,
		Attempts:  1,
		LeaseMS:   lease.Milliseconds(),
		ExpiresAt: &expiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.NewInsert().Model(record).Exec(ctx)
	if err == nil {
		return claimID, true, nil
	}
	if !isUniqueViolation(err) {
		return "", false, err
	}

	existing, err := s.byKey(ctx, key)
	if err != nil {
		return "", false, err
	}
	if existing == nil || blocks(existing, now) {
		return "", false, nil
	}

	result, err := s.db.NewUpdate().
		Model((*claimRecord)(nil)).
		Set("claim_id = ?", claimID).
		Set("status = ?", ClaimStatusProcessing).
		Set("attempts = ?", existing.Attempts+1).
		Set("lease_ms = ?", lease.Milliseconds()).
		Set("expires_at = ?", expiresAt).
		Set("retry_at = NULL").
		Set("updated_at = ?", now).
		Where("claim_key = ?", key).
		Where("claim_id = ?", existing.ClaimID).
		Exec(ctx)
	if err != nil {
		return "", false, err
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return "", false, nil
	}
	return claimID, true, nil
}

func (s *ClaimStore) Complete(ctx context.Context, claimID string) error {
	return s.settle(ctx, claimID, func(record *claimRecord, now time.Time) *bun.UpdateQuery {
		lease := time.Duration(record.LeaseMS) * time.Millisecond
		if lease <= 0 {
			lease = defaultClaimLease
		}
		return s.db.NewUpdate().
			Model((*claimRecord)(nil)).
			Set("status = ?", ClaimStatusComplete).
			Set("expires_at = ?", now.Add(lease)).
			Set("retry_at = NULL").
			Set("last_error = ?", "")
	})
}

func (s *ClaimStore) Fail(ctx context.Context, claimID string, cause error, retryAt time.Time) error {
	message := ""
	if cause != nil {
		message = cause.Error()
		if len(message) > maxErrorLength {
			message = message[:maxErrorLength]
		}
	}
	return s.settle(ctx, claimID, func(_ *claimRecord, now time.Time) *bun.UpdateQuery {
		if retryAt.IsZero() {
			retryAt = now
		}
		return s.db.NewUpdate().
			Model((*claimRecord)(nil)).
			Set("status = ?", ClaimStatusRetryReady).
			Set("retry_at = ?", retryAt.UTC()).
			Set("expires_at = NULL").
			Set("last_error = ?", message)
	})
}

// Prune deletes completed claims whose dedupe window has passed.
func (s *ClaimStore) Prune(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, storeError("sqlstore: claim store is not configured", goerrors.CategoryInternal, core.ErrorInternal)
	}
	result, err := s.db.NewDelete().
		Model((*claimRecord)(nil)).
		Where("status = ?", ClaimStatusComplete).
		Where("expires_at <= ?", s.now()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Attempts reports how many times key has been claimed.
func (s *ClaimStore) Attempts(ctx context.Context, key string) (int, error) {
	record, err := s.byKey(ctx, strings.TrimSpace(key))
	if err != nil {
		return 0, err
	}
	if record == nil {
		return 0, nil
	}
	return record.Attempts, nil
}

func (s *ClaimStore) settle(ctx context.Context, claimID string, update func(record *claimRecord, now time.Time) *bun.UpdateQuery) error {
	if s == nil || s.db == nil {
		return storeError("sqlstore: claim store is not configured", goerrors.CategoryInternal, core.ErrorInternal)
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return storeError("sqlstore: claim id is required", goerrors.CategoryBadInput, core.ErrorBadInput)
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("claim_id", "=", claimID),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return err
	}
	if len(records) == 0 || records[0].Status != ClaimStatusProcessing {
		return nil
	}
	now := s.now()
	_, err = update(records[0], now).
		Set("updated_at = ?", now).
		Where("claim_id = ?", claimID).
		Where("status = ?", ClaimStatusProcessing).
		Exec(ctx)
	return err
}

func (s *ClaimStore) byKey(ctx context.Context, key string) (*claimRecord, error) {
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("claim_key", "=", key),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

func (s *ClaimStore) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func blocks(record *claimRecord, now time.Time) bool {
	if record == nil {
		return false
	}
	switch record.Status {
	case ClaimStatusProcessing, ClaimStatusComplete:
		return record.ExpiresAt != nil && now.Before(record.ExpiresAt.UTC())
	case ClaimStatusRetryReady:
		return record.RetryAt != nil && now.Before(record.RetryAt.UTC())
	default:
		return false
	}
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}

func storeError(message string, category goerrors.Category, textCode string) error {
	return core.NewError(message, category, textCode, nil)
}

var _ core.ClaimStore = (*ClaimStore)(nil)
