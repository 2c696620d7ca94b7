package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-docaccess/core"
	"github.com/goliatone/go-docaccess/resilience"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ThrottleStateStore persists per-channel upstream quota state so multiple
// instances converge on the same view of what the platform last reported.
type ThrottleStateStore struct {
	db   *bun.DB
	repo repository.Repository[*throttleStateRecord]
}

func NewThrottleStateStore(db *bun.DB) (*ThrottleStateStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*throttleStateRecord](db, throttleStateHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid throttle state repository wiring: %w", err)
		}
	}
	return &ThrottleStateStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *ThrottleStateStore) Get(ctx context.Context, key core.ThrottleKey) (resilience.ThrottleState, error) {
	if s == nil || s.db == nil {
		return resilience.ThrottleState{}, fmt.Errorf("sqlstore: throttle state store is not configured")
	}
	key = normalizeThrottleKey(key)
	if err := validateThrottleKey(key); err != nil {
		return resilience.ThrottleState{}, err
	}

	record := &throttleStateRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.channel = ?", key.Channel).
		Where("?TableAlias.bucket_key = ?", key.BucketKey).
		OrderExpr("?TableAlias.updated_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return resilience.ThrottleState{}, resilience.ErrStateNotFound
		}
		return resilience.ThrottleState{}, err
	}
	return record.toDomain(), nil
}

func (s *ThrottleStateStore) Upsert(ctx context.Context, state resilience.ThrottleState) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: throttle state store is not configured")
	}
	state.Key = normalizeThrottleKey(state.Key)
	if err := validateThrottleKey(state.Key); err != nil {
		return err
	}
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now().UTC()
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findThrottleStateTx(ctx, tx, state.Key)
		if err != nil {
			return err
		}
		created := false
		if record == nil {
			created = true
			record = &throttleStateRecord{
				ID:        uuid.NewString(),
				Channel:   state.Key.Channel,
				BucketKey: state.Key.BucketKey,
				CreatedAt: state.UpdatedAt,
			}
		}
		record.Channel = state.Key.Channel
		record.BucketKey = state.Key.BucketKey
		record.LimitValue = state.Limit
		record.Remaining = state.Remaining
		record.ResetAt = copyTimePointer(state.ResetAt)
		record.RetryAfterSecs = durationToSecondsPointer(state.RetryAfter)
		record.ThrottledUntil = copyTimePointer(state.ThrottledUntil)
		record.LastStatus = state.LastStatus
		record.Attempts = state.Attempts
		record.UpdatedAt = state.UpdatedAt.UTC()

		if created {
			if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
				return insertErr
			}
			return nil
		}
		if _, updateErr := tx.NewUpdate().
			Model(record).
			Where("id = ?", record.ID).
			Exec(ctx); updateErr != nil {
			return updateErr
		}
		return nil
	})
}

func (r *throttleStateRecord) toDomain() resilience.ThrottleState {
	if r == nil {
		return resilience.ThrottleState{}
	}
	state := resilience.ThrottleState{
		Key: core.ThrottleKey{
			Channel:   r.Channel,
			BucketKey: r.BucketKey,
		},
		Limit:      r.LimitValue,
		Remaining:  r.Remaining,
		LastStatus: r.LastStatus,
		Attempts:   r.Attempts,
		UpdatedAt:  r.UpdatedAt,
	}
	state.ResetAt = copyTimePointer(r.ResetAt)
	state.ThrottledUntil = copyTimePointer(r.ThrottledUntil)
	if r.RetryAfterSecs != nil && *r.RetryAfterSecs > 0 {
		value := time.Duration(*r.RetryAfterSecs) * time.Second
		state.RetryAfter = &value
	}
	return state
}

func findThrottleStateTx(
	ctx context.Context,
	tx bun.Tx,
	key core.ThrottleKey,
) (*throttleStateRecord, error) {
	record := &throttleStateRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.channel = ?", key.Channel).
		Where("?TableAlias.bucket_key = ?", key.BucketKey).
		OrderExpr("?TableAlias.updated_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

func normalizeThrottleKey(key core.ThrottleKey) core.ThrottleKey {
	return core.ThrottleKey{
		Channel:   strings.TrimSpace(strings.ToLower(key.Channel)),
		BucketKey: strings.TrimSpace(strings.ToLower(key.BucketKey)),
	}
}

func validateThrottleKey(key core.ThrottleKey) error {
	if strings.TrimSpace(key.Channel) == "" {
		return fmt.Errorf("sqlstore: throttle channel is required")
	}
	if strings.TrimSpace(key.BucketKey) == "" {
		return fmt.Errorf("sqlstore: throttle bucket key is required")
	}
	return nil
}

func copyTimePointer(input *time.Time) *time.Time {
	if input == nil {
		return nil
	}
	value := input.UTC()
	return &value
}

func durationToSecondsPointer(input *time.Duration) *int {
	if input == nil || *input <= 0 {
		return nil
	}
	seconds := int(input.Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	return &seconds
}

