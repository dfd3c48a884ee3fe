package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-payments/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RetryTaskStore is the durable retry ledger. A partial unique index keeps
// at most one live task per reference+kind pair, and claims run as a single
// CTE-driven UPDATE so concurrent runners never pick up the same row.
type RetryTaskStore struct {
	db   *bun.DB
	repo repository.Repository[*paymentRetryTaskRecord]
}

func NewRetryTaskStore(db *bun.DB) (*RetryTaskStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*paymentRetryTaskRecord](db, retryTaskHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid retry task repository wiring: %w", err)
		}
	}
	return &RetryTaskStore{db: db, repo: repo}, nil
}

func (s *RetryTaskStore) Enqueue(ctx context.Context, task core.RetryTask) (core.RetryTask, error) {
	if s == nil || s.db == nil {
		return core.RetryTask{}, core.NewInternalError("sqlstore: retry task store is not configured")
	}
	reference := strings.TrimSpace(task.Reference)
	if reference == "" {
		return core.RetryTask{}, core.NewMalformedPayloadError("sqlstore: task reference is required")
	}
	kind := strings.TrimSpace(string(task.Kind))
	if kind == "" {
		return core.RetryTask{}, core.NewMalformedPayloadError("sqlstore: task kind is required")
	}

	now := time.Now().UTC()
	record := &paymentRetryTaskRecord{
		ID:          uuid.NewString(),
		Reference:   reference,
		Kind:        kind,
		Payload:     append([]byte(nil), task.Payload...),
		Status:      core.TaskStatusPending,
		Attempts:    0,
		MaxAttempts: task.MaxAttempts,
		LastError:   strings.TrimSpace(task.LastError),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if task.NextAttemptAt != nil {
		next := task.NextAttemptAt.UTC()
		record.NextAttemptAt = &next
	}

	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			existing, getErr := s.findLive(ctx, reference, kind)
			if getErr != nil {
				return core.RetryTask{}, getErr
			}
			return existing, nil
		}
		return core.RetryTask{}, core.NewStoreUnavailableError(err, "sqlstore: insert retry task")
	}
	return retryTaskToDomain(record), nil
}

func (s *RetryTaskStore) ClaimDue(ctx context.Context, limit int, now time.Time) ([]core.RetryTask, error) {
	if s == nil || s.db == nil {
		return nil, core.NewInternalError("sqlstore: retry task store is not configured")
	}
	if limit <= 0 {
		limit = 1
	}
	claimedAt := now.UTC()
	if claimedAt.IsZero() {
		claimedAt = time.Now().UTC()
	}

	var records []paymentRetryTaskRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		query := `
WITH claimed AS (
	SELECT id
	FROM payment_retry_tasks
	WHERE status IN (?, ?)
	  AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
	ORDER BY COALESCE(next_attempt_at, created_at) ASC
	LIMIT ?
)
UPDATE payment_retry_tasks
SET status = ?, attempts = attempts + 1, updated_at = ?
WHERE id IN (SELECT id FROM claimed)
  AND status IN (?, ?)
RETURNING
	id,
	reference,
	kind,
	payload,
	status,
	attempts,
	max_attempts,
	next_attempt_at,
	last_error,
	created_at,
	updated_at
`
		return tx.NewRaw(
			query,
			core.TaskStatusPending,
			core.TaskStatusRetryReady,
			claimedAt,
			limit,
			core.TaskStatusProcessing,
			claimedAt,
			core.TaskStatusPending,
			core.TaskStatusRetryReady,
		).Scan(ctx, &records)
	})
	if err != nil {
		return nil, core.NewStoreUnavailableError(err, "sqlstore: claim due retry tasks")
	}

	tasks := make([]core.RetryTask, 0, len(records))
	for i := range records {
		tasks = append(tasks, retryTaskToDomain(&records[i]))
	}
	return tasks, nil
}

func (s *RetryTaskStore) Complete(ctx context.Context, taskID string) error {
	if s == nil || s.db == nil {
		return core.NewInternalError("sqlstore: retry task store is not configured")
	}
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return core.NewMalformedPayloadError("sqlstore: task id is required")
	}
	_, err := s.db.NewUpdate().
		Model((*paymentRetryTaskRecord)(nil)).
		Set("status = ?", core.TaskStatusProcessed).
		Set("next_attempt_at = NULL").
		Set("last_error = ?", "").
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", taskID).
		Exec(ctx)
	if err != nil {
		return core.NewStoreUnavailableError(err, "sqlstore: complete retry task")
	}
	return nil
}

func (s *RetryTaskStore) Fail(ctx context.Context, taskID string, cause error, nextAttemptAt time.Time) error {
	if s == nil || s.db == nil {
		return core.NewInternalError("sqlstore: retry task store is not configured")
	}
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return core.NewMalformedPayloadError("sqlstore: task id is required")
	}
	status := core.TaskStatusRetryReady
	var next *time.Time
	if nextAttemptAt.IsZero() {
		status = core.TaskStatusDead
	} else {
		value := nextAttemptAt.UTC()
		next = &value
	}
	lastError := ""
	if cause != nil {
		lastError = strings.TrimSpace(cause.Error())
	}
	_, err := s.db.NewUpdate().
		Model((*paymentRetryTaskRecord)(nil)).
		Set("status = ?", status).
		Set("next_attempt_at = ?", next).
		Set("last_error = ?", lastError).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", taskID).
		Exec(ctx)
	if err != nil {
		return core.NewStoreUnavailableError(err, "sqlstore: fail retry task")
	}
	return nil
}

func (s *RetryTaskStore) Get(ctx context.Context, taskID string) (core.RetryTask, error) {
	if s == nil || s.db == nil {
		return core.RetryTask{}, core.NewInternalError("sqlstore: retry task store is not configured")
	}
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return core.RetryTask{}, core.NewMalformedPayloadError("sqlstore: task id is required")
	}
	record := &paymentRetryTaskRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", taskID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.RetryTask{}, core.NewInternalError(fmt.Sprintf("sqlstore: retry task %q not found", taskID))
		}
		return core.RetryTask{}, core.NewStoreUnavailableError(err, "sqlstore: load retry task")
	}
	return retryTaskToDomain(record), nil
}

func (s *RetryTaskStore) ListDead(ctx context.Context, limit int) ([]core.RetryTask, error) {
	if s == nil || s.db == nil {
		return nil, core.NewInternalError("sqlstore: retry task store is not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	var records []paymentRetryTaskRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.status = ?", core.TaskStatusDead).
		Order("updated_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, core.NewStoreUnavailableError(err, "sqlstore: list dead retry tasks")
	}
	tasks := make([]core.RetryTask, 0, len(records))
	for i := range records {
		tasks = append(tasks, retryTaskToDomain(&records[i]))
	}
	return tasks, nil
}

func (s *RetryTaskStore) Requeue(ctx context.Context, taskID string, nextAttemptAt time.Time) error {
	if s == nil || s.db == nil {
		return core.NewInternalError("sqlstore: retry task store is not configured")
	}
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return core.NewMalformedPayloadError("sqlstore: task id is required")
	}
	next := nextAttemptAt.UTC()
	if next.IsZero() {
		next = time.Now().UTC()
	}
	result, err := s.db.NewUpdate().
		Model((*paymentRetryTaskRecord)(nil)).
		Set("status = ?", core.TaskStatusRetryReady).
		Set("attempts = ?", 0).
		Set("next_attempt_at = ?", next).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", taskID).
		Where("status = ?", core.TaskStatusDead).
		Exec(ctx)
	if err != nil {
		return core.NewStoreUnavailableError(err, "sqlstore: requeue retry task")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return core.NewStoreUnavailableError(err, "sqlstore: requeue retry task row count")
	}
	if affected == 0 {
		return core.NewInternalError(fmt.Sprintf("sqlstore: retry task %q is not dead", taskID))
	}
	return nil
}

func (s *RetryTaskStore) findLive(ctx context.Context, reference string, kind string) (core.RetryTask, error) {
	record := &paymentRetryTaskRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.reference = ?", reference).
		Where("?TableAlias.kind = ?", kind).
		Where("?TableAlias.status IN (?, ?, ?)",
			core.TaskStatusPending, core.TaskStatusProcessing, core.TaskStatusRetryReady).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return core.RetryTask{}, core.NewStoreUnavailableError(err, "sqlstore: load live retry task")
	}
	return retryTaskToDomain(record), nil
}

func retryTaskToDomain(record *paymentRetryTaskRecord) core.RetryTask {
	if record == nil {
		return core.RetryTask{}
	}
	task := core.RetryTask{
		ID:          record.ID,
		Reference:   record.Reference,
		Kind:        core.TaskKind(record.Kind),
		Payload:     append([]byte(nil), record.Payload...),
		Status:      record.Status,
		Attempts:    record.Attempts,
		MaxAttempts: record.MaxAttempts,
		LastError:   record.LastError,
		CreatedAt:   record.CreatedAt,
		UpdatedAt:   record.UpdatedAt,
	}
	if record.NextAttemptAt != nil {
		next := *record.NextAttemptAt
		task.NextAttemptAt = &next
	}
	return task
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}

var _ core.RetryTaskStore = (*RetryTaskStore)(nil)
