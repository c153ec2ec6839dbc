// Package main is the entrypoint for the maintenance Lambda.
//
// EventBridge rules invoke it with a scheduler.MaintenancePayload. Each run
// takes an hourly lock for its task so that duplicate deliveries do nothing,
// records itself in job_history, and dispatches to the CleanupService.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/google/uuid"

	"contractdesk/internal/config"
	"contractdesk/internal/db"
	"contractdesk/internal/scheduler"
)

// lockTTL covers the Lambda timeout with margin.
const lockTTL = 15 * time.Minute

// CleanupService is the slice of scheduler.CleanupService the handler calls.
type CleanupService interface {
	PurgeDeletedDrafts(ctx context.Context, now time.Time, retention time.Duration) (int, error)
	PurgeExpiredIdempotencyKeys(ctx context.Context, now time.Time) (int, error)
	PurgeRateLimitWindows(ctx context.Context, now time.Time) (int, error)
}

// JobLocker takes a per-task lease.
type JobLocker interface {
	Acquire(ctx context.Context, lockID, workerID string, ttl time.Duration) (bool, error)
}

// JobHistorian records runs.
type JobHistorian interface {
	Start(ctx context.Context, jobType string) (int64, error)
	Finish(ctx context.Context, id int64, status string, items int, err error) error
}

// Handler holds the dependencies of the maintenance Lambda.
type Handler struct {
	Cleanup    CleanupService
	JobLock    JobLocker
	JobHistory JobHistorian
	WorkerID   string
	Logger     *slog.Logger
}

// Handle runs the task named by payload.
func (h *Handler) Handle(ctx context.Context, payload scheduler.MaintenancePayload) (string, error) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if payload.Task == "" {
		return "", fmt.Errorf("empty task type in maintenance payload")
	}

	now := time.Now().UTC()
	if payload.ReferenceTime != nil {
		now = payload.ReferenceTime.UTC()
	}
	task := string(payload.Task)
	logger = logger.With("task", task, "worker_id", h.WorkerID)
	logger.InfoContext(ctx, "maintenance task invoked", "reference_time", now.Format(time.RFC3339))

	lockID := fmt.Sprintf("%s:%s", task, now.Truncate(time.Hour).Format("2006-01-02T15"))
	acquired, err := h.JobLock.Acquire(ctx, lockID, h.WorkerID, lockTTL)
	if err != nil {
		return "", fmt.Errorf("acquiring job lock %s: %w", lockID, err)
	}
	if !acquired {
		logger.InfoContext(ctx, "job lock held by another worker", "lock_id", lockID)
		return fmt.Sprintf("skipped: lock %s held by another worker", lockID), nil
	}

	// History is best effort; a zero ID skips Finish.
	jobID, err := h.JobHistory.Start(ctx, task)
	if err != nil {
		logger.ErrorContext(ctx, "failed to start job history", "error", err)
		jobID = 0
	}

	items, execErr := h.dispatch(ctx, payload.Task, now)

	if jobID != 0 {
		status := "success"
		if execErr != nil {
			status = "failed"
		}
		if err := h.JobHistory.Finish(ctx, jobID, status, items, execErr); err != nil {
			logger.ErrorContext(ctx, "failed to finish job history", "job_id", jobID, "error", err)
		}
	}

	if execErr != nil {
		logger.ErrorContext(ctx, "maintenance task failed", "error", execErr, "items_before_error", items)
		return "", fmt.Errorf("task %s failed: %w", task, execErr)
	}

	logger.InfoContext(ctx, "maintenance task complete", "items", items)
	return fmt.Sprintf("task %s complete: %d items processed", task, items), nil
}

func (h *Handler) dispatch(ctx context.Context, task scheduler.TaskType, now time.Time) (int, error) {
	switch task {
	case scheduler.TaskPurgeDeletedDrafts:
		return h.Cleanup.PurgeDeletedDrafts(ctx, now, scheduler.DeletedDraftRetention)
	case scheduler.TaskCleanupIdempotencyKeys:
		return h.Cleanup.PurgeExpiredIdempotencyKeys(ctx, now)
	case scheduler.TaskCleanupRateLimits:
		return h.Cleanup.PurgeRateLimitWindows(ctx, now)
	default:
		return 0, fmt.Errorf("unknown task type: %q", task)
	}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig(config.NewFileSecretProvider())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))

	pool, err := db.NewPool(context.Background(), cfg.Database)
	if err != nil {
		return err
	}

	workerID := uuid.NewString()
	handler := &Handler{
		Cleanup: scheduler.NewCleanupService(
			db.NewDraftRepository(pool),
			db.NewIdempotencyRepository(pool, cfg.Server.IdempotencyTTL),
			db.NewRateLimitRepository(pool),
			logger,
		),
		JobLock:    db.NewJobLockRepository(pool),
		JobHistory: db.NewJobHistoryRepository(pool),
		WorkerID:   workerID,
		Logger:     logger,
	}

	logger.Info("maintenance Lambda initialized", "worker_id", workerID)
	lambda.Start(handler.Handle)
	return nil
}
