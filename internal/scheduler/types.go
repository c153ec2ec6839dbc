// Package scheduler implements the scheduled maintenance of the plan draft
// store. EventBridge rules invoke the maintenance Lambda with a
// MaintenancePayload naming one task.
package scheduler

import "time"

// TaskType identifies the maintenance task to run.
type TaskType string

const (
	TaskPurgeDeletedDrafts     TaskType = "purge_deleted_drafts"
	TaskCleanupIdempotencyKeys TaskType = "cleanup_idempotency_keys"
	TaskCleanupRateLimits      TaskType = "cleanup_rate_limits"
)

// MaintenancePayload is the event EventBridge sends:
//
//	{
//	  "task": "purge_deleted_drafts",
//	  "reference_time": "2026-02-06T03:00:00Z"  // optional
//	}
type MaintenancePayload struct {
	Task TaskType `json:"task"`
	// ReferenceTime replaces "now" for manual runs and backfills.
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
}
