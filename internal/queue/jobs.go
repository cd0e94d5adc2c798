// Package queue defines the asynq tasks shared by the scheduler and worker.
package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// TypeCleanupExpired triggers one cleanup pass over expired images.
	TypeCleanupExpired = "image:cleanup"
)

// CleanupPayload records when the pass was requested; the worker evaluates
// expiry against its own clock, not this timestamp.
type CleanupPayload struct {
	RequestedAt time.Time `json:"requested_at"`
}

// NewCleanupTask builds the cleanup task.
func NewCleanupTask() (*asynq.Task, error) {
	data, err := json.Marshal(CleanupPayload{RequestedAt: time.Now().UTC()})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(TypeCleanupExpired, data), nil
}
