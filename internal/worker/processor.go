// Package worker plugs the lifecycle manager into the asynq worker loop.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/img10/internal/lifecycle"
	"github.com/dharsanguruparan/img10/internal/queue"
)

// Processor handles scheduled maintenance tasks.
type Processor struct {
	manager *lifecycle.Manager
	log     *zap.Logger
}

// NewProcessor constructs a Processor.
func NewProcessor(manager *lifecycle.Manager, log *zap.Logger) *Processor {
	return &Processor{manager: manager, log: log}
}

// Handler registers the task handlers.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeCleanupExpired, p.handleCleanup)
	return mux
}

func (p *Processor) handleCleanup(ctx context.Context, task *asynq.Task) error {
	var payload queue.CleanupPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	removed, err := p.manager.Cleanup(ctx, time.Now().UTC())
	if err != nil {
		p.log.Error("scheduled cleanup failed", zap.Error(err))
		return err
	}
	p.log.Info("scheduled cleanup finished",
		zap.Int("removed", removed),
		zap.Time("requested_at", payload.RequestedAt))
	return nil
}
