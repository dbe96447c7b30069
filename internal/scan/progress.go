package scan

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProgressEvent is a progress update during a scan.
type ProgressEvent struct {
	ScanJobID uuid.UUID `json:"scan_job_id"`
	Step      string    `json:"step"`
	Progress  int       `json:"progress_percentage"`
}

// ProgressCallback is called when scan progress advances.
type ProgressCallback func(event ProgressEvent)

// Scan steps reported in current_step.
const (
	StepCrawling   = "crawling"
	StepValidating = "validating"
	StepFinalizing = "finalizing"
)

// tracker writes job progress and never lets it go backwards.
type tracker struct {
	store  Store
	jobID  uuid.UUID
	last   int
	notify ProgressCallback
	logger *zap.Logger
}

// advance records progress if it is above the last value written. Write failures are
// logged; progress is advisory and must not fail the scan.
func (t *tracker) advance(ctx context.Context, progress int, step string) {
	if progress <= t.last {
		return
	}
	t.last = progress
	if err := t.store.UpdateScanProgress(ctx, t.jobID, progress, step); err != nil {
		t.logger.Warn("failed to update scan progress", zap.Int("progress", progress), zap.Error(err))
	}
	if t.notify != nil {
		t.notify(ProgressEvent{ScanJobID: t.jobID, Step: step, Progress: progress})
	}
}
