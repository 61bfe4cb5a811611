package app

import (
	"context"

	"episode_transcode_service/internal/transcode/domain"
	"episode_transcode_service/pkg/logger"

	"go.uber.org/zap"
)

const claimOp = "claim"

// JobClaimer compare-and-swap queued → processing
type JobClaimer interface {
	Claim(ctx context.Context, id string) (bool, error)
}

// JobHandler 執行單一 job，pool 與 queue consumer 共用
type JobHandler interface {
	Run(ctx context.Context, req domain.JobRequest) error
}

// JobRunner 取得 job 所有權後才交給 orchestrator，避免同一 id 同時被兩個執行者轉碼
type JobRunner struct {
	orchestrator *Orchestrator
	claimer      JobClaimer
	reporter     StatusReporter
}

// NewJobRunner create job runner
func NewJobRunner(orchestrator *Orchestrator, claimer JobClaimer, reporter StatusReporter) *JobRunner {
	return &JobRunner{
		orchestrator: orchestrator,
		claimer:      claimer,
		reporter:     reporter,
	}
}

// Run claim then orchestrate
func (r *JobRunner) Run(ctx context.Context, req domain.JobRequest) error {
	ok, err := r.claimer.Claim(ctx, req.JobID)
	if err != nil {
		return &domain.PersistenceError{Op: claimOp, Target: req.JobID, Err: err}
	}
	if !ok {
		logger.Log.Warn("job not claimable, skip", zap.String("jobId", req.JobID))
		return domain.ErrAlreadyClaimed
	}
	return r.orchestrator.RunJob(ctx, req, r.reporter)
}
