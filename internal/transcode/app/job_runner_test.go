package app

import (
	"context"
	"errors"
	"testing"

	"episode_transcode_service/internal/transcode/domain"
	"episode_transcode_service/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestJobRunner(t *testing.T) {
	logger.SetNewNop()
	req := domain.JobRequest{JobID: "abc123", SourcePath: "ep1.mp4"}

	t.Run("claim 成功後執行", func(t *testing.T) {
		req := req
		req.OutputDir = t.TempDir()
		repo := new(MockEpisodeRepo)
		repo.On("Claim", mock.Anything, "abc123").Return(true, nil).Once()
		runner := &fakeRunner{}
		reporter := &recordingReporter{}

		err := NewJobRunner(newTestOrchestrator(runner, nil), repo, reporter).Run(context.Background(), req)

		assert.NoError(t, err)
		assert.Len(t, runner.Calls(), 3)
		assert.Equal(t, []domain.JobStatus{domain.JobProcessing, domain.JobReady}, reporter.Statuses())
		repo.AssertExpectations(t)
	})

	t.Run("已被取得時略過", func(t *testing.T) {
		repo := new(MockEpisodeRepo)
		repo.On("Claim", mock.Anything, "abc123").Return(false, nil).Once()
		runner := &fakeRunner{}
		reporter := &recordingReporter{}

		err := NewJobRunner(newTestOrchestrator(runner, nil), repo, reporter).Run(context.Background(), req)

		assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)
		assert.Empty(t, runner.Calls())
		assert.Empty(t, reporter.Calls())
	})

	t.Run("claim 錯誤回傳 PersistenceError", func(t *testing.T) {
		repo := new(MockEpisodeRepo)
		repo.On("Claim", mock.Anything, "abc123").Return(false, errors.New("db down")).Once()

		err := NewJobRunner(newTestOrchestrator(&fakeRunner{}, nil), repo, &recordingReporter{}).Run(context.Background(), req)

		var pErr *domain.PersistenceError
		assert.ErrorAs(t, err, &pErr)
		assert.True(t, isClaimError(err))
	})
}
