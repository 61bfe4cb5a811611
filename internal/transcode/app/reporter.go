package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"episode_transcode_service/internal/transcode/domain"
	"episode_transcode_service/internal/transcode/repository"
	"episode_transcode_service/pkg/logger"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// StoreReporter 將狀態寫回 job status store，失敗時以指數退避重試
type StoreReporter struct {
	store      repository.JobStatusStore
	retries    uint64
	newBackOff func() backoff.BackOff
}

// NewStoreReporter retries <= 0 時不重試
func NewStoreReporter(store repository.JobStatusStore, retries int) *StoreReporter {
	if retries < 0 {
		retries = 0
	}
	return &StoreReporter{
		store:   store,
		retries: uint64(retries),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			return b
		},
	}
}

// Report write status to store
func (r *StoreReporter) Report(ctx context.Context, jobID string, update domain.StatusUpdate) error {
	b := backoff.WithContext(backoff.WithMaxRetries(r.newBackOff(), r.retries), ctx)

	err := backoff.RetryNotify(func() error {
		err := r.store.UpdateByID(ctx, jobID, update)
		if domain.IsNotFound(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, next time.Duration) {
		logger.Log.Warn("update job status failed, retrying...",
			zap.String("jobId", jobID),
			zap.String("status", string(update.Status)),
			zap.Duration("next", next),
			zap.Error(err),
		)
	})
	if err != nil {
		return &domain.PersistenceError{Op: "update status", Target: jobID, Err: err}
	}
	return nil
}

// FanoutReporter 先寫 primary (store)，再通知其他 reporter
// 只有 primary 的錯誤會回傳，其餘記錄 log
type FanoutReporter struct {
	primary   StatusReporter
	followers []StatusReporter
}

// NewFanoutReporter nil follower 會被忽略
func NewFanoutReporter(primary StatusReporter, followers ...StatusReporter) *FanoutReporter {
	f := &FanoutReporter{primary: primary}
	for _, r := range followers {
		if r != nil {
			f.followers = append(f.followers, r)
		}
	}
	return f
}

// Report fan out the update
func (f *FanoutReporter) Report(ctx context.Context, jobID string, update domain.StatusUpdate) error {
	err := f.primary.Report(ctx, jobID, update)

	var followerErr error
	for _, r := range f.followers {
		followerErr = multierr.Append(followerErr, r.Report(ctx, jobID, update))
	}
	if followerErr != nil {
		logger.Log.Warn("status follower report failed",
			zap.String("jobId", jobID),
			zap.Errors("errors", multierr.Errors(followerErr)),
		)
	}
	return err
}

// KafkaWriter kafka.Writer 的子集合
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// EventReporter 將狀態變更發佈為 kafka 事件，key 為 episode id 以保持同一 job 的順序
type EventReporter struct {
	writer KafkaWriter
	now    func() time.Time
}

// NewEventReporter create kafka event reporter
func NewEventReporter(writer KafkaWriter) *EventReporter {
	return &EventReporter{writer: writer, now: time.Now}
}

// Report publish status event
func (r *EventReporter) Report(ctx context.Context, jobID string, update domain.StatusUpdate) error {
	event := domain.StatusEvent{
		EventID:   uuid.NewString(),
		EpisodeID: jobID,
		Update:    update,
		At:        r.now().UTC(),
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal status event: %w", err)
	}
	return r.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(jobID),
		Value: body,
		Headers: []kafka.Header{
			{Key: "status", Value: []byte(update.Status)},
		},
	})
}
