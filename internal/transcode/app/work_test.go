package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"episode_transcode_service/internal/transcode/domain"
	"episode_transcode_service/pkg/logger"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDeliverySource 以 channel 模擬 RabbitMQ
type fakeDeliverySource struct {
	deliveries chan amqp.Delivery
	prefetch   int
	consumeErr error
}

func (s *fakeDeliverySource) Qos(prefetchCount, _ int, _ bool) error {
	s.prefetch = prefetchCount
	return nil
}

func (s *fakeDeliverySource) Consume(string, string, bool, bool, bool, bool, amqp.Table) (<-chan amqp.Delivery, error) {
	return s.deliveries, s.consumeErr
}

func delivery(ack amqp.Acknowledger, tag uint64, body string) amqp.Delivery {
	return amqp.Delivery{Acknowledger: ack, DeliveryTag: tag, Body: []byte(body)}
}

func TestConsumer(t *testing.T) {
	logger.SetNewNop()

	ack := &fakeAcknowledger{}
	var mu sync.Mutex
	var handled []domain.JobRequest
	handler := handlerFunc(func(_ context.Context, req domain.JobRequest) error {
		mu.Lock()
		handled = append(handled, req)
		mu.Unlock()
		switch req.JobID {
		case "failed":
			return &domain.EncodeProcessError{ExitCode: 1}
		case "claimed":
			return domain.ErrAlreadyClaimed
		case "db-down":
			return &domain.PersistenceError{Op: claimOp, Target: req.JobID, Err: errors.New("db down")}
		}
		return nil
	})

	src := &fakeDeliverySource{deliveries: make(chan amqp.Delivery, 8)}
	src.deliveries <- delivery(ack, 1, `{"episodeId":"abc123","sourcePath":"/s.mp4","outputDir":"/o"}`)
	src.deliveries <- delivery(ack, 2, `not json`)
	src.deliveries <- delivery(ack, 3, `{"sourcePath":"/s.mp4"}`)
	src.deliveries <- delivery(ack, 4, `{"episodeId":"failed"}`)
	src.deliveries <- delivery(ack, 5, `{"episodeId":"claimed"}`)
	src.deliveries <- delivery(ack, 6, `{"episodeId":"db-down"}`)
	close(src.deliveries)

	err := NewConsumer(src, handler, "", 3).StartConsumer(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, src.prefetch)
	assert.ElementsMatch(t, []uint64{1, 4, 5}, ack.acks)
	assert.ElementsMatch(t, []uint64{2, 3}, ack.rejects)
	assert.Equal(t, []uint64{6}, ack.nacks)
	assert.Len(t, handled, 4)
	assert.Contains(t, handled, domain.JobRequest{JobID: "abc123", SourcePath: "/s.mp4", OutputDir: "/o"})
}

func TestConsumerRequeueFlags(t *testing.T) {
	logger.SetNewNop()
	ack := &fakeAcknowledger{}
	c := NewConsumer(&fakeDeliverySource{}, handlerFunc(func(_ context.Context, req domain.JobRequest) error {
		return &domain.PersistenceError{Op: claimOp, Err: errors.New("db down")}
	}), "", 1)

	c.handleMessage(context.Background(), delivery(ack, 1, `bad`))
	c.handleMessage(context.Background(), delivery(ack, 2, `{"episodeId":"x"}`))

	// reject 不放回 queue，claim 失敗放回
	assert.Equal(t, []bool{false, true}, ack.requeue)
}

func TestConsumerClaimFailedOnShutdownRequeues(t *testing.T) {
	logger.SetNewNop()
	ack := &fakeAcknowledger{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// shutdown 時 claim 因 ctx 取消而失敗，job 沒開始，訊息必須放回 queue
	c := NewConsumer(&fakeDeliverySource{}, handlerFunc(func(_ context.Context, req domain.JobRequest) error {
		cancel()
		return &domain.PersistenceError{Op: claimOp, Target: req.JobID, Err: context.Canceled}
	}), "", 1)

	c.handleMessage(ctx, delivery(ack, 7, `{"episodeId":"abc123"}`))

	assert.Empty(t, ack.acks)
	assert.Empty(t, ack.rejects)
	assert.Equal(t, []uint64{7}, ack.nacks)
	assert.Equal(t, []bool{true}, ack.requeue)
}

func TestConsumerStopsOnCancel(t *testing.T) {
	logger.SetNewNop()
	src := &fakeDeliverySource{deliveries: make(chan amqp.Delivery)}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- NewConsumer(src, handlerFunc(func(context.Context, domain.JobRequest) error { return nil }), "", 2).StartConsumer(ctx)
	}()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestConsumerConsumeError(t *testing.T) {
	src := &fakeDeliverySource{consumeErr: errors.New("no queue")}
	err := NewConsumer(src, handlerFunc(func(context.Context, domain.JobRequest) error { return nil }), "", 1).StartConsumer(context.Background())
	assert.ErrorContains(t, err, "no queue")
}
