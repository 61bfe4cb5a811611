package app

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"episode_transcode_service/internal/transcode/domain"
	"episode_transcode_service/pkg/logger"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan domain.StatusEvent) domain.StatusEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
		return domain.StatusEvent{}
	}
}

func TestStatusHub(t *testing.T) {
	hub := NewStatusHub()

	events, unsubscribe := hub.Subscribe("abc123")
	other, unsubscribeOther := hub.Subscribe("other")
	defer unsubscribeOther()
	assert.Equal(t, 1, hub.Subscribers("abc123"))

	require.NoError(t, hub.Report(context.Background(), "abc123", domain.ProcessingUpdate()))

	ev := receive(t, events)
	assert.Equal(t, "abc123", ev.EpisodeID)
	assert.Equal(t, domain.JobProcessing, ev.Update.Status)
	assert.Empty(t, other)

	unsubscribe()
	unsubscribe()
	assert.Equal(t, 0, hub.Subscribers("abc123"))
	_, open := <-events
	assert.False(t, open)

	// 沒有訂閱者時不會阻塞
	hub.Publish(domain.StatusEvent{EpisodeID: "abc123"})
}

func TestStatusHubSlowSubscriber(t *testing.T) {
	hub := NewStatusHub()
	events, unsubscribe := hub.Subscribe("abc123")
	defer unsubscribe()

	for i := 0; i < subscriberBuffer*2; i++ {
		hub.Publish(domain.StatusEvent{EpisodeID: "abc123"})
	}
	assert.Len(t, events, subscriberBuffer)
}

// fakeKafkaReader 依序回傳訊息，讀完後等待 ctx 取消
type fakeKafkaReader struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (r *fakeKafkaReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		return m, nil
	}
	if r.err != nil {
		return kafka.Message{}, r.err
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeKafkaReader) Close() error {
	r.closed = true
	return nil
}

func TestEventListener(t *testing.T) {
	logger.SetNewNop()

	t.Run("轉發事件給 hub，略過格式錯誤", func(t *testing.T) {
		body, _ := json.Marshal(domain.StatusEvent{EventID: "e1", EpisodeID: "abc123", Update: domain.ProcessingUpdate()})
		reader := &fakeKafkaReader{msgs: []kafka.Message{{Value: []byte("{bad")}, {Value: body}}}
		hub := NewStatusHub()
		events, unsubscribe := hub.Subscribe("abc123")
		defer unsubscribe()

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- NewEventListener(reader, hub).Listen(ctx) }()

		ev := receive(t, events)
		assert.Equal(t, "e1", ev.EventID)

		cancel()
		assert.NoError(t, <-done)
		assert.True(t, reader.closed)
	})

	t.Run("讀取錯誤回傳", func(t *testing.T) {
		reader := &fakeKafkaReader{err: errors.New("broker gone")}
		err := NewEventListener(reader, NewStatusHub()).Listen(context.Background())
		assert.EqualError(t, err, "broker gone")
	})
}
