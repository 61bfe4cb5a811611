package app

import (
	"context"
	"encoding/json"
	"errors"

	"episode_transcode_service/internal/transcode/domain"
	"episode_transcode_service/pkg/logger"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaReader kafka.Reader 的子集合
type KafkaReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// EventListener queue 模式下由 worker 回報狀態，api 透過 kafka 事件轉給 websocket hub
type EventListener struct {
	reader KafkaReader
	hub    *StatusHub
}

// NewEventListener create listener
func NewEventListener(reader KafkaReader, hub *StatusHub) *EventListener {
	return &EventListener{reader: reader, hub: hub}
}

// Listen 持續讀取直到 ctx 取消
func (l *EventListener) Listen(ctx context.Context) error {
	defer l.reader.Close()
	for {
		msg, err := l.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		var event domain.StatusEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logger.Log.Warn("skip malformed status event",
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
			continue
		}
		l.hub.Publish(event)
	}
}
