package app

import (
	"context"
	"encoding/json"
	"fmt"

	"episode_transcode_service/internal/transcode/domain"
	"episode_transcode_service/pkg/database"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
)

// QueuePublisher 將轉碼 job 發佈到 RabbitMQ，由 transcode_worker 處理
type QueuePublisher struct {
	rabbit    database.RabbitRepo
	queueName string
}

// NewQueuePublisher create publisher
func NewQueuePublisher(rabbit database.RabbitRepo, queueName string) *QueuePublisher {
	if queueName == "" {
		queueName = domain.QueueName
	}
	return &QueuePublisher{rabbit: rabbit, queueName: queueName}
}

// Dispatch implement Dispatcher
func (p *QueuePublisher) Dispatch(_ context.Context, req domain.JobRequest) error {
	body, err := json.Marshal(domain.NewTranscodeMessage(req))
	if err != nil {
		return fmt.Errorf("marshal transcode message: %w", err)
	}

	err = p.rabbit.Publish(
		"",          // exchange
		p.queueName, // routing key
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    uuid.NewString(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish transcode message: %w", err)
	}
	return nil
}
