package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"episode_transcode_service/internal/transcode/domain"
	"episode_transcode_service/pkg/logger"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

// DeliverySource *amqp.Channel 的子集合
type DeliverySource interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

// Consumer 定義一個消息消費者，將所有必要的依賴注入進來
type Consumer struct {
	channel     DeliverySource
	handler     JobHandler
	queueName   string
	concurrency int
}

// NewConsumer 建構 Consumer 實例
func NewConsumer(channel DeliverySource, handler JobHandler, queueName string, concurrency int) *Consumer {
	if queueName == "" {
		queueName = domain.QueueName
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Consumer{
		channel:     channel,
		handler:     handler,
		queueName:   queueName,
		concurrency: concurrency,
	}
}

// StartConsumer 開始消費訊息，直到 ctx 取消或 channel 關閉
func (c *Consumer) StartConsumer(ctx context.Context) error {
	// prefetch 與 worker 數一致，未 ack 的訊息不會超過同時轉碼數
	if err := c.channel.Qos(c.concurrency, 0, false); err != nil {
		return fmt.Errorf("set rabbitmq qos: %w", err)
	}

	msgs, err := c.channel.Consume(
		c.queueName, // queue
		"",          // consumer tag，留空由系統分配
		false,       // autoAck 為 false，使用手動確認
		false,       // exclusive
		false,       // noLocal
		false,       // noWait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("無法開始消費 RabbitMQ 訊息: %w", err)
	}

	logger.Log.Info("Consumer 已啟動，等待轉碼工作訊息...",
		zap.String("queue", c.queueName),
		zap.Int("concurrency", c.concurrency),
	)

	var wg sync.WaitGroup
	for i := 0; i < c.concurrency; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-msgs:
					if !ok {
						logger.Log.Warn("RabbitMQ delivery channel closed", zap.Int("worker", worker))
						return
					}
					c.handleMessage(ctx, msg)
				}
			}
		}(i)
	}
	wg.Wait()
	return nil
}

func (c *Consumer) handleMessage(ctx context.Context, msg amqp.Delivery) {
	var job domain.TranscodeMessage
	if err := json.Unmarshal(msg.Body, &job); err != nil || job.EpisodeID == "" {
		logger.Log.Error("無法解析轉碼訊息，丟棄",
			zap.String("messageId", msg.MessageId),
			zap.ByteString("body", msg.Body),
			zap.Error(err),
		)
		_ = msg.Reject(false)
		return
	}

	log := logger.Log.Zap().With(zap.String("jobId", job.EpisodeID))
	err := c.handler.Run(ctx, job.Request())
	switch {
	case err == nil:
		log.Info("轉碼完成")
	case errors.Is(err, domain.ErrAlreadyClaimed):
		log.Info("job 已被處理，略過")
	case isClaimError(err):
		// 還沒開始轉碼 (含 shutdown 時 ctx 已取消)，放回 queue 讓其他 worker 重試
		log.Warn("claim job failed, requeue", zap.Error(err))
		if err := msg.Nack(false, true); err != nil {
			log.Error("nack failed", zap.Error(err))
		}
		return
	default:
		// 失敗狀態已由 reporter 寫入，不自動重試
		log.Warn("轉碼失敗", zap.Error(err))
	}

	if err := msg.Ack(false); err != nil {
		log.Error("ack failed", zap.Error(err))
	}
}

func isClaimError(err error) bool {
	var pe *domain.PersistenceError
	return errors.As(err, &pe) && pe.Op == claimOp
}
