package app

import (
	"context"
	"time"

	"episode_transcode_service/pkg/logger"

	"go.uber.org/zap"
)

// QueuedRecoverer 重新派送 queued 記錄
type QueuedRecoverer interface {
	RecoverQueued(ctx context.Context) (int, error)
}

// RunRecoveryLoop 每隔 interval 補送派送失敗而停在 queued 的記錄，ctx 結束時返回
// interval <= 0 時不啟動
func RunRecoveryLoop(ctx context.Context, r QueuedRecoverer, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.RecoverQueued(ctx)
			if err != nil {
				logger.Log.Warn("periodic recovery failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Log.Info("recovered queued episodes", zap.Int("count", n))
			}
		}
	}
}
