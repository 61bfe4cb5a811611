package repository

import (
	"context"
	"fmt"
	"time"

	"episode_transcode_service/internal/transcode/domain"
	"episode_transcode_service/pkg/database"
)

const defaultStatusTTL = 24 * time.Hour

// StatusCache 以 redis 保存每個 episode 最近一次的狀態，給播放端輪詢用
type StatusCache struct {
	repo database.RedisRepository[domain.StatusUpdate]
	ttl  time.Duration
}

// NewStatusCache create status cache, ttl <= 0 使用預設 24h
func NewStatusCache(repo database.RedisRepository[domain.StatusUpdate], ttl time.Duration) *StatusCache {
	if ttl <= 0 {
		ttl = defaultStatusTTL
	}
	return &StatusCache{repo: repo, ttl: ttl}
}

func statusKey(id string) string {
	return fmt.Sprintf("episode:status:%s", id)
}

// Report 寫入最新狀態
func (c *StatusCache) Report(ctx context.Context, jobID string, update domain.StatusUpdate) error {
	return c.repo.Set(ctx, statusKey(jobID), update, c.ttl)
}

// Get 取出快取狀態，不存在時回傳 database.ErrCacheMiss
func (c *StatusCache) Get(ctx context.Context, jobID string) (domain.StatusUpdate, error) {
	return c.repo.Get(ctx, statusKey(jobID))
}

// Invalidate 刪除快取
func (c *StatusCache) Invalidate(ctx context.Context, jobID string) error {
	return c.repo.Del(ctx, statusKey(jobID))
}
