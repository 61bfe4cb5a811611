package repository

import (
	"context"

	"episode_transcode_service/internal/transcode/domain"
)

// JobStatusStore 轉碼流程只需要依 id 讀取與部分更新
type JobStatusStore interface {
	FindByID(ctx context.Context, id string) (*domain.Episode, error)
	UpdateByID(ctx context.Context, id string, update domain.StatusUpdate) error
}

// EpisodeRepo definition episode record operations
type EpisodeRepo interface {
	JobStatusStore

	// NextID 產生新記錄的 id
	NextID() string
	Create(ctx context.Context, ep *domain.Episode) error
	// Claim compare-and-swap queued → processing，成功才可開始轉碼
	Claim(ctx context.Context, id string) (bool, error)
	// Requeue 將非 processing 的記錄重設為 queued，force 時不檢查
	Requeue(ctx context.Context, id string, force bool) error
	FindByStatus(ctx context.Context, status domain.JobStatus, limit int) ([]domain.Episode, error)
	List(ctx context.Context, limit int) ([]domain.Episode, error)
	UpdateLinkage(ctx context.Context, id string, linkage domain.Linkage) (*domain.Episode, error)
}
