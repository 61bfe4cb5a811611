package repository

import (
	"context"
	"errors"
	"time"

	"episode_transcode_service/internal/transcode/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type episodeGormRepo struct {
	db  *gorm.DB
	now func() time.Time
}

// NewEpisodeGormRepo create postgres episode repo
func NewEpisodeGormRepo(db *gorm.DB) EpisodeRepo {
	return &episodeGormRepo{db: db, now: time.Now}
}

// MigrateEpisode 建立 episodes 資料表
func MigrateEpisode(db *gorm.DB) error {
	return db.AutoMigrate(&domain.Episode{})
}

func (r *episodeGormRepo) NextID() string {
	return uuid.NewString()
}

func (r *episodeGormRepo) Create(ctx context.Context, ep *domain.Episode) error {
	if ep.Variants == nil {
		ep.Variants = []string{}
	}
	return r.db.WithContext(ctx).Create(ep).Error
}

func (r *episodeGormRepo) FindByID(ctx context.Context, id string) (*domain.Episode, error) {
	return r.first(r.db.WithContext(ctx), id)
}

func (r *episodeGormRepo) UpdateByID(ctx context.Context, id string, update domain.StatusUpdate) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ep, err := r.first(tx.Clauses(clause.Locking{Strength: "UPDATE"}), id)
		if err != nil {
			return err
		}
		ep.Apply(update)
		ep.UpdatedAt = r.now()
		return tx.Save(ep).Error
	})
}

func (r *episodeGormRepo) Claim(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.Episode{}).
		Where("id = ? AND status = ?", id, domain.JobQueued).
		Updates(map[string]interface{}{
			"status":     domain.JobProcessing,
			"updated_at": r.now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *episodeGormRepo) Requeue(ctx context.Context, id string, force bool) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ep, err := r.first(tx.Clauses(clause.Locking{Strength: "UPDATE"}), id)
		if err != nil {
			return err
		}
		if ep.Status == domain.JobProcessing && !force {
			return domain.ErrJobProcessing
		}
		ep.Apply(domain.StatusUpdate{Status: domain.JobQueued})
		ep.UpdatedAt = r.now()
		return tx.Save(ep).Error
	})
}

func (r *episodeGormRepo) FindByStatus(ctx context.Context, status domain.JobStatus, limit int) ([]domain.Episode, error) {
	episodes := []domain.Episode{}
	q := r.db.WithContext(ctx).Where("status = ?", status).Order("created_at asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return episodes, q.Find(&episodes).Error
}

func (r *episodeGormRepo) List(ctx context.Context, limit int) ([]domain.Episode, error) {
	episodes := []domain.Episode{}
	q := r.db.WithContext(ctx).Order("created_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return episodes, q.Find(&episodes).Error
}

func (r *episodeGormRepo) UpdateLinkage(ctx context.Context, id string, linkage domain.Linkage) (*domain.Episode, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.Episode{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"anime_slug":     linkage.AnimeSlug,
			"episode_number": linkage.EpisodeNumber,
			"updated_at":     r.now(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, &domain.NotFoundError{ID: id}
	}
	return r.FindByID(ctx, id)
}

func (r *episodeGormRepo) first(db *gorm.DB, id string) (*domain.Episode, error) {
	var ep domain.Episode
	err := db.Where("id = ?", id).First(&ep).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &domain.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, err
	}
	return &ep, nil
}
