package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"episode_transcode_service/internal/transcode/domain"
	"episode_transcode_service/internal/transcode/repository"
	errprocess "episode_transcode_service/pkg/err"
	"episode_transcode_service/pkg/logger"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// ErrValidation 請求欄位不合法
var ErrValidation = errors.New("validation failed")

// 包裝檔案操作，測試時可替換
var (
	createFile = os.Create
	copyFile   = io.Copy
	nowFunc    = time.Now
)

// TranscodeUseCase definition episode transcode operations
type TranscodeUseCase interface {
	SubmitEpisode(ctx context.Context, req domain.SubmitEpisodeReq) (*domain.SubmitEpisodeRes, error)
	GetEpisode(ctx context.Context, id string) (*domain.Episode, error)
	GetStatus(ctx context.Context, id string) (*domain.StatusUpdate, error)
	RequeueEpisode(ctx context.Context, id string, force bool) error
	ListEpisodes(ctx context.Context, limit int) ([]domain.Episode, error)
	UpdateLinkage(ctx context.Context, id string, req domain.UpdateLinkageReq) (*domain.Episode, error)
	RecoverQueued(ctx context.Context) (int, error)
}

// StatusLookup 快取的最新狀態
type StatusLookup interface {
	Get(ctx context.Context, jobID string) (domain.StatusUpdate, error)
	Invalidate(ctx context.Context, jobID string) error
}

// inFlightChecker 由本機 pool 實作，queue publisher 不需要
type inFlightChecker interface {
	IsInFlight(jobID string) bool
}

// UseCaseConfig use case dependencies
type UseCaseConfig struct {
	Repo       repository.EpisodeRepo
	Dispatcher Dispatcher
	// Cache 可為 nil
	Cache     StatusLookup
	MediaRoot string
	Validate  *validator.Validate
}

type transcodeUseCase struct {
	repo       repository.EpisodeRepo
	dispatcher Dispatcher
	cache      StatusLookup
	mediaRoot  string
	validate   *validator.Validate
}

// NewTranscodeUseCase create use case
func NewTranscodeUseCase(cfg UseCaseConfig) TranscodeUseCase {
	v := cfg.Validate
	if v == nil {
		v = validator.New()
	}
	return &transcodeUseCase{
		repo:       cfg.Repo,
		dispatcher: cfg.Dispatcher,
		cache:      cfg.Cache,
		mediaRoot:  cfg.MediaRoot,
		validate:   v,
	}
}

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// safeFileName <base>-<unix ms><ext>，base 只保留安全字元
func safeFileName(original string, now time.Time) string {
	name := filepath.Base(original)
	ext := strings.ToLower(filepath.Ext(name))
	base := strings.ToLower(strings.TrimSuffix(name, filepath.Ext(name)))
	base = unsafeFileChars.ReplaceAllString(base, "_")
	return fmt.Sprintf("%s-%d%s", base, now.UnixMilli(), ext)
}

// SubmitEpisode 保存上傳檔案、建立 queued 記錄並派送轉碼
func (uc *transcodeUseCase) SubmitEpisode(ctx context.Context, req domain.SubmitEpisodeReq) (*domain.SubmitEpisodeRes, error) {
	if err := uc.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	fileName := safeFileName(req.FileName, nowFunc())
	episodeDir := filepath.Join(uc.mediaRoot, "episodes")
	if err := createDir(episodeDir); err != nil {
		return nil, errprocess.Wrap(fmt.Sprintf("fileName[%s] 建立上傳目錄失敗", fileName), err)
	}

	sourcePath := filepath.Join(episodeDir, fileName)
	size, err := uc.saveFile(sourcePath, req.File)
	if err != nil {
		return nil, errprocess.Wrap(fmt.Sprintf("fileName[%s] 保存上傳檔案失敗", fileName), err)
	}

	id := uc.repo.NextID()
	ep := &domain.Episode{
		ID:         id,
		SourcePath: sourcePath,
		PublicPath: path.Join("/cdn/episodes", fileName),
		OutputDir:  filepath.Join(uc.mediaRoot, "hls", id),
		Status:     domain.JobQueued,
		Variants:   []string{},
		Linkage:    domain.Linkage{AnimeSlug: req.AnimeSlug, EpisodeNumber: req.EpisodeNumber},
		CreatedBy:  req.CreatedBy,
		CreatedAt:  nowFunc(),
	}
	if err := uc.repo.Create(ctx, ep); err != nil {
		return nil, errprocess.Wrap(fmt.Sprintf("episode[%s] 建立記錄失敗", id), err)
	}

	// 記錄已建立且為 queued，派送失敗時回報給呼叫端，記錄留給 recovery 補送
	if err := uc.dispatcher.Dispatch(ctx, ep.Request()); err != nil {
		return nil, errprocess.Wrap(fmt.Sprintf("episode[%s] 派送轉碼失敗", id), err)
	}

	return &domain.SubmitEpisodeRes{
		ID:       id,
		Path:     ep.PublicPath,
		Size:     size,
		MimeType: req.MimeType,
		Status:   domain.JobQueued,
	}, nil
}

func (uc *transcodeUseCase) saveFile(dst string, src io.Reader) (int64, error) {
	f, err := createFile(dst)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return copyFile(f, src)
}

func (uc *transcodeUseCase) GetEpisode(ctx context.Context, id string) (*domain.Episode, error) {
	return uc.repo.FindByID(ctx, id)
}

// GetStatus 優先讀取快取，miss 時讀 store
func (uc *transcodeUseCase) GetStatus(ctx context.Context, id string) (*domain.StatusUpdate, error) {
	if uc.cache != nil {
		if st, err := uc.cache.Get(ctx, id); err == nil {
			return &st, nil
		}
	}

	ep, err := uc.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &domain.StatusUpdate{
		Status:        ep.Status,
		ManifestPath:  ep.HlsPath,
		ThumbnailPath: ep.Thumbnail,
		Renditions:    ep.Variants,
		ErrorMessage:  ep.Error,
	}, nil
}

// RequeueEpisode 重設為 queued 並重新派送，processing 中的 job 需 force
func (uc *transcodeUseCase) RequeueEpisode(ctx context.Context, id string, force bool) error {
	ep, err := uc.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	// 本機 pool 還在跑同一個 id 時不動 store，避免結果被清掉後又被舊的執行覆寫
	if c, ok := uc.dispatcher.(inFlightChecker); ok && c.IsInFlight(id) {
		return domain.ErrJobInFlight
	}
	if err := uc.repo.Requeue(ctx, id, force); err != nil {
		return err
	}
	if uc.cache != nil {
		if err := uc.cache.Invalidate(ctx, id); err != nil {
			logger.Log.Warn("invalidate status cache failed", zap.String("jobId", id), zap.Error(err))
		}
	}

	if err := uc.dispatcher.Dispatch(ctx, ep.Request()); err != nil {
		return errprocess.Wrap(fmt.Sprintf("episode[%s] 重新派送轉碼失敗", id), err)
	}
	return nil
}

func (uc *transcodeUseCase) ListEpisodes(ctx context.Context, limit int) ([]domain.Episode, error) {
	return uc.repo.List(ctx, domain.ClampListLimit(limit))
}

func (uc *transcodeUseCase) UpdateLinkage(ctx context.Context, id string, req domain.UpdateLinkageReq) (*domain.Episode, error) {
	if err := uc.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return uc.repo.UpdateLinkage(ctx, id, req.Linkage())
}

// RecoverQueued 重新派送仍為 queued 的記錄，啟動時與 RunRecoveryLoop 定期呼叫
func (uc *transcodeUseCase) RecoverQueued(ctx context.Context) (int, error) {
	pending, err := uc.repo.FindByStatus(ctx, domain.JobQueued, 0)
	if err != nil {
		return 0, errprocess.Wrap("查詢 queued 記錄失敗", err)
	}

	count := 0
	for _, ep := range pending {
		err := uc.dispatcher.Dispatch(ctx, ep.Request())
		if errors.Is(err, domain.ErrQueueFull) {
			logger.Log.Warn("transcode queue full, stop recovery", zap.Int("recovered", count))
			break
		}
		if errors.Is(err, domain.ErrJobInFlight) {
			continue
		}
		if err != nil {
			logger.Log.Warn("recover job failed", zap.String("jobId", ep.ID), zap.Error(err))
			continue
		}
		count++
	}
	return count, nil
}
