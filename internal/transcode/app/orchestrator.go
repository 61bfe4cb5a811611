package app

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"episode_transcode_service/internal/transcode/domain"
	"episode_transcode_service/pkg/logger"

	"go.uber.org/zap"
)

// StatusReporter 回報 job 狀態，orchestrator 每次執行只會呼叫兩次
type StatusReporter interface {
	Report(ctx context.Context, jobID string, update domain.StatusUpdate) error
}

// ReporterFunc adapt a function to StatusReporter
type ReporterFunc func(ctx context.Context, jobID string, update domain.StatusUpdate) error

// Report call f
func (f ReporterFunc) Report(ctx context.Context, jobID string, update domain.StatusUpdate) error {
	return f(ctx, jobID, update)
}

// ArtifactMirror 將轉碼產物複製到物件儲存 (minio)
type ArtifactMirror interface {
	UploadFile(ctx context.Context, objectName, filePath, contentType string) error
}

// OrchestratorConfig orchestrator dependencies
type OrchestratorConfig struct {
	Encoder     *RenditionEncoder
	Manifest    *ManifestWriter
	Profiles    []domain.Profile
	MediaPrefix string
	// Mirror 可為 nil
	Mirror ArtifactMirror
}

// Orchestrator 執行一個轉碼 job：各畫質 → 縮圖 → 鏡像 → manifest
type Orchestrator struct {
	encoder     *RenditionEncoder
	manifest    *ManifestWriter
	profiles    []domain.Profile
	mediaPrefix string
	mirror      ArtifactMirror
}

// NewOrchestrator create orchestrator
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	profiles := cfg.Profiles
	if len(profiles) == 0 {
		profiles = domain.DefaultProfiles()
	}
	prefix := cfg.MediaPrefix
	if prefix == "" {
		prefix = "/cdn/hls"
	}
	manifest := cfg.Manifest
	if manifest == nil {
		manifest = NewManifestWriter()
	}
	return &Orchestrator{
		encoder:     cfg.Encoder,
		manifest:    manifest,
		profiles:    profiles,
		mediaPrefix: prefix,
		mirror:      cfg.Mirror,
	}
}

type jobResult struct {
	manifestPath  string
	thumbnailPath string
	renditions    []string
}

// RunJob 先回報 processing，結束時回報 ready 或 failed，回傳 pipeline 的錯誤
func (o *Orchestrator) RunJob(ctx context.Context, req domain.JobRequest, reporter StatusReporter) error {
	log := logger.Log.Zap().With(zap.String("jobId", req.JobID))

	o.report(ctx, reporter, req.JobID, domain.ProcessingUpdate())
	log.Info("transcode started", zap.String("source", req.SourcePath))

	result, err := o.execute(ctx, req)

	// job 被取消時也要留下終止狀態
	finalCtx := context.WithoutCancel(ctx)
	if err != nil {
		log.Error("transcode failed", zap.Error(err))
		o.report(finalCtx, reporter, req.JobID, domain.FailedUpdate(err.Error()))
		return err
	}

	o.report(finalCtx, reporter, req.JobID,
		domain.ReadyUpdate(result.manifestPath, result.thumbnailPath, result.renditions))
	log.Info("transcode ready", zap.Strings("renditions", result.renditions))
	return nil
}

func (o *Orchestrator) execute(ctx context.Context, req domain.JobRequest) (*jobResult, error) {
	done, err := o.encoder.EncodeRenditions(ctx, req.SourcePath, req.OutputDir, o.profiles)
	if err != nil {
		return nil, err
	}

	thumbPath, err := o.encoder.ExtractThumbnail(ctx, req.SourcePath, req.OutputDir)
	if err != nil {
		return nil, err
	}
	outDir := filepath.Dir(thumbPath)

	if o.mirror != nil {
		if err := o.mirrorDir(ctx, req.JobID, outDir); err != nil {
			return nil, err
		}
	}

	manifestPath, err := o.manifest.Write(outDir, done)
	if err != nil {
		return nil, err
	}

	if o.mirror != nil {
		if err := o.mirrorFile(ctx, req.JobID, manifestPath); err != nil {
			// manifest 只在全部成功時存在
			_ = removeFile(manifestPath)
			return nil, err
		}
	}

	return &jobResult{
		manifestPath:  o.publicPath(req.JobID, domain.ManifestFileName),
		thumbnailPath: o.publicPath(req.JobID, domain.ThumbnailFileName),
		renditions:    domain.Labels(done),
	}, nil
}

func (o *Orchestrator) publicPath(jobID, file string) string {
	return path.Join("/", o.mediaPrefix, jobID, file)
}

func (o *Orchestrator) report(ctx context.Context, reporter StatusReporter, jobID string, update domain.StatusUpdate) {
	if reporter == nil {
		return
	}
	if err := reporter.Report(ctx, jobID, update); err != nil {
		logger.Log.Error("report status failed",
			zap.String("jobId", jobID),
			zap.String("status", string(update.Status)),
			zap.Error(err),
		)
	}
}

var readDir = os.ReadDir

// mirrorDir 上傳 outDir 下的 playlist、segment 與縮圖
func (o *Orchestrator) mirrorDir(ctx context.Context, jobID, outDir string) error {
	entries, err := readDir(outDir)
	if err != nil {
		return &domain.PersistenceError{Op: "read dir", Target: outDir, Err: err}
	}
	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == domain.ManifestFileName {
			continue
		}
		if getContentType(entry.Name()) == "" {
			continue
		}
		if err := o.mirrorFile(ctx, jobID, filepath.Join(outDir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) mirrorFile(ctx context.Context, jobID, filePath string) error {
	objectName := path.Join("hls", jobID, filepath.Base(filePath))
	if err := o.mirror.UploadFile(ctx, objectName, filePath, getContentType(filePath)); err != nil {
		return &domain.PersistenceError{Op: "mirror", Target: objectName, Err: err}
	}
	return nil
}

// getContentType 根據副檔名返回 MIME 類型
func getContentType(fileName string) string {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	case ".ts":
		return "video/MP2T"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return ""
	}
}
