package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"episode_transcode_service/internal/transcode/domain"
	"episode_transcode_service/pkg/logger"

	"go.uber.org/zap"
)

// 包裝檔案操作，測試時可替換
var (
	createDir = func(path string) error {
		return os.MkdirAll(path, 0755)
	}
	absPath = filepath.Abs
)

// RenditionEncoder 用 ffmpeg 產生各畫質 HLS 與縮圖
type RenditionEncoder struct {
	ffmpegPath   string
	runner       CommandRunner
	stageTimeout time.Duration
}

// NewRenditionEncoder stageTimeout 為 0 時不限時
func NewRenditionEncoder(ffmpegPath string, runner CommandRunner, stageTimeout time.Duration) *RenditionEncoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &RenditionEncoder{
		ffmpegPath:   ffmpegPath,
		runner:       runner,
		stageTimeout: stageTimeout,
	}
}

// EncodeRenditions 依序轉出每個 profile，第一個失敗即停止
// 回傳成功產生的 profile（順序與輸入相同）
func (e *RenditionEncoder) EncodeRenditions(ctx context.Context, source, outDir string, profiles []domain.Profile) ([]domain.Profile, error) {
	source, outDir, err := e.prepare(source, outDir)
	if err != nil {
		return nil, err
	}

	done := make([]domain.Profile, 0, len(profiles))
	for _, p := range profiles {
		logger.Log.Debug("encode rendition",
			zap.String("label", p.Label),
			zap.String("outDir", outDir),
		)
		if err := e.run(ctx, renditionArgs(source, outDir, p), outDir); err != nil {
			return done, err
		}
		done = append(done, p)
	}
	return done, nil
}

// ExtractThumbnail 擷取第 5 秒的單張畫面，回傳檔案路徑
func (e *RenditionEncoder) ExtractThumbnail(ctx context.Context, source, outDir string) (string, error) {
	source, outDir, err := e.prepare(source, outDir)
	if err != nil {
		return "", err
	}

	thumbPath := filepath.Join(outDir, domain.ThumbnailFileName)
	if err := e.run(ctx, thumbnailArgs(source, thumbPath), outDir); err != nil {
		return "", err
	}
	return thumbPath, nil
}

func (e *RenditionEncoder) prepare(source, outDir string) (string, string, error) {
	absOut, err := absPath(outDir)
	if err != nil {
		return "", "", &domain.PersistenceError{Op: "resolve", Target: outDir, Err: err}
	}
	if err := createDir(absOut); err != nil {
		return "", "", &domain.PersistenceError{Op: "mkdir", Target: absOut, Err: err}
	}
	// 子程序的工作目錄是 outDir，相對路徑的來源檔要先轉成絕對路徑
	absSource, err := absPath(source)
	if err != nil {
		return "", "", &domain.PersistenceError{Op: "resolve", Target: source, Err: err}
	}
	return absSource, absOut, nil
}

func (e *RenditionEncoder) run(ctx context.Context, args []string, dir string) error {
	if e.stageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.stageTimeout)
		defer cancel()
	}
	return e.runner.Run(ctx, e.ffmpegPath, args, dir)
}

func renditionArgs(source, outDir string, p domain.Profile) []string {
	return []string{
		"-y",
		"-i", source,
		"-vf", fmt.Sprintf("scale=w=%d:h=%d:force_original_aspect_ratio=decrease", p.MaxWidth, p.MaxHeight),
		"-c:a", p.AudioCodec,
		"-ar", strconv.Itoa(p.AudioSampleRate),
		"-b:a", p.AudioBitrate,
		"-c:v", p.VideoCodec,
		"-profile:v", p.VideoProfile,
		"-crf", strconv.Itoa(p.CRF),
		"-g", strconv.Itoa(p.KeyframeEvery),
		"-keyint_min", strconv.Itoa(p.KeyframeEvery),
		"-sc_threshold", "0",
		"-hls_time", strconv.Itoa(p.SegmentSeconds),
		"-hls_playlist_type", "vod",
		"-hls_segment_filename", filepath.Join(outDir, p.SegmentPattern()),
		filepath.Join(outDir, p.PlaylistName()),
	}
}

func thumbnailArgs(source, thumbPath string) []string {
	return []string{
		"-y",
		"-ss", strconv.Itoa(domain.ThumbnailOffsetSeconds),
		"-i", source,
		"-frames:v", "1",
		"-q:v", "2",
		thumbPath,
	}
}
