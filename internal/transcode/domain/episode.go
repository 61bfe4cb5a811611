package domain

import "time"

// JobStatus definition transcode job status
type JobStatus string

const (
	// JobQueued 已建立記錄，等待轉碼
	JobQueued JobStatus = "queued"
	// JobProcessing 轉碼中
	JobProcessing JobStatus = "processing"
	// JobReady 轉碼完成，可播放
	JobReady JobStatus = "ready"
	// JobFailed 轉碼失敗
	JobFailed JobStatus = "failed"
)

// IsTerminal ready 與 failed 為終止狀態
func (s JobStatus) IsTerminal() bool {
	return s == JobReady || s == JobFailed
}

// Valid check status is one of the four known values
func (s JobStatus) Valid() bool {
	switch s {
	case JobQueued, JobProcessing, JobReady, JobFailed:
		return true
	}
	return false
}

// Linkage 影片所屬的動畫與集數，由外部維護，轉碼流程只負責原樣保存
type Linkage struct {
	AnimeSlug     string `bson:"animeSlug" json:"animeSlug" gorm:"column:anime_slug;index"`
	EpisodeNumber int    `bson:"episodeNumber" json:"episodeNumber" gorm:"column:episode_number"`
}

// Episode 定義一筆轉碼工作記錄 (TranscodeJob)
type Episode struct {
	ID         string    `bson:"_id" json:"id" gorm:"primaryKey;column:id"`
	SourcePath string    `bson:"filePath" json:"filePath" gorm:"column:file_path"`   // 原始上傳檔案
	PublicPath string    `bson:"publicPath" json:"publicPath" gorm:"column:public_path"`
	OutputDir  string    `bson:"outputDir" json:"outputDir" gorm:"column:output_dir"` // 依 id 命名的輸出目錄
	Status     JobStatus `bson:"status" json:"status" gorm:"column:status;index"`

	// 以下欄位只在 ready 時存在
	HlsPath   string   `bson:"hlsPath,omitempty" json:"hlsPath,omitempty" gorm:"column:hls_path"`
	Thumbnail string   `bson:"thumbnail,omitempty" json:"thumbnail,omitempty" gorm:"column:thumbnail"`
	Variants  []string `bson:"variants" json:"variants" gorm:"column:variants;serializer:json"`

	// 只在 failed 時存在
	Error string `bson:"error,omitempty" json:"error,omitempty" gorm:"column:error"`

	Linkage   `bson:",inline" gorm:"embedded"`
	CreatedBy string    `bson:"createdBy" json:"createdBy" gorm:"column:created_by"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt" gorm:"column:created_at;index"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt" gorm:"column:updated_at"`
}

// TableName gorm table name
func (Episode) TableName() string {
	return "episodes"
}

// Request build the orchestrator request of this record
func (e *Episode) Request() JobRequest {
	return JobRequest{
		JobID:      e.ID,
		SourcePath: e.SourcePath,
		OutputDir:  e.OutputDir,
	}
}

// Apply 將狀態更新套用到記錄上，並維持 ready/failed 欄位的互斥
func (e *Episode) Apply(u StatusUpdate) {
	e.Status = u.Status
	switch u.Status {
	case JobReady:
		e.HlsPath = u.ManifestPath
		e.Thumbnail = u.ThumbnailPath
		e.Variants = append([]string(nil), u.Renditions...)
		e.Error = ""
	case JobFailed:
		e.HlsPath, e.Thumbnail, e.Variants = "", "", []string{}
		e.Error = u.ErrorMessage
	default:
		e.HlsPath, e.Thumbnail, e.Variants = "", "", []string{}
		e.Error = ""
	}
}

// JobRequest orchestrator input
type JobRequest struct {
	JobID      string
	SourcePath string
	OutputDir  string
}

// StatusUpdate 狀態回報的部分欄位
type StatusUpdate struct {
	Status        JobStatus `json:"status"`
	ManifestPath  string    `json:"manifestPath,omitempty"`
	ThumbnailPath string    `json:"thumbnailPath,omitempty"`
	Renditions    []string  `json:"renditionList,omitempty"`
	ErrorMessage  string    `json:"errorMessage,omitempty"`
}

// ProcessingUpdate build processing update
func ProcessingUpdate() StatusUpdate {
	return StatusUpdate{Status: JobProcessing}
}

// ReadyUpdate build ready update
func ReadyUpdate(manifestPath, thumbnailPath string, renditions []string) StatusUpdate {
	return StatusUpdate{
		Status:        JobReady,
		ManifestPath:  manifestPath,
		ThumbnailPath: thumbnailPath,
		Renditions:    renditions,
	}
}

// FailedUpdate build failed update
func FailedUpdate(msg string) StatusUpdate {
	return StatusUpdate{Status: JobFailed, ErrorMessage: msg}
}
