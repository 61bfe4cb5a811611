package domain

import "io"

const (
	// DefaultListLimit admin 列表預設筆數
	DefaultListLimit = 20
	// MaxListLimit admin 列表上限
	MaxListLimit = 100
)

// SubmitEpisodeReq 上傳新的集數影片
type SubmitEpisodeReq struct {
	AnimeSlug     string    `validate:"required,max=128"`
	EpisodeNumber int       `validate:"required,min=1"`
	FileName      string    `validate:"required"`
	MimeType      string
	Size          int64
	File          io.Reader `validate:"required"`
	CreatedBy     string
}

// SubmitEpisodeRes 上傳完成回應
type SubmitEpisodeRes struct {
	ID       string    `json:"id"`
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	MimeType string    `json:"mimetype"`
	Status   JobStatus `json:"status"`
}

// UpdateLinkageReq 修改所屬動畫與集數
type UpdateLinkageReq struct {
	AnimeSlug     string `json:"animeSlug" validate:"required,max=128"`
	EpisodeNumber int    `json:"episodeNumber" validate:"required,min=1"`
}

// Linkage convert request to linkage
func (r UpdateLinkageReq) Linkage() Linkage {
	return Linkage{AnimeSlug: r.AnimeSlug, EpisodeNumber: r.EpisodeNumber}
}

// ClampListLimit 限制在 1..100，0 代表未指定
func ClampListLimit(limit int) int {
	if limit == 0 {
		return DefaultListLimit
	}
	if limit < 1 {
		return 1
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
