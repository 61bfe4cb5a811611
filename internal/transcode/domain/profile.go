package domain

import "fmt"

const (
	// ManifestFileName top level playlist
	ManifestFileName = "master.m3u8"
	// ThumbnailFileName thumbnail image
	ThumbnailFileName = "thumb.jpg"
	// ThumbnailOffsetSeconds 擷取縮圖的時間點
	ThumbnailOffsetSeconds = 5
)

// Profile 一個固定畫質的轉碼參數
type Profile struct {
	Label           string
	MaxWidth        int
	MaxHeight       int
	Bandwidth       int // bits/sec, 寫入 master playlist
	VideoCodec      string
	VideoProfile    string
	CRF             int
	KeyframeEvery   int
	AudioCodec      string
	AudioBitrate    string
	AudioSampleRate int
	SegmentSeconds  int
}

// Resolution WIDTHxHEIGHT
func (p Profile) Resolution() string {
	return fmt.Sprintf("%dx%d", p.MaxWidth, p.MaxHeight)
}

// PlaylistName sub playlist file name
func (p Profile) PlaylistName() string {
	return p.Label + ".m3u8"
}

// SegmentPattern ffmpeg segment file pattern
func (p Profile) SegmentPattern() string {
	return p.Label + "_%03d.ts"
}

// DefaultProfiles 系統固定的兩種畫質，由低到高
func DefaultProfiles() []Profile {
	return []Profile{
		{
			Label:           "480p",
			MaxWidth:        854,
			MaxHeight:       480,
			Bandwidth:       1500000,
			VideoCodec:      "h264",
			VideoProfile:    "main",
			CRF:             23,
			KeyframeEvery:   48,
			AudioCodec:      "aac",
			AudioBitrate:    "128k",
			AudioSampleRate: 48000,
			SegmentSeconds:  4,
		},
		{
			Label:           "720p",
			MaxWidth:        1280,
			MaxHeight:       720,
			Bandwidth:       2800000,
			VideoCodec:      "h264",
			VideoProfile:    "high",
			CRF:             21,
			KeyframeEvery:   48,
			AudioCodec:      "aac",
			AudioBitrate:    "128k",
			AudioSampleRate: 48000,
			SegmentSeconds:  4,
		},
	}
}

// Labels list profile labels in order
func Labels(profiles []Profile) []string {
	labels := make([]string, 0, len(profiles))
	for _, p := range profiles {
		labels = append(labels, p.Label)
	}
	return labels
}
