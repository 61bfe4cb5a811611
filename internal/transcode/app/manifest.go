package app

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"episode_transcode_service/internal/transcode/domain"
)

var (
	writeFile  = os.WriteFile
	renameFile = os.Rename
	removeFile = os.Remove
)

// ManifestWriter 產生 HLS master playlist
type ManifestWriter struct{}

// NewManifestWriter create manifest writer
func NewManifestWriter() *ManifestWriter {
	return &ManifestWriter{}
}

// Render master playlist 內容，依 profile 順序列出
func (ManifestWriter) Render(profiles []domain.Profile) []byte {
	var buf bytes.Buffer
	buf.WriteString("#EXTM3U\n")
	buf.WriteString("#EXT-X-VERSION:3\n")
	for _, p := range profiles {
		fmt.Fprintf(&buf, "#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%s\n", p.Bandwidth, p.Resolution())
		buf.WriteString(p.PlaylistName())
		buf.WriteString("\n")
	}
	return buf.Bytes()
}

// Write 寫入 outDir/master.m3u8，先寫暫存檔再 rename，不會留下寫一半的 manifest
func (w ManifestWriter) Write(outDir string, profiles []domain.Profile) (string, error) {
	path := filepath.Join(outDir, domain.ManifestFileName)
	tmp := path + ".tmp"

	if err := writeFile(tmp, w.Render(profiles), 0644); err != nil {
		return "", &domain.PersistenceError{Op: "write manifest", Target: path, Err: err}
	}
	if err := renameFile(tmp, path); err != nil {
		_ = removeFile(tmp)
		return "", &domain.PersistenceError{Op: "write manifest", Target: path, Err: err}
	}
	return path, nil
}
