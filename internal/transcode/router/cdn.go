package router

import (
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const (
	cacheImmutable = "public, max-age=31536000, immutable"
	cacheMedia     = "public, max-age=604800"
	cacheDefault   = "public, max-age=3600"
)

// RegisterCDN 以 /cdn 提供 mediaRoot 下的靜態檔案
func RegisterCDN(r *fiber.App, mediaRoot string) {
	r.Static("/cdn", mediaRoot, fiber.Static{
		ByteRange: true,
		ModifyResponse: func(c *fiber.Ctx) error {
			setCDNHeaders(c)
			return nil
		},
	})
}

func setCDNHeaders(c *fiber.Ctx) {
	c.Set(fiber.HeaderCacheControl, cacheControlFor(c.Path()))
	c.Set(fiber.HeaderAcceptRanges, "bytes")
}

// cacheControlFor 圖片一年 immutable，影音七天，其他 (playlist、segment) 一小時
func cacheControlFor(filePath string) string {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".svg":
		return cacheImmutable
	case ".mp4", ".webm", ".mkv", ".mp3", ".aac", ".wav":
		return cacheMedia
	default:
		return cacheDefault
	}
}
