package router

import (
	"episode_transcode_service/internal/transcode/app"
	"episode_transcode_service/pkg/middlewares"
	t_token "episode_transcode_service/pkg/token"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// RegisterRoutes 註冊 episode 上傳、狀態、管理與 CDN 路由
//
// @title Episode Transcode Service API
// @version 1.0
// @description Episode upload, HLS transcode status and admin API
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func RegisterRoutes(r *fiber.App, h *app.TranscodeHandler, ws *app.StatusWebsocketHandler, secret []byte, mediaRoot string) {
	r.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true})
	})

	RegisterCDN(r, mediaRoot)

	api := r.Group("/api")
	api.Get("/episodes/:id", h.GetEpisode)
	api.Get("/episodes/:id/status", h.GetStatus)

	staff := []fiber.Handler{
		middlewares.JWTMiddleware(secret),
		middlewares.RequireRole(t_token.RoleModerator, t_token.RoleAdmin),
	}

	upload := api.Group("/upload", staff...)
	upload.Post("/episodes", h.UploadEpisode)

	admin := api.Group("/admin", staff...)
	admin.Post("/transcode/:id", h.RequeueEpisode)
	admin.Get("/episodes", h.ListEpisodes)
	admin.Put("/episodes/:id", h.UpdateLinkage)

	r.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	r.Get("/ws/episodes/:id", websocket.New(ws.HandleConnection))
}
