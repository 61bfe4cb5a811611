package app

import (
	"errors"
	"strconv"

	"episode_transcode_service/internal/transcode/domain"
	"episode_transcode_service/pkg/logger"
	"episode_transcode_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// TranscodeHandler episode http handler
type TranscodeHandler struct {
	Usecase TranscodeUseCase
}

// NewTranscodeHandler create handler
func NewTranscodeHandler(uc TranscodeUseCase) *TranscodeHandler {
	return &TranscodeHandler{Usecase: uc}
}

// UploadEpisode godoc
// @Summary Upload episode video
// @Description Saves the uploaded file, creates a queued transcode record and dispatches it
// @Tags Episode
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param animeSlug formData string true "Anime slug"
// @Param episodeNumber formData int true "Episode number"
// @Param file formData file true "Episode video file"
// @Success 201 {object} domain.SubmitEpisodeRes "Upload success response"
// @Failure 400 {object} string "Bad Request"
// @Failure 401 {object} string "Unauthorized"
// @Failure 403 {object} string "Forbidden"
// @Failure 503 {object} string "Transcode queue unavailable"
// @Router /api/upload/episodes [post]
func (h *TranscodeHandler) UploadEpisode(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "file required"})
	}

	episodeNumber, _ := strconv.Atoi(c.FormValue("episodeNumber"))
	animeSlug := c.FormValue("animeSlug")
	if animeSlug == "" || episodeNumber <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "animeSlug and episodeNumber required"})
	}

	file, err := fileHeader.Open()
	if err != nil {
		logger.Log.Error("open upload file failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to read file"})
	}
	defer file.Close()

	username, _ := c.Locals(middlewares.TokenUsername).(string)
	res, err := h.Usecase.SubmitEpisode(c.UserContext(), domain.SubmitEpisodeReq{
		AnimeSlug:     animeSlug,
		EpisodeNumber: episodeNumber,
		FileName:      fileHeader.Filename,
		MimeType:      fileHeader.Header.Get(fiber.HeaderContentType),
		Size:          fileHeader.Size,
		File:          file,
		CreatedBy:     username,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

// GetEpisode godoc
// @Summary Get episode
// @Tags Episode
// @Produce json
// @Param id path string true "Episode ID"
// @Success 200 {object} domain.Episode
// @Failure 404 {object} string "Not found"
// @Router /api/episodes/{id} [get]
func (h *TranscodeHandler) GetEpisode(c *fiber.Ctx) error {
	ep, err := h.Usecase.GetEpisode(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(ep)
}

// GetStatus godoc
// @Summary Get episode transcode status
// @Description Latest status, served from the redis cache when present
// @Tags Episode
// @Produce json
// @Param id path string true "Episode ID"
// @Success 200 {object} domain.StatusUpdate
// @Failure 404 {object} string "Not found"
// @Router /api/episodes/{id}/status [get]
func (h *TranscodeHandler) GetStatus(c *fiber.Ctx) error {
	st, err := h.Usecase.GetStatus(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(st)
}

// RequeueEpisode godoc
// @Summary Requeue transcode
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "Episode ID"
// @Param force query bool false "Requeue even while processing"
// @Success 200 {object} map[string]bool
// @Failure 404 {object} string "Not found"
// @Failure 409 {object} string "Episode is processing"
// @Failure 503 {object} string "Transcode queue unavailable"
// @Router /api/admin/transcode/{id} [post]
func (h *TranscodeHandler) RequeueEpisode(c *fiber.Ctx) error {
	force := c.QueryBool("force", false)
	if err := h.Usecase.RequeueEpisode(c.UserContext(), c.Params("id"), force); err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

// ListEpisodes godoc
// @Summary List episodes, newest first
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param limit query int false "1..100, default 20"
// @Success 200 {object} map[string][]domain.Episode
// @Router /api/admin/episodes [get]
func (h *TranscodeHandler) ListEpisodes(c *fiber.Ctx) error {
	list, err := h.Usecase.ListEpisodes(c.UserContext(), c.QueryInt("limit", domain.DefaultListLimit))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"episodes": list})
}

// UpdateLinkage godoc
// @Summary Update anime linkage
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Episode ID"
// @Param body body domain.UpdateLinkageReq true "Linkage"
// @Success 200 {object} map[string]domain.Episode
// @Failure 400 {object} string "Bad Request"
// @Failure 404 {object} string "Not found"
// @Router /api/admin/episodes/{id} [put]
func (h *TranscodeHandler) UpdateLinkage(c *fiber.Ctx) error {
	var req domain.UpdateLinkageReq
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	ep, err := h.Usecase.UpdateLinkage(c.UserContext(), c.Params("id"), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"episode": ep})
}

// writeError 依錯誤類型轉換 http status
func writeError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	msg := "Internal server error"

	switch {
	case domain.IsNotFound(err):
		status, msg = fiber.StatusNotFound, "Not found"
	case errors.Is(err, ErrValidation):
		status, msg = fiber.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrJobProcessing), errors.Is(err, domain.ErrJobInFlight):
		status, msg = fiber.StatusConflict, "Episode is processing"
	case errors.Is(err, domain.ErrQueueFull), errors.Is(err, domain.ErrPoolClosed):
		status, msg = fiber.StatusServiceUnavailable, "Transcode queue unavailable"
	default:
		logger.Log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.Status(status).JSON(fiber.Map{"error": msg})
}
