package router

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"episode_transcode_service/internal/transcode/app"
	"episode_transcode_service/internal/transcode/domain"
	"episode_transcode_service/pkg/logger"
	t_token "episode_transcode_service/pkg/token"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

// MockTranscodeUseCase 是 TranscodeUseCase 的 Mock
type MockTranscodeUseCase struct {
	mock.Mock
}

func (m *MockTranscodeUseCase) SubmitEpisode(ctx context.Context, req domain.SubmitEpisodeReq) (*domain.SubmitEpisodeRes, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*domain.SubmitEpisodeRes)
	return res, args.Error(1)
}

func (m *MockTranscodeUseCase) GetEpisode(ctx context.Context, id string) (*domain.Episode, error) {
	args := m.Called(ctx, id)
	ep, _ := args.Get(0).(*domain.Episode)
	return ep, args.Error(1)
}

func (m *MockTranscodeUseCase) GetStatus(ctx context.Context, id string) (*domain.StatusUpdate, error) {
	args := m.Called(ctx, id)
	st, _ := args.Get(0).(*domain.StatusUpdate)
	return st, args.Error(1)
}

func (m *MockTranscodeUseCase) RequeueEpisode(ctx context.Context, id string, force bool) error {
	return m.Called(ctx, id, force).Error(0)
}

func (m *MockTranscodeUseCase) ListEpisodes(ctx context.Context, limit int) ([]domain.Episode, error) {
	args := m.Called(ctx, limit)
	list, _ := args.Get(0).([]domain.Episode)
	return list, args.Error(1)
}

func (m *MockTranscodeUseCase) UpdateLinkage(ctx context.Context, id string, req domain.UpdateLinkageReq) (*domain.Episode, error) {
	args := m.Called(ctx, id, req)
	ep, _ := args.Get(0).(*domain.Episode)
	return ep, args.Error(1)
}

func (m *MockTranscodeUseCase) RecoverQueued(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func setupApp(t *testing.T, uc app.TranscodeUseCase, mediaRoot string) *fiber.App {
	t.Helper()
	logger.SetNewNop()
	r := fiber.New()
	RegisterRoutes(r, app.NewTranscodeHandler(uc), app.NewStatusWebsocketHandler(app.NewStatusHub()), testSecret, mediaRoot)
	return r
}

func bearer(t *testing.T, role t_token.RoleType) string {
	t.Helper()
	tok, err := t_token.GenerateJWT(testSecret, "mod1", role, "test", time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok
}

func decode(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func uploadRequest(t *testing.T, fields map[string]string, withFile bool) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if withFile {
		part, err := w.CreateFormFile("file", "ep1.mp4")
		require.NoError(t, err)
		_, _ = part.Write([]byte("video-bytes"))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload/episodes", &body)
	req.Header.Set(fiber.HeaderContentType, w.FormDataContentType())
	return req
}

func TestUploadEpisodeRoute(t *testing.T) {
	fields := map[string]string{"animeSlug": "frieren", "episodeNumber": "3"}

	t.Run("沒有 token 回傳 401", func(t *testing.T) {
		uc := new(MockTranscodeUseCase)
		resp, err := setupApp(t, uc, t.TempDir()).Test(uploadRequest(t, fields, true))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("一般使用者回傳 403", func(t *testing.T) {
		uc := new(MockTranscodeUseCase)
		req := uploadRequest(t, fields, true)
		req.Header.Set(fiber.HeaderAuthorization, bearer(t, t_token.RoleUser))

		resp, err := setupApp(t, uc, t.TempDir()).Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
		uc.AssertNotCalled(t, "SubmitEpisode", mock.Anything, mock.Anything)
	})

	t.Run("moderator 上傳成功回傳 201", func(t *testing.T) {
		uc := new(MockTranscodeUseCase)
		uc.On("SubmitEpisode", mock.Anything, mock.MatchedBy(func(req domain.SubmitEpisodeReq) bool {
			return req.AnimeSlug == "frieren" &&
				req.EpisodeNumber == 3 &&
				req.FileName == "ep1.mp4" &&
				req.Size == int64(len("video-bytes")) &&
				req.CreatedBy == "mod1" &&
				req.File != nil
		})).Return(&domain.SubmitEpisodeRes{
			ID:       "abc123",
			Path:     "/cdn/episodes/ep1-1.mp4",
			Size:     11,
			MimeType: "application/octet-stream",
			Status:   domain.JobQueued,
		}, nil).Once()

		req := uploadRequest(t, fields, true)
		req.Header.Set(fiber.HeaderAuthorization, bearer(t, t_token.RoleModerator))

		resp, err := setupApp(t, uc, t.TempDir()).Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

		body := decode(t, resp)
		assert.Equal(t, "abc123", body["id"])
		assert.Equal(t, "queued", body["status"])
		uc.AssertExpectations(t)
	})

	t.Run("轉碼 queue 已滿回傳 503", func(t *testing.T) {
		uc := new(MockTranscodeUseCase)
		uc.On("SubmitEpisode", mock.Anything, mock.Anything).Return(nil, domain.ErrQueueFull).Once()

		req := uploadRequest(t, fields, true)
		req.Header.Set(fiber.HeaderAuthorization, bearer(t, t_token.RoleModerator))

		resp, err := setupApp(t, uc, t.TempDir()).Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	})

	t.Run("缺少欄位回傳 400", func(t *testing.T) {
		uc := new(MockTranscodeUseCase)
		req := uploadRequest(t, map[string]string{"animeSlug": "frieren"}, true)
		req.Header.Set(fiber.HeaderAuthorization, bearer(t, t_token.RoleAdmin))

		resp, err := setupApp(t, uc, t.TempDir()).Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("缺少檔案回傳 400", func(t *testing.T) {
		uc := new(MockTranscodeUseCase)
		req := uploadRequest(t, fields, false)
		req.Header.Set(fiber.HeaderAuthorization, bearer(t, t_token.RoleAdmin))

		resp, err := setupApp(t, uc, t.TempDir()).Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})
}

func TestEpisodeRoutes(t *testing.T) {
	t.Run("GET episode", func(t *testing.T) {
		uc := new(MockTranscodeUseCase)
		uc.On("GetEpisode", mock.Anything, "abc123").Return(&domain.Episode{ID: "abc123", Status: domain.JobReady, HlsPath: "/cdn/hls/abc123/master.m3u8"}, nil)
		uc.On("GetEpisode", mock.Anything, "nope").Return(nil, &domain.NotFoundError{ID: "nope"})
		a := setupApp(t, uc, t.TempDir())

		resp, err := a.Test(httptest.NewRequest(http.MethodGet, "/api/episodes/abc123", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, "/cdn/hls/abc123/master.m3u8", decode(t, resp)["hlsPath"])

		resp, err = a.Test(httptest.NewRequest(http.MethodGet, "/api/episodes/nope", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	})

	t.Run("GET status", func(t *testing.T) {
		uc := new(MockTranscodeUseCase)
		st := domain.FailedUpdate("exit 1")
		uc.On("GetStatus", mock.Anything, "abc123").Return(&st, nil)

		resp, err := setupApp(t, uc, t.TempDir()).Test(httptest.NewRequest(http.MethodGet, "/api/episodes/abc123/status", nil))
		require.NoError(t, err)
		body := decode(t, resp)
		assert.Equal(t, "failed", body["status"])
		assert.Equal(t, "exit 1", body["errorMessage"])
	})
}

func TestAdminRoutes(t *testing.T) {
	t.Run("requeue", func(t *testing.T) {
		tests := []struct {
			name   string
			path   string
			force  bool
			err    error
			status int
		}{
			{"成功", "/api/admin/transcode/abc123", false, nil, fiber.StatusOK},
			{"force", "/api/admin/transcode/abc123?force=true", true, nil, fiber.StatusOK},
			{"不存在", "/api/admin/transcode/abc123", false, &domain.NotFoundError{ID: "abc123"}, fiber.StatusNotFound},
			{"processing", "/api/admin/transcode/abc123", false, domain.ErrJobProcessing, fiber.StatusConflict},
			{"queue 滿", "/api/admin/transcode/abc123", false, domain.ErrQueueFull, fiber.StatusServiceUnavailable},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				uc := new(MockTranscodeUseCase)
				uc.On("RequeueEpisode", mock.Anything, "abc123", tt.force).Return(tt.err).Once()

				req := httptest.NewRequest(http.MethodPost, tt.path, nil)
				req.Header.Set(fiber.HeaderAuthorization, bearer(t, t_token.RoleAdmin))
				resp, err := setupApp(t, uc, t.TempDir()).Test(req)

				require.NoError(t, err)
				assert.Equal(t, tt.status, resp.StatusCode)
				uc.AssertExpectations(t)
			})
		}
	})

	t.Run("list 傳入 limit", func(t *testing.T) {
		uc := new(MockTranscodeUseCase)
		uc.On("ListEpisodes", mock.Anything, 5).Return([]domain.Episode{{ID: "a"}, {ID: "b"}}, nil).Once()
		uc.On("ListEpisodes", mock.Anything, domain.DefaultListLimit).Return([]domain.Episode{}, nil).Once()
		a := setupApp(t, uc, t.TempDir())

		req := httptest.NewRequest(http.MethodGet, "/api/admin/episodes?limit=5", nil)
		req.Header.Set(fiber.HeaderAuthorization, bearer(t, t_token.RoleModerator))
		resp, err := a.Test(req)
		require.NoError(t, err)
		assert.Len(t, decode(t, resp)["episodes"], 2)

		req = httptest.NewRequest(http.MethodGet, "/api/admin/episodes", nil)
		req.Header.Set(fiber.HeaderAuthorization, bearer(t, t_token.RoleModerator))
		resp, err = a.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		uc.AssertExpectations(t)
	})

	t.Run("update linkage", func(t *testing.T) {
		uc := new(MockTranscodeUseCase)
		linkReq := domain.UpdateLinkageReq{AnimeSlug: "frieren", EpisodeNumber: 4}
		uc.On("UpdateLinkage", mock.Anything, "abc123", linkReq).
			Return(&domain.Episode{ID: "abc123", Linkage: linkReq.Linkage()}, nil).Once()

		req := httptest.NewRequest(http.MethodPut, "/api/admin/episodes/abc123", bytes.NewBufferString(`{"animeSlug":"frieren","episodeNumber":4}`))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		req.Header.Set(fiber.HeaderAuthorization, bearer(t, t_token.RoleAdmin))
		resp, err := setupApp(t, uc, t.TempDir()).Test(req)

		require.NoError(t, err)
		episode := decode(t, resp)["episode"].(map[string]interface{})
		assert.Equal(t, "frieren", episode["animeSlug"])
	})

	t.Run("update linkage 驗證失敗", func(t *testing.T) {
		uc := new(MockTranscodeUseCase)
		uc.On("UpdateLinkage", mock.Anything, "abc123", mock.Anything).Return(nil, app.ErrValidation)

		req := httptest.NewRequest(http.MethodPut, "/api/admin/episodes/abc123", bytes.NewBufferString(`{"animeSlug":""}`))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		req.Header.Set(fiber.HeaderAuthorization, bearer(t, t_token.RoleAdmin))
		resp, err := setupApp(t, uc, t.TempDir()).Test(req)

		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})
}

func TestCDNRoute(t *testing.T) {
	mediaRoot := t.TempDir()
	hlsDir := filepath.Join(mediaRoot, "hls", "abc123")
	require.NoError(t, os.MkdirAll(hlsDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(hlsDir, "master.m3u8"), []byte("#EXTM3U\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(hlsDir, "thumb.jpg"), []byte("jpg"), 0644))

	a := setupApp(t, new(MockTranscodeUseCase), mediaRoot)

	tests := []struct {
		path  string
		cache string
	}{
		{"/cdn/hls/abc123/master.m3u8", cacheDefault},
		{"/cdn/hls/abc123/thumb.jpg", cacheImmutable},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := a.Test(httptest.NewRequest(http.MethodGet, tt.path, nil))
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusOK, resp.StatusCode)
			assert.Equal(t, tt.cache, resp.Header.Get(fiber.HeaderCacheControl))
			assert.Equal(t, "bytes", resp.Header.Get(fiber.HeaderAcceptRanges))
		})
	}

	resp, err := a.Test(httptest.NewRequest(http.MethodGet, "/cdn/hls/abc123/missing.ts", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestCacheControlFor(t *testing.T) {
	assert.Equal(t, cacheImmutable, cacheControlFor("/a/b.PNG"))
	assert.Equal(t, cacheMedia, cacheControlFor("/a/b.mp4"))
	assert.Equal(t, cacheDefault, cacheControlFor("/a/480p_001.ts"))
}

func TestLiveness(t *testing.T) {
	resp, err := setupApp(t, new(MockTranscodeUseCase), t.TempDir()).Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
