package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"episode_transcode_service/internal/transcode/domain"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/mock"
)

// fakeRunner 記錄每次呼叫，並在成功時建立最後一個參數指定的輸出檔
type fakeRunner struct {
	mu     sync.Mutex
	calls  [][]string
	dirs   []string
	failOn func(args []string) error
	write  bool
}

func (f *fakeRunner) Run(ctx context.Context, name string, args []string, dir string) error {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), args...))
	f.dirs = append(f.dirs, dir)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return &domain.EncodeProcessError{Command: name, Args: args, ExitCode: -1, Err: err}
	}
	if f.failOn != nil {
		if err := f.failOn(args); err != nil {
			return err
		}
	}
	if f.write {
		out := args[len(args)-1]
		if err := os.WriteFile(out, []byte("data"), 0644); err != nil {
			return err
		}
		if strings.HasSuffix(out, ".m3u8") {
			seg := strings.Replace(filepath.Base(out), ".m3u8", "_000.ts", 1)
			_ = os.WriteFile(filepath.Join(filepath.Dir(out), seg), []byte("ts"), 0644)
		}
	}
	return nil
}

func (f *fakeRunner) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.calls...)
}

// outputs 每次呼叫的輸出檔名
func (f *fakeRunner) outputs() []string {
	var out []string
	for _, c := range f.Calls() {
		out = append(out, filepath.Base(c[len(c)-1]))
	}
	return out
}

func failOnOutput(name string, err error) func([]string) error {
	return func(args []string) error {
		if filepath.Base(args[len(args)-1]) == name {
			return err
		}
		return nil
	}
}

type reportCall struct {
	JobID  string
	Update domain.StatusUpdate
	CtxErr error
}

// recordingReporter 保存所有狀態回報
type recordingReporter struct {
	mu    sync.Mutex
	calls []reportCall
	err   error
}

func (r *recordingReporter) Report(ctx context.Context, jobID string, update domain.StatusUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, reportCall{JobID: jobID, Update: update, CtxErr: ctx.Err()})
	return r.err
}

func (r *recordingReporter) Calls() []reportCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]reportCall(nil), r.calls...)
}

func (r *recordingReporter) Statuses() []domain.JobStatus {
	var out []domain.JobStatus
	for _, c := range r.Calls() {
		out = append(out, c.Update.Status)
	}
	return out
}

// MockEpisodeRepo 是 EpisodeRepo 的 Mock
type MockEpisodeRepo struct {
	mock.Mock
}

func (m *MockEpisodeRepo) NextID() string {
	return m.Called().String(0)
}

func (m *MockEpisodeRepo) Create(ctx context.Context, ep *domain.Episode) error {
	return m.Called(ctx, ep).Error(0)
}

func (m *MockEpisodeRepo) FindByID(ctx context.Context, id string) (*domain.Episode, error) {
	args := m.Called(ctx, id)
	ep, _ := args.Get(0).(*domain.Episode)
	return ep, args.Error(1)
}

func (m *MockEpisodeRepo) UpdateByID(ctx context.Context, id string, update domain.StatusUpdate) error {
	return m.Called(ctx, id, update).Error(0)
}

func (m *MockEpisodeRepo) Claim(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockEpisodeRepo) Requeue(ctx context.Context, id string, force bool) error {
	return m.Called(ctx, id, force).Error(0)
}

func (m *MockEpisodeRepo) FindByStatus(ctx context.Context, status domain.JobStatus, limit int) ([]domain.Episode, error) {
	args := m.Called(ctx, status, limit)
	list, _ := args.Get(0).([]domain.Episode)
	return list, args.Error(1)
}

func (m *MockEpisodeRepo) List(ctx context.Context, limit int) ([]domain.Episode, error) {
	args := m.Called(ctx, limit)
	list, _ := args.Get(0).([]domain.Episode)
	return list, args.Error(1)
}

func (m *MockEpisodeRepo) UpdateLinkage(ctx context.Context, id string, linkage domain.Linkage) (*domain.Episode, error) {
	args := m.Called(ctx, id, linkage)
	ep, _ := args.Get(0).(*domain.Episode)
	return ep, args.Error(1)
}

// MockDispatcher 是 Dispatcher 的 Mock
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(ctx context.Context, req domain.JobRequest) error {
	return m.Called(ctx, req).Error(0)
}

// MockInFlightDispatcher 模擬本機 pool，可查詢 id 是否仍在執行
type MockInFlightDispatcher struct {
	MockDispatcher
}

func (m *MockInFlightDispatcher) IsInFlight(jobID string) bool {
	return m.Called(jobID).Bool(0)
}

// MockStatusLookup 是 redis status cache 的 Mock
type MockStatusLookup struct {
	mock.Mock
}

func (m *MockStatusLookup) Get(ctx context.Context, jobID string) (domain.StatusUpdate, error) {
	args := m.Called(ctx, jobID)
	return args.Get(0).(domain.StatusUpdate), args.Error(1)
}

func (m *MockStatusLookup) Invalidate(ctx context.Context, jobID string) error {
	return m.Called(ctx, jobID).Error(0)
}

// MockArtifactMirror 是 minio 的 Mock
type MockArtifactMirror struct {
	mock.Mock
}

func (m *MockArtifactMirror) UploadFile(ctx context.Context, objectName, filePath, contentType string) error {
	return m.Called(ctx, objectName, filePath, contentType).Error(0)
}

// MockRabbitRepo 是 RabbitMQ 的 Mock
type MockRabbitRepo struct {
	mock.Mock
}

func (m *MockRabbitRepo) GetRabbit() *amqp.Channel {
	ch, _ := m.Called().Get(0).(*amqp.Channel)
	return ch
}

func (m *MockRabbitRepo) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	return m.Called(exchange, key, mandatory, immediate, msg).Error(0)
}

// fakeAcknowledger 記錄 ack / nack / reject
type fakeAcknowledger struct {
	mu      sync.Mutex
	acks    []uint64
	nacks   []uint64
	rejects []uint64
	requeue []bool
}

func (a *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks = append(a.acks, tag)
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacks = append(a.nacks, tag)
	a.requeue = append(a.requeue, requeue)
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rejects = append(a.rejects, tag)
	a.requeue = append(a.requeue, requeue)
	return nil
}

// handlerFunc adapt a function to JobHandler
type handlerFunc func(ctx context.Context, req domain.JobRequest) error

func (f handlerFunc) Run(ctx context.Context, req domain.JobRequest) error {
	return f(ctx, req)
}

func newTestOrchestrator(runner CommandRunner, mirror ArtifactMirror) *Orchestrator {
	return NewOrchestrator(OrchestratorConfig{
		Encoder:  NewRenditionEncoder("ffmpeg", runner, 0),
		Manifest: NewManifestWriter(),
		Profiles: domain.DefaultProfiles(),
		Mirror:   mirror,
	})
}
