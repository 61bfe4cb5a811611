package app

import (
	"context"
	"errors"
	"sync"

	"episode_transcode_service/internal/transcode/domain"
	"episode_transcode_service/pkg/logger"

	"go.uber.org/zap"
)

// Dispatcher 將 job 交給執行端：本機 pool 或 RabbitMQ
type Dispatcher interface {
	Dispatch(ctx context.Context, req domain.JobRequest) error
}

// Ticket 追蹤一個已排入 pool 的 job
type Ticket struct {
	JobID string
	done  chan struct{}
	err   error
}

func newTicket(jobID string) *Ticket {
	return &Ticket{JobID: jobID, done: make(chan struct{})}
}

// Done 在 job 結束後關閉
func (t *Ticket) Done() <-chan struct{} {
	return t.done
}

// Err job 的結果，Done 關閉前為 nil
func (t *Ticket) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Wait 等待 job 結束或 ctx 取消
func (t *Ticket) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Ticket) finish(err error) {
	t.err = err
	close(t.done)
}

type poolTask struct {
	req    domain.JobRequest
	ticket *Ticket
}

// PoolConfig worker pool setting
type PoolConfig struct {
	Workers   int
	QueueSize int
	Handler   JobHandler
}

// Pool 固定數量 worker 的轉碼池，queue 滿時直接拒絕
type Pool struct {
	handler JobHandler
	workers int
	queue   chan poolTask

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	closed   bool
	started  bool
	inFlight map[string]struct{}
}

// NewPool create pool, 需呼叫 Start 才會開始處理
func NewPool(cfg PoolConfig) *Pool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = workers
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		handler:  cfg.Handler,
		workers:  workers,
		queue:    make(chan poolTask, queueSize),
		ctx:      ctx,
		cancel:   cancel,
		inFlight: make(map[string]struct{}),
	}
}

// Start 啟動 worker，重複呼叫無效
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Enqueue 排入 job，同一 id 已在本機處理時回傳 ErrJobInFlight，queue 滿時回傳 ErrQueueFull
func (p *Pool) Enqueue(req domain.JobRequest) (*Ticket, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, domain.ErrPoolClosed
	}
	if _, ok := p.inFlight[req.JobID]; ok {
		return nil, domain.ErrJobInFlight
	}

	task := poolTask{req: req, ticket: newTicket(req.JobID)}
	select {
	case p.queue <- task:
		p.inFlight[req.JobID] = struct{}{}
		return task.ticket, nil
	default:
		return nil, domain.ErrQueueFull
	}
}

// Dispatch implement Dispatcher
func (p *Pool) Dispatch(_ context.Context, req domain.JobRequest) error {
	_, err := p.Enqueue(req)
	return err
}

// IsInFlight 指定 id 是否仍在本機排隊或執行中
func (p *Pool) IsInFlight(jobID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.inFlight[jobID]
	return ok
}

// InFlight 目前排隊加執行中的 job 數
func (p *Pool) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inFlight)
}

// Shutdown 停止接收 job，取消執行中的 job 並等待 worker 結束
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	// 尚未被 worker 取走的 job
	for {
		select {
		case task := <-p.queue:
			p.complete(task, domain.ErrPoolClosed)
		default:
			return nil
		}
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case task := <-p.queue:
			p.process(id, task)
		}
	}
}

func (p *Pool) process(workerID int, task poolTask) {
	// ctx 已取消時 select 可能仍取到 task
	if p.ctx.Err() != nil {
		p.complete(task, domain.ErrPoolClosed)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Log.Error("transcode worker panic",
				zap.Int("worker", workerID),
				zap.String("jobId", task.req.JobID),
				zap.Any("panic", r),
			)
			p.complete(task, errors.New("transcode worker panic"))
		}
	}()

	err := p.handler.Run(p.ctx, task.req)
	if err != nil && !errors.Is(err, domain.ErrAlreadyClaimed) {
		logger.Log.Warn("transcode job finished with error",
			zap.Int("worker", workerID),
			zap.String("jobId", task.req.JobID),
			zap.Error(err),
		)
	}
	p.complete(task, err)
}

func (p *Pool) complete(task poolTask, err error) {
	p.mu.Lock()
	delete(p.inFlight, task.req.JobID)
	p.mu.Unlock()
	task.ticket.finish(err)
}
