package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAlreadyClaimed 同一個 job id 已被其他執行者取得
	ErrAlreadyClaimed = errors.New("job already claimed")
	// ErrJobInFlight 同一個 job id 已在本機佇列或執行中
	ErrJobInFlight = errors.New("job already in flight")
	// ErrQueueFull worker pool queue is full
	ErrQueueFull = errors.New("transcode queue is full")
	// ErrJobProcessing requeue a job that is still processing
	ErrJobProcessing = errors.New("job is processing")
	// ErrPoolClosed pool has been shut down
	ErrPoolClosed = errors.New("transcode pool closed")
)

// EncodeProcessError 外部編碼程式以非 0 結束
type EncodeProcessError struct {
	Command  string
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *EncodeProcessError) Error() string {
	msg := fmt.Sprintf("command failed: %s %s (exit=%d)", e.Command, strings.Join(e.Args, " "), e.ExitCode)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += "\n" + stderr
	}
	return msg
}

// Unwrap exposes the underlying exec error
func (e *EncodeProcessError) Unwrap() error {
	return e.Err
}

// PersistenceError manifest 寫檔或狀態儲存失敗
type PersistenceError struct {
	Op     string
	Target string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Target, e.Err)
}

// Unwrap exposes the underlying error
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// NotFoundError 找不到指定 id 的記錄
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("episode[%s] not found", e.ID)
}

// IsNotFound reports whether err carries a NotFoundError
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
