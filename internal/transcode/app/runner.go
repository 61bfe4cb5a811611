package app

import (
	"bytes"
	"context"
	"errors"
	"os/exec"

	"episode_transcode_service/internal/transcode/domain"
)

// maxStderrBytes ffmpeg 的 stderr 很長，只保留尾端
const maxStderrBytes = 8 << 10

// CommandRunner 執行外部程式，非 0 結束回傳 *domain.EncodeProcessError
type CommandRunner interface {
	Run(ctx context.Context, name string, args []string, dir string) error
}

// ExecRunner run command with os/exec
type ExecRunner struct{}

// NewExecRunner create exec runner
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run 在 dir 執行 name args，ctx 取消時會 kill 子程序
func (ExecRunner) Run(ctx context.Context, name string, args []string, dir string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}

	exitCode := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = errors.Join(ctxErr, err)
	}

	return &domain.EncodeProcessError{
		Command:  name,
		Args:     append([]string(nil), args...),
		ExitCode: exitCode,
		Stderr:   tail(stderr.Bytes(), maxStderrBytes),
		Err:      err,
	}
}

func tail(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[len(b)-n:])
}
