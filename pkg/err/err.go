package errprocess

import (
	"errors"
	"fmt"

	"episode_transcode_service/pkg/logger"

	"go.uber.org/zap"
)

// Set set err info
func Set(errMsg string) error {
	logger.Log.Error(errMsg)
	return errors.New(errMsg)
}

// Wrap 記錄錯誤並保留原始 error，讓上層可以 errors.As / errors.Is
func Wrap(errMsg string, err error) error {
	logger.Log.Error(errMsg, zap.Error(err))
	return fmt.Errorf("%s : %w", errMsg, err)
}
