package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"episode_transcode_service/internal/transcode/app"
	"episode_transcode_service/internal/transcode/bootstrap"
	"episode_transcode_service/internal/transcode/router"
	"episode_transcode_service/pkg/config"
	"episode_transcode_service/pkg/database"
	"episode_transcode_service/pkg/logger"
	testtool "episode_transcode_service/pkg/test_tool"

	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.TranscodeAPI, config.EnvConfig.TranscodeAPILogPath)
	defer logger.Log.Sync()

	cfg, err := config.LoadConfig[config.TranscodeAPI](config.EnvConfig.TranscodeAPI, config.EnvConfig.TranscodeAPIYAMLPath)
	if err != nil {
		logger.Log.Fatal("load config failed", zap.Error(err))
	}
	cfg.Transcode.Normalize()
	if cfg.MediaRoot == "" {
		cfg.MediaRoot = "./media"
	}
	if cfg.UploadLimitMB <= 0 {
		cfg.UploadLimitMB = 1500
	}
	logger.Log.SetDebugMode(!config.IsProduction())
	testtool.StartPprof("")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. job status store
	store, closeStore, err := bootstrap.OpenStore(ctx, cfg.Store)
	if err != nil {
		logger.Log.Fatal("Unable to open job status store", zap.Error(err))
	}
	defer closeStore(context.Background())

	// 2. redis 狀態快取 (可選)
	cache, closeCache, err := bootstrap.OpenStatusCache(ctx, cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Unable to connect to redis", zap.Error(err))
	}
	defer closeCache(context.Background())

	hub := app.NewStatusHub()
	g, gctx := errgroup.WithContext(ctx)

	// 3. 轉碼觸發方式
	var dispatcher app.Dispatcher
	var pool *app.Pool
	switch cfg.Trigger {
	case config.TriggerQueue:
		conn, err := database.ConnectRabbitMQWithRetry(database.Connection{
			ConnectStr:    database.RabbitURL(cfg.RabbitMQ.User, cfg.RabbitMQ.Password, cfg.RabbitMQ.IP, cfg.RabbitMQ.Port),
			RetryCount:    cfg.RabbitMQ.RetryCount,
			RetryInterval: time.Duration(cfg.RabbitMQ.RetryInterval) * time.Second,
		})
		if err != nil {
			logger.Log.Fatal("RabbitMQ 連線失敗", zap.Error(err))
		}
		defer conn.Close()

		ch, err := database.GetRabbitMQChannelWithRetry(conn, cfg.RabbitMQ.RetryCount, time.Duration(cfg.RabbitMQ.RetryInterval)*time.Second)
		if err != nil {
			logger.Log.Fatal("取得 RabbitMQ Channel 失敗", zap.Error(err))
		}
		defer ch.Close()

		if err := database.DeclareDurableQueue(ch, cfg.RabbitMQ.Queue); err != nil {
			logger.Log.Fatal("Queue Declare failed", zap.Error(err))
		}
		dispatcher = app.NewQueuePublisher(database.NewRabbitRepository(ch), cfg.RabbitMQ.Queue)

		// worker 的狀態事件經由 kafka 回到 websocket
		if cfg.Kafka.Enabled {
			listener := app.NewEventListener(bootstrap.NewEventReader(cfg.Kafka, config.EnvConfig.TranscodeAPI), hub)
			g.Go(func() error { return listener.Listen(gctx) })
		}

	default:
		deps := bootstrap.PipelineDeps{Store: store, Hub: hub}
		if cache != nil {
			deps.Cache = cache
		}
		writer, err := bootstrap.OpenEventWriter(cfg.Kafka)
		if err != nil {
			logger.Log.Fatal("Kafka Writer 建立失敗", zap.Error(err))
		}
		if writer != nil {
			defer writer.Close()
			deps.EventWriter = writer
		}
		if deps.Mirror, err = bootstrap.OpenMirror(cfg.MinIO); err != nil {
			logger.Log.Fatal("Unable to connect to minio", zap.Error(err))
		}

		pool = app.NewPool(app.PoolConfig{
			Workers:   cfg.Transcode.Workers,
			QueueSize: cfg.Transcode.QueueSize,
			Handler:   bootstrap.NewJobRunner(cfg.Transcode, deps),
		})
		pool.Start()
		dispatcher = pool
	}

	ucCfg := app.UseCaseConfig{
		Repo:       store,
		Dispatcher: dispatcher,
		MediaRoot:  cfg.MediaRoot,
	}
	if cache != nil {
		ucCfg.Cache = cache
	}
	usecase := app.NewTranscodeUseCase(ucCfg)

	if n, err := usecase.RecoverQueued(ctx); err != nil {
		logger.Log.Warn("recover queued episodes failed", zap.Error(err))
	} else if n > 0 {
		logger.Log.Info("recovered queued episodes", zap.Int("count", n))
	}
	// inline 模式下 pool 會擋掉重複 id，定期補送 queue 滿時留下的 queued 記錄
	if pool != nil {
		g.Go(func() error {
			app.RunRecoveryLoop(gctx, usecase, cfg.Transcode.RecoverInterval)
			return nil
		})
	}

	// 4. Fiber
	r := fiber.New(fiber.Config{
		BodyLimit: cfg.UploadLimitMB * 1024 * 1024,
	})
	accessLog, err := os.OpenFile(filepath.Join(config.EnvConfig.TranscodeAPILogPath, "access.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		logger.Log.Fatal("Failed to open access log", zap.Error(err))
	}
	defer accessLog.Close()
	r.Use(fiber_log.New(fiber_log.Config{Output: accessLog}))

	router.RegisterRoutes(r,
		app.NewTranscodeHandler(usecase),
		app.NewStatusWebsocketHandler(hub),
		[]byte(cfg.JWT.Secret),
		cfg.MediaRoot,
	)

	g.Go(func() error {
		addr := fmt.Sprintf("%s:%s", cfg.IP, cfg.Port)
		logger.Log.Info("transcode api listening", zap.String("addr", addr), zap.String("trigger", cfg.Trigger))
		return r.Listen(addr)
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := r.ShutdownWithContext(shutdownCtx)
		if pool != nil {
			err = errors.Join(err, pool.Shutdown(shutdownCtx))
		}
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Log.Error("transcode api stopped with error", zap.Error(err))
	}
	logger.Log.Info("transcode api stopped")
}
