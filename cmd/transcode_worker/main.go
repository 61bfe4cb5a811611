package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"episode_transcode_service/internal/transcode/app"
	"episode_transcode_service/internal/transcode/bootstrap"
	"episode_transcode_service/pkg/config"
	"episode_transcode_service/pkg/database"
	"episode_transcode_service/pkg/logger"
	testtool "episode_transcode_service/pkg/test_tool"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.TranscodeWorker, config.EnvConfig.TranscodeWorkerLogPath)
	defer logger.Log.Sync()

	cfg, err := config.LoadConfig[config.TranscodeWorker](config.EnvConfig.TranscodeWorker, config.EnvConfig.TranscodeWorkerYAMLPath)
	if err != nil {
		logger.Log.Fatal("load config failed", zap.Error(err))
	}
	cfg.Transcode.Normalize()
	logger.Log.SetDebugMode(!config.IsProduction())
	testtool.StartPprof(":6061")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. job status store
	store, closeStore, err := bootstrap.OpenStore(ctx, cfg.Store)
	if err != nil {
		logger.Log.Fatal("Unable to open job status store", zap.Error(err))
	}
	defer closeStore(context.Background())

	deps := bootstrap.PipelineDeps{Store: store}

	cache, closeCache, err := bootstrap.OpenStatusCache(ctx, cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Unable to connect to redis", zap.Error(err))
	}
	defer closeCache(context.Background())
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

	// 2. RabbitMQ
	conn, err := database.ConnectRabbitMQWithRetry(database.Connection{
		ConnectStr:    database.RabbitURL(cfg.RabbitMQ.User, cfg.RabbitMQ.Password, cfg.RabbitMQ.IP, cfg.RabbitMQ.Port),
		RetryCount:    cfg.RabbitMQ.RetryCount,
		RetryInterval: time.Duration(cfg.RabbitMQ.RetryInterval) * time.Second,
	})
	if err != nil {
		logger.Log.Fatal("RabbitMQ 連線失敗", zap.Error(err))
	}
	defer conn.Close()

	rabbitChannel, err := database.GetRabbitMQChannelWithRetry(conn, cfg.RabbitMQ.RetryCount, time.Duration(cfg.RabbitMQ.RetryInterval)*time.Second)
	if err != nil {
		logger.Log.Fatal("取得 RabbitMQ Channel 失敗", zap.Error(err))
	}
	defer rabbitChannel.Close()

	if err := database.DeclareDurableQueue(rabbitChannel, cfg.RabbitMQ.Queue); err != nil {
		logger.Log.Fatal("Queue Declare failed", zap.Error(err))
	}

	consumer := app.NewConsumer(
		rabbitChannel,
		bootstrap.NewJobRunner(cfg.Transcode, deps),
		cfg.RabbitMQ.Queue,
		cfg.Transcode.Workers,
	)

	// 3. gRPC health
	lis, err := net.Listen("tcp", fmt.Sprintf("%s:%s", cfg.IP, cfg.HealthPort))
	if err != nil {
		logger.Log.Fatal(fmt.Sprintf("Failed to listen Port(%s): ", cfg.HealthPort), zap.Error(err))
	}
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Log.Info("transcode worker health listening", zap.String("port", cfg.HealthPort))
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		defer healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		if err := consumer.StartConsumer(gctx); err != nil {
			return err
		}
		// delivery channel 關閉時也要結束整個程序
		return errors.New("transcode consumer stopped")
	})
	g.Go(func() error {
		<-gctx.Done()
		grpcServer.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Log.Error("transcode worker stopped with error", zap.Error(err))
	}
	logger.Log.Info("transcode worker stopped")
}
