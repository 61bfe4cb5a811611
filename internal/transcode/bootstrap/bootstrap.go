// Package bootstrap 連線外部服務並組裝轉碼 pipeline，api 與 worker 共用
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"episode_transcode_service/internal/transcode/app"
	"episode_transcode_service/internal/transcode/domain"
	"episode_transcode_service/internal/transcode/repository"
	"episode_transcode_service/pkg/config"
	"episode_transcode_service/pkg/database"
	"episode_transcode_service/pkg/logger"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Closer 釋放資源
type Closer func(ctx context.Context)

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// OpenStore 依 store.driver 建立 job status store
func OpenStore(ctx context.Context, cfg config.StoreConfig) (repository.EpisodeRepo, Closer, error) {
	switch cfg.Driver {
	case "", config.StoreMongo:
		m := cfg.Mongo
		mongoDB, err := database.NewMongoDB(ctx, database.Connection{
			ConnectStr:    database.MongoURI(m.Host, m.Port, m.User, m.Password),
			RetryCount:    m.RetryCount,
			RetryInterval: seconds(m.RetryInterval),
		}, m.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		if err := repository.EnsureEpisodeIndexes(ctx, mongoDB.Database); err != nil {
			logger.Log.Warn("create episode indexes failed", zap.Error(err))
		}
		return repository.NewEpisodeMongoRepo(mongoDB.Database), func(ctx context.Context) {
			if err := mongoDB.Close(ctx); err != nil {
				logger.Log.Warn("close mongo failed", zap.Error(err))
			}
		}, nil

	case config.StorePostgres:
		p := cfg.PostgreSQL
		db, err := database.NewPGConnection(database.Connection{
			ConnectStr:    database.PostgresDSN(p.Host, p.Port, p.User, p.Password, p.Database),
			RetryCount:    p.RetryCount,
			RetryInterval: seconds(p.RetryInterval),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := repository.MigrateEpisode(db); err != nil {
			return nil, nil, fmt.Errorf("migrate episodes: %w", err)
		}
		return repository.NewEpisodeGormRepo(db), func(context.Context) {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

// OpenStatusCache redis 未啟用時回傳 nil
func OpenStatusCache(ctx context.Context, cfg config.RedisConfig) (*repository.StatusCache, Closer, error) {
	if !cfg.Enabled {
		return nil, func(context.Context) {}, nil
	}
	client, err := database.NewRedisClient(ctx, database.RedisConnection{
		Addr:          cfg.Addr,
		MasterName:    cfg.MasterName,
		SentinelAddrs: cfg.SentinelAddrs,
		DB:            cfg.RedisDB,
	})
	if err != nil {
		return nil, nil, err
	}
	cache := repository.NewStatusCache(database.NewRedisRepository[domain.StatusUpdate](client), cfg.TTL)
	return cache, func(context.Context) { _ = client.Close() }, nil
}

// OpenEventWriter kafka 未啟用時回傳 nil
func OpenEventWriter(cfg config.KafkaConfig) (*kafka.Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	return database.NewKafkaWriterWithRetry(database.KafkaConnection{
		Brokers:       cfg.Brokers,
		Topic:         cfg.Topic,
		RetryCount:    cfg.RetryCount,
		RetryInterval: seconds(cfg.RetryInterval),
	})
}

// NewEventReader api 在 queue 模式下讀取 worker 發出的狀態事件
func NewEventReader(cfg config.KafkaConfig, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Brokers,
		Topic:   cfg.Topic,
		GroupID: groupID,
	})
}

// OpenMirror minio 未啟用時回傳 nil
func OpenMirror(cfg config.MinIOConfig) (app.ArtifactMirror, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	client, err := database.NewMinIOConnection(database.MinIOConnection{
		Endpoint:      fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		User:          cfg.User,
		Password:      cfg.Password,
		BucketName:    cfg.BucketName,
		UseSSL:        cfg.UseSSL,
		RetryCount:    cfg.RetryCount,
		RetryInterval: seconds(cfg.RetryInterval),
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

// PipelineDeps 組裝 pipeline 需要的外部資源，除 Store 外皆可為 nil
type PipelineDeps struct {
	Store       repository.EpisodeRepo
	Cache       *repository.StatusCache
	EventWriter app.KafkaWriter
	Mirror      app.ArtifactMirror
	Hub         *app.StatusHub
}

// NewJobRunner 建立 encoder → orchestrator → reporter → claim guard
func NewJobRunner(cfg config.TranscodeConfig, deps PipelineDeps) *app.JobRunner {
	encoder := app.NewRenditionEncoder(cfg.FFmpegPath, app.NewExecRunner(), cfg.StageTimeout)
	orchestrator := app.NewOrchestrator(app.OrchestratorConfig{
		Encoder:     encoder,
		Manifest:    app.NewManifestWriter(),
		Profiles:    domain.DefaultProfiles(),
		MediaPrefix: cfg.MediaPrefix,
		Mirror:      deps.Mirror,
	})

	var followers []app.StatusReporter
	if deps.Cache != nil {
		followers = append(followers, deps.Cache)
	}
	if deps.EventWriter != nil {
		followers = append(followers, app.NewEventReporter(deps.EventWriter))
	}
	if deps.Hub != nil {
		followers = append(followers, deps.Hub)
	}
	reporter := app.NewFanoutReporter(app.NewStoreReporter(deps.Store, cfg.ReportRetries), followers...)

	return app.NewJobRunner(orchestrator, deps.Store, reporter)
}
