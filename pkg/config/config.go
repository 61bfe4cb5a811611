package config

import "time"

// TranscodeAPI definition transcode_api YAML structure
type TranscodeAPI struct {
	Port          string `mapstructure:"port"`
	IP            string `mapstructure:"ip"`
	MediaRoot     string `mapstructure:"media_root"`
	UploadLimitMB int    `mapstructure:"upload_limit_mb"`
	// Trigger inline: 本機 worker pool 轉碼, queue: 丟到 RabbitMQ 由 worker 處理
	Trigger string `mapstructure:"trigger"`

	JWT       JWTConfig       `mapstructure:"jwt"`
	Transcode TranscodeConfig `mapstructure:"transcode"`
	Store     StoreConfig     `mapstructure:"store"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RabbitMQ  RabbitMQConfig  `mapstructure:"rabbitmq"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	MinIO     MinIOConfig     `mapstructure:"minio"`
}

// TranscodeWorker definition transcode_worker YAML structure
type TranscodeWorker struct {
	IP         string `mapstructure:"ip"`
	HealthPort string `mapstructure:"health_port"`

	Transcode TranscodeConfig `mapstructure:"transcode"`
	Store     StoreConfig     `mapstructure:"store"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RabbitMQ  RabbitMQConfig  `mapstructure:"rabbitmq"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	MinIO     MinIOConfig     `mapstructure:"minio"`
}

const (
	// TriggerInline run jobs in the api process
	TriggerInline = "inline"
	// TriggerQueue publish jobs to rabbitmq
	TriggerQueue = "queue"

	// StoreMongo default job status store
	StoreMongo = "mongo"
	// StorePostgres gorm job status store
	StorePostgres = "postgres"
)

// TranscodeConfig pipeline setting
type TranscodeConfig struct {
	FFmpegPath    string        `mapstructure:"ffmpeg_path"`
	MediaPrefix   string        `mapstructure:"media_prefix"`
	Workers       int           `mapstructure:"workers"`
	QueueSize     int           `mapstructure:"queue_size"`
	StageTimeout  time.Duration `mapstructure:"stage_timeout"`
	ReportRetries int           `mapstructure:"report_retries"`

	// RecoverInterval inline 模式定期補送 queued 記錄的間隔
	RecoverInterval time.Duration `mapstructure:"recover_interval"`
}

// Normalize fill zero values with defaults
func (t *TranscodeConfig) Normalize() {
	if t.FFmpegPath == "" {
		t.FFmpegPath = "ffmpeg"
	}
	if t.MediaPrefix == "" {
		t.MediaPrefix = "/cdn/hls"
	}
	if t.Workers <= 0 {
		t.Workers = 2
	}
	if t.QueueSize <= 0 {
		t.QueueSize = 64
	}
	if t.ReportRetries <= 0 {
		t.ReportRetries = 5
	}
	if t.RecoverInterval <= 0 {
		t.RecoverInterval = time.Minute
	}
}

// JWTConfig definition jwt setting
type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

// StoreConfig 選擇狀態儲存的資料庫
type StoreConfig struct {
	Driver     string         `mapstructure:"driver"`
	Mongo      DatabaseConfig `mapstructure:"mongo"`
	PostgreSQL DatabaseConfig `mapstructure:"pg"`
}

// DatabaseConfig definition db setting
type DatabaseConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Database      string `mapstructure:"database"`
	RetryInterval int    `mapstructure:"retry_interval"`
	RetryCount    int    `mapstructure:"retry_count"`
}

// RedisConfig definition redis setting
type RedisConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Addr          string        `mapstructure:"addr"`
	MasterName    string        `mapstructure:"master_name"`
	SentinelAddrs []string      `mapstructure:"sentinel_addrs"`
	RedisDB       int           `mapstructure:"redis_db"`
	TTL           time.Duration `mapstructure:"ttl"`
}

// RabbitMQConfig definition rabbitmq setting
type RabbitMQConfig struct {
	IP            string `mapstructure:"ip"`
	Port          string `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Queue         string `mapstructure:"queue"`
	RetryCount    int    `mapstructure:"retry_count"`
	RetryInterval int    `mapstructure:"retry_interval"`
}

// KafkaConfig definition kafka setting
type KafkaConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	Brokers       []string `mapstructure:"brokers"`
	Topic         string   `mapstructure:"topic"`
	RetryCount    int      `mapstructure:"retry_count"`
	RetryInterval int      `mapstructure:"retry_interval"`
}

// MinIOConfig definition minio setting
type MinIOConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	BucketName    string `mapstructure:"bucket_name"`
	UseSSL        bool   `mapstructure:"use_ssl"`
	RetryCount    int    `mapstructure:"retry_count"`
	RetryInterval int    `mapstructure:"retry_interval"`
}
