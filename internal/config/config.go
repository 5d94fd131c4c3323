// Package config 负责加载和管理应用程序的配置。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Channel       ChannelConfig       `mapstructure:"channel"`
	Monitor       MonitorConfig       `mapstructure:"monitor"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig 存储关系型数据库的配置。Driver 取值 sqlite 或 mysql。
type DatabaseConfig struct {
	Driver    string        `mapstructure:"driver"`
	DSN       string        `mapstructure:"dsn"`
	OpTimeout time.Duration `mapstructure:"op_timeout"`
}

// RedisConfig 存储 Redis 的配置。Addr 为空时不启用设置缓存。
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。Brokers 为空时性能指标直接写库。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。Addresses 为空时消息搜索回退到 SQL。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。Endpoint 为空时不支持会话导出。
type MinIOConfig struct {
	Endpoint        string        `mapstructure:"endpoint"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	UseSSL          bool          `mapstructure:"use_ssl"`
	BucketName      string        `mapstructure:"bucket_name"`
	URLExpiry       time.Duration `mapstructure:"url_expiry"`
}

// ChannelConfig 存储实时通道（WebSocket）的配置。
type ChannelConfig struct {
	ChunkSize     int           `mapstructure:"chunk_size"`
	MaxRetries    int           `mapstructure:"max_retries"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	PingInterval  time.Duration `mapstructure:"ping_interval"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	HandleTimeout time.Duration `mapstructure:"handle_timeout"`
	QueueSize     int           `mapstructure:"queue_size"`
	ReplyDelay    time.Duration `mapstructure:"reply_delay"`
}

// MonitorConfig 存储指标采集的配置。
type MonitorConfig struct {
	SampleInterval  time.Duration `mapstructure:"sample_interval"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	Window          time.Duration `mapstructure:"window"`
}

// envBindings 为常用配置项提供不带前缀的环境变量名。
var envBindings = map[string]string{
	"server.port":             "PORT",
	"server.mode":             "GIN_MODE",
	"database.driver":         "DATABASE_DRIVER",
	"database.dsn":            "DATABASE_DSN",
	"log.level":               "LOG_LEVEL",
	"log.format":              "LOG_FORMAT",
	"redis.addr":              "REDIS_ADDR",
	"redis.password":          "REDIS_PASSWORD",
	"kafka.brokers":           "KAFKA_BROKERS",
	"elasticsearch.addresses": "ELASTICSEARCH_ADDRESSES",
	"minio.endpoint":          "MINIO_ENDPOINT",
	"minio.access_key_id":     "MINIO_ACCESS_KEY_ID",
	"minio.secret_access_key": "MINIO_SECRET_ACCESS_KEY",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "3001")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.shutdown_timeout", 5*time.Second)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "dashboard.db")
	v.SetDefault("database.op_timeout", 5*time.Second)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 10*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output_path", "")

	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.topic", "performance-metrics")
	v.SetDefault("kafka.group_id", "pai-dashboard-go-consumer")

	v.SetDefault("elasticsearch.addresses", "")
	v.SetDefault("elasticsearch.username", "")
	v.SetDefault("elasticsearch.password", "")
	v.SetDefault("elasticsearch.index_name", "chat_messages")

	v.SetDefault("minio.endpoint", "")
	v.SetDefault("minio.access_key_id", "")
	v.SetDefault("minio.secret_access_key", "")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket_name", "conversation-exports")
	v.SetDefault("minio.url_expiry", time.Hour)

	v.SetDefault("channel.chunk_size", 1024)
	v.SetDefault("channel.max_retries", 3)
	v.SetDefault("channel.retry_delay", time.Second)
	v.SetDefault("channel.ping_interval", 30*time.Second)
	v.SetDefault("channel.write_timeout", 10*time.Second)
	v.SetDefault("channel.handle_timeout", 30*time.Second)
	v.SetDefault("channel.queue_size", 256)
	v.SetDefault("channel.reply_delay", 100*time.Millisecond)

	v.SetDefault("monitor.sample_interval", 2*time.Second)
	v.SetDefault("monitor.cleanup_interval", time.Minute)
	v.SetDefault("monitor.window", 5*time.Minute)
}

// Load 读取 .env、可选的 YAML 配置文件以及环境变量，返回合并后的配置。
// configPath 为空或文件不存在时只使用默认值与环境变量。
func Load(configPath string) (*Config, error) {
	// .env 不存在是正常情况
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("绑定环境变量 %s 失败: %w", env, err)
		}
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("读取配置文件失败: %w", err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("检查配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("不支持的数据库驱动: %q", c.Database.Driver)
	}
	if c.Channel.ChunkSize <= 0 {
		return fmt.Errorf("channel.chunk_size 必须为正数")
	}
	if c.Channel.MaxRetries < 0 {
		return fmt.Errorf("channel.max_retries 不能为负数")
	}
	if c.Channel.QueueSize <= 0 {
		return fmt.Errorf("channel.queue_size 必须为正数")
	}
	return nil
}
