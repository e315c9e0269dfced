package models

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Server     ServerConfig    `yaml:"server"`
	Database   DatabaseConfig  `yaml:"database"`
	Storage    StorageConfig   `yaml:"storage"`
	MQTT       MQTTConfig      `yaml:"mqtt"`
	Kafka      KafkaConfig     `yaml:"kafka"`
	Thumbnails ThumbnailConfig `yaml:"thumbnails"`
	Log        LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Addr           string        `yaml:"addr" env:"SERVER_ADDR" env-default:":5000"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes" env:"SERVER_MAX_UPLOAD_BYTES" env-default:"33554432"`
	ReadTimeout    time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT" env-default:"30s"`
	WriteTimeout   time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT" env-default:"30s"`
}

type DatabaseConfig struct {
	URL          string        `yaml:"url" env:"DATABASE_URL"`
	QueryTimeout time.Duration `yaml:"query_timeout" env:"DATABASE_QUERY_TIMEOUT" env-default:"5s"`
}

type StorageConfig struct {
	Backend      string   `yaml:"backend" env:"STORAGE_BACKEND" env-default:"local"`
	Root         string   `yaml:"root" env:"STORAGE_ROOT" env-default:"./saved_images"`
	PublicPrefix string   `yaml:"public_prefix" env:"STORAGE_PUBLIC_PREFIX" env-default:"saved_images"`
	S3           S3Config `yaml:"s3"`
}

type S3Config struct {
	Bucket          string `yaml:"bucket" env:"S3_BUCKET"`
	Region          string `yaml:"region" env:"S3_REGION" env-default:"us-east-1"`
	Endpoint        string `yaml:"endpoint" env:"S3_ENDPOINT"`
	AccessKeyID     string `yaml:"access_key_id" env:"S3_ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" env:"S3_SECRET_ACCESS_KEY"`
	UsePathStyle    bool   `yaml:"use_path_style" env:"S3_USE_PATH_STYLE"`
	CreateBucket    bool   `yaml:"create_bucket" env:"S3_CREATE_BUCKET"`
}

type MQTTConfig struct {
	Broker         string        `yaml:"broker" env:"MQTT_BROKER" env-default:"tcp://localhost:1883"`
	ClientIDPrefix string        `yaml:"client_id_prefix" env:"MQTT_CLIENT_ID_PREFIX" env-default:"handsign"`
	Username       string        `yaml:"username" env:"MQTT_USERNAME"`
	Password       string        `yaml:"password" env:"MQTT_PASSWORD"`
	TopicPrefix    string        `yaml:"topic_prefix" env:"MQTT_TOPIC_PREFIX" env-default:"hand_sign/translation"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"MQTT_CONNECT_TIMEOUT" env-default:"10s"`
	PublishTimeout time.Duration `yaml:"publish_timeout" env:"MQTT_PUBLISH_TIMEOUT" env-default:"5s"`
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled" env:"KAFKA_ENABLED"`
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	GroupID string   `yaml:"group_id" env:"KAFKA_GROUP_ID" env-default:"handsign-thumbnails"`
}

type ThumbnailConfig struct {
	Enabled bool `yaml:"enabled" env:"THUMBNAILS_ENABLED"`
	Size    int  `yaml:"size" env:"THUMBNAILS_SIZE" env-default:"160"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"text"`
}

// TextTopic carries the bare predicted label.
func (c MQTTConfig) TextTopic() string { return c.TopicPrefix }

// JSONTopic carries the serialized TranslationEvent.
func (c MQTTConfig) JSONTopic() string { return c.TopicPrefix + "/json" }

// WildcardTopic matches both forms.
func (c MQTTConfig) WildcardTopic() string { return c.TopicPrefix + "/#" }

// LoadConfig reads the YAML file (skipped when file is empty), then
// applies environment overrides and defaults for fields still unset.
func LoadConfig(file string) (*Config, error) {
	const op = "models.LoadConfig"

	var cfg Config
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	switch c.Storage.Backend {
	case "local":
		if c.Storage.Root == "" {
			errs = append(errs, errors.New("storage.root is required for the local backend"))
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			errs = append(errs, errors.New("storage.s3.bucket is required for the s3 backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.backend %q", c.Storage.Backend))
	}
	prefix := strings.Trim(c.Storage.PublicPrefix, "/")
	if prefix == "" || path.Clean(prefix) != prefix || strings.HasPrefix(prefix, "..") {
		errs = append(errs, fmt.Errorf("invalid storage.public_prefix %q", c.Storage.PublicPrefix))
	}
	c.Storage.PublicPrefix = prefix
	if c.MQTT.Broker == "" {
		errs = append(errs, errors.New("mqtt.broker is required"))
	}
	if c.MQTT.TopicPrefix == "" || strings.ContainsAny(c.MQTT.TopicPrefix, "#+") {
		errs = append(errs, fmt.Errorf("invalid mqtt.topic_prefix %q", c.MQTT.TopicPrefix))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers is required when kafka is enabled"))
	}
	if c.Thumbnails.Enabled && !c.Kafka.Enabled {
		errs = append(errs, errors.New("thumbnails require kafka to be enabled"))
	}
	if c.Thumbnails.Size <= 0 {
		errs = append(errs, fmt.Errorf("invalid thumbnails.size %d", c.Thumbnails.Size))
	}
	return errors.Join(errs...)
}
