package config

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	_ "github.com/lib/pq"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/viper"

	"audio-isolator/constant"
)

type Config struct {
	App          App           `yaml:"app"`
	Server       Server        `yaml:"server"`
	Paths        Paths         `yaml:"paths"`
	Store        Store         `yaml:"store"`
	StorageCfg   Storage       `yaml:"storage"`
	MinIO        MinIO         `yaml:"minio"`
	QueueCfg     Queue         `yaml:"queue"`
	Queue        *RabbitMQ     `yaml:"rabbitmq"`
	Capability   Capability    `yaml:"capability"`
	Segmenter    Segmenter     `yaml:"segmenter"`
	Orchestrator Orchestrator  `yaml:"orchestrator"`
	DB           *sql.DB       `yaml:"-"`
	Storage      *minio.Client `yaml:"-"`

	v *viper.Viper
}

type App struct {
	Environment string `yaml:"environment"`
	LogLevel    string `yaml:"log_level"`
}

type Server struct {
	HttpPort string `yaml:"port"`
	Workers  int    `yaml:"workers"`
}

type Paths struct {
	Uploads string `yaml:"uploads"`
	Outputs string `yaml:"outputs"`
}

type Store struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

type Storage struct {
	Driver string `yaml:"driver"`
}

type MinIO struct {
	URL             string `yaml:"url"`
	AccessID        string `yaml:"access_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Bucket          string `yaml:"bucket"`
	Secure          bool   `yaml:"secure"`
}

type Queue struct {
	Enabled bool `yaml:"enabled"`
}

type RabbitMQ struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
	User string `json:"user" yaml:"user"`
	Pass string `json:"pass" yaml:"pass"`
	Kind string `json:"kind" yaml:"kind"`
}

type Capability struct {
	Driver  string        `yaml:"driver"`
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type Segmenter struct {
	Boundary time.Duration `yaml:"boundary"`
	FFmpeg   string        `yaml:"ffmpeg"`
	FFprobe  string        `yaml:"ffprobe"`
}

type Orchestrator struct {
	MaxParallel int `yaml:"max_parallel"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", constant.EnvironmentDevelop.String())
	v.SetDefault("app.log_level", "")
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.workers", 4)
	v.SetDefault("paths.uploads", "uploads")
	v.SetDefault("paths.outputs", "outputs")
	v.SetDefault("store.driver", constant.StoreDriverJSON)
	v.SetDefault("store.path", "mock_db.json")
	v.SetDefault("store.dsn", "")
	v.SetDefault("storage.driver", constant.StorageDriverLocal)
	v.SetDefault("minio.url", "")
	v.SetDefault("minio.access_id", "")
	v.SetDefault("minio.secret_access_key", "")
	v.SetDefault("minio.bucket", "audio-outputs")
	v.SetDefault("minio.secure", false)
	v.SetDefault("queue.enabled", false)
	v.SetDefault("rabbitmq.host", "localhost")
	v.SetDefault("rabbitmq.port", 5672)
	v.SetDefault("rabbitmq.user", "guest")
	v.SetDefault("rabbitmq.pass", "guest")
	v.SetDefault("rabbitmq.kind", "direct")
	v.SetDefault("capability.driver", constant.CapabilityDriverHTTP)
	v.SetDefault("capability.url", "")
	v.SetDefault("capability.timeout", 5*time.Minute)
	v.SetDefault("segmenter.boundary", 29*time.Second)
	v.SetDefault("segmenter.ffmpeg", "ffmpeg")
	v.SetDefault("segmenter.ffprobe", "ffprobe")
	v.SetDefault("orchestrator.max_parallel", 0)
}

// Load reads config.yaml from path when present, applies AUDIO_* environment
// overrides and opens the clients the selected drivers need.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.SetEnvPrefix("AUDIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := decode(v)

	if cfg.Store.Driver == constant.StoreDriverPostgres {
		db, err := sql.Open("postgres", cfg.Store.DSN)
		if err != nil {
			return nil, err
		}
		cfg.DB = db
	}

	if cfg.StorageCfg.Driver == constant.StorageDriverMinio {
		minioClient, err := minio.New(cfg.MinIO.URL, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.MinIO.AccessID, cfg.MinIO.SecretAccessKey, ""),
			Secure: cfg.MinIO.Secure,
		})
		if err != nil {
			return nil, err
		}
		cfg.Storage = minioClient
	}

	return cfg, nil
}

func decode(v *viper.Viper) *Config {
	return &Config{
		App: App{
			Environment: v.GetString("app.environment"),
			LogLevel:    v.GetString("app.log_level"),
		},
		Server: Server{
			HttpPort: v.GetString("server.port"),
			Workers:  v.GetInt("server.workers"),
		},
		Paths: Paths{
			Uploads: v.GetString("paths.uploads"),
			Outputs: v.GetString("paths.outputs"),
		},
		Store: Store{
			Driver: v.GetString("store.driver"),
			Path:   v.GetString("store.path"),
			DSN:    v.GetString("store.dsn"),
		},
		StorageCfg: Storage{
			Driver: v.GetString("storage.driver"),
		},
		MinIO: MinIO{
			URL:             v.GetString("minio.url"),
			AccessID:        v.GetString("minio.access_id"),
			SecretAccessKey: v.GetString("minio.secret_access_key"),
			Bucket:          v.GetString("minio.bucket"),
			Secure:          v.GetBool("minio.secure"),
		},
		QueueCfg: Queue{
			Enabled: v.GetBool("queue.enabled"),
		},
		Queue: &RabbitMQ{
			Host: v.GetString("rabbitmq.host"),
			Port: v.GetInt("rabbitmq.port"),
			User: v.GetString("rabbitmq.user"),
			Pass: v.GetString("rabbitmq.pass"),
			Kind: v.GetString("rabbitmq.kind"),
		},
		Capability: Capability{
			Driver:  v.GetString("capability.driver"),
			URL:     v.GetString("capability.url"),
			Timeout: v.GetDuration("capability.timeout"),
		},
		Segmenter: Segmenter{
			Boundary: v.GetDuration("segmenter.boundary"),
			FFmpeg:   v.GetString("segmenter.ffmpeg"),
			FFprobe:  v.GetString("segmenter.ffprobe"),
		},
		Orchestrator: Orchestrator{
			MaxParallel: v.GetInt("orchestrator.max_parallel"),
		},
		v: v,
	}
}

// Watch calls fn with the re-read App section whenever the config file changes.
// It is a no-op when no config file was found.
func (c *Config) Watch(fn func(app App)) {
	if c.v == nil || c.v.ConfigFileUsed() == "" {
		return
	}
	c.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		fn(App{
			Environment: c.v.GetString("app.environment"),
			LogLevel:    c.v.GetString("app.log_level"),
		})
	})
	c.v.WatchConfig()
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() *Config {
	out := *c
	rmq := *c.Queue
	if rmq.Pass != "" {
		rmq.Pass = "****"
	}
	out.Queue = &rmq
	if out.MinIO.SecretAccessKey != "" {
		out.MinIO.SecretAccessKey = "****"
	}
	if out.Store.DSN != "" {
		out.Store.DSN = "****"
	}
	return &out
}
