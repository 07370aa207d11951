package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"audio-isolator/config"
	"audio-isolator/constant"
	jobHandler "audio-isolator/handler"
	"audio-isolator/pkg/capability"
	"audio-isolator/pkg/rabbitmq"
	"audio-isolator/pkg/segmenter"
	"audio-isolator/pkg/storage"
	"audio-isolator/repository"
	"audio-isolator/service"
)

func RunHttp(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(setupLogger(cfg), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Bool("isProduction", cfg.App.Environment == constant.EnvironmentProduction.String()).Send()
	if cfg.App.Environment == constant.EnvironmentProduction.String() {
		gin.SetMode(gin.ReleaseMode)
	}
	cfg.Watch(func(app config.App) {
		applyLogLevel(app)
		zerolog.Ctx(ctx).Info().Str("level", zerolog.GlobalLevel().String()).Msg("config reloaded")
	})

	for _, dir := range []string{cfg.Paths.Uploads, cfg.Paths.Outputs} {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return err
		}
	}

	repo, err := newRepository(cfg)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("driver", cfg.Store.Driver).Msg("failed to open job store")
		return err
	}
	defer repo.Close()

	publisher, err := newPublisher(ctx, cfg)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("driver", cfg.StorageCfg.Driver).Msg("failed to set up artifact storage")
		return err
	}

	processor, err := newCapability(ctx, cfg)
	if err != nil {
		return err
	}

	seg := segmenter.New(cfg.Segmenter.FFmpeg, cfg.Segmenter.FFprobe, cfg.Segmenter.Boundary)
	orchestrator := service.NewOrchestrator(repo, seg, processor, publisher, service.Options{
		UploadsDir:        cfg.Paths.Uploads,
		OutputsDir:        cfg.Paths.Outputs,
		CapabilityTimeout: cfg.Capability.Timeout,
		MaxParallel:       cfg.Orchestrator.MaxParallel,
	})

	var dispatcher service.Dispatcher
	if cfg.QueueCfg.Enabled {
		dispatcher, err = startQueue(ctx, cfg, orchestrator)
		if err != nil {
			return err
		}
	} else {
		if err := orchestrator.Recover(ctx); err != nil {
			return err
		}
		dispatcher = service.NewLocalDispatcher(ctx, orchestrator)
	}
	defer func() {
		if err := dispatcher.Close(); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("failed to close dispatcher")
		}
	}()

	r := gin.New()
	r.Use(gin.Recovery(), jobHandler.Logger(*zerolog.Ctx(ctx)))
	addHealth(r)
	r.Static("/uploads", cfg.Paths.Uploads)
	if cfg.StorageCfg.Driver != constant.StorageDriverMinio {
		r.Static("/outputs", cfg.Paths.Outputs)
	}
	jobHandler.NewJobHandler(
		service.NewJobService(repo, dispatcher, cfg.Paths.Uploads),
		service.NewQueryService(repo),
	).Register(r)

	handler := http.Server{
		Handler:           r,
		Addr:              fmt.Sprintf(":%s", cfg.Server.HttpPort),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Str("port", cfg.Server.HttpPort).Msg("start http server")
		if err := handler.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Msg(err.Error())
			cancel()
		}
	}()

	<-ctx.Done()
	zerolog.Ctx(ctx).Info().Msg("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer shutdownCancel()
	if err := handler.Shutdown(shutdownCtx); err != nil {
		zerolog.Ctx(ctx).Error().Str("env", cfg.App.Environment).Msg(err.Error())
	}

	zerolog.Ctx(ctx).Info().Str("env", cfg.App.Environment).Msg("server shutdown")
	return nil
}

// startQueue publishes accepted jobs to RabbitMQ and starts one consumer pool
// per job type.
func startQueue(ctx context.Context, cfg *config.Config, orchestrator service.Orchestrator) (service.Dispatcher, error) {
	conn, err := config.NewRabbitMQConn(ctx, cfg.Queue)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("NewRabbitMQConn")
		return nil, err
	}

	publisher, err := rabbitmq.NewPublisher(conn, cfg.Queue)
	if err != nil {
		return nil, err
	}

	deps := jobHandler.ServiceDependencies{Orchestrator: orchestrator}

	ingestConsumer := rabbitmq.NewConsumer(conn, cfg.Queue, rabbitmq.IngestTopology, cfg.Server.Workers, jobHandler.IngestHandler)
	go func() {
		if err := ingestConsumer.Consume(ctx, deps); err != nil && !errors.Is(err, context.Canceled) {
			zerolog.Ctx(ctx).Error().Err(err).Msg("ingest consumer error")
		}
	}()

	transformConsumer := rabbitmq.NewConsumer(conn, cfg.Queue, rabbitmq.TransformTopology, cfg.Server.Workers, jobHandler.TransformHandler)
	go func() {
		if err := transformConsumer.Consume(ctx, deps); err != nil && !errors.Is(err, context.Canceled) {
			zerolog.Ctx(ctx).Error().Err(err).Msg("transform consumer error")
		}
	}()

	return service.NewQueueDispatcher(publisher), nil
}

func newRepository(cfg *config.Config) (repository.JobRepository, error) {
	switch cfg.Store.Driver {
	case constant.StoreDriverJSON:
		return repository.NewJSONStore(cfg.Store.Path), nil
	case constant.StoreDriverPostgres:
		return repository.NewRepo(cfg.DB)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func newPublisher(ctx context.Context, cfg *config.Config) (storage.Publisher, error) {
	switch cfg.StorageCfg.Driver {
	case constant.StorageDriverLocal:
		return storage.NewLocal(cfg.Paths.Outputs, "/outputs"), nil
	case constant.StorageDriverMinio:
		if err := storage.EnsureBucket(ctx, cfg.Storage, cfg.MinIO.Bucket); err != nil {
			return nil, err
		}
		return storage.NewMinio(cfg.Storage, cfg.MinIO.Bucket), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageCfg.Driver)
	}
}

func newCapability(ctx context.Context, cfg *config.Config) (capability.Capability, error) {
	switch cfg.Capability.Driver {
	case constant.CapabilityDriverHTTP:
		if cfg.Capability.URL == "" {
			return nil, errors.New("capability.url is required for the http driver")
		}
		return capability.NewHTTP(cfg.Capability.URL, cfg.Capability.Timeout), nil
	case constant.CapabilityDriverFake:
		zerolog.Ctx(ctx).Warn().Msg("fake capability driver active, chunks are copied instead of processed")
		return capability.NewFake(), nil
	default:
		return nil, fmt.Errorf("unknown capability driver %q", cfg.Capability.Driver)
	}
}

func addHealth(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})
}

func setupLogger(cfg *config.Config) context.Context {
	applyLogLevel(cfg.App)

	// Log to standard output
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	ctx := logger.WithContext(context.Background())

	return ctx
}

// applyLogLevel picks info, or debug in develop, unless log_level names a level.
func applyLogLevel(app config.App) {
	level := zerolog.InfoLevel
	if app.Environment == constant.EnvironmentDevelop.String() {
		level = zerolog.DebugLevel
	}
	if app.LogLevel != "" {
		if parsed, err := zerolog.ParseLevel(app.LogLevel); err == nil {
			level = parsed
		}
	}
	zerolog.SetGlobalLevel(level)
}
