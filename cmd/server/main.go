// Package main runs the reel backend HTTP server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-reels/backend/config"
	"github.com/aura-reels/backend/internal/assets"
	"github.com/aura-reels/backend/internal/ffmpeg"
	"github.com/aura-reels/backend/internal/generate"
	"github.com/aura-reels/backend/internal/jobs"
	"github.com/aura-reels/backend/internal/library"
	"github.com/aura-reels/backend/internal/metrics"
	"github.com/aura-reels/backend/internal/middleware"
	"github.com/aura-reels/backend/internal/probe"
	"github.com/aura-reels/backend/internal/providers/chat"
	"github.com/aura-reels/backend/internal/providers/tts"
	"github.com/aura-reels/backend/internal/providers/videogen"
	"github.com/aura-reels/backend/internal/worker"
	"github.com/aura-reels/backend/pkg/queue"
	"github.com/aura-reels/backend/pkg/redis"
	"github.com/aura-reels/backend/pkg/response"
	"github.com/aura-reels/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	for _, dir := range []string{cfg.Media.UploadedVideosDir(), cfg.Media.UploadedAudioDir(), cfg.Media.EditedVideosDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Fatal("create data dir", zap.String("path", dir), zap.Error(err))
		}
	}

	collector := metrics.NewCollector("reels")

	// Media pipeline
	runner := ffmpeg.ExecRunner{}
	prober := probe.NewProber(cfg.Media.FFprobePath, runner, logger)
	transcoder := ffmpeg.NewTranscoder(cfg.Media.FFmpegPath, runner)
	registry := assets.NewRegistry(cfg.Media.UploadedVideosDir(), cfg.Media.UploadedAudioDir(), prober, logger)
	manager := jobs.NewManager(registry, prober, transcoder, cfg.Media.EditedVideosDir(), logger, jobs.WithObserver(collector))

	assetHandler := assets.NewHandler(registry, int64(cfg.Media.MaxUploadMB)<<20, logger)
	jobHandler := jobs.NewHandler(manager, logger)
	libraryHandler := library.NewHandler(library.New(manager, registry))

	// Providers
	chatClient := chat.NewClient(
		chat.Config{APIKey: cfg.Chat.APIKey, BaseURL: cfg.Chat.BaseURL, Model: cfg.Chat.Model},
		chat.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Chat.TimeoutSec) * time.Second}),
	)
	generators := videogen.NewRegistry(cfg.VideoGen.DefaultModel)
	generators.Register(videogen.ModelRunway, videogen.NewRunway(videogen.RunwayConfig{APIKey: cfg.VideoGen.RunwayAPIKey}))
	generators.Register(videogen.ModelLuma, videogen.NewLuma(videogen.LumaConfig{APIKey: cfg.VideoGen.LumaAPIKey}))
	generators.Register(videogen.ModelReplicate, videogen.NewReplicate(videogen.ReplicateConfig{Token: cfg.VideoGen.ReplicateToken}))
	speech := tts.NewClient(tts.Config{APIKey: cfg.Speech.APIKey, VoiceID: cfg.Speech.VoiceID})

	service := generate.NewService(chatClient, generators, speech, registry, logger, generate.WithObserver(collector))
	generateHandler := generate.NewHandler(service, logger)

	// Publishing (optional): completed reels are queued for the worker, which uploads them to S3.
	ctx := context.Background()
	if cfg.PublishingEnabled() {
		rdb, err := redis.NewClient(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()

		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			ReelsBucket:          cfg.AWS.ReelsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
			Endpoint:             cfg.AWS.Endpoint,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		} else {
			jobQueue := queue.NewQueue(rdb.Client, logger)
			manager.OnComplete(worker.PublishOnComplete(jobQueue, logger))
			jobHandler.SetPublisher(worker.NewPublishedURLs(jobQueue, s3Client))
			logger.Info("reel publishing enabled", zap.String("bucket", s3Client.ReelsBucket()))
		}
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Metrics(collector))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(collector.Handler()))

	// Uploads
	router.POST("/upload/video", assetHandler.UploadVideo)
	router.POST("/upload/music", assetHandler.UploadMusic)

	// Edit jobs
	router.POST("/edit/video", jobHandler.Edit)
	router.GET("/reel-status/:job_id", jobHandler.Status)
	router.GET("/reel-status/:job_id/ws", jobHandler.StatusStream)
	router.GET("/download-reel/:job_id", jobHandler.Download)
	router.GET("/reel-url/:job_id", jobHandler.PublishedURL)

	// Library
	router.GET("/list/videos", libraryHandler.List)
	router.GET("/video/metadata/:id", libraryHandler.Metadata)

	// Generation
	router.POST("/generate/video", generateHandler.Video)
	router.POST("/chat", generateHandler.Chat)
	router.POST("/tts", generateHandler.Speech)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	if err := manager.Drain(shutdownCtx); err != nil {
		logger.Warn("edit jobs still running at shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
