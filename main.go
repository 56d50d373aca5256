package main

import (
	"image/color"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"reelsmith-server/compositor"
	"reelsmith-server/config"
	"reelsmith-server/models"
	"reelsmith-server/routers"
	"reelsmith-server/routers/api"
	"reelsmith-server/service"
)

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if err := config.InitConfig(); err != nil {
		log.Fatal("load config", zap.Error(err))
	}
	cfg := config.AppConfig

	db, err := models.InitDB(cfg.MySQL.DSN)
	if err != nil {
		log.Fatal("init database", zap.Error(err))
	}
	store := models.NewStore(db)

	storage, err := service.NewStorage(cfg, log.Named("storage"))
	if err != nil {
		log.Fatal("init object storage", zap.Error(err))
	}
	queue := service.NewQueue(cfg, log.Named("queue"))
	defer queue.Close()

	syncClient := service.NewSyncClient(cfg.Providers.Sync.Addr, cfg.Providers.Sync.APIKey)
	asyncClient := service.NewAsyncClient(cfg.Providers.Async.Addr, cfg.Providers.Async.APIKey)

	pollInterval := time.Duration(cfg.Providers.PollIntervalSeconds) * time.Second
	poller := service.NewPoller(store, asyncClient, pollInterval, log.Named("poller"))
	if err := poller.Resume(""); err != nil {
		log.Fatal("resume pending tasks", zap.Error(err))
	}
	defer poller.StopAll()

	// Sweep for tasks the poller is not tracking, such as rows written
	// by another instance that has since gone away.
	sweeper := cron.New()
	if _, err := sweeper.AddFunc("@every 1m", func() {
		if err := poller.Resume(""); err != nil {
			log.Warn("pending task sweep", zap.Error(err))
		}
	}); err != nil {
		log.Fatal("schedule task sweep", zap.Error(err))
	}
	sweeper.Start()
	defer sweeper.Stop()

	dispatcher := service.NewDispatcher(
		store, syncClient, asyncClient, storage, poller,
		pollInterval,
		time.Duration(cfg.Providers.SyncTimeoutMinutes)*time.Minute,
		log.Named("dispatcher"),
	)

	tools := &compositor.Tools{
		FFmpegPath:   cfg.Compositor.FFmpegPath,
		FFprobePath:  cfg.Compositor.FFprobePath,
		WorkDir:      cfg.Compositor.WorkDir,
		FrameRate:    cfg.Compositor.FrameRate,
		VideoBitrate: cfg.Compositor.VideoBitrate,
		AudioBitrate: cfg.Compositor.AudioBitrate,
		Log:          log.Named("ffmpeg"),
	}
	fetcher := compositor.NewHTTPFetcher(storage.Open)
	composer := &compositor.Compositor{
		Surfaces:  compositor.NewImageSurfaceFactory(),
		Recorders: tools.NewRecorderFactory(),
		Fetcher:   fetcher,
		Clips:     tools.NewClipLoader(fetcher),
		Decoder:   tools.NewAudioDecoder(),
		Clock:     compositor.NewFrameClock(cfg.Compositor.FrameRate),
		Output: compositor.Output{
			FrameRate:  cfg.Compositor.FrameRate,
			SampleRate: 44100,
			Background: color.Black,
		},
		Log: log.Named("compositor"),
	}

	processor := service.NewProcessor(cfg, store, dispatcher, composer, storage, log.Named("processor"))
	if err := processor.Start(); err != nil {
		log.Fatal("start job processor", zap.Error(err))
	}
	defer processor.Shutdown()

	handler := api.NewHandler(store, queue, storage, poller, log.Named("api"))
	router := routers.InitRouter(handler)

	errCh := make(chan error, 1)
	go func() {
		errCh <- router.Run(":" + cfg.Server.Port)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		log.Error("http server stopped", zap.Error(err))
	case sig := <-quit:
		log.Info("shutting down", zap.String("signal", sig.String()))
	}
}
