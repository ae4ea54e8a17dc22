package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/bookvoice/internal/api"
	"github.com/dgallion1/bookvoice/internal/blobstore"
	"github.com/dgallion1/bookvoice/internal/config"
	"github.com/dgallion1/bookvoice/internal/metrics"
	"github.com/dgallion1/bookvoice/internal/pipeline"
	"github.com/dgallion1/bookvoice/internal/speech"
	"github.com/dgallion1/bookvoice/internal/translate"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	target, err := translate.NormalizeLanguage(cfg.TargetLanguage)
	if err != nil {
		log.Error("invalid target language", "language", cfg.TargetLanguage, "error", err)
		os.Exit(1)
	}
	source := cfg.SourceLanguage
	if source != translate.AutoDetect {
		if source, err = translate.NormalizeLanguage(source); err != nil {
			log.Error("invalid source language", "language", cfg.SourceLanguage, "error", err)
			os.Exit(1)
		}
	}

	for _, dir := range []string{cfg.UploadDir, cfg.CacheDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Error("create directory", "dir", dir, "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New(5 * time.Minute)

	// Translation.
	store, err := translate.OpenFileStore(cfg.TranslationCachePath())
	if err != nil {
		if store == nil {
			log.Error("open translation cache", "path", cfg.TranslationCachePath(), "error", err)
			os.Exit(1)
		}
		log.Warn("translation cache corrupt, starting empty", "path", cfg.TranslationCachePath(), "error", err)
	}
	translateHTTP, err := translate.NewHTTPClient(translate.HTTPConfig{
		Timeout:            cfg.TranslateTimeout,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		Proxy:              cfg.HTTPProxy,
	})
	if err != nil {
		log.Error("translation http client", "error", err)
		os.Exit(1)
	}
	translator := translate.NewClient(
		translate.NewGoogleBackend(cfg.TranslateURL, translateHTTP),
		store,
		translate.Options{
			SourceLanguage: source,
			TargetLanguage: target,
			MaxAttempts:    cfg.TranslateMaxAttempts,
			BaseDelay:      cfg.TranslateBaseDelay,
			ChunkChars:     cfg.TranslateChunkChars,
		},
		log,
		m,
	)

	// Speech and its audio store.
	var audioStore blobstore.Store
	var natsStore *blobstore.NatsStore
	switch cfg.AudioStore {
	case "nats":
		natsStore, err = blobstore.DialNats(cfg.NatsURL, cfg.NatsBucket)
		if err != nil {
			log.Error("connect audio store", "url", cfg.NatsURL, "bucket", cfg.NatsBucket, "error", err)
			os.Exit(1)
		}
		audioStore = natsStore
	default:
		disk, err := blobstore.NewDiskStore(cfg.AudioCacheDir(), ".mp3")
		if err != nil {
			log.Error("open audio store", "dir", cfg.AudioCacheDir(), "error", err)
			os.Exit(1)
		}
		audioStore = disk
	}
	narrator := speech.NewClient(
		speech.NewGoogleBackend(cfg.TTSURL, &http.Client{Timeout: cfg.TTSTimeout}),
		audioStore,
		speech.Options{
			Language:     target,
			MaxAttempts:  cfg.TTSMaxAttempts,
			BaseDelay:    cfg.TTSBaseDelay,
			InitialDelay: cfg.TTSInitialDelay,
		},
		log,
		m,
	)

	// Pipeline.
	prefetcher := pipeline.NewPrefetcher(cfg.PrefetchWorkers, cfg.PrefetchQueueSize, cfg.PrefetchDelay, log, m)
	prefetcher.Start(ctx)

	coordLog := log.With("component", "coordinator")
	sessions := pipeline.NewSessions(cfg.SessionTTL, func() *pipeline.Coordinator {
		return pipeline.NewCoordinator(translator, narrator, prefetcher, pipeline.Options{
			TargetLanguage:    target,
			MaxWordsPerPage:   cfg.MaxWordsPerPage,
			FallbackPdftotext: cfg.PDFFallbackPdftotext,
			PrefetchWindow:    cfg.PrefetchWindow,
		}, coordLog, m)
	}, m)
	sessions.GetOrCreate(pipeline.DefaultSession)
	go sessions.Run(ctx, time.Minute)

	// Initialize HTTP server.
	srv := api.NewServer(sessions, m, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		cancel()
		prefetcher.Stop()
		if natsStore != nil {
			natsStore.Close()
		}
	}()

	log.Info("starting bookvoice",
		"port", cfg.Port,
		"target_language", target,
		"audio_store", cfg.AudioStore,
		"max_words_per_page", cfg.MaxWordsPerPage,
	)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
