package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/voiceback/voiceback/internal/audio"
	"github.com/voiceback/voiceback/internal/audioref"
	"github.com/voiceback/voiceback/internal/catalog"
	"github.com/voiceback/voiceback/internal/config"
	"github.com/voiceback/voiceback/internal/health"
	"github.com/voiceback/voiceback/internal/httpapi"
	"github.com/voiceback/voiceback/internal/identity"
	"github.com/voiceback/voiceback/internal/notify"
	"github.com/voiceback/voiceback/internal/observability"
	"github.com/voiceback/voiceback/internal/pipeline"
	"github.com/voiceback/voiceback/internal/store"
	"github.com/voiceback/voiceback/internal/voice"
	"github.com/voiceback/voiceback/internal/voicelog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	notifier := notify.NewLogNotifier()
	users := identity.NewStaticProvider(cfg.UserID, cfg.UserEmail)

	ctx := context.Background()
	recordStore, err := store.New(ctx, cfg.DatabaseURL, cfg.LogCollection)
	if err != nil {
		log.Fatalf("record store init failed: %v", err)
	}
	defer recordStore.Close()
	if cfg.DatabaseURL == "" {
		log.Printf("record store: in-memory (DATABASE_URL not set)")
	} else {
		log.Printf("record store: postgres")
	}

	var (
		cloner voice.Cloner
		synth  voice.Synthesizer
		lister voice.Lister
	)
	if strings.TrimSpace(cfg.ElevenLabsAPIKey) != "" {
		client := voice.NewElevenLabsClient(voice.ElevenLabsConfig{
			APIKey:     cfg.ElevenLabsAPIKey,
			BaseURL:    cfg.ElevenLabsBaseURL,
			ModelID:    cfg.ElevenLabsModelID,
			HTTPClient: &http.Client{Timeout: cfg.ProviderTimeout},
		})
		cloner, synth, lister = client, client, client
		log.Printf("voice provider: elevenlabs")
	} else {
		mock := voice.NewMockProvider()
		cloner, synth, lister = mock, mock, mock
		log.Printf("voice provider: mock (ELEVENLABS_API_KEY not set)")
	}

	var cache catalog.KeyValueCache
	if cfg.CatalogCachePath != "" {
		cache = catalog.NewFileCache(cfg.CatalogCachePath)
	}
	voices := catalog.New(cache)

	vlog := voicelog.New(recordStore, cfg.LogCollection, notifier, metrics)

	checkCtx, checkCancel := context.WithTimeout(ctx, 15*time.Second)
	report := health.NewChecker(recordStore, cfg.LogCollection, users).Run(checkCtx)
	checkCancel()
	if !report.WritesPermitted() {
		vlog.SetWritable(false)
		notifier.Error("Voice Log Unavailable", report.Summary())
	} else {
		log.Printf("record store checks passed, log writes enabled")
	}

	p := pipeline.New(pipeline.Options{
		Recorder:       audio.NewRecorder(nil),
		Cloner:         cloner,
		Synthesizer:    synth,
		Lister:         lister,
		Catalog:        voices,
		Log:            vlog,
		Refs:           audioref.NewStore(),
		Identity:       users,
		Notifier:       notifier,
		Metrics:        metrics,
		DefaultVoiceID: cfg.DefaultVoiceID,
		HistoryLimit:   cfg.HistoryDisplayLimit,
	})

	api := httpapi.New(cfg, p, report, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
