package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/yt-monitor/app/api"
	"github.com/lysyi3m/yt-monitor/app/capture"
	"github.com/lysyi3m/yt-monitor/app/cfg"
	"github.com/lysyi3m/yt-monitor/app/database"
	"github.com/lysyi3m/yt-monitor/app/egress"
	"github.com/lysyi3m/yt-monitor/app/extract"
	"github.com/lysyi3m/yt-monitor/app/feed"
	"github.com/lysyi3m/yt-monitor/app/output"
	"github.com/lysyi3m/yt-monitor/app/summary"
	"github.com/lysyi3m/yt-monitor/app/tasks"
	"github.com/lysyi3m/yt-monitor/app/transcribe"
)

func main() {
	c, err := cfg.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if c == nil {
		// Help was shown
		return
	}

	level := slog.LevelInfo
	if c.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	if err := c.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting YT Monitor", "version", c.Version)

	ctx := context.Background()
	httpClient := &http.Client{Timeout: c.FetchTimeout}

	publisher, err := output.New(ctx, c, httpClient)
	if err != nil {
		slog.Error("Failed to initialize output backend", "error", err)
		os.Exit(1)
	}
	if closer, ok := publisher.(io.Closer); ok {
		defer closer.Close()
	}

	generator, err := summary.NewGenerator(c.AnthropicAPIKey, c.ClaudeModel, c.SummaryMaxTokens)
	if err != nil {
		slog.Error("Failed to initialize summary generator", "error", err)
		os.Exit(1)
	}

	db, err := database.NewConnection(c.DBPath)
	if err != nil {
		slog.Error("Failed to connect to database", "path", c.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "path", c.DBPath, "schema_version", version, "dirty", dirty)

	itemRepo := database.NewItemStore(db)
	sourceRepo := database.NewSourceStore(db)

	configCache := feed.NewConfigCache(c.SourcesDir)
	if err := configCache.Run(); err != nil {
		slog.Error("Failed to load channel configurations", "dir", c.SourcesDir, "error", err)
		os.Exit(1)
	}
	if err := configCache.RequireEnabled(); err != nil {
		slog.Error("No channels to monitor", "dir", c.SourcesDir, "error", err)
		os.Exit(1)
	}

	pool, err := loadPool(ctx, c, httpClient)
	if err != nil {
		slog.Error("Failed to load proxy pool", "error", err)
		os.Exit(1)
	}

	media, transcoder := tier2(c)

	pipeline := extract.NewPipeline(extract.Config{
		Languages:    c.TranscriptLanguages,
		MaxAttempts:  c.CaptureMaxAttempts,
		BackoffBase:  c.CaptureBackoffBase,
		MaxChars:     c.TranscriptMaxChars,
		RequestDelay: c.TranscriptRequestDelay,
	}, capture.NewYouTube(c.UserAgent), pool, media, transcoder)

	fetcher := feed.NewFetcher(httpClient, feed.NewParser(), feed.DefaultFeedURL, c.UserAgent, c.FetchTimeout)

	slog.Info("Monitor configured",
		"model", c.ClaudeModel,
		"output_backend", publisher.Name(),
		"channels", len(configCache.GetEnabledConfigs()),
		"poll_interval", c.PollInterval,
		"max_video_age_days", c.MaxVideoAgeDays,
		"proxies", pool.Len(),
		"whisper", media != nil && transcoder != nil,
		"backfill", c.BackfillEnabled)

	scheduler := tasks.NewScheduler(tasks.Deps{
		Sources:    configCache,
		Fetcher:    fetcher,
		Extractor:  pipeline,
		Generator:  generator,
		Publisher:  publisher,
		SourceRepo: sourceRepo,
		ItemRepo:   itemRepo,
	}, tasks.Options{
		PollInterval:    c.PollInterval,
		MaxVideoAgeDays: c.MaxVideoAgeDays,
		SourcePause:     c.SourcePause,
		BackfillEnabled: c.BackfillEnabled,
		BackfillDepth:   c.BackfillDepth,
		BackfillDelay:   c.BackfillDelay,
	})
	scheduler.Start()

	var httpServer *http.Server
	serverErrChan := make(chan error, 1)

	if c.Port != "" {
		handler := api.NewHandler(configCache, itemRepo, sourceRepo, publisher.Name(), c.Version)
		httpServer = &http.Server{
			Addr:         ":" + c.Port,
			Handler:      api.NewServer(handler, c.APIAccessKey),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		}

		go func() {
			slog.Info("Starting HTTP server", "port", c.Port)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down, waiting for the current step to finish")

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		}
	}

	scheduler.Stop()
	slog.Info("YT Monitor stopped")
}

// loadPool returns nil when proxies are disabled, which means direct connections.
func loadPool(ctx context.Context, c *cfg.Cfg, httpClient *http.Client) (*egress.Pool, error) {
	if !c.ProxyEnabled {
		return nil, nil
	}
	if len(c.ProxyList) > 0 {
		return egress.NewPool(c.ProxyList)
	}
	return egress.Download(ctx, httpClient, c.ProxyDownloadURL)
}

// tier2 builds the audio transcription collaborators. Missing tools disable
// the tier rather than failing startup.
func tier2(c *cfg.Cfg) (transcribe.MediaFetcher, transcribe.Transcoder) {
	if !c.WhisperEnabled {
		return nil, nil
	}

	media, err := transcribe.NewYtDlp(c.YtDlpPath, c.FFmpegPath)
	if err != nil {
		slog.Warn("Audio transcription disabled", "error", err)
		return nil, nil
	}

	switch c.WhisperBackend {
	case "local":
		local, err := transcribe.NewLocal(c.WhisperPath, c.WhisperModel)
		if err != nil {
			slog.Warn("Audio transcription disabled", "error", err)
			return nil, nil
		}
		return media, local
	default:
		// Audio uploads take far longer than feed requests.
		client := &http.Client{Timeout: 10 * time.Minute}
		return media, transcribe.NewOpenAI(client, transcribe.DefaultOpenAIURL, c.OpenAIAPIKey, c.WhisperModel)
	}
}
