// Command server starts the relaycast stream control panel daemon.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"relaycast/internal/api"
	"relaycast/internal/config"
	"relaycast/internal/ffmpeg"
	"relaycast/internal/media"
	"relaycast/internal/observability/logging"
	"relaycast/internal/observability/metrics"
	"relaycast/internal/server"
	"relaycast/internal/serverutil"
	"relaycast/internal/store"
	"relaycast/internal/stream"
	"relaycast/internal/watcher"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to YAML config file")
	bind := pflag.String("bind", "", "HTTP listen address")
	mediaRoot := pflag.String("media-root", "", "directory holding playable media")
	scratchDir := pflag.String("scratch-dir", "", "directory for playlist manifests")
	ffmpegPath := pflag.String("ffmpeg", "", "encoder binary to supervise")
	apiToken := pflag.String("api-token", "", "bearer token guarding the API")
	logLevel := pflag.String("log-level", "", "log level (debug, info, warn, error)")
	logFormat := pflag.String("log-format", "", "log format (json or text)")
	pflag.Parse()

	config.LoadDotEnv()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load configuration: %v\n", err)
		os.Exit(1)
	}
	applyFlag(&cfg.Bind, *bind)
	applyFlag(&cfg.MediaRoot, *mediaRoot)
	applyFlag(&cfg.ScratchDir, *scratchDir)
	applyFlag(&cfg.FFmpegPath, *ffmpegPath)
	applyFlag(&cfg.APIToken, *apiToken)
	applyFlag(&cfg.LogLevel, *logLevel)
	applyFlag(&cfg.LogFormat, *logFormat)

	logger := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	if err := run(cfg, logger); err != nil {
		logger.Error("daemon exited", "error", err)
		os.Exit(1)
	}
}

func applyFlag(target *string, value string) {
	if value != "" {
		*target = value
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	configStore := openStore(ctx, cfg.Store, logger)
	defer configStore.Close()

	library, err := media.NewLibrary(cfg.MediaRoot, logging.WithComponent(logger, "library"))
	if err != nil {
		return err
	}
	tracker := media.NewManifestTracker(logging.WithComponent(logger, "playlist"))
	playlists, err := media.NewPlaylistBuilder(cfg.ScratchDir, tracker, logging.WithComponent(logger, "playlist"))
	if err != nil {
		return err
	}

	commands := ffmpeg.NewBuilder(logging.WithComponent(logger, "ffmpeg"))
	if cfg.VAAPIDevice != "" {
		commands.VAAPIDevice = cfg.VAAPIDevice
	}
	if cfg.NVENCDevice != "" {
		commands.NVENCDevice = cfg.NVENCDevice
	}

	recorder := metrics.New()
	state := stream.NewState(tracker.Reset)
	ring := stream.NewLogRing(cfg.RingCapacity)
	supervisor := stream.New(stream.Config{
		Binary:         cfg.FFmpegPath,
		StallTimeout:   cfg.StallTimeout.Std(),
		GracePeriod:    cfg.GracePeriod.Std(),
		MaxRestarts:    cfg.MaxRestarts,
		BackoffFloor:   cfg.BackoffFloor.Std(),
		BackoffCeiling: cfg.BackoffCeiling.Std(),
		BackoffFactor:  cfg.BackoffFactor,
	}, state, ring, tracker, recorder, logging.WithComponent(logger, "supervisor"))
	defer supervisor.Close()

	settings, found, err := store.LoadSettings(ctx, configStore)
	if err != nil {
		logger.Warn("restore persisted settings", "error", err)
	} else if found {
		logger.Info("restored persisted settings", "destinations", len(settings.Destinations))
	}

	handler := api.NewHandler(supervisor, library, playlists, commands, configStore, settings, logging.WithComponent(logger, "api"))
	srv := server.New(handler, server.Config{
		Addr:      cfg.Bind,
		Token:     cfg.APIToken,
		RateLimit: cfg.RateLimit,
		Logger:    logger,
		Metrics:   recorder,
	})

	mediaWatcher, err := watcher.New(library, 0, logging.WithComponent(logger, "watcher"))
	if err != nil {
		logger.Warn("media watcher disabled", "error", err)
		mediaWatcher = nil
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return serverutil.Run(groupCtx, serverutil.Config{
			Server: srv.HTTPServer(),
			TLS:    serverutil.TLSConfig{CertFile: cfg.TLSCert, KeyFile: cfg.TLSKey},
		})
	})
	if mediaWatcher != nil {
		group.Go(func() error {
			if err := mediaWatcher.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	group.Go(func() error {
		ticker := time.NewTicker(cfg.SweepInterval.Std())
		defer ticker.Stop()
		for {
			select {
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
				tracker.Sweep()
			}
		}
	})

	logger.Info("relaycast started",
		"addr", cfg.Bind,
		"media_root", library.Root(),
		"ffmpeg", cfg.FFmpegPath,
		"store", string(cfg.Store.Backend),
	)
	return group.Wait()
}

// openStore opens the configured settings backend. Persistence is an
// amenity: every failure degrades to the no-op store with a warning instead
// of refusing to start.
func openStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) store.ConfigStore {
	var (
		s   store.ConfigStore
		err error
	)
	switch cfg.Backend {
	case config.StoreFile:
		s, err = store.NewFileStore(cfg.Path)
	case config.StoreBadger:
		s, err = store.OpenBadgerStore(cfg.Path)
	case config.StoreRedis:
		s, err = store.NewRedisStore(ctx, store.RedisConfig{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUser,
			Password: cfg.RedisPass,
			DB:       cfg.RedisDB,
		})
	case config.StorePostgres:
		s, err = store.NewPostgresStore(ctx, cfg.PostgresDSN)
	default:
		return store.Noop{}
	}
	if err != nil {
		logger.Warn("settings store unavailable, persistence disabled",
			"backend", string(cfg.Backend),
			"error", err,
		)
		return store.Noop{}
	}
	return s
}
