package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/pressline/pressline/internal/config"
	"github.com/pressline/pressline/internal/database"
	"github.com/pressline/pressline/internal/metrics"
	"github.com/pressline/pressline/internal/pipeline"
	"github.com/pressline/pressline/internal/scheduler"
)

var serveNoWatch bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the publishing engine",
	Long: `Start the Pressline publishing engine.

The engine will:
  - Open the rule database and run pending migrations
  - Release claims left behind by a previous run
  - Poll for due rules and publish their topics
  - Prune old publication-log entries on a schedule
  - Expose Prometheus metrics if enabled

Use --no-watch to disable config file watching.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveNoWatch, "no-watch", false, "Disable config file watching")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	configureLogging(&cfg.Logging)

	db, err := database.Open(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	pipe := pipeline.New(
		pipeline.NewOpenAIGenerator(cfg.Generator),
		pipeline.NewWordPressPublisher(cfg.Publisher),
	)

	store := scheduler.NewStore(db)
	sched := scheduler.NewScheduler(store, pipe, cfg.Scheduler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sched.RecoverStaleClaims(ctx); err != nil {
		log.Error().Err(err).Msg("Claim recovery failed, continuing")
	}

	sched.Start()
	defer sched.Stop()

	pruner, err := startPruneJob(ctx, store, cfg.Retention)
	if err != nil {
		log.Error().Err(err).Msg("Failed to start prune job, continuing without retention")
	} else {
		defer pruner.Stop()
	}

	if cfg.Metrics.Enabled {
		startMetricsServer(ctx, cfg.Metrics.Addr)
	}

	if !serveNoWatch {
		watcher, watchErr := watchConfig(ctx, sched)
		if watchErr != nil {
			log.Warn().Err(watchErr).Msg("Failed to watch config file, continuing without hot-reload")
		} else {
			defer watcher.Close()
		}
	}

	log.Info().
		Str("database", cfg.Database.Path).
		Str("owner", ownerScope(cfg.Scheduler.Owner)).
		Msg("Pressline running")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	case <-ctx.Done():
	}

	return nil
}

// loadConfig loads and validates the configuration. A missing config
// file falls back to defaults inside Load; a present-but-broken file is
// a hard error so the engine refuses to start on it.
func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		return config.LoadFromFile(cfgFile)
	}
	return config.LoadWithDefaults()
}

// configureLogging replaces the interactive console logger with the
// configured format and level.
func configureLogging(cfg *config.LoggingConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	var logger zerolog.Logger
	if cfg.Format == "json" {
		logger = zerolog.New(os.Stderr)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	logCtx := logger.With()
	if cfg.Timestamp {
		logCtx = logCtx.Timestamp()
	}
	if cfg.Caller {
		logCtx = logCtx.Caller()
	}
	log.Logger = logCtx.Logger()
}

// startPruneJob schedules periodic deletion of old publication-log
// rows, in the retention timezone.
func startPruneJob(ctx context.Context, store *scheduler.Store, cfg config.RetentionConfig) (*cron.Cron, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	c := cron.New(cron.WithLocation(loc))
	_, err = c.AddFunc(cfg.PruneSchedule, func() {
		cutoff := time.Now().UTC().Add(-cfg.MaxAge)
		pruned, pruneErr := store.PrunePublications(ctx, cutoff)
		if pruneErr != nil {
			log.Error().Err(pruneErr).Msg("Failed to prune publication log")
			return
		}
		metrics.RecordPublicationsPruned(pruned)
		if pruned > 0 {
			log.Info().Int64("count", pruned).Msg("Pruned publication log")
		}
	})
	if err != nil {
		return nil, err
	}

	c.Start()
	log.Info().
		Str("schedule", cfg.PruneSchedule).
		Str("timezone", cfg.Timezone).
		Msg("Retention prune job scheduled")

	return c, nil
}

func startMetricsServer(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		log.Info().Str("addr", addr).Msg("Metrics listener started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Metrics listener error")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

func ownerScope(owner string) string {
	if owner == "" {
		return "all"
	}
	return owner
}
