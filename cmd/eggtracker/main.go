package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/seanblong/eggtracker/internal/checkout"
	"github.com/seanblong/eggtracker/internal/config"
	"github.com/seanblong/eggtracker/internal/extract"
	"github.com/seanblong/eggtracker/internal/github"
	"github.com/seanblong/eggtracker/internal/langdetect"
	"github.com/seanblong/eggtracker/internal/rules"
	"github.com/seanblong/eggtracker/internal/store"
	"github.com/seanblong/eggtracker/internal/tracker"
	"github.com/spf13/pflag"
)

func main() {
	_ = godotenv.Load()
	if err := run(); err != nil {
		log.Error().Err(err).Msg("run finished with errors")
		os.Exit(1)
	}
}

func run() error {

	fs := pflag.NewFlagSet("eggtracker", pflag.ExitOnError)

	cfg, err := config.Load("", fs)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	fs.Usage = cfg.Usage

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

	repos, err := cfg.Repositories()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	detector, err := langdetect.New(langdetect.Config{
		BaseURL:     cfg.DetectorURL,
		Concurrency: cfg.DetectorConcurrency,
		Timeout:     cfg.DetectorTimeout,
		Fallback:    cfg.FallbackLanguage,
	})
	if err != nil {
		return err
	}

	var opts []store.Option
	if cfg.S3.Endpoint != "" {
		mirror, err := store.NewS3Mirror(store.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
			Prefix:    cfg.S3.Prefix,
			UseSSL:    cfg.S3.UseSSL,
		})
		if err != nil {
			return fmt.Errorf("configure S3 mirror: %w", err)
		}
		opts = append(opts, store.WithMirror(mirror))
		log.Info().Str("endpoint", cfg.S3.Endpoint).Str("bucket", cfg.S3.Bucket).Msg("S3 mirror enabled")
	}
	if cfg.Database != "" {
		catalog, err := store.NewPostgresCatalog(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer catalog.Close()
		if err := catalog.Ping(ctx); err != nil {
			return fmt.Errorf("ping database: %w", err)
		}
		if err := catalog.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
		opts = append(opts, store.WithCatalog(catalog))
		log.Info().Msg("catalog enabled")
	}
	st := store.New(store.NewDir(cfg.OutputDir), opts...)

	t := &tracker.Tracker{
		Config: tracker.Config{
			WorkDir:       cfg.WorkDir,
			PublicBaseURL: cfg.PublicBaseURL,
		},
		Lookup:    github.NewLookup(github.NewClient(cfg.GithubToken)),
		Checkout:  checkout.New(cfg.GithubToken),
		Extractor: extract.New(rules.DefaultRegistry(), detector, langdetect.Heuristic{}),
		Merger:    st,
		Index:     st,
	}

	log.Info().Int("repositories", len(repos)).Str("output", cfg.OutputDir).Msg("starting run")
	result, err := t.Run(ctx, repos)
	if result != nil {
		for author, state := range result.Authors {
			log.Debug().Str("author", author).Stringer("state", state).Int("eggs", result.Eggs[author]).Msg("author")
		}
	}
	return err
}
