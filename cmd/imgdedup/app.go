package main

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/pdxmph/imgdedup/pkg/auth"
	"github.com/pdxmph/imgdedup/pkg/batch"
	"github.com/pdxmph/imgdedup/pkg/config"
	"github.com/pdxmph/imgdedup/pkg/duplicate"
	"github.com/pdxmph/imgdedup/pkg/logger"
	"github.com/pdxmph/imgdedup/pkg/phash"
	"github.com/pdxmph/imgdedup/pkg/store"
	"github.com/pdxmph/imgdedup/pkg/upload"
)

// loadConfig reads the config file, applies IMGDEDUP_* overrides and validates the result
func loadConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(viper.New())
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupLogging initializes the global logger from config
func setupLogging(cfg *config.Config) error {
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	return nil
}

func newProcessor(cfg *config.Config, log zerolog.Logger) *batch.Processor {
	return batch.New(
		batch.WithClassifier(cfg.Classifier()),
		batch.WithHasher(phash.NewEngine(phash.WithMaxPixels(cfg.Dedup.MaxPixels))),
		batch.WithThreshold(cfg.Dedup.ThresholdValue()),
		batch.WithWorkers(cfg.Dedup.Workers),
		batch.WithLogger(log),
	)
}

// app holds what a command builds from config and must release when done
type app struct {
	service *upload.Service
	catalog *duplicate.Catalog
}

func (a *app) Close() error {
	if a.catalog != nil {
		return a.catalog.Close()
	}
	return nil
}

// buildApp wires processor, storage and catalog. An empty destDir disables persistence.
func buildApp(cfg *config.Config, fs afero.Fs, destDir string, useCatalog bool) (*app, error) {
	a := &app{}
	opts := []upload.Option{upload.WithLogger(logger.Component("upload"))}

	if destDir != "" {
		sink, err := store.NewDirStore(fs, destDir, logger.Component("store"))
		if err != nil {
			return nil, err
		}
		opts = append(opts, upload.WithSink(sink))
	}

	if useCatalog {
		cat, err := duplicate.OpenCatalog(cfg.CatalogPath())
		if err != nil {
			return nil, err
		}
		a.catalog = cat
		opts = append(opts, upload.WithCatalog(cat))
	}

	a.service = upload.New(newProcessor(cfg, logger.Component("dedup")), opts...)
	return a, nil
}

// identityProvider returns the token table when auth is on, otherwise accepts everyone
func identityProvider(cfg *config.Config) auth.Provider {
	if cfg.Auth.Enabled {
		return auth.NewStatic(cfg.Auth.Tokens)
	}
	return auth.Anonymous{}
}
