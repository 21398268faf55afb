package di

import (
	"context"
	"fmt"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/phish-detector/internal/adapters/filter"
	"github.com/mikey/phish-detector/internal/config"
	"github.com/mikey/phish-detector/internal/core"
	"github.com/mikey/phish-detector/internal/factory"
	"github.com/mikey/phish-detector/internal/logging"
	"github.com/mikey/phish-detector/internal/ports"
	"github.com/mikey/phish-detector/internal/utils"
	"github.com/mikey/phish-detector/internal/whitelist"
)

// BuildContainer creates and configures a dependency injection container for
// the content filter daemon
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	if err := provideDetection(container, true); err != nil {
		return nil, err
	}

	// Register email filter
	if err := container.Provide(func(f *factory.FilterFactory) (ports.EmailFilter, error) {
		return f.CreateEmailFilter()
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// provideDetection registers everything between the configuration and the
// mail front ends. It expects *config.Config and *zap.Logger to be provided.
// With limitBody unset the screener passes text of any length through.
func provideDetection(container *dig.Container, limitBody bool) error {
	// Register factories
	if err := container.Provide(factory.NewStoreFactory); err != nil {
		return err
	}
	if err := container.Provide(factory.NewArtifactFactory); err != nil {
		return err
	}
	if err := container.Provide(factory.NewPreprocessFactory); err != nil {
		return err
	}
	if err := container.Provide(factory.NewFilterFactory); err != nil {
		return err
	}

	// Register normalizer
	if err := container.Provide(func(f *factory.PreprocessFactory) (core.Normalizer, error) {
		return f.CreateNormalizer()
	}); err != nil {
		return err
	}

	// Register text processor
	if err := container.Provide(func(f *factory.PreprocessFactory) *utils.TextProcessor {
		return f.CreateTextProcessor()
	}); err != nil {
		return err
	}

	// Register artifact repository
	if err := container.Provide(func(f *factory.ArtifactFactory) (core.ArtifactRepository, error) {
		return f.CreateArtifactRepository()
	}); err != nil {
		return err
	}

	// Register result store, creating its schema once
	if err := container.Provide(func(f *factory.StoreFactory, logger *zap.Logger) (core.ResultStore, error) {
		store, err := f.CreateResultStore()
		if err != nil {
			return nil, err
		}
		if err := store.EnsureSchema(context.Background()); err != nil {
			return nil, fmt.Errorf("failed to prepare result store: %w", err)
		}
		logger.Debug("Result store ready")
		return store, nil
	}); err != nil {
		return err
	}

	// Register inference service
	if err := container.Provide(core.NewPhishingDetector); err != nil {
		return err
	}

	// Register whitelist checker
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) *whitelist.Checker {
		domains := cfg.GetFilter().WhitelistedDomains
		if len(domains) > 0 {
			logger.Info("Loaded whitelisted domains", zap.Strings("domains", domains))
		}
		return whitelist.NewChecker(domains, logger)
	}); err != nil {
		return err
	}

	// Register screener
	return container.Provide(func(
		detector *core.PhishingDetector,
		checker *whitelist.Checker,
		text *utils.TextProcessor,
		cfg *config.Config,
		logger *zap.Logger,
	) *filter.Screener {
		maxBodySize := 0
		if limitBody {
			maxBodySize = cfg.GetFilter().MaxBodySize
		}
		return filter.NewScreener(detector, checker, text, maxBodySize, logger)
	})
}
