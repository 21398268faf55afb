package factory

import (
	"github.com/mikey/phish-detector/internal/adapters/artifacts"
	"github.com/mikey/phish-detector/internal/config"
	"github.com/mikey/phish-detector/internal/core"
	"go.uber.org/zap"
)

// ArtifactFactory creates the model artifact repository
type ArtifactFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewArtifactFactory creates a new artifact factory
func NewArtifactFactory(cfg *config.Config, logger *zap.Logger) *ArtifactFactory {
	return &ArtifactFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateArtifactRepository creates a file repository, fronted by a TTL cache
// when artifacts.cache_ttl is positive
func (f *ArtifactFactory) CreateArtifactRepository() (core.ArtifactRepository, error) {
	artifactCfg, err := f.cfg.GetArtifacts()
	if err != nil {
		return nil, err
	}

	repo := artifacts.NewFileRepository(artifactCfg.VectorizerPath, artifactCfg.ClassifierPath, f.logger)
	if artifactCfg.CacheTTL <= 0 {
		return repo, nil
	}

	f.logger.Info("Caching model artifacts", zap.Duration("ttl", artifactCfg.CacheTTL))
	return artifacts.NewCachedRepository(repo, artifactCfg.CacheTTL, f.logger), nil
}
