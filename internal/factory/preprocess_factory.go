package factory

import (
	"github.com/mikey/phish-detector/internal/config"
	"github.com/mikey/phish-detector/internal/preprocess"
	"github.com/mikey/phish-detector/internal/utils"
	"go.uber.org/zap"
)

// PreprocessFactory creates the text normalizer and the mail text processor
type PreprocessFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewPreprocessFactory creates a new PreprocessFactory
func NewPreprocessFactory(cfg *config.Config, logger *zap.Logger) *PreprocessFactory {
	return &PreprocessFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateNormalizer creates the normalizer shared by training and inference
func (f *PreprocessFactory) CreateNormalizer() (*preprocess.Normalizer, error) {
	return preprocess.NewNormalizerFromFile(f.cfg.GetNormalizer().StopwordsFile, f.logger)
}

// CreateTextProcessor creates a new TextProcessor
func (f *PreprocessFactory) CreateTextProcessor() *utils.TextProcessor {
	return utils.NewTextProcessor(f.logger)
}
