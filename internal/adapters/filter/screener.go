package filter

import (
	"context"
	"time"

	"github.com/mikey/phish-detector/internal/core"
	"github.com/mikey/phish-detector/internal/utils"
	"github.com/mikey/phish-detector/internal/whitelist"
	"go.uber.org/zap"
)

// WhitelistModelID is reported as the model of results that skipped classification
const WhitelistModelID = "whitelist"

// Analyzer classifies email text
type Analyzer interface {
	Analyze(ctx context.Context, text string) (*core.AnalysisResult, error)
}

// Screener is the part shared by every mail front end: whitelisted senders are
// passed through, everything else is cleaned up and sent to the analyzer.
type Screener struct {
	analyzer    Analyzer
	whitelist   *whitelist.Checker
	text        *utils.TextProcessor
	maxBodySize int
	logger      *zap.Logger
}

// NewScreener creates a new Screener
func NewScreener(
	analyzer Analyzer,
	checker *whitelist.Checker,
	text *utils.TextProcessor,
	maxBodySize int,
	logger *zap.Logger,
) *Screener {
	return &Screener{
		analyzer:    analyzer,
		whitelist:   checker,
		text:        text,
		maxBodySize: maxBodySize,
		logger:      logger,
	}
}

// Screen classifies an email unless its sender domain is whitelisted
func (s *Screener) Screen(ctx context.Context, email *core.Email) (*core.AnalysisResult, error) {
	if s.whitelist != nil && s.whitelist.IsWhitelisted(email.From) {
		s.logger.Info("Skipping analysis for whitelisted sender", zap.String("from", email.From))
		return &core.AnalysisResult{
			Label:      core.LabelLegitimate,
			Prediction: core.LabelLegitimate.DisplayName(),
			Confidence: 1,
			Probabilities: map[core.Label]float64{
				core.LabelLegitimate: 1,
				core.LabelPhishing:   0,
			},
			ModelID:    WhitelistModelID,
			AnalyzedAt: time.Now(),
		}, nil
	}

	text := s.text.ProcessText(email.Text(), s.maxBodySize)
	return s.analyzer.Analyze(ctx, text)
}
