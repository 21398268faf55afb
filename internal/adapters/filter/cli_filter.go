package filter

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mikey/phish-detector/internal/core"
	"go.uber.org/zap"
)

// CliFilter analyzes single emails from the command line and prints the outcome
type CliFilter struct {
	screener *Screener
	logger   *zap.Logger
	verbose  bool
	out      io.Writer
}

// NewCliFilter creates a new CLI filter
func NewCliFilter(screener *Screener, logger *zap.Logger, verbose bool) (*CliFilter, error) {
	return &CliFilter{
		screener: screener,
		logger:   logger,
		verbose:  verbose,
		out:      os.Stdout,
	}, nil
}

// ProcessEmail analyzes an email and prints the results
func (f *CliFilter) ProcessEmail(ctx context.Context, email *core.Email) (*core.AnalysisResult, error) {
	f.logger.Debug("Processing email", zap.String("sender", email.From))

	if f.verbose {
		fmt.Fprintf(f.out, "\n=== Email Summary ===\n")
		if email.From != "" {
			fmt.Fprintf(f.out, "From: %s\n", email.From)
		}
		if email.Subject != "" {
			fmt.Fprintf(f.out, "Subject: %s\n", email.Subject)
		}
		fmt.Fprintf(f.out, "Body length: %d bytes\n", len(email.Body))

		preview := email.Body
		if len(preview) > 500 {
			preview = preview[:500] + "..."
		}
		fmt.Fprintf(f.out, "\nBody preview:\n%s\n", preview)
	}

	startTime := time.Now()
	result, err := f.screener.Screen(ctx, email)
	if err != nil {
		f.logger.Error("Failed to analyze email", zap.Error(err))
		return nil, err
	}
	duration := time.Since(startTime)

	fmt.Fprintf(f.out, "\n[RESULT] Prediction: %s\n", result.Prediction)
	fmt.Fprintf(f.out, "[CONFIDENCE] %.2f%%\n", result.Confidence*100)
	if f.verbose {
		fmt.Fprintf(f.out, "Model: %s\n", result.ModelID)
		for _, label := range core.Labels() {
			fmt.Fprintf(f.out, "P(%s): %.4f\n", label.DisplayName(), result.Probabilities[label])
		}
		fmt.Fprintf(f.out, "Processing time: %v\n", duration)
	}
	switch {
	case result.Recorded:
		fmt.Fprintf(f.out, "Analysis logged as record %d.\n", result.RecordID)
	case result.ModelID != WhitelistModelID:
		fmt.Fprintf(f.out, "Warning: analysis could not be logged.\n")
	}

	return result, nil
}

// Start is a no-op for the CLI filter
func (f *CliFilter) Start() error {
	return nil
}

// Stop is a no-op for the CLI filter
func (f *CliFilter) Stop() error {
	return nil
}
