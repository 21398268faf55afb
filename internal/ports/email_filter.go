package ports

import (
	"context"

	"github.com/mikey/phish-detector/internal/core"
)

// EmailFilter defines the interface for the mail front ends
type EmailFilter interface {
	// ProcessEmail analyzes an email and returns the classification
	ProcessEmail(ctx context.Context, email *core.Email) (*core.AnalysisResult, error)

	// Start starts the email filter service
	Start() error

	// Stop stops the email filter service
	Stop() error
}
