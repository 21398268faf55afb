package core

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PhishingDetector is the core inference service
type PhishingDetector struct {
	normalizer Normalizer
	artifacts  ArtifactRepository
	results    ResultStore
	logger     *zap.Logger
	now        func() time.Time
}

// NewPhishingDetector creates a new inference service
func NewPhishingDetector(
	normalizer Normalizer,
	artifacts ArtifactRepository,
	results ResultStore,
	logger *zap.Logger,
) *PhishingDetector {
	return &PhishingDetector{
		normalizer: normalizer,
		artifacts:  artifacts,
		results:    results,
		logger:     logger,
		now:        time.Now,
	}
}

// Analyze classifies text and records the outcome in the result store.
// A failed store write is logged and reported through Recorded; the
// classification is still returned.
func (s *PhishingDetector) Analyze(ctx context.Context, text string) (*AnalysisResult, error) {
	pair, err := s.artifacts.Load(ctx)
	if err != nil {
		return nil, err
	}

	result, err := Classify(s.normalizer, pair, text)
	if err != nil {
		return nil, err
	}
	result.ProcessingID = uuid.NewString()
	result.AnalyzedAt = s.now()

	record, err := s.results.Append(ctx, text, result.Prediction, result.Confidence)
	if err != nil {
		s.logger.Error("Failed to store analysis result",
			zap.Error(err),
			zap.String("processing_id", result.ProcessingID),
			zap.String("prediction", result.Prediction))
	} else {
		result.Recorded = true
		result.RecordID = record.ID
	}

	s.logger.Info("Analyzed email",
		zap.String("processing_id", result.ProcessingID),
		zap.String("prediction", result.Prediction),
		zap.Float64("confidence", result.Confidence),
		zap.String("model", result.ModelID),
		zap.Bool("recorded", result.Recorded))

	return result, nil
}

// Classify runs the normalize, transform and predict steps against a loaded
// model pair without touching any store
func Classify(normalizer Normalizer, pair *ModelPair, text string) (*AnalysisResult, error) {
	normalized := normalizer.Normalize(text)

	vec, err := pair.Vectorizer.Transform(normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to vectorize text: %w", err)
	}

	predicted, err := pair.Classifier.Predict(vec)
	if err != nil {
		return nil, fmt.Errorf("failed to predict label: %w", err)
	}
	probs, err := pair.Classifier.PredictProba(vec)
	if err != nil {
		return nil, fmt.Errorf("failed to predict probabilities: %w", err)
	}

	// The confidence is the probability of the predicted class, never of
	// whichever class happens to sit at a fixed position.
	idx, ok := pair.Classifier.ClassIndex(predicted)
	if !ok || idx >= len(probs) {
		return nil, fmt.Errorf("%w: predicted class %q has no probability", ErrArtifactMismatch, predicted)
	}

	label, err := ParseLabel(predicted)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifactMismatch, err)
	}

	probabilities := make(map[Label]float64, len(probs))
	for i, class := range pair.Classifier.Classes() {
		if l, err := ParseLabel(class); err == nil && i < len(probs) {
			probabilities[l] = probs[i]
		}
	}

	return &AnalysisResult{
		Label:         label,
		Prediction:    label.DisplayName(),
		Confidence:    clamp01(probs[idx]),
		Probabilities: probabilities,
		ModelID:       pair.ID,
	}, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
