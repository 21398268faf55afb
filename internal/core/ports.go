package core

import (
	"context"
	"fmt"
	"time"
)

// Normalizer maps raw text to the canonical token string seen by the vectorizer
type Normalizer interface {
	// Normalize returns the normalized form of text
	Normalize(text string) string
}

// Vectorizer maps normalized text into the fixed feature space learned at training time
type Vectorizer interface {
	// Transform converts normalized text into a feature vector
	Transform(normalized string) ([]float64, error)

	// Dimension is the length of every vector Transform returns
	Dimension() int
}

// Classifier maps feature vectors to class labels and class probabilities
type Classifier interface {
	// Predict returns the majority class for x
	Predict(x []float64) (string, error)

	// PredictProba returns one probability per class, in Classes order
	PredictProba(x []float64) ([]float64, error)

	// Classes returns the class names in probability order
	Classes() []string

	// ClassIndex returns the probability index of class
	ClassIndex(class string) (int, bool)

	// NumFeatures is the vector length the classifier was fitted on
	NumFeatures() int
}

// ModelPair is a fitted vectorizer together with the classifier trained on its output
type ModelPair struct {
	ID         string
	TrainedAt  time.Time
	Vectorizer Vectorizer
	Classifier Classifier
}

// Validate checks that both halves are present and agree on the feature dimension
func (p *ModelPair) Validate() error {
	if p == nil || p.Vectorizer == nil || p.Classifier == nil {
		return fmt.Errorf("%w: incomplete model pair", ErrArtifactMismatch)
	}
	if p.Vectorizer.Dimension() != p.Classifier.NumFeatures() {
		return fmt.Errorf("%w: vectorizer dimension %d, classifier expects %d",
			ErrArtifactMismatch, p.Vectorizer.Dimension(), p.Classifier.NumFeatures())
	}
	for _, label := range Labels() {
		if _, ok := p.Classifier.ClassIndex(string(label)); !ok {
			return fmt.Errorf("%w: classifier has no class %q", ErrArtifactMismatch, label)
		}
	}
	return nil
}

// ArtifactRepository persists and loads model pairs as a unit
type ArtifactRepository interface {
	// Save persists both halves of the pair
	Save(ctx context.Context, pair *ModelPair) error

	// Load returns the persisted pair or ErrArtifactsNotFound
	Load(ctx context.Context) (*ModelPair, error)
}

// ResultStore is the append-only log of analysis results
type ResultStore interface {
	// EnsureSchema creates the underlying structure if it does not exist yet
	EnsureSchema(ctx context.Context) error

	// Append stores one analysis record
	Append(ctx context.Context, text string, prediction string, confidence float64) (*AnalysisRecord, error)

	// Recent returns up to limit records, newest first
	Recent(ctx context.Context, limit int) ([]AnalysisRecord, error)
}
