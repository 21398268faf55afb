package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

type lowerNormalizer struct{}

func (lowerNormalizer) Normalize(text string) string { return strings.ToLower(text) }

type fakeVectorizer struct {
	dim int
	err error
}

func (v fakeVectorizer) Transform(normalized string) ([]float64, error) {
	if v.err != nil {
		return nil, v.err
	}
	vec := make([]float64, v.dim)
	if strings.Contains(normalized, "verify") {
		vec[0] = 1
	}
	return vec, nil
}

func (v fakeVectorizer) Dimension() int { return v.dim }

// fakeClassifier lists classes in an order different from the canonical one
type fakeClassifier struct {
	classes []string
	dim     int
}

func (c fakeClassifier) Predict(x []float64) (string, error) {
	if x[0] > 0 {
		return "phishing", nil
	}
	return "legitimate", nil
}

func (c fakeClassifier) PredictProba(x []float64) ([]float64, error) {
	// classes: phishing, legitimate
	if x[0] > 0 {
		return []float64{0.9, 0.1}, nil
	}
	return []float64{0.3, 0.7}, nil
}

func (c fakeClassifier) Classes() []string { return c.classes }

func (c fakeClassifier) ClassIndex(class string) (int, bool) {
	for i, name := range c.classes {
		if name == class {
			return i, true
		}
	}
	return 0, false
}

func (c fakeClassifier) NumFeatures() int { return c.dim }

func testPair() *ModelPair {
	return &ModelPair{
		ID:         "pair-1",
		Vectorizer: fakeVectorizer{dim: 3},
		Classifier: fakeClassifier{classes: []string{"phishing", "legitimate"}, dim: 3},
	}
}

type fakeArtifacts struct {
	pair *ModelPair
	err  error
}

func (a *fakeArtifacts) Save(ctx context.Context, pair *ModelPair) error {
	a.pair = pair
	return nil
}

func (a *fakeArtifacts) Load(ctx context.Context) (*ModelPair, error) {
	return a.pair, a.err
}

type fakeStore struct {
	records []AnalysisRecord
	err     error
}

func (s *fakeStore) EnsureSchema(ctx context.Context) error { return nil }

func (s *fakeStore) Append(ctx context.Context, text string, prediction string, confidence float64) (*AnalysisRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	r := AnalysisRecord{ID: int64(len(s.records) + 1), EmailText: text, Prediction: prediction, Confidence: confidence}
	s.records = append(s.records, r)
	return &r, nil
}

func (s *fakeStore) Recent(ctx context.Context, limit int) ([]AnalysisRecord, error) {
	return s.records, nil
}

func TestAnalyzeUsesPredictedClassProbability(t *testing.T) {
	results := &fakeStore{}
	d := NewPhishingDetector(lowerNormalizer{}, &fakeArtifacts{pair: testPair()}, results, zaptest.NewLogger(t))

	tests := []struct {
		text       string
		label      Label
		prediction string
		confidence float64
	}{
		{"Please VERIFY your account", LabelPhishing, "Phishing", 0.9},
		{"Lunch at noon", LabelLegitimate, "Legitimate", 0.7},
	}
	for _, tt := range tests {
		got, err := d.Analyze(context.Background(), tt.text)
		if err != nil {
			t.Fatalf("Analyze(%q): %v", tt.text, err)
		}
		if got.Label != tt.label || got.Prediction != tt.prediction || got.Confidence != tt.confidence {
			t.Errorf("Analyze(%q) = %s %s %v", tt.text, got.Label, got.Prediction, got.Confidence)
		}
		if got.IsPhishing() != (tt.label == LabelPhishing) {
			t.Errorf("IsPhishing mismatch for %q", tt.text)
		}
		if got.Probabilities[LabelPhishing]+got.Probabilities[LabelLegitimate] != 1 {
			t.Errorf("probabilities %v", got.Probabilities)
		}
		if !got.Recorded || got.ProcessingID == "" || got.ModelID != "pair-1" {
			t.Errorf("unexpected result metadata %+v", got)
		}
	}

	if len(results.records) != 2 {
		t.Fatalf("expected 2 stored records, got %d", len(results.records))
	}
	if r := results.records[0]; r.EmailText != "Please VERIFY your account" || r.Prediction != "Phishing" || r.Confidence != 0.9 {
		t.Fatalf("unexpected stored record %+v", r)
	}
}

func TestAnalyzeMissingArtifacts(t *testing.T) {
	results := &fakeStore{}
	artifacts := &fakeArtifacts{err: ErrArtifactsNotFound}
	d := NewPhishingDetector(lowerNormalizer{}, artifacts, results, zaptest.NewLogger(t))

	if _, err := d.Analyze(context.Background(), "anything"); !errors.Is(err, ErrArtifactsNotFound) {
		t.Fatalf("expected ErrArtifactsNotFound, got %v", err)
	}
	if len(results.records) != 0 {
		t.Fatal("nothing should be stored without artifacts")
	}
}

func TestAnalyzeStoreFailureIsLogged(t *testing.T) {
	obs, logs := observer.New(zapcore.InfoLevel)
	results := &fakeStore{err: ErrStorageWrite}
	d := NewPhishingDetector(lowerNormalizer{}, &fakeArtifacts{pair: testPair()}, results, zap.New(obs))

	got, err := d.Analyze(context.Background(), "verify now")
	if err != nil {
		t.Fatalf("Analyze should succeed when only storage fails: %v", err)
	}
	if got.Recorded || got.RecordID != 0 {
		t.Fatalf("result should not be marked recorded: %+v", got)
	}
	if got.Prediction != "Phishing" {
		t.Fatalf("unexpected prediction %s", got.Prediction)
	}

	entries := logs.FilterMessage("Failed to store analysis result").All()
	if len(entries) != 1 || entries[0].Level != zapcore.ErrorLevel {
		t.Fatalf("expected one error log, got %d", len(entries))
	}
}

func TestClassifyErrors(t *testing.T) {
	vecErr := errors.New("boom")
	pair := testPair()
	pair.Vectorizer = fakeVectorizer{dim: 3, err: vecErr}
	if _, err := Classify(lowerNormalizer{}, pair, "x"); !errors.Is(err, vecErr) {
		t.Fatalf("expected vectorizer error, got %v", err)
	}

	pair = testPair()
	pair.Classifier = fakeClassifier{classes: []string{"spam", "ham"}, dim: 3}
	if _, err := Classify(lowerNormalizer{}, pair, "verify"); !errors.Is(err, ErrArtifactMismatch) {
		t.Fatalf("expected ErrArtifactMismatch for an unknown class, got %v", err)
	}
}

func TestModelPairValidate(t *testing.T) {
	if err := testPair().Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	p := testPair()
	p.Vectorizer = fakeVectorizer{dim: 4}
	if err := p.Validate(); !errors.Is(err, ErrArtifactMismatch) {
		t.Fatalf("expected ErrArtifactMismatch for differing dimensions, got %v", err)
	}

	p = testPair()
	p.Classifier = fakeClassifier{classes: []string{"phishing", "other"}, dim: 3}
	if err := p.Validate(); !errors.Is(err, ErrArtifactMismatch) {
		t.Fatalf("expected ErrArtifactMismatch for a missing class, got %v", err)
	}

	var nilPair *ModelPair
	if err := nilPair.Validate(); !errors.Is(err, ErrArtifactMismatch) {
		t.Fatalf("expected ErrArtifactMismatch for nil pair, got %v", err)
	}
}

func TestEmailText(t *testing.T) {
	e := &Email{Subject: "Hello", Body: "World"}
	if e.Text() != "Hello\nWorld" {
		t.Fatalf("unexpected text %q", e.Text())
	}
	if (&Email{Body: "only body"}).Text() != "only body" {
		t.Fatal("subjectless email should be the body")
	}
}

func TestParseLabel(t *testing.T) {
	for in, want := range map[string]Label{"phishing": LabelPhishing, " Phishing ": LabelPhishing, "Legitimate": LabelLegitimate} {
		got, err := ParseLabel(in)
		if err != nil || got != want {
			t.Errorf("ParseLabel(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseLabel("spam"); err == nil {
		t.Error("expected error for unknown label")
	}
}
