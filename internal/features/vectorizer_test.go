package features

import (
	"bytes"
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/mikey/phish-detector/internal/config"
	"github.com/mikey/phish-detector/internal/core"
)

func fitted(t *testing.T, cfg config.VectorizerConfig, docs ...string) *Vectorizer {
	t.Helper()
	v := NewVectorizer(cfg)
	if err := v.Fit(docs); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	return v
}

func TestTransformBeforeFit(t *testing.T) {
	v := NewVectorizer(config.DefaultVectorizerConfig())
	if _, err := v.Transform("free click"); !errors.Is(err, core.ErrUnfittedVectorizer) {
		t.Fatalf("expected ErrUnfittedVectorizer, got %v", err)
	}
	if _, err := v.MarshalBinary(); !errors.Is(err, core.ErrUnfittedVectorizer) {
		t.Fatalf("expected ErrUnfittedVectorizer from MarshalBinary, got %v", err)
	}
}

func TestFitEmptyCorpus(t *testing.T) {
	v := NewVectorizer(config.DefaultVectorizerConfig())
	if err := v.Fit(nil); !errors.Is(err, core.ErrInsufficientTrainingData) {
		t.Fatalf("expected ErrInsufficientTrainingData, got %v", err)
	}
	if err := v.Fit([]string{"a b c", ""}); !errors.Is(err, core.ErrEmptyVocabulary) {
		t.Fatalf("expected ErrEmptyVocabulary, got %v", err)
	}
	if v.Fitted() {
		t.Fatal("vectorizer should stay unfitted after a failed fit")
	}
}

func TestVocabularyUnigramsAndBigrams(t *testing.T) {
	v := fitted(t, config.DefaultVectorizerConfig(), "free click", "click now")

	want := []string{"click", "click now", "free", "free click", "now"}
	if got := v.Vocabulary(); !reflect.DeepEqual(got, want) {
		t.Fatalf("vocabulary = %v, want %v", got, want)
	}
	if v.Dimension() != len(want) {
		t.Fatalf("dimension = %d, want %d", v.Dimension(), len(want))
	}

	idf, ok := v.IDF("click")
	if !ok || math.Abs(idf-1) > 1e-12 {
		t.Fatalf("idf(click) = %v, want 1", idf)
	}
	idf, ok = v.IDF("free")
	if want := math.Log(3.0/2.0) + 1; !ok || math.Abs(idf-want) > 1e-12 {
		t.Fatalf("idf(free) = %v, want %v", idf, want)
	}
}

func TestSingleLetterTokensIgnored(t *testing.T) {
	v := fitted(t, config.DefaultVectorizerConfig(), "x click y")
	want := []string{"click"}
	if got := v.Vocabulary(); !reflect.DeepEqual(got, want) {
		t.Fatalf("vocabulary = %v, want %v", got, want)
	}
}

func TestMaxFeatures(t *testing.T) {
	cfg := config.VectorizerConfig{MaxFeatures: 2, NGramMin: 1, NGramMax: 1}
	v := fitted(t, cfg, "aa bb", "aa cc", "aa bb")

	want := []string{"aa", "bb"}
	if got := v.Vocabulary(); !reflect.DeepEqual(got, want) {
		t.Fatalf("vocabulary = %v, want %v", got, want)
	}
}

func TestMaxFeaturesTieBreak(t *testing.T) {
	cfg := config.VectorizerConfig{MaxFeatures: 2, NGramMin: 1, NGramMax: 1}
	v := fitted(t, cfg, "dd cc bb aa")

	want := []string{"aa", "bb"}
	if got := v.Vocabulary(); !reflect.DeepEqual(got, want) {
		t.Fatalf("vocabulary = %v, want %v", got, want)
	}
}

func TestTransformOutOfVocabulary(t *testing.T) {
	v := fitted(t, config.DefaultVectorizerConfig(), "free click", "click now")
	before := v.Vocabulary()

	vec, err := v.Transform("unseen words only")
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if len(vec) != v.Dimension() {
		t.Fatalf("vector length = %d, want %d", len(vec), v.Dimension())
	}
	for i, x := range vec {
		if x != 0 {
			t.Fatalf("expected zero vector, index %d = %v", i, x)
		}
	}
	if !reflect.DeepEqual(before, v.Vocabulary()) {
		t.Fatal("transform must not change the vocabulary")
	}
}

func TestTransformDeterministicAndNormalized(t *testing.T) {
	v := fitted(t, config.DefaultVectorizerConfig(), "free click", "click now", "account verifi click")

	a, err := v.Transform("click free click unknown")
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	b, err := v.Transform("click free click unknown")
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("same text produced different vectors: %v vs %v", a, b)
	}

	var norm float64
	for _, x := range a {
		norm += x * x
	}
	if math.Abs(norm-1) > 1e-9 {
		t.Fatalf("expected unit L2 norm, got %v", norm)
	}
}

func TestFitTransformMatchesTransform(t *testing.T) {
	docs := []string{"free click", "click now", "account verifi click"}
	v := NewVectorizer(config.DefaultVectorizerConfig())
	matrix, err := v.FitTransform(docs)
	if err != nil {
		t.Fatalf("FitTransform: %v", err)
	}
	for i, doc := range docs {
		vec, err := v.Transform(doc)
		if err != nil {
			t.Fatalf("Transform: %v", err)
		}
		if !reflect.DeepEqual(vec, matrix[i]) {
			t.Fatalf("row %d differs from Transform", i)
		}
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	v := fitted(t, config.DefaultVectorizerConfig(), "free click", "click now", "account verifi click")

	data, err := v.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	again, err := v.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	if !bytes.Equal(data, again) {
		t.Fatal("encoding should be byte-stable")
	}

	restored := &Vectorizer{}
	if err := restored.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if restored.Dimension() != v.Dimension() {
		t.Fatalf("dimension = %d, want %d", restored.Dimension(), v.Dimension())
	}

	want, _ := v.Transform("click verifi account now")
	got, err := restored.Transform("click verifi account now")
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("restored vectorizer produced %v, want %v", got, want)
	}
}

func TestUnmarshalGarbage(t *testing.T) {
	v := &Vectorizer{}
	if err := v.UnmarshalBinary([]byte("not a vectorizer")); err == nil {
		t.Fatal("expected error decoding garbage")
	}
}
