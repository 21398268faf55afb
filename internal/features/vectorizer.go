// Package features implements the TF-IDF bag-of-words representation used by
// the phishing classifier.
//
// A Vectorizer is fitted once on a corpus of normalized texts. Fitting freezes
// the vocabulary (unigrams and bigrams by default, capped at the most frequent
// terms) and the smoothed inverse document frequencies. After that, Transform
// maps any normalized text into the same fixed-dimensional space; terms outside
// the vocabulary contribute nothing.
package features

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/mikey/phish-detector/internal/config"
	"github.com/mikey/phish-detector/internal/core"
)

// Vectorizer is a TF-IDF vectorizer with a frozen vocabulary
type Vectorizer struct {
	cfg    config.VectorizerConfig
	terms  []string
	index  map[string]int
	idf    []float64
	fitted bool
}

// NewVectorizer creates an unfitted vectorizer
func NewVectorizer(cfg config.VectorizerConfig) *Vectorizer {
	if cfg.NGramMin < 1 {
		cfg.NGramMin = 1
	}
	if cfg.NGramMax < cfg.NGramMin {
		cfg.NGramMax = cfg.NGramMin
	}
	return &Vectorizer{cfg: cfg}
}

// Fit learns the vocabulary and idf weights from docs
func (v *Vectorizer) Fit(docs []string) error {
	if len(docs) == 0 {
		return fmt.Errorf("%w: cannot fit vectorizer on an empty corpus", core.ErrInsufficientTrainingData)
	}

	totals := make(map[string]int)
	df := make(map[string]int)
	for _, doc := range docs {
		counts := v.countTerms(doc)
		for term, c := range counts {
			totals[term] += c
			df[term]++
		}
	}
	if len(totals) == 0 {
		return fmt.Errorf("%w: corpus contains no terms", core.ErrEmptyVocabulary)
	}

	terms := make([]string, 0, len(totals))
	for term := range totals {
		terms = append(terms, term)
	}

	if v.cfg.MaxFeatures > 0 && len(terms) > v.cfg.MaxFeatures {
		sort.Slice(terms, func(i, j int) bool {
			if totals[terms[i]] != totals[terms[j]] {
				return totals[terms[i]] > totals[terms[j]]
			}
			return terms[i] < terms[j]
		})
		terms = terms[:v.cfg.MaxFeatures]
	}
	sort.Strings(terms)

	n := float64(len(docs))
	idf := make([]float64, len(terms))
	for i, term := range terms {
		idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1
	}

	v.setVocabulary(terms, idf)
	return nil
}

// FitTransform fits the vectorizer and returns the vectors of docs
func (v *Vectorizer) FitTransform(docs []string) ([][]float64, error) {
	if err := v.Fit(docs); err != nil {
		return nil, err
	}
	return v.TransformAll(docs)
}

// Transform maps one normalized text into the fitted feature space
func (v *Vectorizer) Transform(normalized string) ([]float64, error) {
	if !v.fitted {
		return nil, core.ErrUnfittedVectorizer
	}

	vec := make([]float64, len(v.terms))
	for term, c := range v.countTerms(normalized) {
		if i, ok := v.index[term]; ok {
			vec[i] = float64(c) * v.idf[i]
		}
	}

	var norm float64
	for _, x := range vec {
		norm += x * x
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec, nil
}

// TransformAll maps every document into the fitted feature space
func (v *Vectorizer) TransformAll(docs []string) ([][]float64, error) {
	out := make([][]float64, len(docs))
	for i, doc := range docs {
		vec, err := v.Transform(doc)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimension returns the vocabulary size; zero before Fit
func (v *Vectorizer) Dimension() int {
	return len(v.terms)
}

// Fitted reports whether Fit has completed
func (v *Vectorizer) Fitted() bool {
	return v.fitted
}

// Vocabulary returns the terms in feature index order
func (v *Vectorizer) Vocabulary() []string {
	out := make([]string, len(v.terms))
	copy(out, v.terms)
	return out
}

// IDF returns the idf weight of term and whether it is in the vocabulary
func (v *Vectorizer) IDF(term string) (float64, bool) {
	i, ok := v.index[term]
	if !ok {
		return 0, false
	}
	return v.idf[i], true
}

// countTerms counts the n-grams of doc. Single-letter tokens are skipped.
func (v *Vectorizer) countTerms(doc string) map[string]int {
	tokens := make([]string, 0, 16)
	for _, tok := range strings.Fields(doc) {
		if len(tok) >= 2 {
			tokens = append(tokens, tok)
		}
	}

	counts := make(map[string]int)
	for n := v.cfg.NGramMin; n <= v.cfg.NGramMax; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			counts[strings.Join(tokens[i:i+n], " ")]++
		}
	}
	return counts
}

func (v *Vectorizer) setVocabulary(terms []string, idf []float64) {
	v.terms = terms
	v.idf = idf
	v.index = make(map[string]int, len(terms))
	for i, term := range terms {
		v.index[term] = i
	}
	v.fitted = true
}

// vectorizerState is the serialized form. Slices only, so encoding is stable.
type vectorizerState struct {
	MaxFeatures int
	NGramMin    int
	NGramMax    int
	Terms       []string
	IDF         []float64
}

// MarshalBinary encodes a fitted vectorizer
func (v *Vectorizer) MarshalBinary() ([]byte, error) {
	if !v.fitted {
		return nil, core.ErrUnfittedVectorizer
	}
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(vectorizerState{
		MaxFeatures: v.cfg.MaxFeatures,
		NGramMin:    v.cfg.NGramMin,
		NGramMax:    v.cfg.NGramMax,
		Terms:       v.terms,
		IDF:         v.idf,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode vectorizer: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary restores a vectorizer encoded by MarshalBinary
func (v *Vectorizer) UnmarshalBinary(data []byte) error {
	var st vectorizerState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&st); err != nil {
		return fmt.Errorf("failed to decode vectorizer: %w", err)
	}
	if len(st.Terms) != len(st.IDF) {
		return fmt.Errorf("corrupt vectorizer: %d terms, %d idf weights", len(st.Terms), len(st.IDF))
	}
	if len(st.Terms) == 0 {
		return fmt.Errorf("corrupt vectorizer: %w", core.ErrEmptyVocabulary)
	}
	v.cfg = config.VectorizerConfig{MaxFeatures: st.MaxFeatures, NGramMin: st.NGramMin, NGramMax: st.NGramMax}
	v.setVocabulary(st.Terms, st.IDF)
	return nil
}
