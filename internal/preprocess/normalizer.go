// Package preprocess turns raw email text into the canonical token string that
// both the training pipeline and the inference service feed to the vectorizer.
package preprocess

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/kljensen/snowball/english"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed stopwords.yaml
var defaultStoplist []byte

// Stoplist is the YAML layout of a stop-word file
type Stoplist struct {
	Terms []string `yaml:"terms"`
}

// Normalizer lowercases, strips, filters and stems text.
// It holds no mutable state after construction and is safe for concurrent use.
type Normalizer struct {
	stopwords map[string]struct{}
	stem      func(string) string
}

// NewNormalizer builds a Normalizer from the embedded English stop-word list
func NewNormalizer(logger *zap.Logger) (*Normalizer, error) {
	return NewNormalizerFromFile("", logger)
}

// NewNormalizerFromFile builds a Normalizer whose stop words come from a YAML
// file. An empty path selects the embedded English list.
func NewNormalizerFromFile(path string, logger *zap.Logger) (*Normalizer, error) {
	data := defaultStoplist
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read stop-word file: %w", err)
		}
	}

	var sl Stoplist
	if err := yaml.Unmarshal(data, &sl); err != nil {
		return nil, fmt.Errorf("failed to parse stop-word list: %w", err)
	}

	n := NewNormalizerWithStopwords(sl.Terms)
	if logger != nil {
		logger.Debug("Initialized text normalizer",
			zap.Int("stopwords", len(n.stopwords)),
			zap.String("source", sourceName(path)))
	}
	return n, nil
}

// NewNormalizerWithStopwords builds a Normalizer with an explicit stop-word set
func NewNormalizerWithStopwords(stopwords []string) *Normalizer {
	set := make(map[string]struct{}, len(stopwords))
	for _, w := range stopwords {
		set[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
	}
	return &Normalizer{
		stopwords: set,
		stem: func(w string) string {
			return english.Stem(w, true)
		},
	}
}

// Normalize maps text to lowercase stemmed tokens joined by single spaces.
// Normalize(Normalize(s)) == Normalize(s) for every s.
func (n *Normalizer) Normalize(text string) string {
	// Everything outside A-Z and a-z becomes a separator.
	cleaned := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			return r
		}
		return ' '
	}, text)
	cleaned = strings.ToLower(cleaned)

	words := strings.Fields(cleaned)
	out := make([]string, 0, len(words))
	for _, w := range words {
		if n.IsStopword(w) {
			continue
		}
		stem := n.stemToken(w)
		if n.IsStopword(stem) {
			continue
		}
		out = append(out, stem)
	}
	return strings.Join(out, " ")
}

// maxStemPasses bounds stemToken; Porter2 settles within two or three passes
const maxStemPasses = 8

// stemToken stems w repeatedly until the stem no longer changes, so every
// token Normalize emits is a fixed point of the stemmer
func (n *Normalizer) stemToken(w string) string {
	for i := 0; i < maxStemPasses; i++ {
		next := n.stem(w)
		if next == w || next == "" {
			break
		}
		w = next
	}
	return w
}

// NormalizeValue normalizes v when it is a string and returns "" for
// anything else, including nil
func (n *Normalizer) NormalizeValue(v any) string {
	switch t := v.(type) {
	case string:
		return n.Normalize(t)
	case *string:
		if t == nil {
			return ""
		}
		return n.Normalize(*t)
	default:
		return ""
	}
}

// IsStopword reports whether the lowercase token is in the stop-word set
func (n *Normalizer) IsStopword(token string) bool {
	_, ok := n.stopwords[token]
	return ok
}

// StopwordCount returns the size of the stop-word set
func (n *Normalizer) StopwordCount() int {
	return len(n.stopwords)
}

func sourceName(path string) string {
	if path == "" {
		return "embedded"
	}
	return path
}
