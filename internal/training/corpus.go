package training

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mikey/phish-detector/internal/config"
	"github.com/mikey/phish-detector/internal/core"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// CorpusStats counts what happened to the rows of a corpus file
type CorpusStats struct {
	Rows       int
	Kept       int
	Incomplete int
	Unmapped   int
	Malformed  int
}

// LoadCorpus reads labeled examples from the CSV file named in cfg
func LoadCorpus(cfg config.CorpusConfig, logger *zap.Logger) ([]core.LabeledExample, CorpusStats, error) {
	f, err := os.Open(cfg.Path)
	if err != nil {
		return nil, CorpusStats{}, fmt.Errorf("%w: %w", core.ErrDataLoad, err)
	}
	defer f.Close()

	examples, stats, err := ReadCorpus(f, cfg)
	if err != nil {
		return nil, stats, err
	}

	logger.Info("Loaded training corpus",
		zap.String("path", cfg.Path),
		zap.Int("rows", stats.Rows),
		zap.Int("kept", stats.Kept),
		zap.Int("incomplete", stats.Incomplete),
		zap.Int("unmapped_labels", stats.Unmapped),
		zap.Int("malformed", stats.Malformed))
	return examples, stats, nil
}

// ReadCorpus parses a CSV corpus with a header row. A leading byte-order mark
// is ignored. Rows with an empty text or label, and rows whose label is
// neither a phishing nor a legitimate value, are dropped.
func ReadCorpus(r io.Reader, cfg config.CorpusConfig) ([]core.LabeledExample, CorpusStats, error) {
	var stats CorpusStats

	reader := csv.NewReader(transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder())))
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, stats, fmt.Errorf("%w: corpus is empty", core.ErrDataLoad)
		}
		return nil, stats, fmt.Errorf("%w: failed to read header: %w", core.ErrDataLoad, err)
	}

	textIdx, labelIdx := -1, -1
	for i, h := range header {
		switch strings.TrimSpace(h) {
		case cfg.TextColumn:
			textIdx = i
		case cfg.LabelColumn:
			labelIdx = i
		}
	}
	if textIdx == -1 || labelIdx == -1 {
		return nil, stats, fmt.Errorf("%w: header %v lacks column %q or %q",
			core.ErrDataLoad, header, cfg.TextColumn, cfg.LabelColumn)
	}

	labels := labelMapping(cfg)

	var examples []core.LabeledExample
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		stats.Rows++
		if err != nil {
			stats.Malformed++
			continue
		}
		if textIdx >= len(record) || labelIdx >= len(record) {
			stats.Incomplete++
			continue
		}

		text := record[textIdx]
		rawLabel := strings.TrimSpace(record[labelIdx])
		if strings.TrimSpace(text) == "" || rawLabel == "" {
			stats.Incomplete++
			continue
		}

		label, ok := labels[rawLabel]
		if !ok {
			stats.Unmapped++
			continue
		}

		examples = append(examples, core.LabeledExample{Text: text, Label: label})
	}

	stats.Kept = len(examples)
	return examples, stats, nil
}

func labelMapping(cfg config.CorpusConfig) map[string]core.Label {
	labels := make(map[string]core.Label)
	for _, v := range cfg.LegitimateLabels {
		labels[strings.TrimSpace(v)] = core.LabelLegitimate
	}
	// A value listed for both classes counts as phishing.
	for _, v := range cfg.PhishingLabels {
		labels[strings.TrimSpace(v)] = core.LabelPhishing
	}
	return labels
}
