package store

import (
	"context"
	"sync"
	"time"

	"github.com/mikey/phish-detector/internal/core"
	"go.uber.org/zap"
)

// MemoryStore is an in-memory implementation of the ResultStore interface.
// Records are lost when the process exits.
type MemoryStore struct {
	records []core.AnalysisRecord
	nextID  int64
	mu      sync.RWMutex
	logger  *zap.Logger
	now     func() time.Time
}

// NewMemoryStore creates a new in-memory result store
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		nextID: 1,
		logger: logger,
		now:    time.Now,
	}
}

// EnsureSchema is a no-op for the in-memory store
func (s *MemoryStore) EnsureSchema(ctx context.Context) error {
	return nil
}

// Append stores one analysis record
func (s *MemoryStore) Append(ctx context.Context, text string, prediction string, confidence float64) (*core.AnalysisRecord, error) {
	if err := validateRecord(prediction, confidence); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record := core.AnalysisRecord{
		ID:         s.nextID,
		EmailText:  text,
		Prediction: prediction,
		Confidence: confidence,
		Timestamp:  s.now().Local().Format(core.TimestampLayout),
	}
	s.nextID++
	s.records = append(s.records, record)

	s.logger.Debug("Stored analysis record", zap.String("store", "memory"), zap.Int64("id", record.ID))
	return &record, nil
}

// Recent returns up to limit records, newest first. A limit of zero or less returns every record.
func (s *MemoryStore) Recent(ctx context.Context, limit int) ([]core.AnalysisRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.records)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]core.AnalysisRecord, 0, n)
	for i := len(s.records) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.records[i])
	}
	return out, nil
}
