package artifacts

import (
	"bytes"
	"context"
	"encoding"
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/mikey/phish-detector/internal/core"
	"github.com/mikey/phish-detector/internal/features"
	"github.com/mikey/phish-detector/internal/forest"
	"go.uber.org/zap"
)

const (
	kindVectorizer = "vectorizer"
	kindClassifier = "classifier"
)

// envelope wraps each serialized half of a model pair with the metadata needed
// to detect a vectorizer and classifier that were not trained together
type envelope struct {
	Kind      string
	PairID    string
	Dimension int
	TrainedAt time.Time
	Payload   []byte
}

// FileRepository stores the vectorizer and the classifier of a model pair as two files
type FileRepository struct {
	vectorizerPath string
	classifierPath string
	logger         *zap.Logger
}

// NewFileRepository creates a new file based artifact repository
func NewFileRepository(vectorizerPath, classifierPath string, logger *zap.Logger) *FileRepository {
	return &FileRepository{
		vectorizerPath: vectorizerPath,
		classifierPath: classifierPath,
		logger:         logger,
	}
}

// Save writes both halves of the pair. Nothing is replaced unless both encode successfully.
func (r *FileRepository) Save(ctx context.Context, pair *core.ModelPair) error {
	if err := pair.Validate(); err != nil {
		return err
	}
	if pair.ID == "" {
		return fmt.Errorf("model pair has no id")
	}

	vecData, err := r.encode(kindVectorizer, pair, pair.Vectorizer)
	if err != nil {
		return err
	}
	clfData, err := r.encode(kindClassifier, pair, pair.Classifier)
	if err != nil {
		return err
	}

	vecTmp, err := writeTemp(r.vectorizerPath, vecData)
	if err != nil {
		return err
	}
	clfTmp, err := writeTemp(r.classifierPath, clfData)
	if err != nil {
		os.Remove(vecTmp)
		return err
	}

	if err := ctx.Err(); err != nil {
		os.Remove(vecTmp)
		os.Remove(clfTmp)
		return err
	}

	if err := os.Rename(vecTmp, r.vectorizerPath); err != nil {
		os.Remove(vecTmp)
		os.Remove(clfTmp)
		return fmt.Errorf("failed to install vectorizer: %w", err)
	}
	if err := os.Rename(clfTmp, r.classifierPath); err != nil {
		os.Remove(clfTmp)
		return fmt.Errorf("failed to install classifier: %w", err)
	}

	r.logger.Info("Saved model artifacts",
		zap.String("pair_id", pair.ID),
		zap.Int("dimension", pair.Vectorizer.Dimension()),
		zap.String("vectorizer_path", r.vectorizerPath),
		zap.String("classifier_path", r.classifierPath))
	return nil
}

// Load reads both halves and checks that they belong to the same training run
func (r *FileRepository) Load(ctx context.Context) (*core.ModelPair, error) {
	vecEnv, err := readEnvelope(r.vectorizerPath, kindVectorizer)
	if err != nil {
		return nil, err
	}
	clfEnv, err := readEnvelope(r.classifierPath, kindClassifier)
	if err != nil {
		return nil, err
	}

	if vecEnv.PairID != clfEnv.PairID {
		return nil, fmt.Errorf("%w: vectorizer from run %s, classifier from run %s",
			core.ErrArtifactMismatch, vecEnv.PairID, clfEnv.PairID)
	}
	if vecEnv.Dimension != clfEnv.Dimension {
		return nil, fmt.Errorf("%w: vectorizer dimension %d, classifier dimension %d",
			core.ErrArtifactMismatch, vecEnv.Dimension, clfEnv.Dimension)
	}

	vec := &features.Vectorizer{}
	if err := vec.UnmarshalBinary(vecEnv.Payload); err != nil {
		return nil, fmt.Errorf("failed to load vectorizer %s: %w", r.vectorizerPath, err)
	}
	clf := &forest.Forest{}
	if err := clf.UnmarshalBinary(clfEnv.Payload); err != nil {
		return nil, fmt.Errorf("failed to load classifier %s: %w", r.classifierPath, err)
	}
	if vec.Dimension() != vecEnv.Dimension {
		return nil, fmt.Errorf("%w: vectorizer payload has dimension %d, envelope says %d",
			core.ErrArtifactMismatch, vec.Dimension(), vecEnv.Dimension)
	}

	pair := &core.ModelPair{
		ID:         vecEnv.PairID,
		TrainedAt:  vecEnv.TrainedAt,
		Vectorizer: vec,
		Classifier: clf,
	}
	if err := pair.Validate(); err != nil {
		return nil, err
	}

	r.logger.Debug("Loaded model artifacts",
		zap.String("pair_id", pair.ID),
		zap.Int("dimension", vec.Dimension()))
	return pair, nil
}

func (r *FileRepository) encode(kind string, pair *core.ModelPair, part any) ([]byte, error) {
	m, ok := part.(encoding.BinaryMarshaler)
	if !ok {
		return nil, fmt.Errorf("%s %T cannot be serialized", kind, part)
	}
	payload, err := m.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", kind, err)
	}

	var buf bytes.Buffer
	err = gob.NewEncoder(&buf).Encode(envelope{
		Kind:      kind,
		PairID:    pair.ID,
		Dimension: pair.Vectorizer.Dimension(),
		TrainedAt: pair.TrainedAt.UTC(),
		Payload:   payload,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s envelope: %w", kind, err)
	}
	return buf.Bytes(), nil
}

func readEnvelope(path, kind string) (*envelope, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", core.ErrArtifactsNotFound, path)
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var env envelope
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&env); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if env.Kind != kind {
		return nil, fmt.Errorf("%w: %s holds a %s, expected a %s", core.ErrArtifactMismatch, path, env.Kind, kind)
	}
	return &env, nil
}

// writeTemp writes data next to path and returns the temporary file name
func writeTemp(path string, data []byte) (string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create artifact directory %s: %w", dir, err)
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary artifact: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write temporary artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to close temporary artifact: %w", err)
	}
	return f.Name(), nil
}
