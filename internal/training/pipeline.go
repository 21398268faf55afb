// Package training fits and evaluates the phishing model pair.
//
// The pipeline loads a labeled CSV corpus, normalizes every text with the
// same Normalizer used at inference time, fits the TF-IDF vectorizer and the
// random forest, reports held-out metrics and, as the very last step, hands
// the fitted pair to the artifact repository.
package training

import (
	"context"
	"fmt"
	"time"

	"github.com/mikey/phish-detector/internal/config"
	"github.com/mikey/phish-detector/internal/core"
	"github.com/mikey/phish-detector/internal/features"
	"github.com/mikey/phish-detector/internal/forest"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// Result is the outcome of one training run
type Result struct {
	Pair      *core.ModelPair
	Report    *Report
	Corpus    CorpusStats
	TrainSize int
	TestSize  int
}

// Pipeline trains model pairs
type Pipeline struct {
	corpus     config.CorpusConfig
	vectorizer config.VectorizerConfig
	forest     config.ForestConfig
	training   config.TrainingConfig
	normalizer core.Normalizer
	artifacts  core.ArtifactRepository
	logger     *zap.Logger
	now        func() time.Time
}

// NewPipeline creates a new training pipeline
func NewPipeline(
	corpus config.CorpusConfig,
	vectorizer config.VectorizerConfig,
	forestCfg config.ForestConfig,
	training config.TrainingConfig,
	normalizer core.Normalizer,
	artifacts core.ArtifactRepository,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		corpus:     corpus,
		vectorizer: vectorizer,
		forest:     forestCfg,
		training:   training,
		normalizer: normalizer,
		artifacts:  artifacts,
		logger:     logger,
		now:        time.Now,
	}
}

// Run loads the configured corpus, trains a model pair and persists it.
// Nothing is persisted when any earlier step fails.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	examples, stats, err := LoadCorpus(p.corpus, p.logger)
	if err != nil {
		return nil, err
	}

	result, err := p.Train(ctx, examples)
	if err != nil {
		return nil, err
	}
	result.Corpus = stats

	if err := p.artifacts.Save(ctx, result.Pair); err != nil {
		return nil, fmt.Errorf("failed to save model artifacts: %w", err)
	}
	return result, nil
}

// Train fits and evaluates a model pair on examples without persisting it
func (p *Pipeline) Train(ctx context.Context, examples []core.LabeledExample) (*Result, error) {
	if len(examples) == 0 {
		return nil, fmt.Errorf("%w: no labeled examples", core.ErrInsufficientTrainingData)
	}

	p.logger.Info("Preprocessing text", zap.Int("examples", len(examples)))
	docs := make([]string, len(examples))
	labels := make([]core.Label, len(examples))
	for i, ex := range examples {
		docs[i] = p.normalizer.Normalize(ex.Text)
		labels[i] = ex.Label
	}

	vec := features.NewVectorizer(p.vectorizer)
	if !p.training.FitVectorizerOnTrainOnly {
		p.logger.Info("Extracting TF-IDF features", zap.Int("documents", len(docs)))
		if err := vec.Fit(docs); err != nil {
			return nil, fmt.Errorf("failed to fit vectorizer: %w", err)
		}
	}

	trainIdx, testIdx, err := StratifiedSplit(labels, p.training.TestRatio, p.training.Seed)
	if err != nil {
		return nil, fmt.Errorf("failed to split corpus: %w", err)
	}
	p.logger.Info("Split corpus",
		zap.Int("train", len(trainIdx)),
		zap.Int("test", len(testIdx)),
		zap.Float64("test_ratio", p.training.TestRatio))

	trainDocs, trainLabels := subset(docs, labels, trainIdx)
	testDocs, testLabels := subset(docs, labels, testIdx)

	if p.training.FitVectorizerOnTrainOnly {
		p.logger.Info("Extracting TF-IDF features", zap.Int("documents", len(trainDocs)))
		if err := vec.Fit(trainDocs); err != nil {
			return nil, fmt.Errorf("failed to fit vectorizer: %w", err)
		}
	}

	xTrain, err := vec.TransformAll(trainDocs)
	if err != nil {
		return nil, fmt.Errorf("failed to vectorize training set: %w", err)
	}
	xTest, err := vec.TransformAll(testDocs)
	if err != nil {
		return nil, fmt.Errorf("failed to vectorize test set: %w", err)
	}

	p.logger.Info("Training random forest",
		zap.Int("trees", p.forest.Trees),
		zap.Int("features", vec.Dimension()))
	start := time.Now()
	clf := forest.New(p.forest)
	if err := clf.Fit(ctx, xTrain, labelStrings(trainLabels)); err != nil {
		return nil, fmt.Errorf("failed to train classifier: %w", err)
	}
	p.logger.Info("Trained random forest", zap.Duration("elapsed", time.Since(start)))

	predicted := make([]core.Label, len(xTest))
	for i, x := range xTest {
		name, err := clf.Predict(x)
		if err != nil {
			return nil, fmt.Errorf("failed to predict test example: %w", err)
		}
		if predicted[i], err = core.ParseLabel(name); err != nil {
			return nil, err
		}
	}

	report, err := Evaluate(core.Labels(), testLabels, predicted)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate classifier: %w", err)
	}

	pair := &core.ModelPair{
		ID:         ulid.Make().String(),
		TrainedAt:  p.now(),
		Vectorizer: vec,
		Classifier: clf,
	}
	if err := pair.Validate(); err != nil {
		return nil, err
	}

	p.logger.Info("Evaluated model pair",
		zap.String("pair_id", pair.ID),
		zap.Float64("accuracy", report.Accuracy),
		zap.Float64("macro_f1", report.Macro.F1))

	return &Result{
		Pair:      pair,
		Report:    report,
		TrainSize: len(trainIdx),
		TestSize:  len(testIdx),
	}, nil
}

func subset(docs []string, labels []core.Label, idx []int) ([]string, []core.Label) {
	d := make([]string, len(idx))
	l := make([]core.Label, len(idx))
	for i, j := range idx {
		d[i] = docs[j]
		l[i] = labels[j]
	}
	return d, l
}

func labelStrings(labels []core.Label) []string {
	out := make([]string, len(labels))
	for i, l := range labels {
		out[i] = string(l)
	}
	return out
}
