package core

import "errors"

var (
	// ErrDataLoad is returned when the training corpus is missing or unreadable
	ErrDataLoad = errors.New("training data could not be loaded")
	// ErrInsufficientTrainingData is returned for empty or single-class training sets
	ErrInsufficientTrainingData = errors.New("insufficient training data")
	// ErrEmptyVocabulary is returned when a corpus yields no terms at all
	ErrEmptyVocabulary = errors.New("empty vocabulary")
	// ErrUnfittedVectorizer is returned when a vectorizer is used before it was fitted
	ErrUnfittedVectorizer = errors.New("vectorizer has not been fitted")
	// ErrDimensionMismatch is returned when a feature vector does not fit the classifier
	ErrDimensionMismatch = errors.New("feature dimension mismatch")
	// ErrArtifactsNotFound is returned when no trained model pair has been persisted
	ErrArtifactsNotFound = errors.New("model artifacts not found")
	// ErrArtifactMismatch is returned when a vectorizer and classifier come from different training runs
	ErrArtifactMismatch = errors.New("vectorizer and classifier do not belong together")
	// ErrStorageWrite is returned when an analysis record cannot be stored
	ErrStorageWrite = errors.New("failed to store analysis record")
)
