package config

import (
	"fmt"
	"time"
)

// CorpusConfig describes where the training corpus lives and how to read it
type CorpusConfig struct {
	Path             string
	TextColumn       string
	LabelColumn      string
	PhishingLabels   []string
	LegitimateLabels []string
}

// ArtifactConfig describes where the model artifact pair is persisted
type ArtifactConfig struct {
	VectorizerPath string
	ClassifierPath string
	CacheTTL       time.Duration
}

// NormalizerConfig represents the configuration for the text normalizer
type NormalizerConfig struct {
	StopwordsFile string
}

// VectorizerConfig represents the configuration for the TF-IDF vectorizer
type VectorizerConfig struct {
	MaxFeatures int
	NGramMin    int
	NGramMax    int
}

// ForestConfig represents the configuration for the random forest classifier
type ForestConfig struct {
	Trees           int
	Seed            uint64
	Workers         int
	MaxDepth        int
	MinSamplesSplit int
}

// TrainingConfig represents the configuration for the training pipeline
type TrainingConfig struct {
	TestRatio                float64
	Seed                     uint64
	FitVectorizerOnTrainOnly bool
}

// StoreConfig represents the configuration for the result store
type StoreConfig struct {
	Type        string
	SQLitePath  string
	MySQLDSN    string
	BusyTimeout time.Duration
}

// ServerConfig represents the configuration for the Postfix content filter
type ServerConfig struct {
	FilterType       string
	ListenAddress    string
	BlockPhishing    bool
	StatusHeader     string
	ConfidenceHeader string
	ModelHeader      string
	PostfixAddress   string
	PostfixPort      int
	PostfixEnabled   bool
	ModifySubject    bool
	SubjectPrefix    string
}

// FilterConfig represents settings shared by the mail front ends
type FilterConfig struct {
	WhitelistedDomains []string
	MaxBodySize        int
}

// DefaultVectorizerConfig returns the vectorizer settings used when none are configured
func DefaultVectorizerConfig() VectorizerConfig {
	return VectorizerConfig{MaxFeatures: 5000, NGramMin: 1, NGramMax: 2}
}

// DefaultForestConfig returns the forest settings used when none are configured
func DefaultForestConfig() ForestConfig {
	return ForestConfig{Trees: 100, Seed: 42, MinSamplesSplit: 2}
}

// DefaultTrainingConfig returns the training settings used when none are configured
func DefaultTrainingConfig() TrainingConfig {
	return TrainingConfig{TestRatio: 0.2, Seed: 42}
}

// GetCorpus returns the training corpus configuration
func (c *Config) GetCorpus() CorpusConfig {
	return CorpusConfig{
		Path:             c.GetString("corpus.path"),
		TextColumn:       c.GetString("corpus.text_column"),
		LabelColumn:      c.GetString("corpus.label_column"),
		PhishingLabels:   c.GetStringSlice("corpus.phishing_labels"),
		LegitimateLabels: c.GetStringSlice("corpus.legitimate_labels"),
	}
}

// GetArtifacts returns the model artifact configuration
func (c *Config) GetArtifacts() (ArtifactConfig, error) {
	ttl, err := c.GetDuration("artifacts.cache_ttl")
	if err != nil {
		return ArtifactConfig{}, fmt.Errorf("invalid artifact cache ttl: %w", err)
	}
	return ArtifactConfig{
		VectorizerPath: c.GetString("artifacts.vectorizer_path"),
		ClassifierPath: c.GetString("artifacts.classifier_path"),
		CacheTTL:       ttl,
	}, nil
}

// GetNormalizer returns the normalizer configuration
func (c *Config) GetNormalizer() NormalizerConfig {
	return NormalizerConfig{
		StopwordsFile: c.GetString("normalizer.stopwords_file"),
	}
}

// GetVectorizer returns the vectorizer configuration
func (c *Config) GetVectorizer() VectorizerConfig {
	return VectorizerConfig{
		MaxFeatures: c.GetInt("vectorizer.max_features"),
		NGramMin:    c.GetInt("vectorizer.ngram_min"),
		NGramMax:    c.GetInt("vectorizer.ngram_max"),
	}
}

// GetForest returns the random forest configuration
func (c *Config) GetForest() ForestConfig {
	return ForestConfig{
		Trees:           c.GetInt("forest.trees"),
		Seed:            uint64(c.GetInt64("forest.seed")),
		Workers:         c.GetInt("forest.workers"),
		MaxDepth:        c.GetInt("forest.max_depth"),
		MinSamplesSplit: c.GetInt("forest.min_samples_split"),
	}
}

// GetTraining returns the training pipeline configuration
func (c *Config) GetTraining() TrainingConfig {
	return TrainingConfig{
		TestRatio:                c.GetFloat64("training.test_ratio"),
		Seed:                     uint64(c.GetInt64("training.seed")),
		FitVectorizerOnTrainOnly: c.GetBool("training.fit_vectorizer_on_train_only"),
	}
}

// GetStore returns the result store configuration
func (c *Config) GetStore() (StoreConfig, error) {
	timeout, err := c.GetDuration("store.busy_timeout")
	if err != nil {
		return StoreConfig{}, fmt.Errorf("invalid store busy timeout: %w", err)
	}
	return StoreConfig{
		Type:        c.GetString("store.type"),
		SQLitePath:  c.GetString("store.sqlite_path"),
		MySQLDSN:    c.GetString("store.mysql_dsn"),
		BusyTimeout: timeout,
	}, nil
}

// GetServer returns the Postfix content filter configuration
func (c *Config) GetServer() ServerConfig {
	return ServerConfig{
		FilterType:       c.GetString("server.filter_type"),
		ListenAddress:    c.GetString("server.listen_address"),
		BlockPhishing:    c.GetBool("server.block_phishing"),
		StatusHeader:     c.GetString("server.headers.status"),
		ConfidenceHeader: c.GetString("server.headers.confidence"),
		ModelHeader:      c.GetString("server.headers.model"),
		PostfixAddress:   c.GetString("server.postfix.address"),
		PostfixPort:      c.GetInt("server.postfix.port"),
		PostfixEnabled:   c.GetBool("server.postfix.enabled"),
		ModifySubject:    c.GetBool("server.modify_subject"),
		SubjectPrefix:    c.GetString("server.subject_prefix"),
	}
}

// GetFilter returns the mail front end configuration
func (c *Config) GetFilter() FilterConfig {
	return FilterConfig{
		WhitelistedDomains: c.GetStringSlice("filter.whitelisted_domains"),
		MaxBodySize:        c.GetInt("filter.max_body_size"),
	}
}
