package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	v *viper.Viper
}

// New creates a new configuration instance
func New() (*Config, error) {
	return NewFromFile("")
}

// NewFromFile creates a configuration instance, reading the given file when
// path is not empty and searching the default locations otherwise
func NewFromFile(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/phish-detector/")
		v.AddConfigPath("$HOME/.phish-detector")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Set defaults
	setDefaults(v)

	// Environment variables
	v.AutomaticEnv()
	v.SetEnvPrefix("PHISH_DETECTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults
	}

	return &Config{v: v}, nil
}

// NewFromViper creates a new configuration instance from an existing Viper instance
func NewFromViper(v *viper.Viper) *Config {
	return &Config{v: v}
}

// NewEmptyViper creates a new Viper instance with defaults
func NewEmptyViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// Training corpus defaults
	v.SetDefault("corpus.path", "data/Phishing_Email.csv")
	v.SetDefault("corpus.text_column", "Email Text")
	v.SetDefault("corpus.label_column", "Email Type")
	v.SetDefault("corpus.phishing_labels", []string{"Phishing Email"})
	v.SetDefault("corpus.legitimate_labels", []string{"Safe Email"})

	// Model artifact defaults
	v.SetDefault("artifacts.vectorizer_path", "models/vectorizer.bin")
	v.SetDefault("artifacts.classifier_path", "models/model.bin")
	v.SetDefault("artifacts.cache_ttl", "0s")

	// Normalizer defaults
	v.SetDefault("normalizer.stopwords_file", "")

	// Vectorizer defaults
	v.SetDefault("vectorizer.max_features", 5000)
	v.SetDefault("vectorizer.ngram_min", 1)
	v.SetDefault("vectorizer.ngram_max", 2)

	// Forest defaults
	v.SetDefault("forest.trees", 100)
	v.SetDefault("forest.seed", 42)
	v.SetDefault("forest.workers", 0)
	v.SetDefault("forest.max_depth", 0)
	v.SetDefault("forest.min_samples_split", 2)

	// Training defaults
	v.SetDefault("training.test_ratio", 0.2)
	v.SetDefault("training.seed", 42)
	v.SetDefault("training.fit_vectorizer_on_train_only", false)

	// Result store defaults
	v.SetDefault("store.type", "sqlite")
	v.SetDefault("store.sqlite_path", "phishing_analysis.db")
	v.SetDefault("store.mysql_dsn", "user:password@tcp(localhost:3306)/phishing_analysis")
	v.SetDefault("store.busy_timeout", "5s")

	// Server defaults
	v.SetDefault("server.filter_type", "postfix")
	v.SetDefault("server.listen_address", "0.0.0.0:10025")
	v.SetDefault("server.block_phishing", false)
	v.SetDefault("server.headers.status", "X-Phishing-Status")
	v.SetDefault("server.headers.confidence", "X-Phishing-Confidence")
	v.SetDefault("server.headers.model", "X-Phishing-Model")
	v.SetDefault("server.postfix.address", "127.0.0.1")
	v.SetDefault("server.postfix.port", 10026)
	v.SetDefault("server.postfix.enabled", true)
	v.SetDefault("server.modify_subject", false)
	v.SetDefault("server.subject_prefix", "[**PHISHING**] ")

	// Filter defaults
	v.SetDefault("filter.whitelisted_domains", []string{})
	v.SetDefault("filter.max_body_size", 1024*1024)

	// CLI defaults
	v.SetDefault("cli.verbose", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetInt64 gets an int64 value from the configuration
func (c *Config) GetInt64(key string) int64 {
	return c.v.GetInt64(key)
}

// GetFloat64 gets a float64 value from the configuration
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetBool gets a boolean value from the configuration
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetStringSlice gets a string slice value from the configuration
func (c *Config) GetStringSlice(key string) []string {
	return c.v.GetStringSlice(key)
}

// GetDuration gets a duration value from the configuration
func (c *Config) GetDuration(key string) (time.Duration, error) {
	return time.ParseDuration(c.GetString(key))
}

// GetViper returns the underlying Viper instance
func (c *Config) GetViper() *viper.Viper {
	return c.v
}
