package di

import (
	"flag"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/phish-detector/internal/config"
	"github.com/mikey/phish-detector/internal/core"
	"github.com/mikey/phish-detector/internal/factory"
	"github.com/mikey/phish-detector/internal/logging"
	"github.com/mikey/phish-detector/internal/ports"
	"github.com/mikey/phish-detector/internal/training"
)

// CLIFlags contains the command line flags shared by the train and detect tools
type CLIFlags struct {
	// Training flags
	CorpusPath string
	Trees      int

	// Detection flags
	Email     string
	InputFile string
	History   int

	// Common flags
	Verbose    bool
	JSONLog    bool
	ConfigFile string
}

// ParseTrainFlags parses the command line flags of the training tool
func ParseTrainFlags(args []string) (*CLIFlags, error) {
	flags := &CLIFlags{}
	fs := flag.NewFlagSet("phish-train", flag.ContinueOnError)

	fs.StringVar(&flags.CorpusPath, "corpus", "", "Training corpus CSV (overrides corpus.path)")
	fs.IntVar(&flags.Trees, "trees", 0, "Number of trees in the forest (overrides forest.trees)")
	registerCommon(fs, flags)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return flags, nil
}

// ParseDetectFlags parses the command line flags of the detection tool
func ParseDetectFlags(args []string) (*CLIFlags, error) {
	flags := &CLIFlags{}
	fs := flag.NewFlagSet("phish-detect", flag.ContinueOnError)

	fs.StringVar(&flags.Email, "email", "", "Email text to classify")
	fs.StringVar(&flags.InputFile, "file", "", "Input email file (use stdin if neither -email nor -file is given)")
	fs.IntVar(&flags.History, "history", 0, "Print the N most recent stored analyses instead of classifying")
	registerCommon(fs, flags)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return flags, nil
}

func registerCommon(fs *flag.FlagSet, flags *CLIFlags) {
	fs.BoolVar(&flags.Verbose, "verbose", false, "Enable verbose logging and output")
	fs.BoolVar(&flags.JSONLog, "json-log", false, "Output logs in JSON format")
	fs.StringVar(&flags.ConfigFile, "config", "", "Path to config file (default search path when empty)")
}

// BuildCLIContainer creates and configures a dependency injection container for the CLI tools
func BuildCLIContainer(flags *CLIFlags) (*dig.Container, error) {
	container := dig.New()

	// Register flags
	if err := container.Provide(func() *CLIFlags { return flags }); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(func(flags *CLIFlags) (*zap.Logger, error) {
		return logging.InitConsoleLogger(flags.Verbose, flags.JSONLog)
	}); err != nil {
		return nil, err
	}

	// Register configuration
	if err := container.Provide(func(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
		cfg, err := config.NewFromFile(flags.ConfigFile)
		if err != nil {
			return nil, err
		}
		if used := cfg.GetViper().ConfigFileUsed(); used != "" {
			logger.Info("Loaded configuration from file", zap.String("file", used))
		}
		applyFlags(cfg, flags)
		return cfg, nil
	}); err != nil {
		return nil, err
	}

	// The CLI classifies and records the full input text
	if err := provideDetection(container, false); err != nil {
		return nil, err
	}

	// Register email filter
	if err := container.Provide(func(f *factory.FilterFactory) (ports.EmailFilter, error) {
		return f.CreateEmailFilter()
	}); err != nil {
		return nil, err
	}

	// Register training pipeline
	if err := container.Provide(func(
		cfg *config.Config,
		normalizer core.Normalizer,
		artifacts core.ArtifactRepository,
		logger *zap.Logger,
	) *training.Pipeline {
		return training.NewPipeline(
			cfg.GetCorpus(),
			cfg.GetVectorizer(),
			cfg.GetForest(),
			cfg.GetTraining(),
			normalizer,
			artifacts,
			logger,
		)
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// applyFlags layers the command line flags over the loaded configuration
func applyFlags(cfg *config.Config, flags *CLIFlags) {
	v := cfg.GetViper()

	// The CLI tools always print to the console
	v.Set("server.filter_type", "cli")
	v.Set("cli.verbose", flags.Verbose)

	if flags.CorpusPath != "" {
		v.Set("corpus.path", flags.CorpusPath)
	}
	if flags.Trees > 0 {
		v.Set("forest.trees", flags.Trees)
	}
}
