package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mikey/phish-detector/internal/di"
	"github.com/mikey/phish-detector/internal/training"
	"go.uber.org/zap"
)

func main() {
	flags, err := di.ParseTrainFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	container, err := di.BuildCLIContainer(flags)
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	if err := container.Invoke(run); err != nil {
		fmt.Printf("Training failed: %v\n", err)
		os.Exit(1)
	}
}

func run(logger *zap.Logger, pipeline *training.Pipeline) error {
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := pipeline.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("\n=== Corpus ===\n")
	fmt.Printf("Rows: %d, kept: %d, incomplete: %d, unmapped: %d\n",
		result.Corpus.Rows, result.Corpus.Kept, result.Corpus.Incomplete, result.Corpus.Unmapped)
	fmt.Printf("Train examples: %d, test examples: %d\n", result.TrainSize, result.TestSize)

	fmt.Printf("\n=== Evaluation ===\n")
	if err := result.Report.Print(os.Stdout); err != nil {
		return fmt.Errorf("failed to print report: %w", err)
	}

	fmt.Printf("\nModel pair %s saved.\n", result.Pair.ID)
	return nil
}
