package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mikey/phish-detector/internal/adapters/filter"
	"github.com/mikey/phish-detector/internal/core"
	"github.com/mikey/phish-detector/internal/di"
	"github.com/mikey/phish-detector/internal/ports"
	"go.uber.org/zap"
)

func main() {
	flags, err := di.ParseDetectFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	container, err := di.BuildCLIContainer(flags)
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	if flags.History > 0 {
		err = container.Invoke(history)
	} else {
		err = container.Invoke(detect)
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func detect(logger *zap.Logger, flags *di.CLIFlags, emailFilter ports.EmailFilter) error {
	defer logger.Sync()

	email, err := readEmail(flags, logger)
	if err != nil {
		return err
	}

	if _, err := emailFilter.ProcessEmail(context.Background(), email); err != nil {
		return fmt.Errorf("failed to analyze email: %w", err)
	}
	return nil
}

func history(logger *zap.Logger, flags *di.CLIFlags, store core.ResultStore) error {
	defer logger.Sync()

	records, err := store.Recent(context.Background(), flags.History)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No analyses recorded yet.")
		return nil
	}
	for _, r := range records {
		fmt.Printf("#%d  %s  %-10s  %.2f%%  %s\n",
			r.ID, r.Timestamp, r.Prediction, r.Confidence*100, preview(r.EmailText, 60))
	}
	return nil
}

// readEmail returns the email given by -email, -file or stdin. File and stdin
// input is parsed as a mail message only when it looks like one.
func readEmail(flags *di.CLIFlags, logger *zap.Logger) (*core.Email, error) {
	if flags.Email != "" {
		return &core.Email{Body: flags.Email}, nil
	}

	var (
		raw []byte
		err error
	)
	if flags.InputFile != "" {
		logger.Info("Reading email from file", zap.String("file", flags.InputFile))
		raw, err = os.ReadFile(flags.InputFile)
	} else {
		logger.Info("Reading email from stdin")
		raw, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read email: %w", err)
	}

	return filter.EmailFromInput(raw), nil
}

func preview(text string, n int) string {
	r := []rune(strings.Join(strings.Fields(text), " "))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "..."
}
