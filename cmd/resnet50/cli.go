package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/born-ml/backbone/internal/config"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// parseArgs resolves the run configuration: defaults, then the optional
// HCL file, then any flags given explicitly. It returns shouldExit for -h
// and -version.
func parseArgs(ctx context.Context, args []string, output io.Writer) (config.Config, bool, error) {
	flagSet := flag.NewFlagSet("resnet50", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
resnet50 - Run the ResNet-50 feature backbone on a random image batch.

Usage:
  resnet50 [options]

Options:
`)
		flagSet.PrintDefaults()
	}

	defaults := config.Default()
	configFlag := flagSet.String("config", "", "Path to an HCL run configuration.")
	batchFlag := flagSet.Int("batch", defaults.Batch, "Batch size.")
	heightFlag := flagSet.Int("height", defaults.Height, "Image height.")
	widthFlag := flagSet.Int("width", defaults.Width, "Image width.")
	seedFlag := flagSet.Int64("seed", defaults.Seed, "Seed for weights and input.")
	trainingFlag := flagSet.Bool("training", false, "Run batch norm in training mode.")
	weightsFlag := flagSet.String("weights", "", "SafeTensors checkpoint to load.")
	saveFlag := flagSet.String("save-weights", "", "Write the weights to this SafeTensors file after the run.")
	workersFlag := flagSet.Int("workers", defaults.Workers, "Worker goroutines for CPU kernels. 1 disables parallelism.")
	logLevelFlag := flagSet.String("log-level", defaults.LogLevel, "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	logFormatFlag := flagSet.String("log-format", defaults.LogFormat, "Log output format. Options: 'text' or 'json'.")
	versionFlag := flagSet.Bool("version", false, "Print the version and exit.")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return config.Config{}, true, nil
		}
		return config.Config{}, false, &ExitError{Code: 2, Message: err.Error()}
	}
	if flagSet.NArg() > 0 {
		return config.Config{}, false, &ExitError{Code: 2, Message: "unexpected arguments: " + strings.Join(flagSet.Args(), " ")}
	}
	if *versionFlag {
		fmt.Fprintf(output, "resnet50 %s (naming schema %s)\n", version, namingSchema)
		return config.Config{}, true, nil
	}

	cfg := defaults
	if *configFlag != "" {
		loaded, err := config.Load(ctx, *configFlag)
		if err != nil {
			return config.Config{}, false, &ExitError{Code: 2, Message: err.Error()}
		}
		cfg = loaded
	}

	flagSet.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "batch":
			cfg.Batch = *batchFlag
		case "height":
			cfg.Height = *heightFlag
		case "width":
			cfg.Width = *widthFlag
		case "seed":
			cfg.Seed = *seedFlag
		case "training":
			if *trainingFlag {
				cfg.Mode = "training"
			} else {
				cfg.Mode = "inference"
			}
		case "weights":
			cfg.Weights = *weightsFlag
		case "save-weights":
			cfg.SaveWeights = *saveFlag
		case "workers":
			cfg.Workers = *workersFlag
			cfg.Parallel = *workersFlag > 1
		case "log-level":
			cfg.LogLevel = strings.ToLower(*logLevelFlag)
		case "log-format":
			cfg.LogFormat = strings.ToLower(*logFormatFlag)
		}
	})

	if err := cfg.Validate(); err != nil {
		return config.Config{}, false, &ExitError{Code: 2, Message: err.Error()}
	}
	return cfg, false, nil
}
