// Package main runs the ResNet-50 backbone on a seeded random batch and
// prints the shapes of the four feature maps.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/born-ml/backbone/internal/backend/cpu"
	"github.com/born-ml/backbone/internal/config"
	"github.com/born-ml/backbone/internal/ctxlog"
	"github.com/born-ml/backbone/internal/resnet"
	"github.com/born-ml/backbone/internal/tensor"
)

const (
	version      = "v0.1.0"
	namingSchema = resnet.NamingSchema
)

func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if err := run(context.Background(), os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run parses args, builds the backbone and prints the feature shapes to outW.
// Logs go to logW.
func run(ctx context.Context, outW, logW io.Writer, args []string) (err error) {
	cfg, shouldExit, err := parseArgs(ctx, args, outW)
	if err != nil || shouldExit {
		return err
	}

	logger := ctxlog.New(cfg.LogLevel, cfg.LogFormat, logW)
	ctx = ctxlog.WithLogger(ctx, logger)

	defer recoverRun(&err)

	return execute(ctx, cfg, outW)
}

// recoverRun turns a kernel panic into a run error, so the command exits
// with code 1. Only this command recovers; resnet.Forward and the layers
// still panic on shape misuse.
func recoverRun(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("backbone run panicked: %v", r)
	}
}

func execute(ctx context.Context, cfg config.Config, outW io.Writer) error {
	logger := ctxlog.FromContext(ctx)
	backend := cpu.NewWithConfig(cfg.ParallelConfig())

	start := time.Now()
	model := resnet.New(backend, resnet.WithSeed(cfg.Seed), resnet.WithLogger(logger))
	logger.Info("Backbone ready.", "parameters", model.NumParameters(), "elapsed", time.Since(start))

	if cfg.Weights != "" {
		if err := model.LoadWeights(cfg.Weights); err != nil {
			return err
		}
	}

	inputShape := cfg.InputShape()
	rng := rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec // G404: reproducible demo input
	images := tensor.Randn[float32](inputShape, rng, backend)

	start = time.Now()
	features := model.Forward(images, cfg.NNMode())
	logger.Info("Forward pass done.", "mode", cfg.Mode, "input", inputShape, "elapsed", time.Since(start))

	analytic := resnet.OutputShapes(inputShape)
	for i, shape := range features.Shapes() {
		fmt.Fprintf(outW, "C%d shape: %s\n", i+2, formatShape(shape))
		if !shape.Equal(analytic[i]) {
			logger.Warn("Feature shape differs from analytic shape.",
				"feature", "C"+strconv.Itoa(i+2), "actual", shape, "analytic", analytic[i])
		}
	}

	if cfg.SaveWeights != "" {
		if err := model.SaveWeights(cfg.SaveWeights); err != nil {
			return err
		}
	}
	return nil
}

// formatShape renders a shape as "[2, 256, 256, 256]".
func formatShape(shape tensor.Shape) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = strconv.Itoa(d)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
