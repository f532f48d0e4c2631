// Package config loads the run configuration of the resnet50 command from
// HCL files.
//
// Example:
//
//	mode = "inference"
//
//	backbone {
//	  seed    = 42
//	  weights = "resnet50.safetensors"
//	}
//
//	input {
//	  batch  = 2
//	  height = 1024
//	  width  = 1024
//	}
//
//	compute {
//	  workers = cpu_count
//	}
//
//	log {
//	  level  = env("BACKBONE_LOG_LEVEL")
//	  format = "json"
//	}
//
// Every block and attribute is optional; omitted values keep their
// defaults. Expressions may use the cpu_count variable and the env(name)
// function.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/born-ml/backbone/internal/ctxlog"
	"github.com/born-ml/backbone/internal/nn"
	"github.com/born-ml/backbone/internal/parallel"
	"github.com/born-ml/backbone/internal/tensor"
)

// ErrInvalidConfig is returned when a configuration fails validation.
var ErrInvalidConfig = errors.New("invalid config")

// Config is a fully resolved run configuration.
type Config struct {
	Mode        string // "inference" or "training"
	Seed        int64  // kernel initializer and input seed
	Weights     string // checkpoint to load, empty for random weights
	SaveWeights string // checkpoint to write after the run, empty to skip

	Batch  int
	Height int
	Width  int

	Parallel bool // split CPU kernels across goroutines
	Workers  int  // worker goroutines when Parallel is set

	LogLevel  string // "debug", "info", "warn" or "error"
	LogFormat string // "text" or "json"
}

// Default returns the configuration of the demonstration run:
// a (2, 1024, 1024, 3) batch in inference mode.
func Default() Config {
	return Config{
		Mode:      nn.Inference.String(),
		Batch:     2,
		Height:    1024,
		Width:     1024,
		Parallel:  true,
		Workers:   runtime.NumCPU(),
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Validate checks value ranges and enumerations.
func (c Config) Validate() error {
	var problems []string

	switch c.Mode {
	case nn.Inference.String(), nn.Training.String():
	default:
		problems = append(problems, fmt.Sprintf("mode %q must be 'inference' or 'training'", c.Mode))
	}
	if c.Batch <= 0 {
		problems = append(problems, fmt.Sprintf("input.batch %d must be positive", c.Batch))
	}
	if c.Height <= 0 || c.Width <= 0 {
		problems = append(problems, fmt.Sprintf("input size %dx%d must be positive", c.Height, c.Width))
	}
	if c.Workers <= 0 {
		problems = append(problems, fmt.Sprintf("compute.workers %d must be positive", c.Workers))
	}
	if _, err := ctxlog.ParseLevel(c.LogLevel); err != nil {
		problems = append(problems, err.Error())
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		problems = append(problems, fmt.Sprintf("log.format %q must be 'text' or 'json'", c.LogFormat))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// NNMode returns Mode as an nn.Mode. Call Validate first.
func (c Config) NNMode() nn.Mode {
	if c.Mode == nn.Training.String() {
		return nn.Training
	}
	return nn.Inference
}

// InputShape returns the NHWC shape of the input batch.
func (c Config) InputShape() tensor.Shape {
	return tensor.Shape{c.Batch, c.Height, c.Width, 3}
}

// ParallelConfig returns the CPU backend work-split configuration.
func (c Config) ParallelConfig() parallel.Config {
	if !c.Parallel {
		return parallel.Sequential()
	}
	cfg := parallel.DefaultConfig()
	cfg.Enabled = c.Workers > 1
	cfg.NumWorkers = c.Workers
	return cfg
}
