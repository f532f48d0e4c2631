// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides the pure Go CPU backend.
//
// Convolutions run as im2col followed by gonum BLAS GEMM; a 1x1 stride-1
// convolution is a single GEMM. Other loops are split across goroutines.
//
// Example:
//
//	backend := cpu.New()
//	model := resnet.New(backend, resnet.WithSeed(42))
package cpu

import (
	internalcpu "github.com/born-ml/backbone/internal/backend/cpu"
	"github.com/born-ml/backbone/internal/parallel"
	"github.com/born-ml/backbone/tensor"
)

// Backend represents the CPU backend implementation.
type Backend = internalcpu.CPUBackend

// Compile-time check that Backend implements tensor.Backend.
var _ tensor.Backend = (*Backend)(nil)

// ParallelConfig controls how kernels split work across goroutines.
type ParallelConfig = parallel.Config

// New creates a CPU backend using every CPU.
func New() *Backend {
	return internalcpu.New()
}

// NewWithWorkers creates a CPU backend limited to workers goroutines.
// workers <= 1 runs every kernel on the calling goroutine.
func NewWithWorkers(workers int) *Backend {
	if workers <= 1 {
		return internalcpu.NewWithConfig(parallel.Sequential())
	}
	cfg := parallel.DefaultConfig()
	cfg.Enabled = true
	cfg.NumWorkers = workers
	return internalcpu.NewWithConfig(cfg)
}
