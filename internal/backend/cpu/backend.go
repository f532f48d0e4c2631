// Package cpu implements the CPU backend on top of gonum BLAS.
package cpu

import (
	"fmt"

	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/gonum/blas/blas64"

	"github.com/born-ml/backbone/internal/parallel"
	"github.com/born-ml/backbone/internal/tensor"
)

// CPUBackend implements tensor operations on CPU.
//
// Dense products go through gonum's BLAS; loops that BLAS does not cover
// are split across goroutines with the parallel package.
type CPUBackend struct {
	device tensor.Device
	par    parallel.Config
}

// New creates a new CPU backend with the default parallel configuration.
func New() *CPUBackend {
	return NewWithConfig(parallel.DefaultConfig())
}

// NewWithConfig creates a CPU backend with an explicit parallel configuration.
func NewWithConfig(cfg parallel.Config) *CPUBackend {
	return &CPUBackend{
		device: tensor.CPU,
		par:    cfg,
	}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}

// Add performs element-wise addition.
//
// b must either have the shape of a or be a vector whose length equals the
// last dimension of a (per-channel broadcast).
func (cpu *CPUBackend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	if a.DType() != b.DType() {
		panic(fmt.Sprintf("add: dtype mismatch %s vs %s", a.DType(), b.DType()))
	}

	result := a.Clone()

	switch {
	case a.Shape().Equal(b.Shape()):
		// result += b
		switch a.DType() {
		case tensor.Float32:
			blas32.Axpy(1, vec32(b.AsFloat32()), vec32(result.AsFloat32()))
		case tensor.Float64:
			blas64.Axpy(1, vec64(b.AsFloat64()), vec64(result.AsFloat64()))
		default:
			panic(fmt.Sprintf("add: unsupported dtype %s", a.DType()))
		}
	case len(b.Shape()) == 1 && len(a.Shape()) > 0 && b.Shape()[0] == a.Shape().Channels():
		switch a.DType() {
		case tensor.Float32:
			addChannels(result.AsFloat32(), b.AsFloat32(), cpu.par)
		case tensor.Float64:
			addChannels(result.AsFloat64(), b.AsFloat64(), cpu.par)
		default:
			panic(fmt.Sprintf("add: unsupported dtype %s", a.DType()))
		}
	default:
		panic(fmt.Sprintf("add: incompatible shapes %v and %v", a.Shape(), b.Shape()))
	}

	return result
}

// ReLU computes max(0, x) element-wise.
func (cpu *CPUBackend) ReLU(x *tensor.RawTensor) *tensor.RawTensor {
	result := x.Clone()
	switch x.DType() {
	case tensor.Float32:
		reluInplace(result.AsFloat32(), cpu.par)
	case tensor.Float64:
		reluInplace(result.AsFloat64(), cpu.par)
	default:
		panic(fmt.Sprintf("relu: unsupported dtype %s", x.DType()))
	}
	return result
}

type float interface {
	~float32 | ~float64
}

func addChannels[T float](dst, bias []T, cfg parallel.Config) {
	c := len(bias)
	parallel.ForRange(len(dst)/c, func(start, end int) {
		for row := start; row < end; row++ {
			line := dst[row*c : (row+1)*c]
			for j := range line {
				line[j] += bias[j]
			}
		}
	}, cfg)
}

func reluInplace[T float](data []T, cfg parallel.Config) {
	parallel.ForRange(len(data), func(start, end int) {
		for i := start; i < end; i++ {
			if data[i] < 0 {
				data[i] = 0
			}
		}
	}, cfg)
}

func vec32(data []float32) blas32.Vector {
	return blas32.Vector{N: len(data), Data: data, Inc: 1}
}

func vec64(data []float64) blas64.Vector {
	return blas64.Vector{N: len(data), Data: data, Inc: 1}
}
