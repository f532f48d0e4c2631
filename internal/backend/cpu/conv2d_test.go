package cpu

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/backbone/internal/parallel"
	"github.com/born-ml/backbone/internal/tensor"
)

func randomRaw(t *testing.T, rng *rand.Rand, shape tensor.Shape, dtype tensor.DataType) *tensor.RawTensor {
	t.Helper()
	raw, err := tensor.NewRaw(shape, dtype, tensor.CPU)
	require.NoError(t, err)
	switch dtype {
	case tensor.Float32:
		for i := range raw.AsFloat32() {
			raw.AsFloat32()[i] = float32(rng.NormFloat64())
		}
	case tensor.Float64:
		for i := range raw.AsFloat64() {
			raw.AsFloat64()[i] = rng.NormFloat64()
		}
	}
	return raw
}

func assertRawClose(t *testing.T, want, got *tensor.RawTensor, tol float64) {
	t.Helper()
	require.True(t, want.Shape().Equal(got.Shape()), "shape: want %v, got %v", want.Shape(), got.Shape())
	switch want.DType() {
	case tensor.Float32:
		w, g := want.AsFloat32(), got.AsFloat32()
		for i := range w {
			if !assert.InDelta(t, w[i], g[i], tol, "element %d", i) {
				return
			}
		}
	case tensor.Float64:
		w, g := want.AsFloat64(), got.AsFloat64()
		for i := range w {
			if !assert.InDelta(t, w[i], g[i], tol, "element %d", i) {
				return
			}
		}
	}
}

// TestConv2D_BasicForward tests a hand-computed valid convolution.
func TestConv2D_BasicForward(t *testing.T) {
	backend := New()

	// Input: [1, 3, 3, 1]
	// 1 2 3
	// 4 5 6
	// 7 8 9
	input, err := tensor.NewRaw(tensor.Shape{1, 3, 3, 1}, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	for i := range input.AsFloat32() {
		input.AsFloat32()[i] = float32(i + 1)
	}

	// Kernel: [2, 2, 1, 1] diagonal
	// 1 0
	// 0 1
	kernel, err := tensor.NewRaw(tensor.Shape{2, 2, 1, 1}, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	copy(kernel.AsFloat32(), []float32{1, 0, 0, 1})

	output := backend.Conv2D(input, kernel, 1, tensor.Valid)

	require.Equal(t, tensor.Shape{1, 2, 2, 1}, output.Shape())
	assert.Equal(t, []float32{6, 8, 12, 14}, output.AsFloat32())
}

// TestConv2D_ChannelMixing checks that a 1x1 kernel is a per-pixel matmul.
func TestConv2D_ChannelMixing(t *testing.T) {
	backend := New()

	// Two pixels, two input channels.
	input, _ := tensor.NewRaw(tensor.Shape{1, 1, 2, 2}, tensor.Float32, tensor.CPU)
	copy(input.AsFloat32(), []float32{1, 2, 3, 4})

	// [1,1,2,3]: out[c] = sum_i in[i] * k[i][c]
	kernel, _ := tensor.NewRaw(tensor.Shape{1, 1, 2, 3}, tensor.Float32, tensor.CPU)
	copy(kernel.AsFloat32(), []float32{
		1, 0, 1,
		0, 1, 1,
	})

	output := backend.Conv2D(input, kernel, 1, tensor.Valid)
	require.Equal(t, tensor.Shape{1, 1, 2, 3}, output.Shape())
	assert.Equal(t, []float32{1, 2, 3, 3, 4, 7}, output.AsFloat32())
}

// TestConv2D_MatchesReference compares the BLAS path with the naive loop nest.
func TestConv2D_MatchesReference(t *testing.T) {
	tests := []struct {
		input   tensor.Shape
		kernel  tensor.Shape
		stride  int
		padding tensor.Padding
	}{
		{tensor.Shape{2, 8, 8, 3}, tensor.Shape{7, 7, 3, 4}, 2, tensor.Same},
		{tensor.Shape{1, 7, 9, 4}, tensor.Shape{3, 3, 4, 5}, 1, tensor.Same},
		{tensor.Shape{2, 6, 6, 8}, tensor.Shape{1, 1, 8, 6}, 1, tensor.Valid},
		{tensor.Shape{2, 7, 7, 8}, tensor.Shape{1, 1, 8, 6}, 2, tensor.Valid},
		{tensor.Shape{1, 5, 5, 2}, tensor.Shape{3, 3, 2, 2}, 2, tensor.Valid},
	}

	rng := rand.New(rand.NewSource(1))
	ref := tensor.NewMockBackend()

	for _, dtype := range []tensor.DataType{tensor.Float32, tensor.Float64} {
		for _, tt := range tests {
			name := fmt.Sprintf("%s/%v*%v/s%d/%s", dtype, tt.input, tt.kernel, tt.stride, tt.padding)
			t.Run(name, func(t *testing.T) {
				input := randomRaw(t, rng, tt.input, dtype)
				kernel := randomRaw(t, rng, tt.kernel, dtype)

				want := ref.Conv2D(input, kernel, tt.stride, tt.padding)
				for _, cfg := range []parallel.Config{parallel.Sequential(), parallel.DefaultConfig()} {
					got := NewWithConfig(cfg).Conv2D(input, kernel, tt.stride, tt.padding)
					assertRawClose(t, want, got, 1e-4)
				}
			})
		}
	}
}

// TestConv2D_SameOutputIsCeilOfStride checks the SAME shape rule used throughout the backbone.
func TestConv2D_SameOutputIsCeilOfStride(t *testing.T) {
	backend := New()
	input, _ := tensor.NewRaw(tensor.Shape{1, 9, 10, 1}, tensor.Float32, tensor.CPU)
	kernel, _ := tensor.NewRaw(tensor.Shape{3, 3, 1, 2}, tensor.Float32, tensor.CPU)

	output := backend.Conv2D(input, kernel, 2, tensor.Same)
	assert.Equal(t, tensor.Shape{1, 5, 5, 2}, output.Shape())
}

func TestConv2D_InvalidInputsPanic(t *testing.T) {
	backend := New()
	input, _ := tensor.NewRaw(tensor.Shape{1, 4, 4, 3}, tensor.Float32, tensor.CPU)
	wrongChannels, _ := tensor.NewRaw(tensor.Shape{3, 3, 2, 1}, tensor.Float32, tensor.CPU)
	tooBig, _ := tensor.NewRaw(tensor.Shape{5, 5, 3, 1}, tensor.Float32, tensor.CPU)
	flat, _ := tensor.NewRaw(tensor.Shape{4, 3}, tensor.Float32, tensor.CPU)

	assert.PanicsWithValue(t, "conv2d: input channels 3 != kernel channels 2", func() {
		backend.Conv2D(input, wrongChannels, 1, tensor.Same)
	})
	assert.Panics(t, func() { backend.Conv2D(input, tooBig, 1, tensor.Valid) })
	assert.Panics(t, func() { backend.Conv2D(flat, wrongChannels, 1, tensor.Same) })
	assert.Panics(t, func() { backend.Conv2D(input, wrongChannels, 0, tensor.Same) })
}
