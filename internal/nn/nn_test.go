package nn

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/backbone/internal/backend/cpu"
	"github.com/born-ml/backbone/internal/tensor"
)

func newRNG() *rand.Rand {
	return rand.New(rand.NewSource(7)) //nolint:gosec // G404: deterministic tests
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "inference", Inference.String())
	assert.Equal(t, "training", Training.String())
}

func TestHeNormal_Statistics(t *testing.T) {
	backend := cpu.New()
	fanIn := 3 * 3 * 64
	w := HeNormal(fanIn, tensor.Shape{3, 3, 64, 64}, newRNG(), backend)

	data := w.Data()
	var sum, sumSq float64
	for _, v := range data {
		sum += float64(v)
		sumSq += float64(v) * float64(v)
	}
	n := float64(len(data))
	mean := sum / n
	std := math.Sqrt(sumSq/n - mean*mean)
	want := math.Sqrt(2.0 / float64(fanIn))

	assert.InDelta(t, 0, mean, 0.005)
	assert.InDelta(t, want, std, want*0.05, "stddev should be sqrt(2/fanIn)")

	bound := float32(2 * want / truncatedNormalStddev)
	for i, v := range data {
		if v < -bound || v > bound {
			t.Fatalf("value %d = %v outside truncation bound %v", i, v, bound)
		}
	}
}

func TestHeNormal_Reproducible(t *testing.T) {
	backend := cpu.New()
	a := HeNormal(27, tensor.Shape{3, 3, 3, 4}, rand.New(rand.NewSource(1)), backend) //nolint:gosec // G404: test
	b := HeNormal(27, tensor.Shape{3, 3, 3, 4}, rand.New(rand.NewSource(1)), backend) //nolint:gosec // G404: test
	assert.Equal(t, a.Data(), b.Data())
}

func TestConv2D_Construction(t *testing.T) {
	backend := cpu.New()
	conv := NewConv2D(3, 64, 7, 7, 2, tensor.Same, true, newRNG(), backend)

	assert.Equal(t, 3, conv.InChannels())
	assert.Equal(t, 64, conv.OutChannels())
	assert.Equal(t, [2]int{7, 7}, conv.KernelSize())
	assert.Equal(t, 2, conv.Stride())
	assert.Equal(t, tensor.Same, conv.Padding())
	assert.Equal(t, tensor.Shape{7, 7, 3, 64}, conv.Kernel().Tensor().Shape())
	assert.Equal(t, tensor.Shape{64}, conv.Bias().Tensor().Shape())
	assert.Equal(t, "Conv2D(in_channels=3, out_channels=64, kernel_size=(7, 7), stride=2, padding=same, bias=true)", conv.String())

	for _, v := range conv.Bias().Tensor().Data() {
		assert.Equal(t, float32(0), v)
	}

	params := conv.Parameters()
	require.Len(t, params, 2)
	assert.Equal(t, "kernel", params[0].Name())
	assert.Equal(t, "bias", params[1].Name())
	assert.True(t, params[0].Trainable())
}

func TestConv2D_NoBias(t *testing.T) {
	backend := cpu.New()
	conv := NewConv2D(4, 8, 1, 1, 1, tensor.Valid, false, newRNG(), backend)

	assert.Nil(t, conv.Bias())
	assert.Len(t, conv.Parameters(), 1)
	assert.Len(t, conv.StateDict(), 1)
}

func TestConv2D_ForwardShape(t *testing.T) {
	backend := cpu.New()
	tests := []struct {
		name    string
		kernel  int
		stride  int
		padding tensor.Padding
		input   tensor.Shape
	}{
		{"stem", 7, 2, tensor.Same, tensor.Shape{1, 32, 32, 3}},
		{"pointwise", 1, 1, tensor.Valid, tensor.Shape{2, 8, 8, 3}},
		{"pointwise strided", 1, 2, tensor.Valid, tensor.Shape{1, 9, 9, 3}},
		{"3x3 same", 3, 1, tensor.Same, tensor.Shape{1, 5, 7, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conv := NewConv2D(3, 4, tt.kernel, tt.kernel, tt.stride, tt.padding, true, newRNG(), backend)
			x := tensor.Randn[float32](tt.input, newRNG(), backend)

			out := conv.Forward(x, Inference)
			assert.Equal(t, conv.OutputShape(tt.input), out.Shape())
		})
	}
}

func TestConv2D_ForwardAddsBias(t *testing.T) {
	backend := cpu.New()
	conv := NewConv2D(1, 2, 1, 1, 1, tensor.Valid, true, newRNG(), backend)
	copy(conv.Kernel().Tensor().Data(), []float32{2, -1})
	copy(conv.Bias().Tensor().Data(), []float32{0.5, 1})

	x, err := tensor.FromSlice([]float32{1, 3}, tensor.Shape{1, 1, 2, 1}, backend)
	require.NoError(t, err)

	out := conv.Forward(x, Inference)
	assert.Equal(t, tensor.Shape{1, 1, 2, 2}, out.Shape())
	assert.Equal(t, []float32{2.5, 0, 6.5, -2}, out.Data())
}

func TestConv2D_ChannelMismatchPanics(t *testing.T) {
	backend := cpu.New()
	conv := NewConv2D(3, 4, 3, 3, 1, tensor.Same, true, newRNG(), backend)
	x := tensor.Zeros[float32](tensor.Shape{1, 4, 4, 2}, backend)

	assert.Panics(t, func() { conv.Forward(x, Inference) })
}

func TestConv2D_LoadStateDict(t *testing.T) {
	backend := cpu.New()
	src := NewConv2D(2, 3, 3, 3, 1, tensor.Same, true, rand.New(rand.NewSource(1)), backend) //nolint:gosec // G404: test
	dst := NewConv2D(2, 3, 3, 3, 1, tensor.Same, true, rand.New(rand.NewSource(2)), backend) //nolint:gosec // G404: test

	require.NotEqual(t, src.Kernel().Tensor().Data(), dst.Kernel().Tensor().Data())
	require.NoError(t, dst.LoadStateDict(src.StateDict()))
	assert.Equal(t, src.Kernel().Tensor().Data(), dst.Kernel().Tensor().Data())

	err := dst.LoadStateDict(map[string]*tensor.RawTensor{"kernel": src.Kernel().Tensor().Raw()})
	assert.True(t, errors.Is(err, ErrMissingParameter))

	wrong := tensor.Zeros[float32](tensor.Shape{3, 3, 2, 4}, backend)
	err = dst.LoadStateDict(map[string]*tensor.RawTensor{
		"kernel": wrong.Raw(),
		"bias":   src.Bias().Tensor().Raw(),
	})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestBatchNorm_FailedLoadLeavesState(t *testing.T) {
	backend := cpu.New()
	bn := NewBatchNorm(2, backend)

	gamma := tensor.Full[float32](tensor.Shape{2}, 5, backend)
	err := bn.LoadStateDict(map[string]*tensor.RawTensor{
		"gamma":           gamma.Raw(),
		"beta":            gamma.Raw(),
		"moving_mean":     gamma.Raw(),
		"moving_variance": tensor.Ones[float32](tensor.Shape{3}, backend).Raw(),
	})
	require.ErrorIs(t, err, ErrShapeMismatch)
	assert.Equal(t, []float32{1, 1}, bn.Gamma.Tensor().Data())
	assert.Equal(t, []float32{0, 0}, bn.MovingMean.Tensor().Data())
}

func TestBatchNorm_Defaults(t *testing.T) {
	bn := NewBatchNorm(4, cpu.New())

	assert.InDelta(t, 0.99, bn.Momentum, 1e-7)
	assert.InDelta(t, 1e-3, bn.Epsilon, 1e-9)
	assert.Equal(t, 4, bn.Channels())
	assert.Equal(t, []float32{1, 1, 1, 1}, bn.Gamma.Tensor().Data())
	assert.Equal(t, []float32{0, 0, 0, 0}, bn.Beta.Tensor().Data())
	assert.Equal(t, []float32{0, 0, 0, 0}, bn.MovingMean.Tensor().Data())
	assert.Equal(t, []float32{1, 1, 1, 1}, bn.MovingVariance.Tensor().Data())

	params := bn.Parameters()
	require.Len(t, params, 2, "moving statistics are not trainable")
	assert.False(t, bn.MovingMean.Trainable())

	keys := make([]string, 0, 4)
	for k := range bn.StateDict() {
		keys = append(keys, k)
	}
	assert.ElementsMatch(t, []string{"gamma", "beta", "moving_mean", "moving_variance"}, keys)
}

func TestBatchNorm_TrainingUpdatesMovingStatistics(t *testing.T) {
	backend := cpu.New()
	bn := NewBatchNorm(1, backend)

	x, err := tensor.FromSlice([]float32{1, 2, 3, 4}, tensor.Shape{1, 2, 2, 1}, backend)
	require.NoError(t, err)

	out := bn.Forward(x, Training)

	// Batch mean 2.5, biased variance 1.25, unbiased variance 5/3.
	assert.InDelta(t, 0.025, bn.MovingMean.Tensor().Data()[0], 1e-6)
	assert.InDelta(t, 0.99+(5.0/3.0)*0.01, bn.MovingVariance.Tensor().Data()[0], 1e-6)

	norm := 1 / math.Sqrt(1.25+1e-3)
	want := []float64{-1.5 * norm, -0.5 * norm, 0.5 * norm, 1.5 * norm}
	for i, v := range out.Data() {
		assert.InDelta(t, want[i], v, 1e-5)
	}
}

func TestBatchNorm_InferenceLeavesStatistics(t *testing.T) {
	backend := cpu.New()
	bn := NewBatchNorm(3, backend)
	x := tensor.Randn[float32](tensor.Shape{2, 4, 4, 3}, newRNG(), backend)

	out := bn.Forward(x, Inference)

	assert.Equal(t, []float32{0, 0, 0}, bn.MovingMean.Tensor().Data())
	assert.Equal(t, []float32{1, 1, 1}, bn.MovingVariance.Tensor().Data())

	scale := 1 / math.Sqrt(1+1e-3)
	in := x.Data()
	for i, v := range out.Data() {
		assert.InDelta(t, float64(in[i])*scale, v, 1e-5)
	}
}

func TestBatchNorm_InferenceUsesLoadedStatistics(t *testing.T) {
	backend := cpu.New()
	bn := NewBatchNorm(2, backend)

	mk := func(vals ...float32) *tensor.RawTensor {
		tt, err := tensor.FromSlice(vals, tensor.Shape{2}, backend)
		require.NoError(t, err)
		return tt.Raw()
	}
	require.NoError(t, bn.LoadStateDict(map[string]*tensor.RawTensor{
		"gamma":           mk(2, 1),
		"beta":            mk(1, -1),
		"moving_mean":     mk(3, 0),
		"moving_variance": mk(4-1e-3, 1-1e-3),
	}))

	x, err := tensor.FromSlice([]float32{5, 2}, tensor.Shape{1, 1, 1, 2}, backend)
	require.NoError(t, err)

	out := bn.Forward(x, Inference).Data()
	// (5-3)/2*2+1 = 3, (2-0)/1*1-1 = 1
	assert.InDelta(t, 3, out[0], 1e-4)
	assert.InDelta(t, 1, out[1], 1e-4)
}

func TestBatchNorm_ChannelMismatchPanics(t *testing.T) {
	backend := cpu.New()
	bn := NewBatchNorm(3, backend)
	assert.Panics(t, func() {
		bn.Forward(tensor.Zeros[float32](tensor.Shape{1, 2, 2, 4}, backend), Inference)
	})
}

func TestMaxPool2D(t *testing.T) {
	backend := cpu.New()
	pool := NewMaxPool2D(3, 2, tensor.Same, backend)

	x := tensor.Randn[float32](tensor.Shape{1, 16, 16, 2}, newRNG(), backend)
	out := pool.Forward(x, Training)

	assert.Equal(t, tensor.Shape{1, 8, 8, 2}, out.Shape())
	assert.Equal(t, pool.OutputShape(x.Shape()), out.Shape())
	assert.Empty(t, pool.Parameters())
	assert.Empty(t, pool.StateDict())
	assert.NoError(t, pool.LoadStateDict(nil))
	assert.Equal(t, "MaxPool2D(size=3, stride=2, padding=same)", pool.String())
}

func TestReLU(t *testing.T) {
	backend := cpu.New()
	relu := NewReLU[*cpu.CPUBackend]()

	x, err := tensor.FromSlice([]float32{-1, 0, 2, -3}, tensor.Shape{4}, backend)
	require.NoError(t, err)

	assert.Equal(t, []float32{0, 0, 2, 0}, relu.Forward(x, Inference).Data())
	assert.Empty(t, relu.Parameters())
}

func TestModulesImplementInterface(_ *testing.T) {
	var (
		_ Module[*cpu.CPUBackend] = (*Conv2D[*cpu.CPUBackend])(nil)
		_ Module[*cpu.CPUBackend] = (*BatchNorm[*cpu.CPUBackend])(nil)
		_ Module[*cpu.CPUBackend] = (*MaxPool2D[*cpu.CPUBackend])(nil)
		_ Module[*cpu.CPUBackend] = (*ReLU[*cpu.CPUBackend])(nil)
	)
}
