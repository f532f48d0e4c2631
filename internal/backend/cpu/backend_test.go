package cpu

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/backbone/internal/tensor"
)

func TestCPUBackend_Metadata(t *testing.T) {
	backend := New()
	assert.Equal(t, "CPU", backend.Name())
	assert.Equal(t, tensor.CPU, backend.Device())
}

func TestAdd_SameShape(t *testing.T) {
	backend := New()
	a, _ := tensor.NewRaw(tensor.Shape{2, 2}, tensor.Float32, tensor.CPU)
	b, _ := tensor.NewRaw(tensor.Shape{2, 2}, tensor.Float32, tensor.CPU)
	copy(a.AsFloat32(), []float32{1, 2, 3, 4})
	copy(b.AsFloat32(), []float32{10, 20, 30, 40})

	result := backend.Add(a, b)
	assert.Equal(t, []float32{11, 22, 33, 44}, result.AsFloat32())
	assert.Equal(t, []float32{1, 2, 3, 4}, a.AsFloat32(), "inputs must not be modified")
}

func TestAdd_ChannelBroadcast(t *testing.T) {
	backend := New()
	a, _ := tensor.NewRaw(tensor.Shape{1, 1, 2, 3}, tensor.Float64, tensor.CPU)
	bias, _ := tensor.NewRaw(tensor.Shape{3}, tensor.Float64, tensor.CPU)
	copy(a.AsFloat64(), []float64{0, 1, 2, 3, 4, 5})
	copy(bias.AsFloat64(), []float64{100, 200, 300})

	result := backend.Add(a, bias)
	assert.Equal(t, []float64{100, 201, 302, 103, 204, 305}, result.AsFloat64())
}

func TestAdd_IncompatibleShapesPanic(t *testing.T) {
	backend := New()
	a, _ := tensor.NewRaw(tensor.Shape{2, 3}, tensor.Float32, tensor.CPU)
	b, _ := tensor.NewRaw(tensor.Shape{2}, tensor.Float32, tensor.CPU)
	c, _ := tensor.NewRaw(tensor.Shape{2, 3}, tensor.Float64, tensor.CPU)

	assert.Panics(t, func() { backend.Add(a, b) })
	assert.Panics(t, func() { backend.Add(a, c) })
}

func TestReLU(t *testing.T) {
	backend := New()
	x, _ := tensor.NewRaw(tensor.Shape{5}, tensor.Float32, tensor.CPU)
	copy(x.AsFloat32(), []float32{-2, -0.5, 0, 0.5, 2})

	result := backend.ReLU(x)
	assert.Equal(t, []float32{0, 0, 0, 0.5, 2}, result.AsFloat32())
	assert.Equal(t, float32(-2), x.AsFloat32()[0], "input must not be modified")
}

func TestChannelMoments(t *testing.T) {
	backend := New()

	// Channel 0 = {1, 3}, channel 1 = {2, 6}.
	x, _ := tensor.NewRaw(tensor.Shape{2, 1, 1, 2}, tensor.Float32, tensor.CPU)
	copy(x.AsFloat32(), []float32{1, 2, 3, 6})

	mean, variance := backend.ChannelMoments(x)
	assert.Equal(t, []float32{2, 4}, mean.AsFloat32())
	assert.Equal(t, []float32{1, 4}, variance.AsFloat32())
}

func TestChannelMoments_MatchesReference(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	x := randomRaw(t, rng, tensor.Shape{3, 4, 5, 6}, tensor.Float32)

	wantMean, wantVar := tensor.NewMockBackend().ChannelMoments(x)
	gotMean, gotVar := New().ChannelMoments(x)

	assertRawClose(t, wantMean, gotMean, 1e-6)
	assertRawClose(t, wantVar, gotVar, 1e-6)
}

func TestChannelAffine(t *testing.T) {
	backend := New()
	x, _ := tensor.NewRaw(tensor.Shape{1, 1, 2, 2}, tensor.Float32, tensor.CPU)
	scale, _ := tensor.NewRaw(tensor.Shape{2}, tensor.Float32, tensor.CPU)
	shift, _ := tensor.NewRaw(tensor.Shape{2}, tensor.Float32, tensor.CPU)
	copy(x.AsFloat32(), []float32{1, 2, 3, 4})
	copy(scale.AsFloat32(), []float32{2, -1})
	copy(shift.AsFloat32(), []float32{0.5, 1})

	result := backend.ChannelAffine(x, scale, shift)
	assert.Equal(t, []float32{2.5, -1, 6.5, -3}, result.AsFloat32())

	wrong, _ := tensor.NewRaw(tensor.Shape{3}, tensor.Float32, tensor.CPU)
	assert.Panics(t, func() { backend.ChannelAffine(x, wrong, shift) })
}

func TestElementwiseMatchesReferenceOnLargeInput(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	a := randomRaw(t, rng, tensor.Shape{4, 16, 16, 32}, tensor.Float32)
	b := randomRaw(t, rng, tensor.Shape{4, 16, 16, 32}, tensor.Float32)
	ref := tensor.NewMockBackend()
	backend := New()

	assertRawClose(t, ref.Add(a, b), backend.Add(a, b), 1e-6)
	assertRawClose(t, ref.ReLU(a), backend.ReLU(a), 0)

	require.NotPanics(t, func() { backend.ChannelMoments(a) })
}
