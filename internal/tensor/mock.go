package tensor

import (
	"fmt"
	"math"
)

// Verify that MockBackend implements Backend.
var _ Backend = (*MockBackend)(nil)

// MockBackend is a naive reference backend.
//
// Every operation is written as the direct loop nest in float64 so that
// optimized backends can be checked against it.
type MockBackend struct{}

// NewMockBackend creates a new MockBackend.
func NewMockBackend() *MockBackend {
	return &MockBackend{}
}

// Name returns the backend name.
func (m *MockBackend) Name() string {
	return "mock"
}

// Device returns the device type.
func (m *MockBackend) Device() Device {
	return CPU
}

// Add performs element-wise addition; b may be a vector over the last axis of a.
func (m *MockBackend) Add(a, b *RawTensor) *RawTensor {
	aData := m.toFloat64Slice(a)
	bData := m.toFloat64Slice(b)
	out := make([]float64, len(aData))

	switch {
	case a.Shape().Equal(b.Shape()):
		for i := range aData {
			out[i] = aData[i] + bData[i]
		}
	case len(b.Shape()) == 1 && b.Shape()[0] == a.Shape().Channels():
		c := len(bData)
		for i := range aData {
			out[i] = aData[i] + bData[i%c]
		}
	default:
		panic(fmt.Sprintf("add: incompatible shapes %v and %v", a.Shape(), b.Shape()))
	}

	return m.newLike(a.Shape(), a.DType(), out)
}

// ReLU computes max(0, x).
func (m *MockBackend) ReLU(x *RawTensor) *RawTensor {
	data := m.toFloat64Slice(x)
	for i, v := range data {
		data[i] = math.Max(0, v)
	}
	return m.newLike(x.Shape(), x.DType(), data)
}

// Conv2D performs NHWC convolution with an HWIO kernel.
func (m *MockBackend) Conv2D(input, kernel *RawTensor, stride int, padding Padding) *RawTensor {
	N, H, W, CIn := input.Shape().NHWC()
	KH, KW, CInK, COut := kernel.Shape().NHWC()
	if CIn != CInK {
		panic(fmt.Sprintf("conv2d: input channels %d != kernel channels %d", CIn, CInK))
	}

	HOut := padding.OutputSize(H, KH, stride)
	WOut := padding.OutputSize(W, KW, stride)
	padTop, _ := padding.Pads(H, KH, stride)
	padLeft, _ := padding.Pads(W, KW, stride)

	in := m.toFloat64Slice(input)
	k := m.toFloat64Slice(kernel)
	out := make([]float64, N*HOut*WOut*COut)

	for n := 0; n < N; n++ {
		for oh := 0; oh < HOut; oh++ {
			for ow := 0; ow < WOut; ow++ {
				for co := 0; co < COut; co++ {
					sum := 0.0
					for kh := 0; kh < KH; kh++ {
						h := oh*stride - padTop + kh
						if h < 0 || h >= H {
							continue
						}
						for kw := 0; kw < KW; kw++ {
							w := ow*stride - padLeft + kw
							if w < 0 || w >= W {
								continue
							}
							for ci := 0; ci < CIn; ci++ {
								sum += in[((n*H+h)*W+w)*CIn+ci] * k[((kh*KW+kw)*CIn+ci)*COut+co]
							}
						}
					}
					out[((n*HOut+oh)*WOut+ow)*COut+co] = sum
				}
			}
		}
	}

	return m.newLike(Shape{N, HOut, WOut, COut}, input.DType(), out)
}

// MaxPool2D performs NHWC max pooling; padded cells never win.
func (m *MockBackend) MaxPool2D(input *RawTensor, size, stride int, padding Padding) *RawTensor {
	N, H, W, C := input.Shape().NHWC()
	HOut := padding.OutputSize(H, size, stride)
	WOut := padding.OutputSize(W, size, stride)
	padTop, _ := padding.Pads(H, size, stride)
	padLeft, _ := padding.Pads(W, size, stride)

	in := m.toFloat64Slice(input)
	out := make([]float64, N*HOut*WOut*C)

	for n := 0; n < N; n++ {
		for oh := 0; oh < HOut; oh++ {
			for ow := 0; ow < WOut; ow++ {
				for c := 0; c < C; c++ {
					best := math.Inf(-1)
					for kh := 0; kh < size; kh++ {
						h := oh*stride - padTop + kh
						if h < 0 || h >= H {
							continue
						}
						for kw := 0; kw < size; kw++ {
							w := ow*stride - padLeft + kw
							if w < 0 || w >= W {
								continue
							}
							best = math.Max(best, in[((n*H+h)*W+w)*C+c])
						}
					}
					out[((n*HOut+oh)*WOut+ow)*C+c] = best
				}
			}
		}
	}

	return m.newLike(Shape{N, HOut, WOut, C}, input.DType(), out)
}

// ChannelMoments returns per-channel mean and biased variance.
func (m *MockBackend) ChannelMoments(x *RawTensor) (mean, variance *RawTensor) {
	data := m.toFloat64Slice(x)
	c := x.Shape().Channels()
	count := float64(len(data) / c)

	mu := make([]float64, c)
	for i, v := range data {
		mu[i%c] += v
	}
	for j := range mu {
		mu[j] /= count
	}

	vr := make([]float64, c)
	for i, v := range data {
		d := v - mu[i%c]
		vr[i%c] += d * d
	}
	for j := range vr {
		vr[j] /= count
	}

	return m.newLike(Shape{c}, x.DType(), mu), m.newLike(Shape{c}, x.DType(), vr)
}

// ChannelAffine computes x*scale[c] + shift[c].
func (m *MockBackend) ChannelAffine(x, scale, shift *RawTensor) *RawTensor {
	data := m.toFloat64Slice(x)
	s := m.toFloat64Slice(scale)
	b := m.toFloat64Slice(shift)
	c := len(s)
	for i, v := range data {
		data[i] = v*s[i%c] + b[i%c]
	}
	return m.newLike(x.Shape(), x.DType(), data)
}

// toFloat64Slice copies tensor data into a new []float64.
func (m *MockBackend) toFloat64Slice(r *RawTensor) []float64 {
	out := make([]float64, r.NumElements())
	switch r.DType() {
	case Float32:
		for i, v := range r.AsFloat32() {
			out[i] = float64(v)
		}
	case Float64:
		copy(out, r.AsFloat64())
	default:
		panic(fmt.Sprintf("mock: unsupported dtype %s", r.DType()))
	}
	return out
}

// newLike allocates a tensor of the given shape and dtype holding data.
func (m *MockBackend) newLike(shape Shape, dtype DataType, data []float64) *RawTensor {
	result, err := NewRaw(shape, dtype, m.Device())
	if err != nil {
		panic(err)
	}
	switch dtype {
	case Float32:
		dst := result.AsFloat32()
		for i, v := range data {
			dst[i] = float32(v)
		}
	case Float64:
		copy(result.AsFloat64(), data)
	}
	return result
}
