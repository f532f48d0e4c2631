package cpu

import (
	"fmt"

	"github.com/born-ml/backbone/internal/parallel"
	"github.com/born-ml/backbone/internal/tensor"
)

// ChannelMoments computes per-channel mean and biased variance.
//
// The reduction runs over every axis except the last, which for NHWC
// activations means over batch, height and width. Sums accumulate in
// float64 regardless of the input dtype.
func (cpu *CPUBackend) ChannelMoments(x *tensor.RawTensor) (mean, variance *tensor.RawTensor) {
	if len(x.Shape()) == 0 {
		panic("channel_moments: scalar input has no channel axis")
	}
	c := x.Shape().Channels()

	var mu, vr []float64
	switch x.DType() {
	case tensor.Float32:
		mu, vr = channelMoments(x.AsFloat32(), c)
	case tensor.Float64:
		mu, vr = channelMoments(x.AsFloat64(), c)
	default:
		panic(fmt.Sprintf("channel_moments: unsupported dtype %s", x.DType()))
	}

	return cpu.vector(mu, x.DType()), cpu.vector(vr, x.DType())
}

// ChannelAffine computes x*scale[c] + shift[c] along the last axis.
func (cpu *CPUBackend) ChannelAffine(x, scale, shift *tensor.RawTensor) *tensor.RawTensor {
	if len(x.Shape()) == 0 {
		panic("channel_affine: scalar input has no channel axis")
	}
	c := x.Shape().Channels()
	if !scale.Shape().Equal(tensor.Shape{c}) || !shift.Shape().Equal(tensor.Shape{c}) {
		panic(fmt.Sprintf("channel_affine: scale %v and shift %v must be [%d]", scale.Shape(), shift.Shape(), c))
	}

	result := x.Clone()
	switch x.DType() {
	case tensor.Float32:
		channelAffine(result.AsFloat32(), scale.AsFloat32(), shift.AsFloat32(), cpu.par)
	case tensor.Float64:
		channelAffine(result.AsFloat64(), scale.AsFloat64(), shift.AsFloat64(), cpu.par)
	default:
		panic(fmt.Sprintf("channel_affine: unsupported dtype %s", x.DType()))
	}
	return result
}

func channelMoments[T float](data []T, c int) (mean, variance []float64) {
	mean = make([]float64, c)
	variance = make([]float64, c)
	rows := len(data) / c

	for r := 0; r < rows; r++ {
		for j, v := range data[r*c : (r+1)*c] {
			mean[j] += float64(v)
		}
	}
	for j := range mean {
		mean[j] /= float64(rows)
	}

	for r := 0; r < rows; r++ {
		for j, v := range data[r*c : (r+1)*c] {
			d := float64(v) - mean[j]
			variance[j] += d * d
		}
	}
	for j := range variance {
		variance[j] /= float64(rows)
	}
	return mean, variance
}

func channelAffine[T float](data, scale, shift []T, cfg parallel.Config) {
	c := len(scale)
	parallel.ForRange(len(data)/c, func(start, end int) {
		for r := start; r < end; r++ {
			line := data[r*c : (r+1)*c]
			for j := range line {
				line[j] = line[j]*scale[j] + shift[j]
			}
		}
	}, cfg)
}

// vector wraps float64 values into a 1D tensor of the given dtype.
func (cpu *CPUBackend) vector(values []float64, dtype tensor.DataType) *tensor.RawTensor {
	raw, err := tensor.NewRaw(tensor.Shape{len(values)}, dtype, cpu.device)
	if err != nil {
		panic(fmt.Sprintf("channel_moments: %v", err))
	}
	switch dtype {
	case tensor.Float32:
		dst := raw.AsFloat32()
		for i, v := range values {
			dst[i] = float32(v)
		}
	case tensor.Float64:
		copy(raw.AsFloat64(), values)
	}
	return raw
}
