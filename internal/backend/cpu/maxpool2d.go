package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/backbone/internal/parallel"
	"github.com/born-ml/backbone/internal/tensor"
)

// MaxPool2D performs 2D max pooling on channel-last tensors.
//
// Input shape:  [batch, height, width, channels]
// Output shape: [batch, out_height, out_width, channels]
//
// out_height and out_width follow padding.OutputSize. Padded cells are
// excluded from the maximum, so Same padding never introduces zeros.
func (cpu *CPUBackend) MaxPool2D(input *tensor.RawTensor, size, stride int, padding tensor.Padding) *tensor.RawTensor {
	inputShape := input.Shape()
	if len(inputShape) != 4 {
		panic(fmt.Sprintf("maxpool2d: expected 4D input [N,H,W,C], got %dD", len(inputShape)))
	}
	if size <= 0 {
		panic(fmt.Sprintf("maxpool2d: invalid kernel size %d", size))
	}
	if stride <= 0 {
		panic(fmt.Sprintf("maxpool2d: invalid stride %d", stride))
	}

	N, H, W, C := inputShape.NHWC()
	g := convGeometry{
		N: N, H: H, W: W, CIn: C,
		KH: size, KW: size, COut: C,
		HOut:   padding.OutputSize(H, size, stride),
		WOut:   padding.OutputSize(W, size, stride),
		stride: stride,
	}
	g.padTop, _ = padding.Pads(H, size, stride)
	g.padLeft, _ = padding.Pads(W, size, stride)

	if g.HOut <= 0 || g.WOut <= 0 {
		panic(fmt.Sprintf("maxpool2d: invalid output dimensions %dx%d (kernel=%d, stride=%d, input=%dx%d)",
			g.HOut, g.WOut, size, stride, H, W))
	}

	output, err := tensor.NewRaw(tensor.Shape{N, g.HOut, g.WOut, C}, input.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("maxpool2d: failed to create output: %v", err))
	}

	switch input.DType() {
	case tensor.Float32:
		maxpool2d(output.AsFloat32(), input.AsFloat32(), float32(math.Inf(-1)), g, cpu.par)
	case tensor.Float64:
		maxpool2d(output.AsFloat64(), input.AsFloat64(), math.Inf(-1), g, cpu.par)
	default:
		panic(fmt.Sprintf("maxpool2d: unsupported dtype %v", input.DType()))
	}

	return output
}

// maxpool2d fills out one output row (n, oh) at a time. For each window
// tap the whole channel vector is compared at once, which keeps the inner
// loop contiguous in NHWC.
func maxpool2d[T float](out, in []T, lowest T, g convGeometry, cfg parallel.Config) {
	C := g.CIn
	parallel.ForRange(g.N*g.HOut, func(start, end int) {
		for r := start; r < end; r++ {
			n, oh := r/g.HOut, r%g.HOut
			hStart := oh*g.stride - g.padTop

			for ow := 0; ow < g.WOut; ow++ {
				dst := out[((n*g.HOut+oh)*g.WOut+ow)*C : ((n*g.HOut+oh)*g.WOut+ow+1)*C]
				for c := range dst {
					dst[c] = lowest
				}

				wStart := ow*g.stride - g.padLeft
				for kh := 0; kh < g.KH; kh++ {
					h := hStart + kh
					if h < 0 || h >= g.H {
						continue
					}
					for kw := 0; kw < g.KW; kw++ {
						w := wStart + kw
						if w < 0 || w >= g.W {
							continue
						}
						src := in[((n*g.H+h)*g.W+w)*C : ((n*g.H+h)*g.W+w+1)*C]
						for c, v := range src {
							if v > dst[c] {
								dst[c] = v
							}
						}
					}
				}
			}
		}
	}, parallel.Config{Enabled: cfg.Enabled, NumWorkers: cfg.NumWorkers, MinChunkSize: 1})
}
