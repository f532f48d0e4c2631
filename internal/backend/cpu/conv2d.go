package cpu

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/gonum/blas/blas64"

	"github.com/born-ml/backbone/internal/parallel"
	"github.com/born-ml/backbone/internal/tensor"
)

// convGeometry holds the resolved dimensions of one Conv2D call.
type convGeometry struct {
	N, H, W, CIn    int
	KH, KW, COut    int
	HOut, WOut      int
	stride          int
	padTop, padLeft int
}

// colWidth is the length of one im2col row: a flattened kh x kw x cin patch.
func (g convGeometry) colWidth() int {
	return g.KH * g.KW * g.CIn
}

// pointwise reports whether the convolution is a plain per-pixel matmul.
func (g convGeometry) pointwise() bool {
	return g.KH == 1 && g.KW == 1 && g.stride == 1
}

// Conv2D performs 2D convolution on channel-last tensors.
//
// Input shape:  [batch, height, width, in_channels]
// Kernel shape: [kernel_h, kernel_w, in_channels, out_channels]
// Output shape: [batch, out_h, out_w, out_channels]
//
// out_h and out_w follow padding.OutputSize. With Same padding any odd
// padding cell goes to the bottom/right.
//
// Algorithm:
//  1. 1x1 stride-1 kernels: the input already is a [N*H*W, C_in] matrix, so
//     the convolution is a single GEMM with the [C_in, C_out] kernel.
//  2. Otherwise, per image: im2col into [H_out*W_out, K_h*K_w*C_in] (patch
//     order kh, kw, cin matches the HWIO kernel layout), then one GEMM with
//     the kernel viewed as [K_h*K_w*C_in, C_out]. The product lands directly
//     in NHWC order.
func (cpu *CPUBackend) Conv2D(input, kernel *tensor.RawTensor, stride int, padding tensor.Padding) *tensor.RawTensor {
	inputShape := input.Shape()
	kernelShape := kernel.Shape()

	if len(inputShape) != 4 {
		panic(fmt.Sprintf("conv2d: input must be 4D [N,H,W,C], got %dD", len(inputShape)))
	}
	if len(kernelShape) != 4 {
		panic(fmt.Sprintf("conv2d: kernel must be 4D [K_h,K_w,C_in,C_out], got %dD", len(kernelShape)))
	}
	if stride <= 0 {
		panic(fmt.Sprintf("conv2d: invalid stride %d", stride))
	}
	if input.DType() != kernel.DType() {
		panic(fmt.Sprintf("conv2d: dtype mismatch input=%s kernel=%s", input.DType(), kernel.DType()))
	}

	N, H, W, CIn := inputShape.NHWC()
	KH, KW, CInK, COut := kernelShape.NHWC()
	if CIn != CInK {
		panic(fmt.Sprintf("conv2d: input channels %d != kernel channels %d", CIn, CInK))
	}

	g := convGeometry{
		N: N, H: H, W: W, CIn: CIn,
		KH: KH, KW: KW, COut: COut,
		HOut:   padding.OutputSize(H, KH, stride),
		WOut:   padding.OutputSize(W, KW, stride),
		stride: stride,
	}
	g.padTop, _ = padding.Pads(H, KH, stride)
	g.padLeft, _ = padding.Pads(W, KW, stride)

	if g.HOut <= 0 || g.WOut <= 0 {
		panic(fmt.Sprintf("conv2d: invalid output dimensions: out_h=%d, out_w=%d (input %dx%d, kernel %dx%d, %s)",
			g.HOut, g.WOut, H, W, KH, KW, padding))
	}

	output, err := tensor.NewRaw(tensor.Shape{N, g.HOut, g.WOut, COut}, input.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("conv2d: failed to create output tensor: %v", err))
	}

	switch input.DType() {
	case tensor.Float32:
		conv2dFloat32(output.AsFloat32(), input.AsFloat32(), kernel.AsFloat32(), g, cpu.par)
	case tensor.Float64:
		conv2dFloat64(output.AsFloat64(), input.AsFloat64(), kernel.AsFloat64(), g, cpu.par)
	default:
		panic(fmt.Sprintf("conv2d: unsupported dtype %s", input.DType()))
	}

	return output
}

func conv2dFloat32(out, in, kernel []float32, g convGeometry, cfg parallel.Config) {
	k := blas32.General{Rows: g.colWidth(), Cols: g.COut, Stride: g.COut, Data: kernel}

	if g.pointwise() {
		a := blas32.General{Rows: g.N * g.H * g.W, Cols: g.CIn, Stride: g.CIn, Data: in}
		c := blas32.General{Rows: g.N * g.HOut * g.WOut, Cols: g.COut, Stride: g.COut, Data: out}
		blas32.Gemm(blas.NoTrans, blas.NoTrans, 1, a, k, 0, c)
		return
	}

	rows := g.HOut * g.WOut
	col := make([]float32, rows*g.colWidth())
	for n := 0; n < g.N; n++ {
		im2col(col, in[n*g.H*g.W*g.CIn:(n+1)*g.H*g.W*g.CIn], g, cfg)
		a := blas32.General{Rows: rows, Cols: g.colWidth(), Stride: g.colWidth(), Data: col}
		c := blas32.General{Rows: rows, Cols: g.COut, Stride: g.COut, Data: out[n*rows*g.COut : (n+1)*rows*g.COut]}
		blas32.Gemm(blas.NoTrans, blas.NoTrans, 1, a, k, 0, c)
	}
}

func conv2dFloat64(out, in, kernel []float64, g convGeometry, cfg parallel.Config) {
	k := blas64.General{Rows: g.colWidth(), Cols: g.COut, Stride: g.COut, Data: kernel}

	if g.pointwise() {
		a := blas64.General{Rows: g.N * g.H * g.W, Cols: g.CIn, Stride: g.CIn, Data: in}
		c := blas64.General{Rows: g.N * g.HOut * g.WOut, Cols: g.COut, Stride: g.COut, Data: out}
		blas64.Gemm(blas.NoTrans, blas.NoTrans, 1, a, k, 0, c)
		return
	}

	rows := g.HOut * g.WOut
	col := make([]float64, rows*g.colWidth())
	for n := 0; n < g.N; n++ {
		im2col(col, in[n*g.H*g.W*g.CIn:(n+1)*g.H*g.W*g.CIn], g, cfg)
		a := blas64.General{Rows: rows, Cols: g.colWidth(), Stride: g.colWidth(), Data: col}
		c := blas64.General{Rows: rows, Cols: g.COut, Stride: g.COut, Data: out[n*rows*g.COut : (n+1)*rows*g.COut]}
		blas64.Gemm(blas.NoTrans, blas.NoTrans, 1, a, k, 0, c)
	}
}

// im2col unrolls one image [H, W, C_in] into col [H_out*W_out, K_h*K_w*C_in].
//
// Each row is one output position; each run of C_in values is one kernel tap,
// copied contiguously from the channel-last input. Taps that fall in the
// padding are zero.
func im2col[T float](col, image []T, g convGeometry, cfg parallel.Config) {
	width := g.colWidth()
	parallel.ForRange(g.HOut, func(start, end int) {
		for oh := start; oh < end; oh++ {
			for ow := 0; ow < g.WOut; ow++ {
				row := col[(oh*g.WOut+ow)*width : (oh*g.WOut+ow+1)*width]
				hStart := oh*g.stride - g.padTop
				wStart := ow*g.stride - g.padLeft

				for kh := 0; kh < g.KH; kh++ {
					h := hStart + kh
					for kw := 0; kw < g.KW; kw++ {
						w := wStart + kw
						tap := row[(kh*g.KW+kw)*g.CIn : (kh*g.KW+kw+1)*g.CIn]
						if h < 0 || h >= g.H || w < 0 || w >= g.W {
							clear(tap)
							continue
						}
						src := (h*g.W + w) * g.CIn
						copy(tap, image[src:src+g.CIn])
					}
				}
			}
		}
	}, parallel.Config{Enabled: cfg.Enabled, NumWorkers: cfg.NumWorkers, MinChunkSize: 1})
}
