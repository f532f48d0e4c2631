package nn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/backbone/internal/tensor"
)

// Conv2D is a 2D convolutional layer over channel-last tensors.
//
// Performs convolution: output = Conv2D(input, kernel) + bias
//
// Input shape:  [batch, height, width, in_channels]
// Kernel shape: [kernel_h, kernel_w, in_channels, out_channels]
// Bias shape:   [out_channels]
// Output shape: [batch, out_h, out_w, out_channels]
//
// Where out_h and out_w follow padding.OutputSize.
//
// Example:
//
//	// 3 -> 64 channels, 7x7 kernel, stride 2, same padding
//	conv := nn.NewConv2D(3, 64, 7, 7, 2, tensor.Same, true, rng, backend)
//	output := conv.Forward(images, nn.Inference) // [N, H/2, W/2, 64]
type Conv2D[B tensor.Backend] struct {
	inChannels  int
	outChannels int
	kernelSize  [2]int
	stride      int
	padding     tensor.Padding
	useBias     bool

	kernel *Parameter[B] // [kernel_h, kernel_w, in_channels, out_channels]
	bias   *Parameter[B] // [out_channels] or nil

	backend B
}

// NewConv2D creates a new 2D convolutional layer with He-normal initialization.
//
// Parameters:
//   - inChannels: Number of input channels
//   - outChannels: Number of output channels (number of filters)
//   - kernelH, kernelW: Kernel dimensions
//   - stride: Stride for convolution (commonly 1 or 2)
//   - padding: tensor.Valid or tensor.Same
//   - useBias: Whether to include bias term
//   - rng: Random source for kernel initialization
//   - backend: Backend for computation
//
// Initialization:
//   - Kernel: He normal with fan_in = kernel_h * kernel_w * in_channels
//   - Bias: Zeros
func NewConv2D[B tensor.Backend](
	inChannels, outChannels int,
	kernelH, kernelW int,
	stride int,
	padding tensor.Padding,
	useBias bool,
	rng *rand.Rand,
	backend B,
) *Conv2D[B] {
	if inChannels <= 0 || outChannels <= 0 {
		panic(fmt.Sprintf("conv2d: invalid channels in=%d, out=%d", inChannels, outChannels))
	}
	if kernelH <= 0 || kernelW <= 0 {
		panic(fmt.Sprintf("conv2d: invalid kernel size h=%d, w=%d", kernelH, kernelW))
	}
	if stride <= 0 {
		panic(fmt.Sprintf("conv2d: invalid stride %d", stride))
	}

	kernelShape := tensor.Shape{kernelH, kernelW, inChannels, outChannels}
	kernel := HeNormal(kernelH*kernelW*inChannels, kernelShape, rng, backend)

	var bias *Parameter[B]
	if useBias {
		bias = NewParameter("bias", Zeros(tensor.Shape{outChannels}, backend))
	}

	return &Conv2D[B]{
		inChannels:  inChannels,
		outChannels: outChannels,
		kernelSize:  [2]int{kernelH, kernelW},
		stride:      stride,
		padding:     padding,
		useBias:     useBias,
		kernel:      NewParameter("kernel", kernel),
		bias:        bias,
		backend:     backend,
	}
}

// Forward performs the forward pass. Convolution ignores mode.
//
// Input: [batch, height, width, in_channels]
// Output: [batch, out_h, out_w, out_channels].
func (c *Conv2D[B]) Forward(input *tensor.Tensor[float32, B], _ Mode) *tensor.Tensor[float32, B] {
	inputShape := input.Shape()
	if len(inputShape) != 4 {
		panic(fmt.Sprintf("conv2d: expected 4D input [N,H,W,C], got %dD", len(inputShape)))
	}
	if inputShape[3] != c.inChannels {
		panic(fmt.Sprintf("conv2d: input channels %d != expected %d", inputShape[3], c.inChannels))
	}

	outputRaw := c.backend.Conv2D(input.Raw(), c.kernel.Tensor().Raw(), c.stride, c.padding)
	output := tensor.New[float32, B](outputRaw, c.backend)

	if c.useBias {
		// Bias [out_channels] broadcasts over the trailing channel axis.
		output = output.Add(c.bias.Tensor())
	}

	return output
}

// Parameters returns all trainable parameters.
func (c *Conv2D[B]) Parameters() []*Parameter[B] {
	if c.useBias {
		return []*Parameter[B]{c.kernel, c.bias}
	}
	return []*Parameter[B]{c.kernel}
}

// StateDict returns the kernel and, if present, the bias.
func (c *Conv2D[B]) StateDict() map[string]*tensor.RawTensor {
	return stateDictOf(c.Parameters()...)
}

// LoadStateDict loads "kernel" and, if the layer has a bias, "bias".
func (c *Conv2D[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return loadParameters(stateDict, c.Parameters()...)
}

// String returns a string representation of the layer.
func (c *Conv2D[B]) String() string {
	return fmt.Sprintf("Conv2D(in_channels=%d, out_channels=%d, kernel_size=(%d, %d), stride=%d, padding=%s, bias=%v)",
		c.inChannels, c.outChannels,
		c.kernelSize[0], c.kernelSize[1],
		c.stride, c.padding, c.useBias)
}

// Kernel returns the kernel parameter.
func (c *Conv2D[B]) Kernel() *Parameter[B] {
	return c.kernel
}

// Bias returns the bias parameter, or nil if the layer has none.
func (c *Conv2D[B]) Bias() *Parameter[B] {
	return c.bias
}

// OutChannels returns the number of output channels.
func (c *Conv2D[B]) OutChannels() int {
	return c.outChannels
}

// InChannels returns the number of input channels.
func (c *Conv2D[B]) InChannels() int {
	return c.inChannels
}

// KernelSize returns the kernel size [height, width].
func (c *Conv2D[B]) KernelSize() [2]int {
	return c.kernelSize
}

// Stride returns the stride.
func (c *Conv2D[B]) Stride() int {
	return c.stride
}

// Padding returns the padding mode.
func (c *Conv2D[B]) Padding() tensor.Padding {
	return c.padding
}

// OutputShape computes the output shape for an NHWC input shape without
// running the convolution.
func (c *Conv2D[B]) OutputShape(input tensor.Shape) tensor.Shape {
	n, h, w, _ := input.NHWC()
	return tensor.Shape{
		n,
		c.padding.OutputSize(h, c.kernelSize[0], c.stride),
		c.padding.OutputSize(w, c.kernelSize[1], c.stride),
		c.outChannels,
	}
}
