package resnet

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/backbone/internal/nn"
	"github.com/born-ml/backbone/internal/tensor"
)

// BottleneckConfig configures one residual unit.
type BottleneckConfig struct {
	Filters    [3]int // output channels of the 1x1, 3x3 and 1x1 convolutions
	Stride     int    // stride of the first 1x1 convolution and the projection
	Projection bool   // use a 1x1 convolution + BN shortcut instead of identity
	Block      string // stage and unit identifier, e.g. "3a"
}

// Bottleneck is a 1x1 -> 3x3 -> 1x1 residual unit.
//
//	main:     conv2a(1x1, stride) -> bn2a -> relu
//	          conv2b(3x3, same)   -> bn2b -> relu
//	          conv2c(1x1)         -> bn2c
//	shortcut: conv1(1x1, stride) -> bn1, or the input itself
//	output:   relu(main + shortcut)
//
// An identity shortcut requires input channels == Filters[2] and stride 1.
// That is the caller's responsibility; the unit does not check it.
type Bottleneck[B tensor.Backend] struct {
	config     BottleneckConfig
	inChannels int

	conv2a *nn.Conv2D[B]
	bn2a   *nn.BatchNorm[B]
	conv2b *nn.Conv2D[B]
	bn2b   *nn.BatchNorm[B]
	conv2c *nn.Conv2D[B]
	bn2c   *nn.BatchNorm[B]

	convShortcut *nn.Conv2D[B]    // nil without projection
	bnShortcut   *nn.BatchNorm[B] // nil without projection

	relu *nn.ReLU[B]
}

// NewBottleneck creates a residual unit reading inChannels channels.
func NewBottleneck[B tensor.Backend](inChannels int, config BottleneckConfig, rng *rand.Rand, backend B) *Bottleneck[B] {
	if config.Stride <= 0 {
		panic(fmt.Sprintf("bottleneck %s: invalid stride %d", config.Block, config.Stride))
	}
	f1, f2, f3 := config.Filters[0], config.Filters[1], config.Filters[2]

	b := &Bottleneck[B]{
		config:     config,
		inChannels: inChannels,
		conv2a:     nn.NewConv2D(inChannels, f1, 1, 1, config.Stride, tensor.Valid, true, rng, backend),
		bn2a:       nn.NewBatchNorm(f1, backend),
		conv2b:     nn.NewConv2D(f1, f2, 3, 3, 1, tensor.Same, true, rng, backend),
		bn2b:       nn.NewBatchNorm(f2, backend),
		conv2c:     nn.NewConv2D(f2, f3, 1, 1, 1, tensor.Valid, true, rng, backend),
		bn2c:       nn.NewBatchNorm(f3, backend),
		relu:       nn.NewReLU[B](),
	}
	if config.Projection {
		b.convShortcut = nn.NewConv2D(inChannels, f3, 1, 1, config.Stride, tensor.Valid, true, rng, backend)
		b.bnShortcut = nn.NewBatchNorm(f3, backend)
	}
	return b
}

// Forward computes relu(Residual(x) + Shortcut(x)).
func (b *Bottleneck[B]) Forward(x *tensor.Tensor[float32, B], mode nn.Mode) *tensor.Tensor[float32, B] {
	residual := b.Residual(x, mode)
	shortcut := b.Shortcut(x, mode)
	return b.relu.Forward(residual.Add(shortcut), mode)
}

// Residual runs the main path only, without the final activation.
func (b *Bottleneck[B]) Residual(x *tensor.Tensor[float32, B], mode nn.Mode) *tensor.Tensor[float32, B] {
	h := b.conv2a.Forward(x, mode)
	h = b.bn2a.Forward(h, mode)
	h = b.relu.Forward(h, mode)

	h = b.conv2b.Forward(h, mode)
	h = b.bn2b.Forward(h, mode)
	h = b.relu.Forward(h, mode)

	h = b.conv2c.Forward(h, mode)
	return b.bn2c.Forward(h, mode)
}

// Shortcut runs the skip path: the projection if configured, else x itself.
func (b *Bottleneck[B]) Shortcut(x *tensor.Tensor[float32, B], mode nn.Mode) *tensor.Tensor[float32, B] {
	if !b.config.Projection {
		return x
	}
	s := b.convShortcut.Forward(x, mode)
	return b.bnShortcut.Forward(s, mode)
}

// OutputShape returns the unit's output shape for an NHWC input shape:
// ceil(in / stride) spatially, Filters[2] channels.
func (b *Bottleneck[B]) OutputShape(input tensor.Shape) tensor.Shape {
	n, h, w, _ := input.NHWC()
	s := b.config.Stride
	return tensor.Shape{n, (h + s - 1) / s, (w + s - 1) / s, b.config.Filters[2]}
}

// Config returns the unit configuration.
func (b *Bottleneck[B]) Config() BottleneckConfig {
	return b.config
}

// InChannels returns the number of input channels.
func (b *Bottleneck[B]) InChannels() int {
	return b.inChannels
}

// OutChannels returns Filters[2].
func (b *Bottleneck[B]) OutChannels() int {
	return b.config.Filters[2]
}

// Parameters returns the trainable parameters of every sub-layer.
func (b *Bottleneck[B]) Parameters() []*nn.Parameter[B] {
	var params []*nn.Parameter[B]
	for _, l := range b.layers() {
		params = append(params, l.module.Parameters()...)
	}
	return params
}

// StateDict returns every persistent tensor keyed "<layer>/<param>",
// e.g. "res3a_branch2b/kernel".
func (b *Bottleneck[B]) StateDict() map[string]*tensor.RawTensor {
	return flatten(b.layers())
}

// LoadStateDict loads tensors keyed as in StateDict.
func (b *Bottleneck[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return unflatten(b.layers(), stateDict)
}

// layers lists the sub-layers with their checkpoint names in build order.
func (b *Bottleneck[B]) layers() []namedLayer[B] {
	conv := "res" + b.config.Block + "_branch"
	bn := "bn" + b.config.Block + "_branch"

	layers := []namedLayer[B]{
		{conv + "2a", b.conv2a},
		{bn + "2a", b.bn2a},
		{conv + "2b", b.conv2b},
		{bn + "2b", b.bn2b},
		{conv + "2c", b.conv2c},
		{bn + "2c", b.bn2c},
	}
	if b.config.Projection {
		layers = append(layers,
			namedLayer[B]{conv + "1", b.convShortcut},
			namedLayer[B]{bn + "1", b.bnShortcut},
		)
	}
	return layers
}

// String returns a short description of the unit.
func (b *Bottleneck[B]) String() string {
	return fmt.Sprintf("Bottleneck(block=%s, in=%d, filters=%v, stride=%d, projection=%v)",
		b.config.Block, b.inChannels, b.config.Filters, b.config.Stride, b.config.Projection)
}
