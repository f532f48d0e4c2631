// Package resnet implements the ResNet-50 feature backbone.
//
// The backbone maps channel-last images [N, H, W, 3] to four feature maps
// C2..C5 at strides 4, 8, 16 and 32 with 256, 512, 1024 and 2048 channels.
// Only the forward pass exists; there is no gradient computation.
//
// Checkpoint keys follow NamingSchema: "<layer>/<param>" where layer is
// "conv1", "bn_conv1", "res<block>_branch<2a|2b|2c|1>" or
// "bn<block>_branch<2a|2b|2c|1>" and block is the stage digit plus unit
// letter ("2a" .. "5c").
package resnet

import (
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"

	"github.com/born-ml/backbone/internal/ctxlog"
	"github.com/born-ml/backbone/internal/nn"
	"github.com/born-ml/backbone/internal/tensor"
)

// NamingSchema identifies the checkpoint key layout produced by StateDict.
// Renaming any layer is a breaking change and must bump the version.
const NamingSchema = "keras-resnet50/v1"

// InputChannels is the number of image channels the stem expects.
const InputChannels = 3

// StageConfig describes one stage of bottleneck units.
type StageConfig struct {
	Stage   int    // stage number, 2..5
	Filters [3]int // widths of every unit in the stage
	Stride  int    // stride of the first unit
	Units   int    // number of units
}

// stages is the ResNet-50 layout.
var stages = [4]StageConfig{
	{Stage: 2, Filters: [3]int{64, 64, 256}, Stride: 1, Units: 3},
	{Stage: 3, Filters: [3]int{128, 128, 512}, Stride: 2, Units: 4},
	{Stage: 4, Filters: [3]int{256, 256, 1024}, Stride: 2, Units: 6},
	{Stage: 5, Filters: [3]int{512, 512, 2048}, Stride: 2, Units: 3},
}

// Stages returns the stage layout.
func Stages() [4]StageConfig {
	return stages
}

// unitConfigs expands the stage table into one config per unit.
// Only the first unit of each stage projects and strides.
func unitConfigs() []BottleneckConfig {
	var configs []BottleneckConfig
	for _, s := range stages {
		for u := 0; u < s.Units; u++ {
			cfg := BottleneckConfig{
				Filters: s.Filters,
				Stride:  1,
				Block:   strconv.Itoa(s.Stage) + string(rune('a'+u)),
			}
			if u == 0 {
				cfg.Stride = s.Stride
				cfg.Projection = true
			}
			configs = append(configs, cfg)
		}
	}
	return configs
}

// Features holds the last unit output of stages 2 to 5.
type Features[B tensor.Backend] struct {
	C2 *tensor.Tensor[float32, B] // stride 4, 256 channels
	C3 *tensor.Tensor[float32, B] // stride 8, 512 channels
	C4 *tensor.Tensor[float32, B] // stride 16, 1024 channels
	C5 *tensor.Tensor[float32, B] // stride 32, 2048 channels
}

// All returns the features in stage order.
func (f Features[B]) All() [4]*tensor.Tensor[float32, B] {
	return [4]*tensor.Tensor[float32, B]{f.C2, f.C3, f.C4, f.C5}
}

// Shapes returns the feature shapes in stage order.
func (f Features[B]) Shapes() [4]tensor.Shape {
	var shapes [4]tensor.Shape
	for i, t := range f.All() {
		shapes[i] = t.Shape()
	}
	return shapes
}

// options configures New.
type options struct {
	rng    *rand.Rand
	logger *slog.Logger
}

// Option configures backbone construction.
type Option func(*options)

// WithSeed seeds the kernel initializer.
func WithSeed(seed int64) Option {
	return func(o *options) {
		o.rng = rand.New(rand.NewSource(seed)) //nolint:gosec // G404: reproducible ML initialization
	}
}

// WithRand sets the random source used by the kernel initializer.
func WithRand(rng *rand.Rand) Option {
	return func(o *options) {
		o.rng = rng
	}
}

// WithLogger sets the logger used for construction and weight I/O messages.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Backbone is the ResNet-50 feature extractor.
//
// Stem: conv1 (7x7, stride 2, same) -> bn_conv1 -> relu -> max pool
// (3x3, stride 2, same), followed by 16 bottleneck units in four stages.
//
// A Backbone may run Inference-mode forward passes concurrently. A
// Training-mode pass updates batch-norm moving statistics in place and
// must not overlap any other pass on the same Backbone.
type Backbone[B tensor.Backend] struct {
	conv1   *nn.Conv2D[B]
	bnConv1 *nn.BatchNorm[B]
	relu    *nn.ReLU[B]
	pool    *nn.MaxPool2D[B]
	units   []*Bottleneck[B]
	stageAt [4]int // index into units of the last unit of each stage

	backend B
	logger  *slog.Logger
}

// New creates a ResNet-50 backbone with He-normal kernels, zero biases and
// identity batch norms.
//
// Without WithSeed or WithRand the initializer is seeded with 0, so two
// backbones built with the same options have identical parameters.
func New[B tensor.Backend](backend B, opts ...Option) *Backbone[B] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.rng == nil {
		o.rng = rand.New(rand.NewSource(0)) //nolint:gosec // G404: reproducible ML initialization
	}
	if o.logger == nil {
		o.logger = ctxlog.Discard()
	}

	b := &Backbone[B]{
		conv1:   nn.NewConv2D(InputChannels, 64, 7, 7, 2, tensor.Same, true, o.rng, backend),
		bnConv1: nn.NewBatchNorm(64, backend),
		relu:    nn.NewReLU[B](),
		pool:    nn.NewMaxPool2D(3, 2, tensor.Same, backend),
		backend: backend,
		logger:  o.logger,
	}

	inChannels := 64
	for _, cfg := range unitConfigs() {
		unit := NewBottleneck(inChannels, cfg, o.rng, backend)
		b.units = append(b.units, unit)
		inChannels = unit.OutChannels()
	}

	last := -1
	for i, s := range stages {
		last += s.Units
		b.stageAt[i] = last
	}

	b.logger.Debug("Backbone constructed.",
		"backend", backend.Name(),
		"units", len(b.units),
		"parameters", b.NumParameters(),
		"naming_schema", NamingSchema)
	return b
}

// Forward runs the backbone on images [N, H, W, 3] and returns C2..C5.
//
// Shape errors from the backend surface as panics, like every other
// layer.
func (b *Backbone[B]) Forward(images *tensor.Tensor[float32, B], mode nn.Mode) Features[B] {
	shape := images.Shape()
	if len(shape) != 4 || shape[3] != InputChannels {
		panic(fmt.Sprintf("resnet50: expected input [N,H,W,%d], got %v", InputChannels, shape))
	}

	x := b.conv1.Forward(images, mode)
	x = b.bnConv1.Forward(x, mode)
	x = b.relu.Forward(x, mode)
	x = b.pool.Forward(x, mode)

	var outs [4]*tensor.Tensor[float32, B]
	stage := 0
	for i, unit := range b.units {
		x = unit.Forward(x, mode)
		if i == b.stageAt[stage] {
			outs[stage] = x
			stage++
		}
	}

	return Features[B]{C2: outs[0], C3: outs[1], C4: outs[2], C5: outs[3]}
}

// Units returns the 16 bottleneck units in execution order.
func (b *Backbone[B]) Units() []*Bottleneck[B] {
	units := make([]*Bottleneck[B], len(b.units))
	copy(units, b.units)
	return units
}

// Unit returns the unit with the given block identifier, e.g. "4f".
func (b *Backbone[B]) Unit(block string) (*Bottleneck[B], bool) {
	for _, u := range b.units {
		if u.config.Block == block {
			return u, true
		}
	}
	return nil, false
}

// BatchNorms returns every batch-norm layer keyed by its checkpoint name.
func (b *Backbone[B]) BatchNorms() map[string]*nn.BatchNorm[B] {
	out := make(map[string]*nn.BatchNorm[B])
	for _, l := range b.layers() {
		if bn, ok := l.module.(*nn.BatchNorm[B]); ok {
			out[l.name] = bn
		}
	}
	return out
}

// Parameters returns all trainable parameters.
func (b *Backbone[B]) Parameters() []*nn.Parameter[B] {
	var params []*nn.Parameter[B]
	for _, l := range b.layers() {
		params = append(params, l.module.Parameters()...)
	}
	return params
}

// NumParameters returns the number of trainable scalars.
func (b *Backbone[B]) NumParameters() int {
	total := 0
	for _, p := range b.Parameters() {
		total += p.Tensor().NumElements()
	}
	return total
}

// StateDict returns every persistent tensor keyed by NamingSchema.
//
// The tensors are the live parameters, not copies.
func (b *Backbone[B]) StateDict() map[string]*tensor.RawTensor {
	return flatten(b.layers())
}

// LoadStateDict copies tensors keyed by NamingSchema into the backbone.
//
// Every key the backbone owns must be present with a matching shape, and
// no other key may appear.
func (b *Backbone[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return unflatten(b.layers(), stateDict)
}

// Backend returns the compute backend.
func (b *Backbone[B]) Backend() B {
	return b.backend
}

// layers lists every leaf layer with its checkpoint name.
func (b *Backbone[B]) layers() []namedLayer[B] {
	layers := []namedLayer[B]{
		{"conv1", b.conv1},
		{"bn_conv1", b.bnConv1},
	}
	for _, u := range b.units {
		layers = append(layers, u.layers()...)
	}
	return layers
}
