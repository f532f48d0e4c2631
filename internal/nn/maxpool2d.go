package nn

import (
	"fmt"

	"github.com/born-ml/backbone/internal/tensor"
)

// MaxPool2D is a 2D max pooling layer over channel-last tensors.
//
// Input shape:  [batch, height, width, channels]
// Output shape: [batch, out_h, out_w, channels]
//
// Padded cells never win the maximum.
//
// Example:
//
//	pool := nn.NewMaxPool2D(3, 2, tensor.Same, backend)
//	output := pool.Forward(input, nn.Inference) // [N, ceil(H/2), ceil(W/2), C]
type MaxPool2D[B tensor.Backend] struct {
	size    int
	stride  int
	padding tensor.Padding
	backend B
}

// NewMaxPool2D creates a new max pooling layer with a square window.
func NewMaxPool2D[B tensor.Backend](size, stride int, padding tensor.Padding, backend B) *MaxPool2D[B] {
	if size <= 0 || stride <= 0 {
		panic(fmt.Sprintf("maxpool2d: invalid size=%d or stride=%d", size, stride))
	}
	return &MaxPool2D[B]{
		size:    size,
		stride:  stride,
		padding: padding,
		backend: backend,
	}
}

// Forward performs max pooling. Pooling ignores mode.
func (m *MaxPool2D[B]) Forward(input *tensor.Tensor[float32, B], _ Mode) *tensor.Tensor[float32, B] {
	outputRaw := m.backend.MaxPool2D(input.Raw(), m.size, m.stride, m.padding)
	return tensor.New[float32, B](outputRaw, m.backend)
}

// Parameters returns nil; pooling has no parameters.
func (m *MaxPool2D[B]) Parameters() []*Parameter[B] {
	return nil
}

// StateDict returns an empty state dict.
func (m *MaxPool2D[B]) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{}
}

// LoadStateDict is a no-op.
func (m *MaxPool2D[B]) LoadStateDict(map[string]*tensor.RawTensor) error {
	return nil
}

// OutputShape computes the pooled shape for an NHWC input shape.
func (m *MaxPool2D[B]) OutputShape(input tensor.Shape) tensor.Shape {
	n, h, w, c := input.NHWC()
	return tensor.Shape{
		n,
		m.padding.OutputSize(h, m.size, m.stride),
		m.padding.OutputSize(w, m.size, m.stride),
		c,
	}
}

// String returns a string representation of the layer.
func (m *MaxPool2D[B]) String() string {
	return fmt.Sprintf("MaxPool2D(size=%d, stride=%d, padding=%s)", m.size, m.stride, m.padding)
}
