package tensor

import "fmt"

// Shape represents the dimensions of a tensor.
//
// Image tensors are channel-last: [batch, height, width, channels].
type Shape []int

// NumElements returns the total number of elements in the tensor.
func (s Shape) NumElements() int {
	if len(s) == 0 {
		return 1 // Scalar has 1 element
	}
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate checks if the shape is valid (all dimensions > 0).
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim <= 0 {
			return fmt.Errorf("invalid dimension at index %d: %d (must be > 0)", i, dim)
		}
	}
	return nil
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// ComputeStrides calculates row-major strides for the shape.
// Strides define memory layout: stride[i] = product of all dimensions after i.
func (s Shape) ComputeStrides() []int {
	strides := make([]int, len(s))
	if len(s) == 0 {
		return strides
	}

	strides[len(s)-1] = 1
	for i := len(s) - 2; i >= 0; i-- {
		strides[i] = strides[i+1] * s[i+1]
	}
	return strides
}

// Channels returns the size of the last (channel) dimension.
// Panics on a scalar shape.
func (s Shape) Channels() int {
	if len(s) == 0 {
		panic("channels: scalar shape has no channel dimension")
	}
	return s[len(s)-1]
}

// NHWC splits a 4D channel-last shape into its dimensions.
// Panics if the shape is not 4D.
func (s Shape) NHWC() (n, h, w, c int) {
	if len(s) != 4 {
		panic(fmt.Sprintf("expected 4D shape [N,H,W,C], got %dD %v", len(s), s))
	}
	return s[0], s[1], s[2], s[3]
}
