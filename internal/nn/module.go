// Package nn implements the neural network layers used by the backbone.
//
// This package provides:
//   - Module interface: Base interface for all layers
//   - Parameter: Named parameter tensors
//   - Conv2D, BatchNorm, MaxPool2D, ReLU: channel-last layers
//   - HeNormal: Kaiming initialization
//
// Every Forward takes an explicit Mode. Only BatchNorm reacts to it.
package nn

import (
	"github.com/born-ml/backbone/internal/tensor"
)

// Mode selects training or inference behavior for a forward pass.
type Mode int

const (
	// Inference normalizes with moving statistics and never updates them.
	Inference Mode = iota
	// Training normalizes with batch statistics and updates moving statistics.
	Training
)

// String returns the mode name.
func (m Mode) String() string {
	if m == Training {
		return "training"
	}
	return "inference"
}

// Module is the base interface for all neural network components.
//
// Modules can be composed to build larger networks; the composite module
// owns naming of its children when it builds its state dict.
//
// Type parameter B must satisfy the tensor.Backend interface.
type Module[B tensor.Backend] interface {
	// Forward computes the output of the module given an input tensor.
	Forward(input *tensor.Tensor[float32, B], mode Mode) *tensor.Tensor[float32, B]

	// Parameters returns all trainable parameters of this module.
	//
	// Moving statistics are state, not trainable parameters, and are
	// only reachable through StateDict.
	Parameters() []*Parameter[B]

	// StateDict returns every persistent tensor keyed by its local name.
	StateDict() map[string]*tensor.RawTensor

	// LoadStateDict copies tensors from stateDict into the module.
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error
}
