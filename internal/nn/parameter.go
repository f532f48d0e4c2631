package nn

import (
	"errors"
	"fmt"

	"github.com/born-ml/backbone/internal/tensor"
)

var (
	// ErrMissingParameter is returned when a state dict lacks a required key.
	ErrMissingParameter = errors.New("missing parameter")

	// ErrShapeMismatch is returned when a state dict tensor has the wrong shape or dtype.
	ErrShapeMismatch = errors.New("parameter shape mismatch")
)

// Parameter represents a named parameter tensor in a layer.
//
// Example:
//
//	kernel := nn.NewParameter("kernel", kernelTensor)
//	k := kernel.Tensor()
type Parameter[B tensor.Backend] struct {
	name      string                     // Parameter name (e.g., "kernel", "gamma")
	tensor    *tensor.Tensor[float32, B] // The parameter tensor
	trainable bool                       // False for running statistics
}

// NewParameter creates a new trainable parameter.
func NewParameter[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return &Parameter[B]{
		name:      name,
		tensor:    t,
		trainable: true,
	}
}

// NewStatistic creates a non-trainable parameter, such as a moving mean.
//
// Statistics are persisted in state dicts but never reported by
// Module.Parameters.
func NewStatistic[B tensor.Backend](name string, t *tensor.Tensor[float32, B]) *Parameter[B] {
	return &Parameter[B]{
		name:   name,
		tensor: t,
	}
}

// Trainable reports whether the parameter is learned by gradient descent.
func (p *Parameter[B]) Trainable() bool {
	return p.trainable
}

// Name returns the parameter name.
func (p *Parameter[B]) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter[B]) Tensor() *tensor.Tensor[float32, B] {
	return p.tensor
}

// Load copies raw into the parameter after checking shape and dtype.
func (p *Parameter[B]) Load(raw *tensor.RawTensor) error {
	if err := p.check(raw); err != nil {
		return err
	}
	return p.tensor.Raw().SetData(raw.Data())
}

func (p *Parameter[B]) check(raw *tensor.RawTensor) error {
	want := p.tensor.Shape()
	if !raw.Shape().Equal(want) {
		return fmt.Errorf("%w: %s: expected %v, got %v", ErrShapeMismatch, p.name, want, raw.Shape())
	}
	if raw.DType() != tensor.Float32 {
		return fmt.Errorf("%w: %s: expected float32, got %v", ErrShapeMismatch, p.name, raw.DType())
	}
	return nil
}

// stateDictOf builds a state dict from parameters keyed by their names.
func stateDictOf[B tensor.Backend](params ...*Parameter[B]) map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor, len(params))
	for _, p := range params {
		stateDict[p.name] = p.tensor.Raw()
	}
	return stateDict
}

// loadParameters loads every parameter from stateDict by name.
//
// All parameters are checked before any is written, so a failed load
// leaves the module unchanged.
func loadParameters[B tensor.Backend](stateDict map[string]*tensor.RawTensor, params ...*Parameter[B]) error {
	for _, p := range params {
		raw, ok := stateDict[p.name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingParameter, p.name)
		}
		if err := p.check(raw); err != nil {
			return err
		}
	}
	for _, p := range params {
		if err := p.tensor.Raw().SetData(stateDict[p.name].Data()); err != nil {
			return err
		}
	}
	return nil
}
