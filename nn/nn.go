// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nn provides the layers the backbone is built from.
//
// Every Forward takes an explicit Mode. Only BatchNorm reacts to it.
package nn

import (
	"math/rand"

	"github.com/born-ml/backbone/internal/nn"
	"github.com/born-ml/backbone/internal/tensor"
)

// Mode selects training or inference behavior.
type Mode = nn.Mode

// Modes.
const (
	Inference Mode = nn.Inference
	Training  Mode = nn.Training
)

// Module interface defines the common interface for all layers.
type Module[B tensor.Backend] = nn.Module[B]

// Parameter is a named parameter tensor.
type Parameter[B tensor.Backend] = nn.Parameter[B]

// Errors returned by LoadStateDict.
var (
	ErrMissingParameter = nn.ErrMissingParameter
	ErrShapeMismatch    = nn.ErrShapeMismatch
)

// Conv2D represents a channel-last 2D convolutional layer.
type Conv2D[B tensor.Backend] = nn.Conv2D[B]

// NewConv2D creates a 2D convolutional layer with He-normal kernels.
//
// Example:
//
//	conv := nn.NewConv2D(3, 64, 7, 7, 2, tensor.Same, true, rng, backend)
func NewConv2D[B tensor.Backend](
	inChannels, outChannels int,
	kernelH, kernelW int,
	stride int,
	padding tensor.Padding,
	useBias bool,
	rng *rand.Rand,
	backend B,
) *Conv2D[B] {
	return nn.NewConv2D(inChannels, outChannels, kernelH, kernelW, stride, padding, useBias, rng, backend)
}

// BatchNorm represents a per-channel batch normalization layer.
type BatchNorm[B tensor.Backend] = nn.BatchNorm[B]

// NewBatchNorm creates a batch norm layer with momentum 0.99 and epsilon 1e-3.
func NewBatchNorm[B tensor.Backend](channels int, backend B) *BatchNorm[B] {
	return nn.NewBatchNorm(channels, backend)
}

// MaxPool2D represents a 2D max pooling layer.
type MaxPool2D[B tensor.Backend] = nn.MaxPool2D[B]

// NewMaxPool2D creates a max pooling layer with a square window.
func NewMaxPool2D[B tensor.Backend](size, stride int, padding tensor.Padding, backend B) *MaxPool2D[B] {
	return nn.NewMaxPool2D(size, stride, padding, backend)
}

// ReLU is the rectified linear activation.
type ReLU[B tensor.Backend] = nn.ReLU[B]

// NewReLU creates a ReLU activation.
func NewReLU[B tensor.Backend]() *ReLU[B] {
	return nn.NewReLU[B]()
}

// HeNormal returns a truncated He-normal initialized tensor.
func HeNormal[B tensor.Backend](fanIn int, shape tensor.Shape, rng *rand.Rand, backend B) *tensor.Tensor[float32, B] {
	return nn.HeNormal(fanIn, shape, rng, backend)
}
