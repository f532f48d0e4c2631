// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package resnet provides the ResNet-50 feature backbone.
//
// Example:
//
//	backend := cpu.New()
//	model := resnet.New(backend, resnet.WithSeed(42))
//	if err := model.LoadWeights("resnet50.safetensors"); err != nil {
//	    log.Fatal(err)
//	}
//	images := tensor.Randn[float32](tensor.Shape{2, 1024, 1024, 3}, rng, backend)
//	features := model.Forward(images, nn.Inference)
//	fmt.Println(features.C5.Shape()) // [2 32 32 2048]
package resnet

import (
	"log/slog"
	"math/rand"

	"github.com/born-ml/backbone/internal/resnet"
	"github.com/born-ml/backbone/internal/tensor"
)

// NamingSchema identifies the checkpoint key layout.
const NamingSchema = resnet.NamingSchema

// Backbone is the ResNet-50 feature extractor.
type Backbone[B tensor.Backend] = resnet.Backbone[B]

// Bottleneck is one residual unit.
type Bottleneck[B tensor.Backend] = resnet.Bottleneck[B]

// BottleneckConfig configures a residual unit.
type BottleneckConfig = resnet.BottleneckConfig

// StageConfig describes one stage of units.
type StageConfig = resnet.StageConfig

// Features holds the C2..C5 feature maps.
type Features[B tensor.Backend] = resnet.Features[B]

// Option configures New.
type Option = resnet.Option

// Errors returned by LoadStateDict and LoadWeights.
var (
	ErrUnexpectedParameter = resnet.ErrUnexpectedParameter
	ErrNamingSchema        = resnet.ErrNamingSchema
)

// New creates a ResNet-50 backbone.
func New[B tensor.Backend](backend B, opts ...Option) *Backbone[B] {
	return resnet.New(backend, opts...)
}

// NewBottleneck creates a standalone residual unit.
func NewBottleneck[B tensor.Backend](inChannels int, config BottleneckConfig, rng *rand.Rand, backend B) *Bottleneck[B] {
	return resnet.NewBottleneck(inChannels, config, rng, backend)
}

// WithSeed seeds the kernel initializer.
func WithSeed(seed int64) Option {
	return resnet.WithSeed(seed)
}

// WithRand sets the random source of the kernel initializer.
func WithRand(rng *rand.Rand) Option {
	return resnet.WithRand(rng)
}

// WithLogger sets the construction and weight I/O logger.
func WithLogger(logger *slog.Logger) Option {
	return resnet.WithLogger(logger)
}

// OutputShapes computes the C2..C5 shapes for an input shape.
func OutputShapes(input tensor.Shape) [4]tensor.Shape {
	return resnet.OutputShapes(input)
}

// Stages returns the stage layout.
func Stages() [4]StageConfig {
	return resnet.Stages()
}
