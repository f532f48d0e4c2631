package resnet

import (
	"github.com/born-ml/backbone/internal/tensor"
)

// featureStrides and featureChannels describe C2..C5.
var (
	featureStrides  = [4]int{4, 8, 16, 32}
	featureChannels = [4]int{256, 512, 1024, 2048}
)

// OutputShapes computes the C2..C5 shapes for an NHWC input shape without
// running the network.
//
// Spatial sizes use integer division by the fixed strides 4, 8, 16 and 32.
// This is exact when H and W are multiples of 32; use PlanShapes for other
// sizes.
func OutputShapes(input tensor.Shape) [4]tensor.Shape {
	n, h, w, _ := input.NHWC()
	var shapes [4]tensor.Shape
	for i, s := range featureStrides {
		shapes[i] = tensor.Shape{n, h / s, w / s, featureChannels[i]}
	}
	return shapes
}

// PlanShapes walks every layer's shape rule and returns the C2..C5 shapes
// Forward will actually produce, for any input size.
func (b *Backbone[B]) PlanShapes(input tensor.Shape) [4]tensor.Shape {
	shape := b.conv1.OutputShape(input)
	shape = b.pool.OutputShape(shape)

	var shapes [4]tensor.Shape
	stage := 0
	for i, unit := range b.units {
		shape = unit.OutputShape(shape)
		if i == b.stageAt[stage] {
			shapes[stage] = shape
			stage++
		}
	}
	return shapes
}
