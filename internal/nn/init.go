package nn

import (
	"math"
	"math/rand"

	"github.com/born-ml/backbone/internal/tensor"
)

// truncatedNormalStddev is the standard deviation of a unit normal
// truncated to [-2, 2]. Dividing by it restores the requested variance
// after truncation.
const truncatedNormalStddev = 0.87962566103423978

// HeNormal (Kaiming) initialization for convolution kernels.
//
// Values come from a normal distribution with stddev sqrt(2 / fanIn),
// truncated at two standard deviations and rescaled so the variance is
// exactly 2 / fanIn. This is the Keras "he_normal" scheme.
//
// Parameters:
//   - fanIn: kernel_h * kernel_w * in_channels
//   - shape: Shape of the weight tensor
//   - rng: Random source (required for reproducible construction)
//   - backend: Backend to use for tensor creation
func HeNormal[B tensor.Backend](fanIn int, shape tensor.Shape, rng *rand.Rand, backend B) *tensor.Tensor[float32, B] {
	stddev := math.Sqrt(2.0/float64(fanIn)) / truncatedNormalStddev

	t := tensor.Zeros[float32](shape, backend)
	data := t.Data()
	for i := range data {
		data[i] = float32(truncatedNormal(rng) * stddev)
	}
	return t
}

// truncatedNormal draws from N(0, 1) restricted to [-2, 2] by resampling.
func truncatedNormal(rng *rand.Rand) float64 {
	for {
		v := rng.NormFloat64()
		if v >= -2 && v <= 2 {
			return v
		}
	}
}

// Zeros creates a tensor filled with zeros.
//
// This is used for bias, beta and moving-mean initialization.
func Zeros[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return tensor.Zeros[float32](shape, backend)
}

// Ones creates a tensor filled with ones.
//
// This is used for gamma and moving-variance initialization.
func Ones[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return tensor.Ones[float32](shape, backend)
}
