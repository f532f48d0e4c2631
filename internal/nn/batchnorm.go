package nn

import (
	"fmt"
	"math"

	"github.com/born-ml/backbone/internal/tensor"
)

// Default BatchNorm hyperparameters (Keras defaults).
const (
	DefaultBatchNormMomentum = 0.99
	DefaultBatchNormEpsilon  = 1e-3
)

// BatchNorm normalizes each channel of a channel-last tensor.
//
// Formula: Y = gamma * (X - mean) / sqrt(var + eps) + beta
//
// In Training mode mean and var are the statistics of the current batch
// (over batch, height and width) and the moving statistics are updated:
//
//	moving_mean     = moving_mean * momentum + mean * (1 - momentum)
//	moving_variance = moving_variance * momentum + var_unbiased * (1 - momentum)
//
// In Inference mode mean and var are the moving statistics, which are only
// read. Forward in Training mode mutates the layer, so it must not run
// concurrently with any other Forward on the same layer.
type BatchNorm[B tensor.Backend] struct {
	Gamma          *Parameter[B] // learnable scale [channels]
	Beta           *Parameter[B] // learnable shift [channels]
	MovingMean     *Parameter[B] // running mean [channels]
	MovingVariance *Parameter[B] // running variance [channels]
	Momentum       float32
	Epsilon        float32
	channels       int
	backend        B
}

// NewBatchNorm creates a BatchNorm layer with the default momentum and epsilon.
//
// gamma and moving_variance start at one, beta and moving_mean at zero.
func NewBatchNorm[B tensor.Backend](channels int, backend B) *BatchNorm[B] {
	if channels <= 0 {
		panic(fmt.Sprintf("batchnorm: invalid channels %d", channels))
	}
	shape := tensor.Shape{channels}
	return &BatchNorm[B]{
		Gamma:          NewParameter("gamma", Ones(shape, backend)),
		Beta:           NewParameter("beta", Zeros(shape, backend)),
		MovingMean:     NewStatistic("moving_mean", Zeros(shape, backend)),
		MovingVariance: NewStatistic("moving_variance", Ones(shape, backend)),
		Momentum:       DefaultBatchNormMomentum,
		Epsilon:        DefaultBatchNormEpsilon,
		channels:       channels,
		backend:        backend,
	}
}

// Forward normalizes x [..., channels] according to mode.
//
// The normalization is folded into one per-channel affine transform:
//
//	scale = gamma / sqrt(var + eps)
//	shift = beta - mean * scale
func (bn *BatchNorm[B]) Forward(x *tensor.Tensor[float32, B], mode Mode) *tensor.Tensor[float32, B] {
	shape := x.Shape()
	if len(shape) == 0 || shape.Channels() != bn.channels {
		panic(fmt.Sprintf("batchnorm: expected %d channels, got shape %v", bn.channels, shape))
	}

	var mean, variance []float32
	if mode == Training {
		meanRaw, varRaw := bn.backend.ChannelMoments(x.Raw())
		mean, variance = meanRaw.AsFloat32(), varRaw.AsFloat32()
		bn.updateMovingStatistics(mean, variance, shape.NumElements()/bn.channels)
	} else {
		mean, variance = bn.MovingMean.Tensor().Data(), bn.MovingVariance.Tensor().Data()
	}

	gamma := bn.Gamma.Tensor().Data()
	beta := bn.Beta.Tensor().Data()

	scale := tensor.Zeros[float32](tensor.Shape{bn.channels}, bn.backend)
	shift := tensor.Zeros[float32](tensor.Shape{bn.channels}, bn.backend)
	scaleData, shiftData := scale.Data(), shift.Data()
	for c := 0; c < bn.channels; c++ {
		s := gamma[c] / float32(math.Sqrt(float64(variance[c]+bn.Epsilon)))
		scaleData[c] = s
		shiftData[c] = beta[c] - mean[c]*s
	}

	out := bn.backend.ChannelAffine(x.Raw(), scale.Raw(), shift.Raw())
	return tensor.New[float32, B](out, bn.backend)
}

// updateMovingStatistics folds batch statistics over count samples per
// channel into the moving averages. The variance is Bessel corrected.
func (bn *BatchNorm[B]) updateMovingStatistics(mean, variance []float32, count int) {
	correction := float32(1)
	if count > 1 {
		correction = float32(count) / float32(count-1)
	}

	movingMean := bn.MovingMean.Tensor().Data()
	movingVar := bn.MovingVariance.Tensor().Data()
	decay := 1 - bn.Momentum
	for c := range movingMean {
		movingMean[c] = movingMean[c]*bn.Momentum + mean[c]*decay
		movingVar[c] = movingVar[c]*bn.Momentum + variance[c]*correction*decay
	}
}

// Parameters returns the learnable parameters (gamma and beta).
func (bn *BatchNorm[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{bn.Gamma, bn.Beta}
}

// StateDict returns gamma, beta and both moving statistics.
func (bn *BatchNorm[B]) StateDict() map[string]*tensor.RawTensor {
	return stateDictOf(bn.Gamma, bn.Beta, bn.MovingMean, bn.MovingVariance)
}

// LoadStateDict loads gamma, beta, moving_mean and moving_variance.
func (bn *BatchNorm[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return loadParameters(stateDict, bn.Gamma, bn.Beta, bn.MovingMean, bn.MovingVariance)
}

// Channels returns the number of normalized channels.
func (bn *BatchNorm[B]) Channels() int {
	return bn.channels
}

// String returns a string representation of the layer.
func (bn *BatchNorm[B]) String() string {
	return fmt.Sprintf("BatchNorm(channels=%d, momentum=%g, epsilon=%g)", bn.channels, bn.Momentum, bn.Epsilon)
}
