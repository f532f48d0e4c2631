package tensor

// Backend defines the operations the backbone needs from a compute backend.
//
// All image operands are channel-last [N, H, W, C]. Kernels are
// [kernel_h, kernel_w, in_channels, out_channels]. Implementations panic on
// shape misuse; they do not return errors.
type Backend interface {
	// Add performs element-wise addition. b may be a vector matching the
	// last dimension of a, in which case it is broadcast.
	Add(a, b *RawTensor) *RawTensor

	// ReLU computes max(0, x) element-wise.
	ReLU(x *RawTensor) *RawTensor

	// Conv2D convolves input [N,H,W,Cin] with kernel [KH,KW,Cin,Cout].
	Conv2D(input, kernel *RawTensor, stride int, padding Padding) *RawTensor

	// MaxPool2D takes the maximum over size x size windows.
	MaxPool2D(input *RawTensor, size, stride int, padding Padding) *RawTensor

	// ChannelMoments returns per-channel mean and biased variance over
	// every axis except the last.
	ChannelMoments(x *RawTensor) (mean, variance *RawTensor)

	// ChannelAffine computes x*scale[c] + shift[c] along the last axis.
	ChannelAffine(x, scale, shift *RawTensor) *RawTensor

	// Metadata
	Name() string
	Device() Device
}
