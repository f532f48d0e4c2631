package tensor

import "fmt"

// Padding selects how a sliding window treats image borders.
//
// The arithmetic matches TensorFlow's VALID and SAME rules.
type Padding int

const (
	// Valid uses only full windows; no padding is added.
	Valid Padding = iota
	// Same pads so that the output size is ceil(in / stride).
	Same
)

// String returns the padding name.
func (p Padding) String() string {
	switch p {
	case Valid:
		return "valid"
	case Same:
		return "same"
	default:
		return fmt.Sprintf("Padding(%d)", int(p))
	}
}

// OutputSize returns the output length of a window of size kernel moved with
// stride over an input of length in.
//
//	valid: ceil((in - kernel + 1) / stride)
//	same:  ceil(in / stride)
func (p Padding) OutputSize(in, kernel, stride int) int {
	if stride <= 0 {
		panic(fmt.Sprintf("padding: invalid stride %d", stride))
	}
	switch p {
	case Same:
		return ceilDiv(in, stride)
	case Valid:
		if in < kernel {
			return 0
		}
		return ceilDiv(in-kernel+1, stride)
	default:
		panic(fmt.Sprintf("padding: unknown mode %d", int(p)))
	}
}

// Pads returns the padding added before and after an axis of length in.
// For Same, any odd cell goes after, as TensorFlow does.
func (p Padding) Pads(in, kernel, stride int) (before, after int) {
	if p != Same {
		return 0, 0
	}
	out := p.OutputSize(in, kernel, stride)
	total := max((out-1)*stride+kernel-in, 0)
	before = total / 2
	return before, total - before
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
