package resnet

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/born-ml/backbone/internal/nn"
	"github.com/born-ml/backbone/internal/tensor"
)

// ErrUnexpectedParameter is returned when a state dict has keys the
// network does not own.
var ErrUnexpectedParameter = errors.New("unexpected parameter")

// namedLayer pairs a module with its checkpoint name.
type namedLayer[B tensor.Backend] struct {
	name   string
	module nn.Module[B]
}

// flatten merges the layers' state dicts under "<layer>/<param>" keys.
func flatten[B tensor.Backend](layers []namedLayer[B]) map[string]*tensor.RawTensor {
	out := make(map[string]*tensor.RawTensor)
	for _, l := range layers {
		for k, v := range l.module.StateDict() {
			out[l.name+"/"+k] = v
		}
	}
	return out
}

// unflatten splits stateDict by layer name and loads each layer.
//
// Every key must belong to one of layers; every layer must find all of
// its own keys with matching shapes. Nothing is copied unless the whole
// state dict passes these checks.
func unflatten[B tensor.Backend](layers []namedLayer[B], stateDict map[string]*tensor.RawTensor) error {
	groups := make(map[string]map[string]*tensor.RawTensor, len(layers))
	owned := make(map[string]map[string]*tensor.RawTensor, len(layers))
	for _, l := range layers {
		groups[l.name] = map[string]*tensor.RawTensor{}
		owned[l.name] = l.module.StateDict()
	}

	var unknown []string
	for key, raw := range stateDict {
		layer, param, ok := strings.Cut(key, "/")
		group, known := groups[layer]
		if !ok || !known {
			unknown = append(unknown, key)
			continue
		}
		if _, own := owned[layer][param]; !own {
			unknown = append(unknown, key)
			continue
		}
		group[param] = raw
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("%w: %s", ErrUnexpectedParameter, strings.Join(unknown, ", "))
	}

	for _, l := range layers {
		if err := checkLayer(owned[l.name], groups[l.name]); err != nil {
			return fmt.Errorf("%s: %w", l.name, err)
		}
	}

	for _, l := range layers {
		if err := l.module.LoadStateDict(groups[l.name]); err != nil {
			return fmt.Errorf("%s: %w", l.name, err)
		}
	}
	return nil
}

// checkLayer reports the first key of want that got lacks or holds with
// another shape or dtype. Keys are visited in sorted order.
func checkLayer(want, got map[string]*tensor.RawTensor) error {
	names := make([]string, 0, len(want))
	for name := range want {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		raw, ok := got[name]
		if !ok {
			return fmt.Errorf("%w: %s", nn.ErrMissingParameter, name)
		}
		w := want[name]
		if !raw.Shape().Equal(w.Shape()) || raw.DType() != w.DType() {
			return fmt.Errorf("%w: %s: expected %v %s, got %v %s",
				nn.ErrShapeMismatch, name, w.Shape(), w.DType(), raw.Shape(), raw.DType())
		}
	}
	return nil
}
