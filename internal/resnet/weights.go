package resnet

import (
	"errors"
	"fmt"

	"github.com/born-ml/backbone/internal/serialization"
)

// Metadata keys written with every checkpoint.
const (
	MetadataNamingSchema = "naming_schema"
	MetadataArchitecture = "architecture"
)

// ErrNamingSchema is returned when a checkpoint declares a naming schema
// other than NamingSchema.
var ErrNamingSchema = errors.New("unsupported naming schema")

// SaveWeights writes the state dict to path in SafeTensors format.
func (b *Backbone[B]) SaveWeights(path string) error {
	stateDict := b.StateDict()
	err := serialization.WriteSafeTensors(path, stateDict, map[string]string{
		MetadataNamingSchema: NamingSchema,
		MetadataArchitecture: "resnet50",
	})
	if err != nil {
		return fmt.Errorf("save weights: %w", err)
	}

	b.logger.Info("Weights saved.", "path", path, "tensors", len(stateDict))
	return nil
}

// LoadWeights reads a SafeTensors checkpoint from path into the backbone.
//
// A checkpoint without a naming_schema entry is accepted if its keys
// match; one that names a different schema is rejected.
func (b *Backbone[B]) LoadWeights(path string) error {
	file, err := serialization.ReadSafeTensors(path)
	if err != nil {
		return fmt.Errorf("load weights: %w", err)
	}

	if schema, ok := file.Metadata[MetadataNamingSchema]; ok && schema != NamingSchema {
		return fmt.Errorf("load weights: %w: %q, want %q", ErrNamingSchema, schema, NamingSchema)
	}

	if err := b.LoadStateDict(file.Tensors); err != nil {
		return fmt.Errorf("load weights: %w", err)
	}

	b.logger.Info("Weights loaded.", "path", path, "tensors", len(file.Tensors))
	return nil
}
