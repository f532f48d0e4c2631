// Package serialization reads and writes backbone weights in SafeTensors format.
//
// SafeTensors is the HuggingFace tensor container:
//
//	Format Structure:
//	  [8 bytes: Header Size (uint64 LE)]
//	  [Header: JSON object, one entry per tensor plus "__metadata__"]
//	  [Tensor data: raw little-endian bytes, tensors in name order]
//
// Each tensor entry records dtype ("F32" or "F64"), shape and a
// [begin, end) byte range relative to the start of the data section.
// The writer also stores a SHA-256 of the data section in the metadata
// under "data_sha256"; the reader verifies it whenever it is present.
//
// Example usage:
//
//	// Save
//	err := serialization.WriteSafeTensors("resnet50.safetensors", stateDict,
//	    map[string]string{"naming_schema": "keras-resnet50/v1"})
//
//	// Load
//	file, err := serialization.ReadSafeTensors("resnet50.safetensors")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = model.LoadStateDict(file.Tensors)
package serialization
