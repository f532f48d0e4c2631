package serialization

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/born-ml/backbone/internal/tensor"
)

// File is a decoded SafeTensors file.
type File struct {
	Metadata map[string]string
	Tensors  map[string]*tensor.RawTensor
}

// Names returns the tensor names in sorted order.
func (f *File) Names() []string {
	names := make([]string, 0, len(f.Tensors))
	for name := range f.Tensors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ReadSafeTensors reads and validates the SafeTensors file at path.
func ReadSafeTensors(path string) (*File, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for model loading
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	f, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Decode reads a SafeTensors stream from r.
//
// Every entry is validated before any tensor is materialized: names,
// dtypes, shapes against byte ranges, overlaps and bounds. The data
// checksum is verified when the metadata carries one.
func Decode(r io.Reader) (*File, error) {
	var headerSize uint64
	if err := binary.Read(r, binary.LittleEndian, &headerSize); err != nil {
		return nil, fmt.Errorf("%w: failed to read header size: %w", ErrTruncated, err)
	}
	if headerSize > MaxHeaderSize {
		return nil, &ValidationError{
			Err:     ErrHeaderTooLarge,
			Details: fmt.Sprintf("%d bytes, max %d", headerSize, MaxHeaderSize),
		}
	}

	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return nil, fmt.Errorf("%w: failed to read header: %w", ErrTruncated, err)
	}

	var rawMap map[string]json.RawMessage
	if err := json.Unmarshal(headerBytes, &rawMap); err != nil {
		return nil, fmt.Errorf("failed to parse header JSON: %w", err)
	}

	metadata := map[string]string{}
	if metadataRaw, ok := rawMap["__metadata__"]; ok {
		if err := json.Unmarshal(metadataRaw, &metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
		delete(rawMap, "__metadata__")
	}

	if len(rawMap) > MaxTensorCount {
		return nil, &ValidationError{
			Err:     ErrTooManyTensors,
			Details: fmt.Sprintf("got %d, max %d", len(rawMap), MaxTensorCount),
		}
	}

	infos := make(map[string]SafeTensorHeader, len(rawMap))
	metas := make([]TensorMeta, 0, len(rawMap))
	var dataSize int64
	for name, value := range rawMap {
		if err := ValidateTensorName(name); err != nil {
			return nil, err
		}
		var info SafeTensorHeader
		if err := json.Unmarshal(value, &info); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tensor %s: %w", name, err)
		}
		meta, err := checkEntry(name, info)
		if err != nil {
			return nil, err
		}
		infos[name] = info
		metas = append(metas, meta)
		if end := meta.Offset + meta.Size; end > dataSize {
			dataSize = end
		}
	}

	// Header offsets are untrusted; the buffer grows only with bytes read.
	data, err := io.ReadAll(io.LimitReader(r, dataSize))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read tensor data: %w", ErrTruncated, err)
	}
	if int64(len(data)) < dataSize {
		return nil, &ValidationError{
			Err:     ErrTruncated,
			Details: fmt.Sprintf("header needs %d data bytes, stream holds %d", dataSize, len(data)),
		}
	}
	if err := ValidateTensorOffsets(metas, dataSize); err != nil {
		return nil, err
	}
	if stored, ok := metadata[ChecksumKey]; ok {
		if err := ValidateChecksum(ComputeChecksum(data), stored); err != nil {
			return nil, err
		}
	}

	tensors := make(map[string]*tensor.RawTensor, len(infos))
	for name, info := range infos {
		raw, err := materialize(name, info, data)
		if err != nil {
			return nil, err
		}
		tensors[name] = raw
	}

	return &File{Metadata: metadata, Tensors: tensors}, nil
}

// checkEntry validates one header entry and returns its byte range.
func checkEntry(name string, info SafeTensorHeader) (TensorMeta, error) {
	dtype, err := safeTensorsToDType(info.DType)
	if err != nil {
		return TensorMeta{}, fmt.Errorf("tensor %s: %w", name, err)
	}

	begin, end := info.DataOffsets[0], info.DataOffsets[1]
	if begin < 0 || end < begin {
		return TensorMeta{}, &ValidationError{
			Err:     ErrInvalidOffsets,
			Tensor:  name,
			Details: fmt.Sprintf("data_offsets [%d, %d]", begin, end),
		}
	}

	elements := int64(1)
	for _, dim := range info.Shape {
		if dim <= 0 {
			return TensorMeta{}, &ValidationError{
				Err:     ErrInvalidOffsets,
				Tensor:  name,
				Details: fmt.Sprintf("invalid shape %v", info.Shape),
			}
		}
		if elements > math.MaxInt64/dim {
			return TensorMeta{}, &ValidationError{
				Err:     ErrInvalidOffsets,
				Tensor:  name,
				Details: fmt.Sprintf("shape %v overflows", info.Shape),
			}
		}
		elements *= dim
	}
	size := int64(dtype.Size())
	if elements > math.MaxInt64/size {
		return TensorMeta{}, &ValidationError{
			Err:     ErrInvalidOffsets,
			Tensor:  name,
			Details: fmt.Sprintf("shape %v overflows", info.Shape),
		}
	}
	if want := elements * size; want != end-begin {
		return TensorMeta{}, &ValidationError{
			Err:     ErrInvalidOffsets,
			Tensor:  name,
			Details: fmt.Sprintf("shape %v needs %d bytes, range holds %d", info.Shape, want, end-begin),
		}
	}

	return TensorMeta{Name: name, Offset: begin, Size: end - begin}, nil
}

// materialize copies the tensor bytes out of the data section.
func materialize(name string, info SafeTensorHeader, data []byte) (*tensor.RawTensor, error) {
	dtype, err := safeTensorsToDType(info.DType)
	if err != nil {
		return nil, err
	}

	shape := make(tensor.Shape, len(info.Shape))
	for i, dim := range info.Shape {
		shape[i] = int(dim)
	}

	raw, err := tensor.NewRaw(shape, dtype, tensor.CPU)
	if err != nil {
		return nil, fmt.Errorf("tensor %s: %w", name, err)
	}
	if err := raw.SetData(data[info.DataOffsets[0]:info.DataOffsets[1]]); err != nil {
		return nil, fmt.Errorf("tensor %s: %w", name, err)
	}
	return raw, nil
}

// safeTensorsToDType converts a SafeTensors dtype string to tensor.DataType.
func safeTensorsToDType(dtype string) (tensor.DataType, error) {
	switch dtype {
	case "F32":
		return tensor.Float32, nil
	case "F64":
		return tensor.Float64, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedDType, dtype)
	}
}
