package catalog

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
)

const artifactVersion = 1

// artifact is the serialized catalog. Rows are fixed-width tuples so that
// consumers never see a missing attribute.
type artifact struct {
	Version         uint          `cbor:"1,keyasint"`
	RegistryAddress string        `cbor:"2,keyasint"`
	MaterialAddress string        `cbor:"3,keyasint"`
	AttributeIDs    []uint64      `cbor:"4,keyasint"`
	Rows            []artifactRow `cbor:"5,keyasint"`
}

type artifactRow struct {
	_       struct{} `cbor:",toarray"`
	Index   uint64
	Weights []uint64
	Shape   string
}

var artifactEncMode = mustEncMode()

func mustEncMode() cbor.EncMode {
	mode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("catalog: build CBOR encoding mode: %v", err))
	}
	return mode
}

// MarshalArtifact encodes the catalog as deterministic CBOR. Equal catalogs
// always produce identical bytes.
func (c *Catalog) MarshalArtifact() ([]byte, error) {
	a := artifact{
		Version:         artifactVersion,
		RegistryAddress: c.registryAddress,
		MaterialAddress: c.materialAddress,
		AttributeIDs:    make([]uint64, NumAttributes),
		Rows:            make([]artifactRow, len(c.entries)),
	}
	for i, id := range AttributeIDs {
		a.AttributeIDs[i] = uint64(id)
	}
	for i, entry := range c.entries {
		entry := entry // per-iteration copy: Weights below slices it
		a.Rows[i] = artifactRow{
			Index:   uint64(entry.Index),
			Weights: entry.Weights[:],
			Shape:   entry.Shape,
		}
	}

	data, err := artifactEncMode.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode catalog artifact: %w", err)
	}
	return data, nil
}

// UnmarshalArtifact decodes an artifact and rebuilds the catalog through
// Build, so a corrupted artifact fails the same checks as a bad source.
func UnmarshalArtifact(data []byte) (*Catalog, error) {
	var a artifact
	if err := cbor.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode catalog artifact: %w", err)
	}
	if a.Version != artifactVersion {
		return nil, fmt.Errorf("unsupported catalog artifact version %d", a.Version)
	}
	if len(a.AttributeIDs) != NumAttributes {
		return nil, fmt.Errorf("artifact lists %d attribute ids, want %d", len(a.AttributeIDs), NumAttributes)
	}
	for i, id := range a.AttributeIDs {
		if AttributeID(id) != AttributeIDs[i] {
			return nil, fmt.Errorf("artifact attribute %d is %#x, want %#x", i, id, uint64(AttributeIDs[i]))
		}
	}

	src := Source{
		RegistryAddress: a.RegistryAddress,
		MaterialAddress: a.MaterialAddress,
		Attributes:      make([]AttributeRow, len(a.Rows)),
		Shapes:          make([]ShapeRow, len(a.Rows)),
	}
	for i, row := range a.Rows {
		if len(row.Weights) != NumAttributes {
			return nil, fmt.Errorf("artifact row %d has %d weights, want %d", i, len(row.Weights), NumAttributes)
		}
		weights := make(map[AttributeID]uint64, NumAttributes)
		for pos, weight := range row.Weights {
			weights[AttributeIDs[pos]] = weight
		}
		src.Attributes[i] = AttributeRow{Index: int(row.Index), Weights: weights}
		src.Shapes[i] = ShapeRow{Index: int(row.Index), Shape: row.Shape}
	}

	return Build(src)
}

// Compress zstd-compresses an encoded artifact.
func Compress(data []byte) ([]byte, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	defer encoder.Close()

	return encoder.EncodeAll(data, nil), nil
}

// Decompress reverses Compress.
func Decompress(data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	defer decoder.Close()

	out, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress catalog artifact: %w", err)
	}
	return out, nil
}
