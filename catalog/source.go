package catalog

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseSource decodes a YAML catalog source. Unknown fields are rejected.
func ParseSource(data []byte) (Source, error) {
	var src Source
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&src); err != nil {
		return Source{}, fmt.Errorf("parse catalog source: %w", err)
	}
	return src, nil
}

// LoadSource reads and builds a catalog from a YAML file.
func LoadSource(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog source: %w", err)
	}
	src, err := ParseSource(data)
	if err != nil {
		return nil, err
	}
	cat, err := Build(src)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cat, nil
}

// Load reads a catalog from path, accepting a YAML source (.yaml/.yml), a
// zstd-compressed artifact (.zst) or a raw CBOR artifact (anything else).
func Load(path string) (*Catalog, error) {
	if isYAML(path) {
		return LoadSource(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog artifact: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".zst") {
		if data, err = Decompress(data); err != nil {
			return nil, err
		}
	}
	return UnmarshalArtifact(data)
}

// MarshalSource encodes a catalog back to YAML.
func (c *Catalog) MarshalSource() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c.Source()); err != nil {
		return nil, fmt.Errorf("encode catalog source: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode catalog source: %w", err)
	}
	return buf.Bytes(), nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
