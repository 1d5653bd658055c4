package catalog

import (
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrCatalogIndexGap is returned when a table's indices are not exactly 1..N in order.
	ErrCatalogIndexGap = errors.New("catalog index gap")
	// ErrCatalogSizeMismatch is returned when the attribute and shape tables differ in length.
	ErrCatalogSizeMismatch = errors.New("catalog size mismatch")
	// ErrUnknownAttribute is returned for an attribute id outside AttributeIDs.
	ErrUnknownAttribute = errors.New("unknown attribute id")
)

// AttributeID identifies one weighted attribute of a box type.
type AttributeID uint64

// NumAttributes is the width of every weight tuple.
const NumAttributes = 5

// AttributeIDs is the known, ordered set of attribute ids. Position i of a
// Weights tuple holds the weight of AttributeIDs[i].
var AttributeIDs = [NumAttributes]AttributeID{0x1, 0x3, 0x4, 0x5, 0x6}

// Weights is a fixed-width weight tuple. Absent attributes are 0.
type Weights [NumAttributes]uint64

// AttributeRow is one row of the sparse attribute table.
type AttributeRow struct {
	Index   int                     `yaml:"index"`
	Weights map[AttributeID]uint64 `yaml:"weights"`
}

// ShapeRow is one row of the shape table.
type ShapeRow struct {
	Index int    `yaml:"index"`
	Shape string `yaml:"shape"`
}

// Source is the dense description a catalog is built from. Rows must be
// listed in index order starting at 1.
type Source struct {
	RegistryAddress string         `yaml:"attributes_registry_address"`
	MaterialAddress string         `yaml:"material_address"`
	Attributes      []AttributeRow `yaml:"attributes"`
	Shapes          []ShapeRow     `yaml:"shapes"`
}

// Entry is one finalized box type.
type Entry struct {
	Index   int     `json:"index"`
	Weights Weights `json:"weights"`
	Shape   string  `json:"shape"`
}

// Weight returns the weight for attr, 0 if attr is not a known attribute.
func (e Entry) Weight(attr AttributeID) uint64 {
	if pos, ok := attributePosition(attr); ok {
		return e.Weights[pos]
	}
	return 0
}

// Catalog is the immutable box-type table. It is safe for concurrent use
// because nothing mutates it after Build.
type Catalog struct {
	registryAddress string
	materialAddress string
	entries         []Entry
}

func attributePosition(attr AttributeID) (int, bool) {
	for i, id := range AttributeIDs {
		if id == attr {
			return i, true
		}
	}
	return 0, false
}

// Build validates src and freezes it into a Catalog.
//
// Checks, in order:
//   - attribute rows carry indices 1..N in order (ErrCatalogIndexGap)
//   - shape rows carry indices 1..M in order (ErrCatalogIndexGap)
//   - N == M (ErrCatalogSizeMismatch)
//   - every attribute id is known (ErrUnknownAttribute)
//
// No partially built catalog is ever returned.
func Build(src Source) (*Catalog, error) {
	for i, row := range src.Attributes {
		if row.Index != i+1 {
			return nil, fmt.Errorf("%w: attribute row %d has index %d, want %d", ErrCatalogIndexGap, i, row.Index, i+1)
		}
	}
	for i, row := range src.Shapes {
		if row.Index != i+1 {
			return nil, fmt.Errorf("%w: shape row %d has index %d, want %d", ErrCatalogIndexGap, i, row.Index, i+1)
		}
	}
	if len(src.Attributes) != len(src.Shapes) {
		return nil, fmt.Errorf("%w: %d attribute rows, %d shape rows", ErrCatalogSizeMismatch, len(src.Attributes), len(src.Shapes))
	}

	entries := make([]Entry, len(src.Attributes))
	for i, row := range src.Attributes {
		var weights Weights
		for attr, weight := range row.Weights {
			pos, ok := attributePosition(attr)
			if !ok {
				return nil, fmt.Errorf("%w: %#x in row %d", ErrUnknownAttribute, uint64(attr), row.Index)
			}
			weights[pos] = weight
		}
		entries[i] = Entry{
			Index:   row.Index,
			Weights: weights,
			Shape:   src.Shapes[i].Shape,
		}
	}

	return &Catalog{
		registryAddress: src.RegistryAddress,
		materialAddress: src.MaterialAddress,
		entries:         entries,
	}, nil
}

// Len returns the number of box types.
func (c *Catalog) Len() int {
	return len(c.entries)
}

// RegistryAddress is the attributes registry the catalog was generated for.
func (c *Catalog) RegistryAddress() string {
	return c.registryAddress
}

// MaterialAddress is the material token contract the catalog was generated for.
func (c *Catalog) MaterialAddress() string {
	return c.materialAddress
}

// Entry returns the box type at a 1-based index.
func (c *Catalog) Entry(index int) (Entry, bool) {
	if index < 1 || index > len(c.entries) {
		return Entry{}, false
	}
	return c.entries[index-1], true
}

// Weight returns the weight of attr for the box type at index, 0 if either is unknown.
func (c *Catalog) Weight(index int, attr AttributeID) uint64 {
	entry, ok := c.Entry(index)
	if !ok {
		return 0
	}
	return entry.Weight(attr)
}

// Entries returns a copy of all entries in index order.
func (c *Catalog) Entries() []Entry {
	return slices.Clone(c.entries)
}

// Source converts the catalog back into a sparse Source. Zero weights are omitted.
func (c *Catalog) Source() Source {
	src := Source{
		RegistryAddress: c.registryAddress,
		MaterialAddress: c.materialAddress,
		Attributes:      make([]AttributeRow, len(c.entries)),
		Shapes:          make([]ShapeRow, len(c.entries)),
	}
	for i, entry := range c.entries {
		weights := make(map[AttributeID]uint64)
		for pos, weight := range entry.Weights {
			if weight != 0 {
				weights[AttributeIDs[pos]] = weight
			}
		}
		src.Attributes[i] = AttributeRow{Index: entry.Index, Weights: weights}
		src.Shapes[i] = ShapeRow{Index: entry.Index, Shape: entry.Shape}
	}
	return src
}
