// Package labels - Mapping of external model vocabulary onto waste categories.
package labels

import (
	"strings"

	"github.com/nvr-ai/go-waste/waste"
	"github.com/pkg/errors"
)

// FallbackTarget is the reserved table target that binds a label to the taxonomy fallback.
const FallbackTarget = "fallback"

// Table maps external model labels to category names (or FallbackTarget).
type Table map[string]string

// ErrInvalidTable is returned when a table targets a category the taxonomy does not define.
var ErrInvalidTable = errors.New("invalid label table")

// Mapper resolves model labels to categories. It is immutable and safe for concurrent use.
type Mapper struct {
	name     string
	taxonomy *waste.Taxonomy
	entries  map[string]waste.Category
}

// NewMapper validates every table target against the taxonomy and builds the lookup.
//
// Arguments:
//   - name: Table name used in error messages.
//   - taxonomy: The category set targets must resolve in.
//   - table: The label table.
//
// Returns:
//   - *Mapper: The mapper.
//   - error: ErrInvalidTable if a target does not resolve or two spellings of a label disagree.
func NewMapper(name string, taxonomy *waste.Taxonomy, table Table) (*Mapper, error) {
	m := &Mapper{
		name:     name,
		taxonomy: taxonomy,
		entries:  make(map[string]waste.Category, len(table)),
	}

	for label, target := range table {
		key := Normalize(label)
		if key == "" {
			return nil, errors.Wrapf(ErrInvalidTable, "%s: empty label", name)
		}

		var category waste.Category
		if Normalize(target) == FallbackTarget {
			category = taxonomy.Fallback()
		} else {
			c, err := taxonomy.Lookup(target)
			if err != nil {
				return nil, errors.Wrapf(ErrInvalidTable, "%s: label %q: %v", name, label, err)
			}
			category = c
		}

		if prev, dup := m.entries[key]; dup && prev != category {
			return nil, errors.Wrapf(ErrInvalidTable, "%s: label %q maps to both %s and %s", name, label, prev, category)
		}
		m.entries[key] = category
	}

	return m, nil
}

// Name returns the table name.
func (m *Mapper) Name() string {
	return m.name
}

// Taxonomy returns the taxonomy the mapper resolves into.
func (m *Mapper) Taxonomy() *waste.Taxonomy {
	return m.taxonomy
}

// Map resolves a label to a category. Unmapped labels resolve to the fallback category.
func (m *Mapper) Map(label string) waste.Category {
	c, _ := m.Lookup(label)
	return c
}

// Lookup resolves a label and reports whether it was present in the table.
func (m *Mapper) Lookup(label string) (waste.Category, bool) {
	if c, ok := m.entries[Normalize(label)]; ok {
		return c, true
	}
	return m.taxonomy.Fallback(), false
}

// Len returns the number of labels in the table.
func (m *Mapper) Len() int {
	return len(m.entries)
}

// Normalize trims and lower-cases a label. Underscores are treated as spaces so that
// "E_WASTE_USEFUL", "cell_phone" and "cell phone" share a key.
func Normalize(label string) string {
	s := strings.ToLower(strings.TrimSpace(label))
	s = strings.ReplaceAll(s, "_", " ")
	return strings.Join(strings.Fields(s), " ")
}
