// Package waste - Waste category taxonomy and schema versions.
package waste

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Category is one value of the closed waste taxonomy.
type Category string

// String returns the wire name of the category.
func (c Category) String() string {
	return string(c)
}

// CategoryDef declares a category and its static attributes.
type CategoryDef struct {
	// Name is the wire name of the category.
	Name Category `json:"name" yaml:"name" mapstructure:"name"`
	// Recyclable reports whether items of this category can be recycled.
	Recyclable bool `json:"recyclable" yaml:"recyclable" mapstructure:"recyclable"`
}

// Schema is a versioned definition of the category set.
type Schema struct {
	// Version identifies the schema.
	Version string `json:"version" yaml:"version" mapstructure:"version"`
	// Categories lists every category, in display order. The fallback must be one of them.
	Categories []CategoryDef `json:"categories" yaml:"categories" mapstructure:"categories"`
	// Fallback is the category unmapped model output resolves to.
	Fallback Category `json:"fallback" yaml:"fallback" mapstructure:"fallback"`
	// Aliases maps names from other schema versions onto categories of this one.
	Aliases map[string]Category `json:"aliases" yaml:"aliases" mapstructure:"aliases"`
}

var (
	// ErrUnknownCategory is returned when a name does not resolve to a category.
	ErrUnknownCategory = errors.New("unknown waste category")
	// ErrInvalidSchema is returned when a schema fails validation.
	ErrInvalidSchema = errors.New("invalid taxonomy schema")
)

// Taxonomy is a validated, immutable category set. It is safe for concurrent use.
type Taxonomy struct {
	version    string
	categories []Category
	recyclable map[Category]bool
	aliases    map[string]Category
	fallback   Category
}

// NewTaxonomy validates a schema and builds the lookup tables.
//
// Arguments:
//   - schema: The schema to load.
//
// Returns:
//   - *Taxonomy: The validated taxonomy.
//   - error: ErrInvalidSchema wrapped with the reason if validation fails.
func NewTaxonomy(schema Schema) (*Taxonomy, error) {
	if len(schema.Categories) == 0 {
		return nil, errors.Wrap(ErrInvalidSchema, "no categories defined")
	}

	t := &Taxonomy{
		version:    schema.Version,
		categories: make([]Category, 0, len(schema.Categories)),
		recyclable: make(map[Category]bool, len(schema.Categories)),
		aliases:    make(map[string]Category, len(schema.Aliases)),
	}

	for _, def := range schema.Categories {
		name := Category(normalize(string(def.Name)))
		if name == "" {
			return nil, errors.Wrap(ErrInvalidSchema, "empty category name")
		}
		if _, dup := t.recyclable[name]; dup {
			return nil, errors.Wrapf(ErrInvalidSchema, "duplicate category %q", name)
		}
		t.categories = append(t.categories, name)
		t.recyclable[name] = def.Recyclable
	}

	fallback := Category(normalize(string(schema.Fallback)))
	if _, ok := t.recyclable[fallback]; !ok {
		return nil, errors.Wrapf(ErrInvalidSchema, "fallback %q is not a defined category", schema.Fallback)
	}
	t.fallback = fallback

	for from, to := range schema.Aliases {
		key := normalize(from)
		target := Category(normalize(string(to)))
		if _, shadow := t.recyclable[Category(key)]; shadow {
			return nil, errors.Wrapf(ErrInvalidSchema, "alias %q shadows a category", from)
		}
		if _, ok := t.recyclable[target]; !ok {
			return nil, errors.Wrapf(ErrInvalidSchema, "alias %q targets undefined category %q", from, to)
		}
		t.aliases[key] = target
	}

	return t, nil
}

// MustTaxonomy is like NewTaxonomy but panics on an invalid schema. Intended for the built-in schemas.
func MustTaxonomy(schema Schema) *Taxonomy {
	t, err := NewTaxonomy(schema)
	if err != nil {
		panic(err)
	}
	return t
}

// Version returns the schema version the taxonomy was built from.
func (t *Taxonomy) Version() string {
	return t.version
}

// Categories returns every category in declaration order, fallback included.
func (t *Taxonomy) Categories() []Category {
	out := make([]Category, len(t.categories))
	copy(out, t.categories)
	return out
}

// Fallback returns the category unmapped model output resolves to.
func (t *Taxonomy) Fallback() Category {
	return t.fallback
}

// Contains reports whether c is a category of this taxonomy.
func (t *Taxonomy) Contains(c Category) bool {
	_, ok := t.recyclable[c]
	return ok
}

// Lookup resolves a user or table supplied name, honouring aliases.
//
// Arguments:
//   - name: The category name. Case and surrounding whitespace are ignored.
//
// Returns:
//   - Category: The resolved category.
//   - error: ErrUnknownCategory if the name does not resolve.
func (t *Taxonomy) Lookup(name string) (Category, error) {
	key := normalize(name)
	if _, ok := t.recyclable[Category(key)]; ok {
		return Category(key), nil
	}
	if target, ok := t.aliases[key]; ok {
		return target, nil
	}
	return "", errors.Wrapf(ErrUnknownCategory, "%q", name)
}

// Recyclable returns the static recyclable flag of c.
//
// It panics when c is not part of the taxonomy: categories reaching this call have already been
// resolved through Lookup or a label table, so an undefined one is a programming error.
func (t *Taxonomy) Recyclable(c Category) bool {
	r, ok := t.recyclable[c]
	if !ok {
		panic(fmt.Sprintf("waste: category %q is not defined in taxonomy %s", c, t.version))
	}
	return r
}

// Aliases returns the alias names sorted alphabetically.
func (t *Taxonomy) Aliases() []string {
	out := make([]string, 0, len(t.aliases))
	for k := range t.aliases {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
