package waste

import (
	"sort"

	"github.com/pkg/errors"
)

// Category names shared by the built-in schemas.
const (
	EWaste                Category = "e-waste"
	EWasteUseful          Category = "e-waste-useful"
	EWasteNotUseful       Category = "e-waste-not-useful"
	NonOrganic            Category = "non-organic"
	Biogas                Category = "biogas"
	Compost               Category = "compost"
	OrganicVegetableFruit Category = "organic-vegetable-fruit"
	OrganicDairyMeat      Category = "organic-dairy-meat"
	Unknown               Category = "unknown"
	Other                 Category = "other"
)

// Built-in schema versions.
const (
	SchemaV1 = "v1"
	SchemaV2 = "v2"
	SchemaV3 = "v3"

	// DefaultSchema is used when no version is configured.
	DefaultSchema = SchemaV2
)

var schemas = map[string]Schema{
	SchemaV1: {
		Version: SchemaV1,
		Categories: []CategoryDef{
			{Name: EWaste, Recyclable: true},
			{Name: NonOrganic, Recyclable: true},
			{Name: OrganicVegetableFruit, Recyclable: false},
			{Name: OrganicDairyMeat, Recyclable: false},
			{Name: Unknown, Recyclable: false},
		},
		Fallback: Unknown,
		Aliases: map[string]Category{
			string(EWasteUseful):    EWaste,
			string(EWasteNotUseful): EWaste,
			string(Compost):         OrganicVegetableFruit,
			string(Biogas):          OrganicDairyMeat,
		},
	},
	SchemaV2: {
		Version: SchemaV2,
		Categories: []CategoryDef{
			{Name: EWasteUseful, Recyclable: true},
			{Name: EWasteNotUseful, Recyclable: false},
			{Name: NonOrganic, Recyclable: true},
			{Name: Biogas, Recyclable: true},
			{Name: Compost, Recyclable: false},
			{Name: Unknown, Recyclable: false},
		},
		Fallback: Unknown,
	},
	SchemaV3: {
		Version: SchemaV3,
		Categories: []CategoryDef{
			{Name: EWasteUseful, Recyclable: true},
			{Name: EWasteNotUseful, Recyclable: false},
			{Name: NonOrganic, Recyclable: true},
			{Name: Biogas, Recyclable: true},
			{Name: Compost, Recyclable: false},
			{Name: Other, Recyclable: false},
		},
		Fallback: Other,
		Aliases: map[string]Category{
			string(Unknown): Other,
		},
	},
}

// BuiltinSchema returns a copy of a built-in schema by version.
//
// Arguments:
//   - version: One of SchemaV1, SchemaV2, SchemaV3. Empty selects DefaultSchema.
//
// Returns:
//   - Schema: The schema definition.
//   - error: ErrInvalidSchema if the version is unknown.
func BuiltinSchema(version string) (Schema, error) {
	if version == "" {
		version = DefaultSchema
	}
	s, ok := schemas[version]
	if !ok {
		return Schema{}, errors.Wrapf(ErrInvalidSchema, "no built-in schema %q", version)
	}

	out := Schema{
		Version:    s.Version,
		Categories: append([]CategoryDef(nil), s.Categories...),
		Fallback:   s.Fallback,
		Aliases:    make(map[string]Category, len(s.Aliases)),
	}
	for k, v := range s.Aliases {
		out.Aliases[k] = v
	}
	return out, nil
}

// BuiltinVersions lists the built-in schema versions.
func BuiltinVersions() []string {
	out := make([]string, 0, len(schemas))
	for v := range schemas {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Default returns the taxonomy of DefaultSchema.
func Default() *Taxonomy {
	s, err := BuiltinSchema(DefaultSchema)
	if err != nil {
		panic(err)
	}
	return MustTaxonomy(s)
}
