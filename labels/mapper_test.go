package labels

import (
	"testing"

	"github.com/nvr-ai/go-waste/waste"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cocoMapper(t *testing.T) *Mapper {
	t.Helper()
	m, err := Load(waste.Default(), TableCOCO, nil)
	require.NoError(t, err)
	return m
}

func TestMapNormalizesLabel(t *testing.T) {
	m := cocoMapper(t)

	for _, label := range []string{" Bottle ", "bottle", "BOTTLE", "\tbottle\n"} {
		assert.Equal(t, waste.NonOrganic, m.Map(label), "label %q", label)
	}

	assert.Equal(t, m.Map("cell phone"), m.Map("Cell_Phone"))
	assert.Equal(t, m.Map("cell phone"), m.Map("cell   phone"))
}

func TestMapIsTotal(t *testing.T) {
	m := cocoMapper(t)

	for _, label := range []string{"", "   ", "unicorn", "🦄", "bottle bottle", "E_WASTE"} {
		c := m.Map(label)
		assert.True(t, m.Taxonomy().Contains(c), "label %q resolved to %q", label, c)
	}
	assert.Equal(t, waste.Unknown, m.Map("unicorn"))
}

func TestLookupDistinguishesUnmapped(t *testing.T) {
	m := cocoMapper(t)

	c, ok := m.Lookup("person")
	assert.True(t, ok, "person is explicitly bound to the fallback")
	assert.Equal(t, waste.Unknown, c)

	c, ok = m.Lookup("spaceship")
	assert.False(t, ok)
	assert.Equal(t, waste.Unknown, c)
}

func TestCOCOTableCoversEveryClass(t *testing.T) {
	m := cocoMapper(t)

	require.Len(t, COCOClasses, 80)
	assert.Equal(t, 80, m.Len())
	for _, class := range COCOClasses {
		_, ok := m.Lookup(class)
		assert.True(t, ok, "COCO class %q has no table entry", class)
	}
}

func TestCOCOExamples(t *testing.T) {
	m := cocoMapper(t)

	tests := map[string]waste.Category{
		"bottle":       waste.NonOrganic,
		"banana":       waste.Compost,
		"pizza":        waste.Biogas,
		"laptop":       waste.EWasteUseful,
		"keyboard":     waste.EWasteNotUseful,
		"potted plant": waste.Compost,
		"giraffe":      waste.Unknown,
	}
	for label, want := range tests {
		assert.Equal(t, want, m.Map(label), label)
	}
}

func TestBuiltinTablesLoadUnderEverySchema(t *testing.T) {
	for _, version := range waste.BuiltinVersions() {
		schema, err := waste.BuiltinSchema(version)
		require.NoError(t, err)
		tax := waste.MustTaxonomy(schema)

		for _, name := range BuiltinNames() {
			_, err := Load(tax, name, nil)
			assert.NoError(t, err, "table %s under schema %s", name, version)
		}
	}
}

func TestTablesFollowSchemaAliases(t *testing.T) {
	v1, err := waste.BuiltinSchema(waste.SchemaV1)
	require.NoError(t, err)
	m, err := Load(waste.MustTaxonomy(v1), TableCOCO, nil)
	require.NoError(t, err)

	assert.Equal(t, waste.EWaste, m.Map("laptop"))
	assert.Equal(t, waste.EWaste, m.Map("tv"))
	assert.Equal(t, waste.OrganicVegetableFruit, m.Map("banana"))
	assert.Equal(t, waste.OrganicDairyMeat, m.Map("pizza"))

	v3, err := waste.BuiltinSchema(waste.SchemaV3)
	require.NoError(t, err)
	m, err = Load(waste.MustTaxonomy(v3), TableLLM, nil)
	require.NoError(t, err)
	assert.Equal(t, waste.Other, m.Map("UNIDENTIFIED"))
	assert.Equal(t, waste.Other, m.Map("no idea"))
}

func TestLLMTable(t *testing.T) {
	m, err := Load(waste.Default(), TableLLM, nil)
	require.NoError(t, err)

	assert.Equal(t, waste.EWasteUseful, m.Map("e_waste_useful"))
	assert.Equal(t, waste.Compost, m.Map(" COMPOST "))
	assert.Equal(t, waste.Unknown, m.Map("UNIDENTIFIED"))
}

func TestLoadOverrides(t *testing.T) {
	m, err := Load(waste.Default(), TableCOCO, Table{
		"Cell_Phone": string(waste.EWasteNotUseful),
		"spork":      string(waste.NonOrganic),
	})
	require.NoError(t, err)

	assert.Equal(t, waste.EWasteNotUseful, m.Map("cell phone"))
	assert.Equal(t, waste.NonOrganic, m.Map("spork"))
	assert.Equal(t, 81, m.Len())
}

func TestLoadNone(t *testing.T) {
	m, err := Load(waste.Default(), TableNone, Table{"spork": string(waste.NonOrganic)})
	require.NoError(t, err)
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, waste.NonOrganic, m.Map("spork"))
	assert.Equal(t, waste.Default().Fallback(), m.Map("bottle"))
}

func TestNewMapperRejectsBadTargets(t *testing.T) {
	tax := waste.Default()

	_, err := NewMapper("bad", tax, Table{"glass jar": "glass"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTable))

	_, err = NewMapper("conflict", tax, Table{"Jar": "non-organic", "jar": "compost"})
	assert.True(t, errors.Is(err, ErrInvalidTable))

	_, err = NewMapper("blank", tax, Table{" ": "compost"})
	assert.True(t, errors.Is(err, ErrInvalidTable))

	_, err = Load(tax, "nope", nil)
	assert.True(t, errors.Is(err, ErrInvalidTable))
}
