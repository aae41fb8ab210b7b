package draft

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplatesCatalog(t *testing.T) {
	all := Templates()
	require.Len(t, all, 8)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].Type, all[i].Type)
	}
	for _, tmpl := range all {
		assert.NotEmpty(t, tmpl.Title, tmpl.Type)
		assert.NotEmpty(t, tmpl.RequiredFields, tmpl.Type)
		assert.NotEmpty(t, tmpl.Sections, tmpl.Type)
	}
}

func TestMissingFields(t *testing.T) {
	tmpl, ok := Lookup("nda")
	require.True(t, ok)

	missing := tmpl.MissingFields(map[string]string{"disclosingParty": "Acme", "purpose": "  "})
	assert.Equal(t, []string{"receivingParty", "purpose"}, missing)

	assert.Empty(t, tmpl.MissingFields(map[string]string{
		"disclosingParty": "Acme",
		"receivingParty":  "Globex",
		"purpose":         "evaluation",
	}))
}

func TestLookupUnknown(t *testing.T) {
	_, ok := Lookup("treaty")
	assert.False(t, ok)
}
