package sfdt

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const verboseDoc = `{
  "sections": [{
    "blocks": [
      {"paragraphFormat": {"styleName": "Heading 1"}, "inlines": [{"text": "Mutual "}, {"text": "NDA"}]},
      {"inlines": [{"text": "Party A agrees."}]},
      {"rows": [{"cells": [
        {"blocks": [{"inlines": [{"text": "Cell one"}]}]},
        {"blocks": [{"inlines": [{"text": "Cell two"}]}]}
      ]}]}
    ],
    "headersFooters": {"header": {"blocks": [{"inlines": [{"text": "Confidential"}]}]}}
  }]
}`

const optimizedDoc = `{"sec":[{"b":[{"i":[{"tlp":"Hello"},{"tlp":" world"}]},{"i":[{"tlp":"Second"}]}]}]}`

func TestExtractTextVerboseKeys(t *testing.T) {
	got := ExtractTextFromString(verboseDoc)
	assert.Equal(t, "Mutual NDA Party A agrees. Cell one Cell two Confidential", got)
}

func TestExtractTextOptimizedKeys(t *testing.T) {
	assert.Equal(t, "Hello world Second", ExtractTextFromString(optimizedDoc))
}

func TestExtractTextDoubleEncoded(t *testing.T) {
	wrapped := `"{\"sections\":[{\"blocks\":[{\"inlines\":[{\"text\":\"inner\"}]}]}]}"`
	assert.Equal(t, "inner", ExtractTextFromString(wrapped))
}

func TestExtractTextSerializedInput(t *testing.T) {
	doc := `{"sections":[{"blocks":[{"inlines":[{"text":"Hello"}]}]}]}`
	assert.Equal(t, "Hello", ExtractText(doc))
	assert.Equal(t, "Hello", ExtractText([]byte(doc)))
	assert.Equal(t, "Hello", ExtractText(json.RawMessage(doc)))

	var tree any
	require.NoError(t, json.Unmarshal([]byte(doc), &tree))
	assert.Equal(t, "Hello", ExtractText(tree))
	assert.Equal(t, "", ExtractText("{not json"))
}

func TestExtractTextMalformed(t *testing.T) {
	assert.Equal(t, "", ExtractTextFromString("{not json"))
	assert.Equal(t, "", ExtractTextFromString(""))
	assert.Equal(t, "", ExtractTextFromString(`"not a document"`))
}

func TestExtractTextIgnoresFormattingFlags(t *testing.T) {
	// "b" and "i" are booleans inside optimized character formats.
	doc := `{"sec":[{"b":[{"i":[{"tlp":"Bold","cf":{"b":true,"i":true}}]}]}]}`
	assert.Equal(t, "Bold", ExtractTextFromString(doc))
}

func TestExtractTextEmptyDocument(t *testing.T) {
	assert.Equal(t, "", ExtractTextFromString(EmptyDocument))
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate([]byte(verboseDoc)))
	require.NoError(t, Validate([]byte(EmptyDocument)))
	assert.ErrorIs(t, Validate([]byte(`[1,2]`)), ErrNotDocument)
	assert.ErrorIs(t, Validate([]byte(`nope`)), ErrNotDocument)
}

func TestCanonicalUnwrapsAndCompacts(t *testing.T) {
	out, err := Canonical([]byte("{ \"a\" : 1 }"))
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(out))

	out, err = Canonical([]byte(`"{\"a\":1}"`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(out))
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", Preview("short", 10))
	assert.Equal(t, "abc…", Preview("abcdef", 3))
	assert.Equal(t, "héllo", Preview("héllo", 5))
}
