package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawMapping(t *testing.T, doc string) map[string]interface{} {
	t.Helper()
	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(doc), &raw))
	return raw
}

func TestDecodeMappingDocumentDefaultsModeLenient(t *testing.T) {
	raw := rawMapping(t, `{"field_mappings":[{"name":"body","type":"text"}]}`)
	doc, err := DecodeMappingDocument(raw)
	require.NoError(t, err)
	assert.Equal(t, ModeLenient, doc.Mode)
	require.Len(t, doc.FieldMappings, 1)
	assert.Equal(t, "body", doc.FieldMappings[0].Name)
	assert.Equal(t, FieldText, doc.FieldMappings[0].Type)
}

func TestDecodeMappingDocumentParsesArrayCardinality(t *testing.T) {
	raw := rawMapping(t, `{"field_mappings":[{"name":"tags","type":"array<text>"}]}`)
	doc, err := DecodeMappingDocument(raw)
	require.NoError(t, err)
	require.Len(t, doc.FieldMappings, 1)
	assert.Equal(t, FieldText, doc.FieldMappings[0].Type)
	assert.Equal(t, MultiValues, doc.FieldMappings[0].Cardinality)
}

func TestDecodeMappingDocumentRejectsUnknownType(t *testing.T) {
	raw := rawMapping(t, `{"field_mappings":[{"name":"x","type":"nonsense"}]}`)
	_, err := DecodeMappingDocument(raw)
	assert.Error(t, err)
}

func TestCompileDocumentBuildsUsableTree(t *testing.T) {
	raw := rawMapping(t, `{
		"mode": "strict",
		"timestamp_field": "ts",
		"tag_fields": ["region"],
		"field_mappings": [
			{"name": "ts", "type": "datetime", "fast": true},
			{"name": "region", "type": "text"},
			{"name": "body", "type": "text"}
		]
	}`)
	tree, err := CompileDocument(raw)
	require.NoError(t, err)
	assert.Equal(t, "ts", tree.TimestampField())
	assert.Equal(t, []string{"region"}, tree.TagFields())

	fields, _, err := tree.Parse(map[string]interface{}{
		"ts": "2026-01-01T00:00:00Z",
		"region": "us-east",
		"body": "hello",
	})
	require.NoError(t, err)
	assert.Len(t, fields, 3)
}

func TestFieldMappingJSONRoundTrip(t *testing.T) {
	original := FieldMapping{Name: "price", Type: FieldF64, Cardinality: SingleValue, Numeric: DefaultNumericOptions()}
	original.Numeric.Fast = true

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded FieldMapping
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, original.Name, decoded.Name)
	assert.Equal(t, original.Type, decoded.Type)
	assert.True(t, decoded.Numeric.Fast)
}

func TestFieldMappingJSONRoundTripMultiValued(t *testing.T) {
	original := FieldMapping{Name: "tags", Type: FieldText, Cardinality: MultiValues, Text: DefaultTextOptions()}
	data, err := json.Marshal(original)
	require.NoError(t, err)

	var wire struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.Equal(t, "array<text>", wire.Type)

	var decoded FieldMapping
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, MultiValues, decoded.Cardinality)
}

func TestFieldMappingObjectFieldsRoundTrip(t *testing.T) {
	raw := rawMapping(t, `{
		"field_mappings": [
			{"name": "meta", "type": "object", "field_mappings": [
				{"name": "author", "type": "text"}
			]}
		]
	}`)
	doc, err := DecodeMappingDocument(raw)
	require.NoError(t, err)
	require.Len(t, doc.FieldMappings, 1)
	meta := doc.FieldMappings[0]
	assert.Equal(t, FieldObject, meta.Type)
	require.Len(t, meta.ObjectFields, 1)
	assert.Equal(t, "author", meta.ObjectFields[0].Name)
}
