package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duskline/duskline/internal/schema"
)

func buildTestTree(t *testing.T) *schema.Tree {
	t.Helper()
	tree, err := schema.Build([]schema.FieldMapping{
		{Name: "body", Type: schema.FieldText, Cardinality: schema.SingleValue, Text: schema.DefaultTextOptions()},
	}, schema.BuildConfig{Mode: schema.ModeLenient})
	require.NoError(t, err)
	return tree
}

func TestDocProcessorParsesValidDocsAndCountsThem(t *testing.T) {
	p := NewDocProcessor(buildTestTree(t), nil)
	batch := &Batch{Docs: []Doc{
		{JSON: map[string]interface{}{"body": "hello"}},
		{JSON: map[string]interface{}{"body": "world"}},
	}}

	out := p.Process(batch)
	require.Len(t, out, 2)
	assert.Equal(t, uint64(2), p.Stats().NumParsedDocs)
	assert.Equal(t, uint64(0), p.Stats().NumInvalidDocs)
}

func TestDocProcessorDropsUndecodedDoc(t *testing.T) {
	p := NewDocProcessor(buildTestTree(t), nil)
	batch := &Batch{Docs: []Doc{{Raw: []byte("not json")}}}

	out := p.Process(batch)
	assert.Empty(t, out)
	assert.Equal(t, uint64(1), p.Stats().NumInvalidDocs)
}

func TestDocProcessorDropsDocFailingSchemaValidation(t *testing.T) {
	tree, err := schema.Build([]schema.FieldMapping{
		{Name: "count", Type: schema.FieldI64, Cardinality: schema.SingleValue, Numeric: schema.DefaultNumericOptions()},
	}, schema.BuildConfig{})
	require.NoError(t, err)
	p := NewDocProcessor(tree, nil)

	batch := &Batch{Docs: []Doc{{JSON: map[string]interface{}{"count": "not a number"}}}}
	out := p.Process(batch)
	assert.Empty(t, out)
	assert.Equal(t, uint64(1), p.Stats().NumInvalidDocs)
}

func TestDocProcessorAppliesTransformBeforeParsing(t *testing.T) {
	p := NewDocProcessor(buildTestTree(t), RenameField{From: "msg", To: "body"})
	batch := &Batch{Docs: []Doc{{JSON: map[string]interface{}{"msg": "hi"}}}}

	out := p.Process(batch)
	require.Len(t, out, 1)
	require.Len(t, out[0].Fields, 1)
	assert.Equal(t, "hi", out[0].Fields[0].Value)
}
