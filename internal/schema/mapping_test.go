package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textField(name string) FieldMapping {
	return FieldMapping{Name: name, Type: FieldText, Cardinality: SingleValue, Text: DefaultTextOptions()}
}

func fastI64Field(name string) FieldMapping {
	m := FieldMapping{Name: name, Type: FieldI64, Cardinality: SingleValue, Numeric: DefaultNumericOptions()}
	m.Numeric.Fast = true
	return m
}

func TestBuildRejectsTimestampFieldNotFast(t *testing.T) {
	_, err := Build([]FieldMapping{
		{Name: "ts", Type: FieldI64, Cardinality: SingleValue, Numeric: DefaultNumericOptions()},
	}, BuildConfig{TimestampField: "ts"})
	require.Error(t, err)
	var invalid *ErrInvalidMapping
	assert.ErrorAs(t, err, &invalid)
}

func TestBuildRejectsTimestampFieldWrongType(t *testing.T) {
	_, err := Build([]FieldMapping{textField("ts")}, BuildConfig{TimestampField: "ts"})
	require.Error(t, err)
}

func TestBuildAcceptsFastDateTimeTimestampField(t *testing.T) {
	dt := DateTimeOptions{Fast: true, Indexed: true}
	tree, err := Build([]FieldMapping{
		{Name: "ts", Type: FieldDateTime, Cardinality: SingleValue, DateTime: dt},
	}, BuildConfig{TimestampField: "ts"})
	require.NoError(t, err)
	assert.Equal(t, "ts", tree.TimestampField())
}

func TestBuildRejectsDuplicateFieldNames(t *testing.T) {
	_, err := Build([]FieldMapping{textField("body"), textField("body")}, BuildConfig{})
	require.Error(t, err)
}

func TestBuildRejectsEmptyObjectFields(t *testing.T) {
	_, err := Build([]FieldMapping{{Name: "meta", Type: FieldObject}}, BuildConfig{})
	require.Error(t, err)
}

func TestBuildRejectsUnresolvedTagField(t *testing.T) {
	_, err := Build([]FieldMapping{textField("body")}, BuildConfig{TagFields: []string{"missing"}})
	require.Error(t, err)
}

func TestBuildRejectsDemuxFieldNotFastAndIndexed(t *testing.T) {
	m := FieldMapping{Name: "shard", Type: FieldU64, Cardinality: SingleValue, Numeric: DefaultNumericOptions()}
	_, err := Build([]FieldMapping{m}, BuildConfig{DemuxField: "shard"})
	require.Error(t, err)
}

func TestParseStrictModeRejectsUndeclaredField(t *testing.T) {
	tree, err := Build([]FieldMapping{textField("body")}, BuildConfig{Mode: ModeStrict})
	require.NoError(t, err)

	_, _, err = tree.Parse(map[string]interface{}{"body": "hi", "extra": "nope"})
	var noSuch *ErrNoSuchField
	require.ErrorAs(t, err, &noSuch)
}

func TestParseLenientModeDropsUndeclaredField(t *testing.T) {
	tree, err := Build([]FieldMapping{textField("body")}, BuildConfig{Mode: ModeLenient})
	require.NoError(t, err)

	fields, dynamic, err := tree.Parse(map[string]interface{}{"body": "hi", "extra": "nope"})
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Empty(t, dynamic)
}

func TestParseDynamicModeHarvestsUndeclaredField(t *testing.T) {
	tree, err := Build([]FieldMapping{textField("body")}, BuildConfig{Mode: ModeDynamic})
	require.NoError(t, err)

	fields, dynamic, err := tree.Parse(map[string]interface{}{"body": "hi", "extra": "nope"})
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, "nope", dynamic["extra"])
}

func TestParseRejectsArrayForSingleValuedField(t *testing.T) {
	tree, err := Build([]FieldMapping{textField("body")}, BuildConfig{})
	require.NoError(t, err)

	_, _, err = tree.Parse(map[string]interface{}{"body": []interface{}{"a", "b"}})
	var multi *ErrMultiValuesNotSupported
	require.ErrorAs(t, err, &multi)
}

func TestParseAcceptsArrayForMultiValuedField(t *testing.T) {
	m := FieldMapping{Name: "tags", Type: FieldText, Cardinality: MultiValues, Text: DefaultTextOptions()}
	tree, err := Build([]FieldMapping{m}, BuildConfig{})
	require.NoError(t, err)

	fields, _, err := tree.Parse(map[string]interface{}{"tags": []interface{}{"a", "b"}})
	require.NoError(t, err)
	require.Len(t, fields, 2)
	assert.Equal(t, "a", fields[0].Value)
	assert.Equal(t, "b", fields[1].Value)
}

func TestParseRequiredFastFieldMissingErrors(t *testing.T) {
	tree, err := Build([]FieldMapping{fastI64Field("count")}, BuildConfig{})
	require.NoError(t, err)

	_, _, err = tree.Parse(map[string]interface{}{})
	var missing *ErrRequiredFastField
	require.ErrorAs(t, err, &missing)
}

func TestParseNestedObjectFields(t *testing.T) {
	tree, err := Build([]FieldMapping{
		{Name: "meta", Type: FieldObject, ObjectFields: []FieldMapping{textField("author")}},
	}, BuildConfig{})
	require.NoError(t, err)

	fields, _, err := tree.Parse(map[string]interface{}{
		"meta": map[string]interface{}{"author": "alice"},
	})
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, "meta.author", fields[0].Path)
	assert.Equal(t, "alice", fields[0].Value)
}

func TestParseRejectsNonObjectValueForObjectField(t *testing.T) {
	tree, err := Build([]FieldMapping{
		{Name: "meta", Type: FieldObject, ObjectFields: []FieldMapping{textField("author")}},
	}, BuildConfig{})
	require.NoError(t, err)

	_, _, err = tree.Parse(map[string]interface{}{"meta": "not an object"})
	require.Error(t, err)
}

func TestProjectReversesParseForScalarFields(t *testing.T) {
	tree, err := Build([]FieldMapping{textField("body"), fastI64Field("count")}, BuildConfig{})
	require.NoError(t, err)

	doc := map[string]interface{}{"body": "hello", "count": float64(7)}
	fields, dynamic, err := tree.Parse(doc)
	require.NoError(t, err)

	projected, err := tree.Project(fields, dynamic)
	require.NoError(t, err)
	assert.Equal(t, "hello", projected["body"])
	assert.EqualValues(t, 7, projected["count"])
}

func TestProjectCollapsesMultiValuedFieldToArray(t *testing.T) {
	m := FieldMapping{Name: "tags", Type: FieldText, Cardinality: MultiValues, Text: DefaultTextOptions()}
	tree, err := Build([]FieldMapping{m}, BuildConfig{})
	require.NoError(t, err)

	fields, dynamic, err := tree.Parse(map[string]interface{}{"tags": []interface{}{"a", "b"}})
	require.NoError(t, err)

	projected, err := tree.Project(fields, dynamic)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"a", "b"}, projected["tags"])
}

func TestProjectRestoresDynamicFields(t *testing.T) {
	tree, err := Build([]FieldMapping{textField("body")}, BuildConfig{Mode: ModeDynamic})
	require.NoError(t, err)

	fields, dynamic, err := tree.Parse(map[string]interface{}{"body": "hi", "extra": "nope"})
	require.NoError(t, err)

	projected, err := tree.Project(fields, dynamic)
	require.NoError(t, err)
	assert.Equal(t, "hi", projected["body"])
	assert.Equal(t, "nope", projected["extra"])
}

func TestFlattenedNameEscapesDottedSegments(t *testing.T) {
	name := FlattenedName([]string{"a.b", "c"})
	assert.Equal(t, `a\.b.c`, name)
}

func TestSplitFlattenedPathReversesFlattenedName(t *testing.T) {
	segs := splitFlattenedPath(`a\.b.c`)
	assert.Equal(t, []string{"a.b", "c"}, segs)
}

func TestValidateFieldNameRejectsReservedNames(t *testing.T) {
	assert.Error(t, ValidateFieldName("_source"))
	assert.Error(t, ValidateFieldName("bad name"))
	assert.NoError(t, ValidateFieldName("ok_name"))
}
