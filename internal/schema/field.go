// Package schema implements the mapping-tree engine that turns an
// index's declared JSON field mappings into a schema usable for
// document parsing and back again. Grounded on
// original_source/quickwit/quickwit-doc-mapper/src/default_doc_mapper/
// field_mapping_entry.rs and mapping_tree.rs for the exact option
// defaults, cardinality rules and dotted-path escaping this package
// reproduces in Go.
package schema

import (
	"fmt"
	"regexp"
	"strings"
)

// FieldType enumerates the leaf field kinds
type FieldType string

const (
	FieldText FieldType = "text"
	FieldI64 FieldType = "i64"
	FieldU64 FieldType = "u64"
	FieldF64 FieldType = "f64"
	FieldBool FieldType = "bool"
	FieldIPAddr FieldType = "ip"
	FieldDateTime FieldType = "datetime"
	FieldBytes FieldType = "bytes"
	FieldJSON FieldType = "json"
	FieldObject FieldType = "object"
)

// Cardinality distinguishes a single-valued field from an array<T> one.
type Cardinality int

const (
	SingleValue Cardinality = iota
	MultiValues
)

// fieldNamePattern rejects dots, whitespace and leading digits, per
// the quickwit-style field-name grammar.
var fieldNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// reservedFieldNames may not be used as top-level mapping entries; they
// are populated internally by the index.
var reservedFieldNames = map[string]struct{}{
	"_source": {},
	"_tags": {},
}

// ValidateFieldName reports an error if name contains illegal
// characters or collides with a reserved system field.
func ValidateFieldName(name string) error {
	if !fieldNamePattern.MatchString(name) {
		return fmt.Errorf("field %q has illegal characters: must match %s", name, fieldNamePattern.String())
	}
	if _, reserved := reservedFieldNames[name]; reserved {
		return fmt.Errorf("field %q is a reserved field name", name)
	}
	return nil
}

// NumericOptions are the shared per-field knobs for i64/u64/f64/bool
// fields (quickwit's QuickwitNumericOptions).
type NumericOptions struct {
	Description string `json:"description,omitempty"`
	Stored bool `json:"stored"`
	Indexed bool `json:"indexed"`
	Fast bool `json:"fast"`
}

// DefaultNumericOptions matches QuickwitNumericOptions::default().
func DefaultNumericOptions() NumericOptions {
	return NumericOptions{Indexed: true, Stored: true}
}

// TextTokenizer names the tokenizer applied to a text/json field.
type TextTokenizer string

const (
	TokenizerRaw TextTokenizer = "raw"
	TokenizerDefault TextTokenizer = "default"
	TokenizerStemEn TextTokenizer = "en_stem"
	TokenizerChinese TextTokenizer = "chinese_compatible"
)

var validTokenizers = map[TextTokenizer]struct{}{
	TokenizerRaw: {}, TokenizerDefault: {}, TokenizerStemEn: {}, TokenizerChinese: {},
}

// IndexRecordOption controls what a text/json field's postings carry.
type IndexRecordOption string

const (
	RecordBasic IndexRecordOption = "basic"
	RecordWithFreqs IndexRecordOption = "freq"
	RecordWithFreqsAndPositions IndexRecordOption = "position"
)

// TextOptions is quickwit's QuickwitTextOptions.
type TextOptions struct {
	Description string `json:"description,omitempty"`
	Indexed bool `json:"indexed"`
	Tokenizer *TextTokenizer `json:"tokenizer,omitempty"`
	Record *IndexRecordOption `json:"record,omitempty"`
	Fieldnorms bool `json:"fieldnorms"`
	Stored bool `json:"stored"`
	Fast bool `json:"fast"`
}

func DefaultTextOptions() TextOptions {
	return TextOptions{Indexed: true, Stored: true}
}

// Validate enforces "record/tokenizer/fieldnorms require indexed=true"
// (field_mapping_entry.rs's deserialize_mapping_type, Type::Str arm).
func (o TextOptions) Validate() error {
	if !o.Indexed && (o.Tokenizer != nil || o.Record != nil || o.Fieldnorms) {
		return fmt.Errorf("`record`, `tokenizer`, and `fieldnorms` parameters are allowed only if indexed is true")
	}
	if o.Tokenizer != nil {
		if _, ok := validTokenizers[*o.Tokenizer]; !ok {
			return fmt.Errorf("unknown tokenizer %q", *o.Tokenizer)
		}
	}
	return nil
}

// JSONOptions is quickwit's QuickwitJsonOptions, also doubling as the
// dynamic-mapping field's option set.
type JSONOptions struct {
	Description string `json:"description,omitempty"`
	Indexed bool `json:"indexed"`
	Tokenizer *TextTokenizer `json:"tokenizer,omitempty"`
	Record *IndexRecordOption `json:"record,omitempty"`
	Stored bool `json:"stored"`
	ExpandDots bool `json:"expand_dots"`
}

func DefaultJSONOptions() JSONOptions {
	return JSONOptions{Indexed: true, Stored: true, ExpandDots: true}
}

func (o JSONOptions) Validate() error {
	if !o.Indexed && (o.Tokenizer != nil || o.Record != nil) {
		return fmt.Errorf("`record` and `tokenizer` parameters are allowed only if indexed is true")
	}
	return nil
}

// IPAddrOptions is quickwit's QuickwitIpAddrOptions.
type IPAddrOptions struct {
	Description string `json:"description,omitempty"`
	Stored bool `json:"stored"`
	Indexed bool `json:"indexed"`
	Fast bool `json:"fast"`
}

func DefaultIPAddrOptions() IPAddrOptions {
	return IPAddrOptions{Indexed: true, Stored: true}
}

// DateTimePrecision is the fast-field storage granularity for datetime
// fields.
type DateTimePrecision string

const (
	PrecisionSeconds DateTimePrecision = "seconds"
	PrecisionMilliseconds DateTimePrecision = "milliseconds"
	PrecisionMicroseconds DateTimePrecision = "microseconds"
)

// DateTimeOptions is quickwit's QuickwitDateTimeOptions, simplified to
// the two accepted input formats.
type DateTimeOptions struct {
	InputFormats []string `json:"input_formats"`
	OutputFormat string `json:"output_format"`
	Precision DateTimePrecision `json:"precision"`
	Stored bool `json:"stored"`
	Indexed bool `json:"indexed"`
	Fast bool `json:"fast"`
}

func DefaultDateTimeOptions() DateTimeOptions {
	return DateTimeOptions{
		InputFormats: []string{"rfc3339", "unix_timestamp"},
		OutputFormat: "rfc3339",
		Precision: PrecisionSeconds,
		Stored: true,
		Indexed: true,
	}
}

// FieldMapping is one parsed field_mappings entry, tagged by Type with the matching Options struct
// populated and the rest left zero.
type FieldMapping struct {
	Name string
	Type FieldType
	Cardinality Cardinality

	Text TextOptions
	Numeric NumericOptions
	JSON JSONOptions
	IPAddr IPAddrOptions
	DateTime DateTimeOptions
	// ObjectFields holds the nested field_mappings when Type == FieldObject.
	ObjectFields []FieldMapping
}

// IsSingleValueFastField reports whether this field can serve as a
// Split's designated fast-field sort/range key: text and json fields are never
// single-valued fast fields, everything else follows its Fast flag.
func (f FieldMapping) IsSingleValueFastField() bool {
	switch f.Type {
	case FieldText, FieldJSON, FieldObject:
		return false
	case FieldIPAddr:
		return f.IPAddr.Fast
	case FieldDateTime:
		return f.DateTime.Fast
	default:
		return f.Numeric.Fast
	}
}

// escapeDots escapes '.' in a single path segment with '\', matching
// field_name_for_field_path/escape_dots in mapping_tree.rs so that
// dotted field names and nested-object paths remain distinguishable in
// the flattened tantivy-style field name.
func escapeDots(name string) string {
	if !strings.ContainsRune(name, '.') {
		return name
	}
	var b strings.Builder
	for _, r := range name {
		if r == '.' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// FlattenedName joins a field path the way mapping_tree.rs's
// field_name_for_field_path does: escape each segment's dots, then join
// segments with an unescaped '.'.
func FlattenedName(path []string) string {
	escaped := make([]string, len(path))
	for i, p := range path {
		escaped[i] = escapeDots(p)
	}
	return strings.Join(escaped, ".")
}
