package schema

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MappingDocument is the wire shape of an index's declarative mapping:
// the JSON document an index's management API accepts, named after
// quickwit's DocMapping (field_mappings, tag_fields, timestamp_field,
// mode). CompileDocument turns it into a Tree.
type MappingDocument struct {
	Mode Mode `json:"mode,omitempty"`
	TimestampField string `json:"timestamp_field,omitempty"`
	SortByField string `json:"sort_by,omitempty"`
	DemuxField string `json:"demux_field,omitempty"`
	TagFields []string `json:"tag_fields,omitempty"`
	FieldMappings []FieldMapping `json:"field_mappings"`
}

// DecodeMappingDocument re-marshals a generic map[string]interface{}
// (the shape model.Index.Mapping is stored as) into a MappingDocument.
// Going through json.Marshal/Unmarshal rather than a hand-written
// walk keeps this package the single place FieldMapping's wire format
// is defined.
func DecodeMappingDocument(raw map[string]interface{}) (*MappingDocument, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("schema: re-marshalling mapping document: %w", err)
	}
	var doc MappingDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("schema: decoding mapping document: %w", err)
	}
	if doc.Mode == "" {
		doc.Mode = ModeLenient
	}
	return &doc, nil
}

// CompileDocument decodes raw into a MappingDocument and builds its
// Tree in one step — the entrypoint index creation uses to turn a
// stored index's JSON mapping into a usable schema.
func CompileDocument(raw map[string]interface{}) (*Tree, error) {
	doc, err := DecodeMappingDocument(raw)
	if err != nil {
		return nil, err
	}
	return Build(doc.FieldMappings, BuildConfig{
		Mode: doc.Mode,
		TimestampField: doc.TimestampField,
		SortByField: doc.SortByField,
		DemuxField: doc.DemuxField,
		TagFields: doc.TagFields,
	})
}

// wireFieldMapping is FieldMapping's flattened JSON shape: one
// envelope carrying every option struct's fields, disambiguated by
// Type at unmarshal/marshal time, matching quickwit's own
// serde(tag = "type") convention for field_mappings entries.
type wireFieldMapping struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Description string `json:"description,omitempty"`

	Indexed *bool `json:"indexed,omitempty"`
	Stored *bool `json:"stored,omitempty"`
	Fast *bool `json:"fast,omitempty"`

	Tokenizer *TextTokenizer `json:"tokenizer,omitempty"`
	Record *IndexRecordOption `json:"record,omitempty"`
	Fieldnorms *bool `json:"fieldnorms,omitempty"`
	ExpandDots *bool `json:"expand_dots,omitempty"`

	InputFormats []string `json:"input_formats,omitempty"`
	OutputFormat string `json:"output_format,omitempty"`
	Precision DateTimePrecision `json:"precision,omitempty"`

	FieldMappings []FieldMapping `json:"field_mappings,omitempty"`
}

// UnmarshalJSON parses a field_mappings entry, splitting its "type"
// string into a FieldType and a Cardinality ("array<T>" means
// MultiValues over T), and routing the flattened option fields into
// the matching Options struct with that type's declared defaults.
func (f *FieldMapping) UnmarshalJSON(data []byte) error {
	var w wireFieldMapping
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	typ, cardinality, err := parseTypeString(w.Type)
	if err != nil {
		return fmt.Errorf("field %q: %w", w.Name, err)
	}

	f.Name = w.Name
	f.Type = typ
	f.Cardinality = cardinality

	switch typ {
	case FieldText:
		o := DefaultTextOptions()
		applyBool(&o.Indexed, w.Indexed)
		applyBool(&o.Stored, w.Stored)
		applyBool(&o.Fast, w.Fast)
		applyBool(&o.Fieldnorms, w.Fieldnorms)
		o.Description = w.Description
		o.Tokenizer = w.Tokenizer
		o.Record = w.Record
		f.Text = o
	case FieldJSON:
		o := DefaultJSONOptions()
		applyBool(&o.Indexed, w.Indexed)
		applyBool(&o.Stored, w.Stored)
		applyBool(&o.ExpandDots, w.ExpandDots)
		o.Description = w.Description
		o.Tokenizer = w.Tokenizer
		o.Record = w.Record
		f.JSON = o
	case FieldIPAddr:
		o := DefaultIPAddrOptions()
		applyBool(&o.Indexed, w.Indexed)
		applyBool(&o.Stored, w.Stored)
		applyBool(&o.Fast, w.Fast)
		o.Description = w.Description
		f.IPAddr = o
	case FieldDateTime:
		o := DefaultDateTimeOptions()
		applyBool(&o.Indexed, w.Indexed)
		applyBool(&o.Stored, w.Stored)
		applyBool(&o.Fast, w.Fast)
		if len(w.InputFormats) > 0 {
			o.InputFormats = w.InputFormats
		}
		if w.OutputFormat != "" {
			o.OutputFormat = w.OutputFormat
		}
		if w.Precision != "" {
			o.Precision = w.Precision
		}
		f.DateTime = o
	case FieldObject:
		f.ObjectFields = w.FieldMappings
	default: // i64, u64, f64, bool, bytes
		o := DefaultNumericOptions()
		applyBool(&o.Indexed, w.Indexed)
		applyBool(&o.Stored, w.Stored)
		applyBool(&o.Fast, w.Fast)
		o.Description = w.Description
		f.Numeric = o
	}
	return nil
}

// MarshalJSON renders f back into the flattened wire shape
// UnmarshalJSON accepts, re-composing "array<T>" for multi-valued
// fields.
func (f FieldMapping) MarshalJSON() ([]byte, error) {
	w := wireFieldMapping{Name: f.Name, Type: typeString(f.Type, f.Cardinality)}
	switch f.Type {
	case FieldText:
		w.Description, w.Indexed, w.Stored, w.Fast, w.Fieldnorms = f.Text.Description, &f.Text.Indexed, &f.Text.Stored, &f.Text.Fast, &f.Text.Fieldnorms
		w.Tokenizer, w.Record = f.Text.Tokenizer, f.Text.Record
	case FieldJSON:
		w.Description, w.Indexed, w.Stored, w.ExpandDots = f.JSON.Description, &f.JSON.Indexed, &f.JSON.Stored, &f.JSON.ExpandDots
		w.Tokenizer, w.Record = f.JSON.Tokenizer, f.JSON.Record
	case FieldIPAddr:
		w.Description, w.Indexed, w.Stored, w.Fast = f.IPAddr.Description, &f.IPAddr.Indexed, &f.IPAddr.Stored, &f.IPAddr.Fast
	case FieldDateTime:
		w.Indexed, w.Stored, w.Fast = &f.DateTime.Indexed, &f.DateTime.Stored, &f.DateTime.Fast
		w.InputFormats, w.OutputFormat, w.Precision = f.DateTime.InputFormats, f.DateTime.OutputFormat, f.DateTime.Precision
	case FieldObject:
		w.FieldMappings = f.ObjectFields
	default:
		w.Description, w.Indexed, w.Stored, w.Fast = f.Numeric.Description, &f.Numeric.Indexed, &f.Numeric.Stored, &f.Numeric.Fast
	}
	return json.Marshal(w)
}

func applyBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

// parseTypeString splits a mapping entry's "type" string into its
// FieldType and Cardinality, recognizing the "array<T>" multi-valued
// spelling.
func parseTypeString(s string) (FieldType, Cardinality, error) {
	if strings.HasPrefix(s, "array<") && strings.HasSuffix(s, ">") {
		inner := s[len("array<") : len(s)-1]
		t, err := parseScalarType(inner)
		if err != nil {
			return "", SingleValue, err
		}
		return t, MultiValues, nil
	}
	t, err := parseScalarType(s)
	return t, SingleValue, err
}

func parseScalarType(s string) (FieldType, error) {
	switch FieldType(s) {
	case FieldText, FieldI64, FieldU64, FieldF64, FieldBool, FieldIPAddr, FieldDateTime, FieldBytes, FieldJSON, FieldObject:
		return FieldType(s), nil
	default:
		return "", fmt.Errorf("unknown field type %q", s)
	}
}

func typeString(t FieldType, c Cardinality) string {
	if c == MultiValues {
		return fmt.Sprintf("array<%s>", t)
	}
	return string(t)
}
