package schema

import (
	"encoding/base64"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Mode controls how unmapped fields are handled by parse.
type Mode string

const (
	ModeLenient Mode = "lenient"
	ModeDynamic Mode = "dynamic"
	ModeStrict Mode = "strict"
)

// ErrInvalidMapping reports a structurally invalid mapping definition
// (illegal or duplicate field name, empty object, invalid options or
// constrained fields) caught at build_mapping time rather than at parse
// time. Unknown type strings are rejected earlier, when a mapping entry
// is decoded from JSON.
type ErrInvalidMapping struct{ Msg string }

func (e *ErrInvalidMapping) Error() string { return e.Msg }

// ErrMultiValuesNotSupported is returned by parse when a JSON array is
// supplied for a single-valued field.
type ErrMultiValuesNotSupported struct{ Path string }

func (e *ErrMultiValuesNotSupported) Error() string {
	return fmt.Sprintf("field %q does not support multiple values", e.Path)
}

// ErrRequiredFastField is returned when a declared fast field is absent
// from a parsed document.
type ErrRequiredFastField struct{ Path string }

func (e *ErrRequiredFastField) Error() string {
	return fmt.Sprintf("required fast field %q is missing from document", e.Path)
}

// ErrNoSuchField is returned in ModeStrict when a document carries a
// field absent from the mapping tree.
type ErrNoSuchField struct{ Path string }

func (e *ErrNoSuchField) Error() string {
	return fmt.Sprintf("field %q is not declared in the mapping and mode is strict", e.Path)
}

// ErrValue wraps a per-field value-parsing failure; parse callers treat
// this as a data-quality error, not a pipeline failure.
type ErrValue struct {
	Path string
	Msg string
}

func (e *ErrValue) Error() string {
	return fmt.Sprintf("field %q: %s", e.Path, e.Msg)
}

// FieldValue is one (path, typed value) pair produced by parse, the
// Go rendition of `parse(doc_json) → Vec<(FieldPath, TypedValue)>`.
type FieldValue struct {
	// Path is the escaped, dot-joined flattened field name.
	Path string
	Type FieldType
	// Value holds a string, int64, uint64, float64, bool, []byte, or
	// time.Time depending on Type.
	Value interface{}
}

// leaf is a single mapped, non-object field.
type leaf struct {
	path string
	typ FieldType
	cardinality Cardinality
	mapping FieldMapping
}

// node is an object field (or the mapping tree's root), fanning out
// into named children in declaration order.
type node struct {
	order []string
	children map[string]tree
}

// tree is either a leaf or a node; Go's answer to MappingTree's Rust
// enum.
type tree interface {
	isTree()
}

func (leaf) isTree() {}
func (*node) isTree() {}

// Tree is the compiled mapping for one index: the root of the field tree plus the declared fast
// fields that parse must enforce the presence of.
type Tree struct {
	root *node
	mode Mode
	fastFields []string // flattened paths of every field with fast=true
	timestampField string // flattened path of the designated timestamp field, "" if none
	sortByField string
	demuxField string
	tagFields []string
}

// TimestampField returns the flattened path of the designated
// timestamp field, or "" if the index declares none.
func (t *Tree) TimestampField() string { return t.timestampField }

// TagFields returns the flattened paths of the declared tag_fields,
// consumed by ExtractTags.
func (t *Tree) TagFields() []string { return t.tagFields }

// BuildConfig names the constrained fields of an index mapping beyond
// its field_mappings list: the single timestamp field, an optional
// sort-by field, an optional demux field, and the set of tag fields
// harvested into a split's tag set.
type BuildConfig struct {
	Mode Mode
	TimestampField string
	SortByField string
	DemuxField string
	TagFields []string
}

// Build compiles a list of field mappings plus the index's named
// constrained fields into a Tree, validating names, option
// combinations, and structural constraints along the way: the
// timestamp field must be a single-valued, fast i64 or datetime field;
// sort-by must be fast; demux must be a fast, indexed, single-valued
// u64 or i64 field; every tag field must resolve.
func Build(mappings []FieldMapping, cfg BuildConfig) (*Tree, error) {
	root, fastFields, err := buildNode(mappings, nil)
	if err != nil {
		return nil, err
	}
	t := &Tree{
		root: root,
		mode: cfg.Mode,
		fastFields: fastFields,
		timestampField: cfg.TimestampField,
		sortByField: cfg.SortByField,
		demuxField: cfg.DemuxField,
		tagFields: append([]string(nil), cfg.TagFields...),
	}

	if cfg.TimestampField != "" {
		l, err := resolveNamedField(root, cfg.TimestampField, "timestamp")
		if err != nil {
			return nil, err
		}
		if l.cardinality != SingleValue {
			return nil, &ErrInvalidMapping{Msg: fmt.Sprintf("timestamp field %q must be single-valued", cfg.TimestampField)}
		}
		if l.typ != FieldI64 && l.typ != FieldDateTime {
			return nil, &ErrInvalidMapping{Msg: fmt.Sprintf("timestamp field %q must be i64 or datetime", cfg.TimestampField)}
		}
		if !fieldFastFlag(l.mapping) {
			return nil, &ErrInvalidMapping{Msg: fmt.Sprintf("timestamp field %q must be a fast field", cfg.TimestampField)}
		}
	}

	if cfg.SortByField != "" {
		l, err := resolveNamedField(root, cfg.SortByField, "sort-by")
		if err != nil {
			return nil, err
		}
		if !fieldFastFlag(l.mapping) {
			return nil, &ErrInvalidMapping{Msg: fmt.Sprintf("sort-by field %q must be fast", cfg.SortByField)}
		}
	}

	if cfg.DemuxField != "" {
		l, err := resolveNamedField(root, cfg.DemuxField, "demux")
		if err != nil {
			return nil, err
		}
		if l.cardinality != SingleValue {
			return nil, &ErrInvalidMapping{Msg: fmt.Sprintf("demux field %q must be single-valued", cfg.DemuxField)}
		}
		if l.typ != FieldU64 && l.typ != FieldI64 {
			return nil, &ErrInvalidMapping{Msg: fmt.Sprintf("demux field %q must be u64 or i64", cfg.DemuxField)}
		}
		if !fieldFastFlag(l.mapping) || !fieldIndexedFlag(l.mapping) {
			return nil, &ErrInvalidMapping{Msg: fmt.Sprintf("demux field %q must be fast and indexed", cfg.DemuxField)}
		}
	}

	for _, tf := range cfg.TagFields {
		if _, err := resolveNamedField(root, tf, "tag"); err != nil {
			return nil, err
		}
	}

	return t, nil
}

// resolveNamedField looks up a dotted field name (as given in a
// timestamp_field/sort_by/demux_field/tag_fields declaration) in the
// built tree, reporting an ErrInvalidMapping tagged with what if it
// does not resolve to a leaf.
func resolveNamedField(root *node, name, what string) (leaf, error) {
	l, ok := root.lookupLeaf(splitFlattenedPath(name))
	if !ok {
		return leaf{}, &ErrInvalidMapping{Msg: fmt.Sprintf("%s field %q does not resolve to a mapped field", what, name)}
	}
	return l, nil
}

func fieldIndexedFlag(m FieldMapping) bool {
	switch m.Type {
	case FieldText:
		return m.Text.Indexed
	case FieldJSON:
		return m.JSON.Indexed
	case FieldIPAddr:
		return m.IPAddr.Indexed
	case FieldDateTime:
		return m.DateTime.Indexed
	default:
		return m.Numeric.Indexed
	}
}

func buildNode(mappings []FieldMapping, path []string) (*node, []string, error) {
	n := &node{children: make(map[string]tree, len(mappings))}
	var fastFields []string
	seen := make(map[string]struct{}, len(mappings))
	for _, m := range mappings {
		if err := ValidateFieldName(m.Name); err != nil {
			return nil, nil, &ErrInvalidMapping{Msg: err.Error()}
		}
		if _, dup := seen[m.Name]; dup {
			return nil, nil, &ErrInvalidMapping{Msg: fmt.Sprintf("duplicated field definition %q", m.Name)}
		}
		seen[m.Name] = struct{}{}
		childPath := append(append([]string(nil), path...), m.Name)
		flatName := FlattenedName(childPath)

		if m.Type == FieldObject {
			if len(m.ObjectFields) == 0 {
				return nil, nil, &ErrInvalidMapping{Msg: fmt.Sprintf("object field %q must have at least one field mapping", m.Name)}
			}
			child, childFast, err := buildNode(m.ObjectFields, childPath)
			if err != nil {
				return nil, nil, err
			}
			n.order = append(n.order, m.Name)
			n.children[m.Name] = child
			fastFields = append(fastFields, childFast...)
			continue
		}

		if err := validateLeafOptions(m); err != nil {
			return nil, nil, &ErrInvalidMapping{Msg: fmt.Sprintf("field %q: %v", m.Name, err)}
		}
		l := leaf{path: flatName, typ: m.Type, cardinality: m.Cardinality, mapping: m}
		n.order = append(n.order, m.Name)
		n.children[m.Name] = l
		if m.IsSingleValueFastField() || (m.Cardinality == MultiValues && fieldFastFlag(m)) {
			fastFields = append(fastFields, flatName)
		}
	}
	return n, fastFields, nil
}

func fieldFastFlag(m FieldMapping) bool {
	switch m.Type {
	case FieldIPAddr:
		return m.IPAddr.Fast
	case FieldDateTime:
		return m.DateTime.Fast
	case FieldText, FieldJSON:
		return false
	default:
		return m.Numeric.Fast
	}
}

func validateLeafOptions(m FieldMapping) error {
	switch m.Type {
	case FieldText:
		return m.Text.Validate()
	case FieldJSON:
		return m.JSON.Validate()
	case FieldBytes:
		if m.Numeric.Fast && m.Cardinality == MultiValues {
			return fmt.Errorf("fast field is not allowed for array<bytes>")
		}
	}
	return nil
}

// Parse flattens a JSON document into FieldValue pairs, returning
// per-document data errors (ErrValue, ErrMultiValuesNotSupported,
// ErrNoSuchField) distinctly from ErrRequiredFastField so callers can
// count/drop vs. hard-fail.
func (t *Tree) Parse(doc map[string]interface{}) ([]FieldValue, map[string]interface{}, error) {
	var out []FieldValue
	dynamic := map[string]interface{}{}
	if err := t.root.parse(doc, t.mode, nil, &out, dynamic); err != nil {
		return nil, nil, err
	}
	present := make(map[string]struct{}, len(out))
	for _, fv := range out {
		present[fv.Path] = struct{}{}
	}
	for _, ff := range t.fastFields {
		if _, ok := present[ff]; !ok {
			return nil, nil, &ErrRequiredFastField{Path: ff}
		}
	}
	return out, dynamic, nil
}

func (n *node) parse(doc map[string]interface{}, mode Mode, path []string, out *[]FieldValue, dynamic map[string]interface{}) error {
	for fieldName, val := range doc {
		child, ok := n.children[fieldName]
		if !ok {
			switch mode {
			case ModeLenient:
				continue
			case ModeDynamic:
				insertDynamic(dynamic, append(path, fieldName), val)
				continue
			case ModeStrict:
				return &ErrNoSuchField{Path: strings.Join(append(path, fieldName), ".")}
			default:
				continue
			}
		}
		childPath := append(append([]string(nil), path...), fieldName)
		switch c := child.(type) {
		case leaf:
			if err := c.parse(val, childPath, out); err != nil {
				return err
			}
		case *node:
			obj, ok := val.(map[string]interface{})
			if val == nil {
				continue
			}
			if !ok {
				return &ErrValue{Path: strings.Join(childPath, "."), Msg: fmt.Sprintf("expected a JSON object, got %v", val)}
			}
			if err := c.parse(obj, mode, childPath, out, dynamic); err != nil {
				return err
			}
		}
	}
	return nil
}

func insertDynamic(dynamic map[string]interface{}, path []string, val interface{}) {
	cur := dynamic
	for _, p := range path[:len(path)-1] {
		next, ok := cur[p].(map[string]interface{})
		if !ok {
			next = map[string]interface{}{}
			cur[p] = next
		}
		cur = next
	}
	cur[path[len(path)-1]] = val
}

func (l leaf) parse(val interface{}, path []string, out *[]FieldValue) error {
	if val == nil {
		return nil
	}
	if arr, ok := val.([]interface{}); ok {
		if l.cardinality == SingleValue {
			return &ErrMultiValuesNotSupported{Path: strings.Join(path, ".")}
		}
		for _, el := range arr {
			if el == nil {
				continue
			}
			v, err := l.mapping.valueFromJSON(el)
			if err != nil {
				return &ErrValue{Path: strings.Join(path, "."), Msg: err.Error()}
			}
			*out = append(*out, FieldValue{Path: l.path, Type: l.typ, Value: v})
		}
		return nil
	}
	v, err := l.mapping.valueFromJSON(val)
	if err != nil {
		return &ErrValue{Path: strings.Join(path, "."), Msg: err.Error()}
	}
	*out = append(*out, FieldValue{Path: l.path, Type: l.typ, Value: v})
	return nil
}

// valueFromJSON converts one scalar JSON value into its typed Go
// representation, grounded on LeafType::value_from_json in
// mapping_tree.rs.
func (m FieldMapping) valueFromJSON(v interface{}) (interface{}, error) {
	switch m.Type {
	case FieldText:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected JSON string, got `%v`", v)
		}
		return s, nil
	case FieldI64:
		n, ok := v.(float64)
		if !ok || n != float64(int64(n)) {
			return nil, fmt.Errorf("expected i64, got inconvertible JSON number `%v`", v)
		}
		return int64(n), nil
	case FieldU64:
		n, ok := v.(float64)
		if !ok || n < 0 || n != float64(uint64(n)) {
			return nil, fmt.Errorf("expected u64, got inconvertible JSON number `%v`", v)
		}
		return uint64(n), nil
	case FieldF64:
		n, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("expected JSON number, got `%v`", v)
		}
		return n, nil
	case FieldBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool value, got `%v`", v)
		}
		return b, nil
	case FieldIPAddr:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string value, got `%v`", v)
		}
		ip := net.ParseIP(s)
		if ip == nil {
			return nil, fmt.Errorf("failed to parse IP address `%s`", s)
		}
		return ip.To16(), nil
	case FieldDateTime:
		return parseDateTime(v, m.DateTime)
	case FieldBytes:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected base64 string, got `%v`", v)
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("expected Base64 string, got `%s`: %v", s, err)
		}
		return b, nil
	case FieldJSON:
		obj, ok := v.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("expected JSON object, got `%v`", v)
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported leaf type %q", m.Type)
	}
}

// parseDateTime accepts either an RFC3339 string or a unix timestamp
// number, matching the two input_formats in DefaultDateTimeOptions.
func parseDateTime(v interface{}, opts DateTimeOptions) (time.Time, error) {
	switch val := v.(type) {
	case string:
		if t, err := time.Parse(time.RFC3339, val); err == nil {
			return t, nil
		}
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			return unixToTime(n, opts.Precision), nil
		}
		return time.Time{}, fmt.Errorf("failed to parse datetime `%s` using the following formats: `rfc3339`, `unix_timestamp`", val)
	case float64:
		return unixToTime(int64(val), opts.Precision), nil
	default:
		return time.Time{}, fmt.Errorf("failed to parse datetime. Expected an integer or a string, got `%v`", v)
	}
}

func unixToTime(n int64, precision DateTimePrecision) time.Time {
	switch precision {
	case PrecisionMilliseconds:
		return time.UnixMilli(n).UTC()
	case PrecisionMicroseconds:
		return time.UnixMicro(n).UTC()
	default:
		return time.Unix(n, 0).UTC()
	}
}

// Project reverses Parse: given the typed field values read back from
// storage plus the dynamic (unmapped) catch-all fields harvested under
// ModeDynamic, it reconstructs a JSON document, applying each leaf's
// declared output format (RFC3339 timestamps, base64 bytes,
// dotted-decimal IPs) and collapsing single-valued fields' one-element
// arrays back to a bare scalar.
func (t *Tree) Project(fields []FieldValue, dynamic map[string]interface{}) (map[string]interface{}, error) {
	var order []string
	grouped := make(map[string][]FieldValue)
	for _, fv := range fields {
		if _, ok := grouped[fv.Path]; !ok {
			order = append(order, fv.Path)
		}
		grouped[fv.Path] = append(grouped[fv.Path], fv)
	}

	out := map[string]interface{}{}
	for _, path := range order {
		segs := splitFlattenedPath(path)
		l, ok := t.root.lookupLeaf(segs)
		if !ok {
			return nil, fmt.Errorf("schema: no mapping found for field %q", path)
		}
		values := grouped[path]
		projected := make([]interface{}, 0, len(values))
		for _, fv := range values {
			pv, err := l.mapping.valueToJSON(fv.Value)
			if err != nil {
				return nil, &ErrValue{Path: path, Msg: err.Error()}
			}
			projected = append(projected, pv)
		}
		var jsonVal interface{}
		if l.cardinality == SingleValue {
			if len(projected) != 1 {
				return nil, fmt.Errorf("schema: expected exactly one value for single-valued field %q, got %d", path, len(projected))
			}
			jsonVal = projected[0]
		} else {
			jsonVal = projected
		}
		insertDynamic(out, segs, jsonVal)
	}
	for k, v := range dynamic {
		out[k] = v
	}
	return out, nil
}

// lookupLeaf walks path (already unescaped, one segment per nesting
// level) down the tree and returns the leaf it resolves to, if any.
func (n *node) lookupLeaf(path []string) (leaf, bool) {
	if len(path) == 0 {
		return leaf{}, false
	}
	child, ok := n.children[path[0]]
	if !ok {
		return leaf{}, false
	}
	if len(path) == 1 {
		l, ok := child.(leaf)
		return l, ok
	}
	childNode, ok := child.(*node)
	if !ok {
		return leaf{}, false
	}
	return childNode.lookupLeaf(path[1:])
}

// splitFlattenedPath reverses FlattenedName: it splits on every '.'
// that is not escaped with a preceding '\', unescaping each segment in
// the same pass.
func splitFlattenedPath(path string) []string {
	var segs []string
	var cur strings.Builder
	escaped := false
	for _, r := range path {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == '.':
			segs = append(segs, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	segs = append(segs, cur.String())
	return segs
}

// valueToJSON converts one typed leaf value back into its JSON output
// representation, the inverse of valueFromJSON.
func (m FieldMapping) valueToJSON(v interface{}) (interface{}, error) {
	switch m.Type {
	case FieldText, FieldI64, FieldU64, FieldF64, FieldBool, FieldJSON:
		return v, nil
	case FieldIPAddr:
		ip, ok := v.(net.IP)
		if !ok {
			return nil, fmt.Errorf("expected net.IP value for ip field, got %T", v)
		}
		return ip.String(), nil
	case FieldDateTime:
		t, ok := v.(time.Time)
		if !ok {
			return nil, fmt.Errorf("expected time.Time value for datetime field, got %T", v)
		}
		return formatDateTime(t, m.DateTime), nil
	case FieldBytes:
		b, ok := v.([]byte)
		if !ok {
			return nil, fmt.Errorf("expected []byte value for bytes field, got %T", v)
		}
		return base64.StdEncoding.EncodeToString(b), nil
	default:
		return nil, fmt.Errorf("unsupported leaf type %q", m.Type)
	}
}

// formatDateTime renders t per the field's declared output_format,
// defaulting to RFC3339 the way DefaultDateTimeOptions does.
func formatDateTime(t time.Time, opts DateTimeOptions) interface{} {
	switch opts.OutputFormat {
	case "unix_timestamp":
		return t.Unix()
	default:
		return t.UTC().Format(time.RFC3339)
	}
}
