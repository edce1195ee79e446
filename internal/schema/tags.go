package schema

import "fmt"

// ExtractTags serializes the parsed values of the named tag fields as
// `field_name:token` strings. Values
// are stringified with fmt's default verb, which matches the scalar
// leaf types this package produces (string, int64, uint64, float64,
// bool, time.Time, []byte).
func ExtractTags(fields []FieldValue, tagFieldSet map[string]struct{}) []string {
	var tags []string
	for _, fv := range fields {
		if _, ok := tagFieldSet[fv.Path]; !ok {
			continue
		}
		tags = append(tags, fmt.Sprintf("%s:%v", fv.Path, fv.Value))
	}
	return tags
}

// TagFilter is the tag AST used to prune splits before they are opened.
type TagFilter interface {
	Evaluate(tags map[string]struct{}) bool
}

// TagPresent matches when name is present in the split's tag set
// (present=true) or absent (present=false).
type TagPresent struct {
	Name string
	Present bool
}

func (t TagPresent) Evaluate(tags map[string]struct{}) bool {
	_, ok := tags[t.Name]
	return ok == t.Present
}

// TagAnd matches when every child matches.
type TagAnd []TagFilter

func (a TagAnd) Evaluate(tags map[string]struct{}) bool {
	for _, f := range a {
		if !f.Evaluate(tags) {
			return false
		}
	}
	return true
}

// TagOr matches when at least one child matches.
type TagOr []TagFilter

func (o TagOr) Evaluate(tags map[string]struct{}) bool {
	for _, f := range o {
		if f.Evaluate(tags) {
			return true
		}
	}
	return false
}
