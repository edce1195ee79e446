package pipeline

// Transform is an optional pre-parse document rewrite, standing in for
// a VRL-style transform language. Only two built-in, composable
// transforms are provided here rather than an embedded interpreter.
type Transform interface {
	Apply(doc map[string]interface{}) map[string]interface{}
}

// TransformChain applies a sequence of Transforms in order.
type TransformChain []Transform

func (c TransformChain) Apply(doc map[string]interface{}) map[string]interface{} {
	for _, t := range c {
		doc = t.Apply(doc)
	}
	return doc
}

// DropField removes a top-level field before parsing.
type DropField struct {
	Field string
}

func (d DropField) Apply(doc map[string]interface{}) map[string]interface{} {
	delete(doc, d.Field)
	return doc
}

// RenameField renames a top-level field before parsing, leaving the
// document unchanged if From is absent.
type RenameField struct {
	From, To string
}

func (r RenameField) Apply(doc map[string]interface{}) map[string]interface{} {
	v, ok := doc[r.From]
	if !ok {
		return doc
	}
	delete(doc, r.From)
	doc[r.To] = v
	return doc
}
