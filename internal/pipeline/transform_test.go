package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDropFieldRemovesField(t *testing.T) {
	doc := map[string]interface{}{"a": 1, "b": 2}
	out := DropField{Field: "a"}.Apply(doc)
	assert.NotContains(t, out, "a")
	assert.Contains(t, out, "b")
}

func TestRenameFieldMovesValue(t *testing.T) {
	doc := map[string]interface{}{"old": "v"}
	out := RenameField{From: "old", To: "new"}.Apply(doc)
	assert.NotContains(t, out, "old")
	assert.Equal(t, "v", out["new"])
}

func TestRenameFieldNoOpWhenFromAbsent(t *testing.T) {
	doc := map[string]interface{}{"other": "v"}
	out := RenameField{From: "missing", To: "new"}.Apply(doc)
	assert.Equal(t, map[string]interface{}{"other": "v"}, out)
}

func TestTransformChainAppliesInOrder(t *testing.T) {
	chain := TransformChain{
		RenameField{From: "a", To: "b"},
		DropField{Field: "c"},
	}
	doc := map[string]interface{}{"a": 1, "c": 2}
	out := chain.Apply(doc)
	assert.Equal(t, map[string]interface{}{"b": 1}, out)
}
