package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractTagsFiltersToTagFieldSet(t *testing.T) {
	fields := []FieldValue{
		{Path: "region", Value: "us-east"},
		{Path: "body", Value: "ignored"},
		{Path: "tier", Value: int64(2)},
	}
	tagSet := map[string]struct{}{"region": {}, "tier": {}}

	got := ExtractTags(fields, tagSet)
	assert.ElementsMatch(t, []string{"region:us-east", "tier:2"}, got)
}

func TestExtractTagsEmptyWhenNoneMatch(t *testing.T) {
	fields := []FieldValue{{Path: "body", Value: "x"}}
	assert.Empty(t, ExtractTags(fields, map[string]struct{}{"region": {}}))
}

func TestTagPresent(t *testing.T) {
	tags := map[string]struct{}{"region:us-east": {}}
	assert.True(t, TagPresent{Name: "region:us-east", Present: true}.Evaluate(tags))
	assert.False(t, TagPresent{Name: "region:eu-west", Present: true}.Evaluate(tags))
	assert.True(t, TagPresent{Name: "region:eu-west", Present: false}.Evaluate(tags))
}

func TestTagAndRequiresEveryChild(t *testing.T) {
	tags := map[string]struct{}{"a": {}, "b": {}}
	filter := TagAnd{TagPresent{Name: "a", Present: true}, TagPresent{Name: "b", Present: true}}
	assert.True(t, filter.Evaluate(tags))

	filter = TagAnd{TagPresent{Name: "a", Present: true}, TagPresent{Name: "c", Present: true}}
	assert.False(t, filter.Evaluate(tags))
}

func TestTagOrRequiresAnyChild(t *testing.T) {
	tags := map[string]struct{}{"a": {}}
	filter := TagOr{TagPresent{Name: "z", Present: true}, TagPresent{Name: "a", Present: true}}
	assert.True(t, filter.Evaluate(tags))

	filter = TagOr{TagPresent{Name: "y", Present: true}, TagPresent{Name: "z", Present: true}}
	assert.False(t, filter.Evaluate(tags))
}

func TestTagFilterNesting(t *testing.T) {
	tags := map[string]struct{}{"region:us-east": {}, "tier:gold": {}}
	filter := TagAnd{
		TagPresent{Name: "region:us-east", Present: true},
		TagOr{TagPresent{Name: "tier:gold", Present: true}, TagPresent{Name: "tier:platinum", Present: true}},
	}
	assert.True(t, filter.Evaluate(tags))
}
