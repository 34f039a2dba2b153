package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func flatFor(topic string, year int, deleted bool) map[string]any {
	return map[string]any{
		"_brainy.deleted": deleted,
		"topic":           topic,
		"year":            year,
	}
}

func TestEqualsAndSoftDeleteFiltering(t *testing.T) {
	idx := New()
	idx.AddToIndex("a", flatFor("ml", 2021, false))
	idx.AddToIndex("b", flatFor("ml", 2020, true))

	ids := idx.IdsForFilter(Filter{Field: "topic", Op: OpEquals, Value: "ML"}, false)
	assert.Equal(t, []string{"a"}, ids)

	ids = idx.IdsForFilter(Filter{Field: "topic", Op: OpEquals, Value: "ml"}, true)
	assert.ElementsMatch(t, []string{"a", "b"}, ids)
}

func TestRangeQuery(t *testing.T) {
	idx := New()
	idx.AddToIndex("a", flatFor("x", 2019, false))
	idx.AddToIndex("b", flatFor("x", 2021, false))
	idx.AddToIndex("c", flatFor("x", 2023, false))

	ids := idx.IdsForFilter(Filter{Field: "year", Op: OpGte, Value: 2020}, false)
	assert.ElementsMatch(t, []string{"b", "c"}, ids)

	ids = idx.IdsForFilter(Filter{Field: "year", Op: OpBetween, Low: 2020, High: 2022}, false)
	assert.Equal(t, []string{"b"}, ids)
}

func TestAllOfAnyOfNot(t *testing.T) {
	idx := New()
	idx.AddToIndex("a", flatFor("ml", 2019, false))
	idx.AddToIndex("b", flatFor("ml", 2021, false))
	idx.AddToIndex("c", flatFor("other", 2021, false))

	allOf := Filter{Op: OpAllOf, Sub: []Filter{
		{Field: "topic", Op: OpEquals, Value: "ml"},
		{Field: "year", Op: OpGte, Value: 2020},
	}}
	ids := idx.IdsForFilter(allOf, false)
	assert.Equal(t, []string{"b"}, ids)

	anyOf := Filter{Op: OpAnyOf, Sub: []Filter{
		{Field: "topic", Op: OpEquals, Value: "other"},
		{Field: "year", Op: OpEquals, Value: 2019},
	}}
	ids = idx.IdsForFilter(anyOf, false)
	assert.ElementsMatch(t, []string{"a", "c"}, ids)

	not := Filter{Op: OpNot, Sub: []Filter{
		{Field: "topic", Op: OpEquals, Value: "ml"},
	}}
	ids = idx.IdsForFilter(not, false)
	assert.Equal(t, []string{"c"}, ids)
}

func TestExistsMissing(t *testing.T) {
	idx := New()
	idx.AddToIndex("a", map[string]any{"_brainy.deleted": false, "topic": "ml"})
	idx.AddToIndex("b", map[string]any{"_brainy.deleted": false})

	ids := idx.IdsForFilter(Filter{Field: "topic", Op: OpExists}, false)
	assert.Equal(t, []string{"a"}, ids)

	ids = idx.IdsForFilter(Filter{Field: "topic", Op: OpMissing}, false)
	assert.Equal(t, []string{"b"}, ids)
}

func TestOneOfNoneOf(t *testing.T) {
	idx := New()
	idx.AddToIndex("a", flatFor("ml", 2019, false))
	idx.AddToIndex("b", flatFor("nlp", 2019, false))
	idx.AddToIndex("c", flatFor("vision", 2019, false))

	ids := idx.IdsForFilter(Filter{Field: "topic", Op: OpOneOf, Values: []any{"ml", "nlp"}}, false)
	assert.ElementsMatch(t, []string{"a", "b"}, ids)

	ids = idx.IdsForFilter(Filter{Field: "topic", Op: OpNoneOf, Values: []any{"ml", "nlp"}}, false)
	assert.Equal(t, []string{"c"}, ids)
}

func TestRemoveFromIndex(t *testing.T) {
	idx := New()
	flat := flatFor("ml", 2021, false)
	idx.AddToIndex("a", flat)
	idx.RemoveFromIndex("a", flat)

	ids := idx.IdsForFilter(Filter{Field: "topic", Op: OpEquals, Value: "ml"}, true)
	assert.Empty(t, ids)
}

func TestFilterFieldsAndValues(t *testing.T) {
	idx := New()
	idx.AddToIndex("a", flatFor("ml", 2021, false))
	idx.AddToIndex("b", flatFor("nlp", 2021, false))

	fields := idx.FilterFields()
	assert.Contains(t, fields, "topic")
	assert.Contains(t, fields, "year")

	values := idx.FilterValues("topic")
	assert.Len(t, values, 2)
}

func TestStartsWithEndsWithMatches(t *testing.T) {
	idx := New()
	idx.AddToIndex("a", map[string]any{"_brainy.deleted": false, "name": "Project Brainy"})
	idx.AddToIndex("b", map[string]any{"_brainy.deleted": false, "name": "Other Thing"})

	ids := idx.IdsForFilter(Filter{Field: "name", Op: OpStartsWith, Value: "project"}, false)
	assert.Equal(t, []string{"a"}, ids)

	ids = idx.IdsForFilter(Filter{Field: "name", Op: OpEndsWith, Value: "brainy"}, false)
	assert.Equal(t, []string{"a"}, ids)

	ids = idx.IdsForFilter(Filter{Field: "name", Op: OpMatches, Value: "^Other"}, false)
	assert.Equal(t, []string{"b"}, ids)
}

func TestArrayOperators(t *testing.T) {
	idx := New()
	idx.AddToIndex("a", map[string]any{"_brainy.deleted": false, "tags": []any{"go", "db"}})
	idx.AddToIndex("b", map[string]any{"_brainy.deleted": false, "tags": []any{"go"}})

	ids := idx.IdsForFilter(Filter{Field: "tags", Op: OpContains, Value: "db"}, false)
	assert.Equal(t, []string{"a"}, ids)

	ids = idx.IdsForFilter(Filter{Field: "tags", Op: OpHasAll, Values: []any{"go", "db"}}, false)
	assert.Equal(t, []string{"a"}, ids)

	ids = idx.IdsForFilter(Filter{Field: "tags", Op: OpExcludes, Value: "db"}, false)
	assert.Equal(t, []string{"b"}, ids)
}
