package structured

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func personSchema() *JSONSchema {
	return NewObjectSchema().
		AddProperty("name", NewStringSchema().WithMinLength(2).WithMaxLength(20)).
		AddProperty("age", NewIntegerSchema().WithMinimum(0).WithMaximum(150)).
		AddProperty("role", NewEnumSchema("admin", "member")).
		AddProperty("tags", NewArraySchema(NewStringSchema()).WithMaxItems(3)).
		AddRequired("name", "age")
}

// 两个引擎对同一批候选值的有效性判断一致
func TestOpenAPIValidator_AgreesWithDefault(t *testing.T) {
	candidates := map[string]any{
		"valid":          map[string]any{"name": "Jason", "age": 30.0, "role": "admin", "tags": []any{"a"}},
		"missing age":    map[string]any{"name": "Jason"},
		"short name":     map[string]any{"name": "J", "age": 1.0},
		"float age":      map[string]any{"name": "Jason", "age": 1.5},
		"negative age":   map[string]any{"name": "Jason", "age": -1.0},
		"bad role":       map[string]any{"name": "Jason", "age": 1.0, "role": "root"},
		"too many tags":  map[string]any{"name": "Jason", "age": 1.0, "tags": []any{"a", "b", "c", "d"}},
		"wrong tag type": map[string]any{"name": "Jason", "age": 1.0, "tags": []any{1.0}},
		"not an object":  []any{},
	}

	schema := personSchema()
	builtin := NewValidator()
	kin := NewOpenAPIValidator()

	got := map[string]bool{}
	want := map[string]bool{}
	for name, c := range candidates {
		want[name] = builtin.Validate(c, schema) == nil
		got[name] = kin.Validate(c, schema) == nil
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("validity mismatch (-default +openapi):\n%s", diff)
	}
	assert.True(t, got["valid"])
}

func TestOpenAPIValidator_CollectsAllErrors(t *testing.T) {
	err := NewOpenAPIValidator().Validate(map[string]any{
		"name": 5.0,
		"age":  1.0,
		"tags": []any{"ok", 2.0},
	}, personSchema())
	require.Error(t, err)

	var paths []string
	for _, pe := range ParseErrorsOf(err) {
		paths = append(paths, pe.Path)
		assert.NotEmpty(t, pe.Message)
	}
	assert.Contains(t, paths, "name")
	assert.Contains(t, paths, "tags[1]")
}

func TestToOpenAPISchema_Dialect(t *testing.T) {
	excl := 0.0
	s := &JSONSchema{Type: TypeNumber, ExclusiveMinimum: &excl}
	out := ToOpenAPISchema(s)
	require.NotNil(t, out.Min)
	assert.True(t, out.ExclusiveMin)
	assert.Error(t, NewOpenAPIValidator().Validate(0.0, s))
	assert.NoError(t, NewOpenAPIValidator().Validate(0.1, s))

	c := ToOpenAPISchema(&JSONSchema{Const: "fixed"})
	assert.Equal(t, []any{"fixed"}, c.Enum)

	closed := ToOpenAPISchema(NewObjectSchema().WithAdditionalProperties(false))
	require.NotNil(t, closed.AdditionalProperties.Has)
	assert.False(t, *closed.AdditionalProperties.Has)
}

func TestPointerToPath(t *testing.T) {
	assert.Equal(t, "", pointerToPath(nil))
	assert.Equal(t, "a.b", pointerToPath([]string{"a", "b"}))
	assert.Equal(t, "tags[1].name", pointerToPath([]string{"tags", "1", "name"}))
	assert.Equal(t, "[0]", pointerToPath([]string{"0"}))
}
