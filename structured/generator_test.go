package structured

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type profile struct {
	Name     string            `json:"name" jsonschema:"required,minLength=2,description=Full name"`
	Age      int               `json:"age" jsonschema:"minimum=0,maximum=150"`
	Email    string            `json:"email,omitempty" jsonschema:"format=email"`
	Role     string            `json:"role" jsonschema:"enum=admin|member|guest,default=member"`
	Status   string            `json:"status" jsonschema:"enum=active,inactive,required"`
	Tags     []string          `json:"tags" jsonschema:"minItems=1,maxItems=5"`
	Code     string            `json:"code" jsonschema:"pattern=^[A-Z]{2,4}$"`
	Labels   map[string]string `json:"labels"`
	Manager  *profile          `json:"manager,omitempty"`
	Ignored  string            `json:"-"`
	Verified bool
	internal string
}

func TestSchemaGenerator_StructTags(t *testing.T) {
	schema, err := SchemaFor[profile]()
	require.NoError(t, err)

	assert.Equal(t, TypeObject, schema.Type)
	assert.ElementsMatch(t, []string{"name", "status"}, schema.Required)

	name := schema.Properties["name"]
	require.NotNil(t, name)
	assert.Equal(t, TypeString, name.Type)
	assert.Equal(t, 2, *name.MinLength)
	assert.Equal(t, "Full name", name.Description)

	age := schema.Properties["age"]
	assert.Equal(t, TypeInteger, age.Type)
	assert.Equal(t, 0.0, *age.Minimum)
	assert.Equal(t, 150.0, *age.Maximum)

	assert.Equal(t, FormatEmail, schema.Properties["email"].Format)
	assert.Equal(t, []any{"admin", "member", "guest"}, schema.Properties["role"].Enum)
	assert.Equal(t, "member", schema.Properties["role"].Default)
	assert.Equal(t, []any{"active", "inactive"}, schema.Properties["status"].Enum)

	tags := schema.Properties["tags"]
	assert.Equal(t, TypeArray, tags.Type)
	assert.Equal(t, TypeString, tags.Items.Type)
	assert.Equal(t, 1, *tags.MinItems)
	assert.Equal(t, 5, *tags.MaxItems)

	assert.Equal(t, "^[A-Z]{2,4}$", schema.Properties["code"].Pattern)

	labels := schema.Properties["labels"]
	require.NotNil(t, labels.AdditionalProperties)
	assert.Equal(t, TypeString, labels.AdditionalProperties.Schema.Type)

	// 递归类型被截断为 object
	assert.Equal(t, TypeObject, schema.Properties["manager"].Type)

	assert.Contains(t, schema.Properties, "Verified")
	assert.NotContains(t, schema.Properties, "Ignored")
	assert.NotContains(t, schema.Properties, "-")
	assert.NotContains(t, schema.Properties, "internal")
}

func TestSchemaGenerator_BasicTypes(t *testing.T) {
	g := NewSchemaGenerator()
	tests := []struct {
		v    any
		want SchemaType
	}{
		{"", TypeString},
		{true, TypeBoolean},
		{int64(1), TypeInteger},
		{uint8(1), TypeInteger},
		{1.5, TypeNumber},
		{[]int{}, TypeArray},
		{map[string]int{}, TypeObject},
	}
	for _, tt := range tests {
		s, err := g.GenerateSchema(reflect.TypeOf(tt.v))
		require.NoError(t, err)
		assert.Equal(t, tt.want, s.Type, "%T", tt.v)
	}
}

func TestSchemaGenerator_Unsupported(t *testing.T) {
	g := NewSchemaGenerator()

	_, err := g.GenerateSchema(reflect.TypeOf(make(chan int)))
	assert.Error(t, err)

	_, err = g.GenerateSchema(reflect.TypeOf(map[int]string{}))
	assert.Error(t, err)

	_, err = g.GenerateSchema(nil)
	assert.Error(t, err)
}

func TestSplitTagParts(t *testing.T) {
	tests := []struct {
		tag  string
		want []string
	}{
		{"required", []string{"required"}},
		{"required,minLength=3", []string{"required", "minLength=3"}},
		{"enum=a,b,c", []string{"enum=a,b,c"}},
		{"enum=a,b,required", []string{"enum=a,b", "required"}},
		{"pattern=^.{3,10}$,maxLength=9", []string{"pattern=^.{3,10}$", "maxLength=9"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, splitTagParts(tt.tag), tt.tag)
	}
}
