package structured

import (
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
)

// OpenAPIValidator 是基于 kin-openapi 的 SchemaValidator 实现，
// 用 openapi3.Schema.VisitJSON 收集全部错误。
//
// OpenAPI 3.0 的 Schema 方言与 JSON Schema 有差异：const 转为单值 enum，
// 数值型 exclusiveMinimum/exclusiveMaximum 转为 minimum + exclusive 标志，
// type null 转为 nullable。
type OpenAPIValidator struct {
	compiled sync.Map // *JSONSchema -> *openapi3.Schema
}

// NewOpenAPIValidator creates an OpenAPIValidator.
func NewOpenAPIValidator() *OpenAPIValidator {
	return &OpenAPIValidator{}
}

// Validate implements SchemaValidator.
func (v *OpenAPIValidator) Validate(value any, schema *JSONSchema) error {
	if schema == nil {
		return nil
	}
	err := v.schemaFor(schema).VisitJSON(value, openapi3.MultiErrors())
	if err == nil {
		return nil
	}
	return &ValidationErrors{Errors: flattenOpenAPIError(err, nil)}
}

func (v *OpenAPIValidator) schemaFor(schema *JSONSchema) *openapi3.Schema {
	if s, ok := v.compiled.Load(schema); ok {
		return s.(*openapi3.Schema)
	}
	s, _ := v.compiled.LoadOrStore(schema, ToOpenAPISchema(schema))
	return s.(*openapi3.Schema)
}

// ToOpenAPISchema converts a JSONSchema into the kin-openapi model.
func ToOpenAPISchema(s *JSONSchema) *openapi3.Schema {
	if s == nil {
		return nil
	}

	out := &openapi3.Schema{
		Title:       s.Title,
		Description: s.Description,
		Format:      string(s.Format),
		Pattern:     s.Pattern,
		Enum:        s.Enum,
		Default:     s.Default,
		Required:    s.Required,
		Min:         s.Minimum,
		Max:         s.Maximum,
		MultipleOf:  s.MultipleOf,
	}

	switch s.Type {
	case "":
	case TypeNull:
		out.Nullable = true
	default:
		out.Type = &openapi3.Types{string(s.Type)}
	}

	if s.Const != nil {
		out.Enum = []any{s.Const}
	}
	if s.ExclusiveMinimum != nil {
		out.Min = s.ExclusiveMinimum
		out.ExclusiveMin = true
	}
	if s.ExclusiveMaximum != nil {
		out.Max = s.ExclusiveMaximum
		out.ExclusiveMax = true
	}

	if s.MinLength != nil {
		out.MinLength = uint64(*s.MinLength)
	}
	if s.MaxLength != nil {
		out.MaxLength = uint64Ptr(*s.MaxLength)
	}
	if s.MinItems != nil {
		out.MinItems = uint64(*s.MinItems)
	}
	if s.MaxItems != nil {
		out.MaxItems = uint64Ptr(*s.MaxItems)
	}
	if s.UniqueItems != nil {
		out.UniqueItems = *s.UniqueItems
	}
	if s.MinProperties != nil {
		out.MinProps = uint64(*s.MinProperties)
	}
	if s.MaxProperties != nil {
		out.MaxProps = uint64Ptr(*s.MaxProperties)
	}

	if len(s.Properties) > 0 {
		out.Properties = make(openapi3.Schemas, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = openapi3.NewSchemaRef("", ToOpenAPISchema(prop))
		}
	}
	if s.Items != nil {
		out.Items = openapi3.NewSchemaRef("", ToOpenAPISchema(s.Items))
	}
	if ap := s.AdditionalProperties; ap != nil {
		if ap.Schema != nil {
			out.AdditionalProperties = openapi3.AdditionalProperties{
				Schema: openapi3.NewSchemaRef("", ToOpenAPISchema(ap.Schema)),
			}
		} else {
			allowed := ap.Allowed
			out.AdditionalProperties = openapi3.AdditionalProperties{Has: &allowed}
		}
	}

	out.AllOf = schemaRefs(s.AllOf)
	out.AnyOf = schemaRefs(s.AnyOf)
	out.OneOf = schemaRefs(s.OneOf)
	if s.Not != nil {
		out.Not = openapi3.NewSchemaRef("", ToOpenAPISchema(s.Not))
	}

	return out
}

func schemaRefs(in []*JSONSchema) openapi3.SchemaRefs {
	if len(in) == 0 {
		return nil
	}
	refs := make(openapi3.SchemaRefs, 0, len(in))
	for _, s := range in {
		refs = append(refs, openapi3.NewSchemaRef("", ToOpenAPISchema(s)))
	}
	return refs
}

func uint64Ptr(v int) *uint64 {
	u := uint64(v)
	return &u
}

func flattenOpenAPIError(err error, out []ParseError) []ParseError {
	var multi openapi3.MultiError
	if errors.As(err, &multi) {
		for _, e := range multi {
			out = flattenOpenAPIError(e, out)
		}
		return out
	}

	var serr *openapi3.SchemaError
	if errors.As(err, &serr) {
		return append(out, ParseError{Path: pointerToPath(serr.JSONPointer()), Message: serr.Reason})
	}
	return append(out, ParseError{Message: err.Error()})
}

// pointerToPath renders a JSON pointer in the same dotted form as DefaultValidator.
func pointerToPath(pointer []string) string {
	var b strings.Builder
	for _, seg := range pointer {
		if _, err := strconv.Atoi(seg); err == nil {
			b.WriteString("[" + seg + "]")
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(seg)
	}
	return b.String()
}
