package structured

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// SchemaGenerator 通过反射从 Go 类型生成 JSONSchema。
type SchemaGenerator struct {
	// 记录正在展开的类型，用于截断递归类型
	visited map[reflect.Type]bool
}

// NewSchemaGenerator 创建 SchemaGenerator。
func NewSchemaGenerator() *SchemaGenerator {
	return &SchemaGenerator{visited: make(map[reflect.Type]bool)}
}

// GenerateSchema 从 Go 类型生成 JSONSchema。
// 字段名取自 json 标签，约束取自 jsonschema 标签：
//
//   - required
//   - enum=a|b|c（也接受逗号分隔）
//   - minimum=0 / maximum=100
//   - minLength=1 / maxLength=100
//   - pattern=^[a-z]+$
//   - format=email
//   - minItems=1 / maxItems=10
//   - description=...
//   - default=...
func (g *SchemaGenerator) GenerateSchema(t reflect.Type) (*JSONSchema, error) {
	g.visited = make(map[reflect.Type]bool)
	return g.generateSchema(t)
}

// SchemaFor 是 GenerateSchema 的泛型便捷形式。
func SchemaFor[T any]() (*JSONSchema, error) {
	return NewSchemaGenerator().GenerateSchema(reflect.TypeFor[T]())
}

func (g *SchemaGenerator) generateSchema(t reflect.Type) (*JSONSchema, error) {
	if t == nil {
		return nil, fmt.Errorf("cannot generate schema for nil type")
	}

	if t.Kind() == reflect.Ptr {
		return g.generateSchema(t.Elem())
	}

	if g.visited[t] {
		// 递归类型退化为不受约束的 object
		return &JSONSchema{Type: TypeObject}, nil
	}

	switch t.Kind() {
	case reflect.String:
		return NewStringSchema(), nil
	case reflect.Bool:
		return NewBooleanSchema(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return NewIntegerSchema(), nil
	case reflect.Float32, reflect.Float64:
		return NewNumberSchema(), nil
	case reflect.Slice, reflect.Array:
		elem, err := g.generateSchema(t.Elem())
		if err != nil {
			return nil, fmt.Errorf("failed to generate schema for array element: %w", err)
		}
		return NewArraySchema(elem), nil
	case reflect.Map:
		if t.Key().Kind() != reflect.String {
			return nil, fmt.Errorf("unsupported map key type: %s", t.Key().Kind())
		}
		value, err := g.generateSchema(t.Elem())
		if err != nil {
			return nil, fmt.Errorf("failed to generate schema for map value: %w", err)
		}
		schema := NewObjectSchema()
		schema.AdditionalProperties = &AdditionalProperties{Allowed: true, Schema: value}
		return schema, nil
	case reflect.Struct:
		return g.generateStructSchema(t)
	case reflect.Interface:
		return &JSONSchema{}, nil
	default:
		return nil, fmt.Errorf("unsupported type: %s", t.Kind())
	}
}

func (g *SchemaGenerator) generateStructSchema(t reflect.Type) (*JSONSchema, error) {
	g.visited[t] = true
	defer func() { g.visited[t] = false }()

	schema := NewObjectSchema()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		name := jsonFieldName(field)
		if name == "-" {
			continue
		}

		fieldSchema, err := g.generateSchema(field.Type)
		if err != nil {
			return nil, fmt.Errorf("failed to generate schema for field %s: %w", field.Name, err)
		}

		options := parseTagOptions(field.Tag.Get("jsonschema"))
		applyTagOptions(fieldSchema, options, field.Type)
		if _, ok := options["required"]; ok {
			schema.Required = append(schema.Required, name)
		}

		schema.Properties[name] = fieldSchema
	}

	return schema, nil
}

func jsonFieldName(field reflect.StructField) string {
	name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
	if name == "" {
		return field.Name
	}
	return name
}

func applyTagOptions(schema *JSONSchema, options map[string]string, t reflect.Type) {
	if desc, ok := options["description"]; ok {
		schema.Description = desc
	}
	if def, ok := options["default"]; ok {
		schema.Default = parseDefaultValue(def, t)
	}
	if enum, ok := options["enum"]; ok {
		sep := ","
		if strings.Contains(enum, "|") {
			sep = "|"
		}
		for _, v := range strings.Split(enum, sep) {
			schema.Enum = append(schema.Enum, strings.TrimSpace(v))
		}
	}

	if v, ok := intOption(options, "minLength"); ok {
		schema.MinLength = &v
	}
	if v, ok := intOption(options, "maxLength"); ok {
		schema.MaxLength = &v
	}
	if pattern, ok := options["pattern"]; ok {
		schema.Pattern = pattern
	}
	if format, ok := options["format"]; ok {
		schema.Format = StringFormat(format)
	}

	if v, ok := floatOption(options, "minimum"); ok {
		schema.Minimum = &v
	}
	if v, ok := floatOption(options, "maximum"); ok {
		schema.Maximum = &v
	}

	if v, ok := intOption(options, "minItems"); ok {
		schema.MinItems = &v
	}
	if v, ok := intOption(options, "maxItems"); ok {
		schema.MaxItems = &v
	}
}

func intOption(options map[string]string, key string) (int, bool) {
	raw, ok := options[key]
	if !ok {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	return v, err == nil
}

func floatOption(options map[string]string, key string) (float64, bool) {
	raw, ok := options[key]
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	return v, err == nil
}

// parseTagOptions 把 "required,minLength=3,enum=a,b" 解析为选项表。
func parseTagOptions(tag string) map[string]string {
	options := make(map[string]string)
	for _, part := range splitTagParts(tag) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if key, value, ok := strings.Cut(part, "="); ok && key != "" {
			options[key] = value
		} else {
			options[part] = ""
		}
	}
	return options
}

// splitTagParts 按逗号切分标签，但值内部的逗号（enum=a,b 或 pattern=^.{3,10}$）
// 只有在下一段像新的 key=value 或已知布尔选项时才视为分隔符。
func splitTagParts(tag string) []string {
	var parts []string
	var current strings.Builder
	inValue := false

	for i := 0; i < len(tag); i++ {
		ch := tag[i]
		switch {
		case ch == '=' && !inValue:
			inValue = true
			current.WriteByte(ch)
		case ch == ',' && !inValue:
			parts = append(parts, current.String())
			current.Reset()
		case ch == ',':
			next := tag[i+1:]
			if j := strings.IndexByte(next, ','); j >= 0 {
				next = next[:j]
			}
			if startsOption(strings.TrimSpace(next)) {
				parts = append(parts, current.String())
				current.Reset()
				inValue = false
				continue
			}
			current.WriteByte(ch)
		default:
			current.WriteByte(ch)
		}
	}

	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}

func startsOption(segment string) bool {
	if segment == "required" {
		return true
	}
	key, _, ok := strings.Cut(segment, "=")
	if !ok || key == "" {
		return false
	}
	for _, c := range key {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')) {
			return false
		}
	}
	return true
}

func parseDefaultValue(value string, t reflect.Type) any {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	switch t.Kind() {
	case reflect.Bool:
		return value == "true"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if v, err := strconv.ParseInt(value, 10, 64); err == nil {
			return v
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if v, err := strconv.ParseUint(value, 10, 64); err == nil {
			return v
		}
	case reflect.Float32, reflect.Float64:
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			return v
		}
	}
	return value
}
