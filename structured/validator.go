package structured

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"regexp"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
)

// SchemaValidator 校验一个已解码的候选值（encoding/json 的 any 形式）。
// 校验失败返回 *ValidationErrors。
type SchemaValidator interface {
	Validate(value any, schema *JSONSchema) error
}

// ParseError represents a validation error with field path.
type ParseError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors represents multiple validation errors.
type ValidationErrors struct {
	Errors []ParseError `json:"errors"`
}

// Error implements the error interface.
func (e *ValidationErrors) Error() string {
	switch len(e.Errors) {
	case 0:
		return "validation failed"
	case 1:
		return e.Errors[0].Error()
	}
	msgs := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("validation failed with %d errors: %s", len(e.Errors), strings.Join(msgs, "; "))
}

// ParseErrorsOf flattens err into ParseErrors. A nil error yields nil.
func ParseErrorsOf(err error) []ParseError {
	if err == nil {
		return nil
	}
	var verrs *ValidationErrors
	if errors.As(err, &verrs) {
		return verrs.Errors
	}
	var perr *ParseError
	if errors.As(err, &perr) {
		return []ParseError{*perr}
	}
	return []ParseError{{Message: err.Error()}}
}

// ValidateJSON decodes data and validates it with v.
func ValidateJSON(v SchemaValidator, data []byte, schema *JSONSchema) error {
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return &ValidationErrors{
			Errors: []ParseError{{Message: fmt.Sprintf("invalid JSON: %v", err)}},
		}
	}
	return v.Validate(value, schema)
}

// DefaultValidator is the built-in SchemaValidator.
type DefaultValidator struct {
	formatValidators map[StringFormat]func(string) bool

	mu       sync.Mutex
	patterns map[string]*regexp.Regexp
}

var (
	emailPattern    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	uriPattern      = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://`)
	dateTimePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})?$`)
	datePattern     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timePattern     = regexp.MustCompile(`^\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})?$`)
	hostnamePattern = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)
)

// NewValidator creates a new DefaultValidator with built-in format validators.
func NewValidator() *DefaultValidator {
	v := &DefaultValidator{
		formatValidators: map[StringFormat]func(string) bool{
			FormatEmail:    emailPattern.MatchString,
			FormatURI:      uriPattern.MatchString,
			FormatDateTime: dateTimePattern.MatchString,
			FormatDate:     datePattern.MatchString,
			FormatTime:     timePattern.MatchString,
			FormatUUID: func(s string) bool {
				_, err := uuid.Parse(s)
				return err == nil && len(s) == 36
			},
			FormatIPv4: func(s string) bool {
				ip := net.ParseIP(s)
				return ip != nil && ip.To4() != nil && strings.Count(s, ".") == 3
			},
			FormatIPv6: func(s string) bool {
				ip := net.ParseIP(s)
				return ip != nil && strings.Contains(s, ":")
			},
			FormatHostname: func(s string) bool {
				return len(s) <= 253 && hostnamePattern.MatchString(s)
			},
		},
		patterns: make(map[string]*regexp.Regexp),
	}
	return v
}

// RegisterFormat registers a custom format validator.
func (v *DefaultValidator) RegisterFormat(format StringFormat, validator func(string) bool) {
	v.formatValidators[format] = validator
}

// Validate validates value against schema. A nil schema accepts everything.
func (v *DefaultValidator) Validate(value any, schema *JSONSchema) error {
	if schema == nil {
		return nil
	}
	var errs []ParseError
	v.validateValue(value, schema, "", &errs)
	if len(errs) > 0 {
		return &ValidationErrors{Errors: errs}
	}
	return nil
}

func (v *DefaultValidator) validateValue(value any, schema *JSONSchema, path string, errs *[]ParseError) {
	if schema == nil {
		return
	}

	if schema.Const != nil {
		if !equalValues(value, schema.Const) {
			*errs = append(*errs, ParseError{Path: path, Message: fmt.Sprintf("value must be %v", schema.Const)})
		}
		return
	}

	if len(schema.Enum) > 0 {
		found := false
		for _, enumVal := range schema.Enum {
			if equalValues(value, enumVal) {
				found = true
				break
			}
		}
		if !found {
			*errs = append(*errs, ParseError{Path: path, Message: fmt.Sprintf("value must be one of: %v", schema.Enum)})
		}
	}

	v.validateComposition(value, schema, path, errs)

	switch schema.Type {
	case TypeString:
		v.validateString(value, schema, path, errs)
	case TypeNumber:
		v.validateNumber(value, schema, path, errs, false)
	case TypeInteger:
		v.validateNumber(value, schema, path, errs, true)
	case TypeBoolean:
		if _, ok := value.(bool); !ok {
			*errs = append(*errs, ParseError{Path: path, Message: fmt.Sprintf("expected boolean, got %s", typeName(value))})
		}
	case TypeNull:
		if value != nil {
			*errs = append(*errs, ParseError{Path: path, Message: fmt.Sprintf("expected null, got %s", typeName(value))})
		}
	case TypeObject:
		v.validateObject(value, schema, path, errs)
	case TypeArray:
		v.validateArray(value, schema, path, errs)
	}
}

func (v *DefaultValidator) validateComposition(value any, schema *JSONSchema, path string, errs *[]ParseError) {
	for _, sub := range schema.AllOf {
		v.validateValue(value, sub, path, errs)
	}

	if len(schema.AnyOf) > 0 && v.countMatches(value, schema.AnyOf, path) == 0 {
		*errs = append(*errs, ParseError{Path: path, Message: "value does not match any allowed schema"})
	}

	if len(schema.OneOf) > 0 {
		if n := v.countMatches(value, schema.OneOf, path); n != 1 {
			*errs = append(*errs, ParseError{Path: path, Message: fmt.Sprintf("value must match exactly one schema, matched %d", n)})
		}
	}

	if schema.Not != nil && v.countMatches(value, []*JSONSchema{schema.Not}, path) == 1 {
		*errs = append(*errs, ParseError{Path: path, Message: "value must not match the excluded schema"})
	}
}

func (v *DefaultValidator) countMatches(value any, schemas []*JSONSchema, path string) int {
	n := 0
	for _, sub := range schemas {
		var subErrs []ParseError
		v.validateValue(value, sub, path, &subErrs)
		if len(subErrs) == 0 {
			n++
		}
	}
	return n
}

func (v *DefaultValidator) validateString(value any, schema *JSONSchema, path string, errs *[]ParseError) {
	str, ok := value.(string)
	if !ok {
		*errs = append(*errs, ParseError{Path: path, Message: fmt.Sprintf("expected string, got %s", typeName(value))})
		return
	}

	n := utf8.RuneCountInString(str)
	if schema.MinLength != nil && n < *schema.MinLength {
		*errs = append(*errs, ParseError{Path: path, Message: fmt.Sprintf("string length %d is less than minimum %d", n, *schema.MinLength)})
	}
	if schema.MaxLength != nil && n > *schema.MaxLength {
		*errs = append(*errs, ParseError{Path: path, Message: fmt.Sprintf("string length %d exceeds maximum %d", n, *schema.MaxLength)})
	}

	if schema.Pattern != "" {
		re, err := v.compile(schema.Pattern)
		if err != nil {
			*errs = append(*errs, ParseError{Path: path, Message: fmt.Sprintf("invalid pattern %q: %v", schema.Pattern, err)})
		} else if !re.MatchString(str) {
			*errs = append(*errs, ParseError{Path: path, Message: fmt.Sprintf("string does not match pattern %q", schema.Pattern)})
		}
	}

	if schema.Format != "" {
		if check, ok := v.formatValidators[schema.Format]; ok && !check(str) {
			*errs = append(*errs, ParseError{Path: path, Message: fmt.Sprintf("string does not match format %q", schema.Format)})
		}
	}
}

func (v *DefaultValidator) compile(pattern string) (*regexp.Regexp, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if re, ok := v.patterns[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	v.patterns[pattern] = re
	return re, nil
}

func (v *DefaultValidator) validateNumber(value any, schema *JSONSchema, path string, errs *[]ParseError, integer bool) {
	want := "number"
	if integer {
		want = "integer"
	}
	num, ok := toFloat64(value)
	if !ok {
		*errs = append(*errs, ParseError{Path: path, Message: fmt.Sprintf("expected %s, got %s", want, typeName(value))})
		return
	}
	if integer && num != math.Trunc(num) {
		*errs = append(*errs, ParseError{Path: path, Message: fmt.Sprintf("expected integer, got %v", num)})
		return
	}

	if schema.Minimum != nil && num < *schema.Minimum {
		*errs = append(*errs, ParseError{Path: path, Message: fmt.Sprintf("value %v is less than minimum %v", num, *schema.Minimum)})
	}
	if schema.Maximum != nil && num > *schema.Maximum {
		*errs = append(*errs, ParseError{Path: path, Message: fmt.Sprintf("value %v exceeds maximum %v", num, *schema.Maximum)})
	}
	if schema.ExclusiveMinimum != nil && num <= *schema.ExclusiveMinimum {
		*errs = append(*errs, ParseError{Path: path, Message: fmt.Sprintf("value %v must be greater than %v", num, *schema.ExclusiveMinimum)})
	}
	if schema.ExclusiveMaximum != nil && num >= *schema.ExclusiveMaximum {
		*errs = append(*errs, ParseError{Path: path, Message: fmt.Sprintf("value %v must be less than %v", num, *schema.ExclusiveMaximum)})
	}
	if schema.MultipleOf != nil && *schema.MultipleOf != 0 {
		q := num / *schema.MultipleOf
		if q != math.Trunc(q) {
			*errs = append(*errs, ParseError{Path: path, Message: fmt.Sprintf("value %v is not a multiple of %v", num, *schema.MultipleOf)})
		}
	}
}

func (v *DefaultValidator) validateObject(value any, schema *JSONSchema, path string, errs *[]ParseError) {
	obj, ok := value.(map[string]any)
	if !ok {
		*errs = append(*errs, ParseError{Path: path, Message: fmt.Sprintf("expected object, got %s", typeName(value))})
		return
	}

	for _, req := range schema.Required {
		val, exists := obj[req]
		switch {
		case !exists:
			*errs = append(*errs, ParseError{Path: joinPath(path, req), Message: "required field is missing"})
		case val == nil:
			*errs = append(*errs, ParseError{Path: joinPath(path, req), Message: "required field must not be null"})
		}
	}

	if schema.MinProperties != nil && len(obj) < *schema.MinProperties {
		*errs = append(*errs, ParseError{Path: path, Message: fmt.Sprintf("object has %d properties, minimum is %d", len(obj), *schema.MinProperties)})
	}
	if schema.MaxProperties != nil && len(obj) > *schema.MaxProperties {
		*errs = append(*errs, ParseError{Path: path, Message: fmt.Sprintf("object has %d properties, maximum is %d", len(obj), *schema.MaxProperties)})
	}

	// 按键排序遍历，保证错误顺序稳定
	for _, name := range sortedKeys(obj) {
		propPath := joinPath(path, name)
		if propSchema, ok := schema.Properties[name]; ok {
			v.validateValue(obj[name], propSchema, propPath, errs)
			continue
		}
		if ap := schema.AdditionalProperties; ap != nil {
			switch {
			case ap.Schema != nil:
				v.validateValue(obj[name], ap.Schema, propPath, errs)
			case !ap.Allowed:
				*errs = append(*errs, ParseError{Path: propPath, Message: "additional property not allowed"})
			}
		}
	}
}

func (v *DefaultValidator) validateArray(value any, schema *JSONSchema, path string, errs *[]ParseError) {
	arr, ok := value.([]any)
	if !ok {
		*errs = append(*errs, ParseError{Path: path, Message: fmt.Sprintf("expected array, got %s", typeName(value))})
		return
	}

	if schema.MinItems != nil && len(arr) < *schema.MinItems {
		*errs = append(*errs, ParseError{Path: path, Message: fmt.Sprintf("array has %d items, minimum is %d", len(arr), *schema.MinItems)})
	}
	if schema.MaxItems != nil && len(arr) > *schema.MaxItems {
		*errs = append(*errs, ParseError{Path: path, Message: fmt.Sprintf("array has %d items, maximum is %d", len(arr), *schema.MaxItems)})
	}

	if schema.UniqueItems != nil && *schema.UniqueItems {
		seen := make(map[string]bool, len(arr))
		for i, item := range arr {
			data, _ := json.Marshal(item)
			key := string(data)
			if seen[key] {
				*errs = append(*errs, ParseError{Path: fmt.Sprintf("%s[%d]", path, i), Message: "duplicate item in array with uniqueItems constraint"})
			}
			seen[key] = true
		}
	}

	if schema.Items != nil {
		for i, item := range arr {
			v.validateValue(item, schema.Items, fmt.Sprintf("%s[%d]", path, i), errs)
		}
	}
}

func toFloat64(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func equalValues(a, b any) bool {
	aNum, aIsNum := toFloat64(a)
	bNum, bIsNum := toFloat64(b)
	if aIsNum && bIsNum {
		return aNum == bNum
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	aJSON, _ := json.Marshal(a)
	bJSON, _ := json.Marshal(b)
	return string(aJSON) == string(bJSON)
}

// typeName reports the JSON type of a decoded value.
func typeName(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, int, int32, int64, json.Number:
		return "number"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		return fmt.Sprintf("%T", value)
	}
}

func joinPath(base, segment string) string {
	if base == "" {
		return segment
	}
	return base + "." + segment
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
