package structured

import (
	"encoding/json"
	"fmt"
)

// FormOption configures Document and Form targets.
type FormOption func(*formConfig)

type formConfig struct {
	validator SchemaValidator
}

// WithValidator replaces the DefaultValidator used by a target.
func WithValidator(v SchemaValidator) FormOption {
	return func(c *formConfig) {
		if v != nil {
			c.validator = v
		}
	}
}

func newFormConfig(opts []FormOption) formConfig {
	cfg := formConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.validator == nil {
		cfg.validator = NewValidator()
	}
	return cfg
}

// Document 是面向原始 Schema 的动态提交目标：提交值经校验后原样保留。
type Document struct {
	schema    *JSONSchema
	validator SchemaValidator

	value     any
	submitted bool
	errors    []ParseError
}

// NewDocument creates an unsubmitted Document bound to schema.
func NewDocument(schema *JSONSchema, opts ...FormOption) *Document {
	cfg := newFormConfig(opts)
	return &Document{schema: schema, validator: cfg.validator}
}

func (d *Document) Schema() *JSONSchema { return d.schema }

// Submit validates data and stores it. Submitting again replaces the previous outcome.
func (d *Document) Submit(data any) {
	d.submitted = true
	d.value = data
	d.errors = ParseErrorsOf(d.validator.Validate(data, d.schema))
}

func (d *Document) IsSubmitted() bool { return d.submitted }
func (d *Document) IsValid() bool { return d.submitted && len(d.errors) == 0 }
func (d *Document) Errors() []ParseError { return d.errors }
func (d *Document) Value() any { return d.value }

// Form 把提交值绑定到 Go 类型 T。Schema 由 T 的标签生成；
// 若 *T 实现 Validate() error，业务规则在 Schema 校验通过后执行。
type Form[T any] struct {
	schema    *JSONSchema
	validator SchemaValidator

	data      *T
	raw       any
	submitted bool
	errors    []ParseError
}

// NewForm creates an unsubmitted Form whose schema is generated from T.
func NewForm[T any](opts ...FormOption) (*Form[T], error) {
	schema, err := SchemaFor[T]()
	if err != nil {
		return nil, fmt.Errorf("generate schema: %w", err)
	}
	return NewFormWithSchema[T](schema, opts...), nil
}

// NewFormWithSchema creates a Form that validates against an explicit schema.
func NewFormWithSchema[T any](schema *JSONSchema, opts ...FormOption) *Form[T] {
	cfg := newFormConfig(opts)
	return &Form[T]{schema: schema, validator: cfg.validator}
}

func (f *Form[T]) Schema() *JSONSchema { return f.schema }

// Submit validates data, binds it into a fresh T and runs the business rule.
func (f *Form[T]) Submit(data any) {
	f.submitted = true
	f.raw = data
	f.data = nil
	f.errors = ParseErrorsOf(f.validator.Validate(data, f.schema))
	if len(f.errors) > 0 {
		return
	}

	bound, err := bind[T](data)
	if err != nil {
		f.errors = []ParseError{{Message: fmt.Sprintf("cannot bind value: %v", err)}}
		return
	}
	if rule, ok := any(bound).(interface{ Validate() error }); ok {
		if err := rule.Validate(); err != nil {
			f.errors = ParseErrorsOf(err)
			return
		}
	}
	f.data = bound
}

func (f *Form[T]) IsSubmitted() bool { return f.submitted }
func (f *Form[T]) IsValid() bool { return f.submitted && len(f.errors) == 0 }
func (f *Form[T]) Errors() []ParseError { return f.errors }

// Data returns the bound value. It is nil unless the form is valid.
func (f *Form[T]) Data() *T { return f.data }

// Raw returns the last submitted candidate, valid or not.
func (f *Form[T]) Raw() any { return f.raw }

func bind[T any](data any) (*T, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	out := new(T)
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, err
	}
	return out, nil
}
