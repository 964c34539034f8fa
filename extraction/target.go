package extraction

import "github.com/BaSui01/structflow/structured"

// Target 是一次提取尝试的提交目标（类似表单）：提供 Schema，
// 接收候选值并给出校验结论。
type Target interface {
	Schema() *structured.JSONSchema
	Submit(data any)
	IsSubmitted() bool
	IsValid() bool
	Errors() []structured.ParseError
}

// TargetFactory returns a fresh, unsubmitted target for each attempt.
type TargetFactory func() (Target, error)

// ProgressFunc receives the latest parsed candidate and the fragment text that
// produced it. A non-nil error aborts the run.
type ProgressFunc func(partial any, chunk string) error

// DocumentFactory builds targets for a raw schema.
func DocumentFactory(schema *structured.JSONSchema, opts ...structured.FormOption) TargetFactory {
	return func() (Target, error) {
		return structured.NewDocument(schema, opts...), nil
	}
}

// FormFactory builds Form[T] targets sharing one generated schema.
func FormFactory[T any](opts ...structured.FormOption) (TargetFactory, error) {
	schema, err := structured.SchemaFor[T]()
	if err != nil {
		return nil, err
	}
	return func() (Target, error) {
		return structured.NewFormWithSchema[T](schema, opts...), nil
	}, nil
}
