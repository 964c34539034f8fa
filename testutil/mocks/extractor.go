// MockExtractor 是单次提取的脚本化模拟实现，用于编排器测试。
package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/structflow/extraction"
	"github.com/BaSui01/structflow/structured"
	"github.com/BaSui01/structflow/types"
)

// ExtractResult 是一次 Get 调用的预设结果。Chunks 依次传给 onChunk。
type ExtractResult struct {
	Value  any
	Chunks []string
	Err    error
}

// MockExtractor 实现 extraction.Extractor
type MockExtractor struct {
	mu sync.Mutex

	name    string
	results []ExtractResult

	// 调用记录
	prompts []string
	schemas []*structured.JSONSchema
}

// NewMockExtractor 创建按顺序返回 results 的模拟提取器，脚本用完后重复最后一个
func NewMockExtractor(results ...ExtractResult) *MockExtractor {
	return &MockExtractor{name: "mock", results: results}
}

// WithName 设置 ProviderName 返回值
func (m *MockExtractor) WithName(name string) *MockExtractor {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.name = name
	return m
}

// ProviderName 返回 Provider 名称
func (m *MockExtractor) ProviderName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.name
}

// Get 实现 extraction.Extractor
func (m *MockExtractor) Get(ctx context.Context, schema *structured.JSONSchema, prompt string, onChunk extraction.ProgressFunc) (any, error) {
	m.mu.Lock()
	call := len(m.prompts)
	m.prompts = append(m.prompts, prompt)
	m.schemas = append(m.schemas, schema)
	var res ExtractResult
	if n := len(m.results); n > 0 {
		res = m.results[min(call, n-1)]
	}
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, chunk := range res.Chunks {
		if onChunk == nil {
			break
		}
		if err := onChunk(res.Value, chunk); err != nil {
			return nil, types.NewError(types.ErrCallbackFailed, "progress callback failed").WithCause(err)
		}
	}
	if res.Err != nil {
		return nil, res.Err
	}
	if res.Value == nil {
		return nil, types.NewError(types.ErrExtractionEmpty, "stream produced no parseable value").WithRetryable(true)
	}
	return res.Value, nil
}

// CallCount 返回调用次数
func (m *MockExtractor) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// Prompts 返回每次调用收到的 prompt
func (m *MockExtractor) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// Schemas 返回每次调用收到的 Schema
func (m *MockExtractor) Schemas() []*structured.JSONSchema {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*structured.JSONSchema(nil), m.schemas...)
}
