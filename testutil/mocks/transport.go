// MockStreamingClient 是流式传输的脚本化模拟实现。
//
// 每次调用按顺序返回一个预设响应体，脚本用完后重复最后一个。
package mocks

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/BaSui01/structflow/llm/transport"
)

// MockStreamingClient 实现 transport.StreamingClient
type MockStreamingClient struct {
	mu sync.Mutex

	// 响应配置
	bodies     []string
	errs       map[int]error
	streamFunc func(ctx context.Context, req *transport.Request) (io.ReadCloser, error)

	// 调用记录
	calls  []*transport.Request
	opened int
	closed int
}

// NewMockStreamingClient 创建按顺序返回 bodies 的模拟客户端
func NewMockStreamingClient(bodies ...string) *MockStreamingClient {
	return &MockStreamingClient{
		bodies: bodies,
		errs:   make(map[int]error),
	}
}

// WithError 让第 call 次调用（从 0 开始）返回 err
func (m *MockStreamingClient) WithError(call int, err error) *MockStreamingClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[call] = err
	return m
}

// WithStreamFunc 设置自定义 Stream 函数，优先于预设响应体
func (m *MockStreamingClient) WithStreamFunc(fn func(ctx context.Context, req *transport.Request) (io.ReadCloser, error)) *MockStreamingClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streamFunc = fn
	return m
}

// Stream 实现 transport.StreamingClient
func (m *MockStreamingClient) Stream(ctx context.Context, req *transport.Request) (io.ReadCloser, error) {
	m.mu.Lock()
	call := len(m.calls)
	m.calls = append(m.calls, req)
	fn := m.streamFunc
	err := m.errs[call]
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var r io.Reader
	if fn != nil {
		rc, err := fn(ctx, req)
		if err != nil {
			return nil, err
		}
		r = rc
	} else {
		m.mu.Lock()
		body := ""
		if n := len(m.bodies); n > 0 {
			body = m.bodies[min(call, n-1)]
		}
		m.mu.Unlock()
		r = strings.NewReader(body)
	}

	m.mu.Lock()
	m.opened++
	m.mu.Unlock()
	return &trackedBody{Reader: r, onClose: m.markClosed}, nil
}

func (m *MockStreamingClient) markClosed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
}

// Calls 返回所有请求记录
func (m *MockStreamingClient) Calls() []*transport.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*transport.Request(nil), m.calls...)
}

// CallCount 返回调用次数
func (m *MockStreamingClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// OpenBodies 返回已返回但尚未关闭的响应体数量
func (m *MockStreamingClient) OpenBodies() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opened - m.closed
}

type trackedBody struct {
	io.Reader
	once    sync.Once
	onClose func()
}

func (b *trackedBody) Close() error {
	b.once.Do(b.onClose)
	if c, ok := b.Reader.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
