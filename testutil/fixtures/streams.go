// =============================================================================
// 📦 测试数据工厂 - SSE 响应体
// =============================================================================
// 构造各 Provider 格式的 Server-Sent Events 响应体，用于测试
// =============================================================================
package fixtures

import (
	"encoding/json"
	"strings"
)

// =============================================================================
// 🎯 通用构造
// =============================================================================

// SSEBody 把每个载荷写成一个 `data:` 事件
func SSEBody(payloads ...string) string {
	var b strings.Builder
	for _, p := range payloads {
		b.WriteString("data: ")
		b.WriteString(p)
		b.WriteString("\n\n")
	}
	return b.String()
}

func quote(s string) string {
	raw, err := json.Marshal(s)
	if err != nil {
		panic(err)
	}
	return string(raw)
}

// =============================================================================
// 🤖 Provider 流格式
// =============================================================================

// OpenAIStream 返回 chat completions 流：角色块、内容增量、结束块与 [DONE]
func OpenAIStream(chunks ...string) string {
	payloads := []string{`{"id":"chatcmpl-1","choices":[{"index":0,"delta":{"role":"assistant"}}]}`}
	for _, c := range chunks {
		payloads = append(payloads,
			`{"id":"chatcmpl-1","choices":[{"index":0,"delta":{"content":`+quote(c)+`}}]}`)
	}
	payloads = append(payloads,
		`{"id":"chatcmpl-1","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
		"[DONE]",
	)
	return SSEBody(payloads...)
}

// AnthropicStream 返回 messages 流，每个事件前带 event: 行
func AnthropicStream(chunks ...string) string {
	var b strings.Builder
	event := func(name, data string) {
		b.WriteString("event: ")
		b.WriteString(name)
		b.WriteString("\ndata: ")
		b.WriteString(data)
		b.WriteString("\n\n")
	}

	event("message_start", `{"type":"message_start","message":{"id":"msg_1","role":"assistant","content":[]}}`)
	event("content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`)
	event("ping", `{"type":"ping"}`)
	for _, c := range chunks {
		event("content_block_delta",
			`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":`+quote(c)+`}}`)
	}
	event("content_block_stop", `{"type":"content_block_stop","index":0}`)
	event("message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn"}}`)
	event("message_stop", `{"type":"message_stop"}`)
	return b.String()
}

// AnthropicErrorStream 返回一个在流中报错的 messages 流
func AnthropicErrorStream(errType, message string) string {
	return "event: error\ndata: " +
		`{"type":"error","error":{"type":` + quote(errType) + `,"message":` + quote(message) + `}}` + "\n\n"
}

// SnapshotStream 返回累积快照流，每个载荷都是完整 JSON
func SnapshotStream(snapshots ...string) string {
	return SSEBody(snapshots...)
}
