package providers

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/BaSui01/structflow/types"
)

// ChooseModel 按优先级选择模型（配置 > 兜底）。
func ChooseModel(configured, fallback string) string {
	if configured != "" {
		return configured
	}
	return fallback
}

// JoinURL joins a base URL and an endpoint path with exactly one slash.
func JoinURL(base, path string) string {
	if path == "" {
		return base
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

// BearerTokenHeaders 是标准的 Bearer token 认证 header 构建函数。
func BearerTokenHeaders(apiKey string) map[string]string {
	if apiKey == "" {
		return map[string]string{}
	}
	return map[string]string{"Authorization": "Bearer " + apiKey}
}

// parseError reports a payload that is not a JSON document.
func parseError(provider, payload string) *types.Error {
	return types.NewError(types.ErrFragmentParse, "payload is not valid JSON: "+truncate(payload, 64)).
		WithProvider(provider).WithRetryable(true)
}

// streamError maps an in-stream error object such as
// {"error":{"type":"overloaded_error","message":"..."}} to a transport error.
func streamError(provider string, errObj gjson.Result) *types.Error {
	msg := errObj.Get("message").String()
	if msg == "" {
		msg = "upstream reported an error"
	}
	kind := errObj.Get("type").String()
	code := types.ErrUpstreamError
	retryable := false
	switch {
	case strings.Contains(kind, "overloaded"):
		code, retryable = types.ErrModelOverloaded, true
	case strings.Contains(kind, "rate_limit"):
		code, retryable = types.ErrRateLimited, true
	case strings.Contains(kind, "authentication"):
		code = types.ErrUnauthorized
	case kind == "api_error" || kind == "server_error":
		retryable = true
	}
	return types.NewError(code, msg).WithProvider(provider).WithRetryable(retryable)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
