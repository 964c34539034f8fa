package providers

// BaseProviderConfig 所有 Provider 共享的基础配置字段。
type BaseProviderConfig struct {
	APIKey       string  `json:"api_key" yaml:"api_key"`
	BaseURL      string  `json:"base_url" yaml:"base_url"`
	Model        string  `json:"model,omitempty" yaml:"model,omitempty"`
	EndpointPath string  `json:"endpoint_path,omitempty" yaml:"endpoint_path,omitempty"`
	MaxTokens    int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	Temperature  float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"` // 0 表示使用服务端默认值
}

// OpenAIConfig OpenAI 兼容端点配置
type OpenAIConfig struct {
	BaseProviderConfig `yaml:",inline"`
	Organization       string `json:"organization,omitempty" yaml:"organization,omitempty"`
}

// AnthropicConfig Anthropic Messages API 配置
type AnthropicConfig struct {
	BaseProviderConfig `yaml:",inline"`
	Version            string `json:"version,omitempty" yaml:"version,omitempty"` // anthropic-version 请求头
}

// SnapshotConfig 推送完整 JSON 快照的通用端点配置
type SnapshotConfig struct {
	BaseProviderConfig `yaml:",inline"`
}
