package providers

import (
	"fmt"
	"strings"

	"github.com/BaSui01/structflow/config"
	"github.com/BaSui01/structflow/llm/transport"
	"github.com/BaSui01/structflow/structured"
)

// Accumulation 声明一个 Provider 的片段应当如何累积为候选值。
type Accumulation int

const (
	// Snapshot 每个片段都是完整的 JSON 文档，解析成功即替换候选值。
	Snapshot Accumulation = iota
	// Delta 片段是文本增量，追加到缓冲区后补全为 JSON。
	Delta
)

func (a Accumulation) String() string {
	switch a {
	case Snapshot:
		return "snapshot"
	case Delta:
		return "delta"
	default:
		return fmt.Sprintf("accumulation(%d)", int(a))
	}
}

// Fragment is the provider-neutral content of one stream payload.
type Fragment struct {
	// Text is the JSON text carried by the payload. Empty for role-only,
	// keep-alive and bookkeeping events.
	Text string
	// Done reports that the provider signalled the end of the stream.
	Done bool
}

// Provider 描述一种 LLM 流式端点的请求构造与事件载荷解析方式。
type Provider interface {
	Name() string
	// Model 返回请求使用的模型名，未配置时为空。
	Model() string
	NewRequest(schema *structured.JSONSchema, prompt string) (*transport.Request, error)
	// Decode 解析单个 data 载荷。返回传输类错误码（如 UPSTREAM_ERROR）表示流内报错，
	// 其他错误表示载荷无法解析。
	Decode(payload string) (Fragment, error)
	Accumulation() Accumulation
}

// Provider names accepted by New.
const (
	NameOpenAI    = "openai"
	NameAnthropic = "anthropic"
	NameSnapshot  = "snapshot"
)

// New builds the provider selected by cfg.Provider.
func New(cfg config.LLMConfig) (Provider, error) {
	base := BaseProviderConfig{
		APIKey:       cfg.APIKey,
		BaseURL:      cfg.BaseURL,
		Model:        cfg.Model,
		EndpointPath: cfg.EndpointPath,
		MaxTokens:    cfg.MaxTokens,
		Temperature:  cfg.Temperature,
	}

	switch strings.ToLower(cfg.Provider) {
	case NameOpenAI, "":
		return NewOpenAI(OpenAIConfig{BaseProviderConfig: base, Organization: cfg.Organization}), nil
	case NameAnthropic:
		return NewAnthropic(AnthropicConfig{BaseProviderConfig: base, Version: cfg.AnthropicVersion}), nil
	case NameSnapshot:
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("snapshot provider requires base_url")
		}
		return NewSnapshot(SnapshotConfig{BaseProviderConfig: base}), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
