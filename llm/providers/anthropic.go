package providers

import (
	"github.com/tidwall/gjson"

	"github.com/BaSui01/structflow/llm/transport"
	"github.com/BaSui01/structflow/structured"
)

const (
	defaultAnthropicBaseURL   = "https://api.anthropic.com"
	defaultAnthropicPath      = "/v1/messages"
	defaultAnthropicModel     = "claude-3-5-haiku-latest"
	defaultAnthropicVersion   = "2023-06-01"
	defaultAnthropicMaxTokens = 4096
)

// AnthropicProvider frames requests for the Messages API. Text deltas of
// content_block_delta events are accumulated; message_stop ends the stream.
type AnthropicProvider struct {
	cfg AnthropicConfig
}

// NewAnthropic creates an Anthropic provider, filling in endpoint defaults.
func NewAnthropic(cfg AnthropicConfig) *AnthropicProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultAnthropicBaseURL
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = defaultAnthropicPath
	}
	if cfg.Version == "" {
		cfg.Version = defaultAnthropicVersion
	}
	// Messages API 要求显式 max_tokens
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultAnthropicMaxTokens
	}
	cfg.Model = ChooseModel(cfg.Model, defaultAnthropicModel)
	return &AnthropicProvider{cfg: cfg}
}

func (p *AnthropicProvider) Name() string { return NameAnthropic }

func (p *AnthropicProvider) Model() string { return p.cfg.Model }

func (p *AnthropicProvider) Accumulation() Accumulation { return Delta }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Stream      bool               `json:"stream"`
	Temperature float64            `json:"temperature,omitempty"`
}

// NewRequest implements Provider.
func (p *AnthropicProvider) NewRequest(schema *structured.JSONSchema, prompt string) (*transport.Request, error) {
	system, err := BuildSystemPrompt(schema)
	if err != nil {
		return nil, err
	}

	return &transport.Request{
		URL: JoinURL(p.cfg.BaseURL, p.cfg.EndpointPath),
		Body: anthropicRequest{
			Model:       p.cfg.Model,
			System:      system,
			Messages:    []anthropicMessage{{Role: "user", Content: prompt}},
			MaxTokens:   p.cfg.MaxTokens,
			Stream:      true,
			Temperature: p.cfg.Temperature,
		},
		Headers: map[string]string{
			"x-api-key":         p.cfg.APIKey,
			"anthropic-version": p.cfg.Version,
		},
		Provider: NameAnthropic,
	}, nil
}

// Decode implements Provider.
func (p *AnthropicProvider) Decode(payload string) (Fragment, error) {
	if payload == "" {
		return Fragment{}, nil
	}
	if !gjson.Valid(payload) {
		return Fragment{}, parseError(NameAnthropic, payload)
	}

	switch gjson.Get(payload, "type").String() {
	case "content_block_delta":
		delta := gjson.Get(payload, "delta")
		if delta.Get("type").String() != "text_delta" {
			return Fragment{}, nil
		}
		return Fragment{Text: delta.Get("text").String()}, nil
	case "message_stop":
		return Fragment{Done: true}, nil
	case "error":
		return Fragment{}, streamError(NameAnthropic, gjson.Get(payload, "error"))
	default:
		// message_start / content_block_start / ping / message_delta 等不携带文本
		return Fragment{}, nil
	}
}
