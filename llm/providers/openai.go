package providers

import (
	"github.com/tidwall/gjson"

	"github.com/BaSui01/structflow/llm/transport"
	"github.com/BaSui01/structflow/structured"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultOpenAIPath    = "/chat/completions"
	defaultOpenAIModel   = "gpt-4o-mini"

	// openAIDone 是 OpenAI 兼容流的结束哨兵
	openAIDone = "[DONE]"
)

// OpenAIProvider frames requests for OpenAI-compatible chat completion endpoints.
// JSON mode is requested through response_format and the content deltas of
// the first choice are accumulated.
type OpenAIProvider struct {
	cfg OpenAIConfig
}

// NewOpenAI creates an OpenAI provider, filling in endpoint defaults.
func NewOpenAI(cfg OpenAIConfig) *OpenAIProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOpenAIBaseURL
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = defaultOpenAIPath
	}
	cfg.Model = ChooseModel(cfg.Model, defaultOpenAIModel)
	return &OpenAIProvider{cfg: cfg}
}

func (p *OpenAIProvider) Name() string { return NameOpenAI }

func (p *OpenAIProvider) Model() string { return p.cfg.Model }

func (p *OpenAIProvider) Accumulation() Accumulation { return Delta }

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model          string            `json:"model"`
	Messages       []openAIMessage   `json:"messages"`
	Stream         bool              `json:"stream"`
	ResponseFormat map[string]string `json:"response_format"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	Temperature    float64           `json:"temperature,omitempty"`
}

// NewRequest implements Provider.
func (p *OpenAIProvider) NewRequest(schema *structured.JSONSchema, prompt string) (*transport.Request, error) {
	system, err := BuildSystemPrompt(schema)
	if err != nil {
		return nil, err
	}

	headers := BearerTokenHeaders(p.cfg.APIKey)
	if p.cfg.Organization != "" {
		headers["OpenAI-Organization"] = p.cfg.Organization
	}

	return &transport.Request{
		URL: JoinURL(p.cfg.BaseURL, p.cfg.EndpointPath),
		Body: openAIRequest{
			Model: p.cfg.Model,
			Messages: []openAIMessage{
				{Role: "system", Content: system},
				{Role: "user", Content: prompt},
			},
			Stream:         true,
			ResponseFormat: map[string]string{"type": "json_object"},
			MaxTokens:      p.cfg.MaxTokens,
			Temperature:    p.cfg.Temperature,
		},
		Headers:  headers,
		Provider: NameOpenAI,
	}, nil
}

// Decode implements Provider.
func (p *OpenAIProvider) Decode(payload string) (Fragment, error) {
	if payload == openAIDone {
		return Fragment{Done: true}, nil
	}
	if payload == "" {
		return Fragment{}, nil
	}
	if !gjson.Valid(payload) {
		return Fragment{}, parseError(NameOpenAI, payload)
	}
	if errObj := gjson.Get(payload, "error"); errObj.IsObject() {
		return Fragment{}, streamError(NameOpenAI, errObj)
	}
	return Fragment{Text: gjson.Get(payload, "choices.0.delta.content").String()}, nil
}
