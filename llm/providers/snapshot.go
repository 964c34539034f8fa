package providers

import (
	"github.com/tidwall/gjson"

	"github.com/BaSui01/structflow/llm/transport"
	"github.com/BaSui01/structflow/structured"
)

// SnapshotProvider frames requests for an endpoint that streams the whole document
// so far in every event. Each payload replaces the previous candidate.
type SnapshotProvider struct {
	cfg SnapshotConfig
}

// NewSnapshot creates a Snapshot provider. BaseURL is required.
func NewSnapshot(cfg SnapshotConfig) *SnapshotProvider {
	return &SnapshotProvider{cfg: cfg}
}

func (p *SnapshotProvider) Name() string { return NameSnapshot }

func (p *SnapshotProvider) Model() string { return p.cfg.Model }

func (p *SnapshotProvider) Accumulation() Accumulation { return Snapshot }

type snapshotRequest struct {
	Schema  *structured.JSONSchema `json:"schema"`
	Context string                 `json:"context"`
	Model   string                 `json:"model,omitempty"`
}

// NewRequest implements Provider.
func (p *SnapshotProvider) NewRequest(schema *structured.JSONSchema, prompt string) (*transport.Request, error) {
	return &transport.Request{
		URL: JoinURL(p.cfg.BaseURL, p.cfg.EndpointPath),
		Body: snapshotRequest{
			Schema:  schema,
			Context: prompt,
			Model:   p.cfg.Model,
		},
		Headers:  BearerTokenHeaders(p.cfg.APIKey),
		Provider: NameSnapshot,
	}, nil
}

// Decode implements Provider. The payload is the fragment; "[DONE]" is
// accepted as an end marker.
func (p *SnapshotProvider) Decode(payload string) (Fragment, error) {
	if payload == openAIDone {
		return Fragment{Done: true}, nil
	}
	if payload == "" {
		return Fragment{}, nil
	}
	if !gjson.Valid(payload) {
		return Fragment{}, parseError(NameSnapshot, payload)
	}
	return Fragment{Text: payload}, nil
}
