package extraction

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/structflow/llm/providers"
	"github.com/BaSui01/structflow/llm/streaming"
	"github.com/BaSui01/structflow/llm/transport"
	"github.com/BaSui01/structflow/structured"
	"github.com/BaSui01/structflow/types"
)

// Client 执行单次结构化提取：发起流式请求，逐个解码事件载荷，
// 把片段累积为候选值并通过 ProgressFunc 报告进度。Client 不做重试。
type Client struct {
	transport transport.StreamingClient
	provider  providers.Provider

	logger      *zap.Logger
	tracer      trace.Tracer
	observer    Observer
	policy      FragmentPolicy
	decoderOpts []streaming.DecoderOption
}

// NewClient creates a Client. Options that only concern the orchestrator are ignored.
func NewClient(t transport.StreamingClient, p providers.Provider, opts ...Option) *Client {
	o := newOptions(opts)
	return &Client{
		transport:   t,
		provider:    p,
		logger:      o.logger.With(zap.String("component", "extraction_client"), zap.String("provider", p.Name())),
		tracer:      o.tracerProvider.Tracer(instrumentationName),
		observer:    o.observer,
		policy:      o.fragmentPolicy,
		decoderOpts: o.decoderOpts,
	}
}

// ProviderName returns the name of the underlying provider.
func (c *Client) ProviderName() string { return c.provider.Name() }

// getStats 统计单次 Get 的片段情况，写入 span 属性。
type getStats struct {
	payloads int
	parsed   int
	skipped  int
}

// Get streams one completion for schema and prompt and returns the last
// successfully parsed candidate.
//
// Transport and decoder errors are returned unchanged. A stream that produced
// no parseable candidate fails with EXTRACTION_EMPTY. An error from onChunk
// fails with CALLBACK_FAILED.
func (c *Client) Get(ctx context.Context, schema *structured.JSONSchema, prompt string, onChunk ProgressFunc) (any, error) {
	ctx, span := c.tracer.Start(ctx, "structflow.extraction.get",
		trace.WithAttributes(
			attribute.String("llm.provider", c.provider.Name()),
			attribute.String("extraction.accumulation", c.provider.Accumulation().String()),
		))
	defer span.End()

	var st getStats
	value, err := c.get(ctx, schema, prompt, onChunk, &st)

	span.SetAttributes(
		attribute.Int("extraction.payloads", st.payloads),
		attribute.Int("extraction.fragments.parsed", st.parsed),
		attribute.Int("extraction.fragments.skipped", st.skipped),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return value, err
}

func (c *Client) get(ctx context.Context, schema *structured.JSONSchema, prompt string, onChunk ProgressFunc, st *getStats) (any, error) {
	name := c.provider.Name()

	req, err := c.provider.NewRequest(schema, prompt)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "failed to build request").
			WithCause(err).WithProvider(name)
	}

	body, err := c.transport.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	acc := newAccumulator(c.provider.Accumulation())
	dec := streaming.NewDecoder(body, c.decoderOpts...)

	var (
		candidate any
		found     bool
	)
	for dec.Next(ctx) {
		st.payloads++
		payload := dec.Payload()

		frag, err := c.provider.Decode(payload)
		if err != nil {
			// 流内的上游错误事件与传输失败同等对待
			if types.IsTransportFailure(err) {
				return nil, err
			}
			if ferr := c.fragmentFailed(st, payload, err); ferr != nil {
				return nil, ferr
			}
			continue
		}

		if frag.Text != "" {
			value, ok, perr := acc.add(frag.Text)
			switch {
			case perr != nil:
				if ferr := c.fragmentFailed(st, frag.Text, perr); ferr != nil {
					return nil, ferr
				}
			case ok:
				st.parsed++
				candidate, found = value, true
				c.observer.ObserveFragment(name, true)
				if onChunk != nil {
					if cerr := onChunk(candidate, frag.Text); cerr != nil {
						return nil, types.NewError(types.ErrCallbackFailed, "progress callback failed").
							WithCause(cerr).WithProvider(name)
					}
				}
			}
		}

		if frag.Done {
			break
		}
	}
	if err := dec.Err(); err != nil {
		return nil, err
	}

	if !found {
		c.logger.Debug("stream ended without a parseable candidate",
			zap.Int("payloads", st.payloads),
			zap.Int("skipped", st.skipped),
		)
		return nil, types.NewError(types.ErrExtractionEmpty, "stream produced no parseable value").
			WithProvider(name).WithRetryable(true)
	}
	return candidate, nil
}

// fragmentFailed applies the fragment policy. It returns a non-nil error only
// under FragmentPolicyFailFast.
func (c *Client) fragmentFailed(st *getStats, text string, cause error) error {
	st.skipped++
	c.observer.ObserveFragment(c.provider.Name(), false)

	if c.policy == FragmentPolicyFailFast {
		if types.IsCode(cause, types.ErrFragmentParse) {
			return cause
		}
		return types.NewError(types.ErrFragmentParse, "failed to parse stream fragment").
			WithCause(cause).WithProvider(c.provider.Name()).WithRetryable(true)
	}

	c.logger.Debug("skipping unparseable fragment",
		zap.String("fragment", truncate(text, 200)),
		zap.Error(cause),
	)
	return nil
}

// accumulator 把片段按 Provider 声明的方式合并为候选值。
type accumulator struct {
	mode providers.Accumulation
	buf  []byte
}

func newAccumulator(mode providers.Accumulation) *accumulator {
	return &accumulator{mode: mode}
}

// add returns the new candidate and whether one is available. In delta mode a
// buffer that cannot be completed yet is not an error; more text may follow.
// A fragment that makes the buffer unrepairable is rejected and dropped from
// the buffer.
func (a *accumulator) add(text string) (any, bool, error) {
	if a.mode == providers.Snapshot {
		var v any
		if err := json.Unmarshal([]byte(text), &v); err != nil {
			return nil, false, err
		}
		return v, true, nil
	}

	prev := len(a.buf)
	a.buf = append(a.buf, text...)
	completed, state := CompleteJSON(string(a.buf))
	switch state {
	case JSONIncomplete:
		return nil, false, nil
	case JSONInvalid:
		a.buf = a.buf[:prev]
		return nil, false, types.NewError(types.ErrFragmentParse, "fragment leaves accumulated text as invalid JSON").
			WithRetryable(true)
	}
	var v any
	if err := json.Unmarshal([]byte(completed), &v); err != nil {
		return nil, false, nil
	}
	return v, true, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
