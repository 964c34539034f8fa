package extraction_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"

	"github.com/BaSui01/structflow/extraction"
	"github.com/BaSui01/structflow/llm/providers"
	"github.com/BaSui01/structflow/llm/transport"
	"github.com/BaSui01/structflow/structured"
	"github.com/BaSui01/structflow/testutil"
	"github.com/BaSui01/structflow/testutil/fixtures"
	"github.com/BaSui01/structflow/testutil/mocks"
	"github.com/BaSui01/structflow/types"
)

func personSchema() *structured.JSONSchema {
	return structured.NewObjectSchema().
		AddProperty("name", structured.NewStringSchema()).
		AddProperty("age", structured.NewIntegerSchema().WithMinimum(18)).
		AddRequired("name", "age")
}

type progress struct {
	partials []any
	chunks   []string
}

func (p *progress) record(partial any, chunk string) error {
	p.partials = append(p.partials, partial)
	p.chunks = append(p.chunks, chunk)
	return nil
}

// countingObserver 记录观察器回调
type countingObserver struct {
	mu       sync.Mutex
	parsed   int
	skipped  int
	attempts []extraction.Outcome
	runs     []extraction.Outcome
}

func (o *countingObserver) ObserveFragment(_ string, parsed bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if parsed {
		o.parsed++
	} else {
		o.skipped++
	}
}

func (o *countingObserver) ObserveAttempt(_ string, outcome extraction.Outcome, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.attempts = append(o.attempts, outcome)
}

func (o *countingObserver) ObserveRun(outcome extraction.Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runs = append(o.runs, outcome)
}

func TestClient_OpenAIDeltaStream(t *testing.T) {
	chunks := []string{`{"name":`, ` "Jas`, `on", "age": 2`, `5}`}
	stream := mocks.NewMockStreamingClient(fixtures.OpenAIStream(chunks...))
	client := extraction.NewClient(stream, providers.NewOpenAI(providers.OpenAIConfig{}))

	var p progress
	got, err := client.Get(testutil.TestContext(t), personSchema(), "Jason is 25", p.record)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"name": "Jason", "age": 25.0}, got)
	assert.Equal(t, chunks, p.chunks)
	assert.Equal(t, []any{
		map[string]any{},
		map[string]any{"name": "Jas"},
		map[string]any{"name": "Jason", "age": 2.0},
		map[string]any{"name": "Jason", "age": 25.0},
	}, p.partials)

	assert.Equal(t, 1, stream.CallCount())
	assert.Equal(t, 0, stream.OpenBodies(), "body must be closed")
	assert.Equal(t, "Jason is 25", firstUserMessage(t, stream.Calls()[0]))
}

func firstUserMessage(t *testing.T, req *transport.Request) string {
	t.Helper()
	body := testutil.MustParseJSON[map[string]any](testutil.MustJSON(req.Body))
	msgs := body["messages"].([]any)
	return msgs[len(msgs)-1].(map[string]any)["content"].(string)
}

func TestClient_AnthropicDeltaStream(t *testing.T) {
	stream := mocks.NewMockStreamingClient(fixtures.AnthropicStream("```json\n", `{"name": "Ada", `, `"age": 36}`, "\n```"))
	client := extraction.NewClient(stream, providers.NewAnthropic(providers.AnthropicConfig{}))

	got, err := client.Get(testutil.TestContext(t), personSchema(), "Ada is 36", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "Ada", "age": 36.0}, got)
	assert.Equal(t, "anthropic", client.ProviderName())
}

func snapshotProvider() providers.Provider {
	return providers.NewSnapshot(providers.SnapshotConfig{
		BaseProviderConfig: providers.BaseProviderConfig{BaseURL: "http://snapshot.local"},
	})
}

func TestClient_SnapshotReplacesCandidate(t *testing.T) {
	stream := mocks.NewMockStreamingClient(fixtures.SnapshotStream(
		`{"name":"J"}`,
		`{"name":"Jason"}`,
		`{"name":"Jason","age":25}`,
	))
	client := extraction.NewClient(stream, snapshotProvider())

	var p progress
	got, err := client.Get(testutil.TestContext(t), personSchema(), "ctx", p.record)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "Jason", "age": 25.0}, got)
	assert.Len(t, p.partials, 3)
}

func TestClient_FragmentPolicy(t *testing.T) {
	body := fixtures.SnapshotStream(`{"name":"J"}`, `{"name":`, `{"name":"Jo"}`)

	t.Run("skip", func(t *testing.T) {
		obs := &countingObserver{}
		client := extraction.NewClient(mocks.NewMockStreamingClient(body), snapshotProvider(),
			extraction.WithObserver(obs), extraction.WithLogger(zap.NewNop()))

		got, err := client.Get(testutil.TestContext(t), personSchema(), "ctx", nil)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"name": "Jo"}, got)
		assert.Equal(t, 2, obs.parsed)
		assert.Equal(t, 1, obs.skipped)
	})

	t.Run("fail fast", func(t *testing.T) {
		stream := mocks.NewMockStreamingClient(body)
		client := extraction.NewClient(stream, snapshotProvider(),
			extraction.WithFragmentPolicy(extraction.FragmentPolicyFailFast))

		_, err := client.Get(testutil.TestContext(t), personSchema(), "ctx", nil)
		require.Error(t, err)
		assert.True(t, types.IsCode(err, types.ErrFragmentParse))
		assert.False(t, types.IsTransportFailure(err))
		assert.Equal(t, 0, stream.OpenBodies())
	})
}

func TestClient_FragmentPolicy_DeltaStream(t *testing.T) {
	body := fixtures.OpenAIStream(`{"name":"Jason",`, ` "age": 25]`, `}, "extra": 1}`)

	t.Run("skip", func(t *testing.T) {
		obs := &countingObserver{}
		client := extraction.NewClient(mocks.NewMockStreamingClient(body), providers.NewOpenAI(providers.OpenAIConfig{}),
			extraction.WithObserver(obs))

		got, err := client.Get(testutil.TestContext(t), personSchema(), "ctx", nil)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"name": "Jason"}, got)
		assert.Equal(t, 1, obs.parsed)
		assert.Equal(t, 2, obs.skipped)
	})

	t.Run("fail fast", func(t *testing.T) {
		obs := &countingObserver{}
		stream := mocks.NewMockStreamingClient(body)
		client := extraction.NewClient(stream, providers.NewOpenAI(providers.OpenAIConfig{}),
			extraction.WithObserver(obs),
			extraction.WithFragmentPolicy(extraction.FragmentPolicyFailFast))

		got, err := client.Get(testutil.TestContext(t), personSchema(), "ctx", nil)
		require.Error(t, err)
		assert.Nil(t, got)
		assert.True(t, types.IsCode(err, types.ErrFragmentParse))
		assert.Equal(t, 1, obs.skipped)
		assert.Equal(t, 0, stream.OpenBodies())
	})
}

func TestClient_EmptyDataEventIsNotAFragmentFailure(t *testing.T) {
	body := fixtures.SSEBody(
		`{"choices":[{"delta":{"content":"{\"name\":\"Jason\",\"age\":25}"}}]}`,
		"",
		"[DONE]",
	)
	obs := &countingObserver{}
	client := extraction.NewClient(mocks.NewMockStreamingClient(body), providers.NewOpenAI(providers.OpenAIConfig{}),
		extraction.WithObserver(obs),
		extraction.WithFragmentPolicy(extraction.FragmentPolicyFailFast))

	got, err := client.Get(testutil.TestContext(t), personSchema(), "ctx", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "Jason", "age": 25.0}, got)
	assert.Equal(t, 0, obs.skipped)
}

func TestClient_DoneStopsReading(t *testing.T) {
	body := fixtures.SnapshotStream(`{"name":"A"}`, "[DONE]", `not json`)
	client := extraction.NewClient(mocks.NewMockStreamingClient(body), snapshotProvider(),
		extraction.WithFragmentPolicy(extraction.FragmentPolicyFailFast))

	got, err := client.Get(testutil.TestContext(t), personSchema(), "ctx", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "A"}, got)
}

func TestClient_EmptyStream(t *testing.T) {
	for name, body := range map[string]string{
		"no bytes":        "",
		"no data lines":   ": keep-alive\n\nevent: ping\n\n",
		"role only":       fixtures.OpenAIStream(),
		"prose only":      fixtures.OpenAIStream("I cannot help with that."),
		"done right away": fixtures.SSEBody("[DONE]", `{"name":"late"}`),
	} {
		t.Run(name, func(t *testing.T) {
			client := extraction.NewClient(mocks.NewMockStreamingClient(body), providers.NewOpenAI(providers.OpenAIConfig{}))
			_, err := client.Get(testutil.TestContext(t), personSchema(), "ctx", nil)
			require.Error(t, err)
			assert.True(t, types.IsCode(err, types.ErrExtractionEmpty), err.Error())
		})
	}
}

func TestClient_TransportErrorPropagatesUnchanged(t *testing.T) {
	want := types.NewError(types.ErrUnauthorized, "invalid api key").WithHTTPStatus(401)
	stream := mocks.NewMockStreamingClient().WithError(0, want)
	client := extraction.NewClient(stream, providers.NewOpenAI(providers.OpenAIConfig{}))

	_, err := client.Get(testutil.TestContext(t), personSchema(), "ctx", nil)
	assert.Same(t, want, err)
}

func TestClient_InStreamUpstreamError(t *testing.T) {
	body := fixtures.AnthropicStream(`{"name":`) + fixtures.AnthropicErrorStream("overloaded_error", "Overloaded")
	// message_stop 在错误之前，去掉它让错误事件被读到
	body = strings.Replace(body, "event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n", "", 1)
	stream := mocks.NewMockStreamingClient(body)
	client := extraction.NewClient(stream, providers.NewAnthropic(providers.AnthropicConfig{}))

	_, err := client.Get(testutil.TestContext(t), personSchema(), "ctx", nil)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrModelOverloaded))
	assert.True(t, types.IsTransportFailure(err))
	assert.Equal(t, 0, stream.OpenBodies())
}

func TestClient_StreamReadError(t *testing.T) {
	reset := errors.New("connection reset by peer")
	stream := mocks.NewMockStreamingClient().WithStreamFunc(
		func(context.Context, *transport.Request) (io.ReadCloser, error) {
			r := io.MultiReader(
				strings.NewReader(fixtures.SnapshotStream(`{"name":"A"}`)),
				iotest.ErrReader(reset),
			)
			return io.NopCloser(r), nil
		})
	client := extraction.NewClient(stream, snapshotProvider())

	var p progress
	_, err := client.Get(testutil.TestContext(t), personSchema(), "ctx", p.record)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrStreamRead))
	assert.ErrorIs(t, err, reset)
	assert.Len(t, p.partials, 1, "data before the failure is still delivered")
}

func TestClient_LineTooLong(t *testing.T) {
	body := fixtures.SnapshotStream(`{"name":"` + strings.Repeat("x", 256) + `"}`)
	client := extraction.NewClient(mocks.NewMockStreamingClient(body), snapshotProvider(),
		extraction.WithMaxLineSize(64))

	_, err := client.Get(testutil.TestContext(t), personSchema(), "ctx", nil)
	assert.True(t, types.IsCode(err, types.ErrStreamLineTooLong))
}

func TestClient_CallbackErrorAborts(t *testing.T) {
	stream := mocks.NewMockStreamingClient(fixtures.SnapshotStream(`{"name":"A"}`, `{"name":"B"}`))
	client := extraction.NewClient(stream, snapshotProvider())

	stop := errors.New("consumer gone")
	calls := 0
	_, err := client.Get(testutil.TestContext(t), personSchema(), "ctx", func(any, string) error {
		calls++
		return stop
	})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrCallbackFailed))
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, stream.OpenBodies())
}

func TestClient_CancelledContext(t *testing.T) {
	stream := mocks.NewMockStreamingClient(fixtures.SnapshotStream(`{"name":"A"}`))
	client := extraction.NewClient(stream, snapshotProvider())

	_, err := client.Get(testutil.CancelledContext(), personSchema(), "ctx", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_Span(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	body := fixtures.SnapshotStream(`{"name":"A"}`, `oops`, `{"name":"B"}`)
	client := extraction.NewClient(mocks.NewMockStreamingClient(body), snapshotProvider(),
		extraction.WithTracerProvider(tp))

	_, err := client.Get(testutil.TestContext(t), personSchema(), "ctx", nil)
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "structflow.extraction.get", spans[0].Name())

	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range spans[0].Attributes() {
		attrs[kv.Key] = kv.Value
	}
	assert.Equal(t, "snapshot", attrs["llm.provider"].AsString())
	assert.Equal(t, int64(3), attrs["extraction.payloads"].AsInt64())
	assert.Equal(t, int64(2), attrs["extraction.fragments.parsed"].AsInt64())
	assert.Equal(t, int64(1), attrs["extraction.fragments.skipped"].AsInt64())
}

func TestParseFragmentPolicy(t *testing.T) {
	for in, want := range map[string]extraction.FragmentPolicy{
		"":          extraction.FragmentPolicySkip,
		"skip":      extraction.FragmentPolicySkip,
		"fail_fast": extraction.FragmentPolicyFailFast,
		"FailFast":  extraction.FragmentPolicyFailFast,
	} {
		got, err := extraction.ParseFragmentPolicy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := extraction.ParseFragmentPolicy("retry")
	assert.Error(t, err)
	assert.Equal(t, "fail_fast", extraction.FragmentPolicyFailFast.String())
}
