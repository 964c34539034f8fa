package structflow_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/structflow"
	"github.com/BaSui01/structflow/config"
	"github.com/BaSui01/structflow/structured"
	"github.com/BaSui01/structflow/testutil/fixtures"
	"github.com/BaSui01/structflow/testutil/mocks"
)

type person struct {
	Name string `json:"name" jsonschema:"required"`
	Age  int    `json:"age" jsonschema:"required,minimum=18"`
}

func personSchema() *structured.JSONSchema {
	return structured.NewObjectSchema().
		AddProperty("name", structured.NewStringSchema()).
		AddProperty("age", structured.NewIntegerSchema().WithMinimum(18)).
		AddRequired("name", "age")
}

func TestNew_Defaults(t *testing.T) {
	sf, err := structflow.New(nil)
	require.NoError(t, err)
	defer sf.Close(context.Background())

	assert.NotNil(t, sf.Client())
	assert.NotNil(t, sf.Orchestrator())
	assert.Equal(t, "openai", sf.Client().ProviderName())
	assert.Nil(t, sf.MetricsHandler())
}

func TestNew_RejectsBadSettings(t *testing.T) {
	tests := map[string]func(*config.Config){
		"fragment policy": func(c *config.Config) { c.Extraction.FragmentPolicy = "ignore" },
		"validator":       func(c *config.Config) { c.Extraction.Validator = "jsonschema" },
		"provider":        func(c *config.Config) { c.LLM.Provider = "gemini" },
		"cache":           func(c *config.Config) { c.Cache.Enabled = true; c.Cache.Addr = "127.0.0.1:1" },
		"audit":           func(c *config.Config) { c.Audit.Enabled = true; c.Audit.Driver = "oracle" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			mutate(cfg)
			_, err := structflow.New(cfg)
			assert.Error(t, err)
		})
	}
}

func TestNewValidator(t *testing.T) {
	for _, name := range []string{"", "default", "openapi", "OpenAPI"} {
		v, err := structflow.NewValidator(name)
		require.NoError(t, err, name)
		assert.NotNil(t, v)
	}
	_, err := structflow.NewValidator("other")
	assert.Error(t, err)
}

func TestExtract_OverHTTP(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, fixtures.OpenAIStream(`{"name":"Jas`, `on","age":`, `25}`))
	}))
	defer server.Close()

	cfg := config.DefaultConfig()
	cfg.LLM.BaseURL = server.URL + "/v1"
	cfg.LLM.APIKey = "sk-test"

	sf, err := structflow.New(cfg, structflow.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	defer sf.Close(context.Background())

	var partials []any
	target, err := sf.Extract(context.Background(), personSchema(), "Jason is 25", func(partial any, _ string) error {
		partials = append(partials, partial)
		return nil
	})
	require.NoError(t, err)
	require.True(t, target.IsValid(), target.Errors())
	assert.Equal(t, []string{"/v1/chat/completions"}, paths)
	assert.Len(t, partials, 3)
}

func TestExtract_AllCollaborators(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := config.DefaultConfig()
	cfg.Extraction.MaxRetries = 2
	cfg.Extraction.Validator = "openapi"
	cfg.Cache.Enabled = true
	cfg.Cache.Addr = mr.Addr()
	cfg.Audit.Enabled = true
	cfg.Audit.DSN = filepath.Join(t.TempDir(), "audit.db")
	cfg.Metrics.Enabled = true

	stream := mocks.NewMockStreamingClient(
		fixtures.OpenAIStream(`{"name":"Jason","age":5}`),
		fixtures.OpenAIStream(`{"name":"Jason","age":25}`),
	)
	reg := prometheus.NewRegistry()
	sf, err := structflow.New(cfg,
		structflow.WithStreamingClient(stream),
		structflow.WithRegistry(reg),
		structflow.WithLogger(zaptest.NewLogger(t)),
	)
	require.NoError(t, err)
	defer sf.Close(context.Background())

	ctx := context.Background()
	form, err := structflow.ExtractForm[person](ctx, sf, "Jason is 25", nil)
	require.NoError(t, err)
	require.True(t, form.IsValid(), form.Errors())
	assert.Equal(t, person{Name: "Jason", Age: 25}, *form.Data())
	assert.Equal(t, 2, stream.CallCount())
	assert.Zero(t, stream.OpenBodies())

	// 第二次命中缓存，不再请求上游
	again, err := structflow.ExtractForm[person](ctx, sf, "Jason is 25", nil)
	require.NoError(t, err)
	assert.True(t, again.IsValid())
	assert.Equal(t, 2, stream.CallCount())
	assert.Len(t, mr.Keys(), 1)

	n, err := testutil.GatherAndCount(reg, "structflow_extraction_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "succeeded + cached")

	rec := httptest.NewRecorder()
	sf.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.True(t, strings.Contains(rec.Body.String(), "structflow_extraction_attempts_total"))
}

func TestExtractWithRetries_Exhausted(t *testing.T) {
	stream := mocks.NewMockStreamingClient(fixtures.OpenAIStream(`{"name":"Kid","age":5}`))
	sf, err := structflow.New(config.DefaultConfig(), structflow.WithStreamingClient(stream))
	require.NoError(t, err)
	defer sf.Close(context.Background())

	target, err := sf.ExtractWithRetries(context.Background(), personSchema(), "kid", 1, nil)
	require.NoError(t, err)
	assert.False(t, target.IsValid())
	assert.NotEmpty(t, target.Errors())
	assert.Equal(t, 2, stream.CallCount())
}

func TestClose_Idempotent(t *testing.T) {
	sf, err := structflow.New(config.DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, sf.Close(context.Background()))
	require.NoError(t, sf.Close(context.Background()))
}
