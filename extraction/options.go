package extraction

import (
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/BaSui01/structflow/llm/retry"
	"github.com/BaSui01/structflow/llm/streaming"
)

const instrumentationName = "github.com/BaSui01/structflow/extraction"

// FragmentPolicy 决定无法解析的载荷如何处理。
type FragmentPolicy int

const (
	// FragmentPolicySkip 记录并跳过该载荷（默认）。
	FragmentPolicySkip FragmentPolicy = iota
	// FragmentPolicyFailFast 以 FRAGMENT_PARSE 结束当前尝试，由编排器决定是否重试。
	FragmentPolicyFailFast
)

func (p FragmentPolicy) String() string {
	switch p {
	case FragmentPolicySkip:
		return "skip"
	case FragmentPolicyFailFast:
		return "fail_fast"
	default:
		return fmt.Sprintf("fragment_policy(%d)", int(p))
	}
}

// ParseFragmentPolicy accepts "skip" (or empty) and "fail_fast".
func ParseFragmentPolicy(s string) (FragmentPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "skip":
		return FragmentPolicySkip, nil
	case "fail_fast", "failfast", "fail-fast":
		return FragmentPolicyFailFast, nil
	default:
		return 0, fmt.Errorf("unknown fragment policy %q", s)
	}
}

// Option configures a Client or an Orchestrator. Options that only concern
// one of them are ignored by the other.
type Option func(*options)

type options struct {
	logger         *zap.Logger
	tracerProvider trace.TracerProvider
	observer       Observer

	// client
	fragmentPolicy FragmentPolicy
	decoderOpts    []streaming.DecoderOption

	// orchestrator
	retryPolicy   retry.Policy
	errorFeedback bool
	cache         ResultCache
	recorder      AttemptRecorder
}

func newOptions(opts []Option) options {
	o := options{
		logger:         zap.NewNop(),
		tracerProvider: noop.NewTracerProvider(),
		observer:       nopObserver{},
		retryPolicy:    retry.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger. nil keeps the no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTracerProvider sets the tracer provider used for spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracerProvider = tp
		}
	}
}

// WithObserver registers an observer for fragment, attempt and run counters.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithFragmentPolicy 设置不可解析载荷的处理策略。
func WithFragmentPolicy(p FragmentPolicy) Option {
	return func(o *options) { o.fragmentPolicy = p }
}

// WithMaxLineSize 限制事件流单行长度。
func WithMaxLineSize(n int) Option {
	return func(o *options) {
		o.decoderOpts = append(o.decoderOpts, streaming.WithMaxLineSize(n))
	}
}

// WithDecoderOptions passes options through to the stream decoder.
func WithDecoderOptions(opts ...streaming.DecoderOption) Option {
	return func(o *options) { o.decoderOpts = append(o.decoderOpts, opts...) }
}

// WithRetryPolicy sets the backoff between attempts. MaxRetries is taken from
// each Run call and the policy's value is ignored.
func WithRetryPolicy(p retry.Policy) Option {
	return func(o *options) { o.retryPolicy = p }
}

// WithRetryDelay is a shorthand for an exponential backoff starting at initial.
func WithRetryDelay(initial, maxDelay time.Duration) Option {
	return func(o *options) {
		o.retryPolicy.InitialDelay = initial
		o.retryPolicy.MaxDelay = maxDelay
		o.retryPolicy.Multiplier = 2.0
	}
}

// WithErrorFeedback 开启后，校验失败的错误信息会附加到下一次尝试的 prompt。
func WithErrorFeedback(enabled bool) Option {
	return func(o *options) { o.errorFeedback = enabled }
}

// WithCache sets the result cache consulted before the first attempt.
func WithCache(c ResultCache) Option {
	return func(o *options) { o.cache = c }
}

// WithRecorder sets the attempt recorder.
func WithRecorder(r AttemptRecorder) Option {
	return func(o *options) { o.recorder = r }
}
