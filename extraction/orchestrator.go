package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/structflow/llm/retry"
	"github.com/BaSui01/structflow/structured"
	"github.com/BaSui01/structflow/types"
)

// Extractor performs one extraction attempt. *Client implements it.
type Extractor interface {
	Get(ctx context.Context, schema *structured.JSONSchema, prompt string, onChunk ProgressFunc) (any, error)
}

// Orchestrator 驱动"提取 → 提交 → 校验"循环，校验失败时在次数上限内重试。
//
// 状态机：Attempting(n) → Succeeded | Attempting(n+1) | Exhausted。
// 传输、解码与回调错误立即终止运行；空结果与校验失败各消耗一次重试。
type Orchestrator struct {
	extractor Extractor
	provider  string

	logger        *zap.Logger
	tracer        trace.Tracer
	observer      Observer
	policy        retry.Policy
	errorFeedback bool
	cache         ResultCache
	recorder      AttemptRecorder
}

// NewOrchestrator creates an Orchestrator over extractor.
func NewOrchestrator(extractor Extractor, opts ...Option) *Orchestrator {
	o := newOptions(opts)

	provider := "unknown"
	if named, ok := extractor.(interface{ ProviderName() string }); ok {
		provider = named.ProviderName()
	}

	return &Orchestrator{
		extractor:     extractor,
		provider:      provider,
		logger:        o.logger.With(zap.String("component", "extraction_orchestrator")),
		tracer:        o.tracerProvider.Tracer(instrumentationName),
		observer:      o.observer,
		policy:        o.retryPolicy,
		errorFeedback: o.errorFeedback,
		cache:         o.cache,
		recorder:      o.recorder,
	}
}

// Run performs at most maxRetries+1 attempts. A negative maxRetries is
// treated as 0.
//
// It returns the first valid target. When every attempt yields an invalid or
// empty result the last target is returned with a nil error; the caller
// checks IsValid. Any other failure returns a nil target and the error.
func (o *Orchestrator) Run(ctx context.Context, newTarget TargetFactory, prompt string, maxRetries int, onChunk ProgressFunc) (Target, error) {
	if maxRetries < 0 {
		maxRetries = 0
	}
	runID := uuid.NewString()
	logger := o.logger.With(zap.String("run_id", runID))

	ctx, span := o.tracer.Start(ctx, "structflow.extraction.run",
		trace.WithAttributes(
			attribute.String("extraction.run_id", runID),
			attribute.String("llm.provider", o.provider),
			attribute.Int("extraction.max_retries", maxRetries),
		))
	defer span.End()

	if t, ok := o.fromCache(ctx, newTarget, prompt, logger); ok {
		span.SetAttributes(attribute.Bool("extraction.cached", true))
		o.observer.ObserveRun(OutcomeCached)
		return t, nil
	}

	policy := o.policy
	policy.MaxRetries = maxRetries
	retryer := retry.NewRetryer(policy, logger)

	var (
		attempts  int
		candidate any
	)
	current := prompt
	target, err := retry.DoWithResult(ctx, retryer, func(attempt int) (Target, error) {
		attempts = attempt + 1
		t, err := newTarget()
		if err != nil {
			return nil, fmt.Errorf("create target: %w", err)
		}

		started := time.Now()
		value, err := o.extractor.Get(ctx, t.Schema(), current, onChunk)
		elapsed := time.Since(started)

		if err != nil {
			outcome := attemptOutcome(err)
			o.finishAttempt(ctx, logger, runID, attempt, outcome, nil, nil, elapsed, err)
			if outcome == OutcomeFatal {
				return nil, err
			}
			// 空结果：返回未提交的目标
			return t, retry.WrapRetryable(err)
		}

		t.Submit(value)
		if t.IsValid() {
			candidate = value
			o.finishAttempt(ctx, logger, runID, attempt, OutcomeSucceeded, value, nil, elapsed, nil)
			return t, nil
		}

		errs := t.Errors()
		o.finishAttempt(ctx, logger, runID, attempt, OutcomeInvalid, value, errs, elapsed, nil)
		if o.errorFeedback {
			current = FeedbackPrompt(prompt, errs)
		}
		return t, retry.WrapRetryable(types.NewError(types.ErrValidationFailed,
			(&structured.ValidationErrors{Errors: errs}).Error()))
	})

	span.SetAttributes(attribute.Int("extraction.attempts", attempts))

	var exhausted *retry.ExhaustedError
	switch {
	case err == nil:
		o.toCache(ctx, target.Schema(), prompt, candidate, logger)
		o.observer.ObserveRun(OutcomeSucceeded)
		logger.Debug("extraction succeeded", zap.Int("attempts", attempts))
		return target, nil

	case errors.As(err, &exhausted):
		span.SetAttributes(attribute.Bool("extraction.valid", false))
		o.observer.ObserveRun(OutcomeExhausted)
		logger.Warn("extraction retries exhausted",
			zap.Int("attempts", exhausted.Attempts),
			zap.Error(exhausted.Err),
		)
		return target, nil

	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.observer.ObserveRun(OutcomeFatal)
		logger.Error("extraction failed", zap.Int("attempts", attempts), zap.Error(err))
		return nil, err
	}
}

// attemptOutcome classifies an extractor error. Only empty results and
// fail-fast fragment errors are retried.
func attemptOutcome(err error) Outcome {
	switch types.GetErrorCode(err) {
	case types.ErrExtractionEmpty:
		return OutcomeEmpty
	case types.ErrFragmentParse:
		return OutcomeFragmentError
	default:
		return OutcomeFatal
	}
}

func (o *Orchestrator) finishAttempt(ctx context.Context, logger *zap.Logger, runID string, attempt int,
	outcome Outcome, value any, errs []structured.ParseError, elapsed time.Duration, cause error) {
	o.observer.ObserveAttempt(o.provider, outcome, elapsed)

	fields := []zap.Field{
		zap.Int("attempt", attempt),
		zap.String("outcome", string(outcome)),
		zap.Duration("elapsed", elapsed),
	}
	if cause != nil {
		fields = append(fields, zap.Error(cause))
	}
	if len(errs) > 0 {
		fields = append(fields, zap.Int("validation_errors", len(errs)))
	}
	logger.Debug("extraction attempt finished", fields...)

	if o.recorder == nil {
		return
	}
	rec := AttemptRecord{
		RunID:    runID,
		Attempt:  attempt,
		Provider: o.provider,
		Outcome:  outcome,
		Errors:   errs,
		Duration: elapsed,
	}
	if value != nil {
		if raw, err := json.Marshal(value); err == nil {
			rec.Payload = string(raw)
		}
	}
	if cause != nil && len(errs) == 0 {
		rec.Errors = []structured.ParseError{{Message: cause.Error()}}
	}
	if err := o.recorder.RecordAttempt(ctx, rec); err != nil {
		logger.Warn("failed to record attempt", zap.Int("attempt", attempt), zap.Error(err))
	}
}

// fromCache 在第一次尝试前查询缓存。命中但校验不通过的值被忽略。
func (o *Orchestrator) fromCache(ctx context.Context, newTarget TargetFactory, prompt string, logger *zap.Logger) (Target, bool) {
	if o.cache == nil {
		return nil, false
	}
	t, err := newTarget()
	if err != nil {
		return nil, false
	}
	value, ok, err := o.cache.Lookup(ctx, t.Schema(), prompt)
	if err != nil {
		logger.Warn("result cache lookup failed", zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	t.Submit(value)
	if !t.IsValid() {
		logger.Debug("cached value no longer valid", zap.Int("errors", len(t.Errors())))
		if err := o.cache.Evict(ctx, t.Schema(), prompt); err != nil {
			logger.Warn("result cache evict failed", zap.Error(err))
		}
		return nil, false
	}
	logger.Debug("result cache hit")
	return t, true
}

func (o *Orchestrator) toCache(ctx context.Context, schema *structured.JSONSchema, prompt string, value any, logger *zap.Logger) {
	if o.cache == nil {
		return
	}
	if err := o.cache.Store(ctx, schema, prompt, value); err != nil {
		logger.Warn("result cache store failed", zap.Error(err))
	}
}

// FeedbackPrompt appends the validation errors of a rejected answer to prompt.
func FeedbackPrompt(prompt string, errs []structured.ParseError) string {
	if len(errs) == 0 {
		return prompt
	}
	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\n\nThe previous answer was rejected for these reasons:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteByte('\n')
	}
	b.WriteString("Answer again, fixing every problem listed above.")
	return b.String()
}

// SubmitForm runs o with Form[T] targets and returns the final form.
func SubmitForm[T any](ctx context.Context, o *Orchestrator, prompt string, maxRetries int, onChunk ProgressFunc, opts ...structured.FormOption) (*structured.Form[T], error) {
	factory, err := FormFactory[T](opts...)
	if err != nil {
		return nil, err
	}
	t, err := o.Run(ctx, factory, prompt, maxRetries, onChunk)
	if err != nil {
		return nil, err
	}
	return t.(*structured.Form[T]), nil
}
