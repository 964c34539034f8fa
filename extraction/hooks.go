package extraction

import (
	"context"
	"time"

	"github.com/BaSui01/structflow/structured"
)

// Outcome 标记一次尝试或一次运行的结果。
type Outcome string

const (
	OutcomeSucceeded     Outcome = "succeeded"
	OutcomeInvalid       Outcome = "invalid"
	OutcomeEmpty         Outcome = "empty"
	OutcomeFragmentError Outcome = "fragment_error"
	OutcomeFatal         Outcome = "fatal"
	OutcomeExhausted     Outcome = "exhausted"
	OutcomeCached        Outcome = "cached"
)

// Observer receives counters from the client and the orchestrator.
// Implementations must be safe for concurrent use.
type Observer interface {
	ObserveFragment(provider string, parsed bool)
	ObserveAttempt(provider string, outcome Outcome, elapsed time.Duration)
	ObserveRun(outcome Outcome)
}

type nopObserver struct{}

func (nopObserver) ObserveFragment(string, bool)                 {}
func (nopObserver) ObserveAttempt(string, Outcome, time.Duration) {}
func (nopObserver) ObserveRun(Outcome)                            {}

// ResultCache 缓存已通过校验的候选值。键由 Schema 与 prompt 决定，实现可再按模型划分。
type ResultCache interface {
	Lookup(ctx context.Context, schema *structured.JSONSchema, prompt string) (any, bool, error)
	Store(ctx context.Context, schema *structured.JSONSchema, prompt string, value any) error
	// Evict 删除不再满足 Schema 的缓存项。
	Evict(ctx context.Context, schema *structured.JSONSchema, prompt string) error
}

// AttemptRecord describes one finished attempt. Payload is the JSON encoding
// of the candidate, empty when none was produced.
type AttemptRecord struct {
	RunID    string
	Attempt  int
	Provider string
	Outcome  Outcome
	Errors   []structured.ParseError
	Payload  string
	Duration time.Duration
}

// AttemptRecorder persists attempt records, e.g. for auditing prompts.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, rec AttemptRecord) error
}
