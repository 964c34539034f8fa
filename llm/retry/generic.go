package retry

import "context"

// DoWithResult runs fn under r and returns the value of the last call,
// including when the error is non-nil. Callers that need the final value of an
// exhausted run (e.g. the last invalid result) read it alongside the
// *ExhaustedError.
//
//	val, err := retry.DoWithResult(ctx, r, func(attempt int) (int, error) {
//	    return 42, nil
//	})
func DoWithResult[T any](ctx context.Context, r *Retryer, fn func(attempt int) (T, error)) (T, error) {
	var last T
	err := r.Do(ctx, func(attempt int) error {
		v, err := fn(attempt)
		last = v
		return err
	})
	return last, err
}
