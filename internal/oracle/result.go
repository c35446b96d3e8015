package oracle

// Result is the outcome of a call that always yields a usable value: either
// the oracle's answer, or a deterministic fallback with the reason the
// oracle could not be used.
type Result[T any] struct {
	value    T
	degraded bool
	reason   string
}

// Ok wraps a value produced by the oracle.
func Ok[T any](v T) Result[T] {
	return Result[T]{value: v}
}

// Degraded wraps a fallback value.
func Degraded[T any](fallback T, reason string) Result[T] {
	if reason == "" {
		reason = "oracle unavailable"
	}
	return Result[T]{value: fallback, degraded: true, reason: reason}
}

// Value returns the wrapped value, oracle-produced or fallback.
func (r Result[T]) Value() T { return r.value }

// IsDegraded reports whether Value is a fallback.
func (r Result[T]) IsDegraded() bool { return r.degraded }

// Reason explains a degradation. Empty for Ok results.
func (r Result[T]) Reason() string { return r.reason }
