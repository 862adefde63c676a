package intent

// Result is the tagged ok/err value exchanged across actor boundaries.
// The zero value is neither ok nor err and reads as "absent".
type Result[T any] struct {
	value T
	err   *Error
	ok    bool
}

func Ok[T any](v T) Result[T] {
	return Result[T]{value: v, ok: true}
}

func Err[T any](e *Error) Result[T] {
	if e == nil {
		e = NewError(CodeUnknown, "")
	}
	return Result[T]{err: e}
}

func (r Result[T]) IsOk() bool  { return r.ok }
func (r Result[T]) IsErr() bool { return r.err != nil }

// IsZero reports whether the result carries neither a value nor an error.
func (r Result[T]) IsZero() bool { return !r.ok && r.err == nil }

// Value returns the ok value and whether it was present.
func (r Result[T]) Value() (T, bool) { return r.value, r.ok }

// Error returns the err payload, nil for ok results.
func (r Result[T]) Error() *Error { return r.err }

// Match calls exactly one of onOk or onErr. Absent results call neither.
func (r Result[T]) Match(onOk func(T), onErr func(*Error)) {
	switch {
	case r.ok:
		onOk(r.value)
	case r.err != nil:
		onErr(r.err)
	}
}

// QuoteResult is the outcome of a single quote request.
type QuoteResult = Result[Quote]
