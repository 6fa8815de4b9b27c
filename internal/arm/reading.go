package arm

import "fmt"

// Reading is the parsed result of a query command. A reading is either a
// value or unreadable; an unreadable reading keeps the raw response so the
// caller can log what the firmware actually said.
type Reading[T any] struct {
	value T
	ok    bool
	raw   string
}

// Value wraps a successfully parsed reading.
func Value[T any](v T) Reading[T] {
	return Reading[T]{value: v, ok: true}
}

// Unreadable marks a response that could not be parsed.
func Unreadable[T any](raw string) Reading[T] {
	return Reading[T]{raw: raw}
}

// Get returns the value and whether it was readable.
func (r Reading[T]) Get() (T, bool) {
	return r.value, r.ok
}

// OK reports whether the reading holds a value.
func (r Reading[T]) OK() bool {
	return r.ok
}

// Raw returns the unparsed response for unreadable readings.
func (r Reading[T]) Raw() string {
	return r.raw
}

func (r Reading[T]) String() string {
	if !r.ok {
		return fmt.Sprintf("unreadable(%q)", r.raw)
	}
	return fmt.Sprint(r.value)
}
