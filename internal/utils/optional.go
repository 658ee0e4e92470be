// Package utils holds helpers for the optional fields in provider payloads.
package utils

// Value reads an optional provider field such as a token response's
// refresh_token. A missing field yields the zero value.
func Value[T any](v *T) T {
	if v == nil {
		var zero T
		return zero
	}
	return *v
}

// Ptr returns a pointer to a copy of v, for omitempty fields like the
// status endpoint's refreshAt.
func Ptr[T any](v T) *T {
	return &v
}
