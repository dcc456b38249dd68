package storage

import "fmt"

// Error is returned by Storage implementations. Code carries the provider's
// error code (e.g. "AccessDenied", "EntityTooLarge") when one was returned.
type Error struct {
	Op   string
	Key  string
	Code string
	Err  error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s object %q: %s: %v", e.Op, e.Key, e.Code, e.Err)
	}
	return fmt.Sprintf("%s object %q: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
