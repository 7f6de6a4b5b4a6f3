package connect

import "fmt"

// ValidationError reports caller misuse of Start or Show.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("connect: invalid %s: %s", e.Field, e.Reason)
}
