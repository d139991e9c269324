package models

import "fmt"

// ValidationError reports a structural problem with an entity.
// Validation failures surface before any node runs.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
