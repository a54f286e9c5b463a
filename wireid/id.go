package wireid

import "github.com/google/uuid"

// New returns a fresh process-unique identifier string.
func New() string {
	return uuid.NewString()
}
