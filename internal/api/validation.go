package api

import (
	"fmt"
	"net/http"
	"strconv"
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// parseLimit reads the "limit" query parameter. Missing means def; values
// above max are clamped.
func parseLimit(r *http.Request, def, max int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, ValidationError{Field: "limit", Message: "must be a positive integer"}
	}
	if n > max {
		n = max
	}
	return n, nil
}
