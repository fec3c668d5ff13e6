package server

// ValidationError is a client mistake in a request; it maps to 400.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }
