package analysis

import "errors"

var (
	// ErrMissingAPIKey indicates the agent credential variable is not set.
	ErrMissingAPIKey = errors.New("api key environment variable not set")
	// ErrCSVNotFound indicates the input CSV path does not exist.
	ErrCSVNotFound = errors.New("csv file not found")
	// ErrNotFound indicates no analysis matches the given id.
	ErrNotFound = errors.New("analysis not found")
)
