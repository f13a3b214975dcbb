package analysis

import (
	"fmt"
	"os"

	domain "github.com/bryanwahyu/csvanalyst/internal/domain/analysis"
)

// ValidateEnvironment checks that the credential variable is set and non-empty.
// lookup is usually os.LookupEnv.
func ValidateEnvironment(lookup func(string) (string, bool), name string) error {
	if v, ok := lookup(name); !ok || v == "" {
		return fmt.Errorf("%w: %s", domain.ErrMissingAPIKey, name)
	}
	return nil
}

// ValidateCSVPath checks that the CSV path exists. Content is never read.
func ValidateCSVPath(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty path", domain.ErrCSVNotFound)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrCSVNotFound, path)
	}
	return nil
}
