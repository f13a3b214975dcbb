package middleware

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Input validation and sanitization utilities

const MaxPromptLength = 8000

var tenantPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// ValidateTenantID validates tenant ID format
func ValidateTenantID(tenant string) error {
	if tenant == "" {
		return fmt.Errorf("tenant ID cannot be empty")
	}
	if !tenantPattern.MatchString(tenant) {
		return fmt.Errorf("invalid tenant ID format (alphanumeric, dash, underscore only, max 64 chars)")
	}
	return nil
}

// ValidateAnalysisID validates analysis ID format (uuid)
func ValidateAnalysisID(id string) error {
	if id == "" {
		return fmt.Errorf("analysis ID cannot be empty")
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid analysis ID format")
	}
	return nil
}

// ValidateCSVPath validates the CSV path submitted to the API. Existence is
// checked separately by the analysis service.
func ValidateCSVPath(path string) error {
	if path == "" {
		return fmt.Errorf("csv_path is required")
	}
	if !strings.EqualFold(filepath.Ext(path), ".csv") {
		return fmt.Errorf("csv_path must point to a .csv file")
	}

	cleaned := filepath.Clean(path)
	for _, part := range strings.Split(filepath.ToSlash(cleaned), "/") {
		if part == ".." {
			return fmt.Errorf("path traversal detected")
		}
	}

	blocked := []string{"/etc", "/proc", "/sys", "/dev", "/boot"}
	for _, b := range blocked {
		if cleaned == b || strings.HasPrefix(cleaned, b+"/") {
			return fmt.Errorf("access to %s is not allowed", b)
		}
	}

	dangerous := []string{"$(", "`", "&", "|", ";", "\n", "\r", "'", "\x00"}
	for _, d := range dangerous {
		if strings.Contains(path, d) {
			return fmt.Errorf("invalid characters in path")
		}
	}
	return nil
}

// ValidatePrompt checks the free-text question and returns it sanitized.
func ValidatePrompt(prompt string) (string, error) {
	p := SanitizeString(prompt)
	if p == "" {
		return "", fmt.Errorf("prompt is required")
	}
	if len([]rune(p)) > MaxPromptLength {
		return "", fmt.Errorf("prompt too long (max %d characters)", MaxPromptLength)
	}
	return p, nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")

	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}
	return strings.TrimSpace(result.String())
}

// ValidateLimit validates pagination page size
func ValidateLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}
