package middleware

import (
	"fmt"
	"regexp"
	"strings"
)

// Input validation and sanitization utilities

// ValidateFormat checks the report format against the allowed list
func ValidateFormat(format string) error {
	allowed := map[string]bool{
		"json": true,
		"html": true,
		"pdf":  true,
	}
	if !allowed[strings.ToLower(format)] {
		return fmt.Errorf("invalid format: %s (allowed: json, html, pdf)", format)
	}
	return nil
}

// ValidateSeverity checks a severity filter value
func ValidateSeverity(severity string) error {
	if severity == "" {
		return nil // Optional filter
	}
	allowed := map[string]bool{
		"low":      true,
		"medium":   true,
		"high":     true,
		"critical": true,
	}
	if !allowed[strings.ToLower(severity)] {
		return fmt.Errorf("invalid severity: %s (allowed: low, medium, high, critical)", severity)
	}
	return nil
}

// ValidateCategory checks a category filter value
func ValidateCategory(category string) error {
	if category == "" {
		return nil // Optional filter
	}
	allowed := map[string]bool{
		"atmosphere":  true,
		"ux":          true,
		"visual_bug":  true,
		"performance": true,
		"other":       true,
	}
	if !allowed[strings.ToLower(category)] {
		return fmt.Errorf("invalid category: %s (allowed: atmosphere, ux, visual_bug, performance, other)", category)
	}
	return nil
}

// ValidateTriageStatus checks a triage status filter value
func ValidateTriageStatus(status string) error {
	if status == "" {
		return nil // Optional filter
	}
	allowed := map[string]bool{
		"pending":  true,
		"accepted": true,
		"rejected": true,
	}
	if !allowed[strings.ToLower(status)] {
		return fmt.Errorf("invalid status: %s (allowed: pending, accepted, rejected)", status)
	}
	return nil
}

// ValidateTestRunID validates test run ID format
func ValidateTestRunID(runID string) error {
	if runID == "" {
		return fmt.Errorf("test_run_id cannot be empty")
	}

	// Allow alphanumeric, dash, underscore (max 128 chars)
	pattern := `^[a-zA-Z0-9_-]{1,128}$`
	matched, _ := regexp.MatchString(pattern, runID)
	if !matched {
		return fmt.Errorf("invalid test_run_id format (alphanumeric, dash, underscore only, max 128 chars)")
	}
	return nil
}

// ValidateID validates a UUID path parameter
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("id cannot be empty")
	}
	pattern := `^[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}$`
	matched, _ := regexp.MatchString(pattern, strings.ToLower(id))
	if !matched {
		return fmt.Errorf("invalid id format")
	}
	return nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	// Remove null bytes
	input = strings.ReplaceAll(input, "\x00", "")

	// Remove control characters
	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}

	return strings.TrimSpace(result.String())
}

// ValidateLimit validates pagination limit
func ValidateLimit(limit int) int {
	if limit <= 0 {
		return 20 // default
	}
	if limit > 100 {
		return 100 // max limit
	}
	return limit
}

// ValidateOffset validates pagination offset
func ValidateOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
