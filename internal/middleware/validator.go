package middleware

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxQuestionLength bounds the question text sent to the model.
const MaxQuestionLength = 2000

// Dataset names accepted by the upload endpoint.
const (
	DatasetSales   = "sales"
	DatasetSupport = "support"
)

// ValidateQuestion checks a question after sanitising.
func ValidateQuestion(q string) error {
	if q == "" {
		return fmt.Errorf("question cannot be empty")
	}
	if n := utf8.RuneCountInString(q); n > MaxQuestionLength {
		return fmt.Errorf("question too long: %d characters (max %d)", n, MaxQuestionLength)
	}
	return nil
}

// ValidateDatasetName checks the {name} path parameter.
func ValidateDatasetName(name string) error {
	switch strings.ToLower(name) {
	case DatasetSales, DatasetSupport:
		return nil
	}
	return fmt.Errorf("invalid dataset: %s (allowed: sales, support)", name)
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
