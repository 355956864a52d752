package domain

import "strings"

// Payload length limits. Oversized values are rejected, never truncated.
const (
	MaxAgentName    = 60
	MaxCommentName  = 40
	MaxCommentText  = 500
	MaxLikeName     = 40
	MaxEventText    = 4000
	MaxEventPatch   = 30000
	MaxEventCmd     = 4000
	MaxEventOutput  = 50000
	MaxFinalSummary = 6000
)

// TrimAndValidate trims value and returns it, or "" when empty or over maxLen.
func TrimAndValidate(value string, maxLen int) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" || len(trimmed) > maxLen {
		return ""
	}
	return trimmed
}

// ValidOptional reports whether an optional payload field is within bounds.
// A nil value is always valid.
func ValidOptional(value *string, maxLen int) bool {
	return value == nil || len(*value) <= maxLen
}
