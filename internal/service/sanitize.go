package service

import (
	"regexp"
	"strings"
)

// Prompt-injection phrases stripped from user input before it reaches
// the completion provider.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+previous\s+instructions`),
	regexp.MustCompile(`(?i)you\s+are\s+now`),
	regexp.MustCompile(`(?i)forget\s+everything`),
	regexp.MustCompile(`(?i)disregard\s+all`),
}

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// maxMessageLength bounds sanitized input to prevent token exhaustion.
const maxMessageLength = 2000

// SanitizeMessage cleans user input before persistence and prompting:
// known injection phrases and HTML tags are stripped and the length is
// bounded. Tags are stripped before bounding so truncation cannot
// manufacture an unmatched tag fragment, and the bound cuts on rune
// boundaries.
func SanitizeMessage(input string) string {
	cleaned := input
	for _, p := range injectionPatterns {
		cleaned = p.ReplaceAllString(cleaned, "")
	}

	cleaned = htmlTagPattern.ReplaceAllString(cleaned, "")

	if runes := []rune(cleaned); len(runes) > maxMessageLength {
		cleaned = string(runes[:maxMessageLength])
	}

	return strings.TrimSpace(cleaned)
}
