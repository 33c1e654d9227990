// Package template extracts the replaceable tokens a dynamic email template
// requires, so ingested rows can be validated against the template's contract.
package template

import (
	"regexp"
	"strings"
)

var tagPattern = regexp.MustCompile(`\{\{([^}]*)\}\}`)

// insertKeyword marks helper-style tags where the variable is the second word,
// e.g. {{insert first_name}}.
const insertKeyword = "insert"

// ExtractTokens returns the variable names referenced by a template's subject
// and html body, deduplicated in first-seen order (body before subject).
// Section, inverted, closing, partial, comment, and unescaped tags are not
// variables and contribute nothing.
func ExtractTokens(subject, htmlContent string) []string {
	seen := make(map[string]struct{})
	var tokens []string

	for _, source := range []string{htmlContent, subject} {
		for _, match := range tagPattern.FindAllStringSubmatch(source, -1) {
			name, ok := variableName(match[1])
			if !ok {
				continue
			}
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			tokens = append(tokens, name)
		}
	}

	return tokens
}

func variableName(tag string) (string, bool) {
	trimmed := strings.TrimSpace(tag)
	if trimmed == "" {
		return "", false
	}

	switch trimmed[0] {
	case '#', '/', '^', '>', '&', '!', '{', '=':
		return "", false
	}

	words := strings.Fields(trimmed)
	if words[0] == insertKeyword && len(words) > 1 {
		return words[1], true
	}
	return words[0], true
}
