// internal/oracle/parse.go
package oracle

import (
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/pagepilot/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// fencedJSONRegex extracts a JSON object wrapped in a markdown code block.
// \x60 is a backtick; Go raw strings cannot contain them.
var fencedJSONRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*({.*})\\s*\x60\x60\x60")

// ParseDecision parses a model response into a Decision, tolerating the usual
// formatting drift: markdown fences, conversational preambles, trailing prose.
// A response with no parseable JSON is not an error; it becomes an empty
// decision carrying the raw text as thinking so the loop can continue.
func ParseDecision(raw string) schemas.Decision {
	candidate := extractJSON(raw)

	var decision schemas.Decision
	if candidate != "" {
		if err := json.UnmarshalFromString(candidate, &decision); err == nil {
			if decision.Thinking == "" {
				decision.Thinking = strings.TrimSpace(raw)
			}
			return decision
		}
	}

	return schemas.Decision{Thinking: strings.TrimSpace(raw)}
}

// extractJSON returns the most plausible JSON object embedded in the
// response, or "" when none is present.
func extractJSON(raw string) string {
	trimmed := strings.TrimSpace(raw)

	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		return trimmed
	}

	if matches := fencedJSONRegex.FindStringSubmatch(trimmed); len(matches) > 1 {
		return matches[1]
	}

	// Conversational wrapping: take the outermost brace pair.
	first := strings.Index(trimmed, "{")
	last := strings.LastIndex(trimmed, "}")
	if first != -1 && last > first {
		return trimmed[first : last+1]
	}
	return ""
}
