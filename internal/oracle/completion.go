// internal/oracle/completion.go
package oracle

import (
	"strings"

	"github.com/xkilldash9x/pagepilot/api/schemas"
)

// CompletionPredicate decides whether a decision declares the task done.
// Injected into the task loop so callers can demand stricter signals.
type CompletionPredicate func(schemas.Decision) bool

// completionPhrases are canonical declarations models emit when they consider
// a task done but forget to set the structured flags.
var completionPhrases = []string{
	"task complete",
	"task is complete",
	"task completed",
	"task has been completed",
	"objective achieved",
	"goal achieved",
}

// DefaultCompletion treats any of the structured completion signals as
// authoritative and falls back to scanning the thinking text for canonical
// completion phrases.
func DefaultCompletion(d schemas.Decision) bool {
	if d.Complete {
		return true
	}
	if strings.EqualFold(strings.TrimSpace(d.Status), "completed") {
		return true
	}
	thinking := strings.ToLower(d.Thinking)
	for _, phrase := range completionPhrases {
		if strings.Contains(thinking, phrase) {
			return true
		}
	}
	return false
}

// StrictCompletion only honors the explicit flag and status, ignoring prose.
func StrictCompletion(d schemas.Decision) bool {
	return d.Complete || strings.EqualFold(strings.TrimSpace(d.Status), "completed")
}
