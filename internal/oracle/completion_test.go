// internal/oracle/completion_test.go
package oracle

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/pagepilot/api/schemas"
)

func TestDefaultCompletion(t *testing.T) {
	testCases := []struct {
		name     string
		decision schemas.Decision
		want     bool
	}{
		{"complete flag", schemas.Decision{Complete: true}, true},
		{"status completed", schemas.Decision{Status: "completed"}, true},
		{"status completed mixed case", schemas.Decision{Status: " Completed "}, true},
		{"canonical phrase", schemas.Decision{Thinking: "The task is complete, the order confirmation is visible."}, true},
		{"objective phrase", schemas.Decision{Thinking: "Objective achieved."}, true},
		{"in progress", schemas.Decision{Status: "in_progress", Thinking: "still looking for the button"}, false},
		{"mentions completing without declaring", schemas.Decision{Thinking: "I will complete the form next."}, false},
		{"empty", schemas.Decision{}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, DefaultCompletion(tc.decision))
		})
	}
}

func TestStrictCompletionIgnoresProse(t *testing.T) {
	require.False(t, StrictCompletion(schemas.Decision{Thinking: "task complete"}))
	require.True(t, StrictCompletion(schemas.Decision{Complete: true}))
	require.True(t, StrictCompletion(schemas.Decision{Status: "COMPLETED"}))
	require.False(t, StrictCompletion(schemas.Decision{Status: "failed"}))
}
