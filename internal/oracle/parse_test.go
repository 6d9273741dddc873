// internal/oracle/parse_test.go
package oracle

import (
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/pagepilot/api/schemas"
)

func TestParseDecisionRawJSON(t *testing.T) {
	raw := `{"thinking": "click the login button", "actions": [{"type": "click", "selector": "#login"}], "complete": false, "status": "in_progress"}`

	decision := ParseDecision(raw)

	require.Equal(t, "click the login button", decision.Thinking)
	require.Len(t, decision.Actions, 1)
	require.Equal(t, schemas.ActionClick, decision.Actions[0].Type)
	require.Equal(t, "#login", decision.Actions[0].Selector)
	require.False(t, decision.Complete)
}

func TestParseDecisionMarkdownFenced(t *testing.T) {
	raw := "```json\n{\"thinking\": \"done\", \"complete\": true, \"status\": \"completed\", \"result\": \"42\"}\n```"

	decision := ParseDecision(raw)

	require.True(t, decision.Complete)
	require.Equal(t, "completed", decision.Status)
	require.Equal(t, "42", decision.Result)
}

func TestParseDecisionConversationalWrapping(t *testing.T) {
	raw := `Sure! Here is my plan:
{"thinking": "scroll down to find the price", "actions": [{"type": "scroll", "direction": "down"}]}
Let me know if you need anything else.`

	decision := ParseDecision(raw)

	require.Equal(t, "scroll down to find the price", decision.Thinking)
	require.Len(t, decision.Actions, 1)
	require.Equal(t, schemas.ActionScroll, decision.Actions[0].Type)
}

func TestParseDecisionMalformedDegradesToThinking(t *testing.T) {
	raw := "I could not produce JSON this turn, the page looks broken."

	decision := ParseDecision(raw)

	// Malformed output is not an error; the loop carries on with the raw
	// text as thinking and no actions.
	require.Empty(t, decision.Actions)
	require.False(t, decision.Complete)
	require.Equal(t, raw, decision.Thinking)
}

func TestParseDecisionBrokenJSONKeepsRawText(t *testing.T) {
	raw := `{"thinking": "unterminated`

	decision := ParseDecision(raw)

	require.Empty(t, decision.Actions)
	require.Equal(t, raw, decision.Thinking)
}

// FuzzParseDecision asserts the parser never panics and always yields a
// usable decision, whatever the model emits.
func FuzzParseDecision(f *testing.F) {
	f.Add([]byte(`{"thinking": "t", "actions": [], "complete": true}`))
	f.Add([]byte("```json\n{\"status\": \"completed\"}\n```"))
	f.Add([]byte("no json at all"))
	f.Add([]byte(`prefix {"actions": [{"type": "wait"}]} suffix`))

	f.Fuzz(func(t *testing.T, data []byte) {
		consumer := fuzz.NewConsumer(data)
		raw, err := consumer.GetString()
		if err != nil {
			raw = string(data)
		}

		decision := ParseDecision(raw)
		if decision.Actions == nil && decision.Thinking == "" && raw != "" {
			// Whitespace-only inputs legitimately produce an empty decision.
			for _, r := range raw {
				if r != ' ' && r != '\n' && r != '\t' && r != '\r' {
					return
				}
			}
		}
	})
}
