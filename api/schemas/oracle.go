// api/schemas/oracle.go
package schemas

// DecisionRequest is everything the reasoning oracle sees for one iteration.
type DecisionRequest struct {
	TaskDescription string
	Screenshot      *Screenshot
	PageSummary     string
	History         []Message
}

// Decision is the oracle's structured answer: a small batch of actions, its
// free-text rationale, and a completion judgment. The structured fields are
// not always reliable, so consumers combine them through a completion
// predicate rather than trusting any single signal.
type Decision struct {
	Actions  []Action `json:"actions"`
	Thinking string   `json:"thinking,omitempty"`
	Complete bool     `json:"complete,omitempty"`
	Status   string   `json:"status,omitempty"`
	Result   string   `json:"result,omitempty"`
}
