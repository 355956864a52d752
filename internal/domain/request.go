package domain

// StartRequest is the body of POST /v1/agent/start.
type StartRequest struct {
	AgentName string `json:"agentName"`
}

// EventSubmission is the body of POST /v1/agent/event. Only the fields
// relevant to Type should be populated.
type EventSubmission struct {
	RunID  int64   `json:"runId"`
	AtMs   int64   `json:"atMs"`
	Type   string  `json:"type"`
	Text   *string `json:"text"`
	Patch  *string `json:"patch"`
	Cmd    *string `json:"cmd"`
	Stdout *string `json:"stdout"`
	Stderr *string `json:"stderr"`
}

// FinishRequest is the body of POST /v1/agent/finish.
type FinishRequest struct {
	RunID        int64   `json:"runId"`
	FinalSummary *string `json:"finalSummary"`
}

// FailRequest is the body of POST /v1/agent/fail.
type FailRequest struct {
	RunID  int64  `json:"runId"`
	Reason string `json:"reason"`
}

// RegisterRequest is the body of POST /v1/agent/register.
type RegisterRequest struct {
	AgentName string `json:"agentName"`
}

// CommentRequest is the body of POST /v1/runs/:id/comments.
type CommentRequest struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// LikeRequest is the body of POST /v1/runs/:id/likes.
type LikeRequest struct {
	Name   string `json:"name"`
	Source string `json:"source"`
}
