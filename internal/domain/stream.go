package domain

// Stream message names pushed over the live channel.
const (
	StreamHello = "hello"
	StreamEvent = "event"
	StreamRun   = "run"
)

// Run actions carried by StreamRun messages.
const (
	RunActionStarted  = "started"
	RunActionFinished = "finished"
	RunActionFailed   = "failed"
)

// HelloData is the snapshot delivered synchronously to a newly connected
// viewer before any incremental messages.
type HelloData struct {
	DailyChallenge *DailyChallenge `json:"dailyChallenge"`
	LiveRun        *Run            `json:"liveRun"`
}

// EventData announces one newly ingested timeline event.
type EventData struct {
	RunID int64  `json:"runId"`
	Event *Event `json:"event"`
}

// RunData announces a run lifecycle transition.
type RunData struct {
	Action         string          `json:"action"`
	Run            *Run            `json:"run"`
	DailyChallenge *DailyChallenge `json:"dailyChallenge,omitempty"`
}
