package domain

import "time"

// DailyChallenge is the shared prompt and song for one UTC day.
type DailyChallenge struct {
	ID             int64     `json:"id"`
	Date           time.Time `json:"date"`
	SongTitle      string    `json:"songTitle"`
	SongArtist     string    `json:"songArtist"`
	SongURL        string    `json:"songUrl"`
	SongDurationMs *int64    `json:"songDurationMs"`
	Prompt         string    `json:"prompt"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Run is one livecoding performance attempt.
type Run struct {
	ID               int64      `json:"id"`
	DailyChallengeID int64      `json:"dailyChallengeId"`
	AgentName        string     `json:"agentName"`
	Status           RunStatus  `json:"status"`
	StartedAt        time.Time  `json:"startedAt"`
	EndedAt          *time.Time `json:"endedAt"`
	FinalSummary     *string    `json:"finalSummary"`
	CreatedAt        time.Time  `json:"createdAt"`
	RunStartAtMs     int64      `json:"runStartAtMs"`
	LiveSlot         *string    `json:"liveSlot"`
}

// Event is one timestamped occurrence within a run's timeline. AtMs is the
// logical ordering key (milliseconds from song start); Ts is the wall-clock
// creation time and is informational only.
type Event struct {
	ID     int64     `json:"id"`
	RunID  int64     `json:"runId"`
	Ts     time.Time `json:"ts"`
	AtMs   int64     `json:"atMs"`
	Type   EventType `json:"type"`
	Text   *string   `json:"text"`
	Patch  *string   `json:"patch"`
	Cmd    *string   `json:"cmd"`
	Stdout *string   `json:"stdout"`
	Stderr *string   `json:"stderr"`
}

// Comment is a spectator note on a run.
type Comment struct {
	ID    int64     `json:"id"`
	RunID int64     `json:"runId"`
	Ts    time.Time `json:"ts"`
	Name  string    `json:"name"`
	Text  string    `json:"text"`
}

// Like is a one-per-(run, source, name) endorsement of a run.
type Like struct {
	ID     int64      `json:"id"`
	RunID  int64      `json:"runId"`
	Name   string     `json:"name"`
	Source LikeSource `json:"source"`
	Ts     time.Time  `json:"ts"`
}

// AgentToken is a registered agent's capability token, stored hashed.
type AgentToken struct {
	ID         int64      `json:"id"`
	AgentName  string     `json:"agentName"`
	TokenHash  string     `json:"-"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastUsedAt *time.Time `json:"lastUsedAt"`
}

// RunCounts carries per-run aggregate counts for the archive feed.
type RunCounts struct {
	Events   int64 `json:"events"`
	Comments int64 `json:"comments"`
	Likes    int64 `json:"likes"`
}

// RunWithChallenge is a run joined with its challenge and counts.
type RunWithChallenge struct {
	Run
	DailyChallenge *DailyChallenge `json:"dailyChallenge,omitempty"`
	Counts         *RunCounts      `json:"counts,omitempty"`
}
