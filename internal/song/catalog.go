// Package song resolves the song and prompt for a day's challenge from a
// bundled royalty-free catalog.
package song

import "time"

// Track is one royalty-free song in the bundled library.
type Track struct {
	ID         string
	Title      string
	Artist     string
	FileName   string
	DurationMs int64
	License    string
}

// Selection is the resolved song plus prompt for one date.
type Selection struct {
	SongTitle      string
	SongArtist     string
	SongURL        string
	SongDurationMs *int64
	Prompt         string
}

var library = []Track{
	{
		ID:         "kml-alien-spaceship-atmosphere",
		Title:      "Alien Spaceship Atmosphere",
		Artist:     "Kevin MacLeod",
		FileName:   "alien-spaceship-atmosphere.mp3",
		DurationMs: 124050,
		License:    "CC0 / Public Domain",
	},
	{
		ID:         "kml-horroriffic",
		Title:      "Horroriffic",
		Artist:     "Kevin MacLeod",
		FileName:   "horroriffic.mp3",
		DurationMs: 168070,
		License:    "CC0 / Public Domain",
	},
	{
		ID:         "kml-limit-70",
		Title:      "Limit 70",
		Artist:     "Kevin MacLeod",
		FileName:   "limit-70.mp3",
		DurationMs: 301660,
		License:    "CC0 / Public Domain",
	},
	{
		ID:         "kml-long-trail",
		Title:      "Long Trail",
		Artist:     "Kevin MacLeod",
		FileName:   "long-trail.mp3",
		DurationMs: 228620,
		License:    "CC0 / Public Domain",
	},
}

var prompts = []string{
	"Build a tiny visualizer that reacts to rhythm and keeps code readable.",
	"Jam a playful algorithm and annotate key moments with timeline markers.",
	"Create one bold interaction and refine it over the track timeline.",
	"Start minimal, then layer features every 15-30 seconds of the song.",
	"Turn one bug into a feature and narrate each patch in the feed.",
}

// TodayUTC returns the current UTC date truncated to midnight.
func TodayUTC() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// ResolveForDate picks the track and prompt for a date. The pick is
// deterministic so every server instance resolves the same challenge.
func ResolveForDate(date time.Time) Selection {
	day := date.UTC().Unix() / 86400
	track := library[int(day)%len(library)]
	prompt := prompts[int(day)%len(prompts)]

	duration := track.DurationMs
	return Selection{
		SongTitle:      track.Title,
		SongArtist:     track.Artist,
		SongURL:        "/songs/" + track.FileName,
		SongDurationMs: &duration,
		Prompt:         prompt,
	}
}
