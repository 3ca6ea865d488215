// Package models defines core data structures for sessions, summaries, stories, and retrieval.
package models

import "time"

// Message roles. The keeper (KP) drives the scenario; the assistant narrates.
const (
	RoleKP = "kp"
	RoleAI = "ai"
)

// Story types recorded in the archive.
const (
	StoryTypeFull                = "full"
	StoryTypeSession             = "session"
	StoryTypeSessionFromMessages = "session_from_messages"
)

// Message is a single timestamped entry in a session log. Immutable once appended.
type Message struct {
	Timestamp     time.Time `json:"timestamp"`
	Role          string    `json:"role"`
	Content       string    `json:"content"`
	ScriptSummary string    `json:"script_summary"`
	CurrentStage  string    `json:"current_stage"`
}

// Session is one isolated run of narrative messages.
type Session struct {
	SessionID     string    `json:"session_id"`
	StartTime     time.Time `json:"start_time"`
	ScriptSummary string    `json:"script_summary"`
	CurrentStage  string    `json:"current_stage"`
	Messages      []Message `json:"messages"`
	MessageCount  int       `json:"message_count"`
}

// SessionInfo is the message-free view of a session used by listings and stats.
type SessionInfo struct {
	SessionID     string    `json:"session_id"`
	StartTime     time.Time `json:"start_time"`
	ScriptSummary string    `json:"script_summary"`
	CurrentStage  string    `json:"current_stage"`
	MessageCount  int       `json:"message_count"`
	IsCurrent     bool      `json:"is_current"`
}

// Summary is a condensed recap of a window of session messages. Append-only.
type Summary struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Summary       string    `json:"summary"`
	ScriptSummary string    `json:"script_summary"`
	CurrentStage  string    `json:"current_stage"`
	SessionID     string    `json:"session_id"`
}

// Story is a long-form narrative reconstructed from summaries or raw messages.
type Story struct {
	ID             string    `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	Story          string    `json:"story"`
	ScriptSummary  string    `json:"script_summary"`
	SummariesCount int       `json:"summaries_count"`
	SessionID      string    `json:"session_id"`
	StoryType      string    `json:"story_type"`
}

// MemoryStats aggregates counters across sessions, summaries, and stories.
type MemoryStats struct {
	TotalSummaries           int        `json:"total_summaries"`
	CurrentSessionSummaries  int        `json:"current_session_summaries"`
	TotalStories             int        `json:"total_stories"`
	CurrentSessionMessages   int        `json:"current_session_messages"`
	MessagesUntilNextSummary int        `json:"messages_until_next_summary"`
	LastSummaryTime          *time.Time `json:"last_summary_time,omitempty"`
	LastStoryTime            *time.Time `json:"last_story_time,omitempty"`
	CurrentSessionID         string     `json:"current_session_id"`
}
