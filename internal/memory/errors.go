// Package memory implements the layered session-memory system: durable chat
// sessions, threshold-triggered summaries, and long-form story composition.
package memory

import "errors"

// Declined-operation sentinels. These mean "nothing to do", not a system
// fault; callers surface them as a refused operation with a reason.
var (
	// ErrInsufficientHistory indicates fewer than 2 messages exist to summarize.
	ErrInsufficientHistory = errors.New("not enough messages to summarize")
	// ErrSummarySkipped indicates an unforced trigger found fewer than 5 messages.
	ErrSummarySkipped = errors.New("summarization skipped: not enough new messages")
	// ErrNoSummaries indicates story composition found no summaries at all.
	ErrNoSummaries = errors.New("no summaries recorded")
	// ErrNoCurrentSession indicates a session-scoped operation with no current session.
	ErrNoCurrentSession = errors.New("no current session")
	// ErrInsufficientSessionContent indicates the current session has neither
	// summaries nor enough raw messages to compose a story from.
	ErrInsufficientSessionContent = errors.New("current session has too little content for a story")
)

// IsDeclined reports whether err is a declined operation rather than a fault.
func IsDeclined(err error) bool {
	return errors.Is(err, ErrInsufficientHistory) ||
		errors.Is(err, ErrSummarySkipped) ||
		errors.Is(err, ErrNoSummaries) ||
		errors.Is(err, ErrNoCurrentSession) ||
		errors.Is(err, ErrInsufficientSessionContent)
}
