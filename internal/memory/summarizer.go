package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/keeperhq/keeper/internal/llm"
	"github.com/keeperhq/keeper/internal/models"
)

const (
	// summaryFetchCount is how many recent messages are considered per trigger.
	summaryFetchCount = 50
	// summaryWindowSize is how many of those are actually summarized.
	summaryWindowSize = 15
	// summaryMinMessages is the absolute floor below which summarization fails.
	summaryMinMessages = 2
	// summaryWorthwhile is the floor below which an unforced trigger is skipped.
	summaryWorthwhile = 5
)

// Summarizer condenses a window of recent session messages into a narrative
// recap and appends it to the summary log.
type Summarizer struct {
	store  *Store
	log    *SummaryLog
	gen    llm.TextGenerator
	logger *zap.Logger
	now    func() time.Time
}

// NewSummarizer creates a summarizer. logger may be nil.
func NewSummarizer(store *Store, log *SummaryLog, gen llm.TextGenerator, logger *zap.Logger) *Summarizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Summarizer{store: store, log: log, gen: gen, logger: logger, now: time.Now}
}

// Trigger runs one summarization over the most recent messages of the
// current session. Policy: fewer than 2 messages fails with
// ErrInsufficientHistory; fewer than 5 and not forced is ErrSummarySkipped;
// otherwise the most recent 15 messages (or all of them, when fewer exist)
// are summarized. The session id is captured together with the window, so a
// session switch between selection and persistence cannot mis-attribute the
// summary. The caller's already-persisted messages are never affected by a
// summarization failure.
func (s *Summarizer) Trigger(ctx context.Context, force bool) (*models.Summary, error) {
	msgs, err := s.store.RecentMessages(summaryFetchCount)
	if err != nil {
		return nil, fmt.Errorf("fetch recent messages: %w", err)
	}
	sessionID, err := s.store.CurrentSessionID()
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}

	if len(msgs) < summaryMinMessages {
		return nil, ErrInsufficientHistory
	}
	if !force && len(msgs) < summaryWorthwhile {
		return nil, ErrSummarySkipped
	}

	window := msgs
	if len(window) > summaryWindowSize {
		window = window[len(window)-summaryWindowSize:]
	}

	transcript, script, stage := renderTranscript(window)
	prompt := summaryPrompt(script, stage, transcript)

	text, err := s.gen.Complete(ctx, "", prompt)
	if err != nil {
		return nil, fmt.Errorf("generate summary: %w", err)
	}

	entry := models.Summary{
		ID:            uuid.New().String(),
		Timestamp:     s.now(),
		Summary:       text,
		ScriptSummary: script,
		CurrentStage:  stage,
		SessionID:     sessionID,
	}
	if err := s.log.Append(entry); err != nil {
		return nil, fmt.Errorf("persist summary: %w", err)
	}
	s.logger.Info("summary recorded",
		zap.String("session_id", sessionID),
		zap.Int("window", len(window)),
	)
	return &entry, nil
}

// All returns every recorded summary in insertion order.
func (s *Summarizer) All() ([]models.Summary, error) {
	return s.log.All()
}

// BySession returns the summaries attributed to one session.
func (s *Summarizer) BySession(sessionID string) ([]models.Summary, error) {
	return s.log.BySession(sessionID)
}

// renderTranscript renders a role-prefixed transcript of the window and
// returns the latest non-empty script summary and stage found in it.
func renderTranscript(window []models.Message) (transcript, script, stage string) {
	var b strings.Builder
	for _, msg := range window {
		switch msg.Role {
		case models.RoleKP:
			fmt.Fprintf(&b, "KP: %s\n", msg.Content)
		case models.RoleAI:
			fmt.Fprintf(&b, "Narrator: %s\n", msg.Content)
		}
		if msg.ScriptSummary != "" {
			script = msg.ScriptSummary
		}
		if msg.CurrentStage != "" {
			stage = msg.CurrentStage
		}
	}
	return b.String(), script, stage
}

func summaryPrompt(script, stage, transcript string) string {
	return fmt.Sprintf(`Condense the following Call of Cthulhu tabletop session log into a plot recap of 300-500 characters.

Scenario background: %s
Current stage: %s

Session log:
%s

Requirements:
1. Narrate the investigators' actions and encounters as a story.
2. Highlight important discoveries, clues, and plot turns.
3. Keep the unsettling Cthulhu tone.
4. Stay between 300 and 500 characters.
5. Write in the third person, as a record of an expedition.

Recap:`, script, stage, transcript)
}
