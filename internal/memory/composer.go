package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/keeperhq/keeper/internal/llm"
	"github.com/keeperhq/keeper/internal/models"
)

// storyFromMessagesFetch is how many raw messages are used when a session has
// no summaries to compose from.
const storyFromMessagesFetch = 50

// Composer reconstructs long-form narratives from accumulated summaries (or,
// for a summary-less session, directly from raw messages) and persists them
// to the story archive.
type Composer struct {
	store      *Store
	summaries  *SummaryLog
	archive    *StoryArchive
	summarizer *Summarizer
	gen        llm.TextGenerator
	style      string
	logger     *zap.Logger
	now        func() time.Time
}

// NewComposer creates a composer. style is one of the config narrative style
// values; logger may be nil.
func NewComposer(
	store *Store,
	summaries *SummaryLog,
	archive *StoryArchive,
	summarizer *Summarizer,
	gen llm.TextGenerator,
	style string,
	logger *zap.Logger,
) *Composer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Composer{
		store:      store,
		summaries:  summaries,
		archive:    archive,
		summarizer: summarizer,
		gen:        gen,
		style:      style,
		logger:     logger,
		now:        time.Now,
	}
}

// GenerateCompleteStory composes one continuous narrative from every summary
// across all sessions and archives it with story type "full". A non-forced
// summarization runs first to catch up any pending tail messages; its decline
// or failure never blocks composition.
func (c *Composer) GenerateCompleteStory(ctx context.Context) (*models.Story, error) {
	c.catchUp(ctx)

	all, err := c.summaries.All()
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, ErrNoSummaries
	}

	script := ""
	sessionID := ""
	if info, err := c.store.CurrentSessionInfo(); err == nil && info != nil {
		script = info.ScriptSummary
		sessionID = info.SessionID
	}

	text, err := c.composeFromSummaries(ctx, all, script)
	if err != nil {
		return nil, err
	}
	entry := models.Story{
		ID:             uuid.New().String(),
		Timestamp:      c.now(),
		Story:          text,
		ScriptSummary:  script,
		SummariesCount: len(all),
		SessionID:      sessionID,
		StoryType:      models.StoryTypeFull,
	}
	if err := c.archive.Append(entry); err != nil {
		return nil, fmt.Errorf("persist story: %w", err)
	}
	c.logger.Info("complete story archived", zap.Int("summaries", len(all)))
	return &entry, nil
}

// GenerateSessionStory composes a narrative scoped to the current session.
// With summaries present it behaves like GenerateCompleteStory filtered to
// the session (story type "session"); without any it synthesizes directly
// from the last raw messages (story type "session_from_messages"), failing
// with ErrInsufficientSessionContent when fewer than 2 messages exist.
func (c *Composer) GenerateSessionStory(ctx context.Context) (*models.Story, error) {
	info, err := c.store.CurrentSessionInfo()
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, ErrNoCurrentSession
	}

	sessionSummaries, err := c.summaries.BySession(info.SessionID)
	if err != nil {
		return nil, err
	}

	if len(sessionSummaries) == 0 {
		return c.storyFromMessages(ctx, info)
	}

	c.catchUp(ctx)
	sessionSummaries, err = c.summaries.BySession(info.SessionID)
	if err != nil {
		return nil, err
	}

	text, err := c.composeFromSummaries(ctx, sessionSummaries, info.ScriptSummary)
	if err != nil {
		return nil, err
	}
	entry := models.Story{
		ID:             uuid.New().String(),
		Timestamp:      c.now(),
		Story:          text,
		ScriptSummary:  info.ScriptSummary,
		SummariesCount: len(sessionSummaries),
		SessionID:      info.SessionID,
		StoryType:      models.StoryTypeSession,
	}
	if err := c.archive.Append(entry); err != nil {
		return nil, fmt.Errorf("persist story: %w", err)
	}
	return &entry, nil
}

func (c *Composer) storyFromMessages(ctx context.Context, info *models.SessionInfo) (*models.Story, error) {
	msgs, err := c.store.RecentMessages(storyFromMessagesFetch)
	if err != nil {
		return nil, err
	}
	if len(msgs) < summaryMinMessages {
		return nil, ErrInsufficientSessionContent
	}

	transcript, _, stage := renderTranscript(msgs)
	register := resolveRegister(c.style, info.ScriptSummary)
	prompt := storyFromMessagesPrompt(info.ScriptSummary, stage, register, transcript)

	text, err := c.gen.Complete(ctx, "", prompt)
	if err != nil {
		return nil, fmt.Errorf("generate story: %w", err)
	}
	entry := models.Story{
		ID:            uuid.New().String(),
		Timestamp:     c.now(),
		Story:         text,
		ScriptSummary: info.ScriptSummary,
		SessionID:     info.SessionID,
		StoryType:     models.StoryTypeSessionFromMessages,
	}
	if err := c.archive.Append(entry); err != nil {
		return nil, fmt.Errorf("persist story: %w", err)
	}
	return &entry, nil
}

func (c *Composer) composeFromSummaries(ctx context.Context, summaries []models.Summary, script string) (string, error) {
	sorted := make([]models.Summary, len(summaries))
	copy(sorted, summaries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	var chapters strings.Builder
	for i, s := range sorted {
		fmt.Fprintf(&chapters, "Chapter %d:\n%s\n\n", i+1, s.Summary)
	}

	text, err := c.gen.Complete(ctx, "", completeStoryPrompt(script, chapters.String()))
	if err != nil {
		return "", fmt.Errorf("generate story: %w", err)
	}
	return text, nil
}

// catchUp runs one opportunistic, non-forced summarization. Declines are
// expected; real failures are logged and ignored so composition can proceed
// with whatever summaries already exist.
func (c *Composer) catchUp(ctx context.Context) {
	if _, err := c.summarizer.Trigger(ctx, false); err != nil && !IsDeclined(err) {
		c.logger.Warn("catch-up summarization failed", zap.Error(err))
	}
}

// Archive returns every archived story in insertion order.
func (c *Composer) Archive() ([]models.Story, error) {
	return c.archive.All()
}

// LatestStory returns the most recently timestamped story, or nil.
func (c *Composer) LatestStory() (*models.Story, error) {
	return c.archive.Latest()
}

// ClearAll truncates the summary log and story archive and clears the
// current-session pointer. The only destructive operation in the subsystem.
func (c *Composer) ClearAll() error {
	if err := c.summaries.Clear(); err != nil {
		return err
	}
	if err := c.archive.Clear(); err != nil {
		return err
	}
	return c.store.ClearCurrentSession()
}

// Stats aggregates memory counters for display.
func (c *Composer) Stats() (*models.MemoryStats, error) {
	all, err := c.summaries.All()
	if err != nil {
		return nil, err
	}
	stories, err := c.archive.All()
	if err != nil {
		return nil, err
	}
	info, err := c.store.CurrentSessionInfo()
	if err != nil {
		return nil, err
	}

	stats := &models.MemoryStats{
		TotalSummaries:           len(all),
		TotalStories:             len(stories),
		MessagesUntilNextSummary: summaryTriggerEvery,
	}
	if len(all) > 0 {
		t := all[len(all)-1].Timestamp
		stats.LastSummaryTime = &t
	}
	if len(stories) > 0 {
		t := stories[len(stories)-1].Timestamp
		stats.LastStoryTime = &t
	}
	if info != nil {
		sessionSummaries, err := c.summaries.BySession(info.SessionID)
		if err != nil {
			return nil, err
		}
		stats.CurrentSessionSummaries = len(sessionSummaries)
		stats.CurrentSessionMessages = info.MessageCount
		stats.MessagesUntilNextSummary = summaryTriggerEvery - info.MessageCount%summaryTriggerEvery
		stats.CurrentSessionID = info.SessionID
	}
	return stats, nil
}

func completeStoryPrompt(script, chapters string) string {
	return fmt.Sprintf(`You are a scenario chronicler for Call of Cthulhu tabletop campaigns. Weave the following chapter recaps into one complete, continuous story.

Scenario background:
%s

Chapter recaps:
%s
Requirements:
1. Register: match the language register to the scenario's setting and era (e.g. archaic for medieval settings, semi-classical for the 1920s, plain for modern ones).
2. Structure: an opening that establishes background and protagonists, development following the chapter order, a climax at the most dangerous turn, and a close that states where the story stands.
3. Keep the Cthulhu-mythos atmosphere of dread and mystery; keep chapters logically connected; highlight the investigators' courage and wit.
4. Third-person omniscient; 1500-2500 characters; add atmosphere and interiority where it helps.
5. Invent nothing beyond the recaps; preserve key clues and turning points.

Write the story now:`, script, chapters)
}

func storyFromMessagesPrompt(script, stage, register, transcript string) string {
	return fmt.Sprintf(`You are a scenario chronicler for Call of Cthulhu tabletop campaigns. Turn the following session log into one complete, coherent story.

Scenario background:
%s

Current stage:
%s

Language register: %s

Session log:
%s

Requirements:
1. Follow the register above throughout.
2. Structure: an opening that sets the scene, development in the order the log unfolds, and a closing picture of where events stand now.
3. Keep the mythos atmosphere; keep the plot coherent; center the investigators' actions and encounters.
4. Third-person omniscient; 800-1500 characters; describe only what has already happened.

Write the story now:`, script, stage, register, transcript)
}
