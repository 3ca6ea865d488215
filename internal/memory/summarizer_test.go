package memory

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/keeperhq/keeper/internal/llm"
	"github.com/keeperhq/keeper/internal/models"
)

func newTestMemory(t *testing.T) (*Store, *SummaryLog, *StoryArchive) {
	t.Helper()
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	store.now = fakeClock()
	log, err := NewSummaryLog(dir)
	if err != nil {
		t.Fatal(err)
	}
	archive, err := NewStoryArchive(dir)
	if err != nil {
		t.Fatal(err)
	}
	return store, log, archive
}

func addMessages(t *testing.T, store *Store, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		role := models.RoleKP
		if i%2 == 1 {
			role = models.RoleAI
		}
		if _, err := store.AddMessage(role, "turn content", "a 1920s seaside town", "act 1"); err != nil {
			t.Fatal(err)
		}
	}
}

func TestSummarizer_InsufficientHistory(t *testing.T) {
	store, log, _ := newTestMemory(t)
	gen := &llm.MockGenerator{Default: "recap"}
	s := NewSummarizer(store, log, gen, nil)

	addMessages(t, store, 1)
	if _, err := s.Trigger(context.Background(), false); !errors.Is(err, ErrInsufficientHistory) {
		t.Fatalf("expected ErrInsufficientHistory, got %v", err)
	}
	if gen.CallCount() != 0 {
		t.Error("generator should not be called")
	}
}

func TestSummarizer_SkippedWhenNotWorthwhile(t *testing.T) {
	store, log, _ := newTestMemory(t)
	gen := &llm.MockGenerator{Default: "recap"}
	s := NewSummarizer(store, log, gen, nil)

	addMessages(t, store, 3)
	if _, err := s.Trigger(context.Background(), false); !errors.Is(err, ErrSummarySkipped) {
		t.Fatalf("expected ErrSummarySkipped, got %v", err)
	}

	// Forced, the same 3 messages are summarized.
	summary, err := s.Trigger(context.Background(), true)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Summary != "recap" {
		t.Errorf("summary = %q", summary.Summary)
	}
}

func TestSummarizer_WindowAndAttribution(t *testing.T) {
	store, log, _ := newTestMemory(t)
	gen := &llm.MockGenerator{Default: "the investigators pressed on"}
	s := NewSummarizer(store, log, gen, nil)
	s.now = fakeClock()

	addMessages(t, store, 20)
	sessionID, _ := store.CurrentSessionID()

	summary, err := s.Trigger(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if summary.SessionID != sessionID {
		t.Errorf("summary attributed to %q, want %q", summary.SessionID, sessionID)
	}
	if summary.ScriptSummary != "a 1920s seaside town" {
		t.Errorf("script summary = %q", summary.ScriptSummary)
	}
	if summary.ID == "" {
		t.Error("summary id should be set")
	}

	// The prompt carries a role-prefixed transcript of at most 15 messages.
	if gen.CallCount() != 1 {
		t.Fatalf("generator calls = %d", gen.CallCount())
	}
	prompt := gen.Calls[0].UserPrompt
	if !strings.Contains(prompt, "KP: turn content") || !strings.Contains(prompt, "Narrator: turn content") {
		t.Errorf("prompt missing transcript:\n%s", prompt)
	}
	if got := strings.Count(prompt, "turn content"); got != 15 {
		t.Errorf("window size in prompt = %d, want 15", got)
	}

	persisted, _ := log.All()
	if len(persisted) != 1 {
		t.Fatalf("persisted summaries = %d", len(persisted))
	}
}

func TestSummarizer_GenerationFailureLeavesMessages(t *testing.T) {
	store, log, _ := newTestMemory(t)
	gen := &llm.MockGenerator{Err: errors.New("backend down")}
	s := NewSummarizer(store, log, gen, nil)

	addMessages(t, store, 15)
	if _, err := s.Trigger(context.Background(), false); err == nil {
		t.Fatal("expected generation error")
	}
	// Messages persist regardless of summarization outcome.
	count, _ := store.TotalMessageCount()
	if count != 15 {
		t.Errorf("message count = %d", count)
	}
	persisted, _ := log.All()
	if len(persisted) != 0 {
		t.Errorf("no summary should be persisted, got %d", len(persisted))
	}
}
