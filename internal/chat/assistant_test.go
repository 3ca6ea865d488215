package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/keeperhq/keeper/internal/llm"
	"github.com/keeperhq/keeper/internal/memory"
	"github.com/keeperhq/keeper/internal/models"
)

type fakeRetriever struct {
	docs    []string
	err     error
	queries []string
}

func (f *fakeRetriever) Retrieve(_ context.Context, query string) ([]string, error) {
	f.queries = append(f.queries, query)
	return f.docs, f.err
}

func newTestAssistant(t *testing.T, retriever Retriever, gen llm.TextGenerator) (*Assistant, *memory.Store, *memory.SummaryLog) {
	t.Helper()
	dir := t.TempDir()
	store, err := memory.NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	log, err := memory.NewSummaryLog(dir)
	if err != nil {
		t.Fatal(err)
	}
	summarizer := memory.NewSummarizer(store, log, gen, nil)
	return NewAssistant(retriever, gen, store, summarizer, nil), store, log
}

func TestAssistant_AskGroundsAnswerInRetrieval(t *testing.T) {
	retriever := &fakeRetriever{docs: []string{"Sanity rolls use 1d100.", "Failing one costs Sanity."}}
	gen := &llm.MockGenerator{Default: "Roll 1d100 against current Sanity."}
	assistant, store, _ := newTestAssistant(t, retriever, gen)

	answer, err := assistant.Ask(context.Background(), "How do sanity rolls work?")
	if err != nil {
		t.Fatal(err)
	}
	if answer != "Roll 1d100 against current Sanity." {
		t.Errorf("answer = %q", answer)
	}
	if len(retriever.queries) != 1 || retriever.queries[0] != "How do sanity rolls work?" {
		t.Errorf("queries = %v", retriever.queries)
	}
	prompt := gen.Calls[0].UserPrompt
	if !strings.Contains(prompt, "Sanity rolls use 1d100.") || !strings.Contains(prompt, "Failing one costs Sanity.") {
		t.Errorf("prompt missing retrieved passages:\n%s", prompt)
	}

	// Q&A never touches session memory.
	count, _ := store.TotalMessageCount()
	if count != 0 {
		t.Errorf("message count = %d", count)
	}
}

func TestAssistant_AskWithEmptyRetrieval(t *testing.T) {
	retriever := &fakeRetriever{}
	gen := &llm.MockGenerator{Default: "answer"}
	assistant, _, _ := newTestAssistant(t, retriever, gen)

	if _, err := assistant.Ask(context.Background(), "q"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(gen.Calls[0].UserPrompt, "No relevant material found.") {
		t.Error("empty retrieval should be stated in the prompt")
	}
}

func TestAssistant_NarrateRecordsBothSides(t *testing.T) {
	retriever := &fakeRetriever{docs: []string{"Listen is an opposed roll."}}
	gen := &llm.MockGenerator{Default: "The floorboards creak above you."}
	assistant, store, _ := newTestAssistant(t, retriever, gen)

	narration, err := assistant.Narrate(context.Background(), "manor script", "act 1", "I listen at the door")
	if err != nil {
		t.Fatal(err)
	}
	if narration != "The floorboards creak above you." {
		t.Errorf("narration = %q", narration)
	}
	if retriever.queries[0] != "I listen at the door" {
		t.Errorf("retrieval query = %q", retriever.queries[0])
	}

	msgs, _ := store.RecentMessages(10)
	if len(msgs) != 2 {
		t.Fatalf("recorded messages = %d", len(msgs))
	}
	if msgs[0].Role != models.RoleKP || msgs[0].Content != "I listen at the door" {
		t.Errorf("kp message = %+v", msgs[0])
	}
	if msgs[1].Role != models.RoleAI || msgs[1].Content != narration {
		t.Errorf("ai message = %+v", msgs[1])
	}
}

func TestAssistant_NarrateIncludesHistoryWindow(t *testing.T) {
	retriever := &fakeRetriever{}
	gen := &llm.MockGenerator{Default: "n"}
	assistant, store, _ := newTestAssistant(t, retriever, gen)

	for i := 0; i < 8; i++ {
		if _, err := store.AddMessage(models.RoleKP, "old turn", "", ""); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := assistant.Narrate(context.Background(), "", "", "act"); err != nil {
		t.Fatal(err)
	}
	prompt := gen.Calls[0].UserPrompt
	if got := strings.Count(prompt, "old turn"); got != historyWindow {
		t.Errorf("history lines in prompt = %d, want %d", got, historyWindow)
	}
}

func TestAssistant_NarrateTriggersSummarization(t *testing.T) {
	retriever := &fakeRetriever{}
	gen := &llm.MockGenerator{Default: "turn text"}
	assistant, store, log := newTestAssistant(t, retriever, gen)

	// 13 pre-existing messages; the narration's two appends cross 15.
	for i := 0; i < 13; i++ {
		if _, err := store.AddMessage(models.RoleKP, "filler", "", ""); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := assistant.Narrate(context.Background(), "", "", "act"); err != nil {
		t.Fatal(err)
	}
	summaries, _ := log.All()
	if len(summaries) != 1 {
		t.Fatalf("summaries after boundary = %d", len(summaries))
	}
	// One narration call plus one summarization call.
	if gen.CallCount() != 2 {
		t.Errorf("generator calls = %d", gen.CallCount())
	}
}

// failAfterGenerator succeeds for the first n completions, then errors.
type failAfterGenerator struct {
	n     int
	calls int
}

func (g *failAfterGenerator) Complete(context.Context, string, string) (string, error) {
	g.calls++
	if g.calls > g.n {
		return "", errors.New("backend down")
	}
	return "the narration", nil
}

func TestAssistant_NarrateSurvivesSummarizationFailure(t *testing.T) {
	retriever := &fakeRetriever{}
	gen := &failAfterGenerator{n: 1}
	assistant, store, log := newTestAssistant(t, retriever, gen)

	for i := 0; i < 13; i++ {
		if _, err := store.AddMessage(models.RoleKP, "filler", "", ""); err != nil {
			t.Fatal(err)
		}
	}

	narration, err := assistant.Narrate(context.Background(), "", "", "act")
	if err != nil {
		t.Fatalf("summarization failure must not fail the turn: %v", err)
	}
	if narration != "the narration" {
		t.Errorf("narration = %q", narration)
	}
	count, _ := store.TotalMessageCount()
	if count != 15 {
		t.Errorf("message count = %d", count)
	}
	if summaries, _ := log.All(); len(summaries) != 0 {
		t.Errorf("summaries = %d", len(summaries))
	}
}

func TestAssistant_RetrievalFailurePropagates(t *testing.T) {
	retriever := &fakeRetriever{err: errors.New("index gone")}
	gen := &llm.MockGenerator{Default: "x"}
	assistant, store, _ := newTestAssistant(t, retriever, gen)

	if _, err := assistant.Narrate(context.Background(), "", "", "act"); err == nil {
		t.Fatal("expected retrieval error")
	}
	// Nothing recorded on a failed turn.
	count, _ := store.TotalMessageCount()
	if count != 0 {
		t.Errorf("message count = %d", count)
	}
}
