package chat

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/keeperhq/keeper/internal/llm"
	"github.com/keeperhq/keeper/internal/memory"
	"github.com/keeperhq/keeper/internal/models"
)

// historyWindow is how many prior messages a narration turn carries.
const historyWindow = 5

// Retriever fetches rule passages relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]string, error)
}

// Assistant orchestrates a keeper-facing turn: retrieval-grounded Q&A and
// scene narration with session recording.
type Assistant struct {
	retriever  Retriever
	gen        llm.TextGenerator
	store      *memory.Store
	summarizer *memory.Summarizer
	logger     *zap.Logger
}

func NewAssistant(
	retriever Retriever,
	gen llm.TextGenerator,
	store *memory.Store,
	summarizer *memory.Summarizer,
	logger *zap.Logger,
) *Assistant {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assistant{
		retriever:  retriever,
		gen:        gen,
		store:      store,
		summarizer: summarizer,
		logger:     logger,
	}
}

// Ask answers a rules question grounded in retrieved passages. It does not
// touch session memory.
func (a *Assistant) Ask(ctx context.Context, question string) (string, error) {
	docs, err := a.retriever.Retrieve(ctx, question)
	if err != nil {
		return "", fmt.Errorf("retrieve rules: %w", err)
	}
	answer, err := a.gen.Complete(ctx, askSystemPrompt, askPrompt(question, joinDocs(docs)))
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	return answer, nil
}

// Narrate produces a keeper narration for a player action, grounded in
// retrieved rules and the last few turns, then records both sides of the
// exchange. When the recorded messages cross a summarization boundary, one
// non-forced summarization runs; its failure is logged, never returned, so a
// narration turn cannot be lost to a background recap.
func (a *Assistant) Narrate(ctx context.Context, scriptSummary, currentStage, playerAction string) (string, error) {
	docs, err := a.retriever.Retrieve(ctx, playerAction)
	if err != nil {
		return "", fmt.Errorf("retrieve rules: %w", err)
	}

	history, err := a.store.RecentMessages(historyWindow)
	if err != nil {
		return "", fmt.Errorf("load history: %w", err)
	}

	prompt := narratePrompt(scriptSummary, currentStage, playerAction, renderHistory(history), joinDocs(docs))
	narration, err := a.gen.Complete(ctx, narrateSystemPrompt, prompt)
	if err != nil {
		return "", fmt.Errorf("generate narration: %w", err)
	}

	kpTrigger, err := a.store.AddMessage(models.RoleKP, playerAction, scriptSummary, currentStage)
	if err != nil {
		return "", fmt.Errorf("record action: %w", err)
	}
	aiTrigger, err := a.store.AddMessage(models.RoleAI, narration, scriptSummary, currentStage)
	if err != nil {
		return "", fmt.Errorf("record narration: %w", err)
	}

	if kpTrigger || aiTrigger {
		if _, err := a.summarizer.Trigger(ctx, false); err != nil && !memory.IsDeclined(err) {
			a.logger.Warn("summarization after turn failed", zap.Error(err))
		}
	}
	return narration, nil
}

func joinDocs(docs []string) string {
	if len(docs) == 0 {
		return "No relevant material found."
	}
	return strings.Join(docs, "\n\n")
}

func renderHistory(msgs []models.Message) string {
	if len(msgs) == 0 {
		return "No prior exchanges."
	}
	var b strings.Builder
	for _, m := range msgs {
		prefix := "KP"
		if m.Role == models.RoleAI {
			prefix = "AI"
		}
		fmt.Fprintf(&b, "%s: %s\n", prefix, m.Content)
	}
	return b.String()
}

const askSystemPrompt = `You are an experienced Call of Cthulhu keeper's assistant. You answer rules questions precisely, citing the mechanics involved, and keep the tone of a seasoned table referee.`

const narrateSystemPrompt = `You are a narration partner for a Call of Cthulhu keeper. You describe scenes and consequences in the voice of the keeper, sustaining cosmic-horror atmosphere without ever deciding for the players.`

func askPrompt(question, context string) string {
	return fmt.Sprintf(`Reference material:
%s

Question: %s

Answer the question from the reference material above. If the material does not cover it, say so honestly and offer general Call of Cthulhu guidance instead.`, context, question)
}

func narratePrompt(script, stage, action, history, knowledge string) string {
	if script == "" {
		script = "Not set."
	}
	if stage == "" {
		stage = "Not set."
	}
	return fmt.Sprintf(`Scenario background:
%s

Current stage:
%s

Player action:
%s

Recent exchanges:
%s

Relevant rules:
%s

Words you may draw on for flavor (optional, never mandatory): unspeakable, eldritch, nameless, creeping, lingering, droning, chanting, time-worn, shunned, weathered, altar, shrine.

Narrate the outcome of the player action. Requirements:
1. Stay true to the scenario background and the mood of the current stage.
2. Give the action a concrete, plausible consequence.
3. Where a skill or characteristic roll applies, call for it explicitly, grounded in the rules above.
4. Keep the mythos atmosphere of mystery and dread; make the scene vivid and specific.
5. 150-300 characters.

Begin the narration now:`, script, stage, action, history, knowledge)
}
