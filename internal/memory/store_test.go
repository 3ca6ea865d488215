package memory

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/keeperhq/keeper/internal/models"
)

// fakeClock hands out strictly increasing timestamps so time-derived session
// ids never collide within a test.
func fakeClock() func() time.Time {
	t := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	store.now = fakeClock()
	return store
}

func TestStore_ImplicitSessionOnFirstMessage(t *testing.T) {
	store := newTestStore(t)

	if info, _ := store.CurrentSessionInfo(); info != nil {
		t.Fatal("fresh store should have no current session")
	}
	if _, err := store.AddMessage(models.RoleKP, "we enter the manor", "script", "stage 1"); err != nil {
		t.Fatal(err)
	}
	info, err := store.CurrentSessionInfo()
	if err != nil {
		t.Fatal(err)
	}
	if info == nil {
		t.Fatal("AddMessage should implicitly start a session")
	}
	if info.MessageCount != 1 {
		t.Errorf("message count = %d", info.MessageCount)
	}
	if info.ScriptSummary != "script" {
		t.Errorf("script summary = %q", info.ScriptSummary)
	}
}

func TestStore_TriggerLaw(t *testing.T) {
	store := newTestStore(t)
	for i := 1; i <= 45; i++ {
		trigger, err := store.AddMessage(models.RoleKP, "msg", "", "")
		if err != nil {
			t.Fatal(err)
		}
		want := i%15 == 0
		if trigger != want {
			t.Errorf("message %d: trigger = %v, want %v", i, trigger, want)
		}
	}
}

func TestStore_RecentMessages(t *testing.T) {
	store := newTestStore(t)
	contents := []string{"one", "two", "three", "four"}
	for _, c := range contents {
		if _, err := store.AddMessage(models.RoleAI, c, "", ""); err != nil {
			t.Fatal(err)
		}
	}
	msgs, err := store.RecentMessages(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[0].Content != "three" || msgs[1].Content != "four" {
		t.Errorf("recent messages = %+v", msgs)
	}
	all, _ := store.RecentMessages(100)
	if len(all) != 4 {
		t.Errorf("expected all 4 messages, got %d", len(all))
	}
}

func TestStore_SessionIsolation(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.AddMessage(models.RoleKP, "old session message", "", ""); err != nil {
		t.Fatal(err)
	}
	oldID, _ := store.CurrentSessionID()

	newID, err := store.EndCurrentAndStartNew("new script", "act 1")
	if err != nil {
		t.Fatal(err)
	}
	if newID == oldID {
		t.Fatalf("new session id %q should differ from %q", newID, oldID)
	}

	msgs, err := store.RecentMessages(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Errorf("new session should have no messages, got %d", len(msgs))
	}

	// The old session's log is retained read-only.
	old, err := store.SessionByID(oldID)
	if err != nil {
		t.Fatal(err)
	}
	if old == nil || len(old.Messages) != 1 || old.Messages[0].Content != "old session message" {
		t.Errorf("old session = %+v", old)
	}
}

func TestStore_RecoversFromDanglingPointer(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, sessionsFile)
	corrupt := `{"sessions": [], "current_session_id": "20200101_000000"}`
	if err := os.WriteFile(path, []byte(corrupt), 0o644); err != nil {
		t.Fatal(err)
	}

	store, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	store.now = fakeClock()

	if _, err := store.AddMessage(models.RoleKP, "recovered", "", ""); err != nil {
		t.Fatal(err)
	}
	info, _ := store.CurrentSessionInfo()
	if info == nil || info.SessionID == "20200101_000000" {
		t.Fatalf("expected a fresh session, got %+v", info)
	}
	if info.MessageCount != 1 {
		t.Errorf("message count = %d", info.MessageCount)
	}
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	store.now = fakeClock()
	if _, err := store.AddMessage(models.RoleKP, "durable", "", ""); err != nil {
		t.Fatal(err)
	}
	id, _ := store.CurrentSessionID()

	reopened, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	gotID, _ := reopened.CurrentSessionID()
	if gotID != id {
		t.Errorf("current session after reopen = %q, want %q", gotID, id)
	}
	msgs, _ := reopened.RecentMessages(10)
	if len(msgs) != 1 || msgs[0].Content != "durable" {
		t.Errorf("messages after reopen = %+v", msgs)
	}
}

func TestStore_AllSessionsInfo(t *testing.T) {
	store := newTestStore(t)
	first, _ := store.StartNewSession("short", "")
	if _, err := store.AddMessage(models.RoleKP, "m", "", ""); err != nil {
		t.Fatal(err)
	}
	second, err := store.EndCurrentAndStartNew("second script", "")
	if err != nil {
		t.Fatal(err)
	}

	infos, err := store.AllSessionsInfo()
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(infos))
	}
	// Newest first.
	if infos[0].SessionID != second || infos[1].SessionID != first {
		t.Errorf("order = %s, %s", infos[0].SessionID, infos[1].SessionID)
	}
	if !infos[0].IsCurrent || infos[1].IsCurrent {
		t.Error("current flags wrong")
	}
	if infos[1].MessageCount != 1 {
		t.Errorf("old session message count = %d", infos[1].MessageCount)
	}
}
