package memory

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/keeperhq/keeper/internal/models"
	"github.com/keeperhq/keeper/pkg/utils"
)

// summaryTriggerEvery is the message-count interval at which AddMessage
// signals that a summarization should run.
const summaryTriggerEvery = 15

// sessionsDoc is the on-disk shape of the session store.
type sessionsDoc struct {
	Sessions         []models.Session `json:"sessions"`
	CurrentSessionID string           `json:"current_session_id"`
}

// Store is the durable record of chat sessions. Exactly one session may be
// current at a time; ended sessions stay in the log read-only. All mutations
// are whole-document read-modify-write under the store mutex.
type Store struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// NewStore opens (or initializes) the session store inside dir.
func NewStore(dir string) (*Store, error) {
	s := &Store{
		path: filepath.Join(dir, sessionsFile),
		now:  time.Now,
	}
	var doc sessionsDoc
	if err := loadJSON(s.path, &doc); err != nil {
		return nil, err
	}
	if doc.Sessions == nil {
		doc.Sessions = []models.Session{}
		if err := saveJSON(s.path, &doc); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// StartNewSession mints a time-derived session id, appends a fresh session
// record, and makes it current. Prior sessions are never deleted.
// Sub-second concurrent calls can collide on the id; accepted limitation.
func (s *Store) StartNewSession(scriptSummary, currentStage string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startNewSessionLocked(scriptSummary, currentStage)
}

func (s *Store) startNewSessionLocked(scriptSummary, currentStage string) (string, error) {
	var doc sessionsDoc
	if err := loadJSON(s.path, &doc); err != nil {
		return "", err
	}
	now := s.now()
	session := models.Session{
		SessionID:     now.Format("20060102_150405"),
		StartTime:     now,
		ScriptSummary: scriptSummary,
		CurrentStage:  currentStage,
		Messages:      []models.Message{},
	}
	doc.Sessions = append(doc.Sessions, session)
	doc.CurrentSessionID = session.SessionID
	if err := saveJSON(s.path, &doc); err != nil {
		return "", err
	}
	return session.SessionID, nil
}

// AddMessage appends a message to the current session, creating one
// implicitly when none is current (or when the current pointer is dangling).
// Non-empty scriptSummary/currentStage also update the session record.
// The returned bool is the summarization trigger: true exactly when the new
// message count is a multiple of 15.
func (s *Store) AddMessage(role, content, scriptSummary, currentStage string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var doc sessionsDoc
	if err := loadJSON(s.path, &doc); err != nil {
		return false, err
	}
	if doc.CurrentSessionID == "" || findSession(doc.Sessions, doc.CurrentSessionID) == nil {
		// No current session, or the pointer is dangling (store corruption):
		// recover by starting a new session.
		if _, err := s.startNewSessionLocked(scriptSummary, currentStage); err != nil {
			return false, err
		}
		if err := loadJSON(s.path, &doc); err != nil {
			return false, err
		}
	}
	session := findSession(doc.Sessions, doc.CurrentSessionID)
	if session == nil {
		return false, fmt.Errorf("session %s missing after creation", doc.CurrentSessionID)
	}

	session.Messages = append(session.Messages, models.Message{
		Timestamp:     s.now(),
		Role:          role,
		Content:       content,
		ScriptSummary: scriptSummary,
		CurrentStage:  currentStage,
	})
	session.MessageCount++
	if scriptSummary != "" {
		session.ScriptSummary = scriptSummary
	}
	if currentStage != "" {
		session.CurrentStage = currentStage
	}
	if err := saveJSON(s.path, &doc); err != nil {
		return false, err
	}
	return session.MessageCount%summaryTriggerEvery == 0, nil
}

// RecentMessages returns the last count messages of the current session in
// chronological order; empty when no session is current.
func (s *Store) RecentMessages(count int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var doc sessionsDoc
	if err := loadJSON(s.path, &doc); err != nil {
		return nil, err
	}
	session := findSession(doc.Sessions, doc.CurrentSessionID)
	if doc.CurrentSessionID == "" || session == nil {
		return nil, nil
	}
	msgs := session.Messages
	if count > 0 && len(msgs) > count {
		msgs = msgs[len(msgs)-count:]
	}
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// CurrentSessionInfo returns the message-free view of the current session,
// or nil when none is current.
func (s *Store) CurrentSessionInfo() (*models.SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var doc sessionsDoc
	if err := loadJSON(s.path, &doc); err != nil {
		return nil, err
	}
	session := findSession(doc.Sessions, doc.CurrentSessionID)
	if doc.CurrentSessionID == "" || session == nil {
		return nil, nil
	}
	return &models.SessionInfo{
		SessionID:     session.SessionID,
		StartTime:     session.StartTime,
		ScriptSummary: session.ScriptSummary,
		CurrentStage:  session.CurrentStage,
		MessageCount:  session.MessageCount,
		IsCurrent:     true,
	}, nil
}

// SessionByID returns a copy of the session with the given id, or nil.
func (s *Store) SessionByID(id string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var doc sessionsDoc
	if err := loadJSON(s.path, &doc); err != nil {
		return nil, err
	}
	session := findSession(doc.Sessions, id)
	if session == nil {
		return nil, nil
	}
	copied := *session
	copied.Messages = append([]models.Message(nil), session.Messages...)
	return &copied, nil
}

// AllSessionsInfo lists every session newest-first, with the script summary
// truncated for display.
func (s *Store) AllSessionsInfo() ([]models.SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var doc sessionsDoc
	if err := loadJSON(s.path, &doc); err != nil {
		return nil, err
	}
	infos := make([]models.SessionInfo, 0, len(doc.Sessions))
	for _, session := range doc.Sessions {
		infos = append(infos, models.SessionInfo{
			SessionID:     session.SessionID,
			StartTime:     session.StartTime,
			ScriptSummary: utils.TruncateRunes(session.ScriptSummary, 100),
			CurrentStage:  session.CurrentStage,
			MessageCount:  session.MessageCount,
			IsCurrent:     session.SessionID == doc.CurrentSessionID,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].StartTime.After(infos[j].StartTime) })
	return infos, nil
}

// TotalMessageCount returns the current session's message count, 0 when none.
func (s *Store) TotalMessageCount() (int, error) {
	info, err := s.CurrentSessionInfo()
	if err != nil || info == nil {
		return 0, err
	}
	return info.MessageCount, nil
}

// CurrentSessionID returns the current session id, "" when none.
func (s *Store) CurrentSessionID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var doc sessionsDoc
	if err := loadJSON(s.path, &doc); err != nil {
		return "", err
	}
	return doc.CurrentSessionID, nil
}

// ClearCurrentSession clears the current-session pointer. The session's
// message history persists but stops accumulating.
func (s *Store) ClearCurrentSession() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var doc sessionsDoc
	if err := loadJSON(s.path, &doc); err != nil {
		return err
	}
	doc.CurrentSessionID = ""
	return saveJSON(s.path, &doc)
}

// EndCurrentAndStartNew retires the current session (kept read-only in the
// log) and starts a fresh one. Summaries filter by session id, so this hard
// isolates memory context between runs.
func (s *Store) EndCurrentAndStartNew(scriptSummary, currentStage string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var doc sessionsDoc
	if err := loadJSON(s.path, &doc); err != nil {
		return "", err
	}
	doc.CurrentSessionID = ""
	if err := saveJSON(s.path, &doc); err != nil {
		return "", err
	}
	return s.startNewSessionLocked(scriptSummary, currentStage)
}

func findSession(sessions []models.Session, id string) *models.Session {
	if id == "" {
		return nil
	}
	for i := range sessions {
		if sessions[i].SessionID == id {
			return &sessions[i]
		}
	}
	return nil
}
