package memory

import (
	"path/filepath"
	"sync"

	"github.com/keeperhq/keeper/internal/models"
)

// SummaryLog is the append-only log of narrative summaries. Entries are never
// mutated or deleted except by Clear.
type SummaryLog struct {
	path string
	mu   sync.Mutex
}

type summariesDoc struct {
	Summaries []models.Summary `json:"summaries"`
}

// NewSummaryLog opens (or initializes) the summary log inside dir.
func NewSummaryLog(dir string) (*SummaryLog, error) {
	l := &SummaryLog{path: filepath.Join(dir, summariesFile)}
	var doc summariesDoc
	if err := loadJSON(l.path, &doc); err != nil {
		return nil, err
	}
	if doc.Summaries == nil {
		doc.Summaries = []models.Summary{}
		if err := saveJSON(l.path, &doc); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Append adds a summary entry.
func (l *SummaryLog) Append(summary models.Summary) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var doc summariesDoc
	if err := loadJSON(l.path, &doc); err != nil {
		return err
	}
	doc.Summaries = append(doc.Summaries, summary)
	return saveJSON(l.path, &doc)
}

// All returns every summary in insertion order.
func (l *SummaryLog) All() ([]models.Summary, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var doc summariesDoc
	if err := loadJSON(l.path, &doc); err != nil {
		return nil, err
	}
	return doc.Summaries, nil
}

// BySession returns the summaries recorded for the given session id.
func (l *SummaryLog) BySession(sessionID string) ([]models.Summary, error) {
	all, err := l.All()
	if err != nil {
		return nil, err
	}
	var out []models.Summary
	for _, s := range all {
		if s.SessionID == sessionID {
			out = append(out, s)
		}
	}
	return out, nil
}

// Clear truncates the log.
func (l *SummaryLog) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return saveJSON(l.path, &summariesDoc{Summaries: []models.Summary{}})
}

// StoryArchive is the append-only archive of composed stories.
type StoryArchive struct {
	path string
	mu   sync.Mutex
}

type storiesDoc struct {
	Stories []models.Story `json:"stories"`
}

// NewStoryArchive opens (or initializes) the story archive inside dir.
func NewStoryArchive(dir string) (*StoryArchive, error) {
	a := &StoryArchive{path: filepath.Join(dir, storiesFile)}
	var doc storiesDoc
	if err := loadJSON(a.path, &doc); err != nil {
		return nil, err
	}
	if doc.Stories == nil {
		doc.Stories = []models.Story{}
		if err := saveJSON(a.path, &doc); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Append adds a story entry.
func (a *StoryArchive) Append(story models.Story) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var doc storiesDoc
	if err := loadJSON(a.path, &doc); err != nil {
		return err
	}
	doc.Stories = append(doc.Stories, story)
	return saveJSON(a.path, &doc)
}

// All returns every story in insertion order.
func (a *StoryArchive) All() ([]models.Story, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var doc storiesDoc
	if err := loadJSON(a.path, &doc); err != nil {
		return nil, err
	}
	return doc.Stories, nil
}

// Latest returns the story with the greatest timestamp, or nil when empty.
func (a *StoryArchive) Latest() (*models.Story, error) {
	stories, err := a.All()
	if err != nil {
		return nil, err
	}
	if len(stories) == 0 {
		return nil, nil
	}
	latest := stories[0]
	for _, s := range stories[1:] {
		if s.Timestamp.After(latest.Timestamp) {
			latest = s
		}
	}
	return &latest, nil
}

// Clear truncates the archive.
func (a *StoryArchive) Clear() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return saveJSON(a.path, &storiesDoc{Stories: []models.Story{}})
}
