package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/hiapplyco/cfvideoanalysis/internal/database"
	"github.com/hiapplyco/cfvideoanalysis/internal/models"
	"github.com/hiapplyco/cfvideoanalysis/internal/storage"
)

// Manager owns session persistence, live event fan-out, and expiry of
// idle sessions together with their staged uploads.
type Manager struct {
	repo   *database.SessionRepo
	store  storage.Storage
	ttl    time.Duration
	logger *slog.Logger
	events *hub
}

func NewManager(repo *database.SessionRepo, store storage.Storage, ttl time.Duration, logger *slog.Logger) *Manager {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &Manager{
		repo:   repo,
		store:  store,
		ttl:    ttl,
		logger: logger,
		events: newHub(),
	}
}

// GetOrCreate loads the session with id, or starts a fresh one when id
// is empty or unknown. created reports whether a new session was made.
func (m *Manager) GetOrCreate(ctx context.Context, id string) (s *models.Session, created bool, err error) {
	if id != "" {
		s, err := m.repo.Get(ctx, id)
		if err == nil {
			return s, false, nil
		}
		if !errors.Is(err, database.ErrNotFound) {
			return nil, false, err
		}
	}

	s = models.NewSession()
	if err := m.repo.Save(ctx, s); err != nil {
		return nil, false, err
	}
	m.logger.Debug("session created", "session", s.ID)
	return s, true, nil
}

func (m *Manager) Get(ctx context.Context, id string) (*models.Session, error) {
	return m.repo.Get(ctx, id)
}

func (m *Manager) Save(ctx context.Context, s *models.Session) error {
	return m.repo.Save(ctx, s)
}

// Transition applies one action, persists the result, and notifies
// subscribers. The passed session is updated in place only on success.
func (m *Manager) Transition(ctx context.Context, s *models.Session, a Action) error {
	next, err := Apply(*s, a)
	if err != nil {
		return err
	}
	if err := m.repo.Save(ctx, &next); err != nil {
		return fmt.Errorf("persist transition %s: %w", a.name(), err)
	}
	*s = next

	m.events.publish(s.ID, Event{
		Type:    EventState,
		State:   string(s.State),
		Message: s.LastError,
	})
	m.logger.Debug("session transition", "session", s.ID, "action", a.name(), "state", s.State)
	return nil
}

// Progress records a pipeline milestone and notifies subscribers. Losing
// a progress update never fails the step that reported it.
func (m *Manager) Progress(ctx context.Context, s *models.Session, stage string, percent int) {
	s.ProgressStage = stage
	s.ProgressPercent = percent
	s.UpdatedAt = time.Now()
	if err := m.repo.Save(ctx, s); err != nil {
		m.logger.Warn("progress not persisted", "session", s.ID, "stage", stage, "error", err)
	}
	m.events.publish(s.ID, Event{
		Type:    EventProgress,
		State:   string(s.State),
		Stage:   stage,
		Percent: percent,
	})
}

// Warn pushes an advisory message to subscribers without touching state.
func (m *Manager) Warn(sessionID, message string) {
	m.events.publish(sessionID, Event{Type: EventWarning, Message: message})
}

// Subscribe returns a channel of live events for one session. The
// returned cancel must be called when the subscriber goes away.
func (m *Manager) Subscribe(sessionID string) (<-chan Event, func()) {
	return m.events.subscribe(sessionID)
}

// StartSweeper removes expired sessions and their staged uploads every
// interval until ctx is done.
func (m *Manager) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.SweepExpired(ctx)
			}
		}
	}()
}

// SweepExpired runs one expiry pass and returns how many sessions were
// removed.
func (m *Manager) SweepExpired(ctx context.Context) int {
	expired, err := m.repo.ExpiredBefore(ctx, time.Now().Add(-m.ttl))
	if err != nil {
		m.logger.Error("session sweep failed", "error", err)
		return 0
	}

	removed := 0
	for _, s := range expired {
		if s.State.IsInFlight() {
			// An expired in-flight session means the worker died with it;
			// its staged upload still goes.
			m.logger.Warn("sweeping in-flight session", "session", s.ID, "state", s.State)
		}
		if s.Video.Filename != "" {
			if err := m.store.DeleteFile(s.Video.Filename); err != nil && !errors.Is(err, fs.ErrNotExist) {
				m.logger.Warn("staged upload not removed", "session", s.ID, "filename", s.Video.Filename, "error", err)
			}
		}
		if err := m.repo.Delete(ctx, s.ID); err != nil {
			m.logger.Error("expired session not deleted", "session", s.ID, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		m.logger.Info("expired sessions swept", "count", removed)
	}
	return removed
}
