package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hiapplyco/cfvideoanalysis/internal/models"
)

var ErrNotFound = errors.New("session not found")

type SessionRepo struct {
	db *DB
}

func NewSessionRepo(db *DB) *SessionRepo {
	return &SessionRepo{db: db}
}

// Save writes the full session row, replacing any previous version.
func (r *SessionRepo) Save(ctx context.Context, s *models.Session) error {
	query := `
		INSERT OR REPLACE INTO sessions (
			id, state, video_filename, video_name, content_type, video_size,
			video_uploaded_at, user_query, analysis, script, audio, voice_id,
			show_narration, audio_generated, last_error, progress_stage,
			progress_percent, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var uploadedAt sql.NullTime
	if !s.Video.UploadTime.IsZero() {
		uploadedAt = sql.NullTime{Time: s.Video.UploadTime, Valid: true}
	}

	_, err := r.db.conn.ExecContext(ctx, query,
		s.ID,
		string(s.State),
		s.Video.Filename,
		s.Video.OriginalName,
		s.Video.ContentType,
		s.Video.Size,
		uploadedAt,
		s.Query,
		s.Analysis,
		s.Script,
		s.Audio,
		s.VoiceID,
		s.ShowNarration,
		s.AudioGenerated,
		s.LastError,
		s.ProgressStage,
		s.ProgressPercent,
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (r *SessionRepo) Get(ctx context.Context, id string) (*models.Session, error) {
	query := `
		SELECT id, state, video_filename, video_name, content_type, video_size,
			   video_uploaded_at, user_query, analysis, script, audio, voice_id,
			   show_narration, audio_generated, last_error, progress_stage,
			   progress_percent, created_at, updated_at
		FROM sessions
		WHERE id = ?`

	s, err := scanSession(r.db.conn.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

func (r *SessionRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.conn.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// ExpiredBefore returns sessions whose last activity predates cutoff.
// Full rows come back so callers can release staged uploads too.
func (r *SessionRepo) ExpiredBefore(ctx context.Context, cutoff time.Time) ([]*models.Session, error) {
	query := `
		SELECT id, state, video_filename, video_name, content_type, video_size,
			   video_uploaded_at, user_query, analysis, script, audio, voice_id,
			   show_narration, audio_generated, last_error, progress_stage,
			   progress_percent, created_at, updated_at
		FROM sessions
		WHERE updated_at < ?
		ORDER BY updated_at`

	rows, err := r.db.conn.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read expired sessions: %w", err)
	}
	return sessions, nil
}

func (r *SessionRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	s := &models.Session{}
	var state string
	var uploadedAt sql.NullTime

	err := row.Scan(
		&s.ID,
		&state,
		&s.Video.Filename,
		&s.Video.OriginalName,
		&s.Video.ContentType,
		&s.Video.Size,
		&uploadedAt,
		&s.Query,
		&s.Analysis,
		&s.Script,
		&s.Audio,
		&s.VoiceID,
		&s.ShowNarration,
		&s.AudioGenerated,
		&s.LastError,
		&s.ProgressStage,
		&s.ProgressPercent,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.State = models.State(state)
	if uploadedAt.Valid {
		s.Video.UploadTime = uploadedAt.Time
	}
	return s, nil
}
