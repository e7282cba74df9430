package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andresmejia3/guardian/internal/types"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrSessionNotFound is returned when a session ID does not exist.
var ErrSessionNotFound = errors.New("session not found")

// Store manages the PostgreSQL connection used for session recording.
// A pgx.Conn is not safe for concurrent use; the watch loop calls it from one goroutine.
type Store struct {
	conn *pgx.Conn
}

// Session is one recorded watch run with aggregated analysis counts.
type Session struct {
	ID        string
	Name      string
	Device    string
	Interval  int
	StartedAt time.Time
	EndedAt   *time.Time
	Frames    int
	Reason    string
	Analyses  int
	Failures  int
	Faces     int
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS sessions (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			device TEXT NOT NULL,
			throttle_interval INT NOT NULL,
			started_at TIMESTAMPTZ DEFAULT NOW(),
			ended_at TIMESTAMPTZ,
			frames INT NOT NULL DEFAULT 0,
			stop_reason TEXT NOT NULL DEFAULT ''
		);
		CREATE TABLE IF NOT EXISTS analysis_events (
			id BIGSERIAL PRIMARY KEY,
			session_id UUID REFERENCES sessions(id) ON DELETE CASCADE,
			frame_index INT NOT NULL,
			face_count INT NOT NULL,
			genders TEXT[] NOT NULL,
			emotions TEXT[] NOT NULL,
			failed BOOLEAN NOT NULL DEFAULT FALSE,
			error TEXT NOT NULL DEFAULT '',
			recorded_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS analysis_events_session_id_idx ON analysis_events (session_id);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// CreateSession registers a new watch run and returns its ID.
func (s *Store) CreateSession(ctx context.Context, device string, interval int) (string, error) {
	id := uuid.NewString()
	_, err := s.conn.Exec(ctx, `
		INSERT INTO sessions (id, device, throttle_interval, started_at)
		VALUES ($1, $2, $3, NOW())
	`, id, device, interval)
	if err != nil {
		return "", err
	}
	return id, nil
}

// RecordAnalysis stores the outcome of one analyzer call. A failed call is
// stored with zero faces, mirroring what the loop draws.
func (s *Store) RecordAnalysis(ctx context.Context, sessionID string, frameIndex int, faces types.AnalysisResult, analysisErr error) error {
	genders := make([]string, 0, len(faces))
	emotions := make([]string, 0, len(faces))
	errText := ""
	if analysisErr != nil {
		errText = analysisErr.Error()
		faces = nil
	}
	for _, f := range faces {
		genders = append(genders, f.Gender)
		emotions = append(emotions, f.Emotion)
	}

	_, err := s.conn.Exec(ctx, `
		INSERT INTO analysis_events (session_id, frame_index, face_count, genders, emotions, failed, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, sessionID, frameIndex, len(faces), genders, emotions, analysisErr != nil, errText)
	return err
}

// FinishSession stamps the end of a run.
func (s *Store) FinishSession(ctx context.Context, sessionID string, frames int, reason string) error {
	tag, err := s.conn.Exec(ctx, `
		UPDATE sessions SET ended_at = NOW(), frames = $2, stop_reason = $3 WHERE id = $1
	`, sessionID, frames, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// ListSessions returns all sessions, newest first, with analysis totals.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT s.id::text, s.name, s.device, s.throttle_interval, s.started_at, s.ended_at, s.frames, s.stop_reason,
		       COUNT(e.id), COUNT(e.id) FILTER (WHERE e.failed), COALESCE(SUM(e.face_count), 0)
		FROM sessions s
		LEFT JOIN analysis_events e ON e.session_id = s.id
		GROUP BY s.id
		ORDER BY s.started_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var ss Session
		if err := rows.Scan(&ss.ID, &ss.Name, &ss.Device, &ss.Interval, &ss.StartedAt, &ss.EndedAt,
			&ss.Frames, &ss.Reason, &ss.Analyses, &ss.Failures, &ss.Faces); err != nil {
			return nil, err
		}
		sessions = append(sessions, ss)
	}
	return sessions, rows.Err()
}

// EmotionCounts tallies the dominant emotions recorded for a session.
func (s *Store) EmotionCounts(ctx context.Context, sessionID string) (map[string]int, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT emotion, COUNT(*)
		FROM analysis_events, unnest(emotions) AS emotion
		WHERE session_id = $1
		GROUP BY emotion
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var emotion string
		var n int
		if err := rows.Scan(&emotion, &n); err != nil {
			return nil, err
		}
		counts[emotion] = n
	}
	return counts, rows.Err()
}

// RenameSession updates the display name of a session.
func (s *Store) RenameSession(ctx context.Context, sessionID, name string) error {
	tag, err := s.conn.Exec(ctx, "UPDATE sessions SET name = $1 WHERE id = $2", name, sessionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Reset drops all application tables to clear the database state.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `
		DROP TABLE IF EXISTS analysis_events CASCADE;
		DROP TABLE IF EXISTS sessions CASCADE;
	`)
	return err
}
