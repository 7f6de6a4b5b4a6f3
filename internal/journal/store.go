// Package journal keeps a SQLite record of Connect sessions: the surfaces
// created, the messages crossing the bridge and the events handed to the
// consumer. Secrets never reach the database.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"kanmonconnect/internal/bridge"
	"kanmonconnect/internal/protocol"

	"github.com/tidwall/gjson"
	_ "modernc.org/sqlite"
)

const (
	DirectionIn  = "in"
	DirectionOut = "out"

	redacted     = "REDACTED"
	writeTimeout = 5 * time.Second
)

// Session is one surface lifetime.
type Session struct {
	ID        string
	URL       string
	StartedAt time.Time
	EndedAt   *time.Time
	Messages  int
}

// Message is one message that crossed the bridge.
type Message struct {
	ID        int64
	SessionID string
	Direction string
	Action    string
	Payload   string
	Queued    bool
	CreatedAt time.Time
}

// Event is one event delivered to the consumer.
type Event struct {
	ID        int64
	SessionID string
	EventType string
	Payload   string
	CreatedAt time.Time
}

// Store is a bridge.Observer backed by SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	mu      sync.Mutex
	current string // live surface id, stamped on consumer events
}

var _ bridge.Observer = (*Store)(nil)

func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Set connection pool (single connection for SQLite)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal migration failed: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) exec(query string, args ...any) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		s.logger.Warn("journal write failed", "err", err)
	}
}

func (s *Store) SurfaceCreated(surfaceID, rawURL string) {
	s.mu.Lock()
	s.current = surfaceID
	s.mu.Unlock()

	s.exec(`INSERT OR IGNORE INTO sessions (id, url, started_at) VALUES (?, ?, ?)`,
		surfaceID, RedactURL(rawURL), time.Now())
}

func (s *Store) SurfaceDestroyed(surfaceID string) {
	s.mu.Lock()
	if s.current == surfaceID {
		s.current = ""
	}
	s.mu.Unlock()

	s.exec(`UPDATE sessions SET ended_at = ? WHERE id = ? AND ended_at IS NULL`, time.Now(), surfaceID)
}

func (s *Store) MessageReceived(surfaceID string, m protocol.Message) {
	s.addMessage(surfaceID, DirectionIn, m, false)
}

func (s *Store) MessageSent(surfaceID string, m protocol.Message, queued bool) {
	s.addMessage(surfaceID, DirectionOut, m, queued)
}

func (s *Store) addMessage(surfaceID, direction string, m protocol.Message, queued bool) {
	if show, ok := m.(protocol.ShowConnect); ok && show.SessionToken != "" {
		show.SessionToken = redacted
		m = show
	}
	payload, err := protocol.Encode(m)
	if err != nil {
		s.logger.Warn("journal cannot encode message", "action", m.Action(), "err", err)
		return
	}
	s.exec(`INSERT INTO messages (session_id, direction, action, payload, queued, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		surfaceID, direction, string(m.Action()), payload, queued, time.Now())
}

// RecordEvent stores an event delivered to the consumer, stamped with the
// live surface if there is one. payload is the encoded event.
func (s *Store) RecordEvent(ctx context.Context, payload []byte) error {
	eventType := gjson.GetBytes(payload, "eventType").String()
	if eventType == "" {
		eventType = gjson.GetBytes(payload, "errorType").String()
	}
	if eventType == "" {
		return fmt.Errorf("journal: event has no type")
	}

	s.mu.Lock()
	current := s.current
	s.mu.Unlock()

	var sessionID sql.NullString
	if current != "" {
		sessionID = sql.NullString{String: current, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (session_id, event_type, payload, created_at) VALUES (?, ?, ?, ?)`,
		sessionID, eventType, string(payload), time.Now(),
	)
	return err
}

// Sessions returns the most recent sessions, newest first.
func (s *Store) Sessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.id, s.url, s.started_at, s.ended_at,
		        (SELECT COUNT(*) FROM messages m WHERE m.session_id = s.id)
		 FROM sessions s ORDER BY s.started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var ss Session
		var endedAt sql.NullTime
		if err := rows.Scan(&ss.ID, &ss.URL, &ss.StartedAt, &endedAt, &ss.Messages); err != nil {
			return nil, err
		}
		if endedAt.Valid {
			ss.EndedAt = &endedAt.Time
		}
		sessions = append(sessions, ss)
	}
	return sessions, rows.Err()
}

// Messages returns the last limit messages of a session in chronological order.
func (s *Store) Messages(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, direction, action, payload, queued, created_at
		 FROM messages WHERE session_id = ?
		 ORDER BY id DESC LIMIT ?`, sessionID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		var payload sql.NullString
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Direction, &m.Action, &payload, &m.Queued, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Payload = payload.String
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to chronological order
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// Events returns the most recent consumer events, newest first.
func (s *Store) Events(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, event_type, payload, created_at
		 FROM events ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var sessionID, payload sql.NullString
		if err := rows.Scan(&e.ID, &sessionID, &e.EventType, &payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.SessionID = sessionID.String
		e.Payload = payload.String
		events = append(events, e)
	}
	return events, rows.Err()
}

// Prune deletes sessions, messages and events older than retentionDays and
// returns the number of rows removed.
func (s *Store) Prune(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var total int64
	for _, q := range []string{
		`DELETE FROM messages WHERE created_at < ?`,
		`DELETE FROM events WHERE created_at < ?`,
		`DELETE FROM sessions WHERE started_at < ? AND id NOT IN (SELECT DISTINCT session_id FROM messages)`,
	} {
		res, err := tx.ExecContext(ctx, q, cutoff)
		if err != nil {
			return 0, fmt.Errorf("prune journal: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	if total > 0 {
		s.logger.Info("journal pruned", "rows", total, "retentionDays", retentionDays)
	}
	return total, nil
}

// RedactURL hides the connect token in a load URL.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return redacted
	}
	q := u.Query()
	if !q.Has("connectToken") {
		return raw
	}
	q.Set("connectToken", redacted)
	u.RawQuery = q.Encode()
	return u.String()
}
