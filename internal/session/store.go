// Package session stores each chat's link to a patient account: the bearer
// token issued by the external authentication service. Tokens are opaque
// here; they are never refreshed locally, only replaced via /link or dropped
// when the server rejects them. Booking drafts are never stored.
package session

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"carelink/internal/portalapi"
)

// Store is the SQLite-backed chat session store.
type Store struct {
	db *sql.DB
}

// Open opens the database at path and creates the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS patient_sessions (
			chat_id INTEGER PRIMARY KEY,
			token TEXT NOT NULL,
			patient_name TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS reminders_sent (
			chat_id INTEGER NOT NULL,
			appointment_id TEXT NOT NULL,
			sent_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (chat_id, appointment_id)
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create session schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection, for readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Token returns the stored bearer token for a chat, empty when the chat has
// no linked session.
func (s *Store) Token(ctx context.Context, chatID int64) (string, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT token FROM patient_sessions WHERE chat_id = ?`, chatID)

	var token string
	if err := row.Scan(&token); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return token, nil
}

// Link stores or replaces the chat's token.
func (s *Store) Link(ctx context.Context, chatID int64, token, patientName string) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO patient_sessions (chat_id, token, patient_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET
			token = excluded.token,
			patient_name = excluded.patient_name,
			updated_at = excluded.updated_at`,
		chatID, token, patientName, now, now)
	return err
}

// Unlink removes the chat's session, used on logout and whenever the server
// reports the credential expired.
func (s *Store) Unlink(ctx context.Context, chatID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM patient_sessions WHERE chat_id = ?`, chatID)
	return err
}

// LinkedChats returns every chat with a stored session.
func (s *Store) LinkedChats(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id FROM patient_sessions ORDER BY chat_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chats []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		chats = append(chats, id)
	}
	return chats, rows.Err()
}

// WasReminded reports whether a reminder for this appointment was already
// sent to the chat.
func (s *Store) WasReminded(ctx context.Context, chatID int64, appointmentID string) (bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM reminders_sent WHERE chat_id = ? AND appointment_id = ?`,
		chatID, appointmentID)
	var one int
	if err := row.Scan(&one); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// MarkReminded records that the chat was reminded about an appointment.
func (s *Store) MarkReminded(ctx context.Context, chatID int64, appointmentID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reminders_sent (chat_id, appointment_id)
		VALUES (?, ?)
		ON CONFLICT(chat_id, appointment_id) DO NOTHING`,
		chatID, appointmentID)
	return err
}

// PruneReminders drops reminder records older than the cutoff.
func (s *Store) PruneReminders(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM reminders_sent WHERE sent_at < ?`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// TokenSource adapts the store to the portal client for one chat.
func (s *Store) TokenSource(chatID int64) portalapi.TokenSource {
	return tokenSource{store: s, chatID: chatID}
}

type tokenSource struct {
	store  *Store
	chatID int64
}

func (t tokenSource) Token(ctx context.Context) (string, error) {
	return t.store.Token(ctx, t.chatID)
}
