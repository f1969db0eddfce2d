// Package sqlite is the default persistence backend.
//
// Membership sets (delivered/seen/deleted-for) live in the message_marks
// table keyed by (message_id, user_id, kind): INSERT OR IGNORE gives the
// atomic add-if-absent primitive the lifecycle engine relies on, with no
// read-check-write window.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Open opens a SQLite database with the given DSN.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return db, nil
}

// Migrate creates the schema. Idempotent.
func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT UNIQUE NOT NULL,
			nickname TEXT NOT NULL,
			avatar TEXT,
			bio TEXT NOT NULL DEFAULT '',
			hashed_password TEXT NOT NULL,
			is_online INTEGER NOT NULL DEFAULT 0,
			suspended INTEGER NOT NULL DEFAULT 0,
			last_seen DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS user_blocks (
			user_id TEXT NOT NULL,
			blocked_id TEXT NOT NULL,
			PRIMARY KEY (user_id, blocked_id),
			FOREIGN KEY (user_id) REFERENCES users(id)
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			sender_id TEXT NOT NULL,
			receiver_id TEXT,
			room_id TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL DEFAULT 'text',
			file_url TEXT,
			file_name TEXT,
			reply_to_id TEXT,
			edited INTEGER NOT NULL DEFAULT 0,
			deleted_for_everyone INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			FOREIGN KEY (sender_id) REFERENCES users(id)
		);`,
		// Membership sets: kind is 'delivered', 'seen' or 'deleted'.
		`CREATE TABLE IF NOT EXISTS message_marks (
			message_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (message_id, user_id, kind),
			FOREIGN KEY (message_id) REFERENCES messages(id)
		);`,
		`CREATE TABLE IF NOT EXISTS message_reactions (
			message_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			emoji TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (message_id, user_id, emoji),
			FOREIGN KEY (message_id) REFERENCES messages(id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);`,
		`CREATE INDEX IF NOT EXISTS idx_users_is_online ON users(is_online);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_room_created ON messages(room_id, created_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(sender_id);`,
		`CREATE INDEX IF NOT EXISTS idx_marks_message ON message_marks(message_id, kind);`,
		`CREATE INDEX IF NOT EXISTS idx_reactions_message ON message_reactions(message_id);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
