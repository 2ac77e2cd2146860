package sqlite

import "database/sql"

// Schema is the full database schema. Applied on startup; every statement is
// idempotent so restarts are safe.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	phone_number  TEXT NOT NULL UNIQUE,
	name          TEXT NOT NULL,
	email         TEXT,
	password_hash TEXT NOT NULL,
	avatar        TEXT,
	is_online     BOOLEAN NOT NULL DEFAULT 0,
	last_seen     DATETIME,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS chats (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT,
	is_group   BOOLEAN NOT NULL DEFAULT 0,
	created_by INTEGER NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (created_by) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS chat_participants (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	chat_id   INTEGER NOT NULL,
	user_id   INTEGER NOT NULL,
	role      TEXT NOT NULL DEFAULT 'member',
	joined_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (chat_id, user_id),
	FOREIGN KEY (chat_id) REFERENCES chats(id),
	FOREIGN KEY (user_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS messages (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	content      TEXT NOT NULL,
	message_type TEXT NOT NULL DEFAULT 'text',
	chat_id      INTEGER NOT NULL,
	sender_id    INTEGER NOT NULL,
	reply_to     INTEGER,
	is_forwarded BOOLEAN NOT NULL DEFAULT 0,
	created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (chat_id) REFERENCES chats(id),
	FOREIGN KEY (sender_id) REFERENCES users(id),
	FOREIGN KEY (reply_to) REFERENCES messages(id)
);

CREATE TABLE IF NOT EXISTS message_status (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	message_id INTEGER NOT NULL,
	user_id    INTEGER NOT NULL,
	status     TEXT NOT NULL DEFAULT 'sent'
		CHECK (status IN ('sent', 'delivered', 'read')),
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (message_id, user_id),
	FOREIGN KEY (message_id) REFERENCES messages(id),
	FOREIGN KEY (user_id) REFERENCES users(id)
);

CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_participants_user ON chat_participants(user_id);
CREATE INDEX IF NOT EXISTS idx_status_user ON message_status(user_id, status);
`

// Init applies the schema to the database.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
