package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pvolkhin/chatgram-server/internal/store"
)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Set connection pool limits
	db.SetMaxOpenConns(1) // SQLite works best with single connection
	db.SetMaxIdleConns(1)

	if err := Init(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// NewWithSetup creates a new SQLite store and runs a setup function after the
// schema is applied. Useful for tests to seed data.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	s, err := New(dbPath)
	if err != nil {
		return nil, err
	}

	if setup != nil {
		if err := setup(s.db); err != nil {
			s.db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// CreateUser creates a new user with hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, phoneNumber, name, email, passwordHash, avatar string) (*store.User, error) {
	query := `
		INSERT INTO users (phone_number, name, email, password_hash, avatar, is_online)
		VALUES (?, ?, ?, ?, ?, 1)
	`
	result, err := s.db.ExecContext(ctx, query, phoneNumber, name, email, passwordHash, avatar)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	query := `
		SELECT id, phone_number, name, COALESCE(email, ''), password_hash,
		       COALESCE(avatar, ''), is_online, last_seen, created_at
		FROM users
		WHERE id = ?
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, id))
}

// GetUserByPhone retrieves a user by phone number.
func (s *SQLiteStore) GetUserByPhone(ctx context.Context, phoneNumber string) (*store.User, error) {
	query := `
		SELECT id, phone_number, name, COALESCE(email, ''), password_hash,
		       COALESCE(avatar, ''), is_online, last_seen, created_at
		FROM users
		WHERE phone_number = ?
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, phoneNumber))
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*store.User, error) {
	var user store.User
	var lastSeen sql.NullTime
	err := row.Scan(
		&user.ID,
		&user.PhoneNumber,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.Avatar,
		&user.IsOnline,
		&lastSeen,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	if lastSeen.Valid {
		user.LastSeen = &lastSeen.Time
	}

	return &user, nil
}

// GetUserSummary retrieves the rendering subset for a user.
func (s *SQLiteStore) GetUserSummary(ctx context.Context, id int64) (*store.UserSummary, error) {
	query := `
		SELECT id, name, COALESCE(avatar, ''), is_online
		FROM users
		WHERE id = ?
	`
	var u store.UserSummary
	err := s.db.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Name, &u.Avatar, &u.IsOnline)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user summary: %w", err)
	}

	return &u, nil
}

// SearchUsers searches for users by name or phone number, excluding requesterID.
func (s *SQLiteStore) SearchUsers(ctx context.Context, query string, requesterID int64, limit int) ([]*store.UserSummary, error) {
	pattern := "%" + query + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(avatar, ''), is_online
		FROM users
		WHERE (name LIKE ? OR phone_number LIKE ?) AND id != ?
		ORDER BY name ASC
		LIMIT ?
	`, pattern, pattern, requesterID, limit)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []*store.UserSummary
	for rows.Next() {
		var u store.UserSummary
		if err := rows.Scan(&u.ID, &u.Name, &u.Avatar, &u.IsOnline); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, &u)
	}

	return users, rows.Err()
}

// SetUserOnline marks a user online.
func (s *SQLiteStore) SetUserOnline(ctx context.Context, userID int64) error {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET is_online = 1 WHERE id = ?`, userID)
	if err != nil {
		return fmt.Errorf("update user online: %w", err)
	}
	return checkAffected(result, "user")
}

// SetUserOffline marks a user offline and records last seen time.
func (s *SQLiteStore) SetUserOffline(ctx context.Context, userID int64, lastSeen time.Time) error {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET is_online = 0, last_seen = ? WHERE id = ?`, lastSeen.UTC(), userID)
	if err != nil {
		return fmt.Errorf("update user offline: %w", err)
	}
	return checkAffected(result, "user")
}

func checkAffected(result sql.Result, entity string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", entity, store.ErrNotFound)
	}
	return nil
}

// ==== ChatStore implementation ====

// ResolveOrCreateChat returns an existing direct chat for the user pair or
// creates a new chat transactionally.
func (s *SQLiteStore) ResolveOrCreateChat(ctx context.Context, requesterID int64, participantID *int64, isGroup bool, name string) (int64, bool, error) {
	if !isGroup {
		if participantID == nil {
			return 0, false, fmt.Errorf("participant required for direct chat: %w", store.ErrNotFound)
		}

		// Direct chats are unique per unordered user pair.
		query := `
			SELECT c.id
			FROM chats c
			JOIN chat_participants p1 ON c.id = p1.chat_id AND p1.user_id = ?
			JOIN chat_participants p2 ON c.id = p2.chat_id AND p2.user_id = ?
			WHERE c.is_group = 0
			LIMIT 1
		`
		var chatID int64
		err := s.db.QueryRowContext(ctx, query, requesterID, *participantID).Scan(&chatID)
		if err == nil {
			return chatID, false, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, false, fmt.Errorf("lookup direct chat: %w", err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO chats (name, is_group, created_by)
		VALUES (?, ?, ?)
	`, name, isGroup, requesterID)
	if err != nil {
		return 0, false, fmt.Errorf("insert chat: %w", err)
	}

	chatID, err := result.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("get last insert id: %w", err)
	}

	memberQuery := `
		INSERT INTO chat_participants (chat_id, user_id, role)
		VALUES (?, ?, ?)
	`
	if _, err := tx.ExecContext(ctx, memberQuery, chatID, requesterID, store.RoleAdmin); err != nil {
		return 0, false, fmt.Errorf("add requester: %w", err)
	}
	if !isGroup {
		if _, err := tx.ExecContext(ctx, memberQuery, chatID, *participantID, store.RoleMember); err != nil {
			return 0, false, fmt.Errorf("add participant: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("commit transaction: %w", err)
	}

	return chatID, true, nil
}

// GetChatByID retrieves a chat by ID.
func (s *SQLiteStore) GetChatByID(ctx context.Context, id int64) (*store.Chat, error) {
	query := `
		SELECT id, COALESCE(name, ''), is_group, created_by, created_at
		FROM chats
		WHERE id = ?
	`
	var chat store.Chat
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&chat.ID,
		&chat.Name,
		&chat.IsGroup,
		&chat.CreatedBy,
		&chat.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("chat: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query chat: %w", err)
	}

	return &chat, nil
}

// ListChats lists chat summaries for a viewer, most recent activity first.
func (s *SQLiteStore) ListChats(ctx context.Context, viewerID int64) ([]*store.ChatSummary, error) {
	query := `
		SELECT c.id,
		       CASE WHEN c.is_group THEN COALESCE(c.name, '') ELSE COALESCE(u.name, '') END,
		       c.is_group,
		       CASE WHEN c.is_group THEN '' ELSE COALESCE(u.avatar, '') END,
		       CASE WHEN c.is_group THEN 0 ELSE COALESCE(u.is_online, 0) END,
		       m.content,
		       m.created_at,
		       (SELECT COUNT(*)
		        FROM message_status ms
		        JOIN messages mm ON mm.id = ms.message_id
		        WHERE mm.chat_id = c.id AND ms.user_id = ? AND ms.status != 'read')
		FROM chats c
		JOIN chat_participants cp ON cp.chat_id = c.id AND cp.user_id = ?
		LEFT JOIN chat_participants peer
		       ON peer.chat_id = c.id AND peer.user_id != ? AND c.is_group = 0
		LEFT JOIN users u ON u.id = peer.user_id
		LEFT JOIN messages m ON m.id = (SELECT MAX(id) FROM messages WHERE chat_id = c.id)
		ORDER BY COALESCE(m.created_at, c.created_at) DESC
	`
	rows, err := s.db.QueryContext(ctx, query, viewerID, viewerID, viewerID)
	if err != nil {
		return nil, fmt.Errorf("query chats: %w", err)
	}
	defer rows.Close()

	var chats []*store.ChatSummary
	for rows.Next() {
		var cs store.ChatSummary
		var content sql.NullString
		var createdAt sql.NullTime
		if err := rows.Scan(
			&cs.ID,
			&cs.Name,
			&cs.IsGroup,
			&cs.Avatar,
			&cs.PeerOnline,
			&content,
			&createdAt,
			&cs.UnreadCount,
		); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		if content.Valid && createdAt.Valid {
			cs.LastMessage = &store.MessagePreview{
				Content:   content.String,
				CreatedAt: createdAt.Time,
			}
		}
		chats = append(chats, &cs)
	}

	return chats, rows.Err()
}

// ListParticipants lists user IDs of all chat participants.
func (s *SQLiteStore) ListParticipants(ctx context.Context, chatID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id FROM chat_participants
		WHERE chat_id = ?
		ORDER BY joined_at ASC
	`, chatID)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	var members []int64
	for rows.Next() {
		var userID int64
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		members = append(members, userID)
	}

	return members, rows.Err()
}

// IsParticipant checks whether a user belongs to a chat.
func (s *SQLiteStore) IsParticipant(ctx context.Context, userID, chatID int64) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM chat_participants
		WHERE user_id = ? AND chat_id = ?
	`, userID, chatID).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query participation: %w", err)
	}

	return true, nil
}

// ==== MessageStore implementation ====

// SendMessage persists a message and its per-recipient status rows in one
// transaction. A partial fan-out is never visible: either the message and all
// status rows commit together or nothing does.
func (s *SQLiteStore) SendMessage(ctx context.Context, chatID, senderID int64, content string, msgType store.MessageType, replyTo *int64) (*store.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, store.ErrEmptyContent
	}
	if msgType == "" {
		msgType = store.MessageTypeText
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Resolve sender inside the transaction so the returned summary matches
	// what recipients will see.
	var sender store.UserSummary
	err = tx.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(avatar, ''), is_online FROM users WHERE id = ?
	`, senderID).Scan(&sender.ID, &sender.Name, &sender.Avatar, &sender.IsOnline)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("sender: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query sender: %w", err)
	}

	var chatExists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM chats WHERE id = ?`, chatID).Scan(&chatExists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("chat: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query chat: %w", err)
	}

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, `
		INSERT INTO messages (content, message_type, chat_id, sender_id, reply_to, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, content, string(msgType), chatID, senderID, replyTo, now)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	messageID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	// Fan out one 'sent' status row per participant other than the sender.
	recipientRows, err := tx.QueryContext(ctx, `
		SELECT user_id FROM chat_participants
		WHERE chat_id = ? AND user_id != ?
	`, chatID, senderID)
	if err != nil {
		return nil, fmt.Errorf("query recipients: %w", err)
	}
	var recipients []int64
	for recipientRows.Next() {
		var userID int64
		if err := recipientRows.Scan(&userID); err != nil {
			recipientRows.Close()
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		recipients = append(recipients, userID)
	}
	if err := recipientRows.Err(); err != nil {
		recipientRows.Close()
		return nil, fmt.Errorf("iterate recipients: %w", err)
	}
	recipientRows.Close()

	for _, userID := range recipients {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO message_status (message_id, user_id, status, updated_at)
			VALUES (?, ?, 'sent', ?)
		`, messageID, userID, now); err != nil {
			return nil, fmt.Errorf("insert status row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return &store.Message{
		ID:        messageID,
		Content:   content,
		Type:      msgType,
		ChatID:    chatID,
		SenderID:  senderID,
		ReplyTo:   replyTo,
		CreatedAt: now,
		Sender:    sender,
		Status:    store.StatusSent,
	}, nil
}

// ListMessages retrieves the most recent limit messages of a chat in ascending
// creation order, annotated with the viewer's own status.
func (s *SQLiteStore) ListMessages(ctx context.Context, chatID, viewerID int64, limit int) ([]*store.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.content, m.message_type, m.chat_id, m.sender_id, m.reply_to,
		       m.is_forwarded, m.created_at,
		       u.id, u.name, COALESCE(u.avatar, ''), u.is_online,
		       COALESCE(ms.status, 'sent')
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		LEFT JOIN message_status ms ON ms.message_id = m.id AND ms.user_id = ?
		WHERE m.chat_id = ?
		ORDER BY m.id DESC
		LIMIT ?
	`, viewerID, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		var msg store.Message
		var replyTo sql.NullInt64
		var msgType, status string
		if err := rows.Scan(
			&msg.ID,
			&msg.Content,
			&msgType,
			&msg.ChatID,
			&msg.SenderID,
			&replyTo,
			&msg.IsForwarded,
			&msg.CreatedAt,
			&msg.Sender.ID,
			&msg.Sender.Name,
			&msg.Sender.Avatar,
			&msg.Sender.IsOnline,
			&status,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Type = store.MessageType(msgType)
		msg.Status = store.DeliveryStatus(status)
		if replyTo.Valid {
			msg.ReplyTo = &replyTo.Int64
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to get chronological order
	for i := range len(messages) / 2 {
		messages[i], messages[len(messages)-1-i] = messages[len(messages)-1-i], messages[i]
	}

	return messages, nil
}

// MarkRead transitions every non-read status row of the viewer in the chat to
// 'read'. Idempotent: nothing to update is a no-op.
func (s *SQLiteStore) MarkRead(ctx context.Context, chatID, viewerID int64) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE message_status
		SET status = 'read', updated_at = ?
		WHERE user_id = ?
		  AND status != 'read'
		  AND message_id IN (
			SELECT id FROM messages WHERE chat_id = ? AND sender_id != ?
		  )
	`, time.Now().UTC(), viewerID, chatID, viewerID)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}

	return result.RowsAffected()
}

// MarkDelivered transitions the user's 'sent' rows in the chat to 'delivered'.
// The status guard keeps transitions monotonic; 'read' is never downgraded.
func (s *SQLiteStore) MarkDelivered(ctx context.Context, chatID, userID int64) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE message_status
		SET status = 'delivered', updated_at = ?
		WHERE user_id = ?
		  AND status = 'sent'
		  AND message_id IN (
			SELECT id FROM messages WHERE chat_id = ? AND sender_id != ?
		  )
	`, time.Now().UTC(), userID, chatID, userID)
	if err != nil {
		return 0, fmt.Errorf("mark delivered: %w", err)
	}

	return result.RowsAffected()
}

// Ensure SQLiteStore implements store.Store
var _ store.Store = (*SQLiteStore)(nil)
