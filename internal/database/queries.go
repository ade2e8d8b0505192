package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/npezzotti/go-messenger/internal/apperror"
)

const (
	foreignKeyViolation = "23503"

	userColumns    = "username, avatar_ref, banner_ref, created_at"
	messageColumns = "id, conversation_id, from_user, to_user, content, type, file_ref, created_at, read"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var (
		u      User
		avatar sql.NullString
		banner sql.NullString
	)
	err := row.Scan(
		&u.Username,
		&avatar,
		&banner,
		&u.CreatedAt,
	)
	u.AvatarRef = avatar.String
	u.BannerRef = banner.String

	return u, err
}

func scanMessage(row rowScanner) (Message, error) {
	var (
		m       Message
		fileRef sql.NullString
	)
	err := row.Scan(
		&m.Id,
		&m.ConversationId,
		&m.From,
		&m.To,
		&m.Content,
		&m.Type,
		&fileRef,
		&m.CreatedAt,
		&m.Read,
	)
	m.FileRef = fileRef.String

	return m, err
}

func (db *PgRepository) CreateUser(username string, createdAt time.Time) (User, error) {
	row := db.conn.QueryRow(
		"INSERT INTO users (username, created_at) VALUES ($1, $2) "+
			"ON CONFLICT (username) DO NOTHING RETURNING "+userColumns,
		username,
		createdAt.UTC(),
	)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, apperror.AlreadyExists("user", username)
		}
		return User{}, fmt.Errorf("create user %q: %w", username, err)
	}
	u.ChatPartners = []string{}

	return u, nil
}

func (db *PgRepository) GetUser(username string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT "+userColumns+" FROM users WHERE username = $1 LIMIT 1",
		username,
	)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, apperror.NotFound("user", username)
		}
		return User{}, fmt.Errorf("get user %q: %w", username, err)
	}

	u.ChatPartners, err = db.chatPartners(username)
	return u, err
}

func (db *PgRepository) UpdateUser(params UpdateUserParams) (User, error) {
	row := db.conn.QueryRow(
		"UPDATE users SET avatar_ref = COALESCE($2, avatar_ref), banner_ref = COALESCE($3, banner_ref) "+
			"WHERE username = $1 RETURNING "+userColumns,
		params.Username,
		params.AvatarRef,
		params.BannerRef,
	)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, apperror.NotFound("user", params.Username)
		}
		return User{}, fmt.Errorf("update user %q: %w", params.Username, err)
	}

	u.ChatPartners, err = db.chatPartners(params.Username)
	return u, err
}

func (db *PgRepository) SearchUsers(query, excludeUsername string) ([]User, error) {
	rows, err := db.conn.Query(
		"SELECT "+userColumns+" FROM users "+
			"WHERE username <> $2 AND strpos(lower(username), lower($1)) > 0 "+
			"ORDER BY id",
		query,
		excludeUsername,
	)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

func (db *PgRepository) AddChatPartner(username, partner string) error {
	_, err := db.conn.Exec(
		"INSERT INTO chat_partners (username, partner) VALUES ($1, $2) "+
			"ON CONFLICT (username, partner) DO NOTHING",
		username,
		partner,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation {
			return apperror.NotFound("user", username)
		}
		return fmt.Errorf("add chat partner %q to %q: %w", partner, username, err)
	}

	return nil
}

func (db *PgRepository) chatPartners(username string) ([]string, error) {
	rows, err := db.conn.Query(
		"SELECT partner FROM chat_partners WHERE username = $1 ORDER BY id",
		username,
	)
	if err != nil {
		return nil, fmt.Errorf("list chat partners of %q: %w", username, err)
	}
	defer rows.Close()

	partners := []string{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		partners = append(partners, p)
	}

	return partners, rows.Err()
}

func (db *PgRepository) CreateMessage(msg Message) error {
	_, err := db.conn.Exec(
		"INSERT INTO messages ("+messageColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)",
		msg.Id,
		msg.ConversationId,
		msg.From,
		msg.To,
		msg.Content,
		msg.Type,
		sql.NullString{String: msg.FileRef, Valid: msg.FileRef != ""},
		msg.CreatedAt.UTC(),
		msg.Read,
	)
	if err != nil {
		return fmt.Errorf("create message: %w", err)
	}

	return nil
}

// GetMessages returns the newest limit messages of a conversation, oldest
// first. A NULL limit means no limit in Postgres.
func (db *PgRepository) GetMessages(conversationId string, limit int) ([]Message, error) {
	rows, err := db.conn.Query(
		"SELECT "+messageColumns+" FROM ("+
			"SELECT "+messageColumns+", seq FROM messages WHERE conversation_id = $1 "+
			"ORDER BY seq DESC LIMIT $2"+
			") recent ORDER BY seq ASC",
		conversationId,
		sql.NullInt64{Int64: int64(limit), Valid: limit > 0},
	)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}
