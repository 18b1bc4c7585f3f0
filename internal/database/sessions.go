package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/netra-labs/netra/pkg/errors"
)

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ChatSession is one conversation
type ChatSession struct {
	ID          uuid.UUID `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"user_id"`
	Title       string    `db:"title" json:"title"`
	Environment string    `db:"environment" json:"environment"`
	Archived    bool      `db:"archived" json:"archived"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// ChatMessage is one message within a session
type ChatMessage struct {
	ID        uuid.UUID `db:"id" json:"id"`
	SessionID uuid.UUID `db:"session_id" json:"session_id"`
	Role      string    `db:"role" json:"role"`
	Content   string    `db:"content" json:"content"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Pagination controls list queries
type Pagination struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// Offset returns the SQL offset for the page
func (p *Pagination) Offset() int {
	if p.Page < 1 {
		p.Page = 1
	}
	return (p.Page - 1) * p.Limit()
}

// Limit returns the SQL limit for the page
func (p *Pagination) Limit() int {
	if p.PageSize < 1 || p.PageSize > 100 {
		p.PageSize = 20
	}
	return p.PageSize
}

// SessionRepositoryInterface defines the interface for session operations
type SessionRepositoryInterface interface {
	CreateSession(ctx context.Context, session *ChatSession) error
	GetSession(ctx context.Context, id uuid.UUID) (*ChatSession, error)
	ListSessions(ctx context.Context, userID string, pagination *Pagination) ([]*ChatSession, int64, error)
	ArchiveSession(ctx context.Context, id uuid.UUID) error
	DeleteSession(ctx context.Context, id uuid.UUID) error
	AppendMessage(ctx context.Context, message *ChatMessage) error
	ListMessages(ctx context.Context, sessionID uuid.UUID, pagination *Pagination) ([]*ChatMessage, error)
	CountActiveSessions(ctx context.Context) (int64, error)
}

// SessionRepository handles chat session database operations
type SessionRepository struct {
	db *DB
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// CreateSession creates a new chat session
func (r *SessionRepository) CreateSession(ctx context.Context, session *ChatSession) error {
	query := `
		INSERT INTO chat_sessions (id, user_id, title, environment, archived, created_at, updated_at)
		VALUES (:id, :user_id, :title, :environment, :archived, :created_at, :updated_at)`

	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	session.CreatedAt = time.Now()
	session.UpdatedAt = session.CreatedAt

	_, err := r.db.NamedExecContext(ctx, query, session)
	if err != nil {
		return errors.NewInternalError("failed to create session").WithCause(err)
	}

	return nil
}

// GetSession retrieves a session by ID
func (r *SessionRepository) GetSession(ctx context.Context, id uuid.UUID) (*ChatSession, error) {
	var session ChatSession
	query := `SELECT * FROM chat_sessions WHERE id = $1`

	err := r.db.GetContext(ctx, &session, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NewNotFoundError("session")
		}
		return nil, errors.NewInternalError("failed to get session").WithCause(err)
	}

	return &session, nil
}

// ListSessions lists a user's sessions, most recently updated first
func (r *SessionRepository) ListSessions(ctx context.Context, userID string, pagination *Pagination) ([]*ChatSession, int64, error) {
	if pagination == nil {
		pagination = &Pagination{}
	}

	var total int64
	countQuery := `SELECT COUNT(*) FROM chat_sessions WHERE user_id = $1 AND NOT archived`
	if err := r.db.GetContext(ctx, &total, countQuery, userID); err != nil {
		return nil, 0, errors.NewInternalError("failed to count sessions").WithCause(err)
	}

	query := `
		SELECT * FROM chat_sessions
		WHERE user_id = $1 AND NOT archived
		ORDER BY updated_at DESC
		LIMIT $2 OFFSET $3`

	sessions := make([]*ChatSession, 0)
	err := r.db.SelectContext(ctx, &sessions, query, userID, pagination.Limit(), pagination.Offset())
	if err != nil {
		return nil, 0, errors.NewInternalError("failed to list sessions").WithCause(err)
	}

	return sessions, total, nil
}

// ArchiveSession marks a session archived without deleting its messages
func (r *SessionRepository) ArchiveSession(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE chat_sessions SET archived = TRUE, updated_at = NOW() WHERE id = $1`

	result, err := r.db.ExecWithTimeout(ctx, query, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternalError("failed to get rows affected").WithCause(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFoundError("session")
	}

	return nil
}

// DeleteSession deletes a session and its messages
func (r *SessionRepository) DeleteSession(ctx context.Context, id uuid.UUID) error {
	return r.db.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM chat_messages WHERE session_id = $1`, id); err != nil {
			return errors.NewInternalError("failed to delete session messages").WithCause(err)
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id = $1`, id)
		if err != nil {
			return errors.NewInternalError("failed to delete session").WithCause(err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return errors.NewInternalError("failed to get rows affected").WithCause(err)
		}
		if rowsAffected == 0 {
			return errors.NewNotFoundError("session")
		}

		return nil
	})
}

// AppendMessage adds a message to a session and bumps the session's
// updated_at so listing order reflects activity
func (r *SessionRepository) AppendMessage(ctx context.Context, message *ChatMessage) error {
	if message.Role != RoleUser && message.Role != RoleAssistant && message.Role != RoleSystem {
		return errors.NewValidationError("invalid message role")
	}

	if message.ID == uuid.Nil {
		message.ID = uuid.New()
	}
	message.CreatedAt = time.Now()

	return r.db.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO chat_messages (id, session_id, role, content, created_at)
			VALUES (:id, :session_id, :role, :content, :created_at)`

		if _, err := tx.NamedExecContext(ctx, query, message); err != nil {
			return errors.NewInternalError("failed to append message").WithCause(err)
		}

		result, err := tx.ExecContext(ctx, `UPDATE chat_sessions SET updated_at = NOW() WHERE id = $1`, message.SessionID)
		if err != nil {
			return errors.NewInternalError("failed to touch session").WithCause(err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return errors.NewInternalError("failed to get rows affected").WithCause(err)
		}
		if rowsAffected == 0 {
			return errors.NewNotFoundError("session")
		}

		return nil
	})
}

// ListMessages lists a session's messages in chronological order
func (r *SessionRepository) ListMessages(ctx context.Context, sessionID uuid.UUID, pagination *Pagination) ([]*ChatMessage, error) {
	if pagination == nil {
		pagination = &Pagination{}
	}

	query := `
		SELECT * FROM chat_messages
		WHERE session_id = $1
		ORDER BY created_at ASC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryWithTimeout(ctx, query, sessionID, pagination.Limit(), pagination.Offset())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]*ChatMessage, 0)
	for rows.Next() {
		var message ChatMessage
		if err := rows.StructScan(&message); err != nil {
			return nil, errors.NewInternalError("failed to scan message").WithCause(err)
		}
		messages = append(messages, &message)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternalError("failed to read messages").WithCause(err)
	}

	return messages, nil
}

// CountActiveSessions counts sessions updated within the last 24 hours
func (r *SessionRepository) CountActiveSessions(ctx context.Context) (int64, error) {
	var count int64
	query := `SELECT COUNT(*) FROM chat_sessions WHERE NOT archived AND updated_at > NOW() - INTERVAL '24 hours'`

	if err := r.db.GetContext(ctx, &count, query); err != nil {
		return 0, errors.NewInternalError("failed to count active sessions").WithCause(err)
	}

	return count, nil
}
