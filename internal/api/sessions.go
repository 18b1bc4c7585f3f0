package api

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/netra-labs/netra/internal/database"
	"github.com/netra-labs/netra/pkg/config"
	"github.com/netra-labs/netra/pkg/logging"
	"github.com/netra-labs/netra/pkg/metrics"
)

// SessionCounter tracks daily session creation counts
type SessionCounter interface {
	IncrementSessionCount(ctx context.Context, env config.Environment) (int64, error)
}

// SessionHandler handles chat session endpoints
type SessionHandler struct {
	repo    database.SessionRepositoryInterface
	counter SessionCounter
	metrics *metrics.Metrics
	logger  *logging.Logger
	env     config.Environment
}

// NewSessionHandler creates a session handler. The counter may be nil when
// the cache is unavailable, session creation still succeeds.
func NewSessionHandler(repo database.SessionRepositoryInterface, counter SessionCounter, m *metrics.Metrics, env config.Environment) *SessionHandler {
	return &SessionHandler{
		repo:    repo,
		counter: counter,
		metrics: m,
		logger:  logging.GetLogger(),
		env:     env,
	}
}

// CreateSessionRequest is the request body for creating a session
type CreateSessionRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Title  string `json:"title" binding:"required,max=200"`
}

// AppendMessageRequest is the request body for appending a message
type AppendMessageRequest struct {
	Role    string `json:"role" binding:"required,oneof=user assistant system"`
	Content string `json:"content" binding:"required"`
}

// CreateSession creates a new chat session
// POST /api/v1/sessions
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestResponse(c, "Invalid request body: "+err.Error())
		return
	}

	session := &database.ChatSession{
		UserID:      req.UserID,
		Title:       req.Title,
		Environment: string(h.env),
	}

	if err := h.repo.CreateSession(c.Request.Context(), session); err != nil {
		ErrorResponseFromError(c, err)
		return
	}

	h.logger.LogSessionEvent(c.Request.Context(), "session_created", session.ID.String(), nil)

	if h.counter != nil {
		if _, err := h.counter.IncrementSessionCount(c.Request.Context(), h.env); err != nil {
			// Counter is advisory, the session itself is already committed
			h.logger.Warn("Failed to increment session counter", "error", err.Error())
		}
	}

	h.refreshActiveSessions(c.Request.Context())

	CreatedResponse(c, session)
}

// GetSession retrieves a session by ID
// GET /api/v1/sessions/:id
func (h *SessionHandler) GetSession(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		BadRequestResponse(c, "Invalid session ID")
		return
	}

	session, err := h.repo.GetSession(c.Request.Context(), id)
	if err != nil {
		ErrorResponseFromError(c, err)
		return
	}

	SuccessResponse(c, session)
}

// ListSessions lists a user's sessions, most recently active first
// GET /api/v1/sessions?user_id=...&page=1&page_size=20
func (h *SessionHandler) ListSessions(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		BadRequestResponse(c, "user_id query parameter is required")
		return
	}

	pagination := &database.Pagination{
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "page_size", 20),
	}

	sessions, total, err := h.repo.ListSessions(c.Request.Context(), userID, pagination)
	if err != nil {
		ErrorResponseFromError(c, err)
		return
	}

	SuccessResponseWithMeta(c, gin.H{"sessions": sessions}, &Meta{
		Pagination: NewPagination(pagination.Page, pagination.PageSize, total),
	})
}

// ArchiveSession marks a session archived
// POST /api/v1/sessions/:id/archive
func (h *SessionHandler) ArchiveSession(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		BadRequestResponse(c, "Invalid session ID")
		return
	}

	if err := h.repo.ArchiveSession(c.Request.Context(), id); err != nil {
		ErrorResponseFromError(c, err)
		return
	}

	h.logger.LogSessionEvent(c.Request.Context(), "session_archived", id.String(), nil)
	h.refreshActiveSessions(c.Request.Context())

	SuccessResponse(c, gin.H{"archived": true})
}

// DeleteSession deletes a session and all of its messages
// DELETE /api/v1/sessions/:id
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		BadRequestResponse(c, "Invalid session ID")
		return
	}

	if err := h.repo.DeleteSession(c.Request.Context(), id); err != nil {
		ErrorResponseFromError(c, err)
		return
	}

	h.logger.LogSessionEvent(c.Request.Context(), "session_deleted", id.String(), nil)
	h.refreshActiveSessions(c.Request.Context())

	NoContentResponse(c)
}

// AppendMessage appends a message to a session
// POST /api/v1/sessions/:id/messages
func (h *SessionHandler) AppendMessage(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		BadRequestResponse(c, "Invalid session ID")
		return
	}

	var req AppendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestResponse(c, "Invalid request body: "+err.Error())
		return
	}

	message := &database.ChatMessage{
		SessionID: id,
		Role:      req.Role,
		Content:   req.Content,
	}

	if err := h.repo.AppendMessage(c.Request.Context(), message); err != nil {
		ErrorResponseFromError(c, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordMessage(message.Role)
	}

	CreatedResponse(c, message)
}

// ListMessages lists a session's messages in chronological order
// GET /api/v1/sessions/:id/messages
func (h *SessionHandler) ListMessages(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		BadRequestResponse(c, "Invalid session ID")
		return
	}

	pagination := &database.Pagination{
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "page_size", 50),
	}

	messages, err := h.repo.ListMessages(c.Request.Context(), id, pagination)
	if err != nil {
		ErrorResponseFromError(c, err)
		return
	}

	SuccessResponse(c, gin.H{"messages": messages})
}

// refreshActiveSessions updates the active session gauge after a mutation
func (h *SessionHandler) refreshActiveSessions(ctx context.Context) {
	if h.metrics == nil {
		return
	}

	count, err := h.repo.CountActiveSessions(ctx)
	if err != nil {
		h.logger.Warn("Failed to count active sessions", "error", err.Error())
		return
	}
	h.metrics.UpdateActiveSessions(string(h.env), count)
}

func queryInt(c *gin.Context, key string, fallback int) int {
	if raw := c.Query(key); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil {
			return value
		}
	}
	return fallback
}
