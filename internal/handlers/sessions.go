package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/tippster/internal/auth"
	"github.com/charlesng35/tippster/internal/models"
	apperrors "github.com/charlesng35/tippster/pkg/errors"
	"github.com/charlesng35/tippster/pkg/response"
)

// SessionHandler lets a signed-in user inspect and end their own sessions.
type SessionHandler struct {
	tracker *iauth.SessionTracker
	tokens  *iauth.TokenService
}

// NewSessionHandler builds the self-service session endpoints.
func NewSessionHandler(tracker *iauth.SessionTracker, tokens *iauth.TokenService) (*SessionHandler, error) {
	if tracker == nil || tokens == nil {
		return nil, errors.New("session handler: tracker and token service are required")
	}
	return &SessionHandler{tracker: tracker, tokens: tokens}, nil
}

type sessionPayload struct {
	models.Session
	Current bool `json:"current"`
}

func sessionPayloads(sessions []models.Session, currentID string) []sessionPayload {
	out := make([]sessionPayload, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, sessionPayload{Session: session, Current: session.ID == currentID})
	}
	return out
}

// GET /api/sessions
func (h *SessionHandler) List(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}

	sessions, err := h.tracker.ListActiveSessions(requestContext(c), principal.UserID)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, sessionPayloads(sessions, principal.SessionID))
}

// DELETE /api/sessions/:id
func (h *SessionHandler) Revoke(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}

	sessionID := strings.TrimSpace(c.Param("id"))
	if sessionID == "" {
		response.Error(c, apperrors.NewBadRequest("session id is required"))
		return
	}

	if err := h.tokens.RevokeSession(requestContext(c), principal.UserID, sessionID); err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"revoked": true, "current": sessionID == principal.SessionID})
}

// POST /api/sessions/revoke-others
func (h *SessionHandler) RevokeOthers(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}

	closed, err := h.tokens.RevokeOtherSessions(requestContext(c), principal.UserID, principal.SessionID)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"revoked": closed})
}
