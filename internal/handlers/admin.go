package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/tippster/internal/auth"
	"github.com/charlesng35/tippster/internal/services"
	apperrors "github.com/charlesng35/tippster/pkg/errors"
	"github.com/charlesng35/tippster/pkg/response"
)

// AdminHandler exposes user moderation endpoints for moderators and administrators.
type AdminHandler struct {
	users   *services.UserService
	tracker *iauth.SessionTracker
}

// NewAdminHandler builds the user administration endpoints.
func NewAdminHandler(users *services.UserService, tracker *iauth.SessionTracker) (*AdminHandler, error) {
	if users == nil || tracker == nil {
		return nil, errors.New("admin handler: user service and session tracker are required")
	}
	return &AdminHandler{users: users, tracker: tracker}, nil
}

type banRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type roleRequest struct {
	Role string `json:"role" validate:"required,oneof=user moderator admin"`
}

// GET /api/admin/users
func (h *AdminHandler) List(c *gin.Context) {
	opts := services.ListUsersOptions{
		Page:     parseIntQuery(c, "page", 1),
		PageSize: parseIntQuery(c, "per_page", 50),
		Filters: services.UserFilters{
			Role:  c.Query("role"),
			Query: c.Query("q"),
		},
	}
	if raw := strings.TrimSpace(c.Query("banned")); raw != "" {
		banned, err := strconv.ParseBool(raw)
		if err != nil {
			response.Error(c, apperrors.NewBadRequest("banned must be true or false"))
			return
		}
		opts.Filters.Banned = &banned
	}

	users, total, err := h.users.List(requestContext(c), opts)
	if err != nil {
		fail(c, err)
		return
	}

	perPage := opts.PageSize
	if perPage <= 0 || perPage > 200 {
		perPage = 50
	}
	page := opts.Page
	if page <= 0 {
		page = 1
	}
	totalPages := int((total + int64(perPage) - 1) / int64(perPage))

	response.SuccessWithMeta(c, http.StatusOK, users, &response.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      int(total),
		TotalPages: totalPages,
	})
}

// GET /api/admin/users/:id
func (h *AdminHandler) Get(c *gin.Context) {
	user, err := h.users.GetByID(requestContext(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

// POST /api/admin/users/:id/ban
func (h *AdminHandler) Ban(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}

	var req banRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.Ban(requestContext(c), principal.UserID, c.Param("id"), strings.TrimSpace(req.Reason))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

// POST /api/admin/users/:id/unban
func (h *AdminHandler) Unban(c *gin.Context) {
	user, err := h.users.Unban(requestContext(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

// POST /api/admin/users/:id/verify
func (h *AdminHandler) Verify(c *gin.Context) {
	user, err := h.users.Verify(requestContext(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

// PATCH /api/admin/users/:id/role
func (h *AdminHandler) SetRole(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}

	var req roleRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.SetRole(requestContext(c), principal.UserID, c.Param("id"), req.Role)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

// GET /api/admin/users/:id/sessions
func (h *AdminHandler) Sessions(c *gin.Context) {
	sessions, err := h.users.Sessions(requestContext(c), h.tracker, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, sessionPayloads(sessions, ""))
}
