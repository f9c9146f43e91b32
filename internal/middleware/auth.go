package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/tippster/internal/auth"
	"github.com/charlesng35/tippster/internal/models"
	apperrors "github.com/charlesng35/tippster/pkg/errors"
	"github.com/charlesng35/tippster/pkg/metrics"
	"github.com/charlesng35/tippster/pkg/response"
)

const (
	CtxPrincipalKey = "authPrincipal"
	CtxUserIDKey    = "userID"
	CtxSessionIDKey = "sessionID"
)

// AccessVerifier validates access tokens without touching storage.
type AccessVerifier interface {
	VerifyAccessToken(token string) (*iauth.Claims, error)
}

// Principal is the authenticated identity attached to a request.
type Principal struct {
	UserID    string
	Role      models.Role
	SessionID string
}

// HasRole reports whether the principal holds one of the supplied roles.
func (p Principal) HasRole(roles ...models.Role) bool {
	for _, role := range roles {
		if p.Role == role {
			return true
		}
	}
	return false
}

// GuardOutcome tags the result of evaluating request credentials.
type GuardOutcome int

const (
	Anonymous GuardOutcome = iota
	Authenticated
	Rejected
)

func (o GuardOutcome) String() string {
	switch o {
	case Authenticated:
		return "authenticated"
	case Rejected:
		return "rejected"
	default:
		return "anonymous"
	}
}

// GuardResult carries the principal for Authenticated and the reason for Rejected.
type GuardResult struct {
	Outcome   GuardOutcome
	Principal Principal
	Err       error
}

// Evaluate inspects an Authorization header value. A missing header is Anonymous; a header that
// is present but malformed, expired or forged is Rejected.
func Evaluate(verifier AccessVerifier, authorization string) GuardResult {
	authorization = strings.TrimSpace(authorization)
	if authorization == "" {
		return GuardResult{Outcome: Anonymous}
	}
	if len(authorization) < 8 || !strings.EqualFold(authorization[:7], "Bearer ") {
		return GuardResult{Outcome: Rejected, Err: iauth.ErrTokenInvalid}
	}

	token := strings.TrimSpace(authorization[7:])
	if token == "" {
		return GuardResult{Outcome: Rejected, Err: iauth.ErrTokenInvalid}
	}

	claims, err := verifier.VerifyAccessToken(token)
	if err != nil {
		return GuardResult{Outcome: Rejected, Err: err}
	}

	return GuardResult{
		Outcome: Authenticated,
		Principal: Principal{
			UserID:    claims.UserID,
			Role:      claims.Role,
			SessionID: claims.SessionID,
		},
	}
}

// RequireAuth rejects requests without a valid access token.
func RequireAuth(verifier AccessVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		result := Evaluate(verifier, c.GetHeader("Authorization"))
		metrics.GuardDecisions.WithLabelValues("required", result.Outcome.String()).Inc()

		if result.Outcome != Authenticated {
			c.Header("WWW-Authenticate", "Bearer")
			response.Abort(c, rejectionError(result))
			return
		}

		setPrincipal(c, result.Principal)
		c.Next()
	}
}

// OptionalAuth attaches the principal when a valid token is present and never aborts. Invalid
// or expired tokens are treated as anonymous.
func OptionalAuth(verifier AccessVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		result := Evaluate(verifier, c.GetHeader("Authorization"))
		metrics.GuardDecisions.WithLabelValues("optional", result.Outcome.String()).Inc()

		if result.Outcome == Authenticated {
			setPrincipal(c, result.Principal)
		}
		c.Next()
	}
}

// RequireRoles must run after RequireAuth. It allows the request only for the listed roles.
func RequireRoles(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			metrics.GuardDecisions.WithLabelValues("role", Anonymous.String()).Inc()
			c.Header("WWW-Authenticate", "Bearer")
			response.Abort(c, apperrors.ErrUnauthorized)
			return
		}
		if !principal.HasRole(roles...) {
			metrics.GuardDecisions.WithLabelValues("role", Rejected.String()).Inc()
			response.Abort(c, apperrors.ErrInsufficientRole)
			return
		}
		metrics.GuardDecisions.WithLabelValues("role", Authenticated.String()).Inc()
		c.Next()
	}
}

// PrincipalFromContext returns the principal stored by RequireAuth or OptionalAuth.
func PrincipalFromContext(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(CtxPrincipalKey)
	if !ok {
		return Principal{}, false
	}
	principal, ok := v.(Principal)
	return principal, ok
}

func setPrincipal(c *gin.Context, principal Principal) {
	c.Set(CtxPrincipalKey, principal)
	c.Set(CtxUserIDKey, principal.UserID)
	if principal.SessionID != "" {
		c.Set(CtxSessionIDKey, principal.SessionID)
	}
}

func rejectionError(result GuardResult) error {
	if result.Outcome == Anonymous {
		return apperrors.ErrUnauthorized
	}
	if errors.Is(result.Err, iauth.ErrTokenExpired) {
		return apperrors.ErrTokenExpired
	}
	return apperrors.ErrTokenInvalid
}
