// Package auth issues and verifies the bearer tokens carried by relay and
// store requests.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Signage/internal/core"
	"github.com/dkeye/Signage/internal/domain"
)

const (
	RoleEditor  = "editor"
	RoleService = "service"

	ctxUser = "auth.user"
	ctxRole = "auth.role"
)

var ErrNoSecret = errors.New("jwt secret is empty")

type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type Manager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewManager(secret, issuer string, ttl time.Duration) (*Manager, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Manager{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}, nil
}

// Issue signs a token for user. The subject is the user id.
func (m *Manager) Issue(user *domain.User, role string) (string, error) {
	now := m.now()
	claims := &Claims{
		Email: user.Email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(user.ID),
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and time claims and returns the acting user.
func (m *Manager) Verify(token string) (*domain.User, *Claims, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) { return m.secret, nil }, opts...)
	if err != nil {
		return nil, nil, core.E(core.KindAuthentication, "auth.verify", err)
	}
	user, err := domain.NewUser(claims.Subject, claims.Email)
	if err != nil {
		return nil, nil, core.E(core.KindAuthentication, "auth.verify", err)
	}
	return user, claims, nil
}

// Subject reads the user from a token without checking its signature.
// Clients use it to learn who they are; servers must call Verify.
func Subject(token string) (*domain.User, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, core.E(core.KindAuthentication, "auth.subject", err)
	}
	user, err := domain.NewUser(claims.Subject, claims.Email)
	if err != nil {
		return nil, core.E(core.KindAuthentication, "auth.subject", err)
	}
	return user, nil
}

// BearerToken extracts the token from the Authorization header, falling back
// to the token query parameter for browser websocket clients.
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if t, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(t)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// Middleware rejects requests without a valid token. When roles are given the
// token's role must be one of them.
func (m *Manager) Middleware(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, claims, err := m.Verify(BearerToken(c.Request))
		if err != nil {
			log.Warn().Str("module", "adapters.auth").Str("path", c.FullPath()).Err(err).Msg("rejected token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody(core.KindAuthentication, "invalid or missing token"))
			return
		}
		if len(roles) > 0 && !hasRole(roles, claims.Role) {
			c.AbortWithStatusJSON(http.StatusForbidden, errorBody(core.KindAuthentication, "role not allowed"))
			return
		}
		c.Set(ctxUser, user)
		c.Set(ctxRole, claims.Role)
		c.Next()
	}
}

// UserFrom returns the user stored by Middleware.
func UserFrom(c *gin.Context) (*domain.User, bool) {
	v, ok := c.Get(ctxUser)
	if !ok {
		return nil, false
	}
	u, ok := v.(*domain.User)
	return u, ok
}

func hasRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func errorBody(kind core.Kind, msg string) gin.H {
	return gin.H{"error": gin.H{"code": kind.String(), "message": msg}}
}
