// Package auth issues and checks the agent tokens that guard the dashboard
// API.
package auth

import (
	"crypto/subtle"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt"
	"github.com/pkg/errors"
)

// LocalAgentID is the fiber.Ctx local holding the authenticated agent.
const LocalAgentID = "agent_id"

const issuerName = "callcoach"

var (
	ErrDisabled     = errors.New("agent tokens are not configured")
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrMissingAgent = errors.New("agent id is required")
)

// Issuer signs and verifies HS256 agent tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

type Option func(*Issuer)

// WithClock overrides the issuing clock.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

// NewIssuer returns an issuer; an empty secret disables it.
func NewIssuer(secret string, ttl time.Duration, opts ...Option) *Issuer {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	i := &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Enabled reports whether tokens are required.
func (i *Issuer) Enabled() bool {
	return len(i.secret) > 0
}

// Issue signs a token for agentID and returns it with its expiry.
func (i *Issuer) Issue(agentID string) (string, time.Time, error) {
	if !i.Enabled() {
		return "", time.Time{}, ErrDisabled
	}
	if agentID == "" {
		return "", time.Time{}, ErrMissingAgent
	}
	now := i.now()
	expires := now.Add(i.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.StandardClaims{
		Subject:   agentID,
		Issuer:    issuerName,
		IssuedAt:  now.Unix(),
		ExpiresAt: expires.Unix(),
	})
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "sign token")
	}
	return signed, expires, nil
}

// Verify returns the agent a token was issued to.
func (i *Issuer) Verify(tokenString string) (string, error) {
	if !i.Enabled() {
		return "", ErrDisabled
	}
	claims := &jwt.StandardClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		var verr *jwt.ValidationError
		if errors.As(err, &verr) && verr.Errors&jwt.ValidationErrorExpired != 0 {
			return "", ErrTokenExpired
		}
		return "", ErrInvalidToken
	}
	if !token.Valid || claims.Subject == "" || claims.Issuer != issuerName {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// Middleware rejects requests without a valid token. The token is read from
// a Bearer Authorization header or, for EventSource clients that cannot set
// headers, the token query parameter. It lets everything through when the
// issuer is disabled.
func (i *Issuer) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !i.Enabled() {
			return c.Next()
		}
		raw := bearerToken(c.Get(fiber.HeaderAuthorization))
		if raw == "" {
			raw = c.Query("token")
		}
		if raw == "" {
			return unauthorized(c, "missing token")
		}
		agentID, err := i.Verify(raw)
		if err != nil {
			return unauthorized(c, err.Error())
		}
		c.Locals(LocalAgentID, agentID)
		return c.Next()
	}
}

// CheckPasscode compares passcodes in constant time.
func CheckPasscode(expected, given string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(given)) == 1
}

// AgentFrom returns the agent set by Middleware, or "".
func AgentFrom(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalAgentID).(string)
	return id
}

func bearerToken(header string) string {
	const prefix = "bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

func unauthorized(c *fiber.Ctx, details string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"success": false,
		"error":   "Unauthorized",
		"details": details,
	})
}
