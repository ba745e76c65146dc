package api

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/therapy-booking/internal/errors"
)

// TokenIssuer is the issuer claim on user session tokens.
const TokenIssuer = "therapy-booking"

const localUserID = "user_id"

// Sessions mints and verifies user session tokens (HS256 JWTs whose subject
// is the user ID).
type Sessions struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSessions creates a Sessions signer.
func NewSessions(secret string, ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Sessions{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue returns a signed token for userID and its expiry.
func (s *Sessions) Issue(userID string) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    TokenIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing session token: %w", err)
	}
	return signed, exp, nil
}

// Verify checks a token and returns its user ID.
func (s *Sessions) Verify(raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (interface{}, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(TokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", perrors.ErrAuthFailure, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", perrors.ErrAuthFailure)
	}
	return claims.Subject, nil
}

func bearerToken(c *fiber.Ctx) (string, error) {
	header := c.Get(fiber.HeaderAuthorization)
	if header == "" {
		return "", errMissingAuth
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return "", errAuthScheme
	}
	return strings.TrimPrefix(header, "Bearer "), nil
}

var (
	errMissingAuth = errors.New("authorization header is required")
	errAuthScheme  = errors.New("authorization header must use Bearer scheme")
)

func authProblem(c *fiber.Ctx, err error) error {
	if errors.Is(err, errMissingAuth) {
		return problemResponse(c, fiber.StatusUnauthorized, "missing_auth", "Unauthorized", "Authorization header is required")
	}
	return problemResponse(c, fiber.StatusUnauthorized, "invalid_auth_scheme", "Unauthorized", "Authorization header must use Bearer scheme")
}

// requireAdmin checks the admin API key. With no key configured the admin
// routes are closed.
func requireAdmin(apiKey string, logger zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if apiKey == "" {
			return problemResponse(c, fiber.StatusForbidden,
				"admin_disabled", "Forbidden",
				"Admin API is not configured")
		}

		token, err := bearerToken(c)
		if err != nil {
			return authProblem(c, err)
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
			logger.Warn().
				Str("path", c.Path()).
				Str("method", c.Method()).
				Msg("unauthorized request: invalid API key")
			return problemResponse(c, fiber.StatusUnauthorized,
				"invalid_api_key", "Unauthorized",
				"Invalid API key")
		}
		return c.Next()
	}
}

// requireUser checks a user session token and stores the user ID in locals.
func requireUser(sessions *Sessions, logger zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if sessions == nil {
			return problemResponse(c, fiber.StatusServiceUnavailable,
				"sessions_disabled", "Service Unavailable",
				"User sessions are not configured")
		}

		token, err := bearerToken(c)
		if err != nil {
			return authProblem(c, err)
		}

		userID, err := sessions.Verify(token)
		if err != nil {
			logger.Debug().Err(err).Str("path", c.Path()).Msg("rejected session token")
			return problemResponse(c, fiber.StatusUnauthorized,
				"invalid_session", "Unauthorized",
				"Session token is invalid or expired")
		}

		c.Locals(localUserID, userID)
		return c.Next()
	}
}

// problemResponse returns an RFC 7807 Problem Detail error response.
func problemResponse(c *fiber.Ctx, status int, errType, title, detail string) error {
	return c.Status(status).JSON(ProblemDetail{
		Type:     errType,
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: c.Path(),
	})
}
