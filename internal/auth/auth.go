// Package auth is the identity provider: it verifies credentials against a
// local SQLite user store and issues short-lived HS256 tokens.
//
// The pipeline trusts this package's (userID, role) result unconditionally;
// nothing past the API boundary re-checks credentials.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/finsolve/chatbot/internal/access"
	"github.com/finsolve/chatbot/internal/log"
)

// Sentinel errors; check with errors.Is.
var (
	// ErrInvalidCredentials covers unknown users and wrong passwords alike,
	// so responses don't reveal which usernames exist.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrUserExists indicates an AddUser conflict.
	ErrUserExists = errors.New("user already exists")

	// ErrInvalidToken covers expired, malformed, and mis-signed tokens.
	ErrInvalidToken = errors.New("invalid token")
)

// Identity is the authenticated (user, role) pair the pipeline operates on.
type Identity struct {
	UserID string
	Role   access.Role
}

// Service authenticates users and mints/verifies tokens.
type Service struct {
	db     *sql.DB
	secret []byte
	ttl    time.Duration
	logger log.Logger
}

// New creates a Service on an already-opened and migrated user database.
func New(db *sql.DB, secret string, ttl time.Duration, logger log.Logger) *Service {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Service{
		db:     db,
		secret: []byte(secret),
		ttl:    ttl,
		logger: logger,
	}
}

// Authenticate verifies username/password and returns the user's identity.
func (s *Service) Authenticate(ctx context.Context, username, password string) (Identity, error) {
	var hashed, roleStr string
	err := s.db.QueryRowContext(ctx,
		`SELECT hashed_password, role FROM users WHERE username = ?`, username,
	).Scan(&hashed, &roleStr)
	if errors.Is(err, sql.ErrNoRows) {
		return Identity{}, ErrInvalidCredentials
	}
	if err != nil {
		return Identity{}, fmt.Errorf("querying user %q: %w", username, err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password)); err != nil {
		return Identity{}, ErrInvalidCredentials
	}

	role, err := access.ParseRole(roleStr)
	if err != nil {
		// A stored role outside the closed set means the store was
		// corrupted or written by something other than AddUser.
		return Identity{}, fmt.Errorf("user %q has corrupt role: %w", username, err)
	}

	s.logger.Debug("authenticated user", "username", username, "role", role)
	return Identity{UserID: username, Role: role}, nil
}

// AddUser creates a user with a bcrypt-hashed password.
func (s *Service) AddUser(ctx context.Context, username, password string, role access.Role) error {
	if !role.Valid() {
		return fmt.Errorf("unknown role %q", role)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (username, hashed_password, role) VALUES (?, ?, ?)`,
		username, string(hashed), string(role))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrUserExists, username)
		}
		return fmt.Errorf("inserting user %q: %w", username, err)
	}

	s.logger.Info("added user", "username", username, "role", role)
	return nil
}

// IssueToken mints an HS256 token for id, expiring after the configured TTL.
func (s *Service) IssueToken(id Identity) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  id.UserID,
		"role": string(id.Role),
		"iat":  jwt.NewNumericDate(now),
		"exp":  jwt.NewNumericDate(now.Add(s.ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// VerifyToken validates a token and returns the identity it asserts.
func (s *Service) VerifyToken(tokenStr string) (Identity, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	sub, _ := claims["sub"].(string)
	roleStr, _ := claims["role"].(string)
	role, err := access.ParseRole(roleStr)
	if err != nil || sub == "" {
		return Identity{}, ErrInvalidToken
	}

	return Identity{UserID: sub, Role: role}, nil
}

// isUniqueViolation detects a primary-key conflict on the users table. The
// modernc driver surfaces SQLite errors as strings, so this matches text.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint violation")
}
