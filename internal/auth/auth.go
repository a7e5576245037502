// Package auth guards the daemon API with bcrypt-checked users and HS256
// bearer tokens.
package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// Role names. Viewers may read status, logs and history; admins may also
// start and stop the worker.
const (
	RoleAdmin  = "admin"
	RoleViewer = "viewer"
)

// Action is what a request does to the worker.
type Action string

const (
	ActionRead    Action = "read"
	ActionControl Action = "control"
)

// User is a configured API account.
type User struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"` // bcrypt
	Role         string `mapstructure:"role"`          // admin (default) or viewer
}

// Config is the [server.auth] section.
type Config struct {
	Enabled   bool          `mapstructure:"enabled"`
	JWTSecret string        `mapstructure:"jwt_secret"` // random per process when empty
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
	Users     []User        `mapstructure:"users"`
}

// Claims are carried in issued tokens.
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Token is an issued bearer token.
type Token struct {
	Type      string    `json:"type"`
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Service authenticates users and issues and verifies tokens.
type Service struct {
	users     map[string]User
	jwtSecret []byte
	tokenTTL  time.Duration
}

func New(cfg Config) (*Service, error) {
	if len(cfg.Users) == 0 {
		return nil, errors.New("auth enabled but no users configured")
	}
	s := &Service{users: make(map[string]User, len(cfg.Users)), jwtSecret: []byte(cfg.JWTSecret), tokenTTL: cfg.TokenTTL}
	for _, u := range cfg.Users {
		if u.Username == "" || u.PasswordHash == "" {
			return nil, errors.New("auth user needs username and password_hash")
		}
		if _, err := bcrypt.Cost([]byte(u.PasswordHash)); err != nil {
			return nil, fmt.Errorf("user %s: password_hash is not a bcrypt hash: %w", u.Username, err)
		}
		switch u.Role {
		case "":
			u.Role = RoleAdmin
		case RoleAdmin, RoleViewer:
		default:
			return nil, fmt.Errorf("user %s: unknown role %q", u.Username, u.Role)
		}
		s.users[u.Username] = u
	}
	if len(s.jwtSecret) == 0 {
		s.jwtSecret = make([]byte, 32)
		if _, err := rand.Read(s.jwtSecret); err != nil {
			return nil, fmt.Errorf("failed to generate JWT secret: %w", err)
		}
	}
	if s.tokenTTL <= 0 {
		s.tokenTTL = 24 * time.Hour
	}
	return s, nil
}

// HashPassword returns the bcrypt hash to put in password_hash.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password cannot be empty")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(h), err
}

// CheckPassword returns the user's claims when password matches.
func (s *Service) CheckPassword(username, password string) (*Claims, error) {
	u, ok := s.users[username]
	if !ok || password == "" {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &Claims{Username: u.Username, Role: u.Role}, nil
}

// Login checks the password and issues a token.
func (s *Service) Login(username, password string) (*Token, error) {
	c, err := s.CheckPassword(username, password)
	if err != nil {
		return nil, err
	}
	return s.issue(c)
}

func (s *Service) issue(c *Claims) (*Token, error) {
	now := time.Now()
	expiresAt := now.Add(s.tokenTTL)
	c.RegisteredClaims = jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		Issuer:    "minerd",
		Subject:   c.Username,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return &Token{Type: "Bearer", Value: signed, ExpiresAt: expiresAt}, nil
}

// Verify validates a token and returns its claims. Tokens of users that
// were removed from the configuration are rejected.
func (s *Service) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalidCredentials
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithIssuer("minerd"), jwt.WithExpirationRequired())
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	c, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidCredentials
	}
	u, ok := s.users[c.Username]
	if !ok {
		return nil, ErrInvalidCredentials
	}
	c.Role = u.Role
	return c, nil
}

// Allowed reports whether role may perform action.
func Allowed(role string, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleViewer:
		return action == ActionRead
	}
	return false
}
