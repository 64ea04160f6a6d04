package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"container_telemetry/internal/models"
	"container_telemetry/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	defaultTokenTTL   = time.Hour
	tokenIssuer       = "container_telemetry"
	minUsernameLen    = 3
	maxUsernameLen    = 32
	minPasswordLength = 8
	maxPasswordBytes  = 72 // bcrypt input limit
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidUsername    = errors.New("username must be 3-32 characters of a-z, 0-9, '.', '_' or '-'")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrPasswordTooLong    = errors.New("password must be at most 72 bytes")
	ErrInvalidToken       = errors.New("invalid token")
)

// AuthConfig comes from the "auth" config section. Accounts named in
// Operators get the operator role; everyone else signs up as a viewer.
type AuthConfig struct {
	SigningKey string
	TokenTTL   time.Duration
	Operators  []string
}

// Token is an issued access token.
type Token struct {
	AccessToken string      `json:"token"`
	Role        models.Role `json:"role"`
	ExpiresAt   time.Time   `json:"expires_at"`
}

// AuthService registers accounts and issues role-carrying JWTs.
type AuthService struct {
	users     repository.Authorization
	key       []byte
	ttl       time.Duration
	operators map[string]struct{}
	now       func() time.Time
}

func NewAuthService(repo repository.Authorization, cfg AuthConfig) *AuthService {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	ops := make(map[string]struct{}, len(cfg.Operators))
	for _, name := range cfg.Operators {
		if n := normalizeUsername(name); n != "" {
			ops[n] = struct{}{}
		}
	}
	return &AuthService{users: repo, key: []byte(cfg.SigningKey), ttl: ttl, operators: ops, now: time.Now}
}

// SignUp creates an account. Usernames are case-insensitive.
func (s *AuthService) SignUp(ctx context.Context, username, password string) (models.Identity, error) {
	name := normalizeUsername(username)
	if !validUsername(name) {
		return models.Identity{}, ErrInvalidUsername
	}
	if len(password) < minPasswordLength {
		return models.Identity{}, ErrWeakPassword
	}
	if len(password) > maxPasswordBytes {
		return models.Identity{}, ErrPasswordTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.Identity{}, fmt.Errorf("hash password: %w", err)
	}

	u := models.User{Username: name, PasswordHash: string(hash), Role: s.roleFor(name, models.RoleViewer)}
	id, err := s.users.Create(ctx, u)
	if err != nil {
		return models.Identity{}, err
	}
	u.ID = id
	return u.Identity(), nil
}

// GenerateToken checks the credentials. Unknown users and wrong passwords
// both yield ErrInvalidCredentials.
func (s *AuthService) GenerateToken(ctx context.Context, username, password string) (Token, error) {
	name := normalizeUsername(username)
	u, err := s.users.GetByUsername(ctx, name)
	if err != nil {
		return Token{}, err
	}
	if u == nil {
		return Token{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return Token{}, ErrInvalidCredentials
	}

	u.Role = s.roleFor(u.Username, u.Role)
	return s.issue(u.Identity())
}

type claims struct {
	jwt.RegisteredClaims
	Username string      `json:"username"`
	Role     models.Role `json:"role"`
}

func (s *AuthService) issue(id models.Identity) (Token, error) {
	now := s.now()
	exp := now.Add(s.ttl)
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   strconv.Itoa(id.UserID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Username: id.Username,
		Role:     id.Role,
	})
	signed, err := t.SignedString(s.key)
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}
	return Token{AccessToken: signed, Role: id.Role, ExpiresAt: exp.UTC()}, nil
}

// ParseToken verifies an HS256 token and returns its bearer.
func (s *AuthService) ParseToken(accessToken string) (models.Identity, error) {
	var c claims
	keyFunc := func(*jwt.Token) (interface{}, error) { return s.key, nil }
	_, err := jwt.ParseWithClaims(accessToken, &c, keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return models.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	id, err := strconv.Atoi(c.Subject)
	if err != nil || id <= 0 {
		return models.Identity{}, fmt.Errorf("%w: bad subject %q", ErrInvalidToken, c.Subject)
	}
	role, ok := models.ParseRole(string(c.Role))
	if !ok {
		return models.Identity{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, c.Role)
	}
	return models.Identity{UserID: id, Username: c.Username, Role: role}, nil
}

// roleFor promotes configured operators; the stored role applies otherwise.
func (s *AuthService) roleFor(username string, stored models.Role) models.Role {
	if _, ok := s.operators[username]; ok {
		return models.RoleOperator
	}
	if stored == "" {
		return models.RoleViewer
	}
	return stored
}

func normalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func validUsername(s string) bool {
	if len(s) < minUsernameLen || len(s) > maxUsernameLen {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}
