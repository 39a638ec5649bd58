// Package auth supplies authenticated identities to the API layer. The core
// services trust the Identity they are handed and perform only ownership and
// role checks.
package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"golang.org/x/crypto/bcrypt"
)

// Role classifies what an identity may act as.
type Role string

const (
	RoleAgent     Role = "agent"
	RolePublisher Role = "publisher"
	RoleAdmin     Role = "admin"
)

// Identity is an authenticated principal.
type Identity struct {
	Subject string
	Role    Role
}

// IsAdmin reports whether the identity holds the administrator role.
func (id Identity) IsAdmin() bool { return id.Role == RoleAdmin }

// User is one configured principal with a bcrypt password hash. A plain
// Password is accepted for test fixtures and hashed on manager construction.
type User struct {
	Username     string
	Password     string
	PasswordHash string
	Role         Role
}

// Manager issues and verifies bearer tokens.
type Manager struct {
	secret []byte
	users  map[string]User
	ttl    time.Duration
}

// NewManager builds a manager from a signing secret and a user list.
func NewManager(secret string, users []User) *Manager {
	m := &Manager{
		secret: []byte(secret),
		users:  make(map[string]User, len(users)),
		ttl:    24 * time.Hour,
	}
	for _, u := range users {
		if u.PasswordHash == "" && u.Password != "" {
			if hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost); err == nil {
				u.PasswordHash = string(hash)
			}
			u.Password = ""
		}
		m.users[u.Username] = u
	}
	return m
}

// Authenticate checks credentials and returns a signed token.
func (m *Manager) Authenticate(username, password string) (string, error) {
	u, ok := m.users[username]
	if !ok {
		return "", fmt.Errorf("unknown user")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", fmt.Errorf("invalid credentials")
	}

	claims := jwt.MapClaims{
		"sub":  u.Username,
		"role": string(u.Role),
		"exp":  time.Now().Add(m.ttl).Unix(),
		"iat":  time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Verify parses a bearer token and returns the identity it carries.
func (m *Manager) Verify(raw string) (Identity, error) {
	raw = strings.TrimSpace(strings.TrimPrefix(raw, "Bearer "))
	if raw == "" {
		return Identity{}, fmt.Errorf("missing token")
	}

	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Identity{}, fmt.Errorf("invalid token")
	}

	sub, _ := claims["sub"].(string)
	role, _ := claims["role"].(string)
	if sub == "" {
		return Identity{}, fmt.Errorf("token missing subject")
	}
	return Identity{Subject: sub, Role: Role(role)}, nil
}
