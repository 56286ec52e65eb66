// Package auth holds the single admin credential. The rest of the
// server only ever asks it one question: is this request authenticated.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/wanghui5801/fleetmon/internal/storage"
)

var (
	ErrNotInitialized     = errors.New("admin password not initialized")
	ErrAlreadyInitialized = errors.New("admin password already initialized")
	ErrInvalidPassword    = errors.New("invalid password")
)

const tokenTTL = 24 * time.Hour

// Manager verifies the admin password and issues session tokens.
type Manager struct {
	store  storage.Store
	secret []byte
}

func NewManager(store storage.Store, secret string) *Manager {
	return &Manager{store: store, secret: []byte(secret)}
}

// Initialized reports whether an admin password has been set.
func (m *Manager) Initialized(ctx context.Context) bool {
	_, err := m.store.GetCredential(ctx)
	return err == nil
}

// Initialize sets the admin password once and returns a session token.
func (m *Manager) Initialize(ctx context.Context, password string) (string, error) {
	if password == "" {
		return "", ErrInvalidPassword
	}
	if m.Initialized(ctx) {
		return "", ErrAlreadyInitialized
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	if err := m.store.SaveCredential(ctx, hash); err != nil {
		return "", fmt.Errorf("save credential: %w", err)
	}
	return m.issueToken()
}

// Login checks the password and returns a session token.
func (m *Manager) Login(ctx context.Context, password string) (string, error) {
	hash, err := m.store.GetCredential(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", ErrNotInitialized
		}
		return "", fmt.Errorf("load credential: %w", err)
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
		return "", ErrInvalidPassword
	}
	return m.issueToken()
}

// Reset replaces the admin password after verifying the old one.
func (m *Manager) Reset(ctx context.Context, oldPassword, newPassword string) error {
	if newPassword == "" {
		return ErrInvalidPassword
	}
	if _, err := m.Login(ctx, oldPassword); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := m.store.SaveCredential(ctx, hash); err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

// Verify reports whether token is a currently valid session token.
func (m *Manager) Verify(token string) bool {
	if token == "" {
		return false
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	return err == nil && parsed.Valid
}

func (m *Manager) issueToken() (string, error) {
	claims := jwt.MapClaims{
		"exp": time.Now().Add(tokenTTL).Unix(),
		"iat": time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
