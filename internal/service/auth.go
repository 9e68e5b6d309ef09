package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/pairchat/internal/logger"
	"github.com/pairchat/internal/model"
	"github.com/pairchat/internal/repository"
	"github.com/pairchat/internal/storage"
)

var (
	ErrInvalidEmail       = errors.New("invalid email")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
	ErrWeakPassword       = errors.New("password too short")
	ErrRateLimitExceeded  = errors.New("rate limit exceeded")
)

const minPasswordLength = 8

// AuthService owns accounts and sessions. Each login creates a session with
// a fresh 32-byte secret; the client signs every request with it.
type AuthService struct {
	users    *repository.UserRepository
	sessions *repository.SessionRepository
	store    storage.Store
}

func NewAuthService(users *repository.UserRepository, sessions *repository.SessionRepository, store storage.Store) *AuthService {
	return &AuthService{users: users, sessions: sessions, store: store}
}

type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	DeviceName  string `json:"device_name"`
}

type LoginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	DeviceName string `json:"device_name"`
}

// AuthResponse carries the credentials for request signing. The secret is
// delivered exactly once.
type AuthResponse struct {
	SessionID     string           `json:"session_id"`
	SessionSecret string           `json:"session_secret"`
	User          model.UserPublic `json:"user"`
}

// Register creates the account and the first session.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	defer logger.DeferLogDuration("auth.Register", time.Now())()
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidEmail
	}
	if len(req.Password) < minPasswordLength {
		return nil, ErrWeakPassword
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth.Register hash: %w", err)
	}

	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = email
	}
	u := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return s.openSession(ctx, u, req.DeviceName)
}

// Login verifies credentials and opens a new session. Attempts are rate
// limited per email.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	defer logger.DeferLogDuration("auth.Login", time.Now())()
	email := strings.ToLower(strings.TrimSpace(req.Email))

	allowed, err := s.store.CheckLoginRateLimit(ctx, email)
	if err != nil {
		logger.Errorf("auth.Login rate limit check email=%s: %v", email, err)
	} else if !allowed {
		return nil, ErrRateLimitExceeded
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return s.openSession(ctx, u, req.DeviceName)
}

func (s *AuthService) openSession(ctx context.Context, u *model.User, deviceName string) (*AuthResponse, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("auth secret: %w", err)
	}
	secretB64 := base64.StdEncoding.EncodeToString(secret)

	now := time.Now().UTC()
	sess := &model.Session{
		ID:         uuid.New().String(),
		UserID:     u.ID,
		DeviceName: strings.TrimSpace(deviceName),
		LastSeenAt: now,
		CreatedAt:  now,
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}
	if err := s.store.SetSessionSecret(ctx, sess.ID, secretB64); err != nil {
		return nil, fmt.Errorf("auth store secret: %w", err)
	}
	return &AuthResponse{
		SessionID:     sess.ID,
		SessionSecret: secretB64,
		User:          u.ToPublic(),
	}, nil
}

// ListSessions returns the user's active sessions for the devices screen.
func (s *AuthService) ListSessions(ctx context.Context, userID string) ([]model.Session, error) {
	return s.sessions.ListByUser(ctx, userID)
}

// Logout revokes one session and drops its secret.
func (s *AuthService) Logout(ctx context.Context, userID, sessionID string) (bool, error) {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if sess.UserID != userID {
		return false, nil
	}
	if err := s.sessions.Revoke(ctx, sessionID); err != nil {
		return false, err
	}
	if err := s.store.DeleteSessionSecret(ctx, sessionID); err != nil {
		logger.Errorf("auth.Logout drop secret session=%s: %v", sessionID, err)
	}
	return true, nil
}

// LogoutAll revokes every session of the user.
func (s *AuthService) LogoutAll(ctx context.Context, userID string) (int, error) {
	sessions, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, sess := range sessions {
		if err := s.sessions.Revoke(ctx, sess.ID); err != nil {
			logger.Errorf("auth.LogoutAll revoke session=%s: %v", sess.ID, err)
			continue
		}
		if err := s.store.DeleteSessionSecret(ctx, sess.ID); err != nil {
			logger.Errorf("auth.LogoutAll drop secret session=%s: %v", sess.ID, err)
		}
		n++
	}
	return n, nil
}
