package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chatbot/internal/auth"
	"chatbot/internal/config"
	"chatbot/internal/models"
	"chatbot/internal/store"

	"goa.design/clue/log"
)

// Custom errors for auth service
var (
	ErrUserAlreadyExists  = errors.New("user with this email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrHashingPassword    = errors.New("failed to hash password")
	ErrCreatingToken      = errors.New("failed to create access token")
	ErrValidation         = errors.New("input validation failed") // Generic validation error
)

type AuthService struct {
	store store.Store
	cfg   *config.ServerConfig
}

func NewAuthService(s store.Store, cfg *config.ServerConfig) *AuthService {
	return &AuthService{
		store: s,
		cfg:   cfg,
	}
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

// Register creates a new account.
func (s *AuthService) Register(ctx context.Context, email, password string) (*models.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password cannot be empty", ErrValidation)
	}

	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "[AuthService] hashing password failed"}, log.KV{K: "email", V: email})
		return nil, ErrHashingPassword
	}

	user, err := s.store.CreateUser(ctx, email, hashedPassword)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrUserAlreadyExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	log.Print(ctx, log.KV{K: "msg", V: "[AuthService] user registered"}, log.KV{K: "account", V: user.ID})
	return user, nil
}

// EnsureUser registers email unless it already exists. It is used to seed the
// development account at startup.
func (s *AuthService) EnsureUser(ctx context.Context, email, password string) error {
	_, err := s.Register(ctx, email, password)
	if errors.Is(err, ErrUserAlreadyExists) {
		return nil
	}
	return err
}

// Login verifies user credentials and returns an access token and user info.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return "", nil, ErrInvalidCredentials // Basic check before hitting DB
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil, ErrInvalidCredentials // Don't reveal if user exists or password is wrong
		}
		return "", nil, fmt.Errorf("failed to retrieve user: %w", err)
	}

	if !auth.CheckPasswordHash(ctx, password, user.HashedPassword) {
		return "", nil, ErrInvalidCredentials
	}

	token, err := auth.NewAccessToken(user.ID, s.cfg.JWTSecret, s.cfg.TokenExpiration)
	if err != nil {
		log.Error(ctx, err, log.KV{K: "msg", V: "[AuthService] generating token failed"}, log.KV{K: "account", V: user.ID})
		return "", nil, ErrCreatingToken
	}

	log.Print(ctx, log.KV{K: "msg", V: "[AuthService] user logged in"}, log.KV{K: "account", V: user.ID})
	return token, user, nil
}
