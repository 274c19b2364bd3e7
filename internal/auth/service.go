// Package auth manages accounts: signup, login, logout, token verification and
// profile updates.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"carebridge/internal/database"
	"carebridge/internal/notify"
	"carebridge/internal/session"
	"carebridge/pkg/interfaces"
	"carebridge/pkg/types"
)

// Feature recorded when an account is created
const FeatureSignup = "signup"

// Welcome notification content
const (
	welcomeTitle   = "Welcome to CareBridge!"
	welcomeMessage = "Your account has been created successfully. Start exploring our features!"
)

// Sessions is the subset of the session tracker used by Service
type Sessions interface {
	interfaces.ActivityRecorder
	Stats(userID string) session.Stats
}

// Notifications creates persisted user notifications
type Notifications interface {
	Notify(ctx context.Context, userID, notificationType, title, message string, data map[string]interface{}) (*types.Notification, error)
}

// SignupRequest is the body of a signup call
type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

// LoginRequest is the body of a login call
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the access token and the user's session statistics
type LoginResponse struct {
	AccessToken string        `json:"access_token"`
	TokenType   string        `json:"token_type"`
	ExpiresAt   time.Time     `json:"expires_at"`
	UserID      string        `json:"user_id"`
	UserStats   session.Stats `json:"user_stats"`
}

// ProfileUpdate is a partial profile change; nil fields are left alone
type ProfileUpdate struct {
	Username *string `json:"username,omitempty"`
	Email    *string `json:"email,omitempty"`
	Phone    *string `json:"phone,omitempty"`
}

// Service implements the account operations over the document store
type Service struct {
	store    interfaces.DocumentStore
	hasher   *Hasher
	tokens   *TokenProvider
	sessions Sessions
	notes    Notifications
	now      func() time.Time
	logger   zerolog.Logger
}

// NewService wires the account service. notes may be nil to skip the welcome
// notification.
func NewService(store interfaces.DocumentStore, hasher *Hasher, tokens *TokenProvider, sessions Sessions, notes Notifications, logger zerolog.Logger) *Service {
	return &Service{
		store:    store,
		hasher:   hasher,
		tokens:   tokens,
		sessions: sessions,
		notes:    notes,
		now:      time.Now,
		logger:   logger.With().Str("component", "auth").Logger(),
	}
}

// Signup creates an account and returns its id
func (s *Service) Signup(ctx context.Context, req SignupRequest) (string, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		return "", fmt.Errorf("%w: username and password are required", ErrInvalidInput)
	}

	if _, err := s.findByEmail(ctx, email); err == nil {
		return "", ErrEmailTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return "", err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	userID, err := s.store.Insert(ctx, types.CollectionUsers, types.Document{
		"username":      strings.TrimSpace(req.Username),
		"email":         email,
		"phone":         req.Phone,
		"password_hash": hash,
		"last_login":    nil,
		"is_active":     true,
	})
	if errors.Is(err, database.ErrDuplicate) {
		return "", ErrEmailTaken
	}
	if err != nil {
		return "", fmt.Errorf("failed to create user: %w", err)
	}

	s.sessions.RecordFeatureUsage(userID, FeatureSignup, map[string]interface{}{
		"email":    email,
		"username": req.Username,
	})

	if s.notes != nil {
		if _, err := s.notes.Notify(ctx, userID, notify.TypeWelcome, welcomeTitle, welcomeMessage,
			map[string]interface{}{"feature_tour": true}); err != nil {
			// FUNCTIONAL DISCOVERY: The account exists at this point; a lost welcome is not a signup failure
			s.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to create welcome notification")
		}
	}

	s.logger.Info().Str("user_id", userID).Msg("user signed up")
	return userID, nil
}

// Login checks credentials, records the login and issues an access token
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	rec, err := s.findByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !s.hasher.Matches(rec.String("password_hash"), req.Password) {
		return nil, ErrInvalidCredentials
	}

	userID := rec.ID
	now := s.now().UTC()
	s.sessions.RecordLogin(userID)

	if _, err := s.store.Update(ctx, types.CollectionUsers, types.Filter{ID: userID},
		types.Document{"last_login": now}); err != nil {
		return nil, fmt.Errorf("failed to update last login: %w", err)
	}
	if _, err := s.store.Insert(ctx, types.CollectionUserAnalytics, types.Document{
		"user_id":    userID,
		"event":      session.ActivityLogin,
		"created_at": now,
	}); err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to record login analytics")
	}

	token, expiresAt, err := s.tokens.Issue(userID, email)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	return &LoginResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresAt:   expiresAt,
		UserID:      userID,
		UserStats:   s.sessions.Stats(userID),
	}, nil
}

// Logout ends the user's session and reports whether one was open
func (s *Service) Logout(userID string) bool {
	return s.sessions.RecordLogout(userID)
}

// Verify validates an access token and returns its user id
func (s *Service) Verify(token string) (string, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// Me returns the user's profile
func (s *Service) Me(ctx context.Context, userID string) (*types.User, error) {
	records, err := s.store.Find(ctx, types.CollectionUsers, types.Filter{ID: userID}, types.FindOptions{Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrUserNotFound
	}
	return toUser(records[0]), nil
}

// UpdateProfile applies the non-nil fields of update and returns the new profile
func (s *Service) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (*types.User, error) {
	patch := types.Document{}
	if update.Username != nil {
		name := strings.TrimSpace(*update.Username)
		if name == "" {
			return nil, fmt.Errorf("%w: username must not be empty", ErrInvalidInput)
		}
		patch["username"] = name
	}
	if update.Phone != nil {
		patch["phone"] = *update.Phone
	}
	if update.Email != nil {
		email, err := normalizeEmail(*update.Email)
		if err != nil {
			return nil, err
		}
		existing, err := s.findByEmail(ctx, email)
		if err == nil && existing.ID != userID {
			return nil, ErrEmailTaken
		}
		if err != nil && !errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		patch["email"] = email
	}
	if len(patch) == 0 {
		return nil, ErrNoUpdate
	}

	n, err := s.store.Update(ctx, types.CollectionUsers, types.Filter{ID: userID}, patch)
	if errors.Is(err, database.ErrDuplicate) {
		return nil, ErrEmailTaken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	if n == 0 {
		return nil, ErrUserNotFound
	}
	return s.Me(ctx, userID)
}

func (s *Service) findByEmail(ctx context.Context, email string) (*types.Record, error) {
	records, err := s.store.Find(ctx, types.CollectionUsers, types.Filter{
		Fields: map[string]interface{}{"email": email},
	}, types.FindOptions{Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrUserNotFound
	}
	return records[0], nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: invalid email address", ErrInvalidInput)
	}
	return email, nil
}

func toUser(rec *types.Record) *types.User {
	return &types.User{
		ID:       rec.ID,
		Username: rec.String("username"),
		Email:    rec.String("email"),
		Phone:    rec.String("phone"),
	}
}
