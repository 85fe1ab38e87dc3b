package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/JESREAL1JDL7LUSTRE/Aura-Chat/internal/content"
	"github.com/JESREAL1JDL7LUSTRE/Aura-Chat/internal/models"

	"github.com/c-pro/geche"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultTokenExpiry = 24 * time.Hour
	loginFailedMessage = "Login failed"
)

var (
	ErrUserExists   = errors.New("user already exists")
	ErrInvalidToken = errors.New("invalid or expired token")
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

/// RegistrationRequest finalizes an account created by an admin: the user
// presents their one-time registration token and chooses a password.
type RegistrationRequest struct {
	Username string `json:"username"`
	Token    string `json:"token"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message,omitempty"`
	Token       string `json:"token,omitempty"`
	TokenExpiry int64  `json:"tokenExpiry,omitempty"`
}

type UserCredentials struct {
	models.User
	PasswordHash string `json:"passwordHash"`
	// Counter for consecutive failed login attempts to throttle brute force attacks.
	FailedLoginAttempts int64 `json:"failedLoginAttempts"`
	LastAttemptTime     int64 `json:"lastAttemptTime"`
}

func (uc *UserCredentials) ResetFailedLoginAttempts(now time.Time) {
	uc.FailedLoginAttempts = 0
	uc.LastAttemptTime = now.Unix()
}

func (uc *UserCredentials) IncrementFailedLoginAttempts(now time.Time) {
	uc.FailedLoginAttempts++
	uc.LastAttemptTime = now.Unix()
}

// Store persists credentials, live session tokens and one-time
// registration tokens across restarts.
type Store interface {
	UpsertCredentials(credentials UserCredentials) error
	ListAllCredentials() ([]UserCredentials, error)
	UpsertToken(userID, tokenHash string) error
	DeleteToken(tokenHash string) error
	ListTokens() (map[string]string, error)
	UpsertRegistrationToken(userID, tokenHash string) error
	DeleteRegistrationToken(userID string) error
	ListRegistrationTokens() (map[string]string, error)
}

type Config struct {
	Secret      string        `json:"secret"`
	secretBytes []byte        `json:"-"`
	TokenExpiry time.Duration `json:"tokenExpiry"`
}

func (c *Config) Validate() error {
	if c.Secret == "" {
		return errors.New("secret is required")
	}

	var err error
	c.secretBytes, err = base64.StdEncoding.DecodeString(c.Secret)
	if err != nil {
		return fmt.Errorf("auth secret is not a valid base64: %w", err)
	}

	if c.TokenExpiry == 0 {
		c.TokenExpiry = DefaultTokenExpiry
	}

	return nil
}

type AuthService struct {
	Config
	store Store
	// users is keyed by username; liveTokens maps token hash to user id.
	users      *geche.Locker[string, *UserCredentials]
	liveTokens geche.Geche[string, string]
	now        func() time.Time
}

func NewAuthService(ctx context.Context, config Config, store Store) (*AuthService, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	as := &AuthService{
		Config:     config,
		store:      store,
		users:      geche.NewLocker[string, *UserCredentials](geche.NewMapCache[string, *UserCredentials]()),
		liveTokens: geche.NewMapTTLCache[string, string](ctx, config.TokenExpiry, time.Minute),
		now:        time.Now,
	}

	credentials, err := store.ListAllCredentials()
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	tx := as.users.Lock()
	for i := range credentials {
		tx.Set(credentials[i].UserName, &credentials[i])
	}
	tx.Unlock()

	// Persisted session tokens survive restarts. Their TTL restarts from
	// load time, which errs on the permissive side.
	tokens, err := store.ListTokens()
	if err != nil {
		return nil, fmt.Errorf("failed to load session tokens: %w", err)
	}
	for tokenHash, userID := range tokens {
		as.liveTokens.Set(tokenHash, userID)
	}

	return as, nil
}

func (as *AuthService) hashPassword(username, password string) string {
	h := hmac.New(sha512.New, as.secretBytes)
	h.Write([]byte(username + password))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// AddUser creates an account in the "created" state and returns a one-time
// registration token the user needs to finish signup. Only the bcrypt hash
// of the token is persisted.
func (as *AuthService) AddUser(username, displayName string) (UserCredentials, string, error) {
	if err := content.ValidateUsername(username); err != nil {
		return UserCredentials{}, "", err
	}

	tx := as.users.Lock()
	defer tx.Unlock()
	if existing, err := tx.Get(username); err == nil && existing.Account != models.AccountDeleted {
		return UserCredentials{}, "", ErrUserExists
	}

	token, err := generateToken()
	if err != nil {
		return UserCredentials{}, "", err
	}
	tokenHash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return UserCredentials{}, "", fmt.Errorf("failed to hash registration token: %w", err)
	}

	credentials := &UserCredentials{
		User: models.User{
			ID:          uuid.NewString(),
			UserName:    username,
			DisplayName: displayName,
			Presence:    models.Presence{Status: models.StatusOffline},
			ShareStatus: true,
			Account:     models.AccountCreated,
		},
	}
	if err := as.store.UpsertCredentials(*credentials); err != nil {
		return UserCredentials{}, "", err
	}
	if err := as.store.UpsertRegistrationToken(credentials.ID, string(tokenHash)); err != nil {
		return UserCredentials{}, "", err
	}
	tx.Set(username, credentials)

	return *credentials, token, nil
}

// Register completes signup: it validates the one-time registration token
// and sets the account password, activating the account.
func (as *AuthService) Register(req RegistrationRequest) error {
	tx := as.users.Lock()
	defer tx.Unlock()
	user, err := tx.Get(req.Username)
	if err != nil || user.Account != models.AccountCreated {
		return ErrInvalidToken
	}

	hashes, err := as.store.ListRegistrationTokens()
	if err != nil {
		return err
	}
	tokenHash, ok := hashes[user.ID]
	if !ok {
		return ErrInvalidToken
	}
	if err := bcrypt.CompareHashAndPassword([]byte(tokenHash), []byte(req.Token)); err != nil {
		return ErrInvalidToken
	}
	if len(req.Password) < 8 {
		return errors.New("password must be at least 8 characters")
	}

	user.PasswordHash = as.hashPassword(req.Username, req.Password)
	user.Account = models.AccountActive
	if err := as.store.UpsertCredentials(*user); err != nil {
		return err
	}
	return as.store.DeleteRegistrationToken(user.ID)
}

func (as *AuthService) Login(req LoginRequest) (LoginResponse, string) {
	now := as.now()
	tx := as.users.Lock()
	defer tx.Unlock()
	user, err := tx.Get(req.Username)
	if err != nil || user.Account != models.AccountActive {
		return LoginResponse{
			Success: false,
			Message: loginFailedMessage,
		}, ""
	}

	// Check failed login attempts
	if user.FailedLoginAttempts > 3 {
		lastAttempt := user.LastAttemptTime
		failedAttempts := user.FailedLoginAttempts
		nextAttempt := lastAttempt + 30*(failedAttempts*failedAttempts)
		if now.Unix() < nextAttempt {
			return LoginResponse{
				Success: false,
				Message: fmt.Sprintf("Too many failed login attempts. Next attempt in %d seconds", nextAttempt-now.Unix()),
			}, ""
		}
	}

	// Use constant-time comparison for password hashes
	currentHash := as.hashPassword(req.Username, req.Password)
	if !hmac.Equal([]byte(user.PasswordHash), []byte(currentHash)) {
		user.IncrementFailedLoginAttempts(now)
		return LoginResponse{
			Success: false,
			Message: loginFailedMessage,
		}, ""
	}

	token, err := generateToken()
	if err != nil {
		slog.Error("login failed", "user_id", user.ID, "error", err)
		return LoginResponse{
			Success: false,
			Message: "internal error",
		}, ""
	}

	tokenHash := hashToken(token)
	as.liveTokens.Set(tokenHash, user.ID)
	if err := as.store.UpsertToken(user.ID, tokenHash); err != nil {
		slog.Error("failed to persist session token", "user_id", user.ID, "error", err)
	}
	user.ResetFailedLoginAttempts(now)

	return LoginResponse{
		Success:     true,
		Token:       token,
		TokenExpiry: now.Unix() + int64(as.TokenExpiry.Seconds()),
	}, user.ID
}

func (as *AuthService) Logoff(token string) error {
	tokenHash := hashToken(token)
	if err := as.store.DeleteToken(tokenHash); err != nil {
		slog.Error("failed to delete session token", "error", err)
	}
	return as.liveTokens.Del(tokenHash)
}

// GetUserID resolves a session token to the user id it belongs to.
func (as *AuthService) GetUserID(token string) (string, error) {
	userID, err := as.liveTokens.Get(hashToken(token))
	if err != nil {
		return "", ErrInvalidToken
	}
	return userID, nil
}

// ChangePassword rotates the password of an active account after checking
// the current one.
func (as *AuthService) ChangePassword(username, oldPassword, newPassword string) error {
	tx := as.users.Lock()
	defer tx.Unlock()
	user, err := tx.Get(username)
	if err != nil || user.Account != models.AccountActive {
		return ErrInvalidToken
	}

	currentHash := as.hashPassword(username, oldPassword)
	if !hmac.Equal([]byte(user.PasswordHash), []byte(currentHash)) {
		return errors.New("current password does not match")
	}
	if len(newPassword) < 8 {
		return errors.New("password must be at least 8 characters")
	}

	user.PasswordHash = as.hashPassword(username, newPassword)
	return as.store.UpsertCredentials(*user)
}

// UpdateProfile changes an active user's display name and avatar. Empty
// values leave the current field unchanged.
func (as *AuthService) UpdateProfile(userID, displayName, avatarURL string) error {
	tx := as.users.Lock()
	defer tx.Unlock()

	for _, user := range tx.Snapshot() {
		if user.ID != userID || user.Account != models.AccountActive {
			continue
		}
		if displayName != "" {
			user.DisplayName = displayName
		}
		if avatarURL != "" {
			user.AvatarURL = avatarURL
		}
		return as.store.UpsertCredentials(*user)
	}
	return models.ErrNotFound
}

// ResetPassword invalidates the password of an account and issues a fresh
// registration token, returning the account to the "created" state.
func (as *AuthService) ResetPassword(username string) (string, error) {
	tx := as.users.Lock()
	defer tx.Unlock()
	user, err := tx.Get(username)
	if err != nil || user.Account == models.AccountDeleted {
		return "", models.ErrNotFound
	}

	token, err := generateToken()
	if err != nil {
		return "", err
	}
	tokenHash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash registration token: %w", err)
	}

	user.PasswordHash = ""
	user.Account = models.AccountCreated
	if err := as.store.UpsertCredentials(*user); err != nil {
		return "", err
	}
	if err := as.store.UpsertRegistrationToken(user.ID, string(tokenHash)); err != nil {
		return "", err
	}
	return token, nil
}

// DeleteUser marks an account deleted. The record is kept so historical
// messages still resolve to a user.
func (as *AuthService) DeleteUser(username string) error {
	tx := as.users.Lock()
	defer tx.Unlock()
	user, err := tx.Get(username)
	if err != nil {
		return models.ErrNotFound
	}

	user.PasswordHash = ""
	user.Account = models.AccountDeleted
	if err := as.store.UpsertCredentials(*user); err != nil {
		return err
	}
	return as.store.DeleteRegistrationToken(user.ID)
}

// GetUsers returns all active users without credentials material.
func (as *AuthService) GetUsers() []models.User {
	tx := as.users.Lock()
	defer tx.Unlock()

	var users []models.User
	for _, user := range tx.Snapshot() {
		if user.Account != models.AccountActive {
			continue
		}
		users = append(users, user.User)
	}
	return users
}

// GetUser returns one active user by id.
func (as *AuthService) GetUser(userID string) (models.User, error) {
	tx := as.users.Lock()
	defer tx.Unlock()

	for _, user := range tx.Snapshot() {
		if user.ID == userID && user.Account == models.AccountActive {
			return user.User, nil
		}
	}
	return models.User{}, models.ErrNotFound
}

func generateToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
