package auth

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/JESREAL1JDL7LUSTRE/Aura-Chat/internal/models"
)

type memStore struct {
	credentials        map[string]UserCredentials
	tokens             map[string]string
	registrationTokens map[string]string
}

func newMemStore() *memStore {
	return &memStore{
		credentials:        make(map[string]UserCredentials),
		tokens:             make(map[string]string),
		registrationTokens: make(map[string]string),
	}
}

func (m *memStore) UpsertCredentials(credentials UserCredentials) error {
	m.credentials[credentials.ID] = credentials
	return nil
}

func (m *memStore) ListAllCredentials() ([]UserCredentials, error) {
	var out []UserCredentials
	for _, c := range m.credentials {
		out = append(out, c)
	}
	return out, nil
}

func (m *memStore) UpsertToken(userID, tokenHash string) error {
	m.tokens[tokenHash] = userID
	return nil
}

func (m *memStore) DeleteToken(tokenHash string) error {
	delete(m.tokens, tokenHash)
	return nil
}

func (m *memStore) ListTokens() (map[string]string, error) {
	return m.tokens, nil
}

func (m *memStore) UpsertRegistrationToken(userID, tokenHash string) error {
	m.registrationTokens[userID] = tokenHash
	return nil
}

func (m *memStore) DeleteRegistrationToken(userID string) error {
	delete(m.registrationTokens, userID)
	return nil
}

func (m *memStore) ListRegistrationTokens() (map[string]string, error) {
	return m.registrationTokens, nil
}

func TestAuthService(t *testing.T) {
	const t0Unix = 1700000000

	// Helper to create service with fixed time
	createService := func(t *testing.T) (*AuthService, *memStore, *time.Time) {
		cfg := Config{
			Secret:      base64.StdEncoding.EncodeToString([]byte("server-secret")),
			TokenExpiry: time.Hour,
		}

		store := newMemStore()
		svc, err := NewAuthService(context.Background(), cfg, store)
		if err != nil {
			t.Fatalf("Failed to create service: %v", err)
		}

		currentTime := time.Unix(t0Unix, 0)
		svc.now = func() time.Time {
			return currentTime
		}

		return svc, store, &currentTime
	}

	// registerUser runs the full admin-create plus signup flow.
	registerUser := func(t *testing.T, svc *AuthService, username, password string) UserCredentials {
		t.Helper()
		creds, token, err := svc.AddUser(username, username+" display")
		if err != nil {
			t.Fatalf("Failed to add user: %v", err)
		}
		if err := svc.Register(RegistrationRequest{
			Username: username,
			Token:    token,
			Password: password,
		}); err != nil {
			t.Fatalf("Failed to register user: %v", err)
		}
		return creds
	}

	t.Run("AddUser", func(t *testing.T) {
		svc, store, _ := createService(t)

		u1, token, err := svc.AddUser("user1", "User One")
		if err != nil {
			t.Fatalf("Failed to add user: %v", err)
		}
		if u1.UserName != "user1" {
			t.Errorf("Expected username user1, got %s", u1.UserName)
		}
		if u1.Account != models.AccountCreated {
			t.Errorf("Expected account state created, got %s", u1.Account)
		}
		if token == "" {
			t.Error("Expected a registration token")
		}
		if _, ok := store.registrationTokens[u1.ID]; !ok {
			t.Error("Registration token hash not persisted")
		}

		_, _, err = svc.AddUser("user1", "User One Again")
		if err != ErrUserExists {
			t.Errorf("Expected ErrUserExists, got %v", err)
		}

		if _, _, err := svc.AddUser("bad username!", "Bad"); err == nil {
			t.Error("Expected error for invalid username characters")
		}
	})

	t.Run("Register", func(t *testing.T) {
		svc, store, _ := createService(t)
		u1, token, err := svc.AddUser("user1", "User One")
		if err != nil {
			t.Fatalf("Failed to add user: %v", err)
		}

		// Wrong token is rejected
		err = svc.Register(RegistrationRequest{
			Username: "user1",
			Token:    "not-the-token",
			Password: "password1",
		})
		if err != ErrInvalidToken {
			t.Errorf("Expected ErrInvalidToken, got %v", err)
		}

		// Correct token activates the account
		err = svc.Register(RegistrationRequest{
			Username: "user1",
			Token:    token,
			Password: "password1",
		})
		if err != nil {
			t.Fatalf("Registration failed: %v", err)
		}
		if store.credentials[u1.ID].Account != models.AccountActive {
			t.Errorf("Expected active account, got %s", store.credentials[u1.ID].Account)
		}
		if _, ok := store.registrationTokens[u1.ID]; ok {
			t.Error("Registration token should be deleted after use")
		}

		// Token is one-time
		err = svc.Register(RegistrationRequest{
			Username: "user1",
			Token:    token,
			Password: "password2",
		})
		if err != ErrInvalidToken {
			t.Errorf("Expected ErrInvalidToken on reuse, got %v", err)
		}
	})

	t.Run("Login_Success", func(t *testing.T) {
		svc, store, _ := createService(t)
		u1 := registerUser(t, svc, "user1", "password1")

		resp, userID := svc.Login(LoginRequest{
			Username: "user1",
			Password: "password1",
		})
		if !resp.Success {
			t.Errorf("Login failed: %s", resp.Message)
		}
		if userID != u1.ID {
			t.Errorf("Expected user id %s, got %s", u1.ID, userID)
		}

		// Token resolves to the user and its hash is persisted
		gotID, err := svc.GetUserID(resp.Token)
		if err != nil || gotID != u1.ID {
			t.Errorf("Token should resolve to user id, got %q, %v", gotID, err)
		}
		if len(store.tokens) != 1 {
			t.Errorf("Expected 1 persisted token, got %d", len(store.tokens))
		}
		for tokenHash := range store.tokens {
			if tokenHash == resp.Token {
				t.Error("Raw token must not be persisted")
			}
		}
	})

	t.Run("Login_Failures", func(t *testing.T) {
		svc, _, _ := createService(t)
		registerUser(t, svc, "user1", "password1")

		tests := []struct {
			name string
			req  LoginRequest
		}{
			{
				name: "Wrong Password",
				req:  LoginRequest{Username: "user1", Password: "wrongpass"},
			},
			{
				name: "User Not Found",
				req:  LoginRequest{Username: "unknown", Password: "password1"},
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				resp, _ := svc.Login(tt.req)
				if resp.Success {
					t.Error("Expected login failure")
				}
				if resp.Message != loginFailedMessage {
					t.Errorf("Expected message %q, got %q", loginFailedMessage, resp.Message)
				}
			})
		}
	})

	t.Run("Login_NotActivated", func(t *testing.T) {
		svc, _, _ := createService(t)
		if _, _, err := svc.AddUser("user1", "User One"); err != nil {
			t.Fatalf("Failed to add user: %v", err)
		}

		resp, _ := svc.Login(LoginRequest{Username: "user1", Password: ""})
		if resp.Success {
			t.Error("Login should fail before registration completes")
		}
	})

	t.Run("Security_Throttling", func(t *testing.T) {
		svc, _, now := createService(t)
		registerUser(t, svc, "user1", "password1")

		// Fail 4 times (threshold is > 3)
		for i := 0; i < 4; i++ {
			svc.Login(LoginRequest{Username: "user1", Password: "wrongpass"})
		}

		// 5th attempt should be throttled even with the right password
		resp, _ := svc.Login(LoginRequest{Username: "user1", Password: "password1"})
		if resp.Success {
			t.Error("Throttling failed, login succeeded")
		}
		if len(resp.Message) < 20 {
			t.Errorf("Expected throttling message, got %q", resp.Message)
		}

		// Backoff = 30 * (failedAttempts^2) = 30 * 16 = 480 seconds
		*now = now.Add(500 * time.Second)

		resp, _ = svc.Login(LoginRequest{Username: "user1", Password: "password1"})
		if !resp.Success {
			t.Errorf("Login after backoff failed: %s", resp.Message)
		}
	})

	t.Run("Logoff", func(t *testing.T) {
		svc, store, _ := createService(t)
		registerUser(t, svc, "user1", "password1")

		resp, _ := svc.Login(LoginRequest{Username: "user1", Password: "password1"})
		if !resp.Success {
			t.Fatalf("Login failed")
		}

		if err := svc.Logoff(resp.Token); err != nil {
			t.Errorf("Logoff failed: %v", err)
		}
		if _, err := svc.GetUserID(resp.Token); err == nil {
			t.Error("Token should be invalid after logoff")
		}
		if len(store.tokens) != 0 {
			t.Errorf("Expected persisted token removed, got %d left", len(store.tokens))
		}
	})

	t.Run("ChangePassword", func(t *testing.T) {
		svc, _, _ := createService(t)
		registerUser(t, svc, "user1", "password1")

		if err := svc.ChangePassword("user1", "wrongpass", "password2"); err == nil {
			t.Error("Change with wrong current password should fail")
		}
		if err := svc.ChangePassword("user1", "password1", "password2"); err != nil {
			t.Fatalf("ChangePassword failed: %v", err)
		}

		resp, _ := svc.Login(LoginRequest{Username: "user1", Password: "password1"})
		if resp.Success {
			t.Error("Login with old password should fail")
		}
		resp, _ = svc.Login(LoginRequest{Username: "user1", Password: "password2"})
		if !resp.Success {
			t.Errorf("Login with new password failed: %s", resp.Message)
		}
	})

	t.Run("ResetPassword", func(t *testing.T) {
		svc, _, _ := createService(t)
		registerUser(t, svc, "user1", "password1")

		token, err := svc.ResetPassword("user1")
		if err != nil {
			t.Fatalf("ResetPassword failed: %v", err)
		}

		resp, _ := svc.Login(LoginRequest{Username: "user1", Password: "password1"})
		if resp.Success {
			t.Error("Login should fail after password reset")
		}

		if err := svc.Register(RegistrationRequest{
			Username: "user1",
			Token:    token,
			Password: "password3",
		}); err != nil {
			t.Fatalf("Re-registration failed: %v", err)
		}
		resp, _ = svc.Login(LoginRequest{Username: "user1", Password: "password3"})
		if !resp.Success {
			t.Errorf("Login after re-registration failed: %s", resp.Message)
		}
	})

	t.Run("DeleteUser", func(t *testing.T) {
		svc, _, _ := createService(t)
		u1 := registerUser(t, svc, "user1", "password1")

		if err := svc.DeleteUser("user1"); err != nil {
			t.Fatalf("DeleteUser failed: %v", err)
		}

		resp, _ := svc.Login(LoginRequest{Username: "user1", Password: "password1"})
		if resp.Success {
			t.Error("Login should fail for a deleted account")
		}
		if _, err := svc.GetUser(u1.ID); err != models.ErrNotFound {
			t.Errorf("Expected ErrNotFound for deleted user, got %v", err)
		}
		if got := svc.GetUsers(); len(got) != 0 {
			t.Errorf("Expected no active users, got %d", len(got))
		}
	})

	t.Run("RestoresStateFromStore", func(t *testing.T) {
		svc, store, _ := createService(t)
		u1 := registerUser(t, svc, "user1", "password1")
		resp, _ := svc.Login(LoginRequest{Username: "user1", Password: "password1"})
		if !resp.Success {
			t.Fatalf("Login failed")
		}

		// A new service over the same store sees the user and the session.
		cfg := Config{
			Secret:      base64.StdEncoding.EncodeToString([]byte("server-secret")),
			TokenExpiry: time.Hour,
		}
		restarted, err := NewAuthService(context.Background(), cfg, store)
		if err != nil {
			t.Fatalf("Failed to create service: %v", err)
		}

		gotID, err := restarted.GetUserID(resp.Token)
		if err != nil || gotID != u1.ID {
			t.Errorf("Session should survive restart, got %q, %v", gotID, err)
		}
		loginResp, _ := restarted.Login(LoginRequest{Username: "user1", Password: "password1"})
		if !loginResp.Success {
			t.Errorf("Login after restart failed: %s", loginResp.Message)
		}
	})
}
