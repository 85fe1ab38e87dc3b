package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/JESREAL1JDL7LUSTRE/Aura-Chat/internal/api"
	"github.com/JESREAL1JDL7LUSTRE/Aura-Chat/internal/config"
)

// AddUser asks a running server's admin API to provision an account and
// prints the setup link for the new user.
func AddUser(username, displayName string, cfg *config.Config) error {
	reqBody, err := json.Marshal(api.AddUserRequest{Username: username, DisplayName: displayName})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("http://%s/admin/users", cfg.AdminAddr)
	resp, err := http.Post(url, "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		return fmt.Errorf("failed to call admin API: %w. Is the server running?", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to add user (status: %d): %s", resp.StatusCode, string(body))
	}

	var result api.AddUserResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("\nUser created successfully!\n")
	fmt.Printf("Username:   %s\n", result.Username)
	fmt.Printf("Setup link: %s\n\n", result.SetupLink)
	fmt.Println("Share this link with the user to complete registration.")
	return nil
}
