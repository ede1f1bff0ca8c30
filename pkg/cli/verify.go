package cli

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"strings"
	"time"
)

func newVerifyCommand() *Command {
	cmd := &Command{
		Name:        "verify",
		Description: "Verify a token against the auth service",
		Flags:       flag.NewFlagSet("verify", flag.ExitOnError),
		Run:         runVerify,
	}

	cmd.Flags.String("token", "", "Raw token to verify")
	cmd.Flags.String("server", defaultServerURL(), "Auth service URL")

	return cmd
}

func runVerify(args []string) error {
	cmd := newVerifyCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	rawToken := cmd.Flags.Lookup("token").Value.String()
	server := cmd.Flags.Lookup("server").Value.String()

	if rawToken == "" {
		return fmt.Errorf("token is required")
	}

	reqBody, err := json.Marshal(map[string]string{"token": rawToken})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	verifyURL := fmt.Sprintf("%s/auth/tokens/verify", server)
	resp, err := http.Post(verifyURL, "application/json", strings.NewReader(string(reqBody)))
	if err != nil {
		return fmt.Errorf("failed to verify token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s", resp.Status)
	}

	var result struct {
		Active bool   `json:"active"`
		Error  string `json:"error"`
		Claims struct {
			Subject   string   `json:"sub"`
			TokenType string   `json:"type"`
			TenantID  string   `json:"tenant_id"`
			SessionID string   `json:"sid"`
			Scopes    []string `json:"scopes"`
			Roles     []string `json:"roles"`
			ExpiresAt float64  `json:"exp"`
		} `json:"claims"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if !result.Active {
		return fmt.Errorf("token is not active: %s", result.Error)
	}

	fmt.Printf("Token is active\n")
	fmt.Printf("  Subject:  %s\n", result.Claims.Subject)
	fmt.Printf("  Type:     %s\n", result.Claims.TokenType)
	if result.Claims.TenantID != "" {
		fmt.Printf("  Tenant:   %s\n", result.Claims.TenantID)
	}
	if result.Claims.SessionID != "" {
		fmt.Printf("  Session:  %s\n", result.Claims.SessionID)
	}
	if len(result.Claims.Scopes) > 0 {
		fmt.Printf("  Scopes:   %s\n", strings.Join(result.Claims.Scopes, ", "))
	}
	if len(result.Claims.Roles) > 0 {
		fmt.Printf("  Roles:    %s\n", strings.Join(result.Claims.Roles, ", "))
	}
	if result.Claims.ExpiresAt > 0 {
		expires := time.Unix(int64(result.Claims.ExpiresAt), 0).UTC()
		fmt.Printf("  Expires:  %s\n", expires.Format(time.RFC3339))
	}
	return nil
}
