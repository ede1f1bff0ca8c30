package cli

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"strings"
)

func newCheckCommand() *Command {
	cmd := &Command{
		Name:        "check",
		Description: "Check whether a user or role set holds a permission",
		Flags:       flag.NewFlagSet("check", flag.ExitOnError),
		Run:         runCheck,
	}

	cmd.Flags.String("user", "", "User ID to check")
	cmd.Flags.String("roles", "", "Comma-separated role names to check instead of a user")
	cmd.Flags.String("action", "", "Action, e.g. read or manage")
	cmd.Flags.String("resource", "", "Resource, e.g. user or api_key")
	cmd.Flags.String("server", defaultServerURL(), "Auth service URL")

	return cmd
}

func runCheck(args []string) error {
	cmd := newCheckCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	user := cmd.Flags.Lookup("user").Value.String()
	roles := cmd.Flags.Lookup("roles").Value.String()
	action := cmd.Flags.Lookup("action").Value.String()
	resource := cmd.Flags.Lookup("resource").Value.String()
	server := cmd.Flags.Lookup("server").Value.String()

	if action == "" || resource == "" {
		return fmt.Errorf("action and resource are required")
	}
	if user == "" && roles == "" {
		return fmt.Errorf("either user or roles is required")
	}

	reqData := map[string]interface{}{
		"action":   action,
		"resource": resource,
	}
	if roles != "" {
		reqData["roles"] = strings.Split(roles, ",")
	} else {
		reqData["user_id"] = user
	}

	reqBody, err := json.Marshal(reqData)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	checkURL := fmt.Sprintf("%s/auth/permissions/check", server)
	resp, err := http.Post(checkURL, "application/json", strings.NewReader(string(reqBody)))
	if err != nil {
		return fmt.Errorf("failed to check permission: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s", resp.Status)
	}

	var result struct {
		Allowed bool `json:"allowed"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result.Allowed {
		fmt.Printf("allowed: %s on %s\n", action, resource)
	} else {
		fmt.Printf("denied: %s on %s\n", action, resource)
	}
	return nil
}
