package cli

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
)

func newPushRolesCommand() *Command {
	cmd := &Command{
		Name:        "push-roles",
		Description: "Push a role configuration file to the auth service",
		Flags:       flag.NewFlagSet("push-roles", flag.ExitOnError),
		Run:         runPushRoles,
	}

	cmd.Flags.String("file", "roles.yaml", "Role configuration file")
	cmd.Flags.String("server", defaultServerURL(), "Auth service URL")
	cmd.Flags.String("token", "", "Admin bearer token")

	return cmd
}

func runPushRoles(args []string) error {
	cmd := newPushRolesCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	file := cmd.Flags.Lookup("file").Value.String()
	server := cmd.Flags.Lookup("server").Value.String()
	token := cmd.Flags.Lookup("token").Value.String()

	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", file, err)
	}

	configURL := fmt.Sprintf("%s/auth/rbac/config", server)
	req, err := http.NewRequest(http.MethodPut, configURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-yaml")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to push roles: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %s: %s", resp.Status, string(body))
	}

	fmt.Printf("Successfully pushed roles from %s\n", file)
	return nil
}
