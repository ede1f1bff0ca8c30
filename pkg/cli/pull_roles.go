package cli

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
)

func newPullRolesCommand() *Command {
	cmd := &Command{
		Name:        "pull-roles",
		Description: "Pull the live role configuration from the auth service",
		Flags:       flag.NewFlagSet("pull-roles", flag.ExitOnError),
		Run:         runPullRoles,
	}

	cmd.Flags.String("out", "", "Output file (defaults to stdout)")
	cmd.Flags.String("server", defaultServerURL(), "Auth service URL")
	cmd.Flags.String("token", "", "Admin bearer token")

	return cmd
}

func runPullRoles(args []string) error {
	cmd := newPullRolesCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	out := cmd.Flags.Lookup("out").Value.String()
	server := cmd.Flags.Lookup("server").Value.String()
	token := cmd.Flags.Lookup("token").Value.String()

	configURL := fmt.Sprintf("%s/auth/rbac/config?format=yaml", server)
	req, err := http.NewRequest(http.MethodGet, configURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to pull roles: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %s: %s", resp.Status, string(body))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if out == "" {
		fmt.Print(string(data))
		return nil
	}

	if err := os.WriteFile(out, data, 0644); err != nil {
		return fmt.Errorf("failed to write file %s: %w", out, err)
	}

	fmt.Printf("Successfully pulled roles to %s\n", out)
	return nil
}
