package cli

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRootCommand(t *testing.T) {
	root := NewRootCommand()

	assert.Equal(t, "authctl", root.Name)
	assert.Equal(t, "authctl - administrative client for the auth service", root.Description)
	assert.NotNil(t, root.Flags)

	wantCommands := []string{"verify", "check", "push-roles", "pull-roles", "validate", "audit"}
	for _, name := range wantCommands {
		assert.Contains(t, root.Subcommands, name)
		assert.NotNil(t, root.Subcommands[name])
	}
	assert.Len(t, root.Subcommands, len(wantCommands))
}

func TestUsageListsCommandsSorted(t *testing.T) {
	var buf bytes.Buffer
	root := NewRootCommand()
	root.out = &buf

	require.NoError(t, root.usage())
	output := buf.String()

	assert.Contains(t, output, "Usage: authctl <command> [args]")
	assert.Contains(t, output, "Commands:")

	lastIdx := -1
	for _, name := range []string{"audit", "check", "pull-roles", "push-roles", "validate", "verify"} {
		idx := strings.Index(output, name)
		require.GreaterOrEqual(t, idx, 0, "usage should list %s", name)
		assert.Greater(t, idx, lastIdx, "%s should appear after the previous command", name)
		lastIdx = idx
	}
}

func TestExecuteShowsUsage(t *testing.T) {
	for _, args := range [][]string{
		{},
		{"help"},
		{"-h"},
		{"-H"},
		{"--help"},
		{"--HELP"},
	} {
		name := "no args"
		if len(args) > 0 {
			name = args[0]
		}
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			root := NewRootCommand()
			root.out = &buf

			require.NoError(t, root.execute(args))
			assert.Contains(t, buf.String(), "Usage: authctl <command> [args]")
		})
	}
}

func TestExecuteDispatchesSubcommand(t *testing.T) {
	root := NewRootCommand()

	var got []string
	root.Subcommands["echo"] = &Command{
		Name:        "echo",
		Description: "Echo arguments for the dispatch test",
		Run: func(args []string) error {
			got = args
			return nil
		},
	}

	require.NoError(t, root.execute([]string{"echo", "-flag", "value"}))
	assert.Equal(t, []string{"-flag", "value"}, got)
}

func TestExecuteUnknownCommand(t *testing.T) {
	err := NewRootCommand().execute([]string{"nonexistent"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command: nonexistent")
}

func TestExecuteReadsProcessArgs(t *testing.T) {
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()

	called := false
	root := NewRootCommand()
	root.Subcommands["probe"] = &Command{
		Name: "probe",
		Run: func(args []string) error {
			called = true
			return nil
		},
	}

	os.Args = []string{"authctl", "probe"}
	require.NoError(t, root.Execute())
	assert.True(t, called)
}

func TestDefaultServerURL(t *testing.T) {
	old, had := os.LookupEnv("DOTMAC_AUTH_URL")
	defer func() {
		if had {
			os.Setenv("DOTMAC_AUTH_URL", old)
		} else {
			os.Unsetenv("DOTMAC_AUTH_URL")
		}
	}()

	os.Unsetenv("DOTMAC_AUTH_URL")
	assert.Equal(t, "http://localhost:8080", defaultServerURL())

	os.Setenv("DOTMAC_AUTH_URL", "https://auth.example.com")
	assert.Equal(t, "https://auth.example.com", defaultServerURL())
}
