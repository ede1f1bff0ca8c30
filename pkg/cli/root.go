package cli

import (
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
)

// Command is one entry in the authctl command tree. Leaf commands carry a
// Run function; the root carries the Subcommands it dispatches into.
type Command struct {
	Name        string
	Description string
	Run         func(args []string) error
	Subcommands map[string]*Command
	Flags       *flag.FlagSet

	// out receives usage text. Nil means stdout.
	out io.Writer
}

// NewRootCommand builds the authctl command tree.
func NewRootCommand() *Command {
	root := &Command{
		Name:        "authctl",
		Description: "authctl - administrative client for the auth service",
		Subcommands: make(map[string]*Command),
		Flags:       flag.NewFlagSet("authctl", flag.ExitOnError),
	}

	root.Subcommands["verify"] = newVerifyCommand()
	root.Subcommands["check"] = newCheckCommand()
	root.Subcommands["push-roles"] = newPushRolesCommand()
	root.Subcommands["pull-roles"] = newPullRolesCommand()
	root.Subcommands["validate"] = newValidateCommand()
	root.Subcommands["audit"] = newAuditCommand()

	return root
}

// Execute dispatches the process arguments into the command tree.
func (c *Command) Execute() error {
	return c.execute(os.Args[1:])
}

func (c *Command) execute(args []string) error {
	if len(args) == 0 {
		return c.usage()
	}

	switch strings.ToLower(args[0]) {
	case "help", "-h", "--help":
		return c.usage()
	}

	sub, ok := c.Subcommands[args[0]]
	if !ok {
		return fmt.Errorf("unknown command: %s", args[0])
	}
	return sub.Run(args[1:])
}

func (c *Command) usage() error {
	w := c.out
	if w == nil {
		w = os.Stdout
	}

	fmt.Fprintf(w, "Usage: %s <command> [args]\n\nCommands:\n", c.Name)
	names := make([]string, 0, len(c.Subcommands))
	for name := range c.Subcommands {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-12s %s\n", name, c.Subcommands[name].Description)
	}
	return nil
}

// defaultServerURL resolves the auth service base URL, preferring the
// environment over the built-in default.
func defaultServerURL() string {
	if url := os.Getenv("DOTMAC_AUTH_URL"); url != "" {
		return url
	}
	return "http://localhost:8080"
}
