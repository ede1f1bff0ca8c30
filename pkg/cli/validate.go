package cli

import (
	"flag"
	"fmt"
	"os"

	"github.com/michaelayoade/dotmac-framework-sub001/pkg/rbac"
)

func newValidateCommand() *Command {
	cmd := &Command{
		Name:        "validate",
		Description: "Validate a role configuration file locally",
		Flags:       flag.NewFlagSet("validate", flag.ExitOnError),
		Run:         runValidate,
	}

	cmd.Flags.String("file", "roles.yaml", "Role configuration file")

	return cmd
}

func runValidate(args []string) error {
	cmd := newValidateCommand()
	if err := cmd.Flags.Parse(args); err != nil {
		return err
	}

	file := cmd.Flags.Lookup("file").Value.String()

	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", file, err)
	}

	// Import into a throwaway engine; the import path runs the full
	// validation including permission shape and hierarchy cycles.
	engine := rbac.NewEngine()
	if err := engine.ImportYAML(data); err != nil {
		return fmt.Errorf("validation failed for %s: %w", file, err)
	}

	fmt.Println("Role configuration is valid")
	return nil
}
