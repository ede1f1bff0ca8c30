package cli

import (
	"bufio"
	"bytes"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/michaelayoade/dotmac-framework-sub001/pkg/audit"
)

func newAuditCommand() *Command {
	cmd := &Command{
		Name:        "audit",
		Description: "Filter and print a JSON-lines audit log file",
		Flags:       flag.NewFlagSet("audit", flag.ExitOnError),
		Run:         runAudit,
	}

	cmd.Flags.String("file", "audit.log", "Audit log file")
	cmd.Flags.String("user", "", "Only events for this user id")
	cmd.Flags.String("type", "", "Only events of this type, e.g. authz.access_denied")
	cmd.Flags.String("status", "", "Only events with this status (success, failure, denied)")
	cmd.Flags.Bool("json", false, "Re-emit matching events as JSON lines")

	return cmd
}

func runAudit(args []string) error {
	flags := flag.NewFlagSet("audit", flag.ExitOnError)
	file := flags.String("file", "audit.log", "Audit log file")
	user := flags.String("user", "", "Only events for this user id")
	eventType := flags.String("type", "", "Only events of this type, e.g. authz.access_denied")
	status := flags.String("status", "", "Only events with this status (success, failure, denied)")
	asJSON := flags.Bool("json", false, "Re-emit matching events as JSON lines")

	if err := flags.Parse(args); err != nil {
		return err
	}

	f, err := os.Open(*file)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", *file, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	// Events with large metadata maps overflow the default token size.
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	line, matched := 0, 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		event, err := audit.FromJSON(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "line %d: %v\n", line, err)
			continue
		}
		if *user != "" && event.UserID != *user {
			continue
		}
		if *eventType != "" && string(event.EventType) != *eventType {
			continue
		}
		if *status != "" && string(event.Status) != *status {
			continue
		}
		matched++
		if *asJSON {
			out, err := event.ToJSON()
			if err != nil {
				return fmt.Errorf("failed to encode event on line %d: %w", line, err)
			}
			fmt.Println(string(out))
			continue
		}
		printEvent(event)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read %s: %w", *file, err)
	}

	if !*asJSON {
		fmt.Printf("%d of %d events matched\n", matched, line)
	}
	return nil
}

func printEvent(e *audit.AuditEvent) {
	who := e.UserID
	if who == "" {
		who = e.ServiceName
	}
	if who == "" {
		who = "-"
	}
	fmt.Printf("%s  %-26s %-8s %-12s %s\n",
		e.Timestamp.UTC().Format(time.RFC3339), e.EventType, e.Status, who, e.Message)
}
