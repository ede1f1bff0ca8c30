package cli

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michaelayoade/dotmac-framework-sub001/pkg/audit"
)

func writeAuditFile(t *testing.T) string {
	t.Helper()

	events := []*audit.AuditEvent{
		{
			Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
			EventType: audit.EventTypeTokenIssued,
			Status:    audit.EventStatusSuccess,
			UserID:    "usr_1",
			Message:   "token pair issued",
		},
		{
			Timestamp: time.Date(2025, 6, 1, 12, 1, 0, 0, time.UTC),
			EventType: audit.EventTypeAuthzAccessDenied,
			Status:    audit.EventStatusDenied,
			UserID:    "usr_2",
			Message:   "insufficient role",
		},
		{
			Timestamp: time.Date(2025, 6, 1, 12, 2, 0, 0, time.UTC),
			EventType: audit.EventTypeSessionCreated,
			Status:    audit.EventStatusSuccess,
			UserID:    "usr_1",
			Message:   "session opened",
		},
	}

	var buf bytes.Buffer
	for _, e := range events {
		line, err := e.ToJSON()
		require.NoError(t, err)
		buf.Write(line)
		buf.WriteByte('\n')
	}

	file := filepath.Join(t.TempDir(), "audit.log")
	require.NoError(t, os.WriteFile(file, buf.Bytes(), 0644))
	return file
}

func captureAuditRun(t *testing.T, args []string) (string, error) {
	t.Helper()

	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	err := runAudit(args)

	w.Close()
	os.Stdout = oldStdout

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String(), err
}

func TestAuditCommand_PrintsAllEvents(t *testing.T) {
	file := writeAuditFile(t)

	out, err := captureAuditRun(t, []string{"-file", file})

	require.NoError(t, err)
	assert.Contains(t, out, "token.issued")
	assert.Contains(t, out, "authz.access_denied")
	assert.Contains(t, out, "session.created")
	assert.Contains(t, out, "3 of 3 events matched")
}

func TestAuditCommand_FilterByUser(t *testing.T) {
	file := writeAuditFile(t)

	out, err := captureAuditRun(t, []string{"-file", file, "-user", "usr_2"})

	require.NoError(t, err)
	assert.Contains(t, out, "authz.access_denied")
	assert.NotContains(t, out, "token.issued")
	assert.Contains(t, out, "1 of 3 events matched")
}

func TestAuditCommand_FilterByTypeAndStatus(t *testing.T) {
	file := writeAuditFile(t)

	out, err := captureAuditRun(t, []string{"-file", file, "-status", "success", "-type", "session.created"})

	require.NoError(t, err)
	assert.Contains(t, out, "session opened")
	assert.NotContains(t, out, "usr_2")
	assert.Contains(t, out, "1 of 3 events matched")
}

func TestAuditCommand_JSONOutput(t *testing.T) {
	file := writeAuditFile(t)

	out, err := captureAuditRun(t, []string{"-file", file, "-json", "-user", "usr_1"})

	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	for _, line := range lines {
		event, err := audit.FromJSON([]byte(line))
		require.NoError(t, err)
		assert.Equal(t, "usr_1", event.UserID)
	}
}

func TestAuditCommand_SkipsMalformedLines(t *testing.T) {
	file := filepath.Join(t.TempDir(), "audit.log")
	content := `{"event_type":"token.issued","status":"success","user_id":"usr_1"}
not json at all
{"event_type":"session.created","status":"success","user_id":"usr_1"}
`
	require.NoError(t, os.WriteFile(file, []byte(content), 0644))

	out, err := captureAuditRun(t, []string{"-file", file})

	require.NoError(t, err)
	assert.Contains(t, out, "2 of 3 events matched")
}

func TestAuditCommand_MissingFile(t *testing.T) {
	_, err := captureAuditRun(t, []string{"-file", filepath.Join(t.TempDir(), "absent.log")})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open")
}
