package rbac

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const rolesYAML = `
roles:
  - name: reporter
    permissions:
      - action: read
        resource: report_.*
assignments:
  u1: [reporter]
`

const rolesYAMLv2 = `
roles:
  - name: reporter
    permissions:
      - action: read
        resource: report_.*
      - action: export
        resource: report_.*
assignments:
  u1: [reporter]
`

func writeRolesFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "roles.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing roles file: %v", err)
	}
	return path
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestWatcher_InitialLoad(t *testing.T) {
	path := writeRolesFile(t, t.TempDir(), rolesYAML)
	e := NewEngine()

	w, err := NewWatcher(e, path, nil)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Close()

	if !e.CheckPermission("u1", "read", "report_q3") {
		t.Error("initial load did not apply the roles file")
	}
}

func TestWatcher_InitialLoadFailure(t *testing.T) {
	dir := t.TempDir()
	e := NewEngine()

	if _, err := NewWatcher(e, filepath.Join(dir, "missing.yaml"), nil); err == nil {
		t.Error("NewWatcher() should fail when the roles file does not exist")
	}

	bad := writeRolesFile(t, dir, "roles: [broken")
	if _, err := NewWatcher(e, bad, nil); err == nil {
		t.Error("NewWatcher() should fail on an unparsable roles file")
	}
}

func TestWatcher_ReloadOnChange(t *testing.T) {
	dir := t.TempDir()
	path := writeRolesFile(t, dir, rolesYAML)
	e := NewEngine()

	w, err := NewWatcher(e, path, nil)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Close()

	if e.CheckPermission("u1", "export", "report_q3") {
		t.Fatal("export grant present before the file change")
	}

	if err := os.WriteFile(path, []byte(rolesYAMLv2), 0o600); err != nil {
		t.Fatalf("rewriting roles file: %v", err)
	}
	waitFor(t, 3*time.Second, func() bool {
		return e.CheckPermission("u1", "export", "report_q3")
	}, "export grant never appeared after the file change")
}

func TestWatcher_BadEditKeepsRegistry(t *testing.T) {
	dir := t.TempDir()
	path := writeRolesFile(t, dir, rolesYAML)
	e := NewEngine()

	w, err := NewWatcher(e, path, nil)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte("roles: [broken"), 0o600); err != nil {
		t.Fatalf("rewriting roles file: %v", err)
	}
	// The watcher observes the write, rejects it, and keeps serving the
	// previous registry. Give the event time to arrive before asserting.
	time.Sleep(200 * time.Millisecond)
	if !e.CheckPermission("u1", "read", "report_q3") {
		t.Error("rejected edit wiped the running registry")
	}
}

func TestWatcher_IgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := writeRolesFile(t, dir, rolesYAML)
	e := NewEngine()

	w, err := NewWatcher(e, path, nil)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Close()

	before := w.Reloads()
	if err := os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("roles: []"), 0o600); err != nil {
		t.Fatalf("writing sibling file: %v", err)
	}
	time.Sleep(200 * time.Millisecond)
	if got := w.Reloads(); got != before {
		t.Errorf("Reloads = %d after sibling write, want %d", got, before)
	}
}

func TestWatcher_Close(t *testing.T) {
	path := writeRolesFile(t, t.TempDir(), rolesYAML)
	e := NewEngine()

	w, err := NewWatcher(e, path, nil)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	// The last applied registry keeps serving after Close.
	if !e.CheckPermission("u1", "read", "report_q3") {
		t.Error("registry lost after watcher close")
	}
}
