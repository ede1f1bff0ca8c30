package audit

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const activeLogName = "audit.log"

// FileLogger appends events to a JSON-lines file, one event per line in the
// ToJSON encoding, rotating the file when it reaches the size cap.
type FileLogger struct {
	basePath string
	rotate   bool
	maxSize  int64
	maxFiles int

	mu   sync.Mutex
	file *os.File
	size int64
}

// FileLoggerConfig configures the file sink.
type FileLoggerConfig struct {
	BasePath string // directory holding the active and rotated files
	Rotate   bool
	MaxSize  int64 // bytes before the active file rotates
	MaxFiles int   // rotated files kept on disk
}

// DefaultFileLoggerConfig returns the deployment defaults. cmd/authd starts
// from these and overrides only the path.
func DefaultFileLoggerConfig() FileLoggerConfig {
	return FileLoggerConfig{
		BasePath: "/var/log/dotmac/audit",
		Rotate:   true,
		MaxSize:  100 * 1024 * 1024,
		MaxFiles: 10,
	}
}

// NewFileLogger opens the active log file under config.BasePath, creating the
// directory when needed. Zero MaxSize and MaxFiles fall back to the defaults.
func NewFileLogger(config FileLoggerConfig) (*FileLogger, error) {
	if err := os.MkdirAll(config.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	l := &FileLogger{
		basePath: config.BasePath,
		rotate:   config.Rotate,
		maxSize:  config.MaxSize,
		maxFiles: config.MaxFiles,
	}
	if l.maxSize <= 0 {
		l.maxSize = DefaultFileLoggerConfig().MaxSize
	}
	if l.maxFiles <= 0 {
		l.maxFiles = DefaultFileLoggerConfig().MaxFiles
	}

	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

// open opens the active file for appending and seeds the tracked size, so
// Log never has to stat the file per event.
func (l *FileLogger) open() error {
	name := filepath.Join(l.basePath, activeLogName)
	file, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open audit log file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat audit log file: %w", err)
	}

	l.file = file
	l.size = info.Size()
	return nil
}

// Log appends one event as a single line. When the line would push the active
// file past the cap, the file rotates first; a line larger than the cap on
// its own still goes out whole.
func (l *FileLogger) Log(ctx context.Context, event *AuditEvent) error {
	line, err := event.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to encode audit event: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return fmt.Errorf("audit log closed")
	}
	if l.rotate && l.size > 0 && l.size+int64(len(line)) > l.maxSize {
		if err := l.rotateLocked(); err != nil {
			return err
		}
	}

	n, err := l.file.Write(line)
	l.size += int64(n)
	if err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

// rotateLocked renames the active file aside and reopens a fresh one. The
// stamp has nanosecond precision so rotations inside one second cannot
// overwrite each other, and its fixed width keeps lexical order
// chronological for pruning.
func (l *FileLogger) rotateLocked() error {
	active := filepath.Join(l.basePath, activeLogName)

	if err := l.file.Close(); err != nil {
		return fmt.Errorf("failed to close audit log for rotation: %w", err)
	}
	l.file = nil

	stamp := time.Now().UTC().Format("20060102T150405.000000000")
	rotated := filepath.Join(l.basePath, fmt.Sprintf("audit-%s.log", stamp))
	if err := os.Rename(active, rotated); err != nil {
		return fmt.Errorf("failed to rotate audit log: %w", err)
	}

	l.prune()
	return l.open()
}

// prune drops the oldest rotated files past the retention count. Removal
// failures are reported on stderr and never fail the write that triggered
// the rotation.
func (l *FileLogger) prune() {
	rotated, err := filepath.Glob(filepath.Join(l.basePath, "audit-*.log"))
	if err != nil || len(rotated) <= l.maxFiles {
		return
	}

	// Glob results come back sorted, oldest stamp first.
	for _, name := range rotated[:len(rotated)-l.maxFiles] {
		if err := os.Remove(name); err != nil {
			fmt.Fprintf(os.Stderr, "failed to remove old audit log %s: %v\n", name, err)
		}
	}
}

// LogAuthentication logs a credential verification event.
func (l *FileLogger) LogAuthentication(ctx context.Context, eventType EventType, userID string, status EventStatus, message string) error {
	event := buildBaseEvent(ctx, eventType, status)
	event.UserID = userID
	event.Message = message
	event.ResourceType = ResourceTypeUser

	return l.Log(ctx, event)
}

// LogAuthorization logs a permission or access decision event.
func (l *FileLogger) LogAuthorization(ctx context.Context, eventType EventType, userID string, resourceType ResourceType, resourceID string, status EventStatus, message string) error {
	event := buildBaseEvent(ctx, eventType, status)
	event.UserID = userID
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Message = message

	return l.Log(ctx, event)
}

// LogCredential logs a credential lifecycle event.
func (l *FileLogger) LogCredential(ctx context.Context, eventType EventType, userID string, resourceType ResourceType, credentialID string, status EventStatus, message string) error {
	event := buildBaseEvent(ctx, eventType, status)
	event.UserID = userID
	event.ResourceType = resourceType
	event.ResourceID = credentialID
	event.Message = message

	return l.Log(ctx, event)
}

// Close closes the active file. Further Log calls fail.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// ReadLogs returns up to count events from the active file, oldest first;
// count <= 0 reads the whole file. Rotated files are not consulted.
func (l *FileLogger) ReadLogs(count int) ([]*AuditEvent, error) {
	file, err := os.Open(filepath.Join(l.basePath, activeLogName))
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer file.Close()

	var events []*AuditEvent
	scanner := bufio.NewScanner(file)
	// Events with large metadata maps overflow the default token size.
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		event, err := FromJSON(scanner.Bytes())
		if err != nil {
			return nil, fmt.Errorf("failed to decode audit log entry: %w", err)
		}
		events = append(events, event)
		if count > 0 && len(events) >= count {
			return events, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}
	return events, nil
}
