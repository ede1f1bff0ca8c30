package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// AsyncLoggerConfig configures the buffered dispatcher.
type AsyncLoggerConfig struct {
	// QueueSize bounds the number of events waiting for delivery
	// (default: 1024). A full queue drops new events rather than blocking
	// the caller.
	QueueSize int
}

// DefaultAsyncLoggerConfig returns default configuration
func DefaultAsyncLoggerConfig() AsyncLoggerConfig {
	return AsyncLoggerConfig{QueueSize: 1024}
}

// AsyncLogger decouples audit emission from sink latency. Events are built
// synchronously, while the request context is still live, and delivered to
// the wrapped sink from a single background goroutine. Engines hold locks
// while auditing, so a slow file or network sink must never stall them.
type AsyncLogger struct {
	inner Logger
	queue chan *AuditEvent
	done  chan struct{}

	mu     sync.RWMutex
	closed bool

	dropped atomic.Int64
}

// NewAsyncLogger wraps inner with a bounded delivery queue.
func NewAsyncLogger(inner Logger, config AsyncLoggerConfig) *AsyncLogger {
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultAsyncLoggerConfig().QueueSize
	}
	l := &AsyncLogger{
		inner: inner,
		queue: make(chan *AuditEvent, config.QueueSize),
		done:  make(chan struct{}),
	}
	go l.drain()
	return l
}

// Log enqueues an event for delivery. A full queue or a closed logger drops
// the event and returns nil; auditing never fails the operation it records.
func (l *AsyncLogger) Log(ctx context.Context, event *AuditEvent) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		l.dropped.Add(1)
		return nil
	}
	select {
	case l.queue <- event:
	default:
		l.dropped.Add(1)
	}
	return nil
}

// LogAuthentication logs a credential verification event
func (l *AsyncLogger) LogAuthentication(ctx context.Context, eventType EventType, userID string, status EventStatus, message string) error {
	event := buildBaseEvent(ctx, eventType, status)
	event.UserID = userID
	event.Message = message
	event.ResourceType = ResourceTypeUser

	return l.Log(ctx, event)
}

// LogAuthorization logs a permission or access decision event
func (l *AsyncLogger) LogAuthorization(ctx context.Context, eventType EventType, userID string, resourceType ResourceType, resourceID string, status EventStatus, message string) error {
	event := buildBaseEvent(ctx, eventType, status)
	event.UserID = userID
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Message = message

	return l.Log(ctx, event)
}

// LogCredential logs a credential lifecycle event
func (l *AsyncLogger) LogCredential(ctx context.Context, eventType EventType, userID string, resourceType ResourceType, credentialID string, status EventStatus, message string) error {
	event := buildBaseEvent(ctx, eventType, status)
	event.UserID = userID
	event.ResourceType = resourceType
	event.ResourceID = credentialID
	event.Message = message

	return l.Log(ctx, event)
}

// Dropped reports how many events never reached the sink, whether because
// the queue was full, the logger was closed, or the sink panicked.
func (l *AsyncLogger) Dropped() int64 {
	return l.dropped.Load()
}

// Close flushes queued events to the sink, then closes the sink. Events
// logged after Close are dropped.
func (l *AsyncLogger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	<-l.done
	return l.inner.Close()
}

func (l *AsyncLogger) drain() {
	defer close(l.done)
	for event := range l.queue {
		l.deliver(event)
	}
}

// deliver hands one event to the sink. A panicking sink loses that event,
// never the drain loop. The request context is gone by delivery time; the
// event already captured everything it needed from it.
func (l *AsyncLogger) deliver(event *AuditEvent) {
	defer func() {
		if r := recover(); r != nil {
			l.dropped.Add(1)
		}
	}()
	if err := l.inner.Log(context.Background(), event); err != nil {
		l.dropped.Add(1)
	}
}
