// Package notify delivers user-facing messages raised by editing sessions.
package notify

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"go-image-editor/internal/logger"
)

// Severity of a user-facing message
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notification is one message addressed to the user of a session
type Notification struct {
	SessionID string    `json:"session_id"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier is fire-and-forget
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(n Notification)

// Notify calls f(n)
func (f NotifierFunc) Notify(n Notification) { f(n) }

// LogNotifier writes notifications to the structured log
type LogNotifier struct {
	log *logrus.Entry
}

// NewLogNotifier creates a notifier backed by the package logger
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{log: logger.ForComponent("notify")}
}

// Notify logs n at a level matching its severity
func (l *LogNotifier) Notify(n Notification) {
	entry := l.log.WithFields(logrus.Fields{
		"session_id": n.SessionID,
		"severity":   n.Severity,
	})
	switch n.Severity {
	case SeverityError:
		entry.Error(n.Message)
	case SeverityWarning:
		entry.Warn(n.Message)
	default:
		entry.Info(n.Message)
	}
}

// Multi fans a notification out to several notifiers
type Multi []Notifier

// Notify forwards n to every notifier
func (m Multi) Notify(n Notification) {
	for _, notifier := range m {
		if notifier != nil {
			notifier.Notify(n)
		}
	}
}

// DefaultInboxSize bounds how many messages a session keeps
const DefaultInboxSize = 50

// Inbox keeps the most recent notifications of one session until drained
type Inbox struct {
	mu       sync.Mutex
	capacity int
	items    []Notification
}

// NewInbox creates an inbox holding at most capacity messages
func NewInbox(capacity int) *Inbox {
	if capacity <= 0 {
		capacity = DefaultInboxSize
	}
	return &Inbox{capacity: capacity}
}

// Notify stores n, evicting the oldest message when full
func (i *Inbox) Notify(n Notification) {
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if len(i.items) == i.capacity {
		i.items = i.items[1:]
	}
	i.items = append(i.items, n)
}

// List returns the stored messages without removing them
func (i *Inbox) List() []Notification {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]Notification(nil), i.items...)
}

// Drain returns and removes every stored message
func (i *Inbox) Drain() []Notification {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := i.items
	i.items = nil
	return out
}
