package observer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// EditorEvent represents one step in the life of an editing session
type EditorEvent struct {
	EventType        EventType              `json:"event_type"`
	Timestamp        time.Time              `json:"timestamp"`
	SessionID        string                 `json:"session_id"`
	TransformationID string                 `json:"transformation_id,omitempty"`
	Kind             string                 `json:"kind,omitempty"`
	ImageURL         string                 `json:"image_url,omitempty"`
	ProcessingTime   time.Duration          `json:"processing_time"`
	Success          bool                   `json:"success"`
	ErrorMessage     string                 `json:"error_message,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

// EventType represents the type of editor event
type EventType string

const (
	// OperationStarted when a transformation is accepted by the gate
	OperationStarted EventType = "operation_started"
	// OperationCompleted when a transformation is committed to history
	OperationCompleted EventType = "operation_completed"
	// OperationFailed when a transformation is rolled back
	OperationFailed EventType = "operation_failed"
	// PollStarted when a completion poll session begins
	PollStarted EventType = "poll_started"
	// PollFinished when a completion poll session reaches a terminal state
	PollFinished EventType = "poll_finished"
	// HistoryMoved on undo and redo
	HistoryMoved EventType = "history_moved"
	// SessionReset when history is cleared or a new base image is loaded
	SessionReset EventType = "session_reset"
	// SessionClosed on teardown
	SessionClosed EventType = "session_closed"
)

// Observer defines the interface for event observers
type Observer interface {
	OnEvent(ctx context.Context, event EditorEvent)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event EditorEvent)
}

// LoggingObserver logs editor events
type LoggingObserver struct {
	logger *logrus.Logger
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver(logger *logrus.Logger) Observer {
	return &LoggingObserver{
		logger: logger,
	}
}

// OnEvent handles editor events by logging them
func (o *LoggingObserver) OnEvent(ctx context.Context, event EditorEvent) {
	fields := logrus.Fields{
		"event_type": event.EventType,
		"session_id": event.SessionID,
		"success":    event.Success,
	}
	if event.TransformationID != "" {
		fields["transformation_id"] = event.TransformationID
	}
	if event.Kind != "" {
		fields["kind"] = event.Kind
	}
	if event.ImageURL != "" {
		fields["image_url"] = event.ImageURL
	}
	if event.ProcessingTime > 0 {
		fields["processing_time"] = event.ProcessingTime
	}
	if event.ErrorMessage != "" {
		fields["error"] = event.ErrorMessage
	}
	for k, v := range event.Metadata {
		fields[k] = v
	}

	entry := o.logger.WithFields(fields)
	switch event.EventType {
	case OperationStarted:
		entry.Info("Operation started")
	case OperationCompleted:
		entry.Info("Operation completed")
	case OperationFailed:
		entry.Warn("Operation failed")
	case PollStarted, PollFinished, HistoryMoved:
		entry.Debug("Editor event")
	default:
		entry.Info("Editor event occurred")
	}
}

// GetObserverName returns the observer name
func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

// MetricsObserver aggregates counters from editor events
type MetricsObserver struct {
	mu                  sync.RWMutex
	started             int64
	completed           int64
	failed              int64
	pollsStarted        int64
	pollOutcomes        map[string]int64
	historyMoves        int64
	resets              int64
	byKind              map[string]int64
	totalProcessingTime time.Duration
}

// NewMetricsObserver creates a new metrics observer
func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{
		pollOutcomes: make(map[string]int64),
		byKind:       make(map[string]int64),
	}
}

// OnEvent handles editor events by collecting metrics
func (o *MetricsObserver) OnEvent(ctx context.Context, event EditorEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch event.EventType {
	case OperationStarted:
		o.started++
		if event.Kind != "" {
			o.byKind[event.Kind]++
		}
	case OperationCompleted:
		o.completed++
		o.totalProcessingTime += event.ProcessingTime
	case OperationFailed:
		o.failed++
	case PollStarted:
		o.pollsStarted++
	case PollFinished:
		if outcome, ok := event.Metadata["outcome"].(string); ok {
			o.pollOutcomes[outcome]++
		}
	case HistoryMoved:
		o.historyMoves++
	case SessionReset:
		o.resets++
	}
}

// GetObserverName returns the observer name
func (o *MetricsObserver) GetObserverName() string {
	return "metrics_observer"
}

// GetMetrics returns current metrics
func (o *MetricsObserver) GetMetrics() map[string]interface{} {
	o.mu.RLock()
	defer o.mu.RUnlock()

	avgProcessingTime := time.Duration(0)
	if o.completed > 0 {
		avgProcessingTime = o.totalProcessingTime / time.Duration(o.completed)
	}

	outcomes := make(map[string]int64, len(o.pollOutcomes))
	for k, v := range o.pollOutcomes {
		outcomes[k] = v
	}
	kinds := make(map[string]int64, len(o.byKind))
	for k, v := range o.byKind {
		kinds[k] = v
	}

	return map[string]interface{}{
		"operations_started":    o.started,
		"operations_completed":  o.completed,
		"operations_failed":     o.failed,
		"operations_by_kind":    kinds,
		"polls_started":         o.pollsStarted,
		"poll_outcomes":         outcomes,
		"history_moves":         o.historyMoves,
		"resets":                o.resets,
		"total_processing_time": o.totalProcessingTime.String(),
		"avg_processing_time":   avgProcessingTime.String(),
	}
}

// EventPublisher implements the Subject interface
type EventPublisher struct {
	mu        sync.RWMutex
	observers []Observer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher() *EventPublisher {
	return &EventPublisher{
		observers: make([]Observer, 0),
	}
}

// Subscribe adds an observer
func (p *EventPublisher) Subscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, observer)
}

// Unsubscribe removes an observer
func (p *EventPublisher) Unsubscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, obs := range p.observers {
		if obs.GetObserverName() == observer.GetObserverName() {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			break
		}
	}
}

// NotifyObservers notifies all observers of an event without blocking the caller
func (p *EventPublisher) NotifyObservers(ctx context.Context, event EditorEvent) {
	p.mu.RLock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	for _, observer := range observers {
		go func(obs Observer) {
			defer func() {
				if r := recover(); r != nil {
					logrus.WithField("observer", obs.GetObserverName()).
						WithField("panic", r).
						Error("Observer panicked while handling event")
				}
			}()
			obs.OnEvent(context.WithoutCancel(ctx), event)
		}(observer)
	}
}
