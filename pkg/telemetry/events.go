package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event represents a telemetry event in the tabulark system.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// Source identifies where the event originated.
	Source string `json:"source"`

	// BatchID is the associated batch ID, if applicable.
	BatchID string `json:"batch_id,omitempty"`

	// StepIndex is the associated step index within the batch, if applicable.
	StepIndex int `json:"step_index,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// EventType constants for common event types.
const (
	EventTypeBatchStarted       = "batch.started"
	EventTypeBatchCompleted     = "batch.completed"
	EventTypeBatchAborted       = "batch.aborted"
	EventTypeStepStarted        = "step.started"
	EventTypeStepSucceeded      = "step.succeeded"
	EventTypeStepFailed         = "step.failed"
	EventTypeValidationRejected = "validation.rejected"
	EventTypeExecutionTimeout   = "execution.timeout"
	EventTypeResultTruncated    = "result.truncated"
	EventTypeError              = "error"
)

// EventLevel constants for event severity.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher manages event publishing and subscriptions.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	filters     []EventFilter
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())

	ep := &EventPublisher{
		config:      cfg,
		buffer:      make(chan Event, cfg.BufferSize),
		subscribers: make([]subscriberEntry, 0),
		filters:     make([]EventFilter, 0),
		ctx:         ctx,
		cancel:      cancel,
	}

	// Start the event processing goroutine
	if cfg.EnableAsync {
		ep.wg.Add(1)
		go ep.processEvents()
	}

	// Start the periodic flush goroutine
	if cfg.FlushInterval > 0 {
		ep.wg.Add(1)
		go ep.periodicFlush()
	}

	return ep, nil
}

// Publish publishes an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if !ep.config.Enabled {
		return nil
	}

	// Set ID and timestamp if not already set
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Apply global filters
	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return nil // Event filtered out
		}
	}
	ep.mu.RUnlock()

	// Send to buffer if async, otherwise process immediately
	if ep.config.EnableAsync {
		select {
		case ep.buffer <- event:
			return nil
		case <-ep.ctx.Done():
			return fmt.Errorf("event publisher stopped")
		default:
			// Buffer full, drop event or log warning
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	// Synchronous publishing
	ep.deliverEvent(event)
	return nil
}

// PublishBatchStarted publishes a batch started event.
func (ep *EventPublisher) PublishBatchStarted(batchID string, stepCount int, chained bool) error {
	return ep.Publish(Event{
		Type:    EventTypeBatchStarted,
		Source:  "orchestrator",
		BatchID: batchID,
		Message: fmt.Sprintf("Batch %s started with %d steps", batchID, stepCount),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"step_count": stepCount,
			"chained":    chained,
		},
	})
}

// PublishBatchCompleted publishes a batch completed event.
func (ep *EventPublisher) PublishBatchCompleted(batchID, status string, duration time.Duration) error {
	return ep.Publish(Event{
		Type:    EventTypeBatchCompleted,
		Source:  "orchestrator",
		BatchID: batchID,
		Message: fmt.Sprintf("Batch %s completed with status: %s", batchID, status),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"status":   status,
			"duration": duration.Seconds(),
		},
	})
}

// PublishBatchAborted publishes a batch aborted event.
func (ep *EventPublisher) PublishBatchAborted(batchID, reason string) error {
	return ep.Publish(Event{
		Type:    EventTypeBatchAborted,
		Source:  "orchestrator",
		BatchID: batchID,
		Message: fmt.Sprintf("Batch %s aborted: %s", batchID, reason),
		Level:   EventLevelError,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishStepStarted publishes a step started event.
func (ep *EventPublisher) PublishStepStarted(batchID string, stepIndex int, query string) error {
	return ep.Publish(Event{
		Type:      EventTypeStepStarted,
		Source:    "orchestrator",
		BatchID:   batchID,
		StepIndex: stepIndex,
		Message:   fmt.Sprintf("Step %d of batch %s started", stepIndex, batchID),
		Level:     EventLevelInfo,
		Data: map[string]interface{}{
			"query": query,
		},
	})
}

// PublishStepSucceeded publishes a step succeeded event.
func (ep *EventPublisher) PublishStepSucceeded(batchID string, stepIndex int, shape string, duration time.Duration) error {
	return ep.Publish(Event{
		Type:      EventTypeStepSucceeded,
		Source:    "orchestrator",
		BatchID:   batchID,
		StepIndex: stepIndex,
		Message:   fmt.Sprintf("Step %d of batch %s produced a %s result", stepIndex, batchID, shape),
		Level:     EventLevelInfo,
		Data: map[string]interface{}{
			"shape":    shape,
			"duration": duration.Seconds(),
		},
	})
}

// PublishStepFailed publishes a step failed event.
func (ep *EventPublisher) PublishStepFailed(batchID string, stepIndex int, class, reason string) error {
	return ep.Publish(Event{
		Type:      EventTypeStepFailed,
		Source:    "orchestrator",
		BatchID:   batchID,
		StepIndex: stepIndex,
		Message:   fmt.Sprintf("Step %d of batch %s failed: %s", stepIndex, batchID, reason),
		Level:     EventLevelError,
		Data: map[string]interface{}{
			"class":  class,
			"reason": reason,
		},
	})
}

// PublishValidationRejected publishes a validation rejected event.
func (ep *EventPublisher) PublishValidationRejected(batchID string, stepIndex, violationCount int) error {
	return ep.Publish(Event{
		Type:      EventTypeValidationRejected,
		Source:    "validator",
		BatchID:   batchID,
		StepIndex: stepIndex,
		Message:   fmt.Sprintf("Step %d of batch %s rejected with %d violations", stepIndex, batchID, violationCount),
		Level:     EventLevelWarning,
		Data: map[string]interface{}{
			"violation_count": violationCount,
		},
	})
}

// PublishExecutionTimeout publishes an execution timeout event.
func (ep *EventPublisher) PublishExecutionTimeout(batchID string, stepIndex int, budget time.Duration) error {
	return ep.Publish(Event{
		Type:      EventTypeExecutionTimeout,
		Source:    "sandbox",
		BatchID:   batchID,
		StepIndex: stepIndex,
		Message:   fmt.Sprintf("Step %d of batch %s exceeded its %s budget", stepIndex, batchID, budget),
		Level:     EventLevelWarning,
		Data: map[string]interface{}{
			"budget": budget.Seconds(),
		},
	})
}

// PublishResultTruncated publishes a result truncated event.
func (ep *EventPublisher) PublishResultTruncated(batchID string, stepIndex, totalRows, keptRows int) error {
	return ep.Publish(Event{
		Type:      EventTypeResultTruncated,
		Source:    "normalizer",
		BatchID:   batchID,
		StepIndex: stepIndex,
		Message:   fmt.Sprintf("Step %d of batch %s truncated from %d to %d rows", stepIndex, batchID, totalRows, keptRows),
		Level:     EventLevelWarning,
		Data: map[string]interface{}{
			"total_rows": totalRows,
			"kept_rows":  keptRows,
		},
	})
}

// Subscribe adds a new event subscriber.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.filters = append(ep.filters, filter)
}

// processEvents processes events from the buffer asynchronously.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	batch := make([]Event, 0, ep.config.MaxBatchSize)

	for {
		select {
		case event := <-ep.buffer:
			batch = append(batch, event)

			// Flush batch if it reaches max size
			if len(batch) >= ep.config.MaxBatchSize {
				ep.flushBatch(batch)
				batch = make([]Event, 0, ep.config.MaxBatchSize)
			}

		case <-ep.ctx.Done():
			// Flush remaining events before shutting down
			if len(batch) > 0 {
				ep.flushBatch(batch)
			}
			return
		}
	}
}

// periodicFlush flushes events periodically.
func (ep *EventPublisher) periodicFlush() {
	defer ep.wg.Done()

	ticker := time.NewTicker(ep.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// Trigger flush by draining buffer
			// This is handled by the processEvents goroutine
		case <-ep.ctx.Done():
			return
		}
	}
}

// flushBatch delivers a batch of events to subscribers.
func (ep *EventPublisher) flushBatch(events []Event) {
	for _, event := range events {
		ep.deliverEvent(event)
	}
}

// deliverEvent delivers an event to all subscribers.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		// Apply subscriber-specific filter
		if entry.filter != nil && !entry.filter(event) {
			continue
		}

		// Call subscriber in a goroutine to avoid blocking
		go entry.subscriber(event)
	}
}

// Shutdown gracefully shuts down the event publisher.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if !ep.config.Enabled {
		return nil
	}

	// Signal shutdown
	ep.cancel()

	// Wait for processing to complete with timeout
	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// Common event filters.

// FilterByLevel creates a filter that only allows events of a specific level or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}

	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByBatchID creates a filter that only allows events for a specific batch.
func FilterByBatchID(batchID string) EventFilter {
	return func(event Event) bool {
		return event.BatchID == batchID
	}
}
