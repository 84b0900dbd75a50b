// Package hooks provides an event/listener extension point for WAL
// lifecycle events: segment rotation, checkpoint creation and recovery.
package hooks

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/INLOpen/nexuslog/core"
)

// EventType defines the type of a hook event.
type EventType string

const (
	// EventPostWALRotate fires after the WAL has rotated to a new segment.
	EventPostWALRotate EventType = "PostWALRotate"
	// EventPostCheckpoint fires after a checkpoint has been persisted.
	EventPostCheckpoint EventType = "PostCheckpoint"
	// EventPostWALRecovery fires after a recovery pass completes.
	EventPostWALRecovery EventType = "PostWALRecovery"
)

// HookManager defines the interface for managing and triggering hooks.
type HookManager interface {
	// Register adds a listener for a specific event type.
	Register(eventType EventType, listener HookListener)
	// Trigger fires all registered listeners for a given event.
	Trigger(ctx context.Context, event HookEvent) error
	// Stop waits for all asynchronous listeners to complete.
	Stop()
}

// HookEvent is the interface that all event objects implement.
type HookEvent interface {
	Type() EventType
	Payload() interface{}
}

// HookListener receives triggered events.
type HookListener interface {
	// OnEvent is called when a registered event fires. Errors are logged
	// and never cancel the originating operation.
	OnEvent(ctx context.Context, event HookEvent) error
	// Priority orders listeners; lower numbers run first.
	Priority() int
	// IsAsync indicates whether the listener runs in its own goroutine.
	IsAsync() bool
}

// BaseEvent provides a base implementation for HookEvent.
type BaseEvent struct {
	eventType EventType
	payload   interface{}
}

func (e *BaseEvent) Type() EventType      { return e.eventType }
func (e *BaseEvent) Payload() interface{} { return e.payload }

// PostWALRotatePayload contains information about a WAL rotation.
type PostWALRotatePayload struct {
	OldSegmentPath      string
	NewSegmentPath      string
	StartSequenceNumber uint64
}

// NewPostWALRotateEvent creates an event for after the WAL has been rotated
// to a new segment.
func NewPostWALRotateEvent(payload PostWALRotatePayload) HookEvent {
	return &BaseEvent{eventType: EventPostWALRotate, payload: payload}
}

// PostCheckpointPayload contains the persisted checkpoint.
type PostCheckpointPayload struct {
	Checkpoint core.Checkpoint
}

// NewPostCheckpointEvent creates an event for after a checkpoint has been
// persisted.
func NewPostCheckpointEvent(payload PostCheckpointPayload) HookEvent {
	return &BaseEvent{eventType: EventPostCheckpoint, payload: payload}
}

// PostWALRecoveryPayload contains information about a completed recovery.
type PostWALRecoveryPayload struct {
	RecoveredOperations int
	StartSequenceNumber uint64
	Duration            time.Duration
}

// NewPostWALRecoveryEvent creates an event for after WAL recovery is
// complete.
func NewPostWALRecoveryEvent(payload PostWALRecoveryPayload) HookEvent {
	return &BaseEvent{eventType: EventPostWALRecovery, payload: payload}
}

// listenerWithPriority wraps a listener with its priority.
type listenerWithPriority struct {
	listener HookListener
	priority int
}

// DefaultHookManager is a concrete implementation of HookManager.
type DefaultHookManager struct {
	listeners map[EventType][]*listenerWithPriority
	mu        sync.RWMutex
	wg        sync.WaitGroup
	logger    *slog.Logger
}

// NewHookManager creates a new DefaultHookManager.
func NewHookManager(logger *slog.Logger) HookManager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &DefaultHookManager{
		listeners: make(map[EventType][]*listenerWithPriority),
		logger:    logger,
	}
}

// Register adds a listener for a specific event type, maintaining priority
// order.
func (m *DefaultHookManager) Register(eventType EventType, listener HookListener) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := &listenerWithPriority{
		listener: listener,
		priority: listener.Priority(),
	}

	l := m.listeners[eventType]
	idx := sort.Search(len(l), func(i int) bool {
		return l[i].priority >= item.priority
	})
	l = append(l, nil)
	copy(l[idx+1:], l[idx:])
	l[idx] = item
	m.listeners[eventType] = l
}

// Trigger fires all registered listeners for a given event in priority
// order. Synchronous listener errors are logged; asynchronous listeners run
// in their own goroutines tracked until Stop.
func (m *DefaultHookManager) Trigger(ctx context.Context, event HookEvent) error {
	m.mu.RLock()
	listeners, ok := m.listeners[event.Type()]
	m.mu.RUnlock()

	if !ok || len(listeners) == 0 {
		return nil
	}

	for _, item := range listeners {
		if item.listener.IsAsync() {
			m.wg.Add(1)
			go func(current *listenerWithPriority) {
				defer m.wg.Done()
				if err := current.listener.OnEvent(ctx, event); err != nil {
					m.logger.Error("Error from asynchronous hook listener.",
						"event", event.Type(), "priority", current.priority, "error", err)
				}
			}(item)
			continue
		}
		if err := item.listener.OnEvent(ctx, event); err != nil {
			m.logger.Error("Error from synchronous hook listener.",
				"event", event.Type(), "priority", item.priority, "error", err)
		}
	}
	return nil
}

// Stop waits for all asynchronous listeners to complete.
func (m *DefaultHookManager) Stop() {
	m.wg.Wait()
}
