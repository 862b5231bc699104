// Package events provides event types and publishing infrastructure for brain.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType defines the type of event.
type EventType string

const (
	// EventRunnerState indicates a runner state transition (idle/running/paused/stopped).
	EventRunnerState EventType = "runner_state"
	// EventTaskSpawned indicates a task subprocess was started.
	EventTaskSpawned EventType = "task_spawned"
	// EventTaskExited indicates a task subprocess exited.
	EventTaskExited EventType = "task_exited"
	// EventTaskBlocked indicates a task was marked blocked by the supervisor.
	EventTaskBlocked EventType = "task_blocked"
	// EventTaskResumed indicates an interrupted task was re-spawned.
	EventTaskResumed EventType = "task_resumed"
	// EventError indicates a non-fatal supervisor error.
	EventError EventType = "error"
)

// GlobalProject is the special project key for subscribing to all projects.
const GlobalProject = "*"

// Event represents a published runner event.
type Event struct {
	ID      string    `json:"id"`
	Type    EventType `json:"type"`
	Project string    `json:"project"`
	TaskID  string    `json:"task_id,omitempty"`
	Data    any       `json:"data,omitempty"`
	Time    time.Time `json:"time"`
}

// NewEvent creates an event with a fresh id and the current timestamp.
func NewEvent(eventType EventType, project, taskID string, data any) Event {
	return Event{
		ID:      uuid.NewString(),
		Type:    eventType,
		Project: project,
		TaskID:  taskID,
		Data:    data,
		Time:    time.Now(),
	}
}

// Publisher defines the interface for event publishing.
type Publisher interface {
	// Publish sends an event to all subscribers of its project.
	Publish(event Event)
	// Subscribe returns a channel receiving events for the given project.
	// Use GlobalProject ("*") to receive events for all projects.
	Subscribe(project string) <-chan Event
	// Unsubscribe removes a subscription channel.
	Unsubscribe(project string, ch <-chan Event)
	// Close shuts down the publisher and all subscriptions.
	Close()
}

// MemoryPublisher is an in-memory implementation of Publisher.
type MemoryPublisher struct {
	subscribers map[string][]chan Event
	mu          sync.RWMutex
	bufferSize  int
	closed      bool
}

// NewMemoryPublisher creates a new in-memory publisher.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{
		subscribers: make(map[string][]chan Event),
		bufferSize:  100,
	}
}

// Publish sends an event to project subscribers and global subscribers.
// Non-blocking: subscribers with full buffers are skipped.
func (p *MemoryPublisher) Publish(event Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return
	}

	for _, ch := range p.subscribers[event.Project] {
		select {
		case ch <- event:
		default:
		}
	}
	if event.Project != GlobalProject {
		for _, ch := range p.subscribers[GlobalProject] {
			select {
			case ch <- event:
			default:
			}
		}
	}
}

// Subscribe returns a channel that receives events for the given project.
func (p *MemoryPublisher) Subscribe(project string) <-chan Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch := make(chan Event, p.bufferSize)
	p.subscribers[project] = append(p.subscribers[project], ch)
	return ch
}

// Unsubscribe removes a subscription channel and closes it.
func (p *MemoryPublisher) Unsubscribe(project string, ch <-chan Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	subs := p.subscribers[project]
	for i, sub := range subs {
		if sub == ch {
			p.subscribers[project] = append(subs[:i], subs[i+1:]...)
			close(sub)
			return
		}
	}
}

// Close shuts down the publisher and all subscriptions.
func (p *MemoryPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	for _, subs := range p.subscribers {
		for _, ch := range subs {
			close(ch)
		}
	}
	p.subscribers = make(map[string][]chan Event)
}
