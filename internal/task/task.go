// Package task provides the task model for brain.
package task

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Status represents the declared state of a task.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusPending    Status = "pending"
	StatusActive     Status = "active"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusCancelled  Status = "cancelled"
	StatusCompleted  Status = "completed"
	StatusValidated  Status = "validated"
	StatusSuperseded Status = "superseded"
	StatusArchived   Status = "archived"
)

// ValidStatuses returns all valid status values.
func ValidStatuses() []Status {
	return []Status{
		StatusDraft, StatusPending, StatusActive, StatusInProgress,
		StatusBlocked, StatusCancelled, StatusCompleted, StatusValidated,
		StatusSuperseded, StatusArchived,
	}
}

// IsValidStatus returns true if s is a known status.
func IsValidStatus(s Status) bool {
	switch s {
	case StatusDraft, StatusPending, StatusActive, StatusInProgress,
		StatusBlocked, StatusCancelled, StatusCompleted, StatusValidated,
		StatusSuperseded, StatusArchived:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status ends a task's execution.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusValidated, StatusSuperseded, StatusArchived:
		return true
	default:
		return false
	}
}

// Priority represents the urgency of a task.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank returns the sort rank of a priority; lower runs first.
// Unknown priorities coerce to medium.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

// Classification is the resolver's verdict on a task.
type Classification string

const (
	ClassReady           Classification = "ready"
	ClassWaiting         Classification = "waiting"
	ClassWaitingOnParent Classification = "waiting_on_parent"
	ClassBlocked         Classification = "blocked"
	ClassBlockedByParent Classification = "blocked_by_parent"
	ClassNotPending      Classification = "not_pending"
)

// Blocked-by reasons attached to blocked classifications.
const (
	ReasonCircular          = "circular_dependency"
	ReasonParentBlocked     = "parent_blocked"
	ReasonDependencyBlocked = "dependency_blocked"
)

// Task is a task entry loaded from a markdown file's metadata header.
type Task struct {
	ID       string   `yaml:"id" json:"id"`
	Path     string   `yaml:"path,omitempty" json:"path"`
	Title    string   `yaml:"title" json:"title"`
	Priority Priority `yaml:"priority,omitempty" json:"priority"`
	Status   Status   `yaml:"status" json:"status"`

	DependsOn []string `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
	ParentID  string   `yaml:"parent_id,omitempty" json:"parent_id,omitempty"`

	Workdir       string `yaml:"workdir,omitempty" json:"workdir,omitempty"`
	GitBranch     string `yaml:"git_branch,omitempty" json:"git_branch,omitempty"`
	TargetWorkdir string `yaml:"target_workdir,omitempty" json:"target_workdir,omitempty"`

	DirectPrompt string `yaml:"direct_prompt,omitempty" json:"direct_prompt,omitempty"`
	Agent        string `yaml:"agent,omitempty" json:"agent,omitempty"`
	Model        string `yaml:"model,omitempty" json:"model,omitempty"`

	FeatureID        string   `yaml:"feature_id,omitempty" json:"feature_id,omitempty"`
	FeaturePriority  string   `yaml:"feature_priority,omitempty" json:"feature_priority,omitempty"`
	FeatureDependsOn []string `yaml:"feature_depends_on,omitempty" json:"feature_depends_on,omitempty"`
}

// Resolved extends Task with the resolver's output.
type Resolved struct {
	Task

	ResolvedDeps   []string       `json:"resolved_deps,omitempty"`
	UnresolvedDeps []string       `json:"unresolved_deps,omitempty"`
	ParentChain    []string       `json:"parent_chain,omitempty"`
	Classification Classification `json:"classification"`
	BlockedBy      []string       `json:"blocked_by,omitempty"`
	BlockedReason  string         `json:"blocked_by_reason,omitempty"`
	WaitingOn      []string       `json:"waiting_on,omitempty"`
	InCycle        bool           `json:"in_cycle"`

	ResolvedWorkdir string `json:"resolved_workdir,omitempty"`
}

var (
	shortIDPattern = regexp.MustCompile(`^[A-Za-z0-9]{8}$`)
	slugIDPattern  = regexp.MustCompile(`^\d{13}-[a-z0-9][a-z0-9-]*$`)
)

// IsValidID reports whether id matches one of the two accepted forms:
// an 8-character alphanumeric, or <13-digit-epoch-ms>-<slug>.
func IsValidID(id string) bool {
	return shortIDPattern.MatchString(id) || slugIDPattern.MatchString(id)
}

// CreatedAt derives the creation time of a task from its id when the id
// carries an epoch-ms prefix. Tasks with opaque short ids sort to the zero
// time, i.e. before all timestamped tasks.
func (t *Task) CreatedAt() time.Time {
	dash := strings.IndexByte(t.ID, '-')
	if dash != 13 {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(t.ID[:13], 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// EffectivePriority returns the task priority, coercing unknown values to medium.
func (t *Task) EffectivePriority() Priority {
	switch t.Priority {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return t.Priority
	default:
		return PriorityMedium
	}
}
