package remote

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind identifies the level of an entity in the three-level hierarchy
type Kind string

const (
	// KindPhase is a top-level phase item
	KindPhase Kind = "phase"
	// KindGroup is a task group nested under a phase
	KindGroup Kind = "group"
	// KindTask is an atomic task nested under a group or phase
	KindTask Kind = "task"
)

// NaturalKey is a structural identifier used to match local entities to
// remote ones without relying on remote-assigned identifiers. Keys are
// stable across runs as long as the document structure is stable.
type NaturalKey string

// PhaseKey builds the natural key for a phase
func PhaseKey(number int) NaturalKey {
	return NaturalKey(fmt.Sprintf("phase:%d", number))
}

// GroupKey builds the natural key for a task group. Groups have no
// identity beyond (phase number, title).
func GroupKey(phaseNumber int, title string) NaturalKey {
	return NaturalKey(fmt.Sprintf("group:%d:%s", phaseNumber, title))
}

// TaskKey builds the natural key for a task
func TaskKey(taskID string) NaturalKey {
	return NaturalKey("task:" + taskID)
}

// ExternalID is a remote-assigned opaque identifier
type ExternalID string

// ProjectInfo describes the remote project/board entities are
// registered into
type ProjectInfo struct {
	ID     ExternalID `json:"id"`
	Number int        `json:"number"`
	Title  string     `json:"title"`
	URL    string     `json:"url"`
}

// Well-known custom field names
const (
	FieldTaskID    = "Task ID"
	FieldPhase     = "Phase"
	FieldUserStory = "User Story"
	FieldParallel  = "Parallel"
	FieldPriority  = "Priority"
)

// Fields maps custom field names to remote field identifiers, and
// single-select field names to their option name → option ID maps.
type Fields struct {
	IDs     map[string]string            `json:"ids"`
	Options map[string]map[string]string `json:"options"`
}

// OptionID resolves a single-select option, returning false when either
// the field or the option is unknown
func (f *Fields) OptionID(field, option string) (string, bool) {
	opts, ok := f.Options[field]
	if !ok {
		return "", false
	}
	id, ok := opts[option]
	return id, ok
}

// FieldValue is a value written to a custom field: either free text or
// a single-select option reference
type FieldValue struct {
	Text     string
	OptionID string
}

// Entity describes a to-be-created remote item. Parent is empty for
// phases; a group's parent is its phase, a task's parent is its group
// (or phase when groupless).
type Entity struct {
	Kind   Kind
	Key    NaturalKey
	Title  string
	Body   string
	Parent ExternalID
}

// Item is a normalized remote item as seen in a snapshot
type Item struct {
	ID     ExternalID // content identifier
	ItemID ExternalID // project item identifier, empty until registered
	Title  string
	Body   string
}

// ErrNotFound is returned by LookupByNaturalKey when no remote
// counterpart exists
var ErrNotFound = errors.New("remote: entity not found")

// ErrAlreadyLinked is returned by LinkDependency when the blocking
// relationship already exists. Callers treat it as success.
var ErrAlreadyLinked = errors.New("remote: dependency already linked")

// RateLimitError signals that the remote rejected a call for rate
// limiting and reported when the budget resets
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("remote: rate limited, retry after %s", e.RetryAfter)
}

// IsRateLimited reports whether err carries a rate-limit signal and
// returns the remote-reported delay
func IsRateLimited(err error) (time.Duration, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	return 0, false
}

// Tracker is the remote collaborator the reconciliation engine talks
// to. Every call may fail with a *RateLimitError; callers must pause at
// least RetryAfter before the next call.
//
// Two implementations exist: GitHubTracker speaks the GitHub Projects
// GraphQL API; MemoryTracker is an in-memory fake for tests.
type Tracker interface {
	// FindProject resolves the target project without creating it,
	// returning ErrNotFound when it does not exist. Dry runs use this
	// so planning never mutates remote state.
	FindProject(ctx context.Context) (*ProjectInfo, error)

	// EnsureProject resolves the target project, creating it when it
	// does not exist yet
	EnsureProject(ctx context.Context, title, description string) (*ProjectInfo, error)

	// EnsureFields creates the custom fields (Task ID, Phase, User
	// Story, Parallel, Priority) missing from the project and returns
	// the full field map. Existing fields are reused, never recreated.
	EnsureFields(ctx context.Context, phases, userStories []string) (*Fields, error)

	// LookupByNaturalKey finds the remote counterpart of a local
	// entity, or ErrNotFound. The lookup is eventually consistent:
	// concurrent syncs against the same project are unsafe.
	LookupByNaturalKey(ctx context.Context, kind Kind, key NaturalKey) (*Item, error)

	// CreateEntity creates a remote item with correct parent linkage
	// and registers it into the project when the remote API supports
	// combined creation+registration
	CreateEntity(ctx context.Context, entity Entity) (*Item, error)

	// UpdateEntityBody rewrites the body of an existing item
	UpdateEntityBody(ctx context.Context, id ExternalID, body string) error

	// RegisterInProject adds an item to the project and returns the
	// project item identifier. Registering an already-registered item
	// succeeds and returns the existing identifier.
	RegisterInProject(ctx context.Context, id ExternalID) (ExternalID, error)

	// SetFieldValue writes a custom field value on a project item
	SetFieldValue(ctx context.Context, itemID ExternalID, fieldID string, value FieldValue) error

	// LinkDependency records that blocked is blocked by blocker.
	// Returns ErrAlreadyLinked when the relationship already exists.
	LinkDependency(ctx context.Context, blocked, blocker ExternalID) error
}
