package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

// Error categories
const (
	// Parse errors (PARSE-001 to PARSE-099)
	ErrCodeParseTaskLine      ErrorCode = "PARSE-001"
	ErrCodeParsePhaseHeading  ErrorCode = "PARSE-002"
	ErrCodeParseGroupHeading  ErrorCode = "PARSE-003"
	ErrCodeParseOrphanTask    ErrorCode = "PARSE-004"
	ErrCodeParseDuplicateTask ErrorCode = "PARSE-005"
	ErrCodeParseEmptyDocument ErrorCode = "PARSE-006"

	// Graph errors (GRAPH-001 to GRAPH-099)
	ErrCodeGraphUnknownTask ErrorCode = "GRAPH-001"
	ErrCodeGraphCyclicDep   ErrorCode = "GRAPH-002"

	// Remote errors (REMOTE-001 to REMOTE-099)
	ErrCodeRemoteAuth        ErrorCode = "REMOTE-001"
	ErrCodeRemoteRateLimit   ErrorCode = "REMOTE-002"
	ErrCodeRemoteTimeout     ErrorCode = "REMOTE-003"
	ErrCodeRemoteAPI         ErrorCode = "REMOTE-004"
	ErrCodeRemoteNotFound    ErrorCode = "REMOTE-005"
	ErrCodeRemoteConflict    ErrorCode = "REMOTE-006"
	ErrCodeRemotePermission  ErrorCode = "REMOTE-007"
	ErrCodeRemoteUnavailable ErrorCode = "REMOTE-008"

	// Sync outcome errors (SYNC-001 to SYNC-099)
	ErrCodeSyncPartial ErrorCode = "SYNC-001"

	// Sync state errors (STATE-001 to STATE-099)
	ErrCodeStateNotFound ErrorCode = "STATE-001"
	ErrCodeStateInvalid  ErrorCode = "STATE-002"
	ErrCodeStateWrite    ErrorCode = "STATE-003"

	// Config errors (CONFIG-001 to CONFIG-099)
	ErrCodeConfigNotFound ErrorCode = "CONFIG-001"
	ErrCodeConfigInvalid  ErrorCode = "CONFIG-002"
	ErrCodeConfigToken    ErrorCode = "CONFIG-003"

	// File I/O errors (IO-001 to IO-099)
	ErrCodeFileNotFound    ErrorCode = "IO-001"
	ErrCodeFileReadFailed  ErrorCode = "IO-002"
	ErrCodeFileWriteFailed ErrorCode = "IO-003"
)

// SyncError represents an enhanced error with code, suggestions, and documentation
type SyncError struct {
	Code        ErrorCode
	Message     string
	Suggestions []string
	DocsURL     string
	Cause       error
}

// Error implements the error interface
func (e *SyncError) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(": %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  • %s", suggestion))
		}
	}

	if e.DocsURL != "" {
		b.WriteString(fmt.Sprintf("\n\nDocumentation: %s", e.DocsURL))
	}

	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *SyncError) Unwrap() error {
	return e.Cause
}

// New creates a new SyncError
func New(code ErrorCode, message string) *SyncError {
	return &SyncError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new SyncError wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *SyncError {
	return &SyncError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithSuggestion adds a suggestion to the error
func (e *SyncError) WithSuggestion(suggestion string) *SyncError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithSuggestions adds multiple suggestions to the error
func (e *SyncError) WithSuggestions(suggestions ...string) *SyncError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// WithDocs adds a documentation URL to the error
func (e *SyncError) WithDocs(url string) *SyncError {
	e.DocsURL = url
	return e
}

// IsParseError reports whether the error carries a PARSE code.
// Parse and structural errors abort a run before any remote call.
func IsParseError(err error) bool {
	return strings.HasPrefix(string(codeOf(err)), "PARSE-")
}

// IsRemoteTransient reports whether the error is a retryable remote failure
// (rate limit, timeout, temporary unavailability).
func IsRemoteTransient(err error) bool {
	switch codeOf(err) {
	case ErrCodeRemoteRateLimit, ErrCodeRemoteTimeout, ErrCodeRemoteUnavailable:
		return true
	}
	return false
}

// IsRemoteConflict reports whether the error signals an already-existing
// remote entity or relationship. Conflicts are treated as success by the
// reconciliation engine.
func IsRemoteConflict(err error) bool {
	return codeOf(err) == ErrCodeRemoteConflict
}

// IsPartialSync reports whether the error summarizes a sync run in
// which some entities or links did not converge
func IsPartialSync(err error) bool {
	return codeOf(err) == ErrCodeSyncPartial
}

// IsRemoteFatal reports whether the error is a non-retryable remote failure
// (authentication or permission).
func IsRemoteFatal(err error) bool {
	switch codeOf(err) {
	case ErrCodeRemoteAuth, ErrCodeRemotePermission:
		return true
	}
	return false
}

// codeOf walks the wrap chain so classification survives fmt.Errorf
// %w wrapping at call sites
func codeOf(err error) ErrorCode {
	var se *SyncError
	if stderrors.As(err, &se) {
		return se.Code
	}
	return ""
}

// Common error constructors for frequently used errors

// NewTasksFileNotFoundError creates a tasks file not found error
func NewTasksFileNotFoundError(path string) *SyncError {
	return New(ErrCodeFileNotFound, fmt.Sprintf("tasks file not found: %s", path)).
		WithSuggestion("Check if the file path is correct").
		WithSuggestion("Use --file to point at your tasks.md")
}

// NewOrphanTaskError creates an error for a task declared before any phase
func NewOrphanTaskError(line int, taskID string) *SyncError {
	return New(ErrCodeParseOrphanTask, fmt.Sprintf("line %d: task %s appears before any phase heading", line, taskID)).
		WithSuggestion("Add a '## Phase N: <title>' heading before the first task")
}

// NewDuplicateTaskError creates an error for a repeated task identifier
func NewDuplicateTaskError(line int, taskID string, firstLine int) *SyncError {
	return New(ErrCodeParseDuplicateTask, fmt.Sprintf("line %d: duplicate task identifier %s (first declared on line %d)", line, taskID, firstLine)).
		WithSuggestion("Task identifiers must be unique across the whole document").
		WithSuggestion("Renumber the duplicated task")
}

// NewRemoteAuthError creates a remote authentication error
func NewRemoteAuthError(cause error) *SyncError {
	return Wrap(ErrCodeRemoteAuth, "authentication failed for remote tracker", cause).
		WithSuggestion("Set the GITHUB_TOKEN environment variable").
		WithSuggestion("Check if your token is valid and not expired").
		WithSuggestion("The token needs repo and project scopes")
}

// NewRemoteRateLimitError creates a rate limit error carrying the
// remote-reported retry delay
func NewRemoteRateLimitError(retryAfter string) *SyncError {
	msg := "rate limit exceeded for remote tracker"
	if retryAfter != "" {
		msg += fmt.Sprintf(" (retry after: %s)", retryAfter)
	}

	return New(ErrCodeRemoteRateLimit, msg).
		WithSuggestion("Wait before retrying the sync").
		WithSuggestion("Unchanged documents short-circuit on the content hash and cost zero calls")
}

// NewPartialSyncError summarizes a sync run with per-entity failures
func NewPartialSyncError(failed int) *SyncError {
	return New(ErrCodeSyncPartial, fmt.Sprintf("%d entities did not converge", failed)).
		WithSuggestion("Re-run 'specsync sync' to retry only what failed").
		WithSuggestion("Already-created entities are re-discovered by natural key, never duplicated")
}

// NewStateInvalidError creates a sync state parse error
func NewStateInvalidError(path string, cause error) *SyncError {
	return Wrap(ErrCodeStateInvalid, fmt.Sprintf("failed to parse sync state file: %s", path), cause).
		WithSuggestion("Delete the state file to force a full re-match against remote state").
		WithSuggestion("Remote state is authoritative; the state file is only a cache")
}

// NewConfigNotFoundError creates a config file not found error
func NewConfigNotFoundError(path string) *SyncError {
	return New(ErrCodeConfigNotFound, fmt.Sprintf("config file not found: %s", path)).
		WithSuggestion("Run 'specsync init' to create a configuration").
		WithSuggestion("Check if you are in the project root directory")
}
