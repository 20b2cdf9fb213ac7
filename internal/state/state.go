// Package state persists sync run state under .specsync/ so repeated
// runs can short-circuit on unchanged documents and recover partially
// synced projects without re-querying everything.
package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/specsync/specsync/internal/errors"
	"github.com/specsync/specsync/internal/remote"
)

const (
	stateVersion = "1.0"
	stateFile    = "state.json"
)

// SyncState is the persisted outcome of the most recent sync run
type SyncState struct {
	Version      string    `json:"version"`
	RunID        string    `json:"run_id"`
	LastHash     string    `json:"last_hash"`
	LastSyncedAt time.Time `json:"last_synced_at"`
	Status       string    `json:"status"` // completed, partial, failed

	Project *remote.ProjectInfo `json:"project,omitempty"`
	Fields  *remote.Fields      `json:"fields,omitempty"`

	// Entities maps natural keys to remote content identifiers; Items
	// maps them to project item identifiers
	Entities map[remote.NaturalKey]remote.ExternalID `json:"entities,omitempty"`
	Items    map[remote.NaturalKey]remote.ExternalID `json:"items,omitempty"`
}

// NewSyncState creates a fresh state for a run
func NewSyncState() *SyncState {
	return &SyncState{
		Version:  stateVersion,
		RunID:    uuid.New().String(),
		Status:   "running",
		Entities: make(map[remote.NaturalKey]remote.ExternalID),
		Items:    make(map[remote.NaturalKey]remote.ExternalID),
	}
}

// Record stores the remote identifiers assigned to an entity
func (s *SyncState) Record(key remote.NaturalKey, id, itemID remote.ExternalID) {
	if s.Entities == nil {
		s.Entities = make(map[remote.NaturalKey]remote.ExternalID)
	}
	if s.Items == nil {
		s.Items = make(map[remote.NaturalKey]remote.ExternalID)
	}
	s.Entities[key] = id
	if itemID != "" {
		s.Items[key] = itemID
	}
}

// Store handles state persistence in a project-local directory
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir, typically ".specsync"
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Path returns the state file location
func (st *Store) Path() string {
	return filepath.Join(st.dir, stateFile)
}

// Save persists the state to disk
func (st *Store) Save(state *SyncState) error {
	if state == nil {
		return apperrors.New(apperrors.ErrCodeStateWrite, "state is nil")
	}
	state.LastSyncedAt = time.Now().UTC()

	if err := os.MkdirAll(st.dir, 0755); err != nil {
		return apperrors.Wrap(apperrors.ErrCodeStateWrite, "create state directory", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return apperrors.Wrap(apperrors.ErrCodeStateWrite, "marshal state", err)
	}
	if err := os.WriteFile(st.Path(), data, 0644); err != nil {
		return apperrors.Wrap(apperrors.ErrCodeStateWrite, "write state file", err)
	}
	return nil
}

// Load reads the persisted state. A missing file is not an error: the
// first run of a project has no state, and (nil, nil) is returned.
func (st *Store) Load() (*SyncState, error) {
	data, err := os.ReadFile(st.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperrors.Wrap(apperrors.ErrCodeStateInvalid, "read state file", err)
	}

	var state SyncState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, apperrors.NewStateInvalidError(st.Path(), err)
	}
	return &state, nil
}

// Exists reports whether a state file is present
func (st *Store) Exists() bool {
	_, err := os.Stat(st.Path())
	return err == nil
}

// Delete removes the state file, ignoring absence
func (st *Store) Delete() error {
	err := os.Remove(st.Path())
	if err != nil && !os.IsNotExist(err) {
		return apperrors.Wrap(apperrors.ErrCodeStateWrite, "delete state file", err)
	}
	return nil
}
