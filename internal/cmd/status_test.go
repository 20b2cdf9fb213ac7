package cmd

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specsync/specsync/internal/config"
	apperrors "github.com/specsync/specsync/internal/errors"
	"github.com/specsync/specsync/internal/state"
	"github.com/specsync/specsync/internal/tasks"
)

func setupProject(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	require.NoError(t, os.WriteFile("tasks.md", []byte(testDoc), 0644))
	require.NoError(t, config.Save(".", &config.Config{Owner: "alice", Repo: "demo"}))
}

func TestStatusNeverSynced(t *testing.T) {
	setupProject(t)
	c, buf := newTestCmd()

	require.NoError(t, runStatus(c, nil))
	assert.Contains(t, buf.String(), "never been synced")
}

func TestStatusInSync(t *testing.T) {
	setupProject(t)

	doc, err := tasks.Parse(testDoc)
	require.NoError(t, err)
	hash, err := tasks.Hash(doc)
	require.NoError(t, err)

	st := state.NewSyncState()
	st.LastHash = hash
	st.Status = "completed"
	require.NoError(t, state.NewStore(config.Dir).Save(st))

	c, buf := newTestCmd()
	require.NoError(t, runStatus(c, nil))
	assert.Contains(t, buf.String(), "in sync")
}

func TestStatusOutOfDate(t *testing.T) {
	setupProject(t)

	st := state.NewSyncState()
	st.LastHash = "stale"
	st.Status = "completed"
	require.NoError(t, state.NewStore(config.Dir).Save(st))

	c, buf := newTestCmd()
	require.NoError(t, runStatus(c, nil))
	assert.Contains(t, buf.String(), "changed since the last sync")
}

func TestStatusPartialSync(t *testing.T) {
	setupProject(t)

	st := state.NewSyncState()
	st.LastHash = "anything"
	st.Status = "partial"
	require.NoError(t, state.NewStore(config.Dir).Save(st))

	c, buf := newTestCmd()
	require.NoError(t, runStatus(c, nil))
	assert.Contains(t, buf.String(), "partial")
}

func TestStatusWithoutConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	c, _ := newTestCmd()

	err := runStatus(c, nil)
	var syncErr *apperrors.SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, apperrors.ErrCodeConfigNotFound, syncErr.Code)
}
