package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specsync/specsync/internal/graph"
	"github.com/specsync/specsync/internal/remote"
	"github.com/specsync/specsync/internal/state"
	"github.com/specsync/specsync/internal/tasks"
)

const sampleDoc = `# Tasks: Demo Feature

## Phase 1: Setup

**Purpose**: Prepare the project skeleton

- [ ] T001 Initialize project scaffolding
- [ ] T002 [P] Configure linters
- [ ] T003 Create build pipeline

## Phase 2: Core (US1)

### Parser (US1)

- [ ] T004 [P] [US1] Implement tokenizer in internal/lex/lex.go
- [ ] T005 [US1] Implement parser
`

func parseSample(t *testing.T, content string) (*tasks.Document, *graph.Graph) {
	t.Helper()
	doc, err := tasks.Parse(content)
	require.NoError(t, err)
	g, err := graph.Build(doc)
	require.NoError(t, err)
	return doc, g
}

func sync(t *testing.T, e *Engine, doc *tasks.Document, g *graph.Graph, prior *state.SyncState) *Result {
	t.Helper()
	plan, err := e.Plan(context.Background(), doc, g, prior)
	require.NoError(t, err)
	result, err := e.Apply(context.Background(), plan)
	require.NoError(t, err)
	return result
}

func TestFirstSyncCreatesEverything(t *testing.T) {
	tracker := remote.NewMemoryTracker()
	e := New(tracker, Options{})
	doc, g := parseSample(t, sampleDoc)

	result := sync(t, e, doc, g, nil)

	assert.False(t, result.UpToDate)
	assert.False(t, result.Partial())
	assert.Equal(t, 2, result.Counts[remote.KindPhase].Created)
	assert.Equal(t, 1, result.Counts[remote.KindGroup].Created)
	assert.Equal(t, 5, result.Counts[remote.KindTask].Created)
	assert.Equal(t, 4, result.Linked)
	assert.Equal(t, 8, tracker.ItemCount())

	// parent linkage: group under phase 2, grouped task under group
	phase2 := tracker.Item(remote.PhaseKey(2))
	group := tracker.Item(remote.GroupKey(2, "Parser"))
	task := tracker.Item(remote.TaskKey("T004"))
	require.NotNil(t, phase2)
	require.NotNil(t, group)
	require.NotNil(t, task)
	assert.Equal(t, phase2.ID, tracker.ParentOf(group.ID))
	assert.Equal(t, group.ID, tracker.ParentOf(task.ID))

	// groupless task parented directly under its phase
	phase1 := tracker.Item(remote.PhaseKey(1))
	direct := tracker.Item(remote.TaskKey("T001"))
	assert.Equal(t, phase1.ID, tracker.ParentOf(direct.ID))

	require.NotNil(t, result.State)
	assert.Equal(t, "completed", result.State.Status)
	assert.Equal(t, result.Hash, result.State.LastHash)
}

func TestSecondSyncIsIdempotent(t *testing.T) {
	tracker := remote.NewMemoryTracker()
	e := New(tracker, Options{})
	doc, g := parseSample(t, sampleDoc)

	sync(t, e, doc, g, nil)
	createsAfterFirst := tracker.Creates

	// no prior state: matching must rediscover everything via lookup
	result := sync(t, e, doc, g, nil)

	assert.Equal(t, createsAfterFirst, tracker.Creates, "second run must create nothing")
	assert.Equal(t, 0, result.Counts[remote.KindTask].Created)
	assert.Equal(t, 5, result.Counts[remote.KindTask].Reused)
	assert.Equal(t, 2, result.Counts[remote.KindPhase].Reused)
	assert.Equal(t, 4, result.Linked, "existing links are idempotent successes")
	assert.False(t, result.Partial())
}

func TestHashShortCircuitPerformsZeroRemoteCalls(t *testing.T) {
	tracker := remote.NewMemoryTracker()
	e := New(tracker, Options{})
	doc, g := parseSample(t, sampleDoc)

	result := sync(t, e, doc, g, nil)
	callsAfterFirst := tracker.TotalCalls()

	prior := result.State
	plan, err := e.Plan(context.Background(), doc, g, prior)
	require.NoError(t, err)
	assert.True(t, plan.UpToDate)

	second, err := e.Apply(context.Background(), plan)
	require.NoError(t, err)
	assert.True(t, second.UpToDate)
	assert.Equal(t, callsAfterFirst, tracker.TotalCalls(), "up-to-date run must touch the tracker zero times")
}

func TestWhitespaceChangesDoNotDefeatShortCircuit(t *testing.T) {
	tracker := remote.NewMemoryTracker()
	e := New(tracker, Options{})
	doc, g := parseSample(t, sampleDoc)
	result := sync(t, e, doc, g, nil)

	reformatted := "# Tasks:   Demo Feature\n\n\n## Phase 1:  Setup\n\n**Purpose**: Prepare the project skeleton\n\n- [ ] T001   Initialize project scaffolding\n- [ ] T002 [P]  Configure linters\n- [ ] T003   Create build pipeline\n\n\n## Phase 2:  Core (US1)\n\n### Parser (US1)\n\n- [ ] T004 [P] [US1]  Implement tokenizer in internal/lex/lex.go\n- [ ] T005 [US1]   Implement parser\n"
	doc2, g2 := parseSample(t, reformatted)

	plan, err := e.Plan(context.Background(), doc2, g2, result.State)
	require.NoError(t, err)
	assert.True(t, plan.UpToDate)
}

func TestPartialSyncStateDoesNotShortCircuit(t *testing.T) {
	tracker := remote.NewMemoryTracker()
	e := New(tracker, Options{})
	doc, g := parseSample(t, sampleDoc)

	hash, err := tasks.Hash(doc)
	require.NoError(t, err)
	prior := state.NewSyncState()
	prior.LastHash = hash
	prior.Status = "partial"

	plan, err := e.Plan(context.Background(), doc, g, prior)
	require.NoError(t, err)
	assert.False(t, plan.UpToDate)
}

// The self-grouping exemption is deliberate: a phase item must never
// carry its own "Phase" field value, or board views grouped by phase
// would nest each phase inside its own bucket.
func TestPhaseNeverReceivesOwnPhaseField(t *testing.T) {
	tracker := remote.NewMemoryTracker()
	e := New(tracker, Options{})
	doc, g := parseSample(t, sampleDoc)

	plan, err := e.Plan(context.Background(), doc, g, nil)
	require.NoError(t, err)
	for _, op := range plan.Entities {
		if op.Kind == remote.KindPhase {
			assert.Empty(t, op.Fields, "phase %s must plan no field writes", op.Key)
		}
	}

	result := sync(t, e, doc, g, nil)
	require.False(t, result.Partial())

	phaseItem := result.State.Items[remote.PhaseKey(1)]
	require.NotEmpty(t, phaseItem)
	_, hasPhaseField := tracker.FieldValueOf(phaseItem, "F-"+remote.FieldPhase)
	assert.False(t, hasPhaseField, "phase item received its own grouping field")

	// tasks and groups do receive it
	taskItem := result.State.Items[remote.TaskKey("T001")]
	_, ok := tracker.FieldValueOf(taskItem, "F-"+remote.FieldPhase)
	assert.True(t, ok)
	groupItem := result.State.Items[remote.GroupKey(2, "Parser")]
	_, ok = tracker.FieldValueOf(groupItem, "F-"+remote.FieldPhase)
	assert.True(t, ok)
}

func TestTaskFieldValues(t *testing.T) {
	tracker := remote.NewMemoryTracker()
	e := New(tracker, Options{})
	doc, g := parseSample(t, sampleDoc)
	result := sync(t, e, doc, g, nil)

	itemID := result.State.Items[remote.TaskKey("T004")]
	require.NotEmpty(t, itemID)

	v, ok := tracker.FieldValueOf(itemID, "F-"+remote.FieldTaskID)
	require.True(t, ok)
	assert.Equal(t, "T004", v.Text)

	v, ok = tracker.FieldValueOf(itemID, "F-"+remote.FieldParallel)
	require.True(t, ok)
	assert.Contains(t, v.OptionID, "Yes")

	v, ok = tracker.FieldValueOf(itemID, "F-"+remote.FieldUserStory)
	require.True(t, ok)
	assert.Contains(t, v.OptionID, "US1")
}

func TestPartialFailureRecovery(t *testing.T) {
	tracker := remote.NewMemoryTracker()
	tracker.FailCreate = map[remote.NaturalKey]error{
		remote.TaskKey("T002"): errors.New("network interrupted"),
	}
	e := New(tracker, Options{})
	doc, g := parseSample(t, sampleDoc)

	first := sync(t, e, doc, g, nil)
	assert.True(t, first.Partial())
	assert.Equal(t, 1, first.Counts[remote.KindTask].Failed)
	assert.Equal(t, 4, first.Counts[remote.KindTask].Created)
	require.Len(t, first.Failures, 1)
	assert.Equal(t, remote.TaskKey("T002"), first.Failures[0].Key)
	assert.Equal(t, 1, first.LinksSkipped, "edges touching the failed task are skipped")
	assert.Equal(t, "partial", first.State.Status)

	// next run: fault cleared, siblings rediscovered, only T002 retried
	tracker.FailCreate = nil
	createsBefore := tracker.Creates
	second := sync(t, e, doc, g, first.State)

	assert.False(t, second.Partial())
	assert.Equal(t, createsBefore+1, tracker.Creates, "only the failed task is created")
	assert.Equal(t, 1, second.Counts[remote.KindTask].Created)
	assert.Equal(t, 4, second.Counts[remote.KindTask].Reused)
	assert.Equal(t, 4, second.Linked)
	assert.Equal(t, "completed", second.State.Status)
}

func TestFailedParentBlocksChildren(t *testing.T) {
	tracker := remote.NewMemoryTracker()
	tracker.FailCreate = map[remote.NaturalKey]error{
		remote.PhaseKey(2): errors.New("boom"),
	}
	e := New(tracker, Options{})
	doc, g := parseSample(t, sampleDoc)

	result := sync(t, e, doc, g, nil)

	assert.True(t, result.Partial())
	assert.Equal(t, 1, result.Counts[remote.KindPhase].Failed)
	assert.Equal(t, 1, result.Counts[remote.KindGroup].Failed, "group under failed phase must not be created")
	assert.Equal(t, 2, result.Counts[remote.KindTask].Failed, "tasks under failed phase must not be created")
	// phase 1 and its tasks are unaffected
	assert.Equal(t, 1, result.Counts[remote.KindPhase].Created)
	assert.Equal(t, 3, result.Counts[remote.KindTask].Created)
}

func TestDivergedContentIsUpdatedWithWarning(t *testing.T) {
	tracker := remote.NewMemoryTracker()
	e := New(tracker, Options{})
	doc, g := parseSample(t, sampleDoc)
	sync(t, e, doc, g, nil)

	doc2, g2 := parseSample(t, strings.Replace(sampleDoc, "Implement parser", "Implement parser with recovery", 1))

	result := sync(t, e, doc2, g2, nil)

	assert.Equal(t, 1, result.Counts[remote.KindTask].Updated)
	assert.Equal(t, 4, result.Counts[remote.KindTask].Reused)
	assert.Equal(t, 0, result.Counts[remote.KindTask].Created)
	require.NotEmpty(t, result.Warnings)
	assert.Equal(t, remote.TaskKey("T005"), result.Warnings[0].Key)

	item := tracker.Item(remote.TaskKey("T005"))
	assert.Contains(t, item.Body, "with recovery")
}

func TestDryRunPlanPerformsNoMutations(t *testing.T) {
	tracker := remote.NewMemoryTracker()
	e := New(tracker, Options{})
	doc, g := parseSample(t, sampleDoc)

	plan, err := e.Plan(context.Background(), doc, g, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, tracker.Creates)
	assert.Equal(t, 0, tracker.ItemCount())
	assert.Equal(t, 0, tracker.Links)
	assert.Len(t, plan.Entities, 8)
	assert.Len(t, plan.Links, 4)
	for _, op := range plan.Entities {
		assert.Equal(t, ActionCreate, op.Action)
	}

	counts := plan.ActionCounts()
	assert.Equal(t, 5, counts[remote.KindTask][ActionCreate])
}

func TestRateLimitIsRetriedAfterPause(t *testing.T) {
	tracker := remote.NewMemoryTracker()
	tracker.RateLimitAfter = 5
	e := New(tracker, Options{})
	doc, g := parseSample(t, sampleDoc)

	result := sync(t, e, doc, g, nil)
	assert.False(t, result.Partial(), "a one-shot rate limit must not fail the run")
	assert.Equal(t, 8, tracker.ItemCount())
}

func TestDependencyLinksMatchGraph(t *testing.T) {
	tracker := remote.NewMemoryTracker()
	e := New(tracker, Options{})
	doc, g := parseSample(t, sampleDoc)
	sync(t, e, doc, g, nil)

	id := func(key remote.NaturalKey) remote.ExternalID {
		item := tracker.Item(key)
		require.NotNil(t, item)
		return item.ID
	}
	assert.True(t, tracker.Linked(id(remote.TaskKey("T002")), id(remote.TaskKey("T001"))))
	assert.True(t, tracker.Linked(id(remote.TaskKey("T003")), id(remote.TaskKey("T001"))))
	assert.True(t, tracker.Linked(id(remote.TaskKey("T004")), id(remote.TaskKey("T003"))))
	assert.True(t, tracker.Linked(id(remote.TaskKey("T005")), id(remote.TaskKey("T003"))))
	assert.False(t, tracker.Linked(id(remote.TaskKey("T003")), id(remote.TaskKey("T002"))),
		"parallel tasks must not serialize each other")
}

func TestTaskTitleTruncatesOnRuneBoundaries(t *testing.T) {
	task := &tasks.Task{ID: "T001", Description: strings.Repeat("🎯", maxTitleLen)}

	title := taskTitle(task)
	assert.True(t, utf8.ValidString(title), "truncation must not split a rune")
	assert.Equal(t, maxTitleLen, len([]rune(title)))
	assert.True(t, strings.HasSuffix(title, "..."))

	short := &tasks.Task{ID: "T002", Description: "fits"}
	assert.Equal(t, "T002: fits", taskTitle(short))
}
