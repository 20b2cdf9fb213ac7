package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/specsync/specsync/internal/graph"
	"github.com/specsync/specsync/internal/remote"
	"github.com/specsync/specsync/internal/state"
	"github.com/specsync/specsync/internal/tasks"
)

// Action is the planned outcome for one entity
type Action string

const (
	// ActionCreate means no remote counterpart exists
	ActionCreate Action = "create"
	// ActionReuse means a matching counterpart exists and is current
	ActionReuse Action = "reuse"
	// ActionUpdate means a counterpart exists but its body diverged
	ActionUpdate Action = "update"
)

// FieldOp is a planned custom-field write. Option names are resolved
// to option identifiers at apply time, once field IDs are known.
type FieldOp struct {
	Field  string
	Text   string
	Option string
}

// EntityOp is one planned entity resolution. Parent linkage is by
// natural key; the apply step resolves keys to external identifiers in
// plan order, so a parent always resolves before its children.
type EntityOp struct {
	Kind      remote.Kind
	Key       remote.NaturalKey
	Title     string
	Body      string
	ParentKey remote.NaturalKey
	Action    Action
	Existing  *remote.Item
	Fields    []FieldOp
}

// LinkOp is one planned blocked-by relationship between two tasks
type LinkOp struct {
	Blocked remote.NaturalKey
	Blocker remote.NaturalKey
}

// Plan is the full operation plan for one sync. Dry runs render it;
// real runs apply it. Both come from the same matching logic.
type Plan struct {
	UpToDate     bool
	Hash         string
	ProjectTitle string
	// Project is nil when the project does not exist remotely yet
	Project *remote.ProjectInfo

	PhaseOptions []string
	StoryOptions []string

	Entities []EntityOp
	Links    []LinkOp
	Warnings []ConsistencyWarning
}

// TotalSteps returns the number of apply steps, for progress display
func (p *Plan) TotalSteps() int {
	return len(p.Entities) + len(p.Links)
}

// ActionCounts tallies planned actions per entity kind
func (p *Plan) ActionCounts() map[remote.Kind]map[Action]int {
	out := make(map[remote.Kind]map[Action]int)
	for _, op := range p.Entities {
		if out[op.Kind] == nil {
			out[op.Kind] = make(map[Action]int)
		}
		out[op.Kind][op.Action]++
	}
	return out
}

// Plan computes the operation plan for a document without issuing any
// mutating call. When the prior state's hash matches the document's
// content hash, the plan short-circuits with zero remote calls.
func (e *Engine) Plan(ctx context.Context, doc *tasks.Document, g *graph.Graph, prior *state.SyncState) (*Plan, error) {
	hash, err := tasks.Hash(doc)
	if err != nil {
		return nil, err
	}

	if prior != nil && prior.Status == "completed" && prior.LastHash == hash {
		e.logger.Info("document unchanged since last sync", "hash", hash[:12])
		return &Plan{UpToDate: true, Hash: hash, ProjectTitle: projectTitle(doc)}, nil
	}

	plan := &Plan{
		Hash:         hash,
		ProjectTitle: projectTitle(doc),
		PhaseOptions: phaseOptions(doc),
		StoryOptions: storyOptions(doc),
	}

	err = e.call(ctx, func() error {
		info, err := e.tracker.FindProject(ctx)
		if err != nil {
			return err
		}
		plan.Project = info
		return nil
	})
	if err != nil && !errors.Is(err, remote.ErrNotFound) {
		return nil, err
	}

	for i := range doc.Phases {
		p := &doc.Phases[i]
		plan.Entities = append(plan.Entities, EntityOp{
			Kind:  remote.KindPhase,
			Key:   remote.PhaseKey(p.Number),
			Title: phaseLabel(p),
			Body:  phaseBody(p),
			// Phases carry no custom fields: a phase item must never
			// receive its own "Phase" field value, or it would nest
			// inside its own grouping bucket in board views
		})
	}
	for i := range doc.Phases {
		p := &doc.Phases[i]
		for j := range p.Groups {
			grp := &p.Groups[j]
			plan.Entities = append(plan.Entities, EntityOp{
				Kind:      remote.KindGroup,
				Key:       remote.GroupKey(p.Number, grp.Title),
				Title:     grp.Title,
				Body:      groupBody(p, grp),
				ParentKey: remote.PhaseKey(p.Number),
				Fields:    groupFields(p, grp),
			})
		}
	}
	for i := range doc.Phases {
		p := &doc.Phases[i]
		for _, t := range p.AllTasks() {
			parent := remote.PhaseKey(p.Number)
			if t.GroupTitle != "" {
				parent = remote.GroupKey(p.Number, t.GroupTitle)
			}
			plan.Entities = append(plan.Entities, EntityOp{
				Kind:      remote.KindTask,
				Key:       remote.TaskKey(t.ID),
				Title:     taskTitle(&t),
				Body:      taskBody(&t),
				ParentKey: parent,
				Fields:    taskFields(p, &t),
			})
		}
	}

	if err := e.match(ctx, plan); err != nil {
		return nil, err
	}

	for _, edge := range g.Edges() {
		plan.Links = append(plan.Links, LinkOp{
			Blocked: remote.TaskKey(edge.Task),
			Blocker: remote.TaskKey(edge.Blocker),
		})
	}

	return plan, nil
}

// match resolves each planned entity against remote state. Lookup
// always precedes creation; this is the idempotency contract.
func (e *Engine) match(ctx context.Context, plan *Plan) error {
	if plan.Project == nil {
		// no project, nothing can exist remotely
		for i := range plan.Entities {
			plan.Entities[i].Action = ActionCreate
		}
		return nil
	}

	for i := range plan.Entities {
		op := &plan.Entities[i]

		var item *remote.Item
		err := e.call(ctx, func() error {
			found, err := e.tracker.LookupByNaturalKey(ctx, op.Kind, op.Key)
			if err != nil {
				return err
			}
			item = found
			return nil
		})
		switch {
		case errors.Is(err, remote.ErrNotFound):
			op.Action = ActionCreate
		case err != nil:
			return err
		case remote.StripMarker(item.Body) == op.Body:
			op.Action = ActionReuse
			op.Existing = item
		default:
			op.Action = ActionUpdate
			op.Existing = item
			plan.Warnings = append(plan.Warnings, ConsistencyWarning{
				Key:    op.Key,
				Detail: "remote content diverged from document, will update",
			})
			e.logger.Warn("remote content diverged", "key", op.Key)
		}
	}
	return nil
}

func projectTitle(doc *tasks.Document) string {
	if doc.Title == "" {
		return "Tasks"
	}
	return "Tasks: " + doc.Title
}

func phaseLabel(p *tasks.Phase) string {
	return fmt.Sprintf("Phase %d: %s", p.Number, p.Title)
}

func phaseOptions(doc *tasks.Document) []string {
	options := make([]string, len(doc.Phases))
	for i := range doc.Phases {
		options[i] = phaseLabel(&doc.Phases[i])
	}
	return options
}

func storyOptions(doc *tasks.Document) []string {
	seen := make(map[string]bool)
	for i := range doc.Phases {
		p := &doc.Phases[i]
		if p.UserStory != "" {
			seen[p.UserStory] = true
		}
		for j := range p.Groups {
			if p.Groups[j].UserStory != "" {
				seen[p.Groups[j].UserStory] = true
			}
		}
		for _, t := range p.AllTasks() {
			if t.UserStory != "" {
				seen[t.UserStory] = true
			}
		}
	}
	options := make([]string, 0, len(seen))
	for s := range seen {
		options = append(options, s)
	}
	sort.Strings(options)
	return options
}

func phaseBody(p *tasks.Phase) string {
	var b strings.Builder
	if p.Purpose != "" {
		fmt.Fprintf(&b, "**Purpose**: %s\n\n", p.Purpose)
	}
	if p.Goal != "" {
		fmt.Fprintf(&b, "**Goal**: %s\n\n", p.Goal)
	}
	if p.IndependentTest != "" {
		fmt.Fprintf(&b, "**Independent Test**: %s\n\n", p.IndependentTest)
	}
	if p.Checkpoint != "" {
		fmt.Fprintf(&b, "**Checkpoint**: %s\n\n", p.Checkpoint)
	}
	if p.Primary {
		b.WriteString("🎯 Primary deliverable (MVP)\n\n")
	}
	fmt.Fprintf(&b, "Tasks: %d", len(p.AllTasks()))
	return strings.TrimRight(b.String(), "\n")
}

func groupBody(p *tasks.Phase, g *tasks.TaskGroup) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Part of %s\n\n", phaseLabel(p))
	if g.UserStory != "" {
		fmt.Fprintf(&b, "**User Story**: %s\n\n", g.UserStory)
	}
	fmt.Fprintf(&b, "Tasks: %d", len(g.Tasks))
	return strings.TrimRight(b.String(), "\n")
}

const maxTitleLen = 80

func taskTitle(t *tasks.Task) string {
	title := t.ID + ": " + t.Description
	if runes := []rune(title); len(runes) > maxTitleLen {
		title = string(runes[:maxTitleLen-3]) + "..."
	}
	return title
}

func taskBody(t *tasks.Task) string {
	var b strings.Builder
	b.WriteString(t.Description)
	b.WriteString("\n")
	if t.Parallel {
		b.WriteString("\nParallel-eligible: can run alongside sibling tasks.\n")
	}
	if len(t.FilePaths) > 0 {
		b.WriteString("\n**Files**:\n")
		for _, p := range t.FilePaths {
			fmt.Fprintf(&b, "- `%s`\n", p)
		}
	}
	if t.Completed {
		b.WriteString("\nStatus: completed in the source document.\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func groupFields(p *tasks.Phase, g *tasks.TaskGroup) []FieldOp {
	fields := []FieldOp{
		{Field: remote.FieldPhase, Option: phaseLabel(p)},
	}
	if g.UserStory != "" {
		fields = append(fields, FieldOp{Field: remote.FieldUserStory, Option: g.UserStory})
	}
	return fields
}

func taskFields(p *tasks.Phase, t *tasks.Task) []FieldOp {
	parallel := "No"
	if t.Parallel {
		parallel = "Yes"
	}
	fields := []FieldOp{
		{Field: remote.FieldTaskID, Text: t.ID},
		{Field: remote.FieldPhase, Option: phaseLabel(p)},
		{Field: remote.FieldParallel, Option: parallel},
	}
	if t.UserStory != "" {
		fields = append(fields, FieldOp{Field: remote.FieldUserStory, Option: t.UserStory})
	}
	if p.Priority != "" {
		fields = append(fields, FieldOp{Field: remote.FieldPriority, Option: p.Priority})
	}
	return fields
}
