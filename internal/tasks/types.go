package tasks

// Document represents a fully parsed tasks document.
// Phase order is significant: it defines the default sequential
// dependency chain across the whole document.
type Document struct {
	Title     string  `json:"title"`
	InputPath string  `json:"input_path,omitempty"`
	Branch    string  `json:"branch,omitempty"`
	Phases    []Phase `json:"phases"`
}

// Phase represents a numbered top-level grouping (## heading)
type Phase struct {
	Number          int         `json:"number"`
	Title           string      `json:"title"`
	Purpose         string      `json:"purpose,omitempty"`
	Goal            string      `json:"goal,omitempty"`
	Checkpoint      string      `json:"checkpoint,omitempty"`
	IndependentTest string      `json:"independent_test,omitempty"`
	Priority        string      `json:"priority,omitempty"`   // P0, P1, P2
	UserStory       string      `json:"user_story,omitempty"` // US1, US2, ...
	Primary         bool        `json:"primary,omitempty"`    // carries the MVP marker
	Groups          []TaskGroup `json:"groups,omitempty"`
	DirectTasks     []Task      `json:"direct_tasks,omitempty"`
}

// TaskGroup represents a named subdivision of a phase (### heading).
// A group has no identity beyond (phase number, title): equal titles in
// different phases are distinct entities.
type TaskGroup struct {
	Title       string `json:"title"`
	UserStory   string `json:"user_story,omitempty"`
	PhaseNumber int    `json:"phase_number"`
	Tasks       []Task `json:"tasks,omitempty"`
}

// Task represents an atomic work item (checklist line).
// The identifier is unique across the whole document, not per phase.
type Task struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	Completed   bool     `json:"completed"`
	Parallel    bool     `json:"parallel"`
	UserStory   string   `json:"user_story,omitempty"`
	FilePaths   []string `json:"file_paths,omitempty"`
	PhaseNumber int      `json:"phase_number"`
	GroupTitle  string   `json:"group_title,omitempty"` // empty for tasks declared directly under the phase
	Line        int      `json:"-"`
}

// AllTasks returns every task in the phase: direct tasks first, then
// group tasks in group order
func (p *Phase) AllTasks() []Task {
	tasks := make([]Task, 0, len(p.DirectTasks))
	tasks = append(tasks, p.DirectTasks...)
	for _, g := range p.Groups {
		tasks = append(tasks, g.Tasks...)
	}
	return tasks
}

// AllTasks returns every task across all phases in document order
func (d *Document) AllTasks() []Task {
	var tasks []Task
	for i := range d.Phases {
		tasks = append(tasks, d.Phases[i].AllTasks()...)
	}
	return tasks
}

// TaskCount returns the total number of tasks
func (d *Document) TaskCount() int {
	return len(d.AllTasks())
}

// CompletedCount returns the number of completed tasks
func (d *Document) CompletedCount() int {
	n := 0
	for _, t := range d.AllTasks() {
		if t.Completed {
			n++
		}
	}
	return n
}
