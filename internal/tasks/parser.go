package tasks

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/specsync/specsync/internal/errors"
)

// Line-level grammar. A construct's metadata ends at the next recognized
// construct; blank lines and unrecognized prose are ignored.
var (
	titlePattern      = regexp.MustCompile(`^# Tasks: (.+)$`)
	inputPattern      = regexp.MustCompile(`^\*\*Input\*\*:\s*(.+)$`)
	branchPattern     = regexp.MustCompile("^\\*\\*Branch\\*\\*:\\s*`?(.+?)`?$")
	phasePattern      = regexp.MustCompile(`^## Phase (\d+): (.+)$`)
	groupPattern      = regexp.MustCompile(`^### (.+?)(?:\s*\((US\d+)\))?$`)
	taskPattern       = regexp.MustCompile(`^- \[([ Xx])\] (T\d{3,4})\s*(\[P\])?\s*(\[US\d+\])?\s*(.+)$`)
	checklistPattern  = regexp.MustCompile(`^- \[.?\]`)
	purposePattern    = regexp.MustCompile(`^\*\*Purpose\*\*:?\s*(.+)$`)
	goalPattern       = regexp.MustCompile(`^\*\*Goal\*\*:?\s*(.+)$`)
	checkpointPattern = regexp.MustCompile(`^\*\*Checkpoint\*\*:?\s*(.+)$`)
	indepTestPattern  = regexp.MustCompile(`^\*\*Independent Test\*\*:?\s*(.+)$`)

	// Phase heading decorations
	priorityPattern  = regexp.MustCompile(`(?:Priority:\s*)?(P\d)`)
	userStoryPattern = regexp.MustCompile(`(?:User Story\s+(\d+)|(US\d+))`)
	phasePrefix      = regexp.MustCompile(`^Phase \d+:\s*`)

	// File path tokens like "internal/tasks/parser.go" or "docs/setup.md"
	filePathPattern = regexp.MustCompile(`\b[\w-]+(?:/[\w/.-]+)+\.\w+`)
)

// primaryMarker flags a phase as the primary deliverable
const primaryMarker = "🎯"

// ParseError describes a malformed construct at a specific line.
// Parsing is atomic: when a ParseError is returned no Document is.
type ParseError struct {
	Line      int
	Construct string
	Detail    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: invalid %s: %s", e.Line, e.Construct, e.Detail)
}

// fail wraps a ParseError in the coded taxonomy so callers classify
// it (and map it to the parse exit code) without knowing this type
func (e *ParseError) fail() error {
	code := errors.ErrCodeParseTaskLine
	switch e.Construct {
	case "phase heading":
		code = errors.ErrCodeParsePhaseHeading
	case "task group":
		code = errors.ErrCodeParseGroupHeading
	}
	return errors.Wrap(code, "tasks document failed to parse", e)
}

// Parse turns raw document text into a Document tree.
// It fails atomically with a structured error identifying the offending
// line and the expected construct.
func Parse(content string) (*Document, error) {
	lines := strings.Split(content, "\n")

	doc := &Document{Title: "Untitled"}

	var currentPhase *Phase
	var currentGroup *TaskGroup
	seen := map[string]int{} // task ID -> first line number

	flushGroup := func() {
		if currentGroup != nil && currentPhase != nil {
			currentPhase.Groups = append(currentPhase.Groups, *currentGroup)
		}
		currentGroup = nil
	}
	flushPhase := func() {
		flushGroup()
		if currentPhase != nil {
			doc.Phases = append(doc.Phases, *currentPhase)
		}
		currentPhase = nil
	}

	for i, raw := range lines {
		lineNo := i + 1
		line := strings.TrimSpace(raw)

		if line == "" {
			continue
		}

		if m := titlePattern.FindStringSubmatch(line); m != nil {
			doc.Title = strings.TrimSpace(m[1])
			continue
		}

		if m := inputPattern.FindStringSubmatch(line); m != nil {
			doc.InputPath = strings.TrimSpace(m[1])
			continue
		}

		if m := branchPattern.FindStringSubmatch(line); m != nil {
			doc.Branch = strings.TrimSpace(m[1])
			continue
		}

		if m := phasePattern.FindStringSubmatch(line); m != nil {
			flushPhase()

			number, err := strconv.Atoi(m[1])
			if err != nil {
				return nil, (&ParseError{Line: lineNo, Construct: "phase heading", Detail: fmt.Sprintf("bad phase number %q", m[1])}).fail()
			}

			p := parsePhaseHeading(m[2])
			p.Number = number
			currentPhase = &p
			continue
		}

		// Task groups are ### headings, but not #### or deeper
		if strings.HasPrefix(line, "### ") && !strings.HasPrefix(line, "#### ") {
			if currentPhase == nil {
				return nil, (&ParseError{Line: lineNo, Construct: "task group", Detail: "group heading appears before any phase heading"}).fail()
			}
			m := groupPattern.FindStringSubmatch(line)
			if m == nil {
				return nil, (&ParseError{Line: lineNo, Construct: "task group", Detail: "empty group title"}).fail()
			}
			flushGroup()
			currentGroup = &TaskGroup{
				Title:       strings.TrimSpace(m[1]),
				UserStory:   m[2],
				PhaseNumber: currentPhase.Number,
			}
			continue
		}

		// Phase metadata attaches only between the phase heading and its
		// first group
		if currentPhase != nil && currentGroup == nil {
			if m := purposePattern.FindStringSubmatch(line); m != nil {
				currentPhase.Purpose = strings.TrimSpace(m[1])
				continue
			}
			if m := goalPattern.FindStringSubmatch(line); m != nil {
				currentPhase.Goal = strings.TrimSpace(m[1])
				continue
			}
			if m := checkpointPattern.FindStringSubmatch(line); m != nil {
				currentPhase.Checkpoint = strings.TrimSpace(m[1])
				continue
			}
			if m := indepTestPattern.FindStringSubmatch(line); m != nil {
				currentPhase.IndependentTest = strings.TrimSpace(m[1])
				continue
			}
		}

		if checklistPattern.MatchString(line) {
			m := taskPattern.FindStringSubmatch(line)
			if m == nil {
				return nil, (&ParseError{Line: lineNo, Construct: "task", Detail: "checklist line must carry a task identifier (T001 style)"}).fail()
			}

			taskID := m[2]
			if currentPhase == nil {
				return nil, errors.NewOrphanTaskError(lineNo, taskID)
			}
			if first, dup := seen[taskID]; dup {
				return nil, errors.NewDuplicateTaskError(lineNo, taskID, first)
			}
			seen[taskID] = lineNo

			desc := strings.TrimSpace(m[5])
			desc = strings.TrimSpace(strings.TrimPrefix(desc, ":"))

			task := Task{
				ID:          taskID,
				Description: desc,
				Completed:   strings.EqualFold(m[1], "x"),
				Parallel:    m[3] != "",
				UserStory:   strings.Trim(m[4], "[]"),
				FilePaths:   filePathPattern.FindAllString(desc, -1),
				PhaseNumber: currentPhase.Number,
				Line:        lineNo,
			}

			if currentGroup != nil {
				task.GroupTitle = currentGroup.Title
				currentGroup.Tasks = append(currentGroup.Tasks, task)
			} else {
				currentPhase.DirectTasks = append(currentPhase.DirectTasks, task)
			}
			continue
		}

		// Unrecognized prose is ignored
	}

	flushPhase()

	return doc, nil
}

// parsePhaseHeading extracts title, priority, user story, and the
// primary-deliverable flag from a phase heading like
// "User Story 1 - Generate Connectors (Priority: P1) 🎯 MVP"
func parsePhaseHeading(heading string) Phase {
	p := Phase{Primary: strings.Contains(heading, primaryMarker)}
	title := strings.TrimSpace(heading)

	if m := priorityPattern.FindStringSubmatch(heading); m != nil {
		p.Priority = m[1]
		title = priorityPattern.ReplaceAllString(title, "")
	}

	if m := userStoryPattern.FindStringSubmatch(heading); m != nil {
		if m[1] != "" {
			p.UserStory = "US" + m[1]
		} else {
			p.UserStory = m[2]
			title = strings.ReplaceAll(title, m[2], "")
		}
	}

	title = strings.ReplaceAll(title, primaryMarker, "")
	title = strings.ReplaceAll(title, "MVP", "")
	title = strings.ReplaceAll(title, "(Priority:", "")
	title = strings.ReplaceAll(title, ")", "")
	title = strings.ReplaceAll(title, "(", "")
	title = phasePrefix.ReplaceAllString(strings.TrimSpace(title), "")
	p.Title = strings.TrimSpace(title)

	return p
}
