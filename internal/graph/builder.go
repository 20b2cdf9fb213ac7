package graph

import (
	"fmt"

	apperrors "github.com/specsync/specsync/internal/errors"
	"github.com/specsync/specsync/internal/tasks"
)

// Build produces the dependency graph for a document.
//
// The construction is a single fold over the flattened, phase-ordered
// task sequence carrying an anchor accumulator:
//
//   - a non-parallel task depends on the current anchor and becomes the
//     new anchor
//   - a parallel task depends on the current anchor but never becomes it
//     and never serializes against sibling parallel tasks
//   - the anchor carries across phase and group boundaries, so empty
//     phases and groups are transparent to dependency propagation
//
// Every edge points strictly backward in the traversal, so the result
// cannot contain a cycle. Validate re-checks that invariant.
func Build(doc *tasks.Document) (*Graph, error) {
	g := newGraph()

	var anchor string // empty until the first non-parallel task

	for _, task := range doc.AllTasks() {
		g.order = append(g.order, task.ID)

		if anchor != "" {
			g.addEdge(task.ID, anchor)
		}
		if !task.Parallel {
			anchor = task.ID
		}
	}

	if err := g.validate(); err != nil {
		return nil, err
	}

	return g, nil
}

// validate asserts the backward-edge invariant: a task may only depend
// on tasks that precede it in document order.
func (g *Graph) validate() error {
	position := make(map[string]int, len(g.order))
	for i, id := range g.order {
		position[id] = i
	}

	for taskID, blockers := range g.blockers {
		taskPos, ok := position[taskID]
		if !ok {
			return apperrors.New(apperrors.ErrCodeGraphUnknownTask,
				fmt.Sprintf("edge references unknown task %s", taskID))
		}
		for _, blockerID := range blockers {
			blockerPos, ok := position[blockerID]
			if !ok {
				return apperrors.New(apperrors.ErrCodeGraphUnknownTask,
					fmt.Sprintf("task %s depends on unknown task %s", taskID, blockerID))
			}
			if blockerPos >= taskPos {
				return apperrors.New(apperrors.ErrCodeGraphCyclicDep,
					fmt.Sprintf("task %s has forward or circular dependency on %s", taskID, blockerID))
			}
		}
	}

	return nil
}
