package engine

import (
	"context"
	"errors"
	"fmt"

	apperrors "github.com/specsync/specsync/internal/errors"
	"github.com/specsync/specsync/internal/remote"
	"github.com/specsync/specsync/internal/state"
)

// Apply executes a plan: project and field bootstrap, then entities in
// parent-before-child order, then dependency links. Failures are
// scoped per entity: one failed entity blocks only its own field
// writes, its structural children, and the links that reference it.
func (e *Engine) Apply(ctx context.Context, plan *Plan) (*Result, error) {
	result := &Result{
		Hash:     plan.Hash,
		Warnings: plan.Warnings,
	}
	if plan.UpToDate {
		result.UpToDate = true
		return result, nil
	}

	var project *remote.ProjectInfo
	err := e.call(ctx, func() error {
		info, err := e.tracker.EnsureProject(ctx, plan.ProjectTitle, "")
		if err != nil {
			return err
		}
		project = info
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.Project = project

	var fields *remote.Fields
	err = e.call(ctx, func() error {
		f, err := e.tracker.EnsureFields(ctx, plan.PhaseOptions, plan.StoryOptions)
		if err != nil {
			return err
		}
		fields = f
		return nil
	})
	if err != nil {
		return nil, err
	}

	runState := state.NewSyncState()
	runState.LastHash = plan.Hash
	runState.Project = project
	runState.Fields = fields

	ids := make(map[remote.NaturalKey]remote.ExternalID)
	failed := make(map[remote.NaturalKey]error)

	for i := range plan.Entities {
		op := &plan.Entities[i]
		counts := result.counts(op.Kind)

		if op.ParentKey != "" {
			if _, ok := ids[op.ParentKey]; !ok {
				err := fmt.Errorf("parent %s did not converge", op.ParentKey)
				if cause, ok := failed[op.ParentKey]; ok {
					err = fmt.Errorf("parent %s did not converge: %w", op.ParentKey, cause)
				}
				e.fail(result, op.Key, err)
				failed[op.Key] = err
				counts.Failed++
				e.step("skip %s", op.Key)
				continue
			}
		}

		id, itemID, err := e.applyEntity(ctx, op, ids)
		e.step("%s %s", op.Action, op.Key)
		if err != nil {
			e.fail(result, op.Key, err)
			failed[op.Key] = err
			counts.Failed++
			continue
		}
		ids[op.Key] = id
		runState.Record(op.Key, id, itemID)

		switch op.Action {
		case ActionCreate:
			counts.Created++
		case ActionUpdate:
			counts.Updated++
		default:
			counts.Reused++
		}

		if err := e.applyFields(ctx, op, itemID, fields); err != nil {
			e.fail(result, op.Key, err)
			failed[op.Key] = err
			counts.Failed++
		}
	}

	for _, link := range plan.Links {
		blockedID, okBlocked := ids[link.Blocked]
		blockerID, okBlocker := ids[link.Blocker]
		e.step("link %s ← %s", link.Blocked, link.Blocker)
		if !okBlocked || !okBlocker {
			result.LinksSkipped++
			continue
		}
		err := e.call(ctx, func() error {
			return e.tracker.LinkDependency(ctx, blockedID, blockerID)
		})
		switch {
		case err == nil, errors.Is(err, remote.ErrAlreadyLinked), apperrors.IsRemoteConflict(err):
			result.Linked++
		default:
			result.LinksFailed++
			result.Failures = append(result.Failures, Failure{
				Key: link.Blocked,
				Err: fmt.Errorf("link to %s: %w", link.Blocker, err),
			})
			e.logger.WithError(err).Error("dependency link failed",
				"blocked", link.Blocked, "blocker", link.Blocker)
		}
	}

	if result.Partial() {
		runState.Status = "partial"
	} else {
		runState.Status = "completed"
	}
	result.State = runState
	return result, nil
}

// applyEntity resolves one entity to a remote identifier, creating or
// updating as planned, and registers it into the project
func (e *Engine) applyEntity(ctx context.Context, op *EntityOp, ids map[remote.NaturalKey]remote.ExternalID) (remote.ExternalID, remote.ExternalID, error) {
	var id, itemID remote.ExternalID

	switch op.Action {
	case ActionCreate:
		var item *remote.Item
		err := e.call(ctx, func() error {
			created, err := e.tracker.CreateEntity(ctx, remote.Entity{
				Kind:   op.Kind,
				Key:    op.Key,
				Title:  op.Title,
				Body:   op.Body,
				Parent: ids[op.ParentKey],
			})
			if err != nil {
				return err
			}
			item = created
			return nil
		})
		if err != nil {
			return "", "", err
		}
		id = item.ID
		itemID = item.ItemID
		e.logger.Info("created", "kind", op.Kind, "key", op.Key)

	case ActionUpdate:
		id = op.Existing.ID
		itemID = op.Existing.ItemID
		err := e.call(ctx, func() error {
			return e.tracker.UpdateEntityBody(ctx, id, op.Body)
		})
		if err != nil {
			return "", "", err
		}
		e.logger.Info("updated", "kind", op.Kind, "key", op.Key)

	default:
		id = op.Existing.ID
		itemID = op.Existing.ItemID
		e.logger.Debug("reused", "kind", op.Kind, "key", op.Key)
	}

	if itemID == "" {
		err := e.call(ctx, func() error {
			registered, err := e.tracker.RegisterInProject(ctx, id)
			if err != nil {
				return err
			}
			itemID = registered
			return nil
		})
		if err != nil {
			return "", "", err
		}
	}
	return id, itemID, nil
}

// applyFields writes the planned custom-field values on a project item
func (e *Engine) applyFields(ctx context.Context, op *EntityOp, itemID remote.ExternalID, fields *remote.Fields) error {
	for _, f := range op.Fields {
		fieldID, ok := fields.IDs[f.Field]
		if !ok {
			e.logger.Warn("unknown field, skipping", "field", f.Field, "key", op.Key)
			continue
		}
		value := remote.FieldValue{Text: f.Text}
		if f.Option != "" {
			optionID, ok := fields.OptionID(f.Field, f.Option)
			if !ok {
				e.logger.Warn("unknown field option, skipping",
					"field", f.Field, "option", f.Option, "key", op.Key)
				continue
			}
			value = remote.FieldValue{OptionID: optionID}
		}
		err := e.call(ctx, func() error {
			return e.tracker.SetFieldValue(ctx, itemID, fieldID, value)
		})
		if err != nil {
			return fmt.Errorf("set field %q: %w", f.Field, err)
		}
	}
	return nil
}

func (e *Engine) fail(result *Result, key remote.NaturalKey, err error) {
	result.Failures = append(result.Failures, Failure{Key: key, Err: err})
	e.logger.WithError(err).Error("entity did not converge", "key", key)
}
