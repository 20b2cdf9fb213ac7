package remote

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	apperrors "github.com/specsync/specsync/internal/errors"
	"github.com/specsync/specsync/internal/log"
)

// markerPattern extracts the natural-key marker embedded in item
// bodies. The marker is how lookups match local entities to remote
// items without storing remote identifiers locally. Group keys carry
// their title verbatim, spaces included, so the capture is lazy up to
// the closing delimiter.
var markerPattern = regexp.MustCompile(`<!-- specsync:key=(.+?) -->`)

// MarkerFor renders the body marker carrying an entity's natural key
func MarkerFor(key NaturalKey) string {
	return fmt.Sprintf("<!-- specsync:key=%s -->", key)
}

// StripMarker removes the natural-key marker from a body, for
// comparing remote content against freshly composed local content
func StripMarker(body string) string {
	return strings.TrimRight(markerPattern.ReplaceAllString(body, ""), " \n")
}

// KeyFromBody extracts the natural key embedded in an item body
func KeyFromBody(body string) (NaturalKey, bool) {
	m := markerPattern.FindStringSubmatch(body)
	if m == nil {
		return "", false
	}
	return NaturalKey(m[1]), true
}

// GitHubConfig configures the GitHub Projects tracker
type GitHubConfig struct {
	Token         string
	Owner         string
	Repo          string
	ProjectNumber int
	// BaseURL overrides the API endpoint, used in tests
	BaseURL string
}

// GitHubTracker implements Tracker against the GitHub Projects v2
// GraphQL API. It maintains a lazily loaded snapshot of project items
// keyed by natural key for lookup-before-create matching.
//
// A tracker is not safe for concurrent use; the engine drives it
// sequentially.
type GitHubTracker struct {
	cfg    GitHubConfig
	client *graphQLClient
	logger *log.Logger

	ownerID ExternalID
	repoID  ExternalID
	project *ProjectInfo
	fields  *Fields

	snapshotLoaded bool
	snapshot       map[NaturalKey]*Item
	keyByID        map[ExternalID]NaturalKey
}

// NewGitHubTracker creates a tracker for the configured owner, repo,
// and project
func NewGitHubTracker(cfg GitHubConfig, logger *log.Logger) *GitHubTracker {
	if logger == nil {
		logger = log.DefaultLogger()
	}
	return &GitHubTracker{
		cfg:      cfg,
		client:   newGraphQLClient(cfg.BaseURL, cfg.Token, logger),
		logger:   logger,
		snapshot: make(map[NaturalKey]*Item),
		keyByID:  make(map[ExternalID]NaturalKey),
	}
}

func (t *GitHubTracker) resolveRepository(ctx context.Context) error {
	if t.repoID != "" {
		return nil
	}
	var resp struct {
		Repository struct {
			ID    string `json:"id"`
			Owner struct {
				ID string `json:"id"`
			} `json:"owner"`
		} `json:"repository"`
	}
	err := t.client.execute(ctx, getRepositoryQuery, map[string]any{
		"owner": t.cfg.Owner,
		"name":  t.cfg.Repo,
	}, &resp)
	if err != nil {
		return err
	}
	if resp.Repository.ID == "" {
		return apperrors.New(apperrors.ErrCodeRemoteNotFound,
			fmt.Sprintf("repository %s/%s not found", t.cfg.Owner, t.cfg.Repo)).
			WithSuggestion("Check the owner and repo in .specsync/config.yaml")
	}
	t.repoID = ExternalID(resp.Repository.ID)
	t.ownerID = ExternalID(resp.Repository.Owner.ID)
	return nil
}

// FindProject resolves the configured project by number without
// creating anything
func (t *GitHubTracker) FindProject(ctx context.Context) (*ProjectInfo, error) {
	if t.project != nil {
		return t.project, nil
	}
	if t.cfg.ProjectNumber <= 0 {
		return nil, ErrNotFound
	}

	var resp struct {
		User struct {
			ProjectV2 *ProjectInfo `json:"projectV2"`
		} `json:"user"`
	}
	err := t.client.execute(ctx, findProjectQuery, map[string]any{
		"owner":  t.cfg.Owner,
		"number": t.cfg.ProjectNumber,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.User.ProjectV2 == nil {
		return nil, ErrNotFound
	}
	t.project = resp.User.ProjectV2
	t.logger.Debug("resolved project", "number", t.project.Number, "title", t.project.Title)
	return t.project, nil
}

// EnsureProject finds the configured project by number, or creates one
// with the given title when no number is configured or the lookup comes
// up empty
func (t *GitHubTracker) EnsureProject(ctx context.Context, title, description string) (*ProjectInfo, error) {
	if err := t.resolveRepository(ctx); err != nil {
		return nil, err
	}

	switch _, err := t.FindProject(ctx); {
	case err == nil:
		return t.project, nil
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	var resp struct {
		CreateProjectV2 struct {
			ProjectV2 ProjectInfo `json:"projectV2"`
		} `json:"createProjectV2"`
	}
	err := t.client.execute(ctx, createProjectMutation, map[string]any{
		"input": map[string]any{
			"ownerId": string(t.ownerID),
			"title":   title,
		},
	}, &resp)
	if err != nil {
		return nil, err
	}
	t.project = &resp.CreateProjectV2.ProjectV2
	t.logger.Info("created project", "number", t.project.Number, "url", t.project.URL)
	return t.project, nil
}

type fieldNode struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	DataType string `json:"dataType"`
	Options  []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"options"`
}

// EnsureFields reuses any custom field that already exists and creates
// the rest. Single-select option sets come from the document: phase
// titles and user-story labels.
func (t *GitHubTracker) EnsureFields(ctx context.Context, phases, userStories []string) (*Fields, error) {
	if t.fields != nil {
		return t.fields, nil
	}
	if t.project == nil {
		return nil, apperrors.New(apperrors.ErrCodeRemoteAPI, "EnsureFields called before EnsureProject")
	}

	var resp struct {
		Node struct {
			Fields struct {
				Nodes []fieldNode `json:"nodes"`
			} `json:"fields"`
		} `json:"node"`
	}
	err := t.client.execute(ctx, getProjectFieldsQuery, map[string]any{
		"projectId": string(t.project.ID),
	}, &resp)
	if err != nil {
		return nil, err
	}

	fields := &Fields{
		IDs:     make(map[string]string),
		Options: make(map[string]map[string]string),
	}
	for _, n := range resp.Node.Fields.Nodes {
		if n.ID == "" {
			continue
		}
		fields.IDs[n.Name] = n.ID
		if len(n.Options) > 0 {
			opts := make(map[string]string, len(n.Options))
			for _, o := range n.Options {
				opts[o.Name] = o.ID
			}
			fields.Options[n.Name] = opts
		}
	}

	want := []struct {
		name     string
		dataType string
		options  []string
	}{
		{FieldTaskID, "TEXT", nil},
		{FieldPhase, "SINGLE_SELECT", phases},
		{FieldUserStory, "SINGLE_SELECT", userStories},
		{FieldParallel, "SINGLE_SELECT", []string{"Yes", "No"}},
		{FieldPriority, "SINGLE_SELECT", []string{"P0", "P1", "P2", "P3"}},
	}
	for _, w := range want {
		if _, ok := fields.IDs[w.name]; ok {
			continue
		}
		if w.dataType == "SINGLE_SELECT" && len(w.options) == 0 {
			continue
		}
		created, err := t.createField(ctx, w.name, w.dataType, w.options)
		if err != nil {
			return nil, err
		}
		fields.IDs[created.Name] = created.ID
		if len(created.Options) > 0 {
			opts := make(map[string]string, len(created.Options))
			for _, o := range created.Options {
				opts[o.Name] = o.ID
			}
			fields.Options[created.Name] = opts
		}
		t.logger.Debug("created field", "name", created.Name, "type", w.dataType)
	}

	t.fields = fields
	return fields, nil
}

func (t *GitHubTracker) createField(ctx context.Context, name, dataType string, options []string) (*fieldNode, error) {
	input := map[string]any{
		"projectId": string(t.project.ID),
		"name":      name,
		"dataType":  dataType,
	}
	if dataType == "SINGLE_SELECT" {
		selectOptions := make([]map[string]any, len(options))
		for i, o := range options {
			selectOptions[i] = map[string]any{"name": o, "color": "GRAY", "description": ""}
		}
		input["singleSelectOptions"] = selectOptions
	}

	var resp struct {
		CreateProjectV2Field struct {
			ProjectV2Field fieldNode `json:"projectV2Field"`
		} `json:"createProjectV2Field"`
	}
	err := t.client.execute(ctx, createFieldMutation, map[string]any{"input": input}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp.CreateProjectV2Field.ProjectV2Field, nil
}

// loadSnapshot pages through every project item once and indexes the
// ones carrying a natural-key marker. Items created by hand have no
// marker and are invisible to lookups.
func (t *GitHubTracker) loadSnapshot(ctx context.Context) error {
	if t.snapshotLoaded {
		return nil
	}
	if t.project == nil {
		return apperrors.New(apperrors.ErrCodeRemoteAPI, "lookup called before EnsureProject")
	}

	var cursor *string
	total := 0
	for {
		var resp struct {
			Node struct {
				Items struct {
					PageInfo struct {
						HasNextPage bool    `json:"hasNextPage"`
						EndCursor   *string `json:"endCursor"`
					} `json:"pageInfo"`
					Nodes []struct {
						ID      string `json:"id"`
						Content struct {
							ID    string `json:"id"`
							Title string `json:"title"`
							Body  string `json:"body"`
						} `json:"content"`
					} `json:"nodes"`
				} `json:"items"`
			} `json:"node"`
		}
		vars := map[string]any{"projectId": string(t.project.ID)}
		if cursor != nil {
			vars["cursor"] = *cursor
		}
		if err := t.client.execute(ctx, getProjectItemsQuery, vars, &resp); err != nil {
			return err
		}

		for _, n := range resp.Node.Items.Nodes {
			total++
			key, ok := KeyFromBody(n.Content.Body)
			if !ok {
				continue
			}
			item := &Item{
				ID:     ExternalID(n.Content.ID),
				ItemID: ExternalID(n.ID),
				Title:  n.Content.Title,
				Body:   n.Content.Body,
			}
			t.snapshot[key] = item
			t.keyByID[item.ID] = key
		}

		if !resp.Node.Items.PageInfo.HasNextPage {
			break
		}
		cursor = resp.Node.Items.PageInfo.EndCursor
	}

	t.snapshotLoaded = true
	t.logger.Debug("loaded project snapshot", "items", total, "matched", len(t.snapshot))
	return nil
}

// LookupByNaturalKey resolves a local entity to its remote counterpart
// via the body marker snapshot
func (t *GitHubTracker) LookupByNaturalKey(ctx context.Context, kind Kind, key NaturalKey) (*Item, error) {
	if err := t.loadSnapshot(ctx); err != nil {
		return nil, err
	}
	item, ok := t.snapshot[key]
	if !ok {
		return nil, ErrNotFound
	}
	return item, nil
}

// CreateEntity creates an issue carrying the natural-key marker in its
// body, parented under entity.Parent when set, and pre-registered into
// the project
func (t *GitHubTracker) CreateEntity(ctx context.Context, entity Entity) (*Item, error) {
	if err := t.resolveRepository(ctx); err != nil {
		return nil, err
	}

	body := withMarker(entity.Body, entity.Key)
	input := map[string]any{
		"repositoryId": string(t.repoID),
		"title":        entity.Title,
		"body":         body,
	}
	if entity.Parent != "" {
		input["parentIssueId"] = string(entity.Parent)
	}
	if t.project != nil {
		input["projectV2Ids"] = []string{string(t.project.ID)}
	}

	var resp struct {
		CreateIssue struct {
			Issue struct {
				ID    string `json:"id"`
				Title string `json:"title"`
			} `json:"issue"`
		} `json:"createIssue"`
	}
	err := t.client.execute(ctx, createIssueMutation, map[string]any{"input": input}, &resp)
	if err != nil {
		return nil, err
	}

	item := &Item{
		ID:    ExternalID(resp.CreateIssue.Issue.ID),
		Title: resp.CreateIssue.Issue.Title,
		Body:  body,
	}
	t.snapshot[entity.Key] = item
	t.keyByID[item.ID] = entity.Key
	return item, nil
}

// UpdateEntityBody rewrites an item body, re-embedding the natural-key
// marker so the item stays matchable
func (t *GitHubTracker) UpdateEntityBody(ctx context.Context, id ExternalID, body string) error {
	if key, ok := t.keyByID[id]; ok {
		body = withMarker(body, key)
	}
	var resp struct {
		UpdateIssue struct {
			Issue struct {
				ID string `json:"id"`
			} `json:"issue"`
		} `json:"updateIssue"`
	}
	err := t.client.execute(ctx, updateIssueMutation, map[string]any{
		"input": map[string]any{
			"id":   string(id),
			"body": body,
		},
	}, &resp)
	if err != nil {
		return err
	}
	if key, ok := t.keyByID[id]; ok {
		if item, ok := t.snapshot[key]; ok {
			item.Body = body
		}
	}
	return nil
}

// RegisterInProject adds an item to the project. The remote API returns
// the existing project item when the content is already registered, so
// registration is idempotent.
func (t *GitHubTracker) RegisterInProject(ctx context.Context, id ExternalID) (ExternalID, error) {
	if t.project == nil {
		return "", apperrors.New(apperrors.ErrCodeRemoteAPI, "RegisterInProject called before EnsureProject")
	}
	var resp struct {
		AddProjectV2ItemByID struct {
			Item struct {
				ID string `json:"id"`
			} `json:"item"`
		} `json:"addProjectV2ItemById"`
	}
	err := t.client.execute(ctx, addProjectItemMutation, map[string]any{
		"input": map[string]any{
			"projectId": string(t.project.ID),
			"contentId": string(id),
		},
	}, &resp)
	if err != nil {
		return "", err
	}
	itemID := ExternalID(resp.AddProjectV2ItemByID.Item.ID)
	if key, ok := t.keyByID[id]; ok {
		if item, ok := t.snapshot[key]; ok {
			item.ItemID = itemID
		}
	}
	return itemID, nil
}

// SetFieldValue writes a text or single-select value on a project item
func (t *GitHubTracker) SetFieldValue(ctx context.Context, itemID ExternalID, fieldID string, value FieldValue) error {
	if t.project == nil {
		return apperrors.New(apperrors.ErrCodeRemoteAPI, "SetFieldValue called before EnsureProject")
	}
	var fieldValue map[string]any
	if value.OptionID != "" {
		fieldValue = map[string]any{"singleSelectOptionId": value.OptionID}
	} else {
		fieldValue = map[string]any{"text": value.Text}
	}
	return t.client.execute(ctx, updateFieldValueMutation, map[string]any{
		"input": map[string]any{
			"projectId": string(t.project.ID),
			"itemId":    string(itemID),
			"fieldId":   fieldID,
			"value":     fieldValue,
		},
	}, nil)
}

// LinkDependency records a blocked-by relationship between two issues.
// An existing relationship is reported as ErrAlreadyLinked.
func (t *GitHubTracker) LinkDependency(ctx context.Context, blocked, blocker ExternalID) error {
	err := t.client.execute(ctx, addBlockedByMutation, map[string]any{
		"input": map[string]any{
			"issueId":         string(blocked),
			"blockingIssueId": string(blocker),
		},
	}, nil)
	if apperrors.IsRemoteConflict(err) {
		return ErrAlreadyLinked
	}
	return err
}

// withMarker ensures the natural-key marker appears exactly once at the
// end of a body
func withMarker(body string, key NaturalKey) string {
	body = markerPattern.ReplaceAllString(body, "")
	body = strings.TrimRight(body, " \n")
	if body == "" {
		return MarkerFor(key)
	}
	return body + "\n\n" + MarkerFor(key)
}
