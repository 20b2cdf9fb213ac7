package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/specsync/specsync/internal/errors"
)

// fakeAPI routes GraphQL calls by operation name so individual tests
// can script responses
type fakeAPI struct {
	t        *testing.T
	handlers map[string]func(vars map[string]any) any
	calls    []string
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	api := &fakeAPI{t: t, handlers: make(map[string]func(map[string]any) any)}
	srv := httptest.NewServer(http.HandlerFunc(api.handle))
	t.Cleanup(srv.Close)
	return api, srv
}

func (a *fakeAPI) on(op string, fn func(vars map[string]any) any) {
	a.handlers[op] = fn
}

func (a *fakeAPI) handle(w http.ResponseWriter, r *http.Request) {
	var req graphQLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	for op, fn := range a.handlers {
		if strings.Contains(req.Query, op) {
			a.calls = append(a.calls, op)
			data := fn(req.Variables)
			w.Header().Set("X-RateLimit-Remaining", "4999")
			json.NewEncoder(w).Encode(map[string]any{"data": data})
			return
		}
	}
	a.t.Errorf("unscripted operation: %s", req.Query)
	http.Error(w, "unscripted", http.StatusInternalServerError)
}

func repoResponse() any {
	return map[string]any{
		"repository": map[string]any{
			"id":    "REPO-1",
			"name":  "demo",
			"owner": map[string]any{"id": "OWNER-1", "login": "alice"},
		},
	}
}

func newTestTracker(srv *httptest.Server, projectNumber int) *GitHubTracker {
	return NewGitHubTracker(GitHubConfig{
		Token:         "test-token",
		Owner:         "alice",
		Repo:          "demo",
		ProjectNumber: projectNumber,
		BaseURL:       srv.URL,
	}, nil)
}

func TestMarkerRoundTrip(t *testing.T) {
	body := withMarker("Implement the parser", TaskKey("T001"))
	key, ok := KeyFromBody(body)
	require.True(t, ok)
	assert.Equal(t, TaskKey("T001"), key)

	// re-embedding must not duplicate the marker
	again := withMarker(body, TaskKey("T001"))
	assert.Equal(t, 1, strings.Count(again, "specsync:key="))
}

func TestMarkerRoundTripWithSpacedGroupTitle(t *testing.T) {
	key := GroupKey(2, "Core Generation")
	body := withMarker("Part of Phase 2", key)

	got, ok := KeyFromBody(body)
	require.True(t, ok, "marker with a spaced group title must be extractable")
	assert.Equal(t, key, got)

	assert.Equal(t, "Part of Phase 2", StripMarker(body))
}

func TestKeyFromBodyWithoutMarker(t *testing.T) {
	_, ok := KeyFromBody("a hand-written issue body")
	assert.False(t, ok)
}

func TestEnsureProjectReusesExisting(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.on("GetRepository", func(map[string]any) any { return repoResponse() })
	api.on("FindProject", func(vars map[string]any) any {
		assert.Equal(t, float64(7), vars["number"])
		return map[string]any{
			"user": map[string]any{
				"projectV2": map[string]any{
					"id": "PROJ-7", "number": 7, "title": "Tasks", "url": "https://example.test/7",
				},
			},
		}
	})

	tracker := newTestTracker(srv, 7)
	info, err := tracker.EnsureProject(context.Background(), "ignored", "")
	require.NoError(t, err)
	assert.Equal(t, ExternalID("PROJ-7"), info.ID)
	assert.NotContains(t, api.calls, "CreateProject")
}

func TestEnsureProjectCreatesWhenMissing(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.on("GetRepository", func(map[string]any) any { return repoResponse() })
	api.on("FindProject", func(map[string]any) any {
		return map[string]any{"user": map[string]any{"projectV2": nil}}
	})
	api.on("CreateProject", func(vars map[string]any) any {
		input := vars["input"].(map[string]any)
		assert.Equal(t, "OWNER-1", input["ownerId"])
		return map[string]any{
			"createProjectV2": map[string]any{
				"projectV2": map[string]any{"id": "PROJ-NEW", "number": 3, "title": input["title"], "url": "u"},
			},
		}
	})

	tracker := newTestTracker(srv, 9)
	info, err := tracker.EnsureProject(context.Background(), "Tasks: Demo", "")
	require.NoError(t, err)
	assert.Equal(t, ExternalID("PROJ-NEW"), info.ID)
	assert.Equal(t, "Tasks: Demo", info.Title)
}

func TestEnsureFieldsReusesAndCreates(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.on("GetRepository", func(map[string]any) any { return repoResponse() })
	api.on("FindProject", func(map[string]any) any {
		return map[string]any{"user": map[string]any{"projectV2": map[string]any{"id": "PROJ-7", "number": 7}}}
	})
	api.on("GetProjectFields", func(map[string]any) any {
		return map[string]any{
			"node": map[string]any{
				"fields": map[string]any{
					"nodes": []any{
						map[string]any{"id": "F-EXISTING", "name": "Task ID", "dataType": "TEXT"},
					},
				},
			},
		}
	})
	api.on("CreateField", func(vars map[string]any) any {
		input := vars["input"].(map[string]any)
		name := input["name"].(string)
		assert.NotEqual(t, FieldTaskID, name, "existing field must be reused, not recreated")
		var options []any
		if raw, ok := input["singleSelectOptions"].([]any); ok {
			for i, o := range raw {
				options = append(options, map[string]any{
					"id":   name + "-opt-" + string(rune('a'+i)),
					"name": o.(map[string]any)["name"],
				})
			}
		}
		return map[string]any{
			"createProjectV2Field": map[string]any{
				"projectV2Field": map[string]any{"id": "F-" + name, "name": name, "options": options},
			},
		}
	})

	tracker := newTestTracker(srv, 7)
	_, err := tracker.EnsureProject(context.Background(), "", "")
	require.NoError(t, err)

	fields, err := tracker.EnsureFields(context.Background(),
		[]string{"Phase 1: Setup"}, []string{"US1"})
	require.NoError(t, err)

	assert.Equal(t, "F-EXISTING", fields.IDs[FieldTaskID])
	assert.Contains(t, fields.IDs, FieldPhase)
	assert.Contains(t, fields.IDs, FieldParallel)

	id, ok := fields.OptionID(FieldParallel, "Yes")
	require.True(t, ok)
	assert.NotEmpty(t, id)
}

func TestLookupFindsMarkedItemAcrossPages(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.on("GetRepository", func(map[string]any) any { return repoResponse() })
	api.on("FindProject", func(map[string]any) any {
		return map[string]any{"user": map[string]any{"projectV2": map[string]any{"id": "PROJ-7", "number": 7}}}
	})
	api.on("GetProjectItems", func(vars map[string]any) any {
		page := func(hasNext bool, cursor string, nodes ...any) any {
			return map[string]any{
				"node": map[string]any{
					"items": map[string]any{
						"pageInfo": map[string]any{"hasNextPage": hasNext, "endCursor": cursor},
						"nodes":    nodes,
					},
				},
			}
		}
		if vars["cursor"] == nil {
			return page(true, "c1", map[string]any{
				"id": "ITEM-1",
				"content": map[string]any{
					"id": "ISSUE-1", "title": "manual issue", "body": "no marker here",
				},
			})
		}
		return page(false, "",
			map[string]any{
				"id": "ITEM-2",
				"content": map[string]any{
					"id": "ISSUE-2", "title": "T001 parse file",
					"body": withMarker("parse file", TaskKey("T001")),
				},
			},
			map[string]any{
				"id": "ITEM-3",
				"content": map[string]any{
					"id": "ISSUE-3", "title": "Core Generation",
					"body": withMarker("Part of Phase 2", GroupKey(2, "Core Generation")),
				},
			})
	})

	tracker := newTestTracker(srv, 7)
	_, err := tracker.EnsureProject(context.Background(), "", "")
	require.NoError(t, err)

	item, err := tracker.LookupByNaturalKey(context.Background(), KindTask, TaskKey("T001"))
	require.NoError(t, err)
	assert.Equal(t, ExternalID("ISSUE-2"), item.ID)
	assert.Equal(t, ExternalID("ITEM-2"), item.ItemID)

	group, err := tracker.LookupByNaturalKey(context.Background(), KindGroup, GroupKey(2, "Core Generation"))
	require.NoError(t, err, "spaced group titles must survive the marker round trip")
	assert.Equal(t, ExternalID("ISSUE-3"), group.ID)

	_, err = tracker.LookupByNaturalKey(context.Background(), KindTask, TaskKey("T999"))
	assert.ErrorIs(t, err, ErrNotFound)

	// unmarked items stay invisible
	_, err = tracker.LookupByNaturalKey(context.Background(), KindTask, NaturalKey("manual issue"))
	assert.ErrorIs(t, err, ErrNotFound)

	// the snapshot loads once
	pages := 0
	for _, c := range api.calls {
		if c == "GetProjectItems" {
			pages++
		}
	}
	assert.Equal(t, 2, pages)
}

func TestCreateEntityEmbedsMarkerAndParent(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.on("GetRepository", func(map[string]any) any { return repoResponse() })
	var gotInput map[string]any
	api.on("CreateIssue", func(vars map[string]any) any {
		gotInput = vars["input"].(map[string]any)
		return map[string]any{
			"createIssue": map[string]any{
				"issue": map[string]any{"id": "ISSUE-9", "number": 9, "title": gotInput["title"]},
			},
		}
	})

	tracker := newTestTracker(srv, 0)
	item, err := tracker.CreateEntity(context.Background(), Entity{
		Kind:   KindTask,
		Key:    TaskKey("T002"),
		Title:  "T002 wire config",
		Body:   "wire config",
		Parent: "ISSUE-1",
	})
	require.NoError(t, err)
	assert.Equal(t, ExternalID("ISSUE-9"), item.ID)
	assert.Equal(t, "ISSUE-1", gotInput["parentIssueId"])
	assert.Contains(t, gotInput["body"].(string), string(MarkerFor(TaskKey("T002"))))

	// the fresh item is immediately matchable
	found, err := tracker.LookupByNaturalKey(context.Background(), KindTask, TaskKey("T002"))
	require.NoError(t, err)
	assert.Equal(t, item.ID, found.ID)
}

func TestLinkDependencyConflictIsAlreadyLinked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"errors": []map[string]any{{"message": "Issue is already blocked by the given issue"}},
		})
	}))
	defer srv.Close()

	tracker := newTestTracker(srv, 0)
	err := tracker.LinkDependency(context.Background(), "ISSUE-2", "ISSUE-1")
	assert.ErrorIs(t, err, ErrAlreadyLinked)
}

func TestUnauthorizedIsAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	tracker := newTestTracker(srv, 0)
	err := tracker.LinkDependency(context.Background(), "a", "b")
	assert.True(t, apperrors.IsRemoteFatal(err))
}

func TestRateLimitCarriesRetryAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "42")
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	tracker := newTestTracker(srv, 0)
	err := tracker.LinkDependency(context.Background(), "a", "b")
	retryAfter, ok := IsRateLimited(err)
	require.True(t, ok)
	assert.Equal(t, "42s", retryAfter.String())
}

func TestServerErrorsAreRetried(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"addBlockedBy": map[string]any{}},
		})
	}))
	defer srv.Close()

	tracker := newTestTracker(srv, 0)
	err := tracker.LinkDependency(context.Background(), "a", "b")
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestAuthTokenSentAsBearer(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]any{"data": repoResponse()})
	}))
	defer srv.Close()

	tracker := newTestTracker(srv, 0)
	require.NoError(t, tracker.resolveRepository(context.Background()))
	assert.Equal(t, "Bearer test-token", auth)
}
