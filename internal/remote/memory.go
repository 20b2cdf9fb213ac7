package remote

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryTracker is an in-memory Tracker used by engine tests. It
// records call counts and supports injecting faults on specific
// natural keys and one-shot rate limits.
type MemoryTracker struct {
	mu sync.Mutex

	project *ProjectInfo
	fields  *Fields

	items       map[NaturalKey]*Item
	parents     map[ExternalID]ExternalID
	registered  map[ExternalID]ExternalID
	fieldValues map[ExternalID]map[string]FieldValue
	links       map[string]bool

	nextID int

	// Lookups, Creates, Updates, Registrations, FieldWrites, and Links
	// count calls that reached the fake, including failed ones
	Lookups       int
	Creates       int
	Updates       int
	Registrations int
	FieldWrites   int
	Links         int

	// FailCreate makes CreateEntity fail for the listed keys
	FailCreate map[NaturalKey]error
	// FailLink makes LinkDependency fail for "blocked->blocker" pairs
	FailLink map[string]error
	// RateLimitAfter injects a one-shot rate limit once this many total
	// calls have been made; zero disables injection
	RateLimitAfter int
	rateLimited    bool

	totalCalls int
}

// NewMemoryTracker builds an empty fake
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{
		items:       make(map[NaturalKey]*Item),
		parents:     make(map[ExternalID]ExternalID),
		registered:  make(map[ExternalID]ExternalID),
		fieldValues: make(map[ExternalID]map[string]FieldValue),
		links:       make(map[string]bool),
	}
}

func (m *MemoryTracker) maybeRateLimit() error {
	m.totalCalls++
	if m.RateLimitAfter > 0 && !m.rateLimited && m.totalCalls > m.RateLimitAfter {
		m.rateLimited = true
		return &RateLimitError{RetryAfter: time.Millisecond}
	}
	return nil
}

func (m *MemoryTracker) FindProject(ctx context.Context) (*ProjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.maybeRateLimit(); err != nil {
		return nil, err
	}
	if m.project == nil {
		return nil, ErrNotFound
	}
	return m.project, nil
}

func (m *MemoryTracker) EnsureProject(ctx context.Context, title, description string) (*ProjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.maybeRateLimit(); err != nil {
		return nil, err
	}
	if m.project == nil {
		m.project = &ProjectInfo{
			ID:     "PROJ-1",
			Number: 1,
			Title:  title,
			URL:    "https://example.test/projects/1",
		}
	}
	return m.project, nil
}

func (m *MemoryTracker) EnsureFields(ctx context.Context, phases, userStories []string) (*Fields, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.maybeRateLimit(); err != nil {
		return nil, err
	}
	if m.fields != nil {
		return m.fields, nil
	}
	fields := &Fields{
		IDs:     make(map[string]string),
		Options: make(map[string]map[string]string),
	}
	addSelect := func(name string, options []string) {
		fields.IDs[name] = "F-" + name
		opts := make(map[string]string, len(options))
		for _, o := range options {
			opts[o] = "OPT-" + name + "-" + o
		}
		fields.Options[name] = opts
	}
	fields.IDs[FieldTaskID] = "F-" + FieldTaskID
	addSelect(FieldPhase, phases)
	addSelect(FieldUserStory, userStories)
	addSelect(FieldParallel, []string{"Yes", "No"})
	addSelect(FieldPriority, []string{"P0", "P1", "P2", "P3"})
	m.fields = fields
	return fields, nil
}

func (m *MemoryTracker) LookupByNaturalKey(ctx context.Context, kind Kind, key NaturalKey) (*Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Lookups++
	if err := m.maybeRateLimit(); err != nil {
		return nil, err
	}
	item, ok := m.items[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *item
	return &cp, nil
}

func (m *MemoryTracker) CreateEntity(ctx context.Context, entity Entity) (*Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Creates++
	if err := m.maybeRateLimit(); err != nil {
		return nil, err
	}
	if err := m.FailCreate[entity.Key]; err != nil {
		return nil, err
	}
	if _, exists := m.items[entity.Key]; exists {
		return nil, fmt.Errorf("memory: duplicate create for %s", entity.Key)
	}
	m.nextID++
	item := &Item{
		ID:    ExternalID(fmt.Sprintf("ID-%03d", m.nextID)),
		Title: entity.Title,
		Body:  withMarker(entity.Body, entity.Key),
	}
	m.items[entity.Key] = item
	if entity.Parent != "" {
		m.parents[item.ID] = entity.Parent
	}
	cp := *item
	return &cp, nil
}

func (m *MemoryTracker) UpdateEntityBody(ctx context.Context, id ExternalID, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Updates++
	if err := m.maybeRateLimit(); err != nil {
		return err
	}
	for key, item := range m.items {
		if item.ID == id {
			item.Body = withMarker(body, key)
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemoryTracker) RegisterInProject(ctx context.Context, id ExternalID) (ExternalID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Registrations++
	if err := m.maybeRateLimit(); err != nil {
		return "", err
	}
	if itemID, ok := m.registered[id]; ok {
		return itemID, nil
	}
	itemID := ExternalID("ITEM-" + string(id))
	m.registered[id] = itemID
	for _, item := range m.items {
		if item.ID == id {
			item.ItemID = itemID
		}
	}
	return itemID, nil
}

func (m *MemoryTracker) SetFieldValue(ctx context.Context, itemID ExternalID, fieldID string, value FieldValue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FieldWrites++
	if err := m.maybeRateLimit(); err != nil {
		return err
	}
	if m.fieldValues[itemID] == nil {
		m.fieldValues[itemID] = make(map[string]FieldValue)
	}
	m.fieldValues[itemID][fieldID] = value
	return nil
}

func (m *MemoryTracker) LinkDependency(ctx context.Context, blocked, blocker ExternalID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Links++
	if err := m.maybeRateLimit(); err != nil {
		return err
	}
	pair := string(blocked) + "->" + string(blocker)
	if err := m.FailLink[pair]; err != nil {
		return err
	}
	if m.links[pair] {
		return ErrAlreadyLinked
	}
	m.links[pair] = true
	return nil
}

// Item returns the stored item for a key, or nil
func (m *MemoryTracker) Item(key NaturalKey) *Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[key]
	if !ok {
		return nil
	}
	cp := *item
	return &cp
}

// ParentOf returns the parent content ID recorded at creation
func (m *MemoryTracker) ParentOf(id ExternalID) ExternalID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.parents[id]
}

// FieldValueOf returns a written field value for an item
func (m *MemoryTracker) FieldValueOf(itemID ExternalID, fieldID string) (FieldValue, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.fieldValues[itemID][fieldID]
	return v, ok
}

// Linked reports whether a blocked-by relationship was recorded
func (m *MemoryTracker) Linked(blocked, blocker ExternalID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.links[string(blocked)+"->"+string(blocker)]
}

// ItemCount returns the number of stored items
func (m *MemoryTracker) ItemCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// TotalCalls returns the number of tracker calls made
func (m *MemoryTracker) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalCalls
}

var _ Tracker = (*MemoryTracker)(nil)
