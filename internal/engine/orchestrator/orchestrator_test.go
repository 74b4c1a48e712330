package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restforge/restforge/internal/engine/contract"
	"github.com/restforge/restforge/internal/engine/descriptor"
	"github.com/restforge/restforge/internal/engine/hooks"
	"github.com/restforge/restforge/internal/storage"
)

// memStore is an in-memory storage.Store. It supports equality conditions,
// limit/offset, and nothing else; enough for lifecycle tests.
type memStore struct {
	mu          sync.Mutex
	descriptors map[string]*storage.Descriptor
	data        map[string][]storage.Record
	nextID      int
	events      *[]string
}

func newMemStore(events *[]string, descriptors ...*storage.Descriptor) *memStore {
	byName := make(map[string]*storage.Descriptor, len(descriptors))
	for _, d := range descriptors {
		byName[d.Name] = d
	}
	return &memStore{
		descriptors: byName,
		data:        make(map[string][]storage.Record),
		events:      events,
	}
}

func (s *memStore) record(event string) {
	if s.events != nil {
		*s.events = append(*s.events, event)
	}
}

func (s *memStore) Descriptor(entity string) (*storage.Descriptor, bool) {
	d, ok := s.descriptors[entity]
	return d, ok
}

func (s *memStore) matches(rec storage.Record, q *storage.Query) bool {
	for _, cond := range q.Conditions() {
		if cond.Operator != storage.OpEqual || rec[cond.Field] != cond.Value {
			return false
		}
	}
	return true
}

func (s *memStore) Get(ctx context.Context, q *storage.Query) (storage.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.data[q.Entity()] {
		if s.matches(rec, q) {
			return rec.Clone(), nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *memStore) Select(ctx context.Context, q *storage.Query) ([]storage.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.Record
	for _, rec := range s.data[q.Entity()] {
		if s.matches(rec, q) {
			out = append(out, rec.Clone())
		}
	}
	if off := q.OffsetValue(); off != nil && *off < len(out) {
		out = out[*off:]
	}
	if lim := q.LimitValue(); lim != nil && *lim < len(out) {
		out = out[:*lim]
	}
	return out, nil
}

func (s *memStore) Insert(ctx context.Context, entity string, values storage.Record) (storage.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("persist")
	rec := values.Clone()
	if _, ok := rec["id"]; !ok {
		s.nextID++
		rec["id"] = fmt.Sprintf("%s-%d", entity, s.nextID)
	}
	s.data[entity] = append(s.data[entity], rec)
	return rec.Clone(), nil
}

func (s *memStore) Update(ctx context.Context, entity string, pk interface{}, values storage.Record) (storage.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, rec := range s.data[entity] {
		if rec["id"] == pk {
			merged := rec.Clone()
			merged.Merge(values)
			s.data[entity][i] = merged
			return merged.Clone(), nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *memStore) Delete(ctx context.Context, entity string, pk interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, rec := range s.data[entity] {
		if rec["id"] == pk {
			s.data[entity] = append(s.data[entity][:i], s.data[entity][i+1:]...)
			return nil
		}
	}
	return storage.ErrNotFound
}

func postStorage() *storage.Descriptor {
	return &storage.Descriptor{
		Name:  "Post",
		Table: "posts",
		Fields: []storage.FieldDef{
			{Name: "id", Type: storage.TypeUUID, Primary: true, Auto: true},
			{Name: "title", Type: storage.TypeString},
			{Name: "body", Type: storage.TypeText, Nullable: true},
		},
		Relations: []storage.RelationDef{
			{Name: "author", Kind: storage.BelongsTo, Target: "Author", ForeignKey: "author_id"},
		},
	}
}

func authorStorage() *storage.Descriptor {
	return &storage.Descriptor{
		Name:  "Author",
		Table: "authors",
		Fields: []storage.FieldDef{
			{Name: "id", Type: storage.TypeUUID, Primary: true, Auto: true},
			{Name: "name", Type: storage.TypeString},
		},
	}
}

// lifecycleBehavior records hook firing order alongside store events.
type lifecycleBehavior struct{ events *[]string }

func (b lifecycleBehavior) OnCreateBeforeSave(ctx *hooks.Context, record storage.Record) error {
	*b.events = append(*b.events, "on_create_before_save")
	return nil
}

func (b lifecycleBehavior) BeforeSave(ctx *hooks.Context, record storage.Record) error {
	*b.events = append(*b.events, "before_save")
	return nil
}

func (b lifecycleBehavior) OnCreateAfterSave(ctx *hooks.Context, record storage.Record) error {
	*b.events = append(*b.events, "on_create_after_save")
	return nil
}

func (b lifecycleBehavior) AfterSave(ctx *hooks.Context, record storage.Record) error {
	*b.events = append(*b.events, "after_save")
	return nil
}

func (b lifecycleBehavior) CustomActions(ctx *hooks.Context, customs map[string]interface{}, record storage.Record) error {
	*b.events = append(*b.events, "custom_actions")
	return nil
}

func (b lifecycleBehavior) PostCreate(ctx *hooks.Context, record storage.Record) error {
	*b.events = append(*b.events, "post_create")
	return nil
}

func (b lifecycleBehavior) OnDelete(ctx *hooks.Context, record storage.Record) error {
	*b.events = append(*b.events, "on_delete")
	return nil
}

type fixture struct {
	orch   *Orchestrator
	store  *memStore
	post   *descriptor.EntityDescriptor
	author *descriptor.EntityDescriptor
	events []string
}

func setup(t *testing.T, postDescriptor *descriptor.EntityDescriptor) *fixture {
	t.Helper()
	f := &fixture{}

	if postDescriptor == nil {
		postDescriptor = &descriptor.EntityDescriptor{Name: "Post", Storage: postStorage()}
	}
	f.post = postDescriptor
	f.author = &descriptor.EntityDescriptor{Name: "Author", Storage: authorStorage()}

	reg := descriptor.NewRegistry()
	require.NoError(t, reg.Register(f.post))
	require.NoError(t, reg.Register(f.author))

	f.store = newMemStore(&f.events, postStorage(), authorStorage())
	f.orch = New(f.store, reg, contract.NewGenerator(reg), nil)
	return f
}

func (f *fixture) ctx(entity string) *hooks.Context {
	return hooks.NewContext(context.Background(), nil, f.store, entity)
}

func (f *fixture) seedAuthor(t *testing.T, id, name string) {
	t.Helper()
	_, err := f.store.Insert(context.Background(), "Author", storage.Record{"id": id, "name": name})
	require.NoError(t, err)
	f.events = f.events[:0]
}

func TestCreateLifecycleOrder(t *testing.T) {
	events := []string{}
	post := &descriptor.EntityDescriptor{
		Name:     "Post",
		Storage:  postStorage(),
		Behavior: lifecycleBehavior{events: &events},
	}
	f := setup(t, post)
	f.store.events = &events
	f.seedAuthor(t, "a-1", "Dara")
	events = events[:0]

	output, err := f.orch.Contract(f.post, descriptor.OpRead)
	require.NoError(t, err)

	_, err = f.orch.Create(f.ctx("Post"), f.post, storage.Record{
		"title":  "Hello",
		"author": "a-1",
	}, output)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"on_create_before_save",
		"before_save",
		"persist",
		"on_create_after_save",
		"after_save",
		"custom_actions",
		"post_create",
	}, events)
}

func TestCreateRoundTrip(t *testing.T) {
	f := setup(t, nil)
	f.seedAuthor(t, "a-1", "Dara")

	output, err := f.orch.Contract(f.post, descriptor.OpRead)
	require.NoError(t, err)

	out, err := f.orch.Create(f.ctx("Post"), f.post, storage.Record{
		"title":  "Hello",
		"author": "a-1",
	}, output)
	require.NoError(t, err)

	assert.Equal(t, "Hello", out["title"])

	// The related author was resolved during input normalization and
	// reattached for output without a second fetch.
	nested, ok := out["author"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Dara", nested["name"])
	assert.Equal(t, "a-1", out["author_id"])

	// The stored row carries the foreign key, not the nested record.
	stored, err := f.store.Get(context.Background(), storage.NewQuery("Post").Where("title", "Hello"))
	require.NoError(t, err)
	assert.Equal(t, "a-1", stored["author_id"])
	_, hasNested := stored["author"]
	assert.False(t, hasNested)
}

func TestCreateUnknownRelationTarget(t *testing.T) {
	f := setup(t, nil)

	output, err := f.orch.Contract(f.post, descriptor.OpRead)
	require.NoError(t, err)

	_, err = f.orch.Create(f.ctx("Post"), f.post, storage.Record{
		"title":  "Hello",
		"author": "ghost",
	}, output)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestUpdate(t *testing.T) {
	f := setup(t, nil)
	f.seedAuthor(t, "a-1", "Dara")

	output, err := f.orch.Contract(f.post, descriptor.OpRead)
	require.NoError(t, err)

	created, err := f.orch.Create(f.ctx("Post"), f.post, storage.Record{
		"title":  "Hello",
		"author": "a-1",
	}, output)
	require.NoError(t, err)
	pk := created["id"]

	out, err := f.orch.Update(f.ctx("Post"), f.post, pk, storage.Record{"title": "Updated"}, output)
	require.NoError(t, err)
	assert.Equal(t, "Updated", out["title"])

	t.Run("updating a missing record is not found", func(t *testing.T) {
		_, err := f.orch.Update(f.ctx("Post"), f.post, "ghost", storage.Record{"title": "x"}, output)
		assert.True(t, IsNotFound(err))
	})
}

func TestBeforeSaveMutationsPersist(t *testing.T) {
	post := &descriptor.EntityDescriptor{
		Name:    "Post",
		Storage: postStorage(),
		Hooks: hooks.Set{
			BeforeSave: func(ctx *hooks.Context, record storage.Record) error {
				record["body"] = "stamped"
				return nil
			},
		},
	}
	f := setup(t, post)
	f.seedAuthor(t, "a-1", "Dara")

	output, err := f.orch.Contract(f.post, descriptor.OpRead)
	require.NoError(t, err)

	created, err := f.orch.Create(f.ctx("Post"), f.post, storage.Record{
		"title":  "Hello",
		"author": "a-1",
	}, output)
	require.NoError(t, err)

	stored, err := f.store.Get(context.Background(), storage.NewQuery("Post").Where("id", created["id"]))
	require.NoError(t, err)
	assert.Equal(t, "stamped", stored["body"], "create persists the hook mutation")

	// Clear the hook's value out of band, then update an unrelated field; the
	// hook runs against the merged record and its mutation must persist too.
	_, err = f.store.Update(context.Background(), "Post", created["id"], storage.Record{"body": "reset"})
	require.NoError(t, err)

	_, err = f.orch.Update(f.ctx("Post"), f.post, created["id"], storage.Record{"title": "Changed"}, output)
	require.NoError(t, err)

	stored, err = f.store.Get(context.Background(), storage.NewQuery("Post").Where("id", created["id"]))
	require.NoError(t, err)
	assert.Equal(t, "Changed", stored["title"])
	assert.Equal(t, "stamped", stored["body"], "update persists the hook mutation")
}

func TestUpdateWithNonIDPrimaryKeyTarget(t *testing.T) {
	category := &descriptor.EntityDescriptor{
		Name: "Category",
		Storage: &storage.Descriptor{
			Name:  "Category",
			Table: "categories",
			Fields: []storage.FieldDef{
				{Name: "slug", Type: storage.TypeString, Primary: true},
				{Name: "label", Type: storage.TypeString},
			},
		},
	}
	item := &descriptor.EntityDescriptor{
		Name: "Item",
		Storage: &storage.Descriptor{
			Name:  "Item",
			Table: "items",
			Fields: []storage.FieldDef{
				{Name: "id", Type: storage.TypeUUID, Primary: true, Auto: true},
				{Name: "name", Type: storage.TypeString},
			},
			Relations: []storage.RelationDef{
				{Name: "category", Kind: storage.BelongsTo, Target: "Category", ForeignKey: "category_slug"},
			},
		},
	}

	reg := descriptor.NewRegistry()
	require.NoError(t, reg.Register(category))
	require.NoError(t, reg.Register(item))

	store := newMemStore(nil, category.Storage, item.Storage)
	orch := New(store, reg, contract.NewGenerator(reg), nil)
	rctx := hooks.NewContext(context.Background(), nil, store, "Item")

	_, err := store.Insert(context.Background(), "Category",
		storage.Record{"slug": "tools", "label": "Tools"})
	require.NoError(t, err)

	output, err := orch.Contract(item, descriptor.OpRead)
	require.NoError(t, err)

	out, err := orch.Create(rctx, item, storage.Record{
		"name":     "Hammer",
		"category": "tools",
	}, output)
	require.NoError(t, err)

	// The foreign key is flattened from the target's declared primary key,
	// and the sibling identifier is keyed the same way.
	assert.Equal(t, "tools", out["category_id"])

	stored, err := store.Get(context.Background(), storage.NewQuery("Item").Where("name", "Hammer"))
	require.NoError(t, err)
	assert.Equal(t, "tools", stored["category_slug"])
}

func TestDelete(t *testing.T) {
	events := []string{}
	post := &descriptor.EntityDescriptor{
		Name:     "Post",
		Storage:  postStorage(),
		Behavior: lifecycleBehavior{events: &events},
	}
	f := setup(t, post)
	f.seedAuthor(t, "a-1", "Dara")

	output, err := f.orch.Contract(f.post, descriptor.OpRead)
	require.NoError(t, err)
	created, err := f.orch.Create(f.ctx("Post"), f.post, storage.Record{
		"title":  "Hello",
		"author": "a-1",
	}, output)
	require.NoError(t, err)

	events = events[:0]
	require.NoError(t, f.orch.Delete(f.ctx("Post"), f.post, created["id"]))
	assert.Equal(t, []string{"on_delete"}, events)

	_, err = f.orch.FetchOne(f.ctx("Post"), f.post, created["id"], "")
	assert.True(t, IsNotFound(err))

	t.Run("deleting a missing record is not found", func(t *testing.T) {
		err := f.orch.Delete(f.ctx("Post"), f.post, "ghost")
		assert.True(t, IsNotFound(err))
	})
}

// visibilityBehavior hides unpublished rows from every fetch.
type visibilityBehavior struct{}

func (visibilityBehavior) QuerysetRequest(ctx *hooks.Context, q *storage.Query) (*storage.Query, error) {
	return q.Where("published", true), nil
}

func TestQuerysetRequestScopesFetches(t *testing.T) {
	post := &descriptor.EntityDescriptor{
		Name:     "Post",
		Storage:  postStorage(),
		Behavior: visibilityBehavior{},
	}
	f := setup(t, post)

	_, err := f.store.Insert(context.Background(), "Post", storage.Record{"id": "p-1", "title": "Draft", "published": false})
	require.NoError(t, err)
	_, err = f.store.Insert(context.Background(), "Post", storage.Record{"id": "p-2", "title": "Live", "published": true})
	require.NoError(t, err)

	t.Run("fetch one", func(t *testing.T) {
		_, err := f.orch.FetchOne(f.ctx("Post"), f.post, "p-1", "")
		assert.True(t, IsNotFound(err))

		rec, err := f.orch.FetchOne(f.ctx("Post"), f.post, "p-2", "")
		require.NoError(t, err)
		assert.Equal(t, "Live", rec["title"])
	})

	t.Run("fetch many", func(t *testing.T) {
		q, err := f.orch.FetchMany(f.ctx("Post"), f.post, nil, "")
		require.NoError(t, err)
		records, err := f.store.Select(context.Background(), q)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "Live", records[0]["title"])
	})
}

func TestFetchManyIsLazy(t *testing.T) {
	f := setup(t, nil)

	q, err := f.orch.FetchMany(f.ctx("Post"), f.post, map[string]interface{}{"title": "Hello"}, "")
	require.NoError(t, err)

	// Nothing materialized yet; the caller decides how much to consume.
	derived := q.Limit(5)
	records, err := f.store.Select(context.Background(), derived)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestScopedFetchAttachesEagerLoads(t *testing.T) {
	f := setup(t, nil)
	f.seedAuthor(t, "a-1", "Dara")

	q, err := f.orch.FetchMany(f.ctx("Post"), f.post, nil, "read")
	require.NoError(t, err)

	// The read contract discovers the author relation, so it is unioned
	// into the scope's select-related set.
	assert.Contains(t, q.SelectRelatedNames(), "author")
}

func TestCustomActionsReceiveSplitCustoms(t *testing.T) {
	var got map[string]interface{}
	post := &descriptor.EntityDescriptor{
		Name:    "Post",
		Storage: postStorage(),
		Create: &descriptor.OperationConfig{
			Fields:  []string{"title", "author"},
			Customs: []descriptor.CustomSpec{descriptor.CustomField("notify", storage.TypeBool, false)},
		},
		Hooks: hooks.Set{
			CustomActions: func(ctx *hooks.Context, customs map[string]interface{}, record storage.Record) error {
				got = customs
				return nil
			},
		},
	}
	f := setup(t, post)
	f.seedAuthor(t, "a-1", "Dara")

	output, err := f.orch.Contract(f.post, descriptor.OpRead)
	require.NoError(t, err)

	_, err = f.orch.Create(f.ctx("Post"), f.post, storage.Record{
		"title":  "Hello",
		"author": "a-1",
		"notify": true,
	}, output)
	require.NoError(t, err)

	require.NotNil(t, got)
	assert.Equal(t, true, got["notify"])

	// The custom value never reaches storage.
	stored, err := f.store.Get(context.Background(), storage.NewQuery("Post").Where("title", "Hello"))
	require.NoError(t, err)
	_, ok := stored["notify"]
	assert.False(t, ok)
}
