package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryBuildersDerive(t *testing.T) {
	base := NewQuery("Post")

	scoped := base.Where("published", true).
		WhereOp("status", OpNotEqual, "archived").
		OrderBy("created_at DESC").
		Limit(10).
		Offset(20)

	// The base query is untouched.
	assert.Empty(t, base.Conditions())
	assert.Nil(t, base.LimitValue())

	require.Len(t, scoped.Conditions(), 2)
	assert.Equal(t, Condition{Field: "published", Operator: OpEqual, Value: true}, scoped.Conditions()[0])
	assert.Equal(t, OpNotEqual, scoped.Conditions()[1].Operator)
	assert.Equal(t, []string{"created_at DESC"}, scoped.Ordering())
	require.NotNil(t, scoped.LimitValue())
	assert.Equal(t, 10, *scoped.LimitValue())
	require.NotNil(t, scoped.OffsetValue())
	assert.Equal(t, 20, *scoped.OffsetValue())
}

func TestQueryEagerLoadDirectivesDeduplicate(t *testing.T) {
	q := NewQuery("Post").
		SelectRelated("author").
		SelectRelated("author", "category").
		Prefetch("comments").
		Prefetch("comments", "tags")

	assert.Equal(t, []string{"author", "category"}, q.SelectRelatedNames())
	assert.Equal(t, []string{"comments", "tags"}, q.PrefetchNames())
}

func TestRecord(t *testing.T) {
	t.Run("clone is independent", func(t *testing.T) {
		rec := Record{"id": "1", "title": "Hello"}
		cl := rec.Clone()
		cl["title"] = "Changed"
		assert.Equal(t, "Hello", rec["title"])
	})

	t.Run("merge overwrites", func(t *testing.T) {
		rec := Record{"title": "Hello", "body": "text"}
		rec.Merge(Record{"title": "Updated"})
		assert.Equal(t, "Updated", rec["title"])
		assert.Equal(t, "text", rec["body"])
	})
}

func TestDescriptorLookups(t *testing.T) {
	d := &Descriptor{
		Name:  "Post",
		Table: "posts",
		Fields: []FieldDef{
			{Name: "id", Type: TypeUUID, Primary: true, Auto: true},
			{Name: "title", Type: TypeString},
		},
		Relations: []RelationDef{
			{Name: "author", Kind: BelongsTo, Target: "Author", ForeignKey: "author_id"},
		},
	}

	t.Run("field and relation lookup", func(t *testing.T) {
		require.NotNil(t, d.Field("title"))
		assert.Nil(t, d.Field("missing"))
		require.NotNil(t, d.Relation("author"))
		assert.Nil(t, d.Relation("missing"))
	})

	t.Run("primary key", func(t *testing.T) {
		pk, err := d.PrimaryKey()
		require.NoError(t, err)
		assert.Equal(t, "id", pk.Name)
	})

	t.Run("primary key missing is an error", func(t *testing.T) {
		bare := &Descriptor{Name: "Orphan", Table: "orphans", Fields: []FieldDef{{Name: "title", Type: TypeString}}}
		_, err := bare.PrimaryKey()
		assert.Error(t, err)
	})

	t.Run("relation kinds", func(t *testing.T) {
		assert.False(t, BelongsTo.Many())
		assert.False(t, HasOne.Many())
		assert.True(t, HasMany.Many())
		assert.True(t, ManyToMany.Many())
	})
}
