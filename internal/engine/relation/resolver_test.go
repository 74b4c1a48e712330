package relation

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapSource serves contract thunks from a plain map and counts forces.
type mapSource struct {
	contracts map[string]interface{}
	forces    map[string]*int32
}

func newMapSource(contracts map[string]interface{}) *mapSource {
	forces := make(map[string]*int32, len(contracts))
	for name := range contracts {
		forces[name] = new(int32)
	}
	return &mapSource{contracts: contracts, forces: forces}
}

func (s *mapSource) ContractThunk(qualified string) (func() (interface{}, error), bool) {
	c, ok := s.contracts[qualified]
	if !ok {
		return nil, false
	}
	count := s.forces[qualified]
	return func() (interface{}, error) {
		atomic.AddInt32(count, 1)
		return c, nil
	}, true
}

func TestQualify(t *testing.T) {
	assert.Equal(t, "Post", Qualify("", "Post"))
	assert.Equal(t, "blog.Post", Qualify("blog", "Post"))

	ns, name := SplitQualified("blog.Post")
	assert.Equal(t, "blog", ns)
	assert.Equal(t, "Post", name)

	assert.True(t, IsQualified("blog.Post"))
	assert.False(t, IsQualified("Post"))
}

func TestResolve(t *testing.T) {
	source := newMapSource(map[string]interface{}{
		"Post":        "post-contract",
		"Author":      "author-contract",
		"blog.Writer": "writer-contract",
	})
	r := NewResolver(source)

	t.Run("direct", func(t *testing.T) {
		resolved, err := r.Resolve(Direct{Contract: "inline"}, "")
		require.NoError(t, err)
		c, err := resolved.Contract()
		require.NoError(t, err)
		assert.Equal(t, "inline", c)
	})

	t.Run("lazy in declaring namespace", func(t *testing.T) {
		resolved, err := r.Resolve(Lazy{Name: "Post"}, "")
		require.NoError(t, err)
		c, err := resolved.Contract()
		require.NoError(t, err)
		assert.Equal(t, "post-contract", c)
	})

	t.Run("path crosses namespaces", func(t *testing.T) {
		resolved, err := r.Resolve(Path{Qualified: "blog.Writer"}, "")
		require.NoError(t, err)
		c, err := resolved.Contract()
		require.NoError(t, err)
		assert.Equal(t, "writer-contract", c)
	})

	t.Run("bare path behaves as lazy", func(t *testing.T) {
		resolved, err := r.Resolve(Path{Qualified: "Author"}, "")
		require.NoError(t, err)
		c, err := resolved.Contract()
		require.NoError(t, err)
		assert.Equal(t, "author-contract", c)
	})

	t.Run("union resolves each alternative", func(t *testing.T) {
		resolved, err := r.Resolve(Union{Alternatives: []Reference{Lazy{Name: "Post"}, Lazy{Name: "Author"}}}, "")
		require.NoError(t, err)
		require.True(t, resolved.IsUnion())
		require.Len(t, resolved.Alternatives, 2)

		_, err = resolved.Contract()
		assert.ErrorIs(t, err, ErrUnresolvable)

		c, err := resolved.Alternatives[1].Contract()
		require.NoError(t, err)
		assert.Equal(t, "author-contract", c)
	})

	t.Run("nested unions are rejected", func(t *testing.T) {
		_, err := r.Resolve(Union{Alternatives: []Reference{
			Union{Alternatives: []Reference{Lazy{Name: "Post"}}},
		}}, "")
		assert.ErrorIs(t, err, ErrUnresolvable)
	})

	t.Run("unknown name is unresolvable", func(t *testing.T) {
		_, err := r.Resolve(Lazy{Name: "Ghost"}, "")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnresolvable))
	})
}

func TestResolveMemoization(t *testing.T) {
	source := newMapSource(map[string]interface{}{"Post": "post-contract"})
	r := NewResolver(source)

	a, err := r.Resolve(Lazy{Name: "Post"}, "")
	require.NoError(t, err)
	b, err := r.Resolve(Lazy{Name: "Post"}, "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = a.Contract()
			_, _ = b.Contract()
		}()
	}
	wg.Wait()

	// Both handles share one slot, so the thunk fires exactly once.
	assert.Equal(t, int32(1), atomic.LoadInt32(source.forces["Post"]))
}

// TestCircularResolution models two entities that reference each other. The
// thunks only force at access time, so neither side needs the other to be
// generated first.
func TestCircularResolution(t *testing.T) {
	contracts := map[string]interface{}{}
	source := newMapSource(contracts)
	r := NewResolver(source)

	// Registered after the resolver exists, before anything is forced.
	contracts["A"] = "a-contract"
	contracts["B"] = "b-contract"
	source.forces["A"] = new(int32)
	source.forces["B"] = new(int32)

	aToB, err := r.Resolve(Lazy{Name: "B"}, "")
	require.NoError(t, err)
	bToA, err := r.Resolve(Lazy{Name: "A"}, "")
	require.NoError(t, err)

	cb, err := aToB.Contract()
	require.NoError(t, err)
	ca, err := bToA.Contract()
	require.NoError(t, err)
	assert.Equal(t, "b-contract", cb)
	assert.Equal(t, "a-contract", ca)
}
