package ws

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryRegisterSupersedes(t *testing.T) {
	r := NewRegistry()
	first := newTestClient("alice")
	second := newTestClient("alice")

	assert.Nil(t, r.Register(first))
	assert.Same(t, first, r.Register(second))

	got, ok := r.Resolve("alice")
	assert.True(t, ok)
	assert.Same(t, second, got)
	assert.Equal(t, 1, r.Len())
}

func TestRegistryRegisterSameClientTwice(t *testing.T) {
	r := NewRegistry()
	c := newTestClient("alice")
	r.Register(c)
	assert.Nil(t, r.Register(c))
}

func TestRegistryUnregisterIsIdempotent(t *testing.T) {
	r := NewRegistry()
	r.Register(newTestClient("alice"))

	assert.True(t, r.Unregister("alice"))
	assert.False(t, r.Unregister("alice"))
	_, ok := r.Resolve("alice")
	assert.False(t, ok)
}

func TestRegistryReleaseKeepsNewerBinding(t *testing.T) {
	r := NewRegistry()
	old := newTestClient("alice")
	current := newTestClient("alice")
	r.Register(old)
	r.Register(current)

	assert.False(t, r.Release(old))
	got, _ := r.Resolve("alice")
	assert.Same(t, current, got)

	assert.True(t, r.Release(current))
	assert.Equal(t, 0, r.Len())
}

func TestRegistrySnapshotSorted(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"carol", "alice", "bob"} {
		r.Register(newTestClient(name))
	}
	assert.Equal(t, []string{"alice", "bob", "carol"}, r.Snapshot())
	assert.Len(t, r.Clients(), 3)
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := newTestClient(fmt.Sprintf("user%d", i%10))
			r.Register(c)
			r.Snapshot()
			r.Resolve(c.Username())
			r.Release(c)
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, r.Len(), 10)
}
