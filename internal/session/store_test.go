package session_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-socket/internal/session"
)

type fakeSession struct{ id string }

func TestStoreTryAddRejectsDuplicateKeys(t *testing.T) {
	st := session.NewStore[*fakeSession](4)
	a := &fakeSession{id: "a"}
	require.True(t, st.TryAdd("Key-1", a))
	assert.False(t, st.TryAdd("key-1", &fakeSession{id: "b"}), "keys compare case-insensitively")

	got, ok := st.Get("KEY-1")
	require.True(t, ok)
	assert.Same(t, a, got)
	assert.Equal(t, 1, st.Len())
}

func TestStoreRemoveOnlyMatchingSession(t *testing.T) {
	st := session.NewStore[*fakeSession](4)
	old := &fakeSession{id: "old"}
	require.True(t, st.TryAdd("k", old))
	require.True(t, st.Remove("k", old))
	assert.False(t, st.Remove("k", old), "second removal reports absence")

	fresh := &fakeSession{id: "new"}
	require.True(t, st.TryAdd("k", fresh))
	assert.False(t, st.Remove("k", old))
	_, ok := st.Get("k")
	assert.True(t, ok)
}

func TestStoreConcurrentInsertRemove(t *testing.T) {
	st := session.NewStore[*fakeSession](16)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				key := fmt.Sprintf("%d-%d", g, i)
				s := &fakeSession{id: key}
				if st.TryAdd(key, s) && i%2 == 0 {
					st.Remove(key, s)
				}
			}
		}(g)
	}
	wg.Wait()
	assert.Equal(t, 8*250, st.Len())
	assert.Len(t, st.Values(), 8*250)
}

func TestSnapshotPublishesImmutableCopies(t *testing.T) {
	var snap session.Snapshot[int]
	assert.Nil(t, snap.Load())
	assert.True(t, snap.Updated().IsZero())

	first := []int{1, 2}
	snap.Store(first)
	got := snap.Load()
	snap.Store([]int{3})
	assert.Equal(t, []int{1, 2}, got)
	assert.Equal(t, []int{3}, snap.Load())
	assert.False(t, snap.Updated().IsZero())
}

func TestItemsExpire(t *testing.T) {
	it := session.NewItems()
	it.Set("a", 1)
	it.SetWithTTL("b", 2, time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	v, ok := it.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
	_, ok = it.Get("b")
	assert.False(t, ok, "expired key still present")
	assert.Equal(t, []string{"a"}, it.Keys())

	it.Delete("a")
	assert.Empty(t, it.Keys())
}
