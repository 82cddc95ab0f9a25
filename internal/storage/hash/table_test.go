package hash

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intHash(key int) uint64 {
	return uint64(key)
}

func TestInsertAndFind(t *testing.T) {
	tbl := New[int, string](4, intHash)

	tbl.Insert(1, "one")
	tbl.Insert(2, "two")

	v, ok := tbl.Find(1)
	require.True(t, ok)
	assert.Equal(t, "one", v)

	v, ok = tbl.Find(2)
	require.True(t, ok)
	assert.Equal(t, "two", v)

	_, ok = tbl.Find(99)
	assert.False(t, ok)
}

func TestInsertOverwritesExistingKey(t *testing.T) {
	tbl := New[int, string](4, intHash)
	tbl.Insert(1, "one")
	tbl.Insert(1, "uno")

	v, ok := tbl.Find(1)
	require.True(t, ok)
	assert.Equal(t, "uno", v)
}

func TestRemove(t *testing.T) {
	tbl := New[int, string](4, intHash)
	tbl.Insert(1, "one")

	assert.True(t, tbl.Remove(1))
	assert.False(t, tbl.Remove(1))

	_, ok := tbl.Find(1)
	assert.False(t, ok)
}

func TestSplitGrowsGlobalDepthOnOverflow(t *testing.T) {
	tbl := New[int, string](2, intHash)
	assert.Equal(t, 0, tbl.GlobalDepth())

	for i := 0; i < 8; i++ {
		tbl.Insert(i, "v")
	}

	assert.GreaterOrEqual(t, tbl.GlobalDepth(), 1)
	for i := 0; i < 8; i++ {
		v, ok := tbl.Find(i)
		require.True(t, ok, "key %d should be found", i)
		assert.Equal(t, "v", v)
	}
}

func TestNumBucketsIncreasesWithSplits(t *testing.T) {
	tbl := New[int, string](1, intHash)
	assert.Equal(t, 1, tbl.NumBuckets())

	tbl.Insert(1, "a")
	tbl.Insert(2, "b")

	assert.Greater(t, tbl.NumBuckets(), 1)
}

func TestDefaultHashFuncIsDeterministic(t *testing.T) {
	h := DefaultHashFunc[string]()
	assert.Equal(t, h("abc"), h("abc"))
	assert.NotEqual(t, h("abc"), h("abd"))
}

func TestManyKeysSurviveRepeatedSplits(t *testing.T) {
	tbl := New[int, int](2, intHash)
	const n = 500
	for i := 0; i < n; i++ {
		tbl.Insert(i, i*10)
	}
	for i := 0; i < n; i++ {
		v, ok := tbl.Find(i)
		require.True(t, ok)
		assert.Equal(t, i*10, v)
	}
}

// TestConcurrentInsertFindRemove hammers a shared Table from many goroutines
// with disjoint keys, so the table's own mutex is what has to keep directory
// doubling and bucket splits from racing with a concurrent Find.
func TestConcurrentInsertFindRemove(t *testing.T) {
	tbl := New[int, int](2, intHash)
	const goroutines = 32

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(key int) {
			defer wg.Done()
			tbl.Insert(key, key*2)
			v, ok := tbl.Find(key)
			assert.True(t, ok)
			assert.Equal(t, key*2, v)
		}(i)
	}
	wg.Wait()

	var wg2 sync.WaitGroup
	wg2.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(key int) {
			defer wg2.Done()
			assert.True(t, tbl.Remove(key))
		}(i)
	}
	wg2.Wait()

	for i := 0; i < goroutines; i++ {
		_, ok := tbl.Find(i)
		assert.False(t, ok)
	}
}
