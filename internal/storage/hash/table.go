// Package hash implements an extendible hash table: a directory of buckets
// indexed by the low bits of hash(key), where buckets split and the
// directory doubles on overflow instead of rehashing the whole table. The
// buffer pool manager uses one instance of this, keyed by page id, as its
// page table.
package hash

import (
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// HashFunc computes a 64-bit hash for a key of type K. Callers supply one at
// construction time rather than this package requiring K to implement a
// specific interface, so any comparable key type can be used.
type HashFunc[K comparable] func(key K) uint64

// DefaultHashFunc hashes a key via its fmt.Sprint representation. It is a
// reasonable default for small key types (page ids, strings, small structs)
// but callers with a hot path should supply a purpose-built HashFunc.
func DefaultHashFunc[K comparable]() HashFunc[K] {
	return func(key K) uint64 {
		return xxhash.Sum64String(fmt.Sprint(key))
	}
}

type entry[K comparable, V any] struct {
	key   K
	value V
}

type bucket[K comparable, V any] struct {
	items []entry[K, V]
	depth int
	size  int
}

func newBucket[K comparable, V any](size, depth int) *bucket[K, V] {
	return &bucket[K, V]{size: size, depth: depth}
}

func (b *bucket[K, V]) isFull() bool {
	return len(b.items) >= b.size
}

func (b *bucket[K, V]) find(key K) (V, bool) {
	for _, e := range b.items {
		if e.key == key {
			return e.value, true
		}
	}
	var zero V
	return zero, false
}

func (b *bucket[K, V]) remove(key K) bool {
	for i, e := range b.items {
		if e.key == key {
			b.items = append(b.items[:i], b.items[i+1:]...)
			return true
		}
	}
	return false
}

// insert overwrites the value for an existing key, or appends if the bucket
// has room. Reports whether the insert succeeded; false means the bucket is
// full and must be split.
func (b *bucket[K, V]) insert(key K, value V) bool {
	for i, e := range b.items {
		if e.key == key {
			b.items[i].value = value
			return true
		}
	}
	if b.isFull() {
		return false
	}
	b.items = append(b.items, entry[K, V]{key: key, value: value})
	return true
}

// Table is an extendible hash table keyed by K, mapping to values of type V.
// It is safe for concurrent use.
type Table[K comparable, V any] struct {
	mu          sync.Mutex
	dir         []*bucket[K, V]
	globalDepth int
	bucketSize  int
	numBuckets  int
	hash        HashFunc[K]
}

// New builds a Table with a single empty bucket at depth 0, capable of
// holding bucketSize entries before it splits.
func New[K comparable, V any](bucketSize int, h HashFunc[K]) *Table[K, V] {
	if bucketSize < 1 {
		bucketSize = 1
	}
	if h == nil {
		h = DefaultHashFunc[K]()
	}
	return &Table[K, V]{
		dir:        []*bucket[K, V]{newBucket[K, V](bucketSize, 0)},
		bucketSize: bucketSize,
		numBuckets: 1,
		hash:       h,
	}
}

func (t *Table[K, V]) indexOf(key K, depth int) int {
	mask := (1 << depth) - 1
	return int(t.hash(key)) & mask
}

// GlobalDepth returns the number of low bits of hash(key) currently used to
// index the directory.
func (t *Table[K, V]) GlobalDepth() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.globalDepth
}

// LocalDepth returns the depth of the bucket holding key, or 0 if the
// directory does not yet cover key's index (never true once constructed).
func (t *Table[K, V]) LocalDepth(key K) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	ind := t.indexOf(key, t.globalDepth)
	return t.dir[ind].depth
}

// NumBuckets returns the number of distinct buckets currently in the
// directory (buckets may be pointed to by more than one directory slot).
func (t *Table[K, V]) NumBuckets() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.numBuckets
}

// Find looks up key, reporting whether it is present.
func (t *Table[K, V]) Find(key K) (V, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ind := t.indexOf(key, t.globalDepth)
	return t.dir[ind].find(key)
}

// Remove deletes key if present, reporting whether it was found.
func (t *Table[K, V]) Remove(key K) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	ind := t.indexOf(key, t.globalDepth)
	return t.dir[ind].remove(key)
}

// Insert adds or overwrites key -> value, splitting buckets (and doubling
// the directory, when necessary) until the insert fits.
func (t *Table[K, V]) Insert(key K, value V) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for {
		ind := t.indexOf(key, t.globalDepth)
		if t.dir[ind].insert(key, value) {
			return
		}
		t.splitBucket(ind)
	}
}

// splitBucket grows the local depth of the bucket at dir index ind by one,
// doubling the directory first if that exceeds the global depth, then
// redistributes the bucket's entries between it and a freshly created
// sibling. Grounded on bustub's RedistributeBucket: entries move to the new
// bucket when their index at the new depth differs from the first entry's
// index at the old depth; directory slots whose low (local_depth-1) bits
// match that old index but whose low local_depth bits don't are repointed to
// the new bucket.
func (t *Table[K, V]) splitBucket(ind int) {
	old := t.dir[ind]
	newDepth := old.depth + 1

	if newDepth > t.globalDepth {
		t.globalDepth++
		dirSize := len(t.dir)
		t.dir = append(t.dir, t.dir[:dirSize]...)
	}

	replaced := newBucket[K, V](t.bucketSize, newDepth)
	if len(old.items) == 0 {
		old.depth = newDepth
		t.numBuckets++
		return
	}

	preInd := t.indexOf(old.items[0].key, newDepth-1)
	remaining := old.items[:0:0]
	for _, e := range old.items {
		if t.indexOf(e.key, newDepth) != preInd {
			replaced.items = append(replaced.items, e)
		} else {
			remaining = append(remaining, e)
		}
	}
	old.items = remaining
	old.depth = newDepth

	oldMask := (1 << (newDepth - 1)) - 1
	newMask := (1 << newDepth) - 1
	for i := range t.dir {
		if (i&oldMask) == preInd && (i&newMask) != preInd {
			t.dir[i] = replaced
		}
	}
	t.numBuckets++
}
