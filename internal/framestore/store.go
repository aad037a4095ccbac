// Package framestore provides an ordered, timestamp-keyed container with
// nearest-key lookups, inclusive range scans and prefix eviction.
//
// A Store is not safe for concurrent use. The occlusion core confines each
// store to a single worker goroutine.
package framestore

import (
	"math"

	"github.com/google/btree"
)

const degree = 16

// Entry is a key/value pair returned by lookups.
type Entry[T any] struct {
	Key   int64
	Value T
}

// Store maps int64 timestamps to values in ascending key order.
type Store[T any] struct {
	tree *btree.BTreeG[Entry[T]]
}

func lessEntry[T any](a, b Entry[T]) bool {
	return a.Key < b.Key
}

// New returns an empty store.
func New[T any]() *Store[T] {
	return &Store[T]{tree: btree.NewG(degree, lessEntry[T])}
}

// Put inserts value at key, replacing any existing value at that key.
func (s *Store[T]) Put(key int64, value T) {
	s.tree.ReplaceOrInsert(Entry[T]{Key: key, Value: value})
}

// Get returns the value stored at exactly key.
func (s *Store[T]) Get(key int64) (T, bool) {
	e, ok := s.tree.Get(Entry[T]{Key: key})
	return e.Value, ok
}

// Len returns the number of entries.
func (s *Store[T]) Len() int {
	return s.tree.Len()
}

// Floor returns the entry with the greatest key <= key.
func (s *Store[T]) Floor(key int64) (Entry[T], bool) {
	var out Entry[T]
	found := false
	s.tree.DescendLessOrEqual(Entry[T]{Key: key}, func(e Entry[T]) bool {
		out, found = e, true
		return false
	})
	return out, found
}

// Lower returns the entry with the greatest key < key.
func (s *Store[T]) Lower(key int64) (Entry[T], bool) {
	if key == math.MinInt64 {
		return Entry[T]{}, false
	}
	return s.Floor(key - 1)
}

// Ceiling returns the entry with the least key >= key.
func (s *Store[T]) Ceiling(key int64) (Entry[T], bool) {
	var out Entry[T]
	found := false
	s.tree.AscendGreaterOrEqual(Entry[T]{Key: key}, func(e Entry[T]) bool {
		out, found = e, true
		return false
	})
	return out, found
}

// Higher returns the entry with the least key > key.
func (s *Store[T]) Higher(key int64) (Entry[T], bool) {
	if key == math.MaxInt64 {
		return Entry[T]{}, false
	}
	return s.Ceiling(key + 1)
}

// First returns the entry with the smallest key.
func (s *Store[T]) First() (Entry[T], bool) {
	return s.tree.Min()
}

// Last returns the entry with the largest key.
func (s *Store[T]) Last() (Entry[T], bool) {
	return s.tree.Max()
}

// Range calls fn for every entry with from <= key <= to in ascending order.
// Iteration stops early when fn returns false.
func (s *Store[T]) Range(from, to int64, fn func(Entry[T]) bool) {
	if to < from {
		return
	}
	s.tree.AscendGreaterOrEqual(Entry[T]{Key: from}, func(e Entry[T]) bool {
		if e.Key > to {
			return false
		}
		return fn(e)
	})
}

// EvictBefore removes every entry with key < cutoff and returns how many were
// removed.
func (s *Store[T]) EvictBefore(cutoff int64) int {
	removed := 0
	for {
		e, ok := s.tree.Min()
		if !ok || e.Key >= cutoff {
			return removed
		}
		s.tree.DeleteMin()
		removed++
	}
}

// TrimTo evicts the oldest entries until at most max remain. It returns how
// many entries were removed. max <= 0 disables the bound.
func (s *Store[T]) TrimTo(max int) int {
	if max <= 0 {
		return 0
	}
	removed := 0
	for s.tree.Len() > max {
		s.tree.DeleteMin()
		removed++
	}
	return removed
}

// Clear removes all entries.
func (s *Store[T]) Clear() {
	s.tree.Clear(false)
}
