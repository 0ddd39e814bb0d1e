// Package table provides an ordered, primary-key indexed record collection
// meant to live inside a lightdb aggregate.
//
// A [Table] maps each record's [Record.PrimaryKey] to the record. Keys are
// unique and iteration is always in ascending key order. Tables have no
// persistence of their own: they are serialized as part of the aggregate
// that holds them, as a key-indexed object in text formats (JSON, YAML) and
// as a plain record sequence in CBOR.
//
//	type User struct {
//	    ID   int    `json:"id"`
//	    Name string `json:"name"`
//	}
//
//	func (u User) PrimaryKey() int { return u.ID }
//
//	var users table.Table[int, User]
//	users.Add(User{ID: 1, Name: "Nils"})
package table

import (
	"cmp"
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/google/btree"
)

// Record is a value with a designated primary key.
//
// PrimaryKey must be a pure function of the record: the same record always
// yields the same key. The compact encoding relies on this to rebuild the
// index without storing keys.
type Record[K cmp.Ordered] interface {
	PrimaryKey() K
}

// degree is the B-tree branching factor.
const degree = 32

type entry[K cmp.Ordered, V Record[K]] struct {
	key K
	val V
}

// Table is an ordered map from primary key to record.
//
// The zero value is an empty table ready to use. A Table must not be copied
// after first use; hold it by value inside the aggregate and access it
// through the aggregate pointer.
//
// Table is not safe for concurrent use. Inside a store, reads happen under
// the read guard and mutations under the write guard.
type Table[K cmp.Ordered, V Record[K]] struct {
	tree *btree.BTreeG[*entry[K, V]]
}

func less[K cmp.Ordered, V Record[K]](a, b *entry[K, V]) bool {
	return cmp.Less(a.key, b.key)
}

func (t *Table[K, V]) init() {
	if t.tree == nil {
		t.tree = btree.NewG(degree, less[K, V])
	}
}

func (t *Table[K, V]) lookup(k K) (*entry[K, V], bool) {
	if t.tree == nil {
		return nil, false
	}

	return t.tree.Get(&entry[K, V]{key: k})
}

// Len returns the number of records.
func (t *Table[K, V]) Len() int {
	if t.tree == nil {
		return 0
	}

	return t.tree.Len()
}

// Contains reports whether a record with key k exists.
func (t *Table[K, V]) Contains(k K) bool {
	_, ok := t.lookup(k)

	return ok
}

// Add inserts v if its key is absent and returns it with true.
// If the key is taken, the table is unchanged and Add returns the zero V
// and false. Add never overwrites.
func (t *Table[K, V]) Add(v V) (V, bool) {
	k := v.PrimaryKey()
	if t.Contains(k) {
		var zero V

		return zero, false
	}

	t.init()
	t.tree.ReplaceOrInsert(&entry[K, V]{key: k, val: v})

	return v, true
}

// Get returns the record with key k.
func (t *Table[K, V]) Get(k K) (V, bool) {
	e, ok := t.lookup(k)
	if !ok {
		var zero V

		return zero, false
	}

	return e.val, true
}

// GetMut returns a pointer to the stored record with key k.
//
// The pointer is valid until the record is deleted or edited. Changing the
// record's primary key through it corrupts the index; use [Table.Update] or
// [Table.Edit] when the key may change.
func (t *Table[K, V]) GetMut(k K) (*V, bool) {
	e, ok := t.lookup(k)
	if !ok {
		return nil, false
	}

	return &e.val, true
}

// Update applies fn to a copy of the record with key k and stores the
// result through [Table.Edit], so a changed key is re-indexed. Returns false
// with no mutation if k is missing or the new key belongs to another record.
func (t *Table[K, V]) Update(k K, fn func(v *V)) bool {
	e, ok := t.lookup(k)
	if !ok {
		return false
	}

	v := e.val
	fn(&v)

	_, ok = t.Edit(k, v)

	return ok
}

// Edit replaces the record at oldKey with v, moving it to v's key.
//
// It succeeds only if oldKey exists and v's key either equals oldKey or is
// not taken. On failure the table is unchanged and Edit returns the zero V
// and false.
func (t *Table[K, V]) Edit(oldKey K, v V) (V, bool) {
	e, ok := t.lookup(oldKey)
	if !ok {
		var zero V

		return zero, false
	}

	newKey := v.PrimaryKey()

	if cmp.Compare(newKey, oldKey) == 0 {
		e.val = v

		return v, true
	}

	if t.Contains(newKey) {
		var zero V

		return zero, false
	}

	t.tree.Delete(e)
	t.tree.ReplaceOrInsert(&entry[K, V]{key: newKey, val: v})

	return v, true
}

// Delete removes and returns the record with key k.
func (t *Table[K, V]) Delete(k K) (V, bool) {
	if t.tree == nil {
		var zero V

		return zero, false
	}

	e, ok := t.tree.Delete(&entry[K, V]{key: k})
	if !ok {
		var zero V

		return zero, false
	}

	return e.val, true
}

// All iterates over key/record pairs in ascending key order.
func (t *Table[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		if t.tree == nil {
			return
		}

		t.tree.Ascend(func(e *entry[K, V]) bool {
			return yield(e.key, e.val)
		})
	}
}

// Keys iterates over keys in ascending order.
func (t *Table[K, V]) Keys() iter.Seq[K] {
	return func(yield func(K) bool) {
		for k := range t.All() {
			if !yield(k) {
				return
			}
		}
	}
}

// Values iterates over records in ascending key order.
func (t *Table[K, V]) Values() iter.Seq[V] {
	return func(yield func(V) bool) {
		for _, v := range t.All() {
			if !yield(v) {
				return
			}
		}
	}
}

// ValuesMut iterates over pointers to the stored records in ascending key
// order. The same key rules as [Table.GetMut] apply. The table must not be
// structurally modified during iteration.
func (t *Table[K, V]) ValuesMut() iter.Seq[*V] {
	return func(yield func(*V) bool) {
		if t.tree == nil {
			return
		}

		t.tree.Ascend(func(e *entry[K, V]) bool {
			return yield(&e.val)
		})
	}
}

// Search returns every record matching pred, in key order.
func (t *Table[K, V]) Search(pred func(V) bool) []V {
	var out []V

	for v := range t.Values() {
		if pred(v) {
			out = append(out, v)
		}
	}

	return out
}

// SearchText returns every record whose "%+v" rendering contains query,
// ignoring case. An empty query matches everything.
func (t *Table[K, V]) SearchText(query string) []V {
	q := strings.ToLower(query)

	return t.Search(func(v V) bool {
		return strings.Contains(strings.ToLower(fmt.Sprintf("%+v", v)), q)
	})
}

// SearchSorted is [Table.Search] with results ordered by compare.
// Records that compare equal keep key order.
func (t *Table[K, V]) SearchSorted(pred func(V) bool, compare func(a, b V) int) []V {
	out := t.Search(pred)
	slices.SortStableFunc(out, compare)

	return out
}

// Clear removes every record.
func (t *Table[K, V]) Clear() {
	if t.tree != nil {
		t.tree.Clear(false)
	}
}
