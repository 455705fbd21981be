// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package store

import (
	"github.com/pkg/errors"
)

// ListKey is a list element. The zero value is reserved as the nil pointer.
type ListKey interface {
	Key
	comparable
}

// List is an insertion ordered set kept in storage as a doubly linked list.
// It gives deterministic iteration over keys of a Mapping.
type List[K ListKey] struct {
	head  *Value[K]
	tail  *Value[K]
	count *Value[uint64]
	next  *Mapping[K, K]
	prev  *Mapping[K, K]
}

// NewList creates a list persisted under name.
func NewList[K ListKey](sctx *Context, name string) *List[K] {
	return &List[K]{
		head:  NewValue[K](sctx, name+"-head"),
		tail:  NewValue[K](sctx, name+"-tail"),
		count: NewValue[uint64](sctx, name+"-count"),
		next:  NewMapping[K, K](sctx, name+"-next"),
		prev:  NewMapping[K, K](sctx, name+"-prev"),
	}
}

// Contains reports whether key is in the list.
func (l *List[K]) Contains(key K) (bool, error) {
	var zero K
	if key == zero {
		return false, nil
	}
	prev, err := l.prev.Get(key)
	if err != nil {
		return false, err
	}
	if prev != zero {
		return true, nil
	}
	head, err := l.head.Get()
	if err != nil {
		return false, err
	}
	return head == key, nil
}

// Add appends key to the end of the list. Adding a present key is a no-op.
func (l *List[K]) Add(key K) error {
	var zero K
	if key == zero {
		return errors.New("list: zero key")
	}
	ok, err := l.Contains(key)
	if err != nil || ok {
		return err
	}

	oldTail, err := l.tail.Get()
	if err != nil {
		return err
	}

	if oldTail == zero {
		// the list is currently empty, set this entry to head & tail
		if err := l.head.Set(key); err != nil {
			return err
		}
	} else {
		if err := l.next.Set(oldTail, key); err != nil {
			return err
		}
		if err := l.prev.Set(key, oldTail); err != nil {
			return err
		}
	}
	if err := l.tail.Set(key); err != nil {
		return err
	}
	return l.addCount(1)
}

// Remove extracts key from anywhere in the list. Removing an absent key is
// a no-op.
func (l *List[K]) Remove(key K) error {
	ok, err := l.Contains(key)
	if err != nil || !ok {
		return err
	}
	var zero K

	prev, err := l.prev.Get(key)
	if err != nil {
		return err
	}
	next, err := l.next.Get(key)
	if err != nil {
		return err
	}

	if prev != zero {
		if next == zero {
			l.next.Delete(prev)
		} else if err := l.next.Set(prev, next); err != nil {
			return err
		}
	} else if err := l.setOrDelete(l.head, next); err != nil {
		return err
	}

	if next != zero {
		if prev == zero {
			l.prev.Delete(next)
		} else if err := l.prev.Set(next, prev); err != nil {
			return err
		}
	} else if err := l.setOrDelete(l.tail, prev); err != nil {
		return err
	}

	l.next.Delete(key)
	l.prev.Delete(key)
	return l.addCount(-1)
}

func (l *List[K]) setOrDelete(v *Value[K], key K) error {
	var zero K
	if key == zero {
		v.Delete()
		return nil
	}
	return v.Set(key)
}

func (l *List[K]) addCount(delta int64) error {
	n, err := l.count.Get()
	if err != nil {
		return err
	}
	n = uint64(int64(n) + delta)
	if n == 0 {
		l.count.Delete()
		return nil
	}
	return l.count.Set(n)
}

// Len returns the number of keys.
func (l *List[K]) Len() (uint64, error) {
	return l.count.Get()
}

// Head returns the oldest key, zero if empty.
func (l *List[K]) Head() (K, error) {
	return l.head.Get()
}

// Iter traverses the list in insertion order, calling callback for each key
// until completion or error. The callback may remove the visited key.
func (l *List[K]) Iter(callback func(K) error) error {
	var zero K
	ptr, err := l.head.Get()
	if err != nil {
		return err
	}

	for ptr != zero {
		next, err := l.next.Get(ptr)
		if err != nil {
			return err
		}
		if err := callback(ptr); err != nil {
			return err
		}
		ptr = next
	}
	return nil
}

// Values returns all keys in insertion order.
func (l *List[K]) Values() ([]K, error) {
	var out []K
	err := l.Iter(func(k K) error {
		out = append(out, k)
		return nil
	})
	return out, err
}

// Clear removes every key.
func (l *List[K]) Clear() error {
	keys, err := l.Values()
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := l.Remove(k); err != nil {
			return err
		}
	}
	return nil
}
