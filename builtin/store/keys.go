// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package store

import (
	"encoding/binary"
)

type Key interface {
	Bytes() []byte
}

// U32 is a uint32 key.
type U32 uint32

func (k U32) Bytes() []byte {
	return binary.BigEndian.AppendUint32(nil, uint32(k))
}

// U64 is a uint64 key.
type U64 uint64

func (k U64) Bytes() []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(k))
}

// Str is a string key. It must not be combined with other variable length
// keys in a Pair.
type Str string

func (k Str) Bytes() []byte {
	return []byte(k)
}

// Pair is a composite key. Both parts are expected to be fixed width.
type Pair[A Key, B Key] struct {
	A A
	B B
}

func NewPair[A Key, B Key](a A, b B) Pair[A, B] {
	return Pair[A, B]{A: a, B: b}
}

func (p Pair[A, B]) Bytes() []byte {
	return append(p.A.Bytes(), p.B.Bytes()...)
}

// Triple is a composite key of three fixed width parts.
type Triple[A Key, B Key, C Key] struct {
	A A
	B B
	C C
}

func NewTriple[A Key, B Key, C Key](a A, b B, c C) Triple[A, B, C] {
	return Triple[A, B, C]{A: a, B: b, C: c}
}

func (t Triple[A, B, C]) Bytes() []byte {
	out := append(t.A.Bytes(), t.B.Bytes()...)
	return append(out, t.C.Bytes()...)
}
