// Copyright (c) 2025 The stakemesh developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package slashing

import "github.com/stakemesh/stakemesh/mesh"

// Spans partition the history of a stash into slashing spans. A span ends
// whenever the stash is slashed in it; slashes within one span do not
// accumulate, only the largest counts.
type Spans struct {
	SpanIndex        uint32
	LastStart        mesh.EraIndex
	LastNonzeroSlash mesh.EraIndex
	// Prior are the lengths of the ended spans, most recent first.
	Prior []uint32
}

// Span is one slashing span. Length is zero for the ongoing span.
type Span struct {
	Index  uint32
	Start  mesh.EraIndex
	Length uint32
}

func (s Span) ongoing() bool { return s.Length == 0 }

// Contains reports whether era falls in the span.
func (s Span) Contains(era mesh.EraIndex) bool {
	return s.Start <= era && (s.ongoing() || uint64(s.Start)+uint64(s.Length) > uint64(era))
}

// NewSpans opens the first span at windowStart.
func NewSpans(windowStart mesh.EraIndex) *Spans {
	return &Spans{LastStart: windowStart}
}

// EndSpan closes the ongoing span after era now. It reports false when a
// span already starts after now.
func (s *Spans) EndSpan(now mesh.EraIndex) bool {
	next := now + 1
	if next <= s.LastStart {
		return false
	}
	s.Prior = append([]uint32{uint32(next - s.LastStart)}, s.Prior...)
	s.LastStart = next
	s.SpanIndex++
	return true
}

// All returns the spans newest first, starting with the ongoing one.
func (s *Spans) All() []Span {
	out := make([]Span, 0, len(s.Prior)+1)
	out = append(out, Span{Index: s.SpanIndex, Start: s.LastStart})
	start, index := s.LastStart, s.SpanIndex
	for _, length := range s.Prior {
		start -= mesh.EraIndex(length)
		index--
		out = append(out, Span{Index: index, Start: start, Length: length})
	}
	return out
}

// EraSpan finds the span containing era.
func (s *Spans) EraSpan(era mesh.EraIndex) (Span, bool) {
	for _, span := range s.All() {
		if span.Contains(era) {
			return span, true
		}
	}
	return Span{}, false
}

// Prune drops the spans that ended before windowStart and returns the
// range [from, to) of their indices.
func (s *Spans) Prune(windowStart mesh.EraIndex) (from, to uint32, pruned bool) {
	earliest := s.SpanIndex - uint32(len(s.Prior))
	for i, span := range s.All()[1:] {
		if uint64(span.Start)+uint64(span.Length) <= uint64(windowStart) {
			s.Prior = s.Prior[:i]
			from, to, pruned = earliest, s.SpanIndex-uint32(len(s.Prior)), true
			break
		}
	}
	if windowStart > s.LastStart {
		s.LastStart = windowStart
	}
	return
}
