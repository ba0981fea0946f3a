package history

import (
	"fmt"
	"sort"
	"strings"
)

// SeqRange is an inclusive range of ledger sequences.
type SeqRange struct {
	Start, End uint32
}

func (r SeqRange) Contains(seq uint32) bool {
	return seq >= r.Start && seq <= r.End
}

func (r SeqRange) String() string {
	if r.Start == r.End {
		return fmt.Sprintf("%d", r.Start)
	}
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// RangeSet tracks held ledger sequences as sorted, disjoint, non-adjacent
// ranges. Not safe for concurrent use.
type RangeSet struct {
	ranges []SeqRange
}

func (s *RangeSet) Add(seq uint32) {
	s.AddRange(seq, seq)
}

// AddRange inserts [start, end], merging with any range it touches.
func (s *RangeSet) AddRange(start, end uint32) {
	if start > end {
		return
	}
	// First range that could touch the new one.
	i := sort.Search(len(s.ranges), func(i int) bool {
		return uint64(s.ranges[i].End)+1 >= uint64(start)
	})
	j := i
	for j < len(s.ranges) && uint64(s.ranges[j].Start) <= uint64(end)+1 {
		start = min(start, s.ranges[j].Start)
		end = max(end, s.ranges[j].End)
		j++
	}
	merged := append([]SeqRange{{Start: start, End: end}}, s.ranges[j:]...)
	s.ranges = append(s.ranges[:i], merged...)
}

func (s *RangeSet) Contains(seq uint32) bool {
	i := sort.Search(len(s.ranges), func(i int) bool { return s.ranges[i].End >= seq })
	return i < len(s.ranges) && s.ranges[i].Contains(seq)
}

// Bounds returns the lowest and highest held sequence.
func (s *RangeSet) Bounds() (lo, hi uint32, ok bool) {
	if len(s.ranges) == 0 {
		return 0, 0, false
	}
	return s.ranges[0].Start, s.ranges[len(s.ranges)-1].End, true
}

// Missing returns the sequences in [start, end] that are not held.
func (s *RangeSet) Missing(start, end uint32) []uint32 {
	var out []uint32
	for seq := uint64(start); seq <= uint64(end); seq++ {
		if !s.Contains(uint32(seq)) {
			out = append(out, uint32(seq))
		}
	}
	return out
}

func (s *RangeSet) Count() uint64 {
	var n uint64
	for _, r := range s.ranges {
		n += uint64(r.End-r.Start) + 1
	}
	return n
}

func (s *RangeSet) String() string {
	if len(s.ranges) == 0 {
		return "empty"
	}
	parts := make([]string, len(s.ranges))
	for i, r := range s.ranges {
		parts[i] = r.String()
	}
	return strings.Join(parts, ",")
}
