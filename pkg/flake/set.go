package flake

import "sort"

// Set is an immutable sorted set of flakes under one comparator. Add and
// Remove return new sets sharing no mutable state with the receiver, so a
// Set held by a DB snapshot never changes underneath a reader.
type Set struct {
	cmp    Comparator
	flakes []Flake
	size   int64 // byte weight
}

// NewSet builds a set from fs, sorting and de-duplicating under cmp.
func NewSet(cmp Comparator, fs ...Flake) *Set {
	sorted := make([]Flake, len(fs))
	copy(sorted, fs)
	sort.Slice(sorted, func(i, j int) bool { return cmp(sorted[i], sorted[j]) < 0 })
	dedup := sorted[:0]
	for i, f := range sorted {
		if i > 0 && cmp(sorted[i-1], f) == 0 {
			continue
		}
		dedup = append(dedup, f)
	}
	var size int64
	for _, f := range dedup {
		size += f.SizeBytes()
	}
	return &Set{cmp: cmp, flakes: dedup, size: size}
}

// Comparator returns the set's ordering.
func (s *Set) Comparator() Comparator {
	return s.cmp
}

// Len returns the number of flakes.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.flakes)
}

// Size returns the byte weight of the set.
func (s *Set) Size() int64 {
	if s == nil {
		return 0
	}
	return s.size
}

// All returns the flakes in order. Callers must not modify the slice.
func (s *Set) All() []Flake {
	if s == nil {
		return nil
	}
	return s.flakes
}

// search returns the first position whose flake is >= f.
func (s *Set) search(f Flake) int {
	return sort.Search(len(s.flakes), func(i int) bool {
		return s.cmp(s.flakes[i], f) >= 0
	})
}

// Contains reports whether an equal flake is present.
func (s *Set) Contains(f Flake) bool {
	if s == nil {
		return false
	}
	i := s.search(f)
	return i < len(s.flakes) && s.cmp(s.flakes[i], f) == 0
}

// Slice returns the flakes in the half-open range [from, to). A nil to
// means unbounded on the right. The returned slice aliases the set.
func (s *Set) Slice(from Flake, to *Flake) []Flake {
	if s == nil {
		return nil
	}
	lo := s.search(from)
	hi := len(s.flakes)
	if to != nil {
		hi = s.search(*to)
	}
	if lo >= hi {
		return nil
	}
	return s.flakes[lo:hi]
}

// Add returns a new set with fs merged in. Flakes equal to existing
// members replace them.
func (s *Set) Add(fs ...Flake) *Set {
	if len(fs) == 0 {
		return s
	}
	add := NewSet(s.cmp, fs...)
	merged := make([]Flake, 0, len(s.flakes)+add.Len())
	i, j := 0, 0
	for i < len(s.flakes) && j < len(add.flakes) {
		c := s.cmp(s.flakes[i], add.flakes[j])
		switch {
		case c < 0:
			merged = append(merged, s.flakes[i])
			i++
		case c > 0:
			merged = append(merged, add.flakes[j])
			j++
		default:
			merged = append(merged, add.flakes[j])
			i++
			j++
		}
	}
	merged = append(merged, s.flakes[i:]...)
	merged = append(merged, add.flakes[j:]...)
	var size int64
	for _, f := range merged {
		size += f.SizeBytes()
	}
	return &Set{cmp: s.cmp, flakes: merged, size: size}
}

// Remove returns a new set without the given flakes.
func (s *Set) Remove(fs ...Flake) *Set {
	if len(fs) == 0 {
		return s
	}
	drop := NewSet(s.cmp, fs...)
	kept := make([]Flake, 0, len(s.flakes))
	for _, f := range s.flakes {
		if !drop.Contains(f) {
			kept = append(kept, f)
		}
	}
	var size int64
	for _, f := range kept {
		size += f.SizeBytes()
	}
	return &Set{cmp: s.cmp, flakes: kept, size: size}
}

// Merge walks a and b in comparator order, yielding each flake once. Both
// inputs must share the comparator. Used to fuse novelty with resolved
// leaves without materializing a combined set.
func Merge(cmp Comparator, a, b []Flake, yield func(Flake) bool) {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		c := cmp(a[i], b[j])
		switch {
		case c < 0:
			if !yield(a[i]) {
				return
			}
			i++
		case c > 0:
			if !yield(b[j]) {
				return
			}
			j++
		default:
			if !yield(a[i]) {
				return
			}
			i++
			j++
		}
	}
	for ; i < len(a); i++ {
		if !yield(a[i]) {
			return
		}
	}
	for ; j < len(b); j++ {
		if !yield(b[j]) {
			return
		}
	}
}
