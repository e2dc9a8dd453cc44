package flake

import "math"

// Index names the five canonical flake orderings.
type Index string

const (
	IndexSPOT Index = "spot"
	IndexPSOT Index = "psot"
	IndexPOST Index = "post"
	IndexOPST Index = "opst"
	IndexTSPO Index = "tspo"
)

// Indexes lists every index in canonical order.
var Indexes = []Index{IndexSPOT, IndexPSOT, IndexPOST, IndexOPST, IndexTSPO}

// Comparator is a strict total order over flakes. Equal flakes are
// bitwise identical.
type Comparator func(a, b Flake) int

// ComparatorFor returns the comparator for an index.
func ComparatorFor(idx Index) Comparator {
	switch idx {
	case IndexSPOT:
		return CmpSPOT
	case IndexPSOT:
		return CmpPSOT
	case IndexPOST:
		return CmpPOST
	case IndexOPST:
		return CmpOPST
	case IndexTSPO:
		return CmpTSPO
	default:
		return CmpSPOT
	}
}

// cmpObject orders the object position: datatype id first, then value
// within the type. Cross-datatype comparison never coerces numerically.
func cmpObject(a, b Flake) int {
	if c := compareInt64(a.DT, b.DT); c != 0 {
		return c
	}
	return CompareValues(a.O, b.O)
}

// cmpT orders transactions recent-first: t is strictly negative and
// decreases with each transaction, so ascending numeric order puts the
// most recent history first.
func cmpT(a, b Flake) int {
	return compareInt64(a.T, b.T)
}

// cmpTail finishes the cascade: op (assert before retract), then the
// canonical serialization of metadata, guaranteeing strictness.
func cmpTail(a, b Flake) int {
	if a.Op != b.Op {
		if a.Op {
			return -1
		}
		return 1
	}
	return compareStrings(a.M.canonical(), b.M.canonical())
}

// CmpSPOT orders (s, p, o, t): the subject index.
func CmpSPOT(a, b Flake) int {
	if c := compareInt64(a.S, b.S); c != 0 {
		return c
	}
	if c := compareInt64(a.P, b.P); c != 0 {
		return c
	}
	if c := cmpObject(a, b); c != 0 {
		return c
	}
	if c := cmpT(a, b); c != 0 {
		return c
	}
	return cmpTail(a, b)
}

// CmpPSOT orders (p, s, o, t): the predicate-subject index.
func CmpPSOT(a, b Flake) int {
	if c := compareInt64(a.P, b.P); c != 0 {
		return c
	}
	if c := compareInt64(a.S, b.S); c != 0 {
		return c
	}
	if c := cmpObject(a, b); c != 0 {
		return c
	}
	if c := cmpT(a, b); c != 0 {
		return c
	}
	return cmpTail(a, b)
}

// CmpPOST orders (p, o, s, t): the predicate-object index.
func CmpPOST(a, b Flake) int {
	if c := compareInt64(a.P, b.P); c != 0 {
		return c
	}
	if c := cmpObject(a, b); c != 0 {
		return c
	}
	if c := compareInt64(a.S, b.S); c != 0 {
		return c
	}
	if c := cmpT(a, b); c != 0 {
		return c
	}
	return cmpTail(a, b)
}

// CmpOPST orders (o, p, s, t): the reference index. Only flakes whose
// datatype marks the object as a subject reference belong to opst.
func CmpOPST(a, b Flake) int {
	if c := cmpObject(a, b); c != 0 {
		return c
	}
	if c := compareInt64(a.P, b.P); c != 0 {
		return c
	}
	if c := compareInt64(a.S, b.S); c != 0 {
		return c
	}
	if c := cmpT(a, b); c != 0 {
		return c
	}
	return cmpTail(a, b)
}

// CmpTSPO orders (t, s, p, o): the history index.
func CmpTSPO(a, b Flake) int {
	if c := cmpT(a, b); c != 0 {
		return c
	}
	if c := compareInt64(a.S, b.S); c != 0 {
		return c
	}
	if c := compareInt64(a.P, b.P); c != 0 {
		return c
	}
	if c := cmpObject(a, b); c != 0 {
		return c
	}
	return cmpTail(a, b)
}

// Min returns a flake ordering at or before every real flake under all
// five comparators.
func Min() Flake {
	return Flake{
		S:  math.MinInt64,
		P:  math.MinInt64,
		O:  MinValue(),
		DT: math.MinInt64,
		T:  math.MinInt64,
		Op: true,
	}
}

// Max returns a flake ordering after every real flake under all five
// comparators.
func Max() Flake {
	return Flake{
		S:  math.MaxInt64,
		P:  math.MaxInt64,
		O:  MaxValue(),
		DT: math.MaxInt64,
		T:  math.MaxInt64,
		Op: false,
		M:  Meta{"~": "max"},
	}
}
