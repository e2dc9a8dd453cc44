package flake

import (
	"encoding/json"
	"fmt"
)

// Datatype ids name the type of a flake's object value.
const (
	DtRef     int64 = 0 // object is a subject reference
	DtString  int64 = 1
	DtBoolean int64 = 2
	DtInstant int64 = 3 // epoch millis
	DtUUID    int64 = 4
	DtURI     int64 = 5
	DtBytes   int64 = 6
	DtLong    int64 = 7
	DtInt     int64 = 8
	DtDouble  int64 = 9
	DtFloat   int64 = 10
	DtBigDec  int64 = 11 // arbitrary-precision decimal carried as string
	DtJSON    int64 = 12 // opaque JSON blob carried as string
)

// Subject ids are partitioned by collection: the high bits carry the
// collection id, the low 44 bits the per-collection counter. Negative
// subject ids belong to transaction metadata.
const sidCounterBits = 44

// SID composes a subject id from a collection id and counter.
func SID(collection int64, n int64) int64 {
	return collection<<sidCounterBits | n
}

// Collection extracts the collection id from a subject id.
func Collection(sid int64) int64 {
	if sid < 0 {
		return -1
	}
	return sid >> sidCounterBits
}

// Meta is the optional per-flake metadata map. The "i" key carries the
// element position for @list containers.
type Meta map[string]any

// MetaListIndex is the metadata key holding @list element positions.
const MetaListIndex = "i"

// canonical returns a deterministic serialization used for ordering and
// content addressing. encoding/json sorts map keys, which is sufficient
// for the flat maps meta carries.
func (m Meta) canonical() string {
	if len(m) == 0 {
		return ""
	}
	b, err := json.Marshal(map[string]any(m))
	if err != nil {
		return fmt.Sprintf("%v", map[string]any(m))
	}
	return string(b)
}

// ListIndex returns the @list element position stored in meta, if any.
func (m Meta) ListIndex() (int64, bool) {
	v, ok := m[MetaListIndex]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}

// Flake is the atomic assertion: subject, predicate, object, datatype,
// transaction, assert/retract, optional metadata. Committed flakes are
// never modified.
type Flake struct {
	S  int64 `json:"s"`            // subject id; negative = transaction metadata
	P  int64 `json:"p"`            // predicate id
	O  Value `json:"o"`            // object value, typed by DT
	DT int64 `json:"dt"`           // datatype id
	T  int64 `json:"t"`            // transaction counter, strictly negative, newer = more negative
	Op bool  `json:"op"`           // true = assert, false = retract
	M  Meta  `json:"m,omitempty"`  // optional metadata
}

// New creates an assertion flake.
func New(s, p int64, o Value, dt, t int64) Flake {
	return Flake{S: s, P: p, O: o, DT: dt, T: t, Op: true}
}

// Retraction returns the retraction of f at transaction t.
func (f Flake) Retraction(t int64) Flake {
	r := f
	r.T = t
	r.Op = false
	return r
}

// Key identifies the (s,p,o,dt) group a flake asserts or retracts.
type Key struct {
	S  int64
	P  int64
	O  string
	DT int64
}

// GroupKey returns the (s,p,o,dt) group key of f.
func (f Flake) GroupKey() Key {
	return Key{S: f.S, P: f.P, O: f.O.canonical(), DT: f.DT}
}

// SizeBytes estimates the byte weight of a flake for cache accounting and
// leaf sizing.
func (f Flake) SizeBytes() int64 {
	// five int64 fields, op, and struct overhead
	n := int64(56)
	n += f.O.sizeBytes()
	if len(f.M) > 0 {
		n += int64(len(f.M.canonical()))
	}
	return n
}

func (f Flake) String() string {
	op := "+"
	if !f.Op {
		op = "-"
	}
	return fmt.Sprintf("[%s %d %d %s %d %d]", op, f.S, f.P, f.O, f.DT, f.T)
}

// Equal reports full equality including op and metadata.
func (f Flake) Equal(g Flake) bool {
	return f.S == g.S && f.P == g.P && f.DT == g.DT && f.T == g.T &&
		f.Op == g.Op && CompareValues(f.O, g.O) == 0 &&
		f.M.canonical() == g.M.canonical()
}
