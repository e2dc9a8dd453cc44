package db

import (
	"github.com/cuemby/strata/pkg/flake"
)

// System collection ids. Subject ids embed the collection in their high
// bits, so collection 0 gives the system predicates small subject ids:
// predicate ids ARE the subject ids of their _predicate records.
const (
	CollPredicate  int64 = 0
	CollCollection int64 = 1
	CollTx         int64 = 2
	CollDefault    int64 = 3
)

// System predicate ids (subject ids in the _predicate collection).
const (
	PidID        int64 = 0 // @id: subject IRI, unique string
	PidPredName  int64 = 1 // _predicate/name
	PidPredType  int64 = 2 // _predicate/type
	PidPredMulti int64 = 3 // _predicate/multi
	PidPredRef   int64 = 4 // _predicate/ref
	PidPredComp  int64 = 5 // _predicate/component
	PidPredIndex int64 = 6 // _predicate/index
	PidPredUniq  int64 = 7 // _predicate/unique
	PidCollName  int64 = 10 // _collection/name
	PidTxTime    int64 = 20 // _tx/time: commit wall-clock instant
	PidRdfType   int64 = 30 // rdf:type, reference-valued
)

// firstUserPid leaves room for future system vocabulary.
const firstUserPid int64 = 1000

// Predicate describes one vocabulary entry.
type Predicate struct {
	ID        int64
	IRI       string
	Type      int64 // datatype id of asserted objects
	Multi     bool
	Ref       bool
	Component bool
	Index     bool
	Unique    bool
}

// Collection describes one subject partition.
type Collection struct {
	ID   int64
	Name string
}

// Schema is the ledger vocabulary: predicate-iri → definition and
// collection-iri → id. Schemas are copy-on-extend; a DB snapshot's schema
// never mutates.
type Schema struct {
	Pred     map[string]*Predicate
	PredByID map[int64]*Predicate
	Coll     map[string]*Collection
	CollByID map[int64]*Collection
}

// Bootstrap returns the genesis vocabulary.
func Bootstrap() *Schema {
	s := &Schema{
		Pred:     make(map[string]*Predicate),
		PredByID: make(map[int64]*Predicate),
		Coll:     make(map[string]*Collection),
		CollByID: make(map[int64]*Collection),
	}
	for _, c := range []*Collection{
		{ID: CollPredicate, Name: "_predicate"},
		{ID: CollCollection, Name: "_collection"},
		{ID: CollTx, Name: "_tx"},
		{ID: CollDefault, Name: "_default"},
	} {
		s.Coll[c.Name] = c
		s.CollByID[c.ID] = c
	}
	for _, p := range []*Predicate{
		{ID: PidID, IRI: "@id", Type: flake.DtString, Unique: true, Index: true},
		{ID: PidPredName, IRI: "_predicate/name", Type: flake.DtString, Unique: true},
		{ID: PidPredType, IRI: "_predicate/type", Type: flake.DtLong},
		{ID: PidPredMulti, IRI: "_predicate/multi", Type: flake.DtBoolean},
		{ID: PidPredRef, IRI: "_predicate/ref", Type: flake.DtBoolean},
		{ID: PidPredComp, IRI: "_predicate/component", Type: flake.DtBoolean},
		{ID: PidPredIndex, IRI: "_predicate/index", Type: flake.DtBoolean},
		{ID: PidPredUniq, IRI: "_predicate/unique", Type: flake.DtBoolean},
		{ID: PidCollName, IRI: "_collection/name", Type: flake.DtString, Unique: true},
		{ID: PidTxTime, IRI: "_tx/time", Type: flake.DtInstant},
		{ID: PidRdfType, IRI: "rdf:type", Type: flake.DtRef, Multi: true, Ref: true},
	} {
		s.Pred[p.IRI] = p
		s.PredByID[p.ID] = p
	}
	// common aliases
	s.Pred["@type"] = s.Pred["rdf:type"]
	s.Pred["type"] = s.Pred["rdf:type"]
	s.Pred["id"] = s.Pred["@id"]
	return s
}

// Clone returns a copy whose lookup maps can be extended without touching
// s; the Predicate and Collection records themselves are shared.
func (s *Schema) Clone() *Schema {
	c := &Schema{
		Pred:     make(map[string]*Predicate, len(s.Pred)),
		PredByID: make(map[int64]*Predicate, len(s.PredByID)),
		Coll:     make(map[string]*Collection, len(s.Coll)),
		CollByID: make(map[int64]*Collection, len(s.CollByID)),
	}
	for k, v := range s.Pred {
		c.Pred[k] = v
	}
	for k, v := range s.PredByID {
		c.PredByID[k] = v
	}
	for k, v := range s.Coll {
		c.Coll[k] = v
	}
	for k, v := range s.CollByID {
		c.CollByID[k] = v
	}
	return c
}

// Predicate looks a predicate up by IRI.
func (s *Schema) Predicate(iri string) (*Predicate, bool) {
	p, ok := s.Pred[iri]
	return p, ok
}

// PredicateByID looks a predicate up by id.
func (s *Schema) PredicateByID(id int64) (*Predicate, bool) {
	p, ok := s.PredByID[id]
	return p, ok
}

// GenesisEcount seeds the per-collection subject counters.
func GenesisEcount() map[int64]int64 {
	return map[int64]int64{
		CollPredicate:  firstUserPid,
		CollCollection: 100,
		CollTx:         0,
		CollDefault:    0,
	}
}
