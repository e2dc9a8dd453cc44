/*
Package db models the database value: an immutable, time-addressable
snapshot of one ledger.

A DB carries the five index roots, the novelty overlay, the vocabulary,
the per-collection subject counters, and the block/transaction cursors.
Nothing in a DB mutates; staging, as-of views, and reindexed states are
new values sharing structure with their parents. A reader holding a DB
observes exactly one consistent state no matter what the writer does.

# Snapshot algebra

	WithFlakes  extend novelty, decrement t per distinct transaction
	Stage       documents → flakes → WithFlakes, plus vocabulary growth
	AsOf        cap read visibility at a transaction; composing caps
	            keeps the older one (closest to zero)
	TimeTravel  resolve block | instant | t to an as-of view

# Reads

Scan yields raw history: assertions and retractions in comparator
order. Current filters a scan to the point-in-time view: per (s,p,o,dt)
group the newest visible flake decides, and a deciding retraction hides
the group. Subject, IRI, and reverse-reference lookups are thin range
scans over spot, post, and opst.

# Vocabulary

The genesis schema carries the system collections (_predicate,
_collection, _tx) and predicates (@id, _predicate/*, _tx/time, rdf:type).
Staging an unknown predicate registers it in the same transaction,
recording the definition as ordinary flakes in the _predicate collection.

# See Also

  - pkg/index for scans and novelty
  - pkg/commit for how snapshots become durable roots
  - pkg/query for the selection layer above
*/
package db
