/*
Package flake defines the atomic assertion record and its five canonical
total orders.

A flake is the quintuple (s, p, o, dt, t) plus an assert/retract op and
optional metadata. Flakes are value types: once produced by a transaction
they are never modified, and every higher layer (novelty, index tree, DB
snapshot) shares them structurally.

# Ordering

Five comparators produce the named indexes:

	spot  (s, p, o, t)   subject-centric reads and graph crawl
	psot  (p, s, o, t)   predicate scans
	post  (p, o, s, t)   value lookups
	opst  (o, p, s, t)   reverse reference traversal
	tspo  (t, s, p, o)   history and time-travel

The object position orders by datatype id first, then by value within the
type; cross-datatype comparison never coerces numerically. Every cascade
ends with op (assert before retract) and the canonical serialization of
metadata, so each comparator is a strict total order: equal flakes are
identical.

t is strictly negative and decreases with each transaction, so ascending
numeric order on t puts the most recent history first.

# Sets

Set is an immutable sorted set used for novelty overlays and resolved leaf
contents. Add/Remove return new sets; readers holding a snapshot never
observe mutation. Merge fuses two ordered flake runs without materializing
a combined set, which is how the reindexer folds novelty into the existing
leaves.

# See Also

  - pkg/index for the persistent tree these orders shape
  - pkg/db for the snapshot holding one Set per index as novelty
*/
package flake
