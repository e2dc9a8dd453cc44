/*
Package index implements the persistent index tree and its read path.

Each of the five flake orderings is stored as a B+-tree-like structure:
branches hold ordered child summaries, leaves hold sorted flake sets.
Nodes are content-addressed blobs, immutable once written; a reindex
writes new nodes under fresh keys and the superseded ids go to the block's
garbage record.

# Resolution

An unresolved node carries only its summary. Resolve reads its blob
through the Store, decodes it through the Serde, and returns a copy with
Children or Flakes attached. Resolutions are memoized in an LRU keyed by
(node-id, tempid) and budgeted in bytes against the connection's memory
option; the cache is shared across DB snapshots of the same ledger.
Concurrent resolutions of the same node collapse into one storage read
via singleflight. Errors are surfaced to the failing read and never
cached.

# Range scans

Iterator yields the half-open range [from, to) in strict comparator
order. Descent selects, at each branch, the leftmost child whose
exclusive right boundary exceeds from; leaf stepping walks the parent
chain, so siblings need no links. The novelty overlay for the index is
merged in during the walk: when an on-disk flake and a novelty flake
compare equal the flake is emitted once. A scan returns assertions and
retractions alike; point-in-time views are a filter applied above.

# Novelty

Novelty is the immutable in-memory overlay of flakes newer than the last
reindex: equal as a set across spot, psot, post, and tspo, with opst
restricted to reference-valued objects. Adding flakes returns a new
overlay, so a DB snapshot's novelty never changes underneath a reader.

# Building

BuildTree chunks a sorted flake run into leaves within the configured
byte bounds and stacks branch levels bottom-up until a single root
remains. Ids are assigned by the commit path at write time.

# See Also

  - pkg/flake for the orderings
  - pkg/indexer for when trees get rebuilt
  - pkg/commit for how trees get persisted
*/
package index
