/*
Package commit persists and reloads ledger state.

A commit writes, in order: new tree nodes under fresh UUID-bearing keys
(leaves before the branches that reference them), the garbage record
listing superseded node ids, the block blob with the transaction's
flakes, and finally the db-root. The db-root is the single atomic
pointer: because everything it references is durable before it appears, a
reader that loads a root by block number always sees a consistent
snapshot, with no cross-key atomicity required from the store.

Root keys are deterministic in (network, ledger, block); node keys carry
a fresh UUID so equal subtrees across ledgers never collide.

The Reader reconstructs a DB value from a root: index summaries become
unresolved root nodes, novelty is replayed from the block blobs newer
than the last reindex, and the vocabulary is rebuilt from the _predicate
collection.

# See Also

  - pkg/indexer for when trees are rebuilt and garbage produced
  - pkg/storage for the key schema
*/
package commit
