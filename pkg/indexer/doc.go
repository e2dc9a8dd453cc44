/*
Package indexer folds novelty into on-disk index trees in the background.

A reindex becomes due when the novelty overlay outgrows the configured
minimum or the interval elapses; past the hard maximum, the commit
pipeline blocks on WaitBelowMax until a run drains novelty
(backpressure). One run:

 1. Snapshots the ledger head.
 2. Merges each index's leaves with the novelty at or before the
    snapshotted t, rebuilding leaves within the configured byte bounds
    and branches bottom-up.
 3. Writes new leaves, then branches, under fresh keys.
 4. Empties novelty at or before the snapshotted t.
 5. Records the superseded node ids as garbage.
 6. Publishes the new db-root through the commit writer.

Watchers subscribe through the event broker and receive reindex start,
complete, and error events; a failed run reports its cause and leaves the
last good root untouched.

# See Also

  - pkg/index for tree building and novelty
  - pkg/commit for root publication
*/
package indexer
