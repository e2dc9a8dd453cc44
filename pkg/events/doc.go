/*
Package events provides the in-process event broker for ledger updates.

Commits and reindex transitions publish events; sessions subscribe and
fan them out to registered listener callbacks. Delivery is ordered per
publisher because one goroutine drains the publish channel. Subscribers
with full buffers miss events rather than block the broker; the session
layer resynchronizes from the latest DB on reconnect.

# See Also

  - pkg/session for listener registration and SyncTo
  - pkg/indexer for watcher events
*/
package events
