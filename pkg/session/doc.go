/*
Package session manages connections and per-ledger sessions.

A Connection owns everything shared: the blob store (local backend, or a
remote endpoint dialed with exponential backoff; exhausting the ceiling
yields connection-error), the codec, the byte-budgeted node cache, the
event broker, and the listener registry. Connections are independent:
no process-wide state, explicit Close tears down sessions, background
indexers, broker, cache, and store.

A Session caches the latest DB value for one ledger, serializes the
write path (stage → commit → publish), and applies reindex backpressure:
past the novelty hard cap, Transact blocks until the background indexer
drains. Listeners registered under a (network, ledger, key) tuple receive
local-ledger-update events in commit order; SyncTo installs a one-shot
listener that resolves when the session reaches a target block or times
out.

# Usage

	conn, err := session.Connect(ctx, opts, nil)
	defer conn.Close()

	sess, err := conn.Session(ctx, "local", "demo/books")
	next, err := sess.Transact(ctx, docs, db.StageOpts{})
	d := sess.DB()

# See Also

  - pkg/config for the options Connect consumes
  - pkg/indexer for the background reindex a transactor session runs
*/
package session
