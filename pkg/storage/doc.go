/*
Package storage provides blob persistence for Strata ledgers.

The storage package defines the Store interface, opaque string keys
mapping to opaque byte sequences, and three backends: an in-memory store
for tests, a file store writing one blob per file, and a BoltDB store
keeping every blob in a single database file with one bucket per blob
family.

# Architecture

Every persisted artifact of a ledger is a blob under a composed key:

	<network>_<ledger>_root_<block %015d>      db-root (the atomic pointer)
	<network>_<ledger>_<idx>_<uuid>-<l|b>      tree leaf / branch
	<network>_<ledger>_block_<block %015d>     block flakes (optionally --v<n>)
	<network>_<ledger>_garbage_<block>         superseded node ids

Node keys carry a fresh UUID per write, so a node is immutable once
written: the engine never updates a blob in place, it writes new nodes and
repoints the next db-root at them. The Store contract therefore needs no
cross-key atomicity: a reader that loads a db-root by block number sees a
consistent snapshot because everything the root references was written
first.

# Backends

MemStore:
  - map guarded by RWMutex, copy-on-read
  - tests and ephemeral ledgers

FileStore:
  - one file per blob under a base directory (one directory per ledger
    deployment)
  - writes go through temp file + rename so partial blobs never become
    visible under their key

BoltStore:
  - single strata.db file, buckets: roots, nodes, blocks, garbage, misc
  - read transactions are concurrent snapshots, writes serialized
  - default backend for strata serve

# Usage

	store, err := storage.NewBoltStore("/var/lib/strata")
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	key := storage.KeyRoot("fluree", "demo/books", 12)
	data, err := store.Read(ctx, key)

# Integration Points

This package integrates with:

  - pkg/serde: blobs are produced/consumed by the codec
  - pkg/index: node resolution reads node blobs through the cache
  - pkg/commit: commit writes nodes, garbage, block, then the root
  - pkg/session: connections own a store per configuration

# See Also

  - BoltDB documentation: https://github.com/etcd-io/bbolt
*/
package storage
