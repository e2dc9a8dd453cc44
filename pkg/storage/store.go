package storage

import (
	"context"
	"fmt"
)

// WriteResult reports where a blob landed. Address may equal the key or a
// canonical URL for remote backends.
type WriteResult struct {
	Address string
}

// Store defines the interface for ledger blob storage: opaque string keys
// mapping to opaque byte sequences. The engine composes keys via the Key*
// helpers and makes no atomicity claim across keys; a single write is
// durable once acknowledged.
type Store interface {
	// Exists reports whether a key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Read returns the bytes under key, or nil when absent.
	Read(ctx context.Context, key string) ([]byte, error)

	// Write stores value under key, overwriting any prior value.
	Write(ctx context.Context, key string, value []byte) (WriteResult, error)

	// Rename moves the value at old to new.
	Rename(ctx context.Context, old, new string) error

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns every key with the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Close releases backend resources.
	Close() error
}

// Key schema: every blob family composes its key from the ledger identity
// so one backend can hold many ledgers.

// KeyRoot is the db-root key for a block: <net>_<ledger>_root_<block %015d>.
func KeyRoot(network, ledger string, block int64) string {
	return fmt.Sprintf("%s_%s_root_%015d", network, ledger, block)
}

// KeyNode is a tree node key: <net>_<ledger>_<idx>_<uuid>-<l|b>. The uuid
// is fresh per write so equal subtrees across ledgers never collide.
func KeyNode(network, ledger, idx, uuid string, leaf bool) string {
	suffix := "b"
	if leaf {
		suffix = "l"
	}
	return fmt.Sprintf("%s_%s_%s_%s-%s", network, ledger, idx, uuid, suffix)
}

// KeyBlock is the block blob key: <net>_<ledger>_block_<block %015d>.
func KeyBlock(network, ledger string, block int64) string {
	return fmt.Sprintf("%s_%s_block_%015d", network, ledger, block)
}

// KeyBlockVersion is a versioned block blob key.
func KeyBlockVersion(network, ledger string, block int64, version int) string {
	return fmt.Sprintf("%s_%s_block_%015d--v%d", network, ledger, block, version)
}

// KeyGarbage is the garbage record key for a block.
func KeyGarbage(network, ledger string, block int64) string {
	return fmt.Sprintf("%s_%s_garbage_%d", network, ledger, block)
}

// KeyPrefix is the common prefix of every key for one ledger.
func KeyPrefix(network, ledger string) string {
	return fmt.Sprintf("%s_%s_", network, ledger)
}
