/*
Package config defines connection options and their YAML loading.

Options cover remote servers, worker parallelism, the cache memory
budget (floored at 1 MiB), the serializer, default network and identity,
storage backend selection, ledger name lookup, keep-alive, the default
JSON-LD context, the transaction signing key, and the reindex policy.
Validate applies defaults so a zero Options is usable.
*/
package config
