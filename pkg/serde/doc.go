/*
Package serde defines the codec capability for ledger blobs.

Five logical blob shapes are fixed regardless of codec: leaf, branch,
db-root, garbage, block. The engine is codec-agnostic and consumes the
Serde interface; the JSON implementation ships by default. Implementations
must be deterministic (equal inputs produce byte-equal outputs) because
commit content addressing hashes serialized roots.

Ecount map keys are int64 collection ids; the JSON codec relies on Go's
map-key sorting for determinism, so the encoded form is stable across
processes.

# See Also

  - pkg/storage for where blobs live
  - pkg/index for leaf/branch resolution through this codec
*/
package serde
