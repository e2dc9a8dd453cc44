/*
Package query parses and evaluates JSON-LD-style queries over DB
snapshots.

A query map's recognized keys are context, select / selectOne /
selectDistinct / selectReduced, from, where, filter, group-by, order-by,
limit, offset, depth, and prettyPrint. Parsing produces a typed AST
(selection items and pattern terms are tagged variants, never re-sniffed
maps), and every IRI is expanded against the merged database and query
contexts, including @reverse and @container @list directives.

# Evaluation

Subject-addressed queries (from with no where) project the selection
tree over the subject, or over every subject of a collection predicate.

Pattern queries execute the where triples in listed order. Each pattern
probes the index its bound positions select:

	(s,p) bound   spot
	(p,o) bound   post
	(o) reference opst
	(p) bound     psot
	otherwise     spot

and extends the binding stream; later patterns narrow it by probing with
their already-bound prefixes. Reads are point-in-time views: per
(s,p,o,dt) group the newest visible flake decides, retractions hide.

Filters are s-expressions over bound variables. Aggregates (count, sum,
avg, min, max) fold rows, grouped by group-by when present. selectOne is
limit 1 plus unwrap; selectDistinct and selectReduced de-duplicate
projected tuples exactly.

# Graph crawl

A {key: [sub-selection]} item recurses into referenced subjects along
the key's predicate (through opst when the context declares @reverse),
decrementing depth per descent. At depth zero a reference renders as
{id}; a visit set of (subject, spec) pairs stops cycles. @list
predicates restore element order from flake metadata.

# See Also

  - pkg/db for the snapshot and context machinery
  - pkg/flake for object ordering and datatype matching
*/
package query
