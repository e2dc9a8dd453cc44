/*
Package errs defines the error taxonomy shared by every Strata component.

Errors carry a stable symbolic kind (db/invalid-query, db/storage-error, ...)
and an HTTP-like status so callers at any surface can map failures without
string matching. Errors from storage are surfaced unchanged to the read they
fail; the node cache never caches errors.

# Usage

Creating errors:

	return errs.Ef(errs.KindUnavailable, "no db-root for block %d", block)

Wrapping a cause:

	return errs.Wrap(errs.KindStorage, "resolve leaf", err)

Classifying at the edge:

	status := errs.StatusOf(err)
	if errs.IsKind(err, errs.KindTimeout) { ... }

# See Also

  - pkg/storage for the read/write paths that produce storage errors
  - pkg/query for invalid-query classification
*/
package errs
