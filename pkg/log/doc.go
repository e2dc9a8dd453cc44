/*
Package log provides structured logging for Strata using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific child loggers, configurable log levels, and helper
functions for common patterns. All logs include timestamps and support
filtering by severity level.

# Usage

Initializing the logger:

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Component loggers:

	lg := log.WithComponent("indexer")
	lg.Info().Int64("t", t).Msg("reindex complete")

Ledger-scoped loggers:

	lg := log.WithLedger("fluree", "demo/books")
	lg.Debug().Int64("block", 7).Msg("root published")

# Integration Points

This package integrates with:

  - pkg/indexer: reindex lifecycle and watcher events
  - pkg/session: connection and listener dispatch
  - pkg/index: cache and resolution diagnostics
  - cmd/strata: initLogging wires the persistent CLI flags

# See Also

  - Zerolog documentation: https://github.com/rs/zerolog
*/
package log
