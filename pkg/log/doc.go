/*
Package log provides structured logging for shiftkeeper using zerolog.

The package wraps a single global zerolog.Logger with component and
entity-scoped child loggers. Nothing in the reconciler is user-facing, so logs
together with the metrics package are how operators learn that a tick failed
or that an occurrence was skipped because of bad roster data.

# Levels

  - Debug: per-row decisions (created, promoted, closed)
  - Info: lifecycle and per-tick summaries
  - Warn: skipped occurrences (missing schedule, malformed clock strings)
  - Error: aborted ticks and storage failures

# Usage

	log.Init(log.Config{
		Level:      log.ParseLevel(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
	})

	logger := log.WithComponent("reconciler")
	logger.Info().
		Int("created", 3).
		Dur("duration", elapsed).
		Msg("Tick complete")

	occLog := log.WithOccurrenceID(occ.ID)
	occLog.Warn().Err(err).Msg("Skipping occurrence")

Console output (JSONOutput false) uses zerolog.ConsoleWriter with RFC3339
timestamps and is meant for local runs; deployments should use JSON.
*/
package log
