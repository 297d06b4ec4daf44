// Package logging routes slog records for formatsync.
//
// Each subsystem asks for its own logger and gets its own level:
//
//	logger := logging.GetLogger("negotiation").With("device_id", dev.ID)
//	logger.Info("Output format changed", "format", f.String(), "fallback", false)
//
// Known modules are pipeline, detection, negotiation, devices, logsource,
// nowplaying, config, api, http and main. Levels come from the [logging]
// table: level and format are global, any other key names a module.
//
//	[logging]
//	level = "info"
//	format = "json"
//	negotiation = "debug"
//	http = "warn"
//
// Module levels can be changed at runtime with SetModuleLevel, which backs
// PUT /api/logs/levels/{module}.
//
// Records go to journald when it is reachable and to stdout when stdout is
// not already the journal stream (JOURNAL_STREAM matches the stdout inode).
// Journal fields are upper-cased attribute keys, so a negotiation record can
// be found with
//
//	journalctl -t formatsync MODULE=negotiation DEVICE_ID=hw:D10,0
//
// Every record is also numbered and kept in a ring buffer (GetBuffer). The
// log API serves history with RingBuffer.Since and streams new entries from
// the callback registered with SetLogCallback; clients drop entries whose
// seq they have already seen.
package logging
