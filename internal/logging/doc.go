// Package logging provides structured diagnostic logging for coeftune.
//
// It wraps log/slog with a JSON handler. Every line carries the persistent
// attributes of the logger that wrote it (session ID, coefficient,
// component), so a long tuning run can be filtered after the fact.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("./tuner_logs", "INFO", logging.DefaultRotationConfig())
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	log := logger.WithSession(sessionID).WithCoefficient("DragCoefficient")
//	log.Info("optimization applied", "value", 0.0031)
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"optimization applied","session_id":"...","coefficient":"DragCoefficient","value":0.0031}
//
// # Log Rotation
//
// The log file is {dir}/coeftune.log. Once it would exceed MaxSizeMB it is
// renamed to coeftune.log.1, older backups shift up, and anything beyond
// MaxBackups is deleted. With Compress set, backups are gzipped.
//
// # Reading Logs Back
//
// [ReadLogs] parses the live file and its uncompressed backups;
// [FilterLogs] narrows them by level, time, session, coefficient,
// component or message text. The "coeftune logs" command is built on these.
//
// # Testing
//
// Use [NopLogger] to discard output, or [NewWriterLogger] with a buffer to
// assert on what was logged.
package logging
