// Package logging provides structured logging for matlock.
//
// This package wraps Go's log/slog to emit JSON-formatted records with
// persistent attributes (session name, component) so that reservation and
// connection events from many cooperating worker processes can be filtered
// and correlated after the fact.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/var/log/matlock", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	logger.Info("session reserved", "pid", 4242)
//
// # Context Propagation
//
//	sessionLogger := logger.WithSession("MATLAB_4242")
//	sessionLogger.Warn("stacked connection", "refs", 2)
//
// Output:
//
//	{"time":"...","level":"WARN","msg":"stacked connection","session":"MATLAB_4242","refs":2}
//
// # Log Rotation
//
//	logger, err := logging.NewLoggerWithRotation(dir, "INFO", logging.RotationConfig{
//	    MaxSizeMB:  10,
//	    MaxBackups: 3,
//	})
//
// Rotated files are named matlock.log.1, matlock.log.2, where .1 is the most
// recent backup.
//
// # Testing
//
// Use [NopLogger] to discard output, or [NewWriterLogger] with a buffer to
// assert on emitted records.
package logging
