// Package logger provides structured logging for iganalyzer.
//
// It wraps zerolog behind a small Logger interface so components receive a
// logger by injection and tests can substitute a TestLogger or NopLogger.
//
//	log, err := logger.New(&cfg.Logging)
//	log.WithField("session_id", id).Info("Job started")
//	log.InfoWithFields("Swept expired sessions", map[string]interface{}{
//	    "removed": n,
//	})
//
// Console output is colorized; set Logging.JSON for line-delimited JSON,
// and Logging.File to additionally append JSON lines to a file.
package logger
