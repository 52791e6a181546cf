// Package logger wraps zerolog behind a small Logger interface.
//
// Loggers are created explicitly and passed to the components that need
// them; there is no package level instance. Components that receive a nil
// Logger fall back to OrNop.
//
//	log, err := logger.New(&cfg.Logging)
//	log.WithField("username", "natgeo").Info("profile resolved")
//
// Console output goes to stderr so that progress output on stdout stays
// readable. When LoggingConfig.File is set, JSON lines are also appended
// to that file.
package logger
