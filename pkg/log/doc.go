// Package log provides nostrhub's structured logging facade and utilities.
//
// # Overview
//
// The package exposes a small Logger interface with leveled methods and a
// simple Field type for structured context. Logger methods format entries
// and write them to the configured outputs directly; a slog handler bridge
// routes standard-library log output (ToStdLogger, RedirectStdLog) through
// the same formatter/outputs pipeline, keeping output consistent across the
// codebase.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("server"), log.Str("ns", "default"))
//	l.Info("server started", log.Int("port", 8080))
//
// # Configuration
//
// Use ApplyConfig to build a logger from a declarative Config, supporting JSON
// or text formatting; it always writes to the console (Config.Output is not
// consulted). FileOutput and NullOutput can be attached through NewLogger
// and WithOutput.
//
// # Interop
//
// To integrate with libraries expecting *log.Logger, use ToStdLogger or
// RedirectStdLog. Most code should depend on the Logger interface rather
// than reaching into slog directly.
package log
