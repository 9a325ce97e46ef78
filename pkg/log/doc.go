// Package log provides paystream's structured logging facade.
//
// The package exposes a small Logger interface with leveled methods and a
// simple Field type for structured context. Entries flow through a
// formatter/output pipeline so the same call sites can emit text during
// development and JSON in production.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("payments"))
//	l.Info("server started", log.Str("addr", ":8080"))
package log
