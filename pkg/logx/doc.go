// Package logx wraps zerolog behind a small structured-logging facade.
//
// It supports console, file and Telegram sinks, can be reconfigured at
// runtime via Service.Apply, and its zero-value Logger is a safe no-op.
package logx
