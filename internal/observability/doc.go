// Package observability builds the process logger.
//
// Every component receives a *zap.Logger through its constructor; nothing
// reads a global logger. Secrets, passwords and token strings are never
// logged.
package observability
