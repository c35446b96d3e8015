// Package logging sets up structured JSON logging for trialscope. Logs go
// to a size-rotated file under ~/.trialscope/logs/ and, outside of MCP stdio
// mode, to stderr. The viewer backs the `trialscope logs` command.
package logging
