// Package logging provides opt-in file-based logging with rotation for the
// docquery engine. When the --debug flag is set, comprehensive logs are
// written to ~/.docquery/logs/ for debugging and troubleshooting.
//
// By default (without --debug), logging is minimal and goes to stderr only.
// In MCP server mode stderr is never used (see SetupMCPMode): the MCP
// transport owns stdout/stdin for JSON-RPC and any stray write to either
// stream corrupts the protocol.
package logging
