// Summary: Build version shared by the LSP server and the CLI.
package internal

// Version is reported by --version and in the LSP serverInfo.
const Version = "0.3.0"
