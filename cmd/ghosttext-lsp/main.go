// Summary: ghosttext LSP entrypoint; parses flags and delegates to internal/ghosttextlsp.
package main

import (
	"flag"
	"log"
	"os"

	"ghosttext/internal"
	"ghosttext/internal/ghosttextlsp"
)

func main() {
	logPath := flag.String("log", "/tmp/ghosttext-lsp.log", "path to log file (empty logs to stderr)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()
	if *showVersion {
		log.Println(internal.Version)
		return
	}

	if err := ghosttextlsp.Run(*logPath, os.Stdin, os.Stdout, os.Stderr); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
