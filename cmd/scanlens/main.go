// scanlens normalizes security scan reports into findings.
//
// Usage:
//
//	scanlens parse report.json results.sarif pentest.pdf
//	scanlens parse --tool checkov --json checkov.json.gz
//	scanlens detect unknown-report.bin
//	scanlens parsers
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

const (
	appName    = "scanlens"
	appVersion = "1.0.0"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := execute(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		stop()
		os.Exit(1)
	}
}
