// watchd is the monitoring daemon: it probes the registered verification
// services on a fixed cycle, persists the results, serves the status
// read API, and runs daily maintenance.
package main

import (
	"fmt"
	"os"
	"syscall"
)

func main() {
	sig, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	if sig == syscall.SIGINT {
		os.Exit(130)
	}
	os.Exit(0)
}
