// Command subkitd serves the subscription entitlement API: catalog, status,
// purchase, refresh and store notifications, backed by either an in-memory
// demo store or a remote store API.
package main

import (
	"fmt"
	"os"
)

// Version is set at build time with -ldflags.
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
