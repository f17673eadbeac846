// Command billingctl runs billingkit maintenance tasks: schema migrations,
// the lifecycle sweep, counter rollovers, plan catalog validation and
// storage health checks.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
