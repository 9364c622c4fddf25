// Command ipmctl is a reference driver for pkg/pmu, run against the fake
// MSR bus, fake APIC, and memfd-backed shared memory this module provides
// in place of real ring-zero access.
package main

import (
	"os"

	"github.com/intelpmu/ipmcore/internal/cli"
)

func main() {
	root := cli.NewRootCommand(os.Stdout, os.Stderr)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
