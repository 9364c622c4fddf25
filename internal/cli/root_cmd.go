// Package cli implements the ipmctl command-line driver: a reference
// consumer of pkg/pmu's control surface, run entirely against the fake MSR
// bus, fake APIC, and memfd-backed shared memory this module provides,
// since ipmctl has no ring-zero access of its own.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCommand builds the ipmctl command tree.
func NewRootCommand(out, errOut io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "ipmctl",
		Short: "Drive a simulated Intel PMU session end to end",
	}
	root.AddCommand(newDemoCommand(out, errOut))
	root.AddCommand(newPropertiesCommand(out, errOut))
	return root
}

func fail(errOut io.Writer, err error) {
	fmt.Fprintln(errOut, err)
	os.Exit(1)
}

func printJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
