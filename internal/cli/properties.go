package cli

import (
	"io"

	"github.com/spf13/cobra"
)

func newPropertiesCommand(out, errOut io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "properties",
		Short: "Print the simulated hardware's capability probe result",
		RunE: func(cmd *cobra.Command, args []string) error {
			session, _, _ := newRig()
			caps, err := session.GetProperties()
			if err != nil {
				return err
			}
			return printJSON(out, caps)
		},
	}
}
