package main

import (
	"realty_crm_backend/internal/pipeline/handler"

	"github.com/spf13/cobra"
)

func newBoardCmd(c *cli) *cobra.Command {
	var asCSV bool

	cmd := &cobra.Command{
		Use:   "board",
		Short: "Print the tenant's pipeline board",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := c.services.View.GetPipelineData(cmd.Context(), c.actor)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case c.jsonOutput:
				return printJSON(out, data)
			case asCSV:
				return handler.WriteCSV(out, data)
			default:
				return printBoard(out, data)
			}
		},
	}
	cmd.Flags().BoolVar(&asCSV, "csv", false, "output as CSV")
	return cmd
}
