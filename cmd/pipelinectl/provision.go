package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newProvisionCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "provision",
		Short: "Create the default stage for a tenant that has none",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stage, created, err := c.services.Stages.EnsureDefaultStage(cmd.Context(), c.actor.TenantID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if c.jsonOutput {
				return printJSON(out, map[string]interface{}{
					"tenantId": c.actor.TenantID,
					"created":  created,
					"stage":    stage,
				})
			}
			if created {
				fmt.Fprintf(out, "Created stage %q (%s)\n", stage.Name, stage.ID)
			} else {
				fmt.Fprintf(out, "Tenant already provisioned; first stage is %q (%s)\n", stage.Name, stage.ID)
			}
			return nil
		},
	}
}
