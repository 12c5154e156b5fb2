package main

import (
	"errors"
	"fmt"
	"strings"

	"realty_crm_backend/internal/pipeline/board"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newMoveCmd(c *cli) *cobra.Command {
	var (
		leadFlag  string
		stageFlag string
		ontoLead  string
	)

	cmd := &cobra.Command{
		Use:   "move",
		Short: "Move a lead to another stage, as a board drag would",
		Long: `Move a lead the same way the board does: start a drag on --lead and drop
it on a stage column (--stage, or --stage none for the unassigned column) or on
another lead's card (--onto-lead). A failed write leaves the lead where it was.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			leadID, err := uuid.Parse(leadFlag)
			if err != nil {
				return fmt.Errorf("invalid --lead %q: %w", leadFlag, err)
			}
			target, err := dropTarget(cmd, stageFlag, ontoLead)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			ctrl := board.New(c.actor, c.services.Leads, c.services.View, c.log)
			if err := ctrl.Load(ctx); err != nil {
				return err
			}
			if err := ctrl.StartDrag(leadID); err != nil {
				return err
			}

			outcome, err := ctrl.Drop(ctx, target)
			out := cmd.OutOrStdout()
			if c.jsonOutput {
				result := map[string]interface{}{"leadId": leadID, "outcome": outcome.String()}
				if err != nil {
					result["error"] = err.Error()
				}
				if jsonErr := printJSON(out, result); jsonErr != nil {
					return jsonErr
				}
			} else {
				fmt.Fprintf(out, "%s: %s\n", leadID, outcome)
			}
			if outcome == board.OutcomeMoved && err != nil {
				// The move itself was saved.
				c.log.Warn("board refresh failed", "error", err)
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&leadFlag, "lead", "", "lead to move")
	cmd.Flags().StringVar(&stageFlag, "stage", "", `target stage id, or "none" for the unassigned column`)
	cmd.Flags().StringVar(&ontoLead, "onto-lead", "", "drop onto this lead's card")
	_ = cmd.MarkFlagRequired("lead")
	cmd.MarkFlagsMutuallyExclusive("stage", "onto-lead")
	cmd.MarkFlagsOneRequired("stage", "onto-lead")
	return cmd
}

func dropTarget(cmd *cobra.Command, stage, ontoLead string) (board.DropTarget, error) {
	if cmd.Flags().Changed("onto-lead") {
		id, err := uuid.Parse(ontoLead)
		if err != nil {
			return nil, fmt.Errorf("invalid --onto-lead %q: %w", ontoLead, err)
		}
		return board.CardTarget{LeadID: id}, nil
	}
	if strings.EqualFold(stage, "none") {
		return board.ColumnTarget{}, nil
	}
	id, err := uuid.Parse(stage)
	if err != nil {
		return nil, errors.New(`--stage must be a stage id or "none"`)
	}
	return board.ColumnTarget{StageID: &id}, nil
}
