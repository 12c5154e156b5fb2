package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"realty_crm_backend/internal/pipeline/domain"
)

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// printBoard writes one block per stage in order, then the unassigned leads.
func printBoard(w io.Writer, data domain.PipelineData) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	byStage := make(map[string][]domain.PipelineLead)
	known := make(map[string]bool, len(data.Stages))
	for _, s := range data.Stages {
		known[s.ID.String()] = true
	}
	for _, l := range data.Leads {
		key := ""
		if l.Status != nil && known[l.Status.String()] {
			key = l.Status.String()
		}
		byStage[key] = append(byStage[key], l)
	}

	for _, s := range data.Stages {
		fmt.Fprintf(tw, "%s (%d)\t%s\n", s.Name, s.LeadCount, s.ID)
		writeLeads(tw, byStage[s.ID.String()])
	}
	if unassigned := byStage[""]; len(unassigned) > 0 {
		fmt.Fprintf(tw, "Unassigned (%d)\t\n", len(unassigned))
		writeLeads(tw, unassigned)
	}
	return tw.Flush()
}

func writeLeads(w io.Writer, leads []domain.PipelineLead) {
	for _, l := range leads {
		assignee := "-"
		if l.AssigneeName != nil && *l.AssigneeName != "" {
			assignee = *l.AssigneeName
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%.2f\t%s\n", l.Name, l.Phone, assignee, l.Value, l.ID)
	}
}
