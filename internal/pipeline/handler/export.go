package handler

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"realty_crm_backend/internal/pipeline/domain"
	"realty_crm_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

var exportHeader = []string{"stage", "name", "phone", "email", "tags", "interest", "value", "assignee", "created_at"}

// ExportCSV streams the board as CSV, grouped by stage order. Unassigned
// leads come last with an empty stage column.
func (h *Handler) ExportCSV(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	data, err := h.view.GetPipelineData(c.Request.Context(), actor)
	if httpkit.HandleError(c, err) {
		return
	}

	filename := fmt.Sprintf("pipeline-%s.csv", time.Now().UTC().Format("20060102"))
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := WriteCSV(c.Writer, data); err != nil {
		_ = c.Error(err)
	}
}

// WriteCSV writes data as CSV to w.
func WriteCSV(w io.Writer, data domain.PipelineData) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}

	byStage := make(map[uuid.UUID][]domain.PipelineLead, len(data.Stages))
	known := make(map[uuid.UUID]bool, len(data.Stages))
	for _, s := range data.Stages {
		known[s.ID] = true
	}
	var unassigned []domain.PipelineLead
	for _, l := range data.Leads {
		if l.Status != nil && known[*l.Status] {
			byStage[*l.Status] = append(byStage[*l.Status], l)
			continue
		}
		unassigned = append(unassigned, l)
	}

	for _, s := range data.Stages {
		for _, l := range byStage[s.ID] {
			if err := cw.Write(exportRow(s.Name, l)); err != nil {
				return err
			}
		}
	}
	for _, l := range unassigned {
		if err := cw.Write(exportRow("", l)); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func exportRow(stage string, l domain.PipelineLead) []string {
	return []string{
		stage,
		l.Name,
		l.Phone,
		deref(l.Email),
		strings.Join(l.Tags, ";"),
		l.Interest,
		strconv.FormatFloat(l.Value, 'f', 2, 64),
		deref(l.AssigneeName),
		l.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
