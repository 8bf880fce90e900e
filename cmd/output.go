package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/sells-group/analytics-studio/internal/model"
	"github.com/sells-group/analytics-studio/internal/play"
)

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// narrativeOf extracts the "narrative" field from any play analysis.
func narrativeOf(analysis any) string {
	raw, err := json.Marshal(analysis)
	if err != nil {
		return ""
	}
	var view struct {
		Narrative string `json:"narrative"`
	}
	if json.Unmarshal(raw, &view) != nil {
		return ""
	}
	return view.Narrative
}

func formatPlays(out io.Writer, specs []play.PlaySpec) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tLABEL\tTAGS\tDESCRIPTION")
	for _, s := range specs {
		_, _ = fmt.Fprintf(w, "%s\t%s %s\t%s\t%s\n", s.ID, s.Icon, s.Label, strings.Join(s.Tags, ","), s.Description)
	}
	_ = w.Flush()
}

func formatActions(out io.Writer, actions []model.Action) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTYPE\tPRIORITY\tIMPACT\tSTATUS\tTITLE")
	for _, a := range actions {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%.1f\t%s\t%s\n",
			shortID(a.ID), a.Type, a.Priority, a.ImpactScore, a.Status, a.Title)
	}
	_ = w.Flush()
}

func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tPLAY\tSTATUS\tCREATED\tDURATION")
	for _, r := range runs {
		dur := "-"
		if r.Status != model.RunStatusRunning {
			dur = r.UpdatedAt.Sub(r.CreatedAt).Truncate(time.Millisecond).String()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Play, r.Status, r.CreatedAt.Local().Format("2006-01-02 15:04"), dur)
	}
	_ = w.Flush()
}

func formatApprovals(out io.Writer, approvals []model.Approval) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tRUN\tAPPROVER\tACTIONS\tWHEN\tNOTES")
	for _, a := range approvals {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			a.ID, shortID(a.RunID), a.Approver, len(a.ActionIDs), a.CreatedAt.Local().Format("2006-01-02 15:04"), a.Notes)
	}
	_ = w.Flush()
}

func formatExecutions(out io.Writer, execs []model.Execution) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ACTION\tTYPE\tKIND\tSTATUS\tTARGET\tDETAIL")
	for _, ex := range execs {
		detail := ex.ExternalID
		if ex.Error != "" {
			detail = ex.Error
			if ex.ErrorClass != "" {
				detail = ex.ErrorClass + ": " + detail
			}
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(ex.ActionID), ex.ActionType, ex.Kind, ex.Status, ex.Target, detail)
	}
	_ = w.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
