package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/mshogin/reasonguard/internal/application/services"
	"github.com/mshogin/reasonguard/internal/domain/models"
	"github.com/mshogin/reasonguard/internal/domain/services/robustness"
)

const summaryWidth = 60

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

func render(t table.Writer, format string) error {
	switch format {
	case "", "table":
		t.Render()
	case "markdown", "md":
		t.RenderMarkdown()
	default:
		return fmt.Errorf("unknown output format %q (valid: table, markdown, json)", format)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderAnalysis(w io.Writer, format string, a robustness.Analysis) error {
	if format == "json" {
		return writeJSON(w, a)
	}

	t := newTable(w)
	t.SetTitle("Reasoning robustness")
	t.AppendRow(table.Row{"Classification", a.Classification})
	if a.Robustness != nil {
		t.AppendRow(table.Row{"Confidence", fmt.Sprintf("%.2f", a.Robustness.Confidence)})
		t.AppendRow(table.Row{"Valid agents", a.Robustness.TotalAgents})
		t.AppendRow(table.Row{"Explanation", a.Robustness.Explanation})
	}
	t.AppendRow(table.Row{"Families", len(a.Families)})
	t.AppendRow(table.Row{"Answers agree", a.AnswersAgree})
	if a.Error != "" {
		t.AppendRow(table.Row{"Error", a.Error})
	}
	appendGate(t, a.Gate)
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 2, WidthMax: summaryWidth}})
	if err := render(t, format); err != nil {
		return err
	}

	if len(a.Families) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	return renderFamilies(w, format, a.Families)
}

func renderReport(w io.Writer, format string, r *services.TaskReport) error {
	if format == "json" {
		return writeJSON(w, r)
	}

	t := newTable(w)
	t.SetTitle("Task " + r.Task.ID)
	t.AppendRow(table.Row{"Prompt", r.Task.Prompt})
	t.AppendRow(table.Row{"Status", r.Task.Status})
	t.AppendRow(table.Row{"Runs", fmt.Sprintf("%d valid of %d", r.Task.ValidRuns, r.Task.TotalRuns)})
	t.AppendRow(table.Row{"Classification", r.Task.Classification})
	if r.Robustness != nil {
		t.AppendRow(table.Row{"Confidence", fmt.Sprintf("%.2f", r.Robustness.Confidence)})
		t.AppendRow(table.Row{"Recommendation", r.Robustness.Recommendation})
	}
	if r.Task.AnalysisError != "" {
		t.AppendRow(table.Row{"Error", r.Task.AnalysisError})
	}
	appendGate(t, r.Task.Gate)
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 2, WidthMax: summaryWidth}})
	if err := render(t, format); err != nil {
		return err
	}

	if len(r.Families) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	return renderFamilies(w, format, r.Families)
}

func appendGate(t table.Writer, gate *models.GateResult) {
	if gate == nil {
		return
	}
	decision := string(gate.Decision)
	if gate.Overridden {
		decision += " (overridden)"
	}
	t.AppendSeparator()
	t.AppendRow(table.Row{"Decision", decision})
	t.AppendRow(table.Row{"Reason", gate.Reason})
	if gate.Suggestion != "" {
		t.AppendRow(table.Row{"Suggestion", gate.Suggestion})
	}
}

func renderFamilies(w io.Writer, format string, families []models.Family) error {
	t := newTable(w)
	t.AppendHeader(table.Row{"Family", "Members", "Representative", "Summary"})
	for _, f := range families {
		t.AppendRow(table.Row{f.ID, f.Size(), f.RepresentativeID, f.Summary})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 4, WidthMax: summaryWidth},
	})
	return render(t, format)
}

func renderTasks(w io.Writer, format string, tasks []*models.Task) error {
	if format == "json" {
		return writeJSON(w, tasks)
	}

	t := newTable(w)
	t.AppendHeader(table.Row{"Task", "Status", "Classification", "Families", "Decision", "Updated", "Prompt"})
	for _, task := range tasks {
		decision := ""
		if task.Gate != nil {
			decision = string(task.Gate.Decision)
			if task.Gate.Overridden {
				decision += "*"
			}
		}
		t.AppendRow(table.Row{
			task.ID,
			task.Status,
			task.Classification,
			task.FamilyCount,
			decision,
			task.UpdatedAt.Format(time.DateTime),
			truncate(task.Prompt, 40),
		})
	}
	return render(t, format)
}

func renderPatterns(w io.Writer, format string, patterns []models.FragilePattern) error {
	if format == "json" {
		return writeJSON(w, patterns)
	}

	t := newTable(w)
	t.AppendHeader(table.Row{"Prompt", "Fragile runs", "Last seen"})
	for _, p := range patterns {
		t.AppendRow(table.Row{truncate(p.Prompt, summaryWidth), p.Count, p.LastSeen.Format(time.DateTime)})
	}
	return render(t, format)
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
