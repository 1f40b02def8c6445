package report

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/cachesight/cachesight/internal/model"
)

// RenderText implements §6's output as a human-readable summary, in the
// teacher's two-section table style (render_text.go's DefaultTextTableRendererFunc):
// a header, an underline of '=' matching its length, then left-justified
// columns sized to the longest value. width is the caller's terminal width:
// description and rationale values longer than width are truncated with
// "..." (0 disables truncation); nothing is wrapped.
func RenderText(patterns []model.ClassifiedPattern, recs []model.Recommendation, width int) string {
	p := message.NewPrinter(language.English)
	var sb strings.Builder

	sb.WriteString("Anti-patterns\n")
	sb.WriteString(strings.Repeat("=", len("Anti-patterns")))
	sb.WriteString("\n")
	if len(patterns) == 0 {
		sb.WriteString("no anti-patterns found\n\n")
	} else {
		sb.WriteString(renderPatternTable(p, patterns, width))
		sb.WriteString("\n")
	}

	sb.WriteString("Recommendations\n")
	sb.WriteString(strings.Repeat("=", len("Recommendations")))
	sb.WriteString("\n")
	if len(recs) == 0 {
		sb.WriteString("no recommendations\n")
	} else {
		sb.WriteString(renderRecommendationTable(p, recs, width))
	}
	return sb.String()
}

func renderPatternTable(p *message.Printer, patterns []model.ClassifiedPattern, width int) string {
	headers := []string{"LOCATION", "TYPE", "SEVERITY", "CONFIDENCE", "MISSES", "DESCRIPTION"}
	rows := make([][]string, 0, len(patterns))
	for _, c := range patterns {
		loc := "?"
		var misses int64
		if c.HotspotRef != nil {
			loc = fmt.Sprintf("%s:%d", c.HotspotRef.Location.File, c.HotspotRef.Location.Line)
			misses = c.HotspotRef.TotalMisses
		}
		rows = append(rows, []string{
			loc,
			c.Antipattern.String(),
			fmt.Sprintf("%.1f", c.Severity),
			fmt.Sprintf("%.2f", c.Confidence),
			p.Sprintf("%d", misses),
			truncate(c.Description, width),
		})
	}
	return renderTable(headers, rows)
}

func renderRecommendationTable(p *message.Printer, recs []model.Recommendation, width int) string {
	headers := []string{"LOCATION", "OPTIMIZATION", "PRIORITY", "SPEEDUP%", "RATIONALE"}
	rows := make([][]string, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, []string{
			fmt.Sprintf("%s:%d", r.TargetLocation.File, r.TargetLocation.Line),
			r.Optimization.String(),
			p.Sprintf("%d", r.Priority),
			fmt.Sprintf("%.1f", r.ExpectedSpeedupPct),
			truncate(r.Rationale, width),
		})
	}
	return renderTable(headers, rows)
}

func truncate(s string, width int) string {
	if width <= 0 || len(s) <= width {
		return s
	}
	if width <= 3 {
		return s[:width]
	}
	return s[:width-3] + "..."
}

func renderTable(headers []string, rows [][]string) string {
	colWidth := make([]int, len(headers))
	for i, h := range headers {
		colWidth[i] = len(h)
	}
	for _, row := range rows {
		for i, v := range row {
			if i < len(colWidth)-1 && len(v) > colWidth[i] {
				colWidth[i] = len(v)
			}
		}
	}
	const spacing = 2
	var sb strings.Builder
	for i, h := range headers {
		sb.WriteString(fmt.Sprintf("%-*s", colWidth[i]+spacing, h))
		_ = i
	}
	sb.WriteString("\n")
	for i := range headers {
		sb.WriteString(strings.Repeat("-", colWidth[i]))
		sb.WriteString(strings.Repeat(" ", spacing))
	}
	sb.WriteString("\n")
	for _, row := range rows {
		for i, v := range row {
			sb.WriteString(fmt.Sprintf("%-*s", colWidth[i]+spacing, v))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
