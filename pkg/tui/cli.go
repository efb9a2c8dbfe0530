// Package tui renders poflow command output: progress bars, result tables
// and import reports.
package tui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/schollz/progressbar/v3"

	"github.com/logflow/poflow/internal/model"
)

// Colors (Swiss minimal)
var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(white).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
)

// RenderTable lays rows out under headers in a bordered table.
func RenderTable(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	return t.Render()
}

// PrintImportReport prints the outcome of a finished import.
func PrintImportReport(w io.Writer, job *model.ImportJob, elapsed time.Duration) {
	fmt.Fprintln(w)
	switch job.Status {
	case model.StatusCompleted:
		fmt.Fprintln(w, successStyle.Render("  ✓ IMPORT COMPLETE"))
	case model.StatusCompletedWithErrors:
		fmt.Fprintln(w, accentStyle.Render("  ! IMPORT COMPLETE WITH ERRORS"))
	default:
		fmt.Fprintln(w, accentStyle.Render("  ✗ IMPORT "+strings.ToUpper(string(job.Status))))
	}
	fmt.Fprintln(w)

	line := func(label, value string) {
		fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render(fmt.Sprintf("%-9s", label+":")), titleStyle.Render(value))
	}
	line("Batch", job.BatchID)
	line("Rows", FormatNumber(job.TotalRows))
	line("Imported", FormatNumber(job.ImportedRows))
	line("Skipped", FormatNumber(job.SkippedRows))
	line("Errors", FormatNumber(job.ErrorRows))
	if elapsed > 0 {
		line("Time", FormatDuration(elapsed))
	}
	if job.ErrorMessage != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, accentStyle.Render("  "+job.ErrorMessage))
	}
	if len(job.ErrorSamples) > 0 {
		fmt.Fprintln(w)
		for _, s := range job.ErrorSamples {
			fmt.Fprintln(w, mutedStyle.Render("  - "+s))
		}
	}
	fmt.Fprintln(w)
}

// FormatBytes formats a byte count with a binary unit.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

// FormatDuration formats a duration in a human-readable way.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}

// FormatNumber abbreviates large counts.
func FormatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1000000)
}

// ShowProgress creates a progress bar over total rows.
func ShowProgress(w io.Writer, total int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(false),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "",
			BarEnd:        "",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}
