package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/dyike/GemScreener/internal/storage"
	"github.com/dyike/GemScreener/models"
)

// UI styles
var (
	titleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#7C3AED")).
		Background(lipgloss.Color("#1F2937")).
		Padding(0, 1).
		MarginBottom(1)

	headerCellStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#3B82F6")).
		Padding(0, 1)

	cellStyle = lipgloss.NewStyle().Padding(0, 1)

	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))

	dimStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#6B7280"))

	warnStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#F59E0B")).
		Bold(true)

	successStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#10B981")).
		Bold(true)

	errorStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#EF4444")).
		Bold(true)
)

var classificationStyles = map[models.Classification]lipgloss.Style{
	models.TruePositive: successStyle,
	models.ModerateWin:  lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")),
	models.SmallWin:     lipgloss.NewStyle().Foreground(lipgloss.Color("#3B82F6")),
	models.BreakEven:    dimStyle,
	models.Loss:         errorStyle,
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerCellStyle
			}
			return cellStyle
		})
}

// RenderRunHeader is the one-line title of a run.
func RenderRunHeader(run *models.Run) string {
	line := fmt.Sprintf("Run %s | profile %s | universe %s | as of %s",
		shortID(run.ID), run.Profile, run.Universe, run.AsOf.Format(models.DateLayout))
	if run.Scheme != "" {
		line += fmt.Sprintf(" | scheme %s, %dd", run.Scheme, run.HorizonDays)
	}
	return titleStyle.Render(line)
}

// RenderResults renders ranked results, joined with outcomes when the run
// tracked them.
func RenderResults(run *models.Run) string {
	if len(run.Results) == 0 {
		return warnStyle.Render("No tickers passed the screen.")
	}

	outcomes := make(map[string]models.ForwardOutcome, len(run.Outcomes))
	for _, o := range run.Outcomes {
		outcomes[o.Symbol] = o
	}
	tracked := len(run.Outcomes) > 0

	headers := []string{"#", "Symbol", "Score", "Signals", "Vol x", "Min RSI", "Entry", "Date"}
	if tracked {
		headers = append(headers, "Max gain", "Peak", "Class")
	}
	t := newTable(headers...)
	for _, r := range run.Results {
		row := []string{
			fmt.Sprintf("%d", r.Rank),
			r.Ticker.Symbol,
			fmt.Sprintf("%.0f", r.Score),
			signalList(r.Breakdown),
			fmt.Sprintf("%.1f", r.Indicators.PeakVolumeRatio),
			fmt.Sprintf("%.1f", r.Indicators.MinRSI),
			r.EntryPrice.StringFixed(2),
			r.EntryDate.Format(models.DateLayout),
		}
		if tracked {
			if o, ok := outcomes[r.Ticker.Symbol]; ok {
				row = append(row, fmt.Sprintf("%+.1f%%", o.MaxGainPct), fmt.Sprintf("%dd", o.DaysToPeak), renderClass(o))
			} else {
				row = append(row, "-", "-", dimStyle.Render("untracked"))
			}
		}
		t.Row(row...)
	}
	return t.String()
}

// RenderDiscards renders the forward outcomes of rejected tickers.
func RenderDiscards(run *models.Run) string {
	if len(run.DiscardOutcomes) == 0 {
		return ""
	}
	t := newTable("Symbol", "Entry", "Max gain", "Drawdown", "Class")
	for _, o := range run.DiscardOutcomes {
		t.Row(o.Symbol, o.EntryPrice.StringFixed(2), fmt.Sprintf("%+.1f%%", o.MaxGainPct),
			fmt.Sprintf("%+.1f%%", o.MaxDrawdownPct), renderClass(o))
	}
	return titleStyle.Render("Discard analysis") + "\n" + t.String()
}

// RenderOutcome renders a single forward outcome.
func RenderOutcome(o models.ForwardOutcome) string {
	t := newTable("Field", "Value")
	t.Row("Symbol", o.Symbol)
	t.Row("Entry", fmt.Sprintf("%s @ %s", o.EntryDate.Format(models.DateLayout), o.EntryPrice.StringFixed(4)))
	t.Row("Forward bars", fmt.Sprintf("%d", o.ForwardBars))
	t.Row("Max gain", fmt.Sprintf("%+.2f%%", o.MaxGainPct))
	t.Row("Max drawdown", fmt.Sprintf("%+.2f%%", o.MaxDrawdownPct))
	t.Row("Peak", fmt.Sprintf("%s (%d days)", o.PeakDate.Format(models.DateLayout), o.DaysToPeak))
	t.Row("Days above sustain", fmt.Sprintf("%d", o.DaysAboveThreshold))
	t.Row("Explosive", fmt.Sprintf("%t", o.Explosive))
	t.Row("Pump and dump", fmt.Sprintf("%t", o.PumpAndDump))
	t.Row("Class", fmt.Sprintf("%s (%s)", renderClass(o), o.Scheme))
	return t.String()
}

// RenderErrors renders the error summary, kinds sorted by name.
func RenderErrors(errs models.ErrorSummary) string {
	if errs.Total() == 0 {
		return successStyle.Render("No failures.")
	}
	kinds := make([]string, 0, len(errs))
	for k := range errs {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	t := newTable("Kind", "Count", "Example")
	for _, k := range kinds {
		b := errs[k]
		example := ""
		if len(b.Samples) > 0 {
			example = truncateString(b.Samples[0], 70)
		}
		t.Row(k, fmt.Sprintf("%d", b.Count), example)
	}
	return t.String()
}

// RenderRunList renders stored run summaries.
func RenderRunList(runs []storage.RunSummary) string {
	if len(runs) == 0 {
		return dimStyle.Render("No stored runs.")
	}
	t := newTable("ID", "Started", "Profile", "Scheme", "Universe", "As of", "Screened", "Selected", "Top", "Errors")
	for _, r := range runs {
		t.Row(r.ID, r.StartedAt.Local().Format("2006-01-02 15:04"), r.Profile, r.Scheme, r.Universe,
			r.AsOf.Format(models.DateLayout), fmt.Sprintf("%d", r.Screened), fmt.Sprintf("%d", r.Selected),
			r.TopSymbol, fmt.Sprintf("%d", r.ErrorCount))
	}
	return t.String()
}

// RenderRun renders everything known about a run.
func RenderRun(run *models.Run) string {
	parts := []string{RenderRunHeader(run), RenderResults(run)}
	if d := RenderDiscards(run); d != "" {
		parts = append(parts, d)
	}
	parts = append(parts, RenderErrors(run.Errors))
	return strings.Join(parts, "\n")
}

func renderClass(o models.ForwardOutcome) string {
	label := string(o.Classification)
	if o.PumpAndDump {
		label += " (P&D)"
	}
	if style, ok := classificationStyles[o.Classification]; ok {
		return style.Render(label)
	}
	return label
}

func signalList(b models.ScoreBreakdown) string {
	var names []string
	for _, s := range b.Signals {
		if s.Points > 0 {
			names = append(names, s.Signal)
		}
	}
	if b.CompositeBonus > 0 {
		names = append(names, "composite")
	}
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ",")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// DisplayError shows an error message
func DisplayError(err error) string {
	return errorStyle.Render(fmt.Sprintf("Error: %s", err.Error()))
}

// DisplaySuccess shows a success message
func DisplaySuccess(message string) string {
	return successStyle.Render(message)
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
