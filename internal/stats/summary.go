package stats

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// SummaryConfig holds run details shown beside the recorded outcomes.
type SummaryConfig struct {
	RunID       string
	MaxWorkers  int
	LogRoot     string
	MetricsAddr string
	MetricsFile string
}

// maxListedFailures bounds the failing tests listed in the summary.
const maxListedFailures = 10

// FormatExitSummary renders the summary for display at program exit.
func FormatExitSummary(s Summary, cfg SummaryConfig) string {
	var sections []string

	sections = append(sections, titleStyle.Render("tork-master exit summary"))

	sections = append(sections, rows(
		row("Run ID", cfg.RunID),
		row("Run Duration", FormatDuration(s.Duration)),
		row("Max Workers", fmt.Sprintf("%d", cfg.MaxWorkers)),
		row("Peak Active Workers", fmt.Sprintf("%d", s.PeakActive)),
		row("Log Root", cfg.LogRoot),
	))

	sections = append(sections, sectionHeaderStyle.Render("Workers"))
	sections = append(sections, rows(
		row("Spawned", FormatNumber(s.Spawned)),
		row("Completed", FormatNumber(s.Completed)),
		lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render("Passed"), valueGoodStyle.Render(FormatNumber(s.Passed))),
		lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render("Failed"), failedStyle(s.Failed).Render(FormatNumber(s.Failed))),
		row("Spawn Failures", FormatNumber(s.SpawnFailures)),
		row("Untracked Exits", FormatNumber(s.Untracked)),
	))

	if s.Completed > 0 {
		sections = append(sections, sectionHeaderStyle.Render("Worker Run Time"))
		sections = append(sections, rows(
			row("P50 (median)", FormatMs(s.RuntimeP50)),
			row("P95", FormatMs(s.RuntimeP95)),
			row("P99", FormatMs(s.RuntimeP99)),
			row("Max", fmt.Sprintf("%s (%s)", FormatMs(s.RuntimeMax), s.Slowest.TestFile)),
		))
	}

	if len(s.ExitCodes) > 0 {
		codes := make([]int, 0, len(s.ExitCodes))
		for code := range s.ExitCodes {
			codes = append(codes, code)
		}
		sort.Ints(codes)

		lines := make([]string, 0, len(codes))
		for _, code := range codes {
			lines = append(lines, fmt.Sprintf("%3d %-12s %d", code, exitCodeLabel(code), s.ExitCodes[code]))
		}
		sections = append(sections, sectionHeaderStyle.Render("Exit Codes"))
		sections = append(sections, strings.Join(lines, "\n"))
	}

	if len(s.FailedTests) > 0 {
		listed := s.FailedTests
		if len(listed) > maxListedFailures {
			listed = listed[:maxListedFailures]
		}
		lines := make([]string, 0, len(listed)+1)
		for _, f := range listed {
			lines = append(lines, valueBadStyle.Render("FAIL")+" "+f)
		}
		if more := len(s.FailedTests) - len(listed); more > 0 {
			lines = append(lines, fmt.Sprintf("... and %d more", more))
		}
		sections = append(sections, sectionHeaderStyle.Render("Failed Tests"))
		sections = append(sections, strings.Join(lines, "\n"))
	}

	var footer []string
	if cfg.MetricsAddr != "" {
		footer = append(footer, fmt.Sprintf("Metrics endpoint was: http://%s/metrics", cfg.MetricsAddr))
	}
	if cfg.MetricsFile != "" {
		footer = append(footer, "Metrics snapshot: "+cfg.MetricsFile)
	}
	if len(footer) > 0 {
		sections = append(sections, footerStyle.MarginTop(1).Render(strings.Join(footer, "\n")))
	}

	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, sections...)) + "\n"
}

func row(label, value string) string {
	return labelStyle.Render(label) + value
}

func rows(lines ...string) string {
	return strings.Join(lines, "\n")
}

func failedStyle(failed int64) lipgloss.Style {
	if failed > 0 {
		return valueBadStyle
	}
	return valueGoodStyle
}

// exitCodeLabel returns a human-readable label for common exit codes.
func exitCodeLabel(code int) string {
	switch code {
	case 0:
		return "(pass)"
	case 1:
		return "(fail)"
	case 130:
		return "(SIGINT)"
	case 137:
		return "(SIGKILL)"
	case 143:
		return "(SIGTERM)"
	default:
		return ""
	}
}

// FormatDuration formats a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatNumber formats a number with K/M suffixes for readability.
func FormatNumber(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// FormatMs formats a duration in milliseconds, or seconds past a minute.
func FormatMs(d time.Duration) string {
	if d >= time.Minute {
		return fmt.Sprintf("%.1f s", d.Seconds())
	}
	ms := d.Milliseconds()
	if ms == 0 && d > 0 {
		return fmt.Sprintf("%d µs", d.Microseconds())
	}
	return fmt.Sprintf("%d ms", ms)
}
