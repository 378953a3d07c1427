// Package observability provides formatted output for the operator CLI.
package observability

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/SelfScore/Self-Score-sub000/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted CLI output
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	for _, line := range lines {
		// Truncate long lines
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

func writeList(sb *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	sb.WriteString(heading + ":\n")
	count := min(len(items), maxItemsToShow)
	for i := 0; i < count; i++ {
		sb.WriteString(fmt.Sprintf("  • %s\n", items[i]))
	}
	if len(items) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(items)-maxItemsToShow))
	}
	sb.WriteString("\n")
}

// PrintFeedback outputs a summary of generated interview feedback.
func (p *Printer) PrintFeedback(fb *types.Feedback) {
	if fb == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Interview: %s\n", fb.InterviewID))
	sb.WriteString(fmt.Sprintf("Total:     %.1f\n", fb.TotalScore))
	sb.WriteString("\n")

	if len(fb.CategoryScores) > 0 {
		sb.WriteString("Categories:\n")
		for _, c := range fb.CategoryScores {
			sb.WriteString(fmt.Sprintf("  %-20s %5.1f\n", c.Name, c.Score))
		}
		sb.WriteString("\n")
	}

	writeList(&sb, "Strengths", fb.Strengths)
	writeList(&sb, "Areas for improvement", fb.AreasForImprovement)

	if fb.FinalAssessment != "" {
		sb.WriteString(fb.FinalAssessment)
	}

	p.printBox("INTERVIEW FEEDBACK", sb.String())
}

// PrintSweepReport outputs the result of abandoning stale interviews.
func (p *Printer) PrintSweepReport(mode types.Mode, cutoff time.Time, abandoned int) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Mode:      %s\n", mode))
	sb.WriteString(fmt.Sprintf("Idle since %s\n", cutoff.UTC().Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Abandoned: %d\n", abandoned))
	p.printBox("STALE INTERVIEW SWEEP", sb.String())
}

// PrintRetryReport outputs the result of regenerating missing feedback.
func (p *Printer) PrintRetryReport(succeeded int, failures map[uuid.UUID]error) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Succeeded: %d\n", succeeded))
	sb.WriteString(fmt.Sprintf("Failed:    %d\n", len(failures)))

	if len(failures) > 0 {
		ids := make([]uuid.UUID, 0, len(failures))
		for id := range failures {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

		lines := make([]string, 0, len(ids))
		for _, id := range ids {
			lines = append(lines, fmt.Sprintf("%s: %v", id.String()[:8], failures[id]))
		}
		sb.WriteString("\n")
		writeList(&sb, "Failures", lines)
	}

	p.printBox("FEEDBACK RETRY", sb.String())
}
