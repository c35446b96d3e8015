// Package output prints CLI results: status lines, search results, facet
// counts and progress.
package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Aman-CERP/trialscope/internal/trial"
)

// Writer provides formatted output for the CLI.
type Writer struct {
	out      io.Writer
	useColor bool

	success lipgloss.Style
	warning lipgloss.Style
	failure lipgloss.Style
	title   lipgloss.Style
	dim     lipgloss.Style
}

// New creates a Writer. Styles are applied only when color is set.
func New(out io.Writer, color bool) *Writer {
	return &Writer{
		out:      out,
		useColor: color,
		success:  lipgloss.NewStyle().Foreground(lipgloss.Color("154")),
		warning:  lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
		failure:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		title:    lipgloss.NewStyle().Bold(true),
		dim:      lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	}
}

func (w *Writer) style(s lipgloss.Style, text string) string {
	if !w.useColor {
		return text
	}
	return s.Render(text)
}

// Status prints a message with a leading marker, or indented without one.
func (w *Writer) Status(marker, msg string) {
	if marker != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", marker, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Status(w.style(w.success, "✓"), fmt.Sprintf(format, args...))
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Status(w.style(w.warning, "!"), fmt.Sprintf(format, args...))
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Status(w.style(w.failure, "✗"), fmt.Sprintf(format, args...))
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// Text prints pre-rendered text followed by a newline.
func (w *Writer) Text(text string) {
	_, _ = fmt.Fprintln(w.out, text)
}

// Header prints a bold section title.
func (w *Writer) Header(title string) {
	_, _ = fmt.Fprintln(w.out, w.style(w.title, title))
}

// Code prints an indented block, e.g. a request body.
func (w *Writer) Code(content string) {
	_, _ = fmt.Fprintln(w.out)
	for _, line := range strings.Split(content, "\n") {
		_, _ = fmt.Fprintf(w.out, "  %s\n", line)
	}
	_, _ = fmt.Fprintln(w.out)
}

// Trials prints one block per ranked trial:
//
//	1. NCT00000001  Pembrolizumab in Melanoma
//	   PHASE3 | RECRUITING | Merck | n=500 | relevance 92
//	   Phase matches filter; High quality data
func (w *Writer) Trials(trials []trial.ScoredTrial) {
	if len(trials) == 0 {
		w.Status("", "No clinical trials found.")
		return
	}
	for i := range trials {
		t := &trials[i]
		_, _ = fmt.Fprintf(w.out, "%2d. %s  %s\n", i+1, w.style(w.title, t.NCTID), t.BriefTitle)

		var facts []string
		if t.Phase != "" {
			facts = append(facts, string(t.Phase))
		}
		if t.Status != "" {
			facts = append(facts, string(t.Status))
		}
		if s := t.SponsorName(); s != "" {
			facts = append(facts, s)
		}
		if t.Enrollment > 0 {
			facts = append(facts, fmt.Sprintf("n=%d", t.Enrollment))
		}
		facts = append(facts, fmt.Sprintf("relevance %d", t.RelevanceScore))
		_, _ = fmt.Fprintf(w.out, "    %s\n", strings.Join(facts, " | "))

		if len(t.MatchReasons) > 0 {
			_, _ = fmt.Fprintf(w.out, "    %s\n", w.style(w.dim, strings.Join(t.MatchReasons, "; ")))
		}
	}
}

// Facets prints aggregation buckets as "label: key (count), ...".
func (w *Writer) Facets(aggs trial.Aggregations) {
	for _, facet := range []struct {
		label   string
		buckets []trial.Bucket
	}{
		{"Phase", aggs.Phases},
		{"Status", aggs.Statuses},
		{"Sponsor", aggs.Sponsors},
	} {
		if len(facet.buckets) == 0 {
			continue
		}
		parts := make([]string, len(facet.buckets))
		for i, b := range facet.buckets {
			parts[i] = fmt.Sprintf("%s (%d)", b.Key, b.Count)
		}
		_, _ = fmt.Fprintf(w.out, "%s: %s\n", w.style(w.dim, facet.label), strings.Join(parts, ", "))
	}
}

// Progress prints an in-place progress bar with message.
func (w *Writer) Progress(current, total int, msg string) {
	if total <= 0 {
		return
	}

	pct := float64(current) / float64(total) * 100
	_, _ = fmt.Fprintf(w.out, "\r[%s] %.0f%% %s", renderProgressBar(current, total, 30), pct, msg)
	if current >= total {
		_, _ = fmt.Fprintln(w.out)
	}
}

// renderProgressBar creates a text progress bar.
func renderProgressBar(current, total, width int) string {
	if total <= 0 {
		return strings.Repeat("░", width)
	}
	filled := min(max(int(float64(current)/float64(total)*float64(width)), 0), width)
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
