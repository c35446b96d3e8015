package highlight

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/Aman-CERP/trialscope/internal/verify"
)

// Terminal palette.
const (
	ColorAccent   = "154"
	ColorGray     = "245"
	ColorDarkGray = "238"
	ColorRed      = "196"
	ColorYellow   = "220"
)

// Styles holds the styles used to render answers and issues.
type Styles struct {
	Critical   lipgloss.Style
	Warning    lipgloss.Style
	Info       lipgloss.Style
	Overridden lipgloss.Style
	Header     lipgloss.Style
	Label      lipgloss.Style
}

// DefaultStyles returns the colour styles.
func DefaultStyles() Styles {
	return Styles{
		Critical:   lipgloss.NewStyle().Bold(true).Underline(true).Foreground(lipgloss.Color(ColorRed)),
		Warning:    lipgloss.NewStyle().Underline(true).Foreground(lipgloss.Color(ColorYellow)),
		Info:       lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
		Overridden: lipgloss.NewStyle().Strikethrough(true).Foreground(lipgloss.Color(ColorDarkGray)),
		Header:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorAccent)),
		Label:      lipgloss.NewStyle().Foreground(lipgloss.Color(ColorGray)),
	}
}

// NoColorStyles returns unstyled components for pipes and NO_COLOR.
func NoColorStyles() Styles {
	return Styles{
		Critical:   lipgloss.NewStyle(),
		Warning:    lipgloss.NewStyle(),
		Info:       lipgloss.NewStyle(),
		Overridden: lipgloss.NewStyle(),
		Header:     lipgloss.NewStyle(),
		Label:      lipgloss.NewStyle(),
	}
}

// Renderer renders segments and issue lists. Without colour, issue
// segments are wrapped in markers so they stay visible.
type Renderer struct {
	styles Styles
	color  bool
}

// NewRenderer picks colour when w is a terminal and NO_COLOR is unset.
func NewRenderer(w io.Writer, noColor bool) *Renderer {
	color := !noColor && IsTTY(w) && !DetectNoColor()
	if color {
		return &Renderer{styles: DefaultStyles(), color: true}
	}
	return &Renderer{styles: NoColorStyles()}
}

// IsTTY reports whether w is a terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// DetectNoColor reports whether NO_COLOR is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// Render returns the answer with issue segments styled. Plain output marks
// an issue as [[text]] with its 1-based position in issues, or ~~text~~
// when overridden.
func (r *Renderer) Render(segments []Segment, issues []verify.Issue) string {
	var sb strings.Builder
	for _, seg := range segments {
		if seg.Issue == nil {
			sb.WriteString(seg.Text)
			continue
		}
		if r.color {
			sb.WriteString(r.style(seg.Issue).Render(seg.Text))
			continue
		}
		if seg.Issue.Overridden {
			sb.WriteString("~~" + seg.Text + "~~")
			continue
		}
		fmt.Fprintf(&sb, "[[%s]]%s", seg.Text, footnote(seg.Issue, issues))
	}
	return sb.String()
}

// Issues renders one line per issue.
func (r *Renderer) Issues(issues []verify.Issue) string {
	if len(issues) == 0 {
		return r.styles.Header.Render("No issues found")
	}
	var sb strings.Builder
	sb.WriteString(r.styles.Header.Render(fmt.Sprintf("%d issue(s)", len(issues))))
	sb.WriteByte('\n')
	for i := range issues {
		is := &issues[i]
		label := fmt.Sprintf("%d. [%s]", i+1, is.Severity)
		line := fmt.Sprintf("%q: %s", is.Claim, is.Explanation)
		if is.SourceData != "" {
			line += " (" + is.SourceData + ")"
		}
		if is.Overridden {
			line += " [overridden]"
		}
		sb.WriteString(r.style(is).Render(label))
		sb.WriteByte(' ')
		sb.WriteString(line)
		sb.WriteString(r.styles.Label.Render(fmt.Sprintf("  id=%s source=%s", is.ID, is.Source)))
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (r *Renderer) style(is *verify.Issue) lipgloss.Style {
	if is.Overridden {
		return r.styles.Overridden
	}
	switch is.Severity {
	case verify.SeverityCritical:
		return r.styles.Critical
	case verify.SeverityWarning:
		return r.styles.Warning
	default:
		return r.styles.Info
	}
}

func footnote(is *verify.Issue, issues []verify.Issue) string {
	for i := range issues {
		if issues[i].ID == is.ID {
			return fmt.Sprintf("^%d", i+1)
		}
	}
	return ""
}
