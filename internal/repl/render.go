package repl

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/martinemde/nanocode/agentloop"
)

const (
	maxSeparatorWidth  = 80
	argPreviewWidth    = 50
	resultPreviewWidth = 60
)

// previewKeys are preferred, in order, when picking the argument shown in a
// tool-call preview.
var previewKeys = []string{"path", "pat", "cmd"}

type styles struct {
	dim     lipgloss.Style
	bold    lipgloss.Style
	text    lipgloss.Style
	tool    lipgloss.Style
	warning lipgloss.Style
	failure lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		dim:     r.NewStyle().Faint(true),
		bold:    r.NewStyle().Bold(true),
		text:    r.NewStyle().Foreground(lipgloss.Color("6")),
		tool:    r.NewStyle().Foreground(lipgloss.Color("2")),
		warning: r.NewStyle().Foreground(lipgloss.Color("3")),
		failure: r.NewStyle().Foreground(lipgloss.Color("1")),
	}
}

// Renderer prints session events and REPL chrome to a writer.
type Renderer struct {
	out      io.Writer
	styles   styles
	markdown *glamour.TermRenderer
	width    int
}

// NewRenderer creates a renderer writing to out. width is the terminal width
// (0 when unknown). Markdown rendering is enabled only when tty is true.
func NewRenderer(out io.Writer, tty bool, width int) *Renderer {
	r := &Renderer{
		out:    out,
		styles: newStyles(lipgloss.NewRenderer(out)),
		width:  width,
	}
	if tty {
		if md, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(r.separatorWidth()),
		); err == nil {
			r.markdown = md
		}
	}
	return r
}

func (r *Renderer) separatorWidth() int {
	if r.width <= 0 || r.width > maxSeparatorWidth {
		return maxSeparatorWidth
	}
	return r.width
}

// Banner prints the startup line.
func (r *Renderer) Banner(model, backend, cwd string) {
	fmt.Fprintf(r.out, "%s | %s | %s\n\n",
		r.styles.bold.Render("nanocode"),
		r.styles.dim.Render(fmt.Sprintf("%s (%s)", model, backend)),
		r.styles.dim.Render(cwd),
	)
}

// Separator prints a horizontal rule.
func (r *Renderer) Separator() {
	fmt.Fprintln(r.out, r.styles.dim.Render(strings.Repeat("─", r.separatorWidth())))
}

// Prompt prints the input prompt.
func (r *Renderer) Prompt() {
	fmt.Fprint(r.out, r.styles.bold.Render("❯")+" ")
}

// Notice prints a one-line status message.
func (r *Renderer) Notice(msg string) {
	fmt.Fprintln(r.out, r.styles.tool.Render("⏺ "+msg))
}

// Info prints free text as is.
func (r *Renderer) Info(msg string) {
	fmt.Fprintln(r.out, msg)
}

// Error prints a turn-ending failure.
func (r *Renderer) Error(err error) {
	fmt.Fprintln(r.out, r.styles.failure.Render("⏺ Error: "+err.Error()))
}

// HandleEvent renders one session event. It is installed as the session's
// EventHandler.
func (r *Renderer) HandleEvent(e agentloop.SessionEvent) {
	switch e.Kind {
	case agentloop.EventAssistantText:
		r.assistantText(e.String("text"))
	case agentloop.EventToolCallStart:
		args, _ := e.Data["arguments"].(map[string]any)
		fmt.Fprintf(r.out, "\n%s%s\n",
			r.styles.tool.Render("⏺ "+toolTitle(e.String("tool_name"))),
			r.styles.dim.Render("("+argumentPreview(args)+")"),
		)
	case agentloop.EventToolCallOutputDelta:
		fmt.Fprintln(r.out, r.styles.dim.Render("  │ "+e.String("line")))
	case agentloop.EventToolCallEnd:
		preview := "  ⎿  " + resultPreview(e.String("output"))
		if isErr, _ := e.Data["is_error"].(bool); isErr {
			fmt.Fprintln(r.out, r.styles.failure.Render(preview))
		} else {
			fmt.Fprintln(r.out, r.styles.dim.Render(preview))
		}
	case agentloop.EventWarning, agentloop.EventLoopDetection:
		fmt.Fprintln(r.out, r.styles.warning.Render("⏺ "+e.String("message")))
	case agentloop.EventTurnLimit:
		fmt.Fprintln(r.out, r.styles.warning.Render(fmt.Sprintf("⏺ Stopped after %v tool rounds", e.Data["rounds"])))
	}
}

func (r *Renderer) assistantText(text string) {
	if r.markdown != nil {
		if rendered, err := r.markdown.Render(text); err == nil {
			fmt.Fprintf(r.out, "\n%s %s\n", r.styles.text.Render("⏺"), strings.TrimSpace(rendered))
			return
		}
	}
	fmt.Fprintf(r.out, "\n%s %s\n", r.styles.text.Render("⏺"), text)
}

func toolTitle(name string) string {
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

// argumentPreview shows one argument value, preferring previewKeys and
// falling back to the alphabetically first key.
func argumentPreview(args map[string]any) string {
	if len(args) == 0 {
		return ""
	}
	key := ""
	for _, k := range previewKeys {
		if _, ok := args[k]; ok {
			key = k
			break
		}
	}
	if key == "" {
		keys := make([]string, 0, len(args))
		for k := range args {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		key = keys[0]
	}
	value := strings.ReplaceAll(fmt.Sprint(args[key]), "\n", " ")
	return runewidth.Truncate(value, argPreviewWidth, "…")
}

// resultPreview shows the first line of output and how many lines follow.
func resultPreview(output string) string {
	lines := strings.Split(strings.TrimRight(output, "\n"), "\n")
	preview := runewidth.Truncate(lines[0], resultPreviewWidth, "…")
	if len(lines) > 1 {
		preview += fmt.Sprintf(" ... +%d lines", len(lines)-1)
	}
	return preview
}
