// Package output renders command results. On a terminal results are drawn as
// styled tables; when stdout is a pipe or file they are written as YAML so
// scripts can parse them.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// minCellWidth is the narrowest a column is squeezed to on small terminals.
const minCellWidth = 8

// Table is a rendered view of a result. Cells may contain ANSI styling.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
}

// Printer writes command results to w.
type Printer struct {
	w      io.Writer
	styled bool
	width  int
}

// NewPrinter returns a Printer that styles output when w is a terminal.
func NewPrinter(w io.Writer) *Printer {
	p := &Printer{w: w}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.styled = true
		if width, _, err := term.GetSize(int(f.Fd())); err == nil {
			p.width = width
		}
	}
	return p
}

// NewPlainPrinter returns a Printer that never styles output.
func NewPlainPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// NewStyledPrinter returns a Printer that always styles output, wrapping
// tables to width columns (0 = unlimited).
func NewStyledPrinter(w io.Writer, width int) *Printer {
	return &Printer{w: w, styled: true, width: width}
}

// Styled reports whether the Printer draws for a terminal.
func (p *Printer) Styled() bool {
	return p.styled
}

// Writer returns the underlying writer.
func (p *Printer) Writer() io.Writer {
	return p.w
}

// Render draws t on a terminal and writes v as YAML otherwise.
func (p *Printer) Render(t Table, v any) error {
	if !p.styled {
		return p.YAML(v)
	}
	_, err := io.WriteString(p.w, p.table(t))
	return err
}

// YAML writes v as a YAML document.
func (p *Printer) YAML(v any) error {
	enc := yaml.NewEncoder(p.w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return enc.Close()
}

// Successf prints a confirmation line.
func (p *Printer) Successf(format string, args ...any) {
	p.line(Secondary, "✓ ", format, args...)
}

// Warnf prints a warning line.
func (p *Printer) Warnf(format string, args ...any) {
	p.line(Warning, "! ", format, args...)
}

// Infof prints an informational line.
func (p *Printer) Infof(format string, args ...any) {
	p.line(Muted, "", format, args...)
}

func (p *Printer) line(style lipgloss.Style, prefix, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if p.styled {
		msg = style.Render(prefix + msg)
	}
	fmt.Fprintln(p.w, msg)
}

// State returns state styled for a terminal, or as-is otherwise.
func (p *Printer) State(state string) string {
	if !p.styled {
		return state
	}
	return StateStyle(state).Render(state)
}

// table lays out t with columns padded to their widest cell. When the
// Printer knows the terminal width, the widest columns are truncated until
// the table fits.
func (p *Printer) table(t Table) string {
	widths := make([]int, len(t.Headers))
	for i, h := range t.Headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range t.Rows {
		for i := range min(len(row), len(widths)) {
			widths[i] = max(widths[i], lipgloss.Width(row[i]))
		}
	}
	p.fit(widths)

	var sb strings.Builder
	if t.Title != "" {
		sb.WriteString(Title.Render(t.Title))
		sb.WriteString("\n\n")
	}

	headers := make([]string, len(t.Headers))
	for i, h := range t.Headers {
		headers[i] = Header.Render(pad(TruncateANSI(h, widths[i]), widths[i]))
	}
	sb.WriteString(strings.TrimRight(strings.Join(headers, "  "), " "))
	sb.WriteString("\n")

	rule := make([]string, len(widths))
	for i, w := range widths {
		rule[i] = strings.Repeat("─", w)
	}
	sb.WriteString(Rule.Render(strings.Join(rule, "  ")))
	sb.WriteString("\n")

	for _, row := range t.Rows {
		cells := make([]string, len(widths))
		for i := range widths {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			cells[i] = pad(TruncateANSI(cell, widths[i]), widths[i])
		}
		sb.WriteString(strings.TrimRight(strings.Join(cells, "  "), " "))
		sb.WriteString("\n")
	}

	return sb.String()
}

// fit shrinks the widest column one cell at a time until the table fits the
// terminal or every column is at minCellWidth.
func (p *Printer) fit(widths []int) {
	if p.width <= 0 || len(widths) == 0 {
		return
	}
	total := func() int {
		sum := 2 * (len(widths) - 1)
		for _, w := range widths {
			sum += w
		}
		return sum
	}
	for total() > p.width {
		widest := 0
		for i, w := range widths {
			if w > widths[widest] {
				widest = i
			}
		}
		if widths[widest] <= minCellWidth {
			return
		}
		widths[widest]--
	}
}

// pad right-pads s with spaces to width visual columns.
func pad(s string, width int) string {
	if gap := width - lipgloss.Width(s); gap > 0 {
		return s + strings.Repeat(" ", gap)
	}
	return s
}

// TruncateANSI truncates a string to maxWidth visual columns, adding "..." if truncated.
// ANSI escape codes and wide characters are accounted for.
func TruncateANSI(s string, maxWidth int) string {
	if maxWidth <= 3 {
		if lipgloss.Width(s) <= maxWidth {
			return s
		}
		return "..."
	}
	if lipgloss.Width(s) <= maxWidth {
		return s
	}
	// ansi.Truncate includes the tail in the final width calculation
	return ansi.Truncate(s, maxWidth, "...")
}
