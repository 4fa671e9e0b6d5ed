package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/log"
	"github.com/pagecast/pagecast/internal/origin"
	"github.com/pagecast/pagecast/internal/session"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// analysisMarkdown describes a book's metadata and analysis as markdown.
func analysisMarkdown(book *origin.Book, md session.Metadata) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", md.Title)
	fmt.Fprintf(&b, "%s\n\n", md.Description)
	if md.Image != "" {
		fmt.Fprintf(&b, "Cover: <%s>\n\n", md.Image)
	}

	a := book.Analysis
	if a == nil {
		b.WriteString("_No analysis available for this book._\n")
		return b.String()
	}

	b.WriteString("## Analysis\n\n")
	if a.Language != "" {
		fmt.Fprintf(&b, "- **Language:** %s\n", languageName(a.Language))
	}
	if a.Sentiment != "" {
		fmt.Fprintf(&b, "- **Sentiment:** %s\n", a.Sentiment)
	}
	if len(a.Characters) > 0 {
		fmt.Fprintf(&b, "- **Characters:** %s\n", strings.Join(a.Characters, ", "))
	}
	if a.Summary != "" {
		fmt.Fprintf(&b, "\n### Summary\n\n%s\n", a.Summary)
	}
	return b.String()
}

// languageName turns a language code such as "en" or "pt-BR" into its
// English name. Unknown codes are returned unchanged.
func languageName(code string) string {
	tag, err := language.Parse(strings.TrimSpace(code))
	if err != nil {
		return code
	}
	if name := display.English.Tags().Name(tag); name != "" {
		return name
	}
	return code
}

func glamourStyle(style string) glamour.TermRendererOption {
	if _, ok := styles.DefaultStyles[style]; ok {
		return glamour.WithStandardStyle(style)
	}
	return glamour.WithStylePath(style)
}

func glamourRender(m pagerModel, markdown string) (string, error) {
	if !m.common.cfg.GlamourEnabled {
		return markdown, nil
	}

	width := m.viewport.Width
	if m.common.cfg.GlamourMaxWidth > 0 {
		width = min(int(m.common.cfg.GlamourMaxWidth), width) //nolint:gosec
	}
	r, err := glamour.NewTermRenderer(
		glamourStyle(m.common.cfg.GlamourStyle),
		glamour.WithWordWrap(max(0, width)),
	)
	if err != nil {
		return "", fmt.Errorf("error creating glamour renderer: %w", err)
	}
	out, err := r.Render(markdown)
	if err != nil {
		return "", fmt.Errorf("error rendering markdown: %w", err)
	}
	return out, nil
}

func renderAnalysis(m pagerModel, md session.Metadata) tea.Cmd {
	book := m.book
	return func() tea.Msg {
		s, err := glamourRender(m, analysisMarkdown(book, md))
		if err != nil {
			log.Error("error rendering analysis", "error", err)
			return analysisRenderedMsg(analysisMarkdown(book, md))
		}
		return analysisRenderedMsg(s)
	}
}
