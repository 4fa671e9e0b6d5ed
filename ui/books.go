package ui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/truncate"
	"github.com/pagecast/pagecast/internal/origin"
	"github.com/pagecast/pagecast/internal/session"
	"github.com/sahilm/fuzzy"
)

type (
	recentLoadedMsg struct {
		list     *origin.BookList
		page     int
		lastRead map[string]time.Time
	}
	recentErrMsg struct{ err error }
)

type bookItem struct {
	id       string
	meta     session.Metadata
	lastRead time.Time
}

func (b bookItem) filterValue() string {
	return b.id + " " + b.meta.Title
}

type booksModel struct {
	common *commonModel

	items    []bookItem
	filtered []bookItem
	cursor   int
	page     int
	total    int
	loading  bool
	err      error

	filterInput textinput.Model
}

func newBooksModel(common *commonModel) booksModel {
	fi := textinput.New()
	fi.Prompt = "Find: "
	fi.PromptStyle = lipgloss.NewStyle().Foreground(fuchsia)
	fi.CharLimit = 64
	return booksModel{
		common:      common,
		page:        1,
		filterInput: fi,
	}
}

func (m *booksModel) setSize(w, _ int) {
	m.filterInput.Width = max(0, w-len(m.filterInput.Prompt)-4)
}

func (m booksModel) filtering() bool {
	return m.filterInput.Focused()
}

// load fetches a page of the recent books list.
func (m *booksModel) load(page int) tea.Cmd {
	m.loading = true
	m.err = nil
	return loadRecentCmd(m.common, page)
}

func (m booksModel) selectedID() (string, bool) {
	if m.cursor < 0 || m.cursor >= len(m.filtered) {
		return "", false
	}
	return m.filtered[m.cursor].id, true
}

func (m *booksModel) setItems(msg recentLoadedMsg) {
	sess := m.common.deps.Session
	m.items = m.items[:0]
	for _, b := range msg.list.Books {
		id := strconv.FormatInt(b.ID, 10)
		m.items = append(m.items, bookItem{
			id:       id,
			meta:     sess.Metadata(&origin.Book{ID: b.ID, Metadata: b.Metadata}),
			lastRead: msg.lastRead[id],
		})
	}
	m.page = msg.page
	m.total = msg.list.TotalPages
	m.applyFilter()
}

func (m *booksModel) applyFilter() {
	m.cursor = 0
	term := strings.TrimSpace(m.filterInput.Value())
	if term == "" {
		m.filtered = append([]bookItem(nil), m.items...)
		return
	}
	targets := make([]string, len(m.items))
	for i, it := range m.items {
		targets[i] = it.filterValue()
	}
	m.filtered = m.filtered[:0]
	for _, r := range fuzzy.Find(term, targets) {
		m.filtered = append(m.filtered, m.items[r.Index])
	}
}

func (m booksModel) update(msg tea.Msg) (booksModel, tea.Cmd) {
	switch msg := msg.(type) {
	case recentLoadedMsg:
		m.loading = false
		m.setItems(msg)
		return m, nil

	case recentErrMsg:
		m.loading = false
		m.err = msg.err
		log.Error("loading recent books", "err", msg.err)
		return m, nil

	case tea.KeyMsg:
		if m.filtering() {
			switch msg.String() {
			case "esc":
				m.filterInput.SetValue("")
				m.filterInput.Blur()
				m.applyFilter()
				return m, nil
			case "enter", "tab":
				m.filterInput.Blur()
				return m, nil
			}
			var cmd tea.Cmd
			m.filterInput, cmd = m.filterInput.Update(msg)
			m.applyFilter()
			return m, cmd
		}

		switch msg.String() {
		case "k", "up":
			if m.cursor > 0 {
				m.cursor--
			}
		case "j", "down":
			if m.cursor < len(m.filtered)-1 {
				m.cursor++
			}
		case "n", "right":
			if !m.loading && m.page < m.total {
				return m, m.load(m.page + 1)
			}
		case "p", "left":
			if !m.loading && m.page > 1 {
				return m, m.load(m.page - 1)
			}
		case "r":
			return m, m.load(m.page)
		case "/":
			m.filterInput.Focus()
			return m, textinput.Blink
		}
	}
	return m, nil
}

func (m booksModel) View() string {
	var b strings.Builder
	b.WriteString("\n" + logoView() + "  " + titleStyle("Recent books") + "\n\n")

	if m.filtering() || m.filterInput.Value() != "" {
		b.WriteString(m.filterInput.View() + "\n\n")
	}

	switch {
	case m.err != nil:
		b.WriteString(errorTitleStyle("ERROR") + " " + origin.Message(m.err) + "\n")
	case m.loading && len(m.items) == 0:
		b.WriteString(dimStyle("Loading…") + "\n")
	case len(m.filtered) == 0:
		b.WriteString(dimStyle("No books yet.") + "\n")
	default:
		for i, it := range m.filtered {
			b.WriteString(m.itemView(it, i == m.cursor) + "\n")
		}
	}

	if m.total > 1 {
		fmt.Fprintf(&b, "\n%s\n", dimStyle(fmt.Sprintf("page %d of %d", m.page, m.total)))
	}
	b.WriteString("\n" + subtleStyle("enter: open • /: find • n/p: page • r: refresh • esc: back"))
	return indent(b.String(), 2) + "\n"
}

func (m booksModel) itemView(it bookItem, selected bool) string {
	title := it.meta.Title
	if m.common.width > 0 {
		title = truncate.StringWithTail(title, uint(max(0, m.common.width-24)), ellipsis) //nolint:gosec
	}
	note := "#" + it.id
	if !it.lastRead.IsZero() {
		note += " · read " + humanize.Time(it.lastRead)
	}
	if selected {
		return selectedStyle("│ "+title) + "\n" + selectedStyle("│ ") + dimStyle(note)
	}
	return "  " + title + "\n  " + subtleStyle(note)
}

func loadRecentCmd(common *commonModel, page int) tea.Cmd {
	deps := common.deps
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()

		list, err := deps.Session.Recent(ctx, page)
		if err != nil {
			return recentErrMsg{err}
		}
		lastRead := map[string]time.Time{}
		if deps.Store != nil {
			positions, err := deps.Store.Positions(ctx, 0)
			if err != nil {
				log.Warn("reading positions", "err", err)
			}
			for _, p := range positions {
				lastRead[p.BookID] = p.UpdatedAt
			}
		}
		return recentLoadedMsg{list: list, page: page, lastRead: lastRead}
	}
}
