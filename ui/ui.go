// Package ui provides the terminal reader for pagecast.
package ui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/log"
	"github.com/muesli/termenv"
	"github.com/pagecast/pagecast/internal/origin"
	"github.com/pagecast/pagecast/internal/paginate"
	"github.com/pagecast/pagecast/internal/playback"
	"github.com/pagecast/pagecast/internal/session"
	"github.com/pagecast/pagecast/internal/store"
)

const (
	defaultStatusTimeout = 3 * time.Second
	loadTimeout          = 30 * time.Second
	ellipsis             = "…"
)

// Deps are the services the UI drives.
type Deps struct {
	Session    *session.Session
	Controller *playback.Controller
	Store      *store.Store // optional; enables resuming and last-read times
}

// NewProgram returns a new Tea program.
func NewProgram(cfg Config, deps Deps) *tea.Program {
	log.Debug(
		"Starting pagecast",
		"page_size", cfg.PageSize,
		"glamour", cfg.GlamourEnabled,
	)
	opts := []tea.ProgramOption{tea.WithAltScreen()}
	if cfg.EnableMouse {
		opts = append(opts, tea.WithMouseCellMotion())
	}
	return tea.NewProgram(newModel(cfg, deps), opts...)
}

type errMsg struct{ err error }

func (e errMsg) Error() string { return e.err.Error() }

type (
	bookLoadedMsg struct {
		book      *origin.Book
		localPath string
		startPage int
	}
	bookErrMsg  struct{ err error }
	playbackMsg struct{ ev playback.Event }
)

// state is the top-level application state.
type state int

const (
	stateInput state = iota
	stateDocument
	stateBooks
)

func (s state) String() string {
	return map[state]string{
		stateInput:    "entering book id",
		stateDocument: "showing document",
		stateBooks:    "showing recent books",
	}[s]
}

// Common stuff we'll need to access in all models.
type commonModel struct {
	cfg    Config
	deps   Deps
	width  int
	height int
}

func (c commonModel) pageSize() int {
	if c.cfg.PageSize > 0 {
		return c.cfg.PageSize
	}
	return paginate.DefaultPageSize
}

func (c commonModel) statusTimeout() time.Duration {
	if c.cfg.StatusTimeout > 0 {
		return c.cfg.StatusTimeout
	}
	return defaultStatusTimeout
}

type model struct {
	common   *commonModel
	state    state
	fatalErr error

	input    textinput.Model
	inputErr string
	loading  bool
	spinner  spinner.Model

	// Sub-models
	pager pagerModel
	books booksModel

	lastErr error // last playback error surfaced in the status bar
}

func newModel(cfg Config, deps Deps) tea.Model {
	switch cfg.GlamourStyle {
	case "", styles.AutoStyle:
		if termenv.HasDarkBackground() {
			cfg.GlamourStyle = styles.DarkStyle
		} else {
			cfg.GlamourStyle = styles.LightStyle
		}
	}

	common := commonModel{cfg: cfg, deps: deps}

	ti := textinput.New()
	ti.Prompt = "Book ID: "
	ti.Placeholder = "e.g. 1342"
	ti.CharLimit = 19
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Line
	sp.Style = spinnerStyle

	return model{
		common:  &common,
		state:   stateInput,
		input:   ti,
		spinner: sp,
		pager:   newPagerModel(&common),
		books:   newBooksModel(&common),
	}
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, m.spinner.Tick}
	if path := strings.TrimSpace(m.common.cfg.Path); path != "" {
		cmds = append(cmds, openCmd(m.common, path))
	}
	return tea.Batch(cmds...)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	// If there's been an error, any key exits
	if m.fatalErr != nil {
		if _, ok := msg.(tea.KeyMsg); ok {
			return m, tea.Quit
		}
	}

	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		switch m.state {
		case stateInput:
			return m.updateInput(msg)
		case stateDocument:
			if cmd, handled := m.updateDocumentKeys(msg); handled {
				return m, cmd
			}
		case stateBooks:
			return m.updateBooks(msg)
		}

	case tea.WindowSizeMsg:
		m.common.width = msg.Width
		m.common.height = msg.Height
		m.input.Width = max(0, msg.Width-len(m.input.Prompt)-4)
		m.pager.setSize(msg.Width, msg.Height)
		m.books.setSize(msg.Width, msg.Height)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.pager.spinner = m.spinner.View()
		return m, cmd

	case bookLoadedMsg:
		m.loading = false
		m.inputErr = ""
		return m, m.openBook(msg)

	case bookErrMsg:
		m.loading = false
		log.Error("loading book", "err", msg.err)
		if m.state == stateDocument {
			return m, m.pager.showStatusMessage(pagerStatusMessage{origin.Message(msg.err), true})
		}
		m.inputErr = origin.Message(msg.err)
		return m, nil

	case playbackMsg:
		return m, m.dispatch(msg.ev)

	case reloadMsg:
		if path := m.pager.localPath; path != "" && m.state == stateDocument {
			return m, tea.Batch(reloadFileCmd(m.common, path, m.pager.page), watchFile(m.pager.watcher, path))
		}
		return m, nil

	case statusMessageTimeoutMsg:
		if msg.id == m.pager.statusID && m.pager.statusMessage.isError &&
			m.pager.playback.State == playback.StateError {
			cmds = append(cmds, m.dispatch(playback.ErrorDismissed{}))
		}

	case recentLoadedMsg, recentErrMsg:
		var cmd tea.Cmd
		m.books, cmd = m.books.update(msg)
		return m, cmd

	case errMsg:
		m.fatalErr = msg
		return m, nil
	}

	if m.state == stateDocument {
		var cmd tea.Cmd
		m.pager, cmd = m.pager.update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		if m.pager.book != nil {
			m.state = stateDocument
			m.input.Blur()
			return m, nil
		}
		return m, tea.Quit
	case "tab":
		m.input.Blur()
		m.state = stateBooks
		return m, m.books.load(1)
	case "enter":
		id := strings.TrimSpace(m.input.Value())
		if _, err := origin.ParseBookID(id); err != nil {
			m.inputErr = "Please enter a valid book ID."
			return m, nil
		}
		m.inputErr = ""
		m.loading = true
		return m, loadBookCmd(m.common, id)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *model) updateDocumentKeys(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.String() {
	case "q":
		return tea.Quit, true
	case "esc":
		if m.pager.showHelp {
			m.pager.toggleHelp()
			return nil, true
		}
		m.state = stateInput
		m.input.SetValue("")
		m.input.Focus()
		return textinput.Blink, true
	case " ":
		return m.togglePlayback(), true
	case "n", "right":
		return m.goToPage(m.pager.page + 1), true
	case "p", "left":
		return m.goToPage(m.pager.page - 1), true
	case "g":
		return m.goToPage(1), true
	case "G":
		return m.goToPage(m.pager.total), true
	case "b":
		m.state = stateBooks
		return m.books.load(1), true
	}
	return nil, false
}

func (m model) updateBooks(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if !m.books.filtering() {
		switch msg.String() {
		case "q":
			return m, tea.Quit
		case "esc":
			if m.pager.book != nil {
				m.state = stateDocument
				return m, nil
			}
			m.state = stateInput
			m.input.Focus()
			return m, textinput.Blink
		case "enter":
			if id, ok := m.books.selectedID(); ok {
				m.state = stateDocument
				return m, loadBookCmd(m.common, id)
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.books, cmd = m.books.update(msg)
	return m, cmd
}

// openBook shows a loaded book and hands remote books to the controller.
func (m *model) openBook(msg bookLoadedMsg) tea.Cmd {
	deps := m.common.deps
	meta := deps.Session.Metadata(msg.book)
	total := paginate.TotalPages(msg.book.Content, m.common.pageSize())
	m.state = stateDocument
	m.input.Blur()

	if msg.localPath != "" {
		// Keep the page when a watched file is reloaded.
		reload := m.pager.book != nil && m.pager.localPath == msg.localPath
		m.pager.setBook(msg.book, meta, msg.startPage, msg.localPath)
		cmds := []tea.Cmd{m.dispatch(playback.BookLoaded{})}
		if !reload {
			m.pager.initWatcher()
			cmds = append(cmds, watchFile(m.pager.watcher, msg.localPath))
		}
		return tea.Batch(cmds...)
	}

	if m.pager.localPath != "" {
		m.pager.unwatchFile()
	}
	m.pager.setBook(msg.book, meta, msg.startPage, "")
	return m.dispatch(playback.BookLoaded{
		BookID:     deps.Session.BookID(),
		TotalPages: total,
		StartPage:  msg.startPage,
	})
}

func (m *model) togglePlayback() tea.Cmd {
	if m.pager.book == nil {
		return nil
	}
	if m.pager.localPath != "" {
		return m.pager.showStatusMessage(pagerStatusMessage{"Audio is not available for local files.", true})
	}
	if m.pager.playback.State == playback.StatePlaying {
		return m.dispatch(playback.PauseRequested{})
	}
	return m.dispatch(playback.PlayRequested{})
}

// goToPage moves the reader to page. Playback follows the reader: if audio
// was running it restarts on the new page.
func (m *model) goToPage(page int) tea.Cmd {
	if m.pager.book == nil || page < 1 || page > m.pager.total || page == m.pager.page {
		return nil
	}
	if m.pager.localPath != "" {
		m.pager.setPage(page)
		return nil
	}
	s := m.pager.playback.State
	wasActive := s == playback.StatePlaying || s == playback.StateLoading
	cmds := []tea.Cmd{m.dispatch(playback.PageSelected{Page: page})}
	if wasActive {
		cmds = append(cmds, m.dispatch(playback.PlayRequested{}))
	}
	return tea.Batch(cmds...)
}

// dispatch applies ev to the controller, syncs the pager with the result and
// wraps the follow-up work as a tea.Cmd.
func (m *model) dispatch(ev playback.Event) tea.Cmd {
	ctl := m.common.deps.Controller
	next := ctl.Handle(ev)
	snap := ctl.Snapshot()
	m.pager.playback = snap

	var cmds []tea.Cmd
	if snap.BookID != "" && snap.Page > 0 && snap.Page != m.pager.page {
		m.pager.setPage(snap.Page)
	}
	if snap.LastError != nil && !errors.Is(snap.LastError, m.lastErr) {
		cmds = append(cmds, m.pager.showStatusMessage(pagerStatusMessage{snap.Message, true}))
	}
	m.lastErr = snap.LastError

	if next != nil {
		cmds = append(cmds, func() tea.Msg {
			return playbackMsg{ev: next()}
		})
	}
	return tea.Batch(cmds...)
}

func (m model) View() string {
	if m.fatalErr != nil {
		return errorView(m.fatalErr, true)
	}

	switch m.state {
	case stateDocument:
		return m.pager.View()
	case stateBooks:
		return m.books.View()
	default:
		return m.inputView()
	}
}

func (m model) inputView() string {
	var b strings.Builder
	b.WriteString("\n" + indent(logoView(), 2) + "\n\n")
	b.WriteString(indent(m.input.View(), 2) + "\n\n")
	switch {
	case m.loading:
		b.WriteString(indent(m.spinner.View()+" "+dimStyle("Loading book…"), 2))
	case m.inputErr != "":
		b.WriteString(indent(errorTitleStyle("ERROR")+" "+m.inputErr, 2))
	default:
		b.WriteString(indent(subtleStyle("enter: open • tab: recent books • esc: quit"), 2))
	}
	return b.String() + "\n"
}

func errorView(err error, fatal bool) string {
	exitMsg := "press any key to "
	if fatal {
		exitMsg += "exit"
	} else {
		exitMsg += "return"
	}
	s := fmt.Sprintf("%s\n\n%v\n\n%s",
		errorTitleStyle(" ERROR "),
		err,
		subtleStyle(exitMsg),
	)
	return "\n" + indent(s, 3)
}

// COMMANDS

// openCmd opens path as a local file if it exists, otherwise as a book id.
func openCmd(common *commonModel, path string) tea.Cmd {
	if _, err := os.Stat(path); err == nil {
		return reloadFileCmd(common, path, 1)
	}
	return loadBookCmd(common, path)
}

func loadBookCmd(common *commonModel, id string) tea.Cmd {
	deps := common.deps
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()

		book, err := deps.Session.Load(ctx, id)
		if err != nil {
			return bookErrMsg{err}
		}
		start := 1
		if deps.Store != nil {
			pos, ok, err := deps.Store.Position(ctx, deps.Session.BookID())
			if err != nil {
				log.Warn("reading position", "book", id, "err", err)
			} else if ok {
				start = pos.Page
			}
		}
		return bookLoadedMsg{book: book, startPage: start}
	}
}

func reloadFileCmd(common *commonModel, path string, page int) tea.Cmd {
	deps := common.deps
	return func() tea.Msg {
		book, err := deps.Session.LoadFile(path)
		if err != nil {
			return bookErrMsg{err}
		}
		return bookLoadedMsg{book: book, localPath: path, startPage: page}
	}
}

// ETC

// indent a multi-line string by n spaces.
func indent(s string, n int) string {
	pad := strings.Repeat(" ", n)
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = pad + l
		}
	}
	return strings.Join(lines, "\n")
}
