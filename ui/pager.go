package ui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	runewidth "github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/ansi"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"
	"github.com/muesli/termenv"
	"github.com/pagecast/pagecast/internal/origin"
	"github.com/pagecast/pagecast/internal/paginate"
	"github.com/pagecast/pagecast/internal/playback"
	"github.com/pagecast/pagecast/internal/session"
)

const statusBarHeight = 1

var pagerHelpHeight int

type (
	reloadMsg               struct{}
	analysisRenderedMsg     string
	statusMessageTimeoutMsg struct{ id int }
)

type pagerState int

const (
	pagerStateBrowse pagerState = iota
	pagerStateStatusMessage
)

type pagerStatusMessage struct {
	message string
	isError bool
}

type pagerModel struct {
	common   *commonModel
	viewport viewport.Model
	state    pagerState
	showHelp bool

	book      *origin.Book
	meta      session.Metadata
	localPath string
	page      int
	total     int

	showAnalysis bool
	analysis     string // rendered analysis panel

	statusMessage      pagerStatusMessage
	statusMessageTimer *time.Timer
	statusID           int

	playback playback.Snapshot
	spinner  string

	watcher *fsnotify.Watcher
}

func newPagerModel(common *commonModel) pagerModel {
	vp := viewport.New(0, 0)
	vp.YPosition = 0
	return pagerModel{
		common:   common,
		state:    pagerStateBrowse,
		viewport: vp,
	}
}

func (m *pagerModel) setSize(w, h int) {
	m.viewport.Width = w
	m.viewport.Height = h - statusBarHeight

	if m.showHelp {
		if pagerHelpHeight == 0 {
			pagerHelpHeight = strings.Count(m.helpView(), "\n")
		}
		m.viewport.Height -= (statusBarHeight + pagerHelpHeight)
	}
	m.render()
}

// setBook shows book at page. localPath is set for books read from disk.
func (m *pagerModel) setBook(book *origin.Book, meta session.Metadata, page int, localPath string) {
	m.book = book
	m.meta = meta
	m.localPath = localPath
	m.total = paginate.TotalPages(book.Content, m.common.pageSize())
	m.showAnalysis = false
	m.analysis = ""
	m.page = 0
	m.setPage(page)
}

// setPage moves to page, clamped to the book, and scrolls to its top.
func (m *pagerModel) setPage(page int) {
	page = paginate.Clamp(page, m.total)
	if page == m.page {
		return
	}
	m.page = page
	m.render()
	m.viewport.GotoTop()
}

func (m pagerModel) pageText() string {
	if m.book == nil {
		return ""
	}
	return paginate.Text(m.book.Content, m.common.pageSize(), m.page)
}

// render refreshes the viewport content for the current page or panel.
func (m *pagerModel) render() {
	if m.book == nil {
		m.viewport.SetContent("")
		return
	}
	if m.showAnalysis && m.analysis != "" {
		m.viewport.SetContent(m.analysis)
		return
	}
	m.viewport.SetContent(displayText(m.pageText(), m.viewport.Width))
}

// displayText expands tabs, replaces emphasis asterisks that would read as
// noise, and wraps to width.
func displayText(s string, width int) string {
	s = strings.ReplaceAll(s, "\t", "    ")
	s = strings.ReplaceAll(s, "*", "-")
	if width > 0 {
		s = wordwrap.String(s, width)
	}
	return s
}

func (m *pagerModel) toggleHelp() {
	m.showHelp = !m.showHelp
	m.setSize(m.common.width, m.common.height)
	if m.viewport.PastBottom() {
		m.viewport.GotoBottom()
	}
}

// showStatusMessage shows msg in the status bar until the timeout fires.
func (m *pagerModel) showStatusMessage(msg pagerStatusMessage) tea.Cmd {
	m.state = pagerStateStatusMessage
	m.statusMessage = msg
	m.statusID++
	if m.statusMessageTimer != nil {
		m.statusMessageTimer.Stop()
	}
	m.statusMessageTimer = time.NewTimer(m.common.statusTimeout())
	return waitForStatusMessageTimeout(m.statusID, m.statusMessageTimer)
}

func (m *pagerModel) initWatcher() {
	if m.watcher != nil {
		return
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		log.Error("creating file watcher", "err", err)
		return
	}
	m.watcher = w
}

func (m pagerModel) update(msg tea.Msg) (pagerModel, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "home":
			m.viewport.GotoTop()
		case "end":
			m.viewport.GotoBottom()
		case "c":
			text := m.pageText()
			// Copy using OSC 52
			termenv.Copy(text)
			// Copy using native system clipboard
			_ = clipboard.WriteAll(text)
			cmds = append(cmds, m.showStatusMessage(pagerStatusMessage{"Copied page", false}))
		case "a":
			if m.book == nil {
				break
			}
			m.showAnalysis = !m.showAnalysis
			if m.showAnalysis && m.analysis == "" {
				return m, renderAnalysis(m, m.meta)
			}
			m.render()
			m.viewport.GotoTop()
		case "?":
			m.toggleHelp()
		}

	case analysisRenderedMsg:
		m.analysis = string(msg)
		m.render()
		m.viewport.GotoTop()

	case tea.WindowSizeMsg:
		if m.showAnalysis && m.book != nil {
			m.analysis = ""
			cmds = append(cmds, renderAnalysis(m, m.meta))
		}

	case statusMessageTimeoutMsg:
		if msg.id == m.statusID {
			m.state = pagerStateBrowse
		}
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m pagerModel) View() string {
	var b strings.Builder
	fmt.Fprint(&b, m.viewport.View()+"\n")
	m.statusBarView(&b)
	if m.showHelp {
		fmt.Fprint(&b, "\n"+m.helpView())
	}
	return b.String()
}

// playbackNote describes the playback session for the status bar.
func (m pagerModel) playbackNote() string {
	if m.localPath != "" {
		return "local file"
	}
	switch m.playback.State {
	case playback.StateLoading:
		return m.spinner + " loading audio"
	case playback.StatePlaying:
		return "▶ playing"
	case playback.StatePaused:
		return "❚❚ paused"
	case playback.StateError:
		return "error"
	}
	return "space to play"
}

func (m pagerModel) statusBarView(b *strings.Builder) {
	logo := logoView()
	scrolled := min(1, max(0, m.viewport.ScrollPercent()))
	position := statusBarScrollPosStyle(fmt.Sprintf(" %3.f%% ", scrolled*100))
	help := statusBarHelpStyle(" ? Help ")
	room := m.common.width - ansi.PrintableRuneWidth(logo+position+help)

	style := statusBarNoteStyle
	text := fmt.Sprintf("%s · Page %d/%d · %s", m.meta.Title, m.page, m.total, m.playbackNote())
	if m.state == pagerStateStatusMessage {
		text = m.statusMessage.message
		style = statusBarMessageStyle
		if m.statusMessage.isError {
			style = statusBarErrorStyle
		}
	}
	note := truncate.StringWithTail(" "+text+" ", uint(max(0, room)), ellipsis) //nolint:gosec
	fill := strings.Repeat(" ", max(0, room-ansi.PrintableRuneWidth(note)))

	b.WriteString(logo + style(note+fill) + position + help)
}

// pagerBindings are the help rows, two columns each.
var pagerBindings = [][2]string{
	{"k/↑      up", "space   play/pause audio"},
	{"j/↓      down", "n/→     next page"},
	{"pgup     page up", "p/←     previous page"},
	{"f/pgdn   page down", "g/G     first/last page"},
	{"u        ½ page up", "a       toggle analysis"},
	{"d        ½ page down", "c       copy page"},
	{"esc      new book", "b       recent books"},
	{"q        quit", ""},
}

func (m pagerModel) helpView() string {
	rows := make([]string, 0, len(pagerBindings)+1)
	rows = append(rows, "")
	for _, r := range pagerBindings {
		row := "  " + r[0] + strings.Repeat(" ", max(1, 22-runewidth.StringWidth(r[0]))) + r[1]
		// pad to the full width so the background covers the line
		if m.common.width > 0 {
			row += strings.Repeat(" ", max(0, m.common.width-runewidth.StringWidth(row)))
		}
		rows = append(rows, row)
	}
	return helpViewStyle(strings.Join(rows, "\n"))
}

// COMMANDS

func waitForStatusMessageTimeout(id int, t *time.Timer) tea.Cmd {
	return func() tea.Msg {
		<-t.C
		return statusMessageTimeoutMsg{id: id}
	}
}

// watchFile waits for the next write to path.
func watchFile(w *fsnotify.Watcher, path string) tea.Cmd {
	if w == nil || path == "" {
		return nil
	}
	return func() tea.Msg {
		dir := filepath.Dir(path)
		if err := w.Add(dir); err != nil {
			log.Error("watching book file", "dir", dir, "err", err)
			return nil
		}
		log.Debug("watching book file", "path", path)

		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return nil
				}
				if ev.Name == path && (ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
					log.Debug("book file changed", "path", ev.Name, "op", ev.Op)
					return reloadMsg{}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return nil
				}
				log.Warn("book file watcher", "dir", dir, "err", err)
			}
		}
	}
}

func (m *pagerModel) unwatchFile() {
	if m.watcher == nil || m.localPath == "" {
		return
	}
	if err := m.watcher.Remove(filepath.Dir(m.localPath)); err != nil {
		log.Debug("unwatching book file", "path", m.localPath, "err", err)
	}
}
