package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/muesli/reflow/wordwrap"
	"github.com/pagecast/pagecast/internal/origin"
	"github.com/pagecast/pagecast/internal/paginate"
	"github.com/pagecast/pagecast/internal/playback"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var (
	playAudio bool

	pageCmd = &cobra.Command{
		Use:   "page BOOK_ID [PAGE]",
		Short: "Print a page of a book",
		Long: paragraph(fmt.Sprintf("\nPrint a page of a book. With %s the page is read aloud and playback continues to the end of the book.",
			keyword("--play"))),
		Example: paragraph("pagecast page 1342\npagecast page 1342 3 --play"),
		Args:    cobra.RangeArgs(1, 2),
		RunE:    runPage,
	}
)

func init() {
	pageCmd.Flags().BoolVar(&playAudio, "play", false, "read the book aloud from this page")
}

func runPage(_ *cobra.Command, args []string) error {
	s, err := loadSettings(viper.GetViper())
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	a, err := newApp(ctx, s)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	book, err := a.session.Load(ctx, args[0])
	if err != nil {
		return errors.New(origin.Message(err))
	}
	id := a.session.BookID()
	total := paginate.TotalPages(book.Content, s.PageSize)

	page, err := startPage(ctx, a, id, args)
	if err != nil {
		return err
	}
	if page < 1 || page > total {
		return fmt.Errorf("page %d is out of range, %s has %d pages", page, a.session.Metadata(book).Title, total)
	}

	width := 0
	if term.IsTerminal(int(os.Stdout.Fd())) {
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
			width = min(w, 120)
		}
	}
	show := func(page int) {
		printPage(os.Stdout, book.Content, s.PageSize, page, total, width)
	}

	if !playAudio {
		show(page)
		return a.store.SavePosition(ctx, id, page) //nolint:wrapcheck
	}

	a.onPage = func(_ string, page int) { show(page) }
	events := make(chan playback.Event, 2)
	events <- playback.BookLoaded{BookID: id, TotalPages: total, StartPage: page}
	events <- playback.PlayRequested{}

	if err := a.controller.Run(ctx, events, playback.Finished); err != nil && !errors.Is(err, context.Canceled) {
		return err //nolint:wrapcheck
	}
	if snap := a.controller.Snapshot(); snap.LastError != nil {
		log.Error("playback failed", "book", id, "page", snap.Page, "err", snap.LastError)
		return errors.New(snap.Message)
	}
	return nil
}

// startPage is the page given on the command line, else the saved position,
// else the first page.
func startPage(ctx context.Context, a *app, id string, args []string) (int, error) {
	if len(args) == 2 {
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return 0, fmt.Errorf("invalid page %q", args[1])
		}
		return n, nil
	}
	pos, ok, err := a.store.Position(ctx, id)
	if err != nil {
		log.Warn("reading position", "book", id, "err", err)
	}
	if ok {
		return pos.Page, nil
	}
	return 1, nil
}

func printPage(w io.Writer, content string, pageSize, page, total, width int) {
	text := paginate.Text(content, pageSize, page)
	if width > 0 {
		text = wordwrap.String(text, width)
	}
	fmt.Fprintf(w, "%s\n\n%s\n", keyword(fmt.Sprintf("Page %d/%d", page, total)), text)
}
