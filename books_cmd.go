package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/truncate"
	"github.com/pagecast/pagecast/internal/origin"
	"github.com/pagecast/pagecast/internal/session"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	booksPage int

	booksCmd = &cobra.Command{
		Use:     "books",
		Short:   "List recently accessed books",
		Example: paragraph("pagecast books\npagecast books --page 2"),
		Args:    cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			s, err := loadSettings(viper.GetViper())
			if err != nil {
				return err
			}
			ctx := context.Background()
			a, err := newApp(ctx, s)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			list, err := a.session.Recent(ctx, booksPage)
			if err != nil {
				return errors.New(origin.Message(err))
			}
			lastRead := map[string]time.Time{}
			positions, err := a.store.Positions(ctx, 0)
			if err != nil {
				return fmt.Errorf("reading positions: %w", err)
			}
			for _, p := range positions {
				lastRead[p.BookID] = p.UpdatedAt
			}
			printBooks(os.Stdout, a.session, list, booksPage, lastRead)
			return nil
		},
	}
)

func init() {
	booksCmd.Flags().IntVarP(&booksPage, "page", "p", 1, "list page")
}

func printBooks(w io.Writer, sess *session.Session, list *origin.BookList, page int, lastRead map[string]time.Time) {
	if len(list.Books) == 0 {
		fmt.Fprintln(w, "No books yet.")
		return
	}
	for _, b := range list.Books {
		id := strconv.FormatInt(b.ID, 10)
		md := sess.Metadata(&origin.Book{ID: b.ID, Metadata: b.Metadata})
		read := "never"
		if t, ok := lastRead[id]; ok {
			read = humanize.Time(t)
		}
		fmt.Fprintf(w, "%8s  %-48s  %s\n", id, truncate.StringWithTail(md.Title, 48, "…"), read)
	}
	if list.TotalPages > 1 {
		fmt.Fprintf(w, "\npage %d of %d\n", page, list.TotalPages)
	}
}
