package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/pagecast/pagecast/internal/audio"
	"github.com/pagecast/pagecast/internal/cache"
	"github.com/pagecast/pagecast/internal/origin"
	"github.com/pagecast/pagecast/internal/playback"
	"github.com/pagecast/pagecast/internal/session"
	"github.com/pagecast/pagecast/internal/store"
)

// app wires the client services together.
type app struct {
	store      *store.Store
	books      *cache.BookCache
	client     *origin.Client
	session    *session.Session
	device     audio.Device
	controller *playback.Controller

	// onPage, when set, is called after a page change has been saved.
	onPage func(bookID string, page int)
}

func newApp(ctx context.Context, s settings) (*app, error) {
	st, err := store.Open(s.StorePath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a := &app{store: st}
	if err := st.EnsureSchema(); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	clientID, err := st.ClientID(ctx)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("client id: %w", err)
	}

	if a.books, err = cache.NewBookCache(s.Cache); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("open cache: %w", err)
	}

	a.client, err = origin.NewClient(origin.Config{
		BaseURL:           s.BackendURL,
		RelayURL:          s.RelayURL,
		ClientID:          clientID,
		Timeout:           s.Timeout,
		RequestsPerMinute: s.RequestsPerMinute,
		Burst:             origin.DefaultConfig().Burst,
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.session = session.New(a.client, a.books, s.ListLimit)
	a.device = audio.Open(s.Audio)
	a.controller = playback.NewController(a.client, a.device, playback.Config{FetchTimeout: s.Timeout})
	a.controller.OnPageChange(a.pageChanged)

	log.Debug("client ready", "client", clientID, "backend", s.BackendURL, "relay", s.RelayURL)
	return a, nil
}

// pageChanged runs with the controller locked.
func (a *app) pageChanged(bookID string, page int) {
	if err := a.store.SavePosition(context.Background(), bookID, page); err != nil {
		log.Warn("saving position", "book", bookID, "page", page, "err", err)
	}
	if a.onPage != nil {
		a.onPage(bookID, page)
	}
}

func (a *app) Close() error {
	var errs []error
	if a.controller != nil {
		errs = append(errs, a.controller.Close())
	}
	if a.device != nil {
		errs = append(errs, a.device.Close())
	}
	if a.books != nil {
		errs = append(errs, a.books.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}
