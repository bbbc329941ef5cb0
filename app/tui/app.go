package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/noelzubin/notes_browser/document"
	"github.com/noelzubin/notes_browser/search"
	"github.com/noelzubin/notes_browser/search/bleve_indexer"
	"github.com/noelzubin/notes_browser/store"
	"github.com/noelzubin/notes_browser/syncer"
	"github.com/noelzubin/notes_browser/utils"
	"github.com/noelzubin/notes_browser/watcher"
)

// app holds the components shared by the UI and the subcommands.
type app struct {
	config *utils.Config
	store  *store.Store
	index  search.Index
	ctrl   *syncer.Controller
	engine *search.Engine
}

func newApp(config *utils.Config) (*app, error) {
	renderer := document.NewHTMLRenderer("")
	if config.Stylesheet != "" {
		var err error
		if renderer, err = document.NewHTMLRendererFromFile(config.Stylesheet); err != nil {
			return nil, err
		}
	}

	index, err := bleve_indexer.NewBleveIndexer(bleve_indexer.Options{
		Path:          config.IndexPath,
		TitleWeight:   config.TitleWeight,
		ContentWeight: config.TextWeight,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open search index: %w", err)
	}

	engine, err := search.NewEngine(index, search.Options{
		MinQueryLength: config.MinQueryLength,
		MaxResults:     config.MaxResults,
		ContentExcerpt: config.ContentExcerptLength,
		TitleExcerpt:   config.TitleExcerptLength,
		CacheSize:      config.QueryCacheSize,
	})
	if err != nil {
		_ = index.Close()
		return nil, err
	}

	st := store.New(config.RootPath, document.Parser{FallbackTitle: config.FallbackTitle}, renderer)
	ctrl := syncer.New(st, index, syncer.Options{
		Extensions:     config.Extensions,
		Recursive:      config.Recursive,
		OnParseFailure: syncer.Policy(config.OnParseFailure),
	})

	return &app{
		config: config,
		store:  st,
		index:  index,
		ctrl:   ctrl,
		engine: engine,
	}, nil
}

func (a *app) watcherOptions() watcher.Options {
	return watcher.Options{Extensions: a.config.Extensions, Recursive: a.config.Recursive}
}

// sync applies watcher events once the index is ready, until ctx is done.
func (a *app) sync(ctx context.Context, events <-chan watcher.Event) error {
	select {
	case <-a.index.Ready():
	case <-ctx.Done():
		return nil
	}
	err := a.ctrl.Run(ctx, events)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *app) Close() error {
	return a.index.Close()
}
