package cmd

import (
	"context"
	"net/http"

	"github.com/bookshelf-tools/bookenrich/internal/config"
	"github.com/bookshelf-tools/bookenrich/internal/enrich"
	"github.com/bookshelf-tools/bookenrich/internal/notion"
	"github.com/bookshelf-tools/bookenrich/internal/sources"
	"github.com/bookshelf-tools/bookenrich/internal/store"
)

// newHTTPClient builds the one client every adapter shares.
func newHTTPClient(cfg *config.Config) *http.Client {
	return &http.Client{Timeout: cfg.Timeout}
}

func newSources(ctx context.Context, cfg *config.Config, client *http.Client) (sources.Source, []sources.Source, error) {
	prefs := sources.Preferences{Publishers: cfg.Publishers, Language: cfg.Language}

	page := sources.NewGoodreads(client, sources.GoodreadsConfig{
		UserAgent:  cfg.UserAgent,
		Delay:      cfg.ScrapeDelay,
		RetryDelay: cfg.RetryDelay,
	})
	gb, err := sources.NewGoogleBooks(ctx, client, sources.GoogleBooksConfig{
		APIKey:       cfg.GoogleBooksAPIKey,
		LangRestrict: cfg.Language,
		Preferences:  prefs,
	})
	if err != nil {
		return nil, nil, err
	}
	ol := sources.NewOpenLibrary(client, sources.OpenLibraryConfig{
		UserAgent:   cfg.UserAgent,
		Preferences: prefs,
	})
	return page, []sources.Source{gb, ol}, nil
}

func newStore(cfg *config.Config, client *http.Client) store.Store {
	cols := store.DefaultColumns()
	cols.URL = cfg.URLProperty
	cols.Refresh = cfg.RefreshProperty
	return store.NewNotion(notion.NewClient(client, cfg.Token), cfg.DatabaseID, cols, store.NotionOptions{All: cfg.All})
}

// newEngine wires sources around st; st may be nil for store-less lookups.
func newEngine(ctx context.Context, cfg *config.Config, client *http.Client, st store.Store) (*enrich.Engine, error) {
	page, apis, err := newSources(ctx, cfg, client)
	if err != nil {
		return nil, err
	}
	return enrich.New(st, page, apis, enrich.Config{
		Force:        cfg.Force,
		RecentWindow: cfg.RecentWindow,
		ScanLimit:    cfg.ScanLimit,
	}), nil
}
