package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/songscout/internal/classify"
	"github.com/sells-group/songscout/internal/discovery"
	"github.com/sells-group/songscout/internal/extract"
	"github.com/sells-group/songscout/internal/store"
	"github.com/sells-group/songscout/pkg/anthropic"
	"github.com/sells-group/songscout/pkg/reddit"
)

// serviceEnv holds the initialized store and pipeline for commands
// that run discovery.
type serviceEnv struct {
	Store   store.Store
	Service *discovery.Service
}

// Close releases resources held by the environment.
func (se *serviceEnv) Close() {
	if se.Store != nil {
		_ = se.Store.Close()
	}
}

// initStore opens the configured database backend and migrates it.
func initStore(ctx context.Context) (store.Store, error) {
	var st store.Store
	var err error

	switch cfg.Store.Driver {
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	case "sqlite", "":
		st, err = store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initService sets up the store, the forum and extraction clients, and
// the discovery service. Callers should defer env.Close().
func initService(ctx context.Context) (*serviceEnv, error) {
	if err := cfg.ValidateCredentials(); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	source := reddit.NewClient(reddit.Options{
		UserAgent:    cfg.Reddit.UserAgent,
		ClientID:     cfg.Reddit.ClientID,
		ClientSecret: cfg.Reddit.ClientSecret,
	})
	fetcher := classify.NewFetcher(source, cfg.Reddit.Subreddits)

	llm := anthropic.NewClient(cfg.Anthropic.Key)
	extractor := extract.NewExtractor(llm, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens)

	return &serviceEnv{
		Store:   st,
		Service: discovery.New(fetcher, extractor, st),
	}, nil
}
