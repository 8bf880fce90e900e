package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/analytics-studio/internal/events"
	"github.com/sells-group/analytics-studio/internal/executor"
	"github.com/sells-group/analytics-studio/internal/play"
	"github.com/sells-group/analytics-studio/internal/rationale"
	"github.com/sells-group/analytics-studio/internal/source"
	"github.com/sells-group/analytics-studio/internal/store"
	"github.com/sells-group/analytics-studio/internal/studio"
	"github.com/sells-group/analytics-studio/pkg/tableau"
)

// studioEnv holds the store, plays and integrations needed by the
// run/approve/serve commands.
type studioEnv struct {
	Store   store.Store
	Service *studio.Service

	closers []func()
}

// Close releases everything initStudio opened, newest first.
func (e *studioEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// initStore opens and migrates the configured store.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initStudio validates cfg for mode and wires the studio service. Callers
// should defer env.Close().
func initStudio(ctx context.Context, mode string) (*studioEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	env := &studioEnv{}
	ok := false
	defer func() {
		if !ok {
			env.Close()
		}
	}()

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	env.Store = st
	env.closers = append(env.closers, func() { _ = st.Close() })

	dec, closeDec, err := rationale.New(cfg)
	if err != nil {
		return nil, eris.Wrap(err, "init rationale")
	}
	env.closers = append(env.closers, func() {
		if err := closeDec(); err != nil {
			zap.L().Warn("close rationale cache", zap.Error(err))
		}
	})

	src, closeSrc, err := source.New(ctx, cfg, time.Now)
	if err != nil {
		return nil, eris.Wrap(err, "init source")
	}
	env.closers = append(env.closers, closeSrc)

	reg, err := play.NewBuiltinRegistry(cfg, play.Deps{Source: src, Decorator: dec, Now: time.Now})
	if err != nil {
		return nil, eris.Wrap(err, "register plays")
	}

	ex, err := executor.FromConfig(cfg)
	if err != nil {
		return nil, eris.Wrap(err, "init executor")
	}

	pub := events.New(cfg.Events)
	env.closers = append(env.closers, func() {
		if err := pub.Close(); err != nil {
			zap.L().Warn("close event publisher", zap.Error(err))
		}
	})

	env.Service = studio.New(reg, st, ex, pub)
	zap.L().Debug("studio initialized",
		zap.String("store", cfg.Store.Driver),
		zap.String("source", cfg.Source.Kind),
		zap.String("executor", cfg.Executor.Mode),
		zap.Int("plays", len(reg.IDs())),
	)
	ok = true
	return env, nil
}

// initTableau returns a Tableau client, or nil when credentials are absent.
func initTableau() tableau.Client {
	tc := cfg.Tableau
	if !tc.Configured() {
		return nil
	}
	return tableau.NewClient(tableau.Config{
		ServerURL:   tc.ServerURL,
		Site:        tc.Site,
		TokenName:   tc.TokenName,
		TokenSecret: tc.TokenSecret,
		APIVersion:  tc.APIVersion,
		CacheTTL:    time.Duration(tc.CacheTTLSecs) * time.Second,
	})
}
