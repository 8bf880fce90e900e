package source

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/analytics-studio/internal/config"
	"github.com/sells-group/analytics-studio/internal/db"
	"github.com/sells-group/analytics-studio/pkg/salesforce"
)

// New builds the source selected by cfg.Source. The returned close func
// releases any connection the source holds and is never nil.
func New(ctx context.Context, cfg *config.Config, now func() time.Time) (Source, func(), error) {
	noop := func() {}
	sc := cfg.Source
	switch sc.Kind {
	case "", "demo":
		return Demo{Now: now}, noop, nil
	case "csv":
		return CSVSource{Path: sc.Path}, noop, nil
	case "xlsx":
		return XLSXSource{Path: sc.Path, Sheet: sc.Sheet}, noop, nil
	case "salesforce":
		if !cfg.Salesforce.Configured() {
			return nil, noop, eris.New("source: salesforce credentials are not configured")
		}
		client, err := salesforce.Connect(salesforce.Credentials{
			LoginURL: cfg.Salesforce.LoginURL,
			Username: cfg.Salesforce.Username,
			ClientID: cfg.Salesforce.ClientID,
			KeyPath:  cfg.Salesforce.KeyPath,
		}, salesforce.WithRateLimit(cfg.Salesforce.RateLimit))
		if err != nil {
			return nil, noop, eris.Wrap(err, "source: connect salesforce")
		}
		return SalesforceSource{Client: client, Limit: sc.Limit, Now: now}, noop, nil
	case "postgres":
		url := sc.DatabaseURL
		if url == "" {
			url = cfg.Store.DatabaseURL
		}
		pool, err := db.Connect(ctx, url, db.PoolOptions{MaxConns: 4, MinConns: 1})
		if err != nil {
			return nil, noop, eris.Wrap(err, "source: connect postgres")
		}
		return PostgresSource{Pool: pool, Table: sc.Table, Limit: sc.Limit}, pool.Close, nil
	default:
		return nil, noop, eris.Errorf("source: unknown kind %q", sc.Kind)
	}
}
