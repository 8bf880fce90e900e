// Package salesforce reads opportunities from and writes follow-up tasks to
// a Salesforce org over the REST API.
package salesforce

import (
	"context"
	"os"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client is the slice of the Salesforce REST API the studio needs.
type Client interface {
	Query(ctx context.Context, soql string, out any) error
	InsertOne(ctx context.Context, sObjectName string, record map[string]any) (string, error)
	DescribeSObject(ctx context.Context, name string) (*SObjectDescription, error)
}

// Option configures an org client.
type Option func(*orgClient)

// WithRateLimit caps API calls per second. Unset or non-positive means
// unthrottled.
func WithRateLimit(rps float64) Option {
	return func(c *orgClient) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
	}
}

// orgClient adapts go-salesforce, which takes no context; ctx only bounds
// the throttle wait.
type orgClient struct {
	org     *salesforce.Salesforce
	limiter *rate.Limiter
}

// NewClient wraps an initialized go-salesforce session.
func NewClient(org *salesforce.Salesforce, opts ...Option) Client {
	c := &orgClient{org: org}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Credentials configure the JWT bearer flow for a connected app.
type Credentials struct {
	LoginURL string
	Username string
	ClientID string
	KeyPath  string
}

// Connect signs in with the JWT bearer flow.
func Connect(creds Credentials, opts ...Option) (Client, error) {
	if creds.ClientID == "" {
		return nil, eris.New("sf: client id is required")
	}
	key, err := os.ReadFile(creds.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "sf: read JWT private key")
	}
	org, err := salesforce.Init(salesforce.Creds{
		Domain:         creds.LoginURL,
		Username:       creds.Username,
		ConsumerKey:    creds.ClientID,
		ConsumerRSAPem: string(key),
	})
	if err != nil {
		return nil, eris.Wrapf(err, "sf: sign in as %s", creds.Username)
	}
	return NewClient(org, opts...), nil
}

func (c *orgClient) throttle(ctx context.Context) error {
	if c.limiter == nil {
		return ctx.Err()
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "sf: throttle")
	}
	return nil
}

func (c *orgClient) Query(ctx context.Context, soql string, out any) error {
	if err := c.throttle(ctx); err != nil {
		return err
	}
	if err := c.org.Query(soql, out); err != nil {
		return eris.Wrap(err, "sf: query")
	}
	return nil
}

func (c *orgClient) InsertOne(ctx context.Context, sObjectName string, record map[string]any) (string, error) {
	if err := c.throttle(ctx); err != nil {
		return "", err
	}
	res, err := c.org.InsertOne(sObjectName, record)
	if err != nil {
		return "", eris.Wrapf(err, "sf: insert %s", sObjectName)
	}
	if !res.Success {
		return "", eris.Errorf("sf: insert %s rejected: %v", sObjectName, res.Errors)
	}
	return res.Id, nil
}
