// Package tableau lists dashboard views through the Tableau REST API and
// builds their embed URLs.
package tableau

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// DefaultAPIVersion is the REST API version used when none is configured.
const DefaultAPIVersion = "3.21"

// View is a published view with its computed embed URL.
type View struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	WorkbookID string `json:"workbook_id"`
	ContentURL string `json:"content_url"`
	EmbedURL   string `json:"embed_url"`
}

// Client defines the Tableau operations used by the studio.
type Client interface {
	ListViews(ctx context.Context) ([]View, error)
}

// Config holds personal access token credentials for one site.
type Config struct {
	ServerURL   string
	Site        string
	TokenName   string
	TokenSecret string
	APIVersion  string
	CacheTTL    time.Duration
}

// StatusError is returned for an unexpected HTTP status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tableau: status %d: %s", e.StatusCode, e.Body)
}

// Option configures the Tableau client.
type Option func(*httpClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithRateLimit caps requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

type httpClient struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	nowFunc func() time.Time

	mu      sync.Mutex
	cached  []View
	expires time.Time
}

// NewClient creates a Tableau client. Views are cached for cfg.CacheTTL.
func NewClient(cfg Config, opts ...Option) Client {
	cfg.ServerURL = strings.TrimRight(cfg.ServerURL, "/")
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	c := &httpClient{
		cfg:     cfg,
		http:    &http.Client{Timeout: 30 * time.Second},
		nowFunc: time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// EmbedURL builds the embeddable URL for a view content path.
func EmbedURL(serverURL, site, contentURL string) string {
	base := strings.TrimRight(serverURL, "/")
	if site != "" {
		return fmt.Sprintf("%s/t/%s/views/%s?:showVizHome=no", base, site, contentURL)
	}
	return fmt.Sprintf("%s/views/%s?:showVizHome=no", base, contentURL)
}

// ViewPath turns a REST content URL ("Workbook/sheets/View") into the
// path used in browser URLs ("Workbook/View").
func ViewPath(contentURL string) string {
	return strings.Replace(contentURL, "/sheets/", "/", 1)
}

type session struct {
	token  string
	siteID string
}

func (c *httpClient) ListViews(ctx context.Context) ([]View, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cached != nil && c.nowFunc().Before(c.expires) {
		return append([]View(nil), c.cached...), nil
	}

	s, err := c.signIn(ctx)
	if err != nil {
		return nil, err
	}
	defer c.signOut(s)

	views, err := c.queryViews(ctx, s)
	if err != nil {
		return nil, err
	}

	if c.cfg.CacheTTL > 0 {
		c.cached = views
		c.expires = c.nowFunc().Add(c.cfg.CacheTTL)
	}
	return append([]View(nil), views...), nil
}

func (c *httpClient) apiURL(path string) string {
	return fmt.Sprintf("%s/api/%s%s", c.cfg.ServerURL, c.cfg.APIVersion, path)
}

func (c *httpClient) signIn(ctx context.Context) (session, error) {
	payload := map[string]any{
		"credentials": map[string]any{
			"personalAccessTokenName":   c.cfg.TokenName,
			"personalAccessTokenSecret": c.cfg.TokenSecret,
			"site":                      map[string]string{"contentUrl": c.cfg.Site},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return session{}, eris.Wrap(err, "tableau: marshal sign-in")
	}

	var out struct {
		Credentials struct {
			Token string `json:"token"`
			Site  struct {
				ID string `json:"id"`
			} `json:"site"`
		} `json:"credentials"`
	}
	if err := c.do(ctx, http.MethodPost, c.apiURL("/auth/signin"), "", body, &out); err != nil {
		return session{}, eris.Wrap(err, "tableau: sign in")
	}
	if out.Credentials.Token == "" {
		return session{}, eris.New("tableau: sign in returned no token")
	}
	return session{token: out.Credentials.Token, siteID: out.Credentials.Site.ID}, nil
}

func (c *httpClient) signOut(s session) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = c.do(ctx, http.MethodPost, c.apiURL("/auth/signout"), s.token, nil, nil)
}

type viewsPage struct {
	Pagination struct {
		PageNumber     string `json:"pageNumber"`
		PageSize       string `json:"pageSize"`
		TotalAvailable string `json:"totalAvailable"`
	} `json:"pagination"`
	Views struct {
		View []struct {
			ID         string `json:"id"`
			Name       string `json:"name"`
			ContentURL string `json:"contentUrl"`
			Workbook   struct {
				ID string `json:"id"`
			} `json:"workbook"`
		} `json:"view"`
	} `json:"views"`
}

const pageSize = 100

func (c *httpClient) queryViews(ctx context.Context, s session) ([]View, error) {
	views := []View{}
	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("pageSize", fmt.Sprint(pageSize))
		q.Set("pageNumber", fmt.Sprint(page))
		u := c.apiURL("/sites/"+url.PathEscape(s.siteID)+"/views") + "?" + q.Encode()

		var out viewsPage
		if err := c.do(ctx, http.MethodGet, u, s.token, nil, &out); err != nil {
			return nil, eris.Wrap(err, "tableau: list views")
		}
		for _, v := range out.Views.View {
			views = append(views, View{
				ID:         v.ID,
				Name:       v.Name,
				WorkbookID: v.Workbook.ID,
				ContentURL: v.ContentURL,
				EmbedURL:   EmbedURL(c.cfg.ServerURL, c.cfg.Site, ViewPath(v.ContentURL)),
			})
		}
		var total int
		_, _ = fmt.Sscan(out.Pagination.TotalAvailable, &total)
		if len(out.Views.View) < pageSize || len(views) >= total {
			return views, nil
		}
	}
}

func (c *httpClient) do(ctx context.Context, method, u, token string, body []byte, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "tableau: rate limit")
		}
	}

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return eris.Wrap(err, "tableau: create request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("X-Tableau-Auth", token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "tableau: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "tableau: read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return eris.Wrap(err, "tableau: unmarshal response")
	}
	return nil
}
