// Package slack posts action alerts to Slack channels through slack-go.
package slack

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/slack-go/slack"
	"golang.org/x/time/rate"
)

// Client is the slice of the Slack Web API the executor needs.
type Client interface {
	PostMessage(ctx context.Context, channel, text string) (*PostMessageResponse, error)
}

// PostMessageResponse identifies a posted message.
type PostMessageResponse struct {
	Channel string
	TS      string
}

// Option configures a Client.
type Option func(*settings)

type settings struct {
	apiURL  string
	http    *http.Client
	limiter *rate.Limiter
}

// WithBaseURL points the client at another Web API root (tests, proxies).
// Empty keeps the slack-go default.
func WithBaseURL(url string) Option {
	return func(s *settings) {
		if url != "" {
			s.apiURL = strings.TrimRight(url, "/") + "/"
		}
	}
}

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *settings) {
		s.http = hc
	}
}

// WithRateLimit overrides the default of one message per second. Zero or
// less disables throttling.
func WithRateLimit(rps float64) Option {
	return func(s *settings) {
		if rps <= 0 {
			s.limiter = nil
			return
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
	}
}

type botClient struct {
	api     *slack.Client
	limiter *rate.Limiter
}

// NewClient returns a Client for a bot token.
func NewClient(token string, opts ...Option) Client {
	s := &settings{
		http:    &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(1, 1),
	}
	for _, o := range opts {
		o(s)
	}
	apiOpts := []slack.Option{slack.OptionHTTPClient(s.http)}
	if s.apiURL != "" {
		apiOpts = append(apiOpts, slack.OptionAPIURL(s.apiURL))
	}
	return &botClient{api: slack.New(token, apiOpts...), limiter: s.limiter}
}

// NormalizeChannel adds the leading # to a bare channel name. Channel ids
// (C..., G..., D...) and names that already carry a prefix pass through.
func NormalizeChannel(channel string) string {
	channel = strings.TrimSpace(channel)
	if channel == "" || strings.HasPrefix(channel, "#") || strings.HasPrefix(channel, "@") {
		return channel
	}
	if len(channel) >= 9 && strings.ToUpper(channel) == channel && strings.ContainsAny(channel[:1], "CGD") {
		return channel
	}
	return "#" + channel
}

func (c *botClient) PostMessage(ctx context.Context, channel, text string) (*PostMessageResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "slack: throttle")
		}
	}
	ch, ts, err := c.api.PostMessageContext(ctx, NormalizeChannel(channel), slack.MsgOptionText(text, false))
	if err != nil {
		return nil, eris.Wrapf(err, "slack: post to %s", channel)
	}
	return &PostMessageResponse{Channel: ch, TS: ts}, nil
}

// StatusCode maps a Slack failure to an HTTP status: the response status,
// 429 for rate limiting (HTTP or the "ratelimited" API error), or 0.
func StatusCode(err error) int {
	var limited *slack.RateLimitedError
	if errors.As(err, &limited) {
		return http.StatusTooManyRequests
	}
	var status slack.StatusCodeError
	if errors.As(err, &status) {
		return status.Code
	}
	var apiErr slack.SlackErrorResponse
	if errors.As(err, &apiErr) && apiErr.Err == "ratelimited" {
		return http.StatusTooManyRequests
	}
	return 0
}
