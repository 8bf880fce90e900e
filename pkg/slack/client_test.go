package slack

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient("xoxb-test", WithBaseURL(srv.URL), WithRateLimit(0))
}

func TestPostMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat.postMessage", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "#sales-alerts", r.FormValue("channel"))
		assert.Equal(t, "Deal OPP-1 is at risk", r.FormValue("text"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"channel":"C0123456789","ts":"1700000000.000100"}`))
	})

	resp, err := c.PostMessage(context.Background(), "sales-alerts", "Deal OPP-1 is at risk")
	require.NoError(t, err)
	assert.Equal(t, "C0123456789", resp.Channel)
	assert.Equal(t, "1700000000.000100", resp.TS)
}

func TestPostMessage_APIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":false,"error":"channel_not_found"}`))
	})

	_, err := c.PostMessage(context.Background(), "nope", "x")
	require.ErrorContains(t, err, "channel_not_found")
	assert.Equal(t, 0, StatusCode(err))
}

func TestPostMessage_HTTPStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"rate limited", http.StatusTooManyRequests},
		{"unavailable", http.StatusServiceUnavailable},
		{"forbidden", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(tt.status)
			})
			_, err := c.PostMessage(context.Background(), "#x", "x")
			require.Error(t, err)
			assert.Equal(t, tt.status, StatusCode(err))
		})
	}
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, 429, StatusCode(eris.Wrap(slack.SlackErrorResponse{Err: "ratelimited"}, "slack: post")))
	assert.Equal(t, 502, StatusCode(slack.StatusCodeError{Code: 502, Status: "502 Bad Gateway"}))
	assert.Equal(t, 429, StatusCode(&slack.RateLimitedError{}))
	assert.Equal(t, 0, StatusCode(errors.New("boom")))
}

func TestWithRateLimit(t *testing.T) {
	c := NewClient("t").(*botClient)
	require.NotNil(t, c.limiter)

	c = NewClient("t", WithRateLimit(4)).(*botClient)
	assert.Equal(t, 4, c.limiter.Burst())

	c = NewClient("t", WithRateLimit(0)).(*botClient)
	assert.Nil(t, c.limiter)
}

func TestPostMessage_Throttled(t *testing.T) {
	c := NewClient("t", WithBaseURL("http://127.0.0.1:1"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.PostMessage(ctx, "#x", "x")
	assert.ErrorContains(t, err, "slack: throttle")
}

func TestNormalizeChannel(t *testing.T) {
	for in, want := range map[string]string{
		"sales-alerts":     "#sales-alerts",
		" #finance ":       "#finance",
		"@dana":            "@dana",
		"C0123456789":      "C0123456789",
		"":                 "",
		"customer-success": "#customer-success",
	} {
		assert.Equal(t, want, NormalizeChannel(in), in)
	}
}
