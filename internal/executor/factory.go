package executor

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/analytics-studio/internal/config"
	"github.com/sells-group/analytics-studio/internal/resilience"
	"github.com/sells-group/analytics-studio/pkg/notion"
	"github.com/sells-group/analytics-studio/pkg/salesforce"
	"github.com/sells-group/analytics-studio/pkg/slack"
)

// FromConfig builds an Executor from cfg. Live mode connects every
// configured integration; integrations without credentials are left out and
// their actions resolve to skipped.
func FromConfig(cfg *config.Config, extra ...Option) (*Executor, error) {
	retry, breaker := resilience.FromConfig(cfg.Resilience)
	opts := []Option{
		WithConcurrency(cfg.Executor.Concurrency),
		WithResilience(retry, resilience.NewServiceBreakers(breaker)),
	}

	mode := Mode(cfg.Executor.Mode)
	if mode == ModeLive {
		if cfg.Salesforce.Configured() {
			sf, err := salesforce.Connect(salesforce.Credentials{
				LoginURL: cfg.Salesforce.LoginURL,
				Username: cfg.Salesforce.Username,
				ClientID: cfg.Salesforce.ClientID,
				KeyPath:  cfg.Salesforce.KeyPath,
			}, salesforce.WithRateLimit(cfg.Salesforce.RateLimit))
			if err != nil {
				return nil, eris.Wrap(err, "executor: connect salesforce")
			}
			opts = append(opts, WithSalesforce(sf))
		} else {
			zap.L().Warn("executor: salesforce not configured, tasks will be skipped")
		}

		if cfg.Slack.BotToken != "" {
			opts = append(opts, WithSlack(slack.NewClient(cfg.Slack.BotToken, slack.WithBaseURL(cfg.Slack.BaseURL)), cfg.Slack.DefaultChannel))
		} else {
			zap.L().Warn("executor: slack not configured, messages will be skipped")
		}

		if cfg.Notion.Token != "" && cfg.Notion.ActionDB != "" {
			opts = append(opts, WithNotion(notion.NewClient(cfg.Notion.Token), cfg.Notion.ActionDB))
		} else {
			zap.L().Warn("executor: notion not configured, planning actions will be skipped")
		}
	}

	return New(mode, append(opts, extra...)...)
}
