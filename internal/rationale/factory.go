package rationale

import (
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/analytics-studio/internal/config"
	"github.com/sells-group/analytics-studio/internal/resilience"
	"github.com/sells-group/analytics-studio/pkg/anthropic"
	"github.com/sells-group/analytics-studio/pkg/openai"
)

// New builds the decorator selected by cfg.Rationale.Provider. A provider
// whose credentials are missing degrades to RuleBased with a warning. The
// returned close func releases the Redis cache, if any.
func New(cfg *config.Config) (Decorator, func() error, error) {
	noop := func() error { return nil }
	rc := cfg.Rationale

	var gen Generator
	switch rc.Provider {
	case "", "none":
		return RuleBased{}, noop, nil
	case "anthropic":
		if cfg.Anthropic.Key == "" {
			zap.L().Warn("rationale: anthropic.key not set, using rule-based rationales")
			return RuleBased{}, noop, nil
		}
		gen = NewAnthropicGenerator(anthropic.NewClient(cfg.Anthropic.Key, cfg.Anthropic.BaseURL),
			firstNonEmpty(rc.Model, cfg.Anthropic.Model), rc.MaxTokens)
	case "openai":
		if cfg.OpenAI.Key == "" {
			zap.L().Warn("rationale: openai.key not set, using rule-based rationales")
			return RuleBased{}, noop, nil
		}
		gen = chatGenerator("openai", cfg.OpenAI, openai.DefaultBaseURL, rc)
	case "ollama":
		gen = chatGenerator("ollama", cfg.Ollama, openai.OllamaBaseURL, rc)
	case "gemini":
		if cfg.Gemini.Key == "" {
			zap.L().Warn("rationale: gemini.key not set, using rule-based rationales")
			return RuleBased{}, noop, nil
		}
		gen = chatGenerator("gemini", cfg.Gemini, openai.GeminiBaseURL, rc)
	default:
		return nil, noop, eris.Errorf("rationale: unknown provider %q", rc.Provider)
	}

	prompts, err := LoadPrompts(rc.PromptsPath)
	if err != nil {
		return nil, noop, err
	}

	var cache Cache = NewMemoryCache()
	closeFn := noop
	if rc.RedisURL != "" {
		client, err := ConnectRedis(rc.RedisURL)
		if err != nil {
			return nil, noop, err
		}
		rcache := NewRedisCache(client)
		cache = rcache
		closeFn = rcache.Close
	}

	retry, breaker := resilience.FromConfig(cfg.Resilience)
	breaker.Name = gen.Name()
	opts := []LLMOption{
		WithPrompts(prompts),
		WithCache(cache, time.Duration(rc.CacheTTLSecs)*time.Second),
		WithBreaker(resilience.NewCircuitBreaker(breaker)),
		WithRetry(retry),
	}
	if rc.TimeoutSecs > 0 {
		opts = append(opts, WithTimeout(time.Duration(rc.TimeoutSecs)*time.Second))
	}

	zap.L().Info("rationale: using generator", zap.String("generator", gen.Name()))
	return NewLLM(gen, opts...), closeFn, nil
}

func chatGenerator(provider string, pc config.ProviderConfig, defaultURL string, rc config.RationaleConfig) Generator {
	client := openai.NewClient(pc.Key,
		openai.WithBaseURL(firstNonEmpty(pc.BaseURL, defaultURL)),
		openai.WithModel(pc.Model),
	)
	return NewChatGenerator(provider, client, firstNonEmpty(rc.Model, pc.Model), rc.MaxTokens)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
