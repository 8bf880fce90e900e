package rationale

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/analytics-studio/internal/resilience"
)

// DefaultCacheTTL is how long a generated rationale is reused.
const DefaultCacheTTL = time.Hour

// maxRationaleLen bounds what is kept from a model reply.
const maxRationaleLen = 400

// LLM writes rationales with a Generator and falls back to RuleBased on any
// failure, empty reply or open breaker.
type LLM struct {
	gen      Generator
	prompts  *Prompts
	cache    Cache
	ttl      time.Duration
	timeout  time.Duration
	breaker  *resilience.CircuitBreaker
	retry    resilience.RetryConfig
	fallback Decorator
	play     string
}

// LLMOption configures an LLM decorator.
type LLMOption func(*LLM)

// WithCache sets the rationale cache and entry TTL.
func WithCache(c Cache, ttl time.Duration) LLMOption {
	return func(l *LLM) {
		l.cache = c
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithTimeout bounds each generation call.
func WithTimeout(d time.Duration) LLMOption {
	return func(l *LLM) { l.timeout = d }
}

// WithBreaker routes calls through cb.
func WithBreaker(cb *resilience.CircuitBreaker) LLMOption {
	return func(l *LLM) { l.breaker = cb }
}

// WithRetry sets the retry policy for transient failures.
func WithRetry(cfg resilience.RetryConfig) LLMOption {
	return func(l *LLM) { l.retry = cfg }
}

// WithPrompts replaces the default prompt templates.
func WithPrompts(p *Prompts) LLMOption {
	return func(l *LLM) {
		if p != nil {
			l.prompts = p
		}
	}
}

// NewLLM creates an LLM decorator around gen.
func NewLLM(gen Generator, opts ...LLMOption) *LLM {
	l := &LLM{
		gen:      gen,
		prompts:  DefaultPrompts(),
		cache:    NewMemoryCache(),
		ttl:      DefaultCacheTTL,
		timeout:  20 * time.Second,
		retry:    resilience.DefaultRetryConfig(),
		fallback: RuleBased{},
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// ForPlay returns a copy that renders the play's own prompt template.
func (l *LLM) ForPlay(play string) Decorator {
	cp := *l
	cp.play = play
	return &cp
}

// Rationale implements Decorator.
func (l *LLM) Rationale(ctx context.Context, text string) string {
	log := zap.L().With(zap.String("generator", l.gen.Name()), zap.String("play", l.play))

	prompt, err := l.prompts.Render(l.play, text)
	if err != nil {
		log.Warn("rationale: render prompt failed, using fallback", zap.Error(err))
		return l.fallback.Rationale(ctx, text)
	}

	key := CacheKey(l.gen.Name(), l.play, prompt)
	if l.cache != nil {
		cached, ok, err := l.cache.Get(ctx, key)
		if err != nil {
			log.Warn("rationale: cache get failed", zap.Error(err))
		} else if ok {
			return cached
		}
	}

	callCtx := ctx
	if l.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	retry := l.retry
	retry.OnRetry = resilience.RetryLogger(l.gen.Name(), "rationale")
	out, err := resilience.Guard(callCtx, l.breaker, retry, func(ctx context.Context) (string, error) {
		return l.gen.Generate(ctx, l.prompts.System, prompt)
	})
	if err != nil {
		log.Warn("rationale: generation failed, using fallback", zap.Error(err))
		return l.fallback.Rationale(ctx, text)
	}

	out = tidy(out)
	if out == "" {
		log.Warn("rationale: empty generation, using fallback")
		return l.fallback.Rationale(ctx, text)
	}

	if l.cache != nil {
		if err := l.cache.Set(ctx, key, out, l.ttl); err != nil {
			log.Warn("rationale: cache set failed", zap.Error(err))
		}
	}
	return out
}

// tidy keeps the first paragraph, collapses whitespace and trims quotes.
func tidy(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "\n\n"); i > 0 {
		s = s[:i]
	}
	s = strings.Join(strings.Fields(s), " ")
	s = strings.Trim(s, "\"'")
	if len(s) > maxRationaleLen {
		cut := strings.LastIndexAny(s[:maxRationaleLen], ".!?")
		if cut > 0 {
			s = s[:cut+1]
		} else {
			s = s[:maxRationaleLen]
		}
	}
	return s
}

// PlayScoped is implemented by decorators that render per-play prompts.
type PlayScoped interface {
	ForPlay(play string) Decorator
}

// ForPlay scopes d to play when it supports it and returns d unchanged
// otherwise. A nil d yields RuleBased.
func ForPlay(d Decorator, play string) Decorator {
	if d == nil {
		return RuleBased{}
	}
	if ps, ok := d.(PlayScoped); ok {
		return ps.ForPlay(play)
	}
	return d
}
