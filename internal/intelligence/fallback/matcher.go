package fallback

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/turtacn/BOMMesh/internal/domain/matching"
	"github.com/turtacn/BOMMesh/internal/infrastructure/database/redis"
	"github.com/turtacn/BOMMesh/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/BOMMesh/pkg/errors"
)

// Outcome labels one fallback call for metrics.
type Outcome string

const (
	OutcomeOK           Outcome = "ok"
	OutcomeCacheHit     Outcome = "cache_hit"
	OutcomeInvalidReply Outcome = "invalid_reply"
	OutcomeError        Outcome = "error"
	OutcomeSkipped      Outcome = "skipped"
)

// Recorder receives per-call observations.
type Recorder interface {
	ObserveFallback(scope matching.ScopeKind, outcome Outcome, elapsed time.Duration, proposals int)
}

// Matcher implements matching.FallbackMatcher over a ChatClient.
type Matcher struct {
	client        ChatClient
	prompts       *PromptBuilder
	cache         redis.Cache
	cacheTTL      time.Duration
	minConfidence float64
	timeout       time.Duration
	recorder      Recorder
	logger        logging.Logger
}

var _ matching.FallbackMatcher = (*Matcher)(nil)

type Option func(*Matcher)

// WithCache stores parsed proposals under a digest of the prompt.
func WithCache(c redis.Cache, ttl time.Duration) Option {
	return func(m *Matcher) { m.cache, m.cacheTTL = c, ttl }
}

// WithMinConfidence drops proposals below min.
func WithMinConfidence(min float64) Option {
	return func(m *Matcher) { m.minConfidence = min }
}

// WithTimeout bounds each service call.
func WithTimeout(d time.Duration) Option {
	return func(m *Matcher) { m.timeout = d }
}

func WithRecorder(r Recorder) Option {
	return func(m *Matcher) { m.recorder = r }
}

// NewMatcher returns a Matcher sending prompts built by prompts to client.
func NewMatcher(client ChatClient, prompts *PromptBuilder, log logging.Logger, opts ...Option) *Matcher {
	m := &Matcher{
		client:  client,
		prompts: prompts,
		logger:  log.Named("fallback"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Propose asks the service to pair req.Parts with req.BOM. A reply that
// cannot be parsed yields no proposals and no error; a failed call yields
// no proposals and an ErrCodeFallbackUnavailable error.
func (m *Matcher) Propose(ctx context.Context, req matching.ProposalRequest) ([]matching.AIMatch, error) {
	start := time.Now()
	log := m.logger.With(logging.Scope(string(req.Scope.Kind), req.Scope.ID))

	codes := make(map[string]struct{}, len(req.BOM))
	for _, r := range req.BOM {
		if r.HasCode() {
			codes[r.Code] = struct{}{}
		}
	}
	if len(req.Parts) == 0 || len(codes) == 0 {
		m.observe(req.Scope.Kind, OutcomeSkipped, start, 0)
		return nil, nil
	}

	user, err := m.prompts.Build(req)
	if err != nil {
		m.observe(req.Scope.Kind, OutcomeError, start, 0)
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrCodeInternal, "building fallback prompt")
	}
	system := m.prompts.System()

	var (
		proposals []matching.AIMatch
		stats     ParseStats
		called    bool
	)
	load := func(ctx context.Context) (interface{}, error) {
		called = true
		p, st, err := m.call(ctx, log, system, user, req, codes)
		stats = st
		return p, err
	}
	if m.cache != nil {
		err = m.cache.GetOrSet(ctx, cacheKey(system, user), &proposals, m.cacheTTL, load)
	} else {
		var v interface{}
		if v, err = load(ctx); err == nil {
			proposals = v.([]matching.AIMatch)
		}
	}

	switch {
	case errors.Is(err, errInvalidReply):
		m.observe(req.Scope.Kind, OutcomeInvalidReply, start, 0)
		return nil, nil
	case err != nil:
		m.observe(req.Scope.Kind, OutcomeError, start, 0)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	case !called:
		// Also reached by callers that shared another caller's in-flight load.
		out := m.filter(proposals)
		log.Info("Fallback proposals served from cache", logging.Int("proposals", len(out)))
		m.observe(req.Scope.Kind, OutcomeCacheHit, start, len(out))
		return out, nil
	}

	out := m.filter(proposals)
	high := 0
	for _, p := range out {
		if p.Confidence >= matching.HighConfidence {
			high++
		}
	}
	log.Info("Fallback proposals received",
		logging.Int("entries", stats.Entries),
		logging.Int("accepted", len(out)),
		logging.Int("dropped", stats.Dropped+len(proposals)-len(out)),
		logging.Int("high_confidence", high),
		logging.Duration("elapsed", time.Since(start)))
	m.observe(req.Scope.Kind, OutcomeOK, start, len(out))
	return out, nil
}

var errInvalidReply = errors.New("fallback reply unparsable")

// call performs one service round trip. Only parsed replies are returned
// without error, so neither failures nor unparsable replies are cached.
func (m *Matcher) call(ctx context.Context, log logging.Logger, system, user string, req matching.ProposalRequest, codes map[string]struct{}) ([]matching.AIMatch, ParseStats, error) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	log.Info("Requesting fallback proposals",
		logging.Int("parts", len(req.Parts)), logging.Int("bom_rows", len(req.BOM)))

	reply, err := m.client.Complete(ctx, system, user)
	if err != nil {
		log.Warn("Fallback service unavailable, contributing nothing", logging.Err(err))
		return nil, ParseStats{}, pkgerrors.Wrap(err, pkgerrors.ErrCodeFallbackUnavailable, "fallback call failed")
	}

	proposals, stats, err := ParseReply(reply, req.Parts, codes)
	if err != nil {
		log.Warn("Fallback reply unparsable, contributing nothing",
			logging.Int("reply_chars", len(reply)), logging.Err(err))
		return nil, stats, errInvalidReply
	}
	return proposals, stats, nil
}

func (m *Matcher) filter(in []matching.AIMatch) []matching.AIMatch {
	if m.minConfidence <= 0 {
		return in
	}
	out := make([]matching.AIMatch, 0, len(in))
	for _, p := range in {
		if p.Confidence >= m.minConfidence {
			out = append(out, p)
		}
	}
	return out
}

func (m *Matcher) observe(kind matching.ScopeKind, o Outcome, start time.Time, n int) {
	if m.recorder != nil {
		m.recorder.ObserveFallback(kind, o, time.Since(start), n)
	}
}

func cacheKey(system, user string) string {
	h := sha256.New()
	h.Write([]byte(system))
	h.Write([]byte{0})
	h.Write([]byte(user))
	return "fallback:" + hex.EncodeToString(h.Sum(nil))
}
