package admission

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/letsplay/gateway/internal/auth"
	"github.com/letsplay/gateway/internal/observability"
	"github.com/letsplay/gateway/internal/policy"
	"github.com/letsplay/gateway/internal/ratelimit"
)

// Stage names, also used as metric labels.
const (
	StagePreflight  = "preflight"
	StageRateLimit  = "ratelimit"
	StageClassify   = "classify"
	StageCredential = "credential"
	StageValidate   = "validate"
	StageInject     = "inject"
)

// DefaultValidationTimeout bounds a single credential validation.
const DefaultValidationTimeout = 2 * time.Second

var (
	// ErrValidationTimeout is returned when the validator does not answer in time.
	ErrValidationTimeout = errors.New("credential validation timed out")

	// ErrValidatorFault is returned when the validator panics or returns no identity.
	ErrValidatorFault = errors.New("credential validator fault")

	errMissingDependency = errors.New("admission pipeline dependency is nil")
)

type tokenKey struct{}

// Pipeline admits or rejects requests before they reach an upstream.
// Stages run in a fixed order:
//
//	preflight -> ratelimit -> classify -> credential -> validate -> inject
//
// It is safe for concurrent use.
type Pipeline struct {
	store      *ratelimit.Store
	classifier *policy.Classifier
	validator  auth.CredentialValidator
	keyFunc    ratelimit.KeyFunc
	cost       int
	timeout    time.Duration
	logger     observability.Logger
	metrics    *observability.Metrics
	stages     []Stage
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = metrics
	}
}

// WithValidationTimeout bounds each credential validation.
func WithValidationTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithKeyFunc overrides how the rate limit key is derived.
func WithKeyFunc(fn ratelimit.KeyFunc) Option {
	return func(p *Pipeline) {
		if fn != nil {
			p.keyFunc = fn
		}
	}
}

// WithCost sets the tokens consumed per request.
func WithCost(cost int) Option {
	return func(p *Pipeline) {
		if cost > 0 {
			p.cost = cost
		}
	}
}

// New creates a Pipeline.
func New(
	store *ratelimit.Store,
	classifier *policy.Classifier,
	validator auth.CredentialValidator,
	opts ...Option,
) (*Pipeline, error) {
	if store == nil || classifier == nil || validator == nil {
		return nil, errMissingDependency
	}

	p := &Pipeline{
		store:      store,
		classifier: classifier,
		validator:  validator,
		keyFunc:    ratelimit.ClientKey,
		cost:       ratelimit.DefaultCost,
		timeout:    DefaultValidationTimeout,
		logger:     observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.stages = []Stage{
		{Name: StagePreflight, Run: p.preflight},
		{Name: StageRateLimit, Run: p.rateLimit},
		{Name: StageClassify, Run: p.classify},
		{Name: StageCredential, Run: p.credential},
		{Name: StageValidate, Run: p.validate},
		{Name: StageInject, Run: p.inject},
	}

	return p, nil
}

// Evaluate runs the stages against r and returns the terminal result along
// with the name of the stage that settled it.
func (p *Pipeline) Evaluate(r *http.Request) (Result, string) {
	return run(p.stages, r)
}

// Handler wraps next, which receives only admitted requests.
func (p *Pipeline) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, stage := p.Evaluate(r)
		if p.metrics != nil {
			p.metrics.RecordAdmission(stage, res.outcome())
		}

		if res.Forwards() {
			next.ServeHTTP(w, res.Request())
			return
		}
		writeResult(w, res)
	})
}

// RateLimitHandler wraps next with the ratelimit stage alone. It serves the
// operational routes, which carry no credentials but share the client's
// bucket with API traffic.
func (p *Pipeline) RateLimitHandler(next http.Handler) http.Handler {
	stages := []Stage{{Name: StageRateLimit, Run: p.rateLimit}}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, stage := run(stages, r)
		if p.metrics != nil {
			p.metrics.RecordAdmission(stage, res.outcome())
		}

		if res.Forwards() {
			next.ServeHTTP(w, res.Request())
			return
		}
		writeResult(w, res)
	})
}

func (p *Pipeline) preflight(r *http.Request) Result {
	if policy.IsPreflight(r.Method) {
		return Respond(http.StatusOK, "")
	}
	return Continue(r)
}

func (p *Pipeline) rateLimit(r *http.Request) Result {
	key := p.keyFunc(r)
	if p.store.TryConsume(key, p.cost) {
		return Continue(r)
	}

	p.logger.Warn("rate limit exceeded",
		observability.String("client", key),
		observability.String("method", r.Method),
		observability.String("path", r.URL.Path),
		observability.String("request_id", observability.RequestIDFromContext(r.Context())),
	)
	return Respond(http.StatusTooManyRequests, MsgRateLimited)
}

// classify removes client-supplied identity headers from every request and
// forwards public routes without further checks.
func (p *Pipeline) classify(r *http.Request) Result {
	r = stripIdentityHeaders(r)
	if !p.classifier.RequiresAuth(r.Method, r.URL.Path) {
		return Forward(r)
	}
	return Continue(r)
}

func (p *Pipeline) credential(r *http.Request) Result {
	token, err := auth.BearerFromRequest(r)
	switch {
	case errors.Is(err, auth.ErrMissingCredential):
		return Respond(http.StatusUnauthorized, MsgMissingAuthorization)
	case err != nil:
		return Respond(http.StatusUnauthorized, MsgInvalidAuthorization)
	}
	return Continue(r.WithContext(context.WithValue(r.Context(), tokenKey{}, token)))
}

func (p *Pipeline) validate(r *http.Request) Result {
	token, _ := r.Context().Value(tokenKey{}).(string)

	id, err := p.validateBounded(r.Context(), token)
	if err != nil {
		log := p.logger.Debug
		if errors.Is(err, ErrValidationTimeout) || errors.Is(err, ErrValidatorFault) {
			log = p.logger.Warn
		}
		log("credential rejected",
			observability.String("status", auth.StatusOf(err).String()),
			observability.String("path", r.URL.Path),
			observability.String("request_id", observability.RequestIDFromContext(r.Context())),
			observability.Error(err),
		)
		return Respond(http.StatusUnauthorized, MsgInvalidToken)
	}

	return Continue(r.WithContext(auth.ContextWithIdentity(r.Context(), id)))
}

func (p *Pipeline) inject(r *http.Request) Result {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return Respond(http.StatusUnauthorized, MsgInvalidToken)
	}
	r.Header.Set(auth.HeaderUserID, id.SubjectID)
	r.Header.Set(auth.HeaderUserRole, id.Role.String())
	return Forward(r)
}

type validation struct {
	id  *auth.Identity
	err error
}

// validateBounded runs the validator in its own goroutine so a panic or a
// stalled key fetch turns into a rejection instead of a failed request.
func (p *Pipeline) validateBounded(ctx context.Context, token string) (*auth.Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	done := make(chan validation, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- validation{err: fmt.Errorf("%w: panic: %v", ErrValidatorFault, rec)}
			}
		}()

		id, err := p.validator.Validate(ctx, token)
		if err == nil && id == nil {
			err = fmt.Errorf("%w: no identity", ErrValidatorFault)
		}
		done <- validation{id: id, err: err}
	}()

	select {
	case v := <-done:
		return v.id, v.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrValidationTimeout, ctx.Err())
	}
}

// stripIdentityHeaders returns r without X-User-Id and X-User-Role. The
// request is cloned only when it carries one of them.
func stripIdentityHeaders(r *http.Request) *http.Request {
	present := false
	for _, h := range auth.IdentityHeaders {
		if _, ok := r.Header[h]; ok {
			present = true
			break
		}
	}
	if !present {
		return r
	}

	r = r.Clone(r.Context())
	for _, h := range auth.IdentityHeaders {
		r.Header.Del(h)
	}
	return r
}
