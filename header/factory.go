// Package header implements the header factory: a memoized, signed
// payment header built against a mutable RouterConfig.
package header

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/uptoprotocol/payfetch/types"
)

// PreInvalidateWindowSeconds is the safety margin before a cached
// header's deadline during which it is considered stale.
const PreInvalidateWindowSeconds = 60

// cachedHeader is the factory's memoized artifact.
type cachedHeader struct {
	headerValue string
	deadline    int64
	maxValue    string
	network     string
	asset       string
	payTo       string
}

// Result is what GetHeader returns.
type Result struct {
	HeaderName  string
	HeaderValue string
	Deadline    int64
}

// GetHeaderOptions overrides the cache's default behavior for one call.
type GetHeaderOptions struct {
	CapOverride          string
	MinDeadlineExclusive *int64
}

// MetricsRecorder is the minimal surface the header factory needs from
// an optional metrics collaborator. A *metrics.Metrics satisfies this
// structurally; the factory never imports the metrics package itself.
type MetricsRecorder interface {
	RecordCacheHit()
	RecordCacheMiss()
	RecordForcedRefresh()
	RecordSign(fn func() error) error
}

// Factory owns one (config, cached) pair and a signing function. It is
// safe for concurrent use: the mutex guards the config and the cache
// slot, and is never held across the call into SignFunc.
type Factory struct {
	signFunc         types.SignFunc
	defaultPermitCap string
	mu               sync.Mutex
	config           types.RouterConfig
	cached           *cachedHeader

	metrics       MetricsRecorder
	beforeSign    []types.BeforeSignHook
	afterSign     []types.AfterSignHook
	onSignFailure []types.OnSignFailureHook
}

// FactoryOption configures optional Factory collaborators.
type FactoryOption func(*Factory)

// WithMetrics registers a MetricsRecorder to observe cache outcomes and
// sign invocations. Nil is a valid, no-op default.
func WithMetrics(m MetricsRecorder) FactoryOption {
	return func(f *Factory) { f.metrics = m }
}

// WithBeforeSignHook registers a hook run immediately before each
// SignFunc call.
func WithBeforeSignHook(hook types.BeforeSignHook) FactoryOption {
	return func(f *Factory) { f.beforeSign = append(f.beforeSign, hook) }
}

// WithAfterSignHook registers a hook run after a successful SignFunc call.
func WithAfterSignHook(hook types.AfterSignHook) FactoryOption {
	return func(f *Factory) { f.afterSign = append(f.afterSign, hook) }
}

// WithOnSignFailureHook registers a hook run after a failed SignFunc call.
func WithOnSignFailureHook(hook types.OnSignFailureHook) FactoryOption {
	return func(f *Factory) { f.onSignFailure = append(f.onSignFailure, hook) }
}

// New builds a Factory bound to an initial config, a default cap, and
// a signing function.
func New(initialConfig types.RouterConfig, defaultPermitCap string, signFunc types.SignFunc, opts ...FactoryOption) *Factory {
	f := &Factory{
		signFunc:         signFunc,
		defaultPermitCap: defaultPermitCap,
		config:           initialConfig,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// GetConfig returns a read-only snapshot of the current config.
// Callers must not mutate the result.
func (f *Factory) GetConfig() types.RouterConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.config
}

// UpdateConfig replaces the config. It does not itself invalidate the
// cache; the next GetHeader call misses naturally if the domain tuple
// changed.
func (f *Factory) UpdateConfig(next types.RouterConfig) {
	f.mu.Lock()
	f.config = next
	f.mu.Unlock()
}

// Invalidate unconditionally clears the cache.
func (f *Factory) Invalidate() {
	f.mu.Lock()
	f.cached = nil
	f.mu.Unlock()
}

// GetHeader returns the header name/value/deadline to attach to a
// chargeable request, reusing the cache when it is still fresh for the
// effective cap and domain, and calling the signing function on
// miss, expiry, domain change, or a forced refresh.
func (f *Factory) GetHeader(ctx context.Context, opts GetHeaderOptions, now func() int64) (Result, error) {
	f.mu.Lock()
	cfg := f.config
	cached := f.cached
	f.mu.Unlock()

	effectiveCap := opts.CapOverride
	if effectiveCap == "" {
		effectiveCap = f.defaultPermitCap
	}

	if opts.MinDeadlineExclusive == nil && cached != nil &&
		cached.maxValue == effectiveCap &&
		cached.network == cfg.Network && cached.asset == cfg.Asset && cached.payTo == cfg.PayTo &&
		cached.deadline-now() > PreInvalidateWindowSeconds {
		if f.metrics != nil {
			f.metrics.RecordCacheHit()
		}
		return Result{HeaderName: cfg.HeaderName(), HeaderValue: cached.headerValue, Deadline: cached.deadline}, nil
	}

	if f.metrics != nil {
		if opts.MinDeadlineExclusive != nil {
			f.metrics.RecordForcedRefresh()
		} else {
			f.metrics.RecordCacheMiss()
		}
	}

	input := types.SignatureInput{
		RouterConfig:         cfg,
		PermitCap:            effectiveCap,
		MinDeadlineExclusive: opts.MinDeadlineExclusive,
	}

	for _, hook := range f.beforeSign {
		hook(ctx, input)
	}

	var out types.SignatureOutput
	signOnce := func() error {
		var signErr error
		out, signErr = f.signFunc(ctx, input)
		return signErr
	}

	var err error
	if f.metrics != nil {
		err = f.metrics.RecordSign(signOnce)
	} else {
		err = signOnce()
	}
	if err != nil {
		for _, hook := range f.onSignFailure {
			hook(ctx, input, err)
		}
		return Result{}, fmt.Errorf("sign payment authorization: %w", err)
	}
	for _, hook := range f.afterSign {
		hook(ctx, input, out)
	}

	payload := types.BuildPaymentPayload(cfg, effectiveCap, out)
	headerValue, err := types.EncodePaymentPayload(payload)
	if err != nil {
		return Result{}, fmt.Errorf("encode payment payload: %w", err)
	}

	deadline, err := strconv.ParseInt(out.Deadline, 10, 64)
	if err != nil {
		return Result{}, fmt.Errorf("parse signer deadline %q: %w", out.Deadline, err)
	}

	f.mu.Lock()
	f.cached = &cachedHeader{
		headerValue: headerValue,
		deadline:    deadline,
		maxValue:    effectiveCap,
		network:     cfg.Network,
		asset:       cfg.Asset,
		payTo:       cfg.PayTo,
	}
	f.mu.Unlock()

	return Result{HeaderName: cfg.HeaderName(), HeaderValue: headerValue, Deadline: deadline}, nil
}
