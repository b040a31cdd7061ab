// Package interceptor wraps an http.RoundTripper to transparently
// attach payment authorizations to chargeable requests and retry
// exactly once on a classifiable payment challenge.
package interceptor

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

	"github.com/uptoprotocol/payfetch/header"
	"github.com/uptoprotocol/payfetch/types"
)

const defaultAsset = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913" // USDC on Base
const defaultNetwork = "eip155:8453"

// ungatedSuffixes are path suffixes that never carry a charge and must
// never trigger signing.
var ungatedSuffixes = []string{"/v1/config", "/config", "/v1/models", "/models"}

// MetricsRecorder is the surface the interceptor needs from an optional
// metrics collaborator: everything the header factory needs, plus
// retry-outcome recording. A *metrics.Metrics satisfies this
// structurally; neither package imports the other.
type MetricsRecorder interface {
	header.MetricsRecorder
	RecordRetry(outcome string)
}

// Options configures a Transport.
type Options struct {
	RouterURL         string
	PermitCap         string
	SignFunc          types.SignFunc
	Base              http.RoundTripper
	InitialConfig     *types.RouterConfig
	Network           string
	StaticHeaderName  string
	StaticHeaderValue string

	Metrics       MetricsRecorder
	OnBeforeSign  types.BeforeSignHook
	OnAfterSign   types.AfterSignHook
	OnSignFailure types.OnSignFailureHook
}

// Transport implements http.RoundTripper, attaching a payment
// authorization to every chargeable request against routerOrigin and
// retrying exactly once when the router issues a classifiable
// payment challenge.
type Transport struct {
	base        http.RoundTripper
	routerURL   *url.URL
	routerBase  string
	permitCap   string
	signFunc    types.SignFunc
	network     string
	staticName  string
	staticValue string

	initialConfig *types.RouterConfig

	metrics       MetricsRecorder
	onBeforeSign  types.BeforeSignHook
	onAfterSign   types.AfterSignHook
	onSignFailure types.OnSignFailureHook

	once     sync.Once
	factory  *header.Factory
	buildErr error
}

// New constructs a Transport from Options.
func New(opts Options) (*Transport, error) {
	routerURL, err := url.Parse(opts.RouterURL)
	if err != nil {
		return nil, fmt.Errorf("parse router URL: %w", err)
	}
	base := opts.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{
		base:          base,
		routerURL:     routerURL,
		routerBase:    strings.TrimRight(opts.RouterURL, "/"),
		permitCap:     opts.PermitCap,
		signFunc:      opts.SignFunc,
		network:       opts.Network,
		staticName:    opts.StaticHeaderName,
		staticValue:   opts.StaticHeaderValue,
		initialConfig: opts.InitialConfig,
		metrics:       opts.Metrics,
		onBeforeSign:  opts.OnBeforeSign,
		onAfterSign:   opts.OnAfterSign,
		onSignFailure: opts.OnSignFailure,
	}, nil
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !t.isChargeable(req.URL) {
		return t.base.RoundTrip(req)
	}

	if t.staticValue != "" {
		headerName := t.staticName
		if headerName == "" {
			headerName = types.DefaultPaymentHeader
		}
		cloned := cloneRequest(req)
		cloned.Header.Set(headerName, t.staticValue)
		if t.metrics != nil {
			t.metrics.RecordRetry("static_skip")
		}
		return t.base.RoundTrip(cloned)
	}

	factory, err := t.factoryOnce(req)
	if err != nil {
		return nil, err
	}

	result, err := factory.GetHeader(req.Context(), header.GetHeaderOptions{}, nowUnix)
	if err != nil {
		return nil, err
	}

	first := cloneRequest(req)
	first.Header.Set(result.HeaderName, result.HeaderValue)

	resp, err := t.base.RoundTrip(first)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusPaymentRequired {
		return resp, nil
	}

	body, errResp, challenge := parseChallenge(resp)

	if challenge != nil && len(challenge.Accepts) > 0 {
		accepted := challenge.Accepts[0]
		cfg := factory.GetConfig()
		payTo := accepted.PayTo
		if payTo == "" {
			payTo = cfg.PayTo
		}
		facilitator := payTo
		if accepted.PayTo == "" {
			facilitator = cfg.FacilitatorSigner
		}
		next := cfg
		if accepted.Network != "" {
			next.Network = accepted.Network
		}
		if accepted.Asset != "" {
			next.Asset = accepted.Asset
		}
		next.PayTo = payTo
		next.FacilitatorSigner = facilitator
		if accepted.Extra.Name != "" {
			next.TokenName = accepted.Extra.Name
		}
		if accepted.Extra.Version != "" {
			next.TokenVersion = accepted.Extra.Version
		}
		factory.UpdateConfig(next)
	}

	if !errResp.IsRetriable() {
		if t.metrics != nil {
			t.metrics.RecordRetry("not_classifiable")
		}
		restoreBody(resp, body)
		return resp, nil
	}

	factory.Invalidate()

	capOverride := ""
	if challenge != nil && len(challenge.Accepts) > 0 {
		capOverride = challenge.Accepts[0].Extra.Cap
	}
	minDeadline := result.Deadline

	retryResult, err := factory.GetHeader(req.Context(), header.GetHeaderOptions{
		CapOverride:          capOverride,
		MinDeadlineExclusive: &minDeadline,
	}, nowUnix)
	if err != nil {
		return nil, err
	}

	second := cloneRequest(req)
	second.Header.Set(retryResult.HeaderName, retryResult.HeaderValue)

	if t.metrics != nil {
		t.metrics.RecordRetry("retried")
	}
	return t.base.RoundTrip(second)
}

// isChargeable reports whether a request's URL is addressed at the
// router and is not one of the ungated path families.
func (t *Transport) isChargeable(u *url.URL) bool {
	resolved := u
	if resolved == nil || resolved.Scheme == "" || resolved.Host == "" {
		var err error
		resolved, err = t.routerURL.Parse(u.String())
		if err != nil {
			return false
		}
	}
	if resolved.Scheme+"://"+resolved.Host != t.routerURL.Scheme+"://"+t.routerURL.Host {
		return false
	}
	for _, suffix := range ungatedSuffixes {
		if strings.HasSuffix(resolved.Path, suffix) {
			return false
		}
	}
	return true
}

// factoryOnce lazily builds the factory's config (from InitialConfig
// or a GET {routerBase}/v1/config call) and the factory itself,
// memoized so every caller shares the same single-assignment result.
func (t *Transport) factoryOnce(req *http.Request) (*header.Factory, error) {
	t.once.Do(func() {
		cfg := t.initialConfig
		if cfg == nil {
			fetched, err := t.fetchInitialConfig(req.Context())
			if err == nil {
				cfg = fetched
			}
		}
		if cfg == nil {
			network := t.network
			if network == "" {
				network = defaultNetwork
			}
			cfg = &types.RouterConfig{
				Network:      network,
				Asset:        defaultAsset,
				TokenName:    "USD Coin",
				TokenVersion: "2",
			}
		}
		if t.signFunc == nil {
			t.buildErr = fmt.Errorf("interceptor: no signing function configured")
			return
		}
		var factoryOpts []header.FactoryOption
		if t.metrics != nil {
			factoryOpts = append(factoryOpts, header.WithMetrics(t.metrics))
		}
		if t.onBeforeSign != nil {
			factoryOpts = append(factoryOpts, header.WithBeforeSignHook(t.onBeforeSign))
		}
		if t.onAfterSign != nil {
			factoryOpts = append(factoryOpts, header.WithAfterSignHook(t.onAfterSign))
		}
		if t.onSignFailure != nil {
			factoryOpts = append(factoryOpts, header.WithOnSignFailureHook(t.onSignFailure))
		}
		t.factory = header.New(*cfg, t.permitCap, t.signFunc, factoryOpts...)
	})
	return t.factory, t.buildErr
}

type routerConfigWire struct {
	Networks []struct {
		NetworkID string `json:"network_id"`
		Asset     struct {
			Address string `json:"address"`
		} `json:"asset"`
		PayTo string `json:"pay_to"`
	} `json:"networks"`
	PaymentHeader string `json:"payment_header"`
	EIP712Config  struct {
		DomainName    string `json:"domain_name"`
		DomainVersion string `json:"domain_version"`
	} `json:"eip712_config"`
}

func (t *Transport) fetchInitialConfig(ctx context.Context) (*types.RouterConfig, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.routerBase+"/v1/config", nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("router config fetch returned status %d", resp.StatusCode)
	}
	var wire routerConfigWire
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode router config: %w", err)
	}
	if len(wire.Networks) == 0 {
		return nil, fmt.Errorf("router config has no networks")
	}
	n := wire.Networks[0]
	cfg := &types.RouterConfig{
		Network:           n.NetworkID,
		Asset:             n.Asset.Address,
		PayTo:             n.PayTo,
		FacilitatorSigner: n.PayTo,
		TokenName:         wire.EIP712Config.DomainName,
		TokenVersion:      wire.EIP712Config.DomainVersion,
		PaymentHeader:     wire.PaymentHeader,
	}
	return cfg, nil
}

// parseChallenge reads and closes resp's body, returning its bytes so
// the caller can put them back with restoreBody, and decodes both the
// normalized error body and the PAYMENT-REQUIRED header, tolerating the
// absence or malformation of either.
func parseChallenge(resp *http.Response) ([]byte, *types.ErrorResponse, *types.PaymentRequiredHeader) {
	var body []byte
	if resp.Body != nil {
		body, _ = io.ReadAll(resp.Body)
		resp.Body.Close()
	}

	errResp := types.ParseErrorResponse(body)

	var challenge *types.PaymentRequiredHeader
	if raw := resp.Header.Get("PAYMENT-REQUIRED"); raw != "" {
		if decoded, err := types.DecodePaymentRequiredHeader(raw); err == nil {
			challenge = &decoded
		}
	}

	return body, errResp, challenge
}

func restoreBody(resp *http.Response, body []byte) {
	resp.Body = io.NopCloser(bytes.NewReader(body))
}

// cloneRequest copies req's header bag into a fresh one before
// attaching a payment header, so the caller's own Headers container is
// never mutated. When req.GetBody is set (as it is for any request
// built from a buffer, string, or bytes), the clone gets its own fresh
// body reader so a retry never sends an already-drained body.
func cloneRequest(req *http.Request) *http.Request {
	clone := req.Clone(req.Context())
	clone.Header = req.Header.Clone()
	if req.GetBody != nil {
		if body, err := req.GetBody(); err == nil {
			clone.Body = body
		}
	}
	return clone
}

func nowUnix() int64 {
	return time.Now().Unix()
}
