/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/acronis/go-resourcekit/log"
	"github.com/acronis/go-resourcekit/restapi"
)

// Response headers.
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderStrategy   = "X-RateLimit-Strategy"
	HeaderRetryAfter = "Retry-After"
)

// Error code and type used in the response body when the rate limit is exceeded.
const (
	ExceededErrCode = "RL_001"
	ExceededErrType = "RATE_LIMIT_EXCEEDED"
)

// KeyLogFieldKey is the name of the logged field that contains a key for the rate limiter.
const KeyLogFieldKey = "rate_limit_key"

// GetKeyFunc is a function that is called for getting key for rate limiting.
// If bypass is true, the request is not limited.
type GetKeyFunc func(r *http.Request) (key string, bypass bool, err error)

// OnRejectFunc is a function that is called for rejecting HTTP request when the rate limit is exceeded.
type OnRejectFunc func(rw http.ResponseWriter, r *http.Request, result Result, next http.Handler, logger log.FieldLogger)

// OnErrorFunc is a function that is called when the key cannot be built or the request is invalid.
type OnErrorFunc func(rw http.ResponseWriter, r *http.Request, err error, next http.Handler, logger log.FieldLogger)

// MiddlewareOpts represents options for the Middleware.
type MiddlewareOpts struct {
	// GetKey builds a key for the request. KeyByRemoteAddr is used if nil.
	GetKey GetKeyFunc
	// GetEndpoint and GetUserType select per-endpoint and per-user-type overrides of the limit (see Service.RequestFor).
	GetEndpoint func(r *http.Request) string
	GetUserType func(r *http.Request) string
	// DryRun makes the middleware only log exceeded limits.
	DryRun   bool
	OnReject OnRejectFunc
	OnError  OnErrorFunc
	Logger   log.FieldLogger
}

type rateLimitHandler struct {
	next        http.Handler
	svc         *Service
	getKey      GetKeyFunc
	getEndpoint func(r *http.Request) string
	getUserType func(r *http.Request) string
	dryRun      bool
	onReject    OnRejectFunc
	onError     OnErrorFunc
	logger      log.FieldLogger
}

// Middleware is a middleware that limits the rate of HTTP requests with the Service.
// Rate limit headers are set for every limited request, Retry-After is added when the request is rejected.
func Middleware(svc *Service, opts MiddlewareOpts) func(next http.Handler) http.Handler {
	if opts.GetKey == nil {
		opts.GetKey = KeyByRemoteAddr
	}
	if opts.OnReject == nil {
		opts.OnReject = DefaultOnReject
	}
	if opts.OnError == nil {
		opts.OnError = DefaultOnError
	}
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	return func(next http.Handler) http.Handler {
		return &rateLimitHandler{
			next:        next,
			svc:         svc,
			getKey:      opts.GetKey,
			getEndpoint: opts.GetEndpoint,
			getUserType: opts.GetUserType,
			dryRun:      opts.DryRun,
			onReject:    opts.OnReject,
			onError:     opts.OnError,
			logger:      opts.Logger,
		}
	}
}

func (h *rateLimitHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	if !h.svc.Enabled() {
		h.next.ServeHTTP(rw, r)
		return
	}
	key, bypass, err := h.getKey(r)
	if err != nil {
		h.onError(rw, r, err, h.next, h.logger)
		return
	}
	if bypass {
		h.next.ServeHTTP(rw, r)
		return
	}

	var endpoint, userType string
	if h.getEndpoint != nil {
		endpoint = h.getEndpoint(r)
	}
	if h.getUserType != nil {
		userType = h.getUserType(r)
	}
	req, bypass, err := h.svc.RequestFor(key, endpoint, userType)
	if err != nil {
		h.onError(rw, r, err, h.next, h.logger)
		return
	}
	if bypass {
		h.next.ServeHTTP(rw, r)
		return
	}

	result, err := h.svc.CheckRateLimit(r.Context(), req)
	if err != nil {
		h.onError(rw, r, err, h.next, h.logger)
		return
	}
	SetHeaders(rw.Header(), result)
	if result.Allowed {
		h.next.ServeHTTP(rw, r)
		return
	}
	if h.dryRun {
		h.logger.Warn("too many requests, serving will be continued because of dry run mode",
			log.String(KeyLogFieldKey, key), log.String("user_agent", r.UserAgent()))
		h.next.ServeHTTP(rw, r)
		return
	}
	h.onReject(rw, r, result, h.next, h.logger.With(log.String(KeyLogFieldKey, key)))
}

// SetHeaders sets rate limit headers describing the result.
// X-RateLimit-Reset is a Unix time in seconds.
func SetHeaders(header http.Header, result Result) {
	header.Set(HeaderLimit, strconv.Itoa(result.Limit))
	header.Set(HeaderRemaining, strconv.FormatInt(result.Remaining, 10))
	header.Set(HeaderReset, strconv.FormatInt(result.ResetTime.Unix(), 10))
	header.Set(HeaderStrategy, string(result.Strategy))
}

// RetryAfterSeconds rounds the retry hint up to whole seconds.
func RetryAfterSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(math.Ceil(d.Seconds()))
}

// NewExceededError builds the response error for the denied request.
func NewExceededError(result Result) *restapi.Error {
	return restapi.NewError(ExceededErrCode, ExceededErrType, "Too many requests.").
		AddDetail("limit", result.Limit).
		AddDetail("remaining", result.Remaining).
		AddDetail("resetTime", result.ResetTime.UTC().Format(time.RFC3339)).
		AddDetail("retryAfterSeconds", RetryAfterSeconds(result.RetryAfter())).
		AddDetail("strategy", string(result.Strategy))
}

// DefaultOnReject responds with 429 status code, Retry-After header and the error in the body.
func DefaultOnReject(rw http.ResponseWriter, r *http.Request, result Result, _ http.Handler, logger log.FieldLogger) {
	rw.Header().Set(HeaderRetryAfter, strconv.FormatInt(RetryAfterSeconds(result.RetryAfter()), 10))
	restapi.RespondError(rw, http.StatusTooManyRequests, NewExceededError(result), logger)
}

// DefaultOnError responds with 500 status code, or with 400 if the request cannot be rate limited because of invalid key.
func DefaultOnError(rw http.ResponseWriter, r *http.Request, err error, _ http.Handler, logger log.FieldLogger) {
	logger.Error("rate limiting failed", log.Error(err), log.String("path", r.URL.Path))
	if errors.Is(err, ErrInvalidRequest) {
		restapi.RespondError(rw, http.StatusBadRequest,
			restapi.NewError("RL_002", "RATE_LIMIT_INVALID_REQUEST", "Request cannot be rate limited."), logger)
		return
	}
	restapi.RespondInternalError(rw, logger)
}

// KeyByRemoteAddr uses the client IP address as a key.
func KeyByRemoteAddr(r *http.Request) (string, bool, error) {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr, false, nil
	}
	return host, false, nil
}

// KeyByHeader returns GetKeyFunc using the value of the header as a key.
// Requests without the header are not limited if bypassEmpty is true, otherwise they share the limit of the client IP address.
func KeyByHeader(header string, bypassEmpty bool) GetKeyFunc {
	return func(r *http.Request) (string, bool, error) {
		if v := r.Header.Get(header); v != "" {
			return header + ":" + v, false, nil
		}
		if bypassEmpty {
			return "", true, nil
		}
		return KeyByRemoteAddr(r)
	}
}

// KeyByRoutePattern returns GetKeyFunc which limits every route of the chi router separately for every client IP address.
// The key looks like "GET /users/{id}:10.0.0.1".
func KeyByRoutePattern(r *http.Request) (string, bool, error) {
	addr, _, _ := KeyByRemoteAddr(r)
	pattern := r.URL.Path
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			pattern = p
		}
	}
	return r.Method + " " + pattern + ":" + addr, false, nil
}

// EndpointByRoutePattern returns the chi route pattern (e.g. "/users/{id}") as an endpoint name.
func EndpointByRoutePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}
