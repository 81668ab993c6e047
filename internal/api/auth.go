package api

import (
	"context"
	"crypto/subtle"
	"net"
	"net/http"
	"strconv"
	"strings"

	"storagebooking/internal/config"
	"storagebooking/internal/errs"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

const (
	apiKeyHeaderDefault   = "x-api-key"
	apiExtraHeaderDefault = "x-api-extra"
	userIDHeaderDefault   = "x-user-id"
	clientKeyUnknown      = "unknown"
)

// Permissions granted to API keys. A key with no permissions may call everything.
const (
	PermReadAvailability = "read:availability"
	PermReadPricing      = "read:pricing"
	PermReadBookings     = "read:bookings"
	PermWriteBookings    = "write:bookings"
	PermWritePayments    = "write:payments"
	PermReadReports      = "read:reports"
)

var (
	errMissingCredentials = errs.New("missing api key headers")
	errInvalidAPIKey      = errs.New("invalid api key")
	errInvalidExtra       = errs.New("invalid extra header")
	errPermissionDenied   = errs.New("permission denied")
)

type credentials struct {
	keyHeader   string
	extraHeader string
	clients     map[string]config.APIClientKey
}

func newCredentials(cfg config.APIAuthConfig) *credentials {
	m := make(map[string]config.APIClientKey, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		m[k.Key] = k
	}
	return &credentials{
		keyHeader:   headerOrDefault(cfg.HeaderAPIKey, apiKeyHeaderDefault),
		extraHeader: headerOrDefault(cfg.HeaderExtra, apiExtraHeaderDefault),
		clients:     m,
	}
}

func (c *credentials) authenticate(apiKey, extra string) (config.APIClientKey, error) {
	if apiKey == "" || extra == "" {
		return config.APIClientKey{}, errMissingCredentials
	}
	client, ok := c.clients[apiKey]
	if !ok {
		return config.APIClientKey{}, errInvalidAPIKey
	}
	if subtle.ConstantTimeCompare([]byte(client.Extra), []byte(extra)) != 1 {
		return config.APIClientKey{}, errInvalidExtra
	}
	return client, nil
}

func hasPermission(client config.APIClientKey, required string) bool {
	if required == "" || len(client.Permissions) == 0 {
		return true
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == required {
			return true
		}
	}
	return false
}

func headerOrDefault(h, def string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	if h == "" {
		return def
	}
	return h
}

// AuthInterceptor applies API-key auth and per-key rate limiting to gRPC calls.
type AuthInterceptor struct {
	cfg     *config.APIConfig
	creds   *credentials
	limiter *rateLimiter
}

func NewAuthInterceptor(cfg *config.APIConfig) *AuthInterceptor {
	return &AuthInterceptor{
		cfg:     cfg,
		creds:   newCredentials(cfg.Auth),
		limiter: newRateLimiter(cfg.RateLimit),
	}
}

func (a *AuthInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !a.cfg.Enabled {
			return handler(ctx, req)
		}

		if a.cfg.Auth.Enabled {
			if err := a.checkAuth(ctx); err != nil {
				return nil, err
			}
		}
		if !a.limiter.allow(a.clientKey(ctx)) {
			return nil, status.Error(codes.ResourceExhausted, "rate limit exceeded")
		}

		return handler(ctx, req)
	}
}

func (a *AuthInterceptor) checkAuth(ctx context.Context) error {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "missing metadata")
	}
	_, err := a.creds.authenticate(first(md.Get(a.creds.keyHeader)), first(md.Get(a.creds.extraHeader)))
	if err != nil {
		return status.Error(codes.Unauthenticated, err.Error())
	}
	return nil
}

func (a *AuthInterceptor) clientKey(ctx context.Context) string {
	md, _ := metadata.FromIncomingContext(ctx)
	if apiKey := first(md.Get(a.creds.keyHeader)); apiKey != "" {
		return apiKey
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return clientKeyUnknown
}

func first(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	return strings.TrimSpace(vals[0])
}

// HTTPAuth provides API-key auth, route permissions and per-key rate limiting
// for HTTP endpoints.
type HTTPAuth struct {
	cfg        config.APIConfig
	creds      *credentials
	limiter    *rateLimiter
	userHeader string
}

func NewHTTPAuth(cfg config.APIConfig) *HTTPAuth {
	return &HTTPAuth{
		cfg:        cfg,
		creds:      newCredentials(cfg.Auth),
		limiter:    newRateLimiter(cfg.RateLimit),
		userHeader: headerOrDefault(cfg.Auth.HeaderUserID, userIDHeaderDefault),
	}
}

// Require guards next with authentication, the given permission and the rate limit.
func (a *HTTPAuth) Require(permission string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.cfg.Auth.Enabled {
			client, err := a.creds.authenticate(
				strings.TrimSpace(r.Header.Get(a.creds.keyHeader)),
				strings.TrimSpace(r.Header.Get(a.creds.extraHeader)),
			)
			if err != nil {
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}
			if !hasPermission(client, permission) {
				writeError(w, http.StatusForbidden, errPermissionDenied.Error())
				return
			}
		}

		if !a.limiter.allow(a.clientKey(r)) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// UserID returns the caller's user id from the configured header.
func (a *HTTPAuth) UserID(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(r.Header.Get(a.userHeader))
	if raw == "" {
		return 0, errs.Validationf("%s header is required", a.userHeader)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errs.Validationf("%s header must be a positive integer", a.userHeader)
	}
	return id, nil
}

func (a *HTTPAuth) clientKey(r *http.Request) string {
	if apiKey := strings.TrimSpace(r.Header.Get(a.creds.keyHeader)); apiKey != "" {
		return apiKey
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}
