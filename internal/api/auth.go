package api

import (
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strings"

	"smarterdog/internal/config"
)

const (
	apiKeyHeaderDefault = "x-api-key"
	clientKeyUnknown    = "unknown"

	permManageAppointments = "appointments:manage"
	permExportAppointments = "appointments:export"
)

var (
	errMissingAPIKey    = errors.New("missing api key")
	errInvalidAPIKey    = errors.New("invalid api key")
	errPermissionDenied = errors.New("permission denied")
)

// HTTPAuth checks salon staff API keys on the admin routes.
type HTTPAuth struct {
	cfg     config.APIAuthConfig
	clients []config.APIClientKey
}

func NewHTTPAuth(cfg config.APIAuthConfig) *HTTPAuth {
	clients := make([]config.APIClientKey, 0, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		if strings.TrimSpace(k.Key) != "" {
			clients = append(clients, k)
		}
	}
	return &HTTPAuth{cfg: cfg, clients: clients}
}

// Require rejects requests without a key carrying permission. With auth
// disabled every request passes.
func (a *HTTPAuth) Require(permission string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if a.cfg.Enabled {
			if err := a.check(r, permission); err != nil {
				status := http.StatusUnauthorized
				if errors.Is(err, errPermissionDenied) {
					status = http.StatusForbidden
				}
				writeError(w, status, err.Error())
				return
			}
		}
		next(w, r)
	}
}

func (a *HTTPAuth) check(r *http.Request, permission string) error {
	apiKey := strings.TrimSpace(r.Header.Get(a.header()))
	if apiKey == "" {
		return errMissingAPIKey
	}

	client, ok := a.lookup(apiKey)
	if !ok {
		return errInvalidAPIKey
	}

	// Пустой список прав означает полный доступ.
	if len(client.Permissions) == 0 {
		return nil
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == permission {
			return nil
		}
	}
	return errPermissionDenied
}

func (a *HTTPAuth) lookup(apiKey string) (config.APIClientKey, bool) {
	for _, c := range a.clients {
		if subtle.ConstantTimeCompare([]byte(c.Key), []byte(apiKey)) == 1 {
			return c, true
		}
	}
	return config.APIClientKey{}, false
}

func (a *HTTPAuth) header() string {
	h := strings.TrimSpace(a.cfg.HeaderAPIKey)
	if h == "" {
		return apiKeyHeaderDefault
	}
	return h
}

// clientKey identifies the caller for rate limiting: the API key when
// present, otherwise the remote host.
func clientKey(r *http.Request, apiKeyHeader string) string {
	if apiKey := strings.TrimSpace(r.Header.Get(apiKeyHeader)); apiKey != "" {
		return "key:" + apiKey
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return clientKeyUnknown
}
