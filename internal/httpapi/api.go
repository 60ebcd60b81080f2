// Package httpapi is the HTTP transport for the access-request service. It
// authenticates callers, translates typed domain errors into status codes,
// and owns no lifecycle logic of its own.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"accessdesk.org/internal/auth"
	"accessdesk.org/internal/obs"
	"accessdesk.org/internal/request"
)

const serviceName = "accessdesk-api"

// ReadyProbe reports whether downstream dependencies are reachable.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	requests  *request.Service
	directory *auth.Directory
	tokenTTL  time.Duration

	rateBurst  int
	ratePerSec int
}

// New wires routes for the given lifecycle service and token directory.
func New(rp ReadyProbe, version string, svc *request.Service, dir *auth.Directory) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		requests:   svc,
		directory:  dir,
		tokenTTL:   15 * time.Minute,
		rateBurst:  20,
		ratePerSec: 10,
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/token", a.handleAuthToken)

	a.mux.HandleFunc("/v1/access-requests", a.handleRequestsCollection)
	a.mux.HandleFunc("/v1/access-requests/", a.handleRequestResource)
	a.mux.HandleFunc("/v1/users/", a.handleUserScoped)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// SetTokenTTL overrides the issued token lifetime.
func (a *API) SetTokenTTL(ttl time.Duration) {
	if ttl > 0 {
		a.tokenTTL = ttl
	}
}

// SetRateLimit tunes the per-client token bucket.
func (a *API) SetRateLimit(burst, perSec int) {
	if burst > 0 {
		a.rateBurst = burst
	}
	if perSec > 0 {
		a.ratePerSec = perSec
	}
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = obs.Instrument(a.mux)
	h = a.withAuth(h)
	h = LoggingJSON(h)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = RequestID(h)
	return h
}
