// Package httpapi exposes the extension-hours workflows over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"extensao.org/internal/accounts"
	"extensao.org/internal/activity"
	"extensao.org/internal/apperr"
	"extensao.org/internal/audit"
	"extensao.org/internal/auth"
	"extensao.org/internal/enrollment"
	"extensao.org/internal/hours"
	"extensao.org/internal/obs"
	"extensao.org/internal/stream"
)

const serviceName = "extensao-api"

// Pinger is implemented by the stores.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe checks the backing store.
type ReadyProbe struct {
	Store Pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.Store == nil {
		return nil
	}
	return rp.Store.Ping(ctx)
}

// CatalogRefresher reloads the permission catalog, e.g. *auth.CachedPermissions.
type CatalogRefresher interface {
	Refresh(ctx context.Context) error
}

// Services bundles the workflows served by the API.
type Services struct {
	Auth        *auth.Service
	Authz       *auth.Resolver
	Catalog     *auth.Catalog
	Refresher   CatalogRefresher
	Accounts    *accounts.Service
	Activities  *activity.Service
	Enrollments *enrollment.Service
	Hours       *hours.Service
	Audit       *audit.Recorder
	Stream      *stream.Hub[audit.Entry]
}

// Options tunes the HTTP surface.
type Options struct {
	Version       string
	MaxBodyBytes  int64
	RateBurst     int
	RatePerSecond int
	SecureCookies bool
}

// API is the HTTP layer.
type API struct {
	router chi.Router
	svc    Services
	ready  ReadyProbe
	opts   Options
}

// New wires the router.
func New(rp ReadyProbe, svc Services, opts Options) *API {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 20
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 10
	}
	if svc.Refresher == nil && svc.Catalog != nil {
		svc.Refresher = svc.Catalog
	}
	a := &API{svc: svc, ready: rp, opts: opts}
	a.router = a.routes()
	return a
}

func (a *API) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(middleware.Recoverer)
	r.Use(LoggingJSON)
	r.Use(SecurityHeaders)
	r.Use(CORS)
	r.Use(func(next http.Handler) http.Handler { return RateLimit(next, a.opts.RateBurst, a.opts.RatePerSecond) })
	r.Use(func(next http.Handler) http.Handler { return MaxBodyBytes(next, a.opts.MaxBodyBytes) })

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Handle("/metrics", obs.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(a.withAuth)
		r.Get("/info", a.Info)

		r.Post("/auth/login", a.login)
		r.Post("/auth/logout", a.logout)
		r.Get("/auth/me", a.me)

		r.Route("/users", func(r chi.Router) {
			r.Post("/", a.registerUser)
			r.Get("/", a.listUsers)
			r.Get("/{id}", a.getUser)
			r.Patch("/{id}", a.updateUser)
			r.Delete("/{id}", a.deleteUser)
			r.Post("/{id}/password", a.changePassword)
		})

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", a.listCategories)
			r.Post("/", a.createCategory)
			r.Delete("/{id}", a.deleteCategory)
		})

		r.Route("/activities", func(r chi.Router) {
			r.Get("/", a.listActivities)
			r.Post("/", a.createActivity)
			r.Get("/{id}", a.getActivity)
			r.Patch("/{id}", a.updateActivity)
			r.Delete("/{id}", a.deleteActivity)
		})

		r.Route("/enrollments", func(r chi.Router) {
			r.Get("/", a.listEnrollments)
			r.Post("/", a.enroll)
			r.Get("/{id}", a.getEnrollment)
			r.Patch("/{id}", a.updateEnrollment)
			r.Delete("/{id}", a.deleteEnrollment)
		})

		r.Route("/proofs", func(r chi.Router) {
			r.Get("/", a.listProofs)
			r.Post("/", a.submitProof)
			r.Get("/{id}", a.getProof)
			r.Delete("/{id}", a.deleteProof)
			r.Post("/{id}/decision", a.decideProof)
		})

		r.Get("/audit", a.listAudit)
		r.Get("/audit/stream", a.streamAudit)
		r.Post("/admin/catalog/refresh", a.refreshCatalog)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, apperr.NotFound("route"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{
			Error:     "method not allowed",
			Kind:      string(apperr.KindValidation),
			RequestID: audit.RequestIDFromContext(r.Context()),
		})
	})
	return r
}

// Handler returns the instrumented router.
func (a *API) Handler() http.Handler {
	return obs.Instrument(a.router)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.opts.Version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		obs.SetReady(false)
		obs.Logger().Warn("readiness check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready"})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.opts.Version,
	})
}

type errorBody struct {
	Error     string   `json:"error"`
	Kind      string   `json:"kind"`
	RequestID string   `json:"request_id,omitempty"`
	Required  []string `json:"required,omitempty"`
}

// writeError maps err onto the taxonomy status. Internal details are logged, never returned.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	body := errorBody{
		Error:     apperr.Message(err),
		Kind:      string(kind),
		RequestID: audit.RequestIDFromContext(r.Context()),
	}
	var denied *auth.DeniedError
	if errors.As(err, &denied) {
		body.Required = denied.Required
	}
	if kind == apperr.KindInternal {
		obs.Logger().Error("request failed",
			zap.String("request_id", body.RequestID),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeJSON(w, apperr.Status(kind), body)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads one JSON object into dst, rejecting unknown fields and trailing data.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return apperr.Invalid("request body exceeds %d bytes", tooLarge.Limit)
		case errors.Is(err, io.EOF):
			return apperr.Invalid("request body is required")
		default:
			return apperr.Invalid("malformed JSON: %v", err)
		}
	}
	if dec.More() {
		return apperr.Invalid("request body must contain a single JSON object")
	}
	return nil
}
