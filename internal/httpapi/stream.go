package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"extensao.org/internal/apperr"
	"extensao.org/internal/audit"
	"extensao.org/internal/auth"
)

func (a *API) listAudit(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Authz.Authorize(r.Context(), principal(r), nil, auth.PermAuditRead); err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	f := audit.Filter{
		Entity:   q.Get("entity"),
		EntityID: q.Get("entity_id"),
		Action:   q.Get("action"),
		ActorID:  q.Get("actor_id"),
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, r, apperr.Invalid("limit must be a non-negative integer"))
			return
		}
		f.Limit = n
	}
	entries, err := a.svc.Audit.List(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": entries})
}

// streamAudit sends audit entries recorded after subscription as server-sent events.
func (a *API) streamAudit(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Authz.Authorize(r.Context(), principal(r), nil, auth.PermAuditRead); err != nil {
		writeError(w, r, err)
		return
	}
	if a.svc.Stream == nil {
		http.Error(w, "streaming disabled", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	ch := a.svc.Stream.Subscribe(ctx)

	_, _ = w.Write([]byte(": stream started\n\n"))
	flusher.Flush()

	for entry := range ch {
		payload, err := json.Marshal(entry)
		if err != nil {
			continue
		}
		_, _ = w.Write([]byte("event: audit\nid: " + entry.ID + "\ndata: "))
		_, _ = w.Write(payload)
		_, _ = w.Write([]byte("\n\n"))
		flusher.Flush()
	}
}

func (a *API) refreshCatalog(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Authz.Authorize(r.Context(), principal(r), nil, auth.PermAdminManageRoles); err != nil {
		writeError(w, r, err)
		return
	}
	if a.svc.Refresher == nil {
		writeError(w, r, auth.ErrCatalogUnavailable)
		return
	}
	if err := a.svc.Refresher.Refresh(r.Context()); err != nil {
		writeError(w, r, apperr.Internal("refresh catalog", err))
		return
	}
	resp := map[string]any{"status": "refreshed"}
	if a.svc.Catalog != nil {
		resp["version"] = a.svc.Catalog.Version()
		resp["roles"] = a.svc.Catalog.Roles()
	}
	writeJSON(w, http.StatusOK, resp)
}
